package engine

import (
	"encoding/json"
	"strconv"
)

// Label is the public lobby descriptor published to the discovery listing.
// The boolean fields are stringified for listing-query compatibility.
type Label struct {
	IsPrivate           string `json:"isPrivate"`
	PlayerCount         int    `json:"playerCount"`
	RequiredPlayerCount int    `json:"requiredPlayerCount"`
	MatchName           string `json:"matchName"`
	CanJoin             string `json:"canJoin"`
}

func BuildLabel(s State) string {
	l := Label{
		IsPrivate:           strconv.FormatBool(s.IsPrivate),
		PlayerCount:         s.PlayerCount,
		RequiredPlayerCount: s.RequiredPlayerCount,
		MatchName:           s.MatchName,
		CanJoin:             strconv.FormatBool(s.CanJoin),
	}
	b, _ := json.Marshal(l)
	return string(b)
}

func ParseLabel(label string) (Label, error) {
	var l Label
	if err := json.Unmarshal([]byte(label), &l); err != nil {
		return Label{}, err
	}
	return l, nil
}
