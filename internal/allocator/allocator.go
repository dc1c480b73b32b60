package allocator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lobby-backend/internal/engine"
)

// Client talks to the external game-server allocator. One request per lobby,
// no retries: a failed allocation is terminal for the lobby.
type Client struct {
	url  string
	http *http.Client
	log  *zap.Logger
}

func New(url string, log *zap.Logger) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
		log:  log,
	}
}

// Allocate requests a dedicated server for the match. The response body is
// opaque beyond the fields Allocation knows about; the raw bytes are kept so
// the lobby can relay them to clients as-is.
func (c *Client) Allocate(ctx context.Context, matchID string) (*engine.Allocation, error) {
	body, err := json.Marshal(map[string]string{"matchId": matchID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("allocation request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("allocation response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("allocator returned %s", resp.Status)
	}

	alloc := &engine.Allocation{Raw: raw}
	if err := json.Unmarshal(raw, alloc); err != nil {
		// The payload stays usable even if it doesn't match the known shape.
		c.log.Warn("allocation response not in expected shape", zap.String("match_id", matchID), zap.Error(err))
	}
	return alloc, nil
}
