package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"inkboard/protocol"
)

// Fetcher retrieves a room's persisted strokes.
type Fetcher interface {
	Fetch(ctx context.Context, room string) ([]protocol.StrokeRecord, error)
}

// HTTPFetcher reads GET {BaseURL}/api/rooms/{room}/strokes.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, room string) ([]protocol.StrokeRecord, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	u := strings.TrimRight(f.BaseURL, "/") + "/api/rooms/" + url.PathEscape(room) + "/strokes"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch strokes: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch strokes: unexpected status %s", resp.Status)
	}
	var recs []protocol.StrokeRecord
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		return nil, fmt.Errorf("decode strokes: %w", err)
	}
	return recs, nil
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, room string) ([]protocol.StrokeRecord, error)

func (f FetcherFunc) Fetch(ctx context.Context, room string) ([]protocol.StrokeRecord, error) {
	return f(ctx, room)
}
