package volumio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"faceplate/internal/playerstate"
)

// ErrUnavailable reports that the player could not be reached.
var ErrUnavailable = errors.New("volumio unavailable")

const (
	defaultUserAgent      = "faceplate/0.1"
	defaultRequestTimeout = 5 * time.Second
	maxResponseBytes      = 4 << 20
)

// Client talks to the Volumio REST API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

// NewClient builds a Client for the given player host.
func NewClient(host string, timeout time.Duration) (*Client, error) {
	base, err := parseBaseURL(host)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}, nil
}

// Host returns the base URL the client talks to.
func (c *Client) Host() string {
	if c == nil {
		return ""
	}
	return c.baseURL.String()
}

// FetchState retrieves the current player state, keeping the field order of
// the response.
func (c *Client) FetchState(ctx context.Context) (playerstate.Snapshot, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	body, err := c.get(ctx, &url.URL{Path: "/api/v1/getState"})
	if err != nil {
		return nil, err
	}
	snap, err := playerstate.SnapshotFromJSON(body)
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return snap, nil
}

// FetchQueue retrieves the play queue. Both the bare array and the
// {"queue": [...]} envelope are accepted.
func (c *Client) FetchQueue(ctx context.Context) ([]json.RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	body, err := c.get(ctx, &url.URL{Path: "/api/v1/getQueue"})
	if err != nil {
		return nil, err
	}
	return decodeQueue(body)
}

// FetchQueueInfo reports queue metadata for the engine. ok is false when the
// queue is empty, in which case nothing should be applied.
func (c *Client) FetchQueueInfo(ctx context.Context) (playerstate.Snapshot, bool, error) {
	queue, err := c.FetchQueue(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(queue) == 0 {
		return nil, false, nil
	}
	return playerstate.Snapshot{{Field: string(playerstate.FieldPlaylistLength), Value: float64(len(queue))}}, true, nil
}

// Send issues a playback command such as play, pause or next.
func (c *Client) Send(ctx context.Context, cmd string) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return fmt.Errorf("send command: empty command")
	}
	if cmd == "previous" {
		// REST spells it "prev".
		cmd = "prev"
	}
	values := url.Values{}
	values.Set("cmd", cmd)
	_, err := c.get(ctx, &url.URL{Path: "/api/v1/commands/", RawQuery: values.Encode()})
	if err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return nil
}

// SetVolume sets the player volume in percent.
func (c *Client) SetVolume(ctx context.Context, volume int) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	values := url.Values{}
	values.Set("cmd", "volume")
	values.Set("volume", strconv.Itoa(clampVolume(volume)))
	_, err := c.get(ctx, &url.URL{Path: "/api/v1/commands/", RawQuery: values.Encode()})
	if err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	return nil
}

// Ping checks that the player answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.FetchState(ctx)
	return err
}

func (c *Client) get(ctx context.Context, rel *url.URL) ([]byte, error) {
	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUnavailable, rel.Path, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("api %s returned status %d", rel.Path, resp.StatusCode)
	}
	return body, nil
}

func decodeQueue(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode queue: %w", err)
		}
		return items, nil
	}
	var envelope struct {
		Queue []json.RawMessage `json:"queue"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("decode queue: %w", err)
	}
	return envelope.Queue, nil
}

func parseBaseURL(host string) (*url.URL, error) {
	trimmed := strings.TrimSpace(host)
	if trimmed == "" {
		trimmed = playerstate.DefaultHost
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse volumio host %q: %w", host, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func clampVolume(volume int) int {
	if volume < 0 {
		return 0
	}
	if volume > 100 {
		return 100
	}
	return volume
}
