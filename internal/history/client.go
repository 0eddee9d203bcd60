// Package history fetches older message pages over HTTP. Pages carry
// encrypted envelopes; decryption and timeline merging happen in the
// chat engine, not here.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ZRosserMcIntosh/railgun-sub001/internal/store"
	"github.com/ZRosserMcIntosh/railgun-sub001/internal/wire"
)

// Client fetches message history pages from the chat server.
type Client struct {
	baseURL string

	mu    sync.Mutex
	token string
	http  *http.Client
}

// NewClient creates a history client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken sets the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

type pageResponse struct {
	Messages []wire.MessageEvent `json:"messages"`
}

// FetchPage returns up to limit messages of the conversation older than
// before (milliseconds since epoch). A before of 0 fetches the most
// recent page. Messages come back envelope-encrypted.
func (c *Client) FetchPage(ctx context.Context, conv store.ConversationKey, before int64, limit int) ([]wire.MessageEvent, error) {
	if !conv.Valid() {
		return nil, fmt.Errorf("invalid conversation %q", conv.String())
	}

	endpoint := conversationEndpoint(conv)
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if before > 0 {
		values.Set("before", strconv.FormatInt(before, 10))
	}
	if len(values) > 0 {
		endpoint = endpoint + "?" + values.Encode()
	}

	body, err := c.doRequest(ctx, http.MethodGet, endpoint)
	if err != nil {
		return nil, err
	}

	var page pageResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode history page: %w", err)
	}
	return page.Messages, nil
}

func conversationEndpoint(conv store.ConversationKey) string {
	if conv.ChannelID != "" {
		return fmt.Sprintf("/v1/channels/%s/messages", url.PathEscape(conv.ChannelID))
	}
	return fmt.Sprintf("/v1/direct/%s/messages", url.PathEscape(conv.PeerID))
}

func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	c.mu.Lock()
	token := c.token
	client := c.http
	c.mu.Unlock()

	if c.baseURL == "" {
		return nil, fmt.Errorf("server URL not set")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("history request failed (%d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
