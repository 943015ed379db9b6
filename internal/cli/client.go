package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperjump/synapse/internal/indexer"
	"github.com/hyperjump/synapse/internal/models"
)

// ErrServerUnavailable is returned when the server cannot be reached at all.
var ErrServerUnavailable = errors.New("server unavailable")

// Client is a Backend over the HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Minute},
	}
}

// Ping reports whether the server answers its health check.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/health", nil, nil, http.StatusOK)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, want int) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return fmt.Errorf("%w: %v", ErrServerUnavailable, err)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	var out models.SearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/search", query, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Process(ctx context.Context, docPath string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/documents", models.DocumentInput{Path: docPath}, &out, http.StatusCreated); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) Sync(ctx context.Context) (*indexer.SyncResult, error) {
	var out indexer.SyncResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/sync", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/documents/"+url.PathEscape(id), nil, nil, http.StatusOK)
}

func (c *Client) Rebuild(ctx context.Context) (int, error) {
	var out struct {
		Documents int `json:"documents"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/rebuild", nil, &out, http.StatusOK); err != nil {
		return 0, err
	}
	return out.Documents, nil
}

func (c *Client) Check(ctx context.Context, fix bool) (*models.ConsistencyReport, error) {
	var out models.ConsistencyReport
	path := fmt.Sprintf("/api/v1/consistency?fix=%t", fix)
	if err := c.do(ctx, http.MethodPost, path, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Cleanup(ctx context.Context) ([]string, error) {
	var out struct {
		Deleted []string `json:"deleted"`
		Error   string   `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/cleanup", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return out.Deleted, errors.New(out.Error)
	}
	return out.Deleted, nil
}

func (c *Client) Keys(ctx context.Context) ([]string, error) {
	var out struct {
		Keys []string `json:"keys"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/properties", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

func (c *Client) Status(ctx context.Context) (*models.IndexStatus, error) {
	var out models.IndexStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Close is a no-op; the client holds no resources.
func (c *Client) Close() error { return nil }
