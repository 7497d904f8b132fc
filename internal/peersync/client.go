package peersync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iudanet/linkmesh/pkg/api"
)

// Пути peer API
const (
	DigestPath = "/api/v1/peer/digest"
	FetchPath  = "/api/v1/peer/fetch"
	PushPath   = "/api/v1/peer/push"
	StreamPath = "/api/v1/peer/stream"
)

// Client HTTP клиент peer API удаленного узла
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient создает клиент для узла по адресу baseURL
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Digest получает сводку реплики удаленного узла
func (c *Client) Digest(ctx context.Context) (*api.DigestResponse, error) {
	var resp api.DigestResponse
	if err := c.doRequest(ctx, http.MethodGet, DigestPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("digest request failed: %w", err)
	}
	return &resp, nil
}

// Fetch запрашивает записи по ID
func (c *Client) Fetch(ctx context.Context, ids []string) ([]api.Entry, error) {
	var resp api.FetchResponse
	if err := c.doRequest(ctx, http.MethodPost, FetchPath, api.FetchRequest{IDs: ids}, &resp); err != nil {
		return nil, fmt.Errorf("fetch request failed: %w", err)
	}
	return resp.Entries, nil
}

// Push передает записи удаленному узлу
func (c *Client) Push(ctx context.Context, req api.PushRequest) (*api.PushResponse, error) {
	var resp api.PushResponse
	if err := c.doRequest(ctx, http.MethodPost, PushPath, req, &resp); err != nil {
		return nil, fmt.Errorf("push request failed: %w", err)
	}
	return &resp, nil
}

// StreamURL возвращает websocket адрес потока обновлений
func (c *Client) StreamURL() (string, error) {
	u, err := url.Parse(c.baseURL + StreamPath)
	if err != nil {
		return "", fmt.Errorf("invalid peer address %q: %w", c.baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported peer address scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("peer error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	// Декодируем успешный ответ
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
