package api

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
	"time"

	"github.com/iudanet/linkmesh/internal/cache"
	"github.com/iudanet/linkmesh/internal/peersync"
	"github.com/iudanet/linkmesh/pkg/api"
)

// ErrInvalidCode узел не знает такого короткого кода
var ErrInvalidCode = errors.New("invalid code")

// Client представляет HTTP клиент для взаимодействия с узлом
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			// Редирект не выполняем: адрес назначения нужен как результат
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// CreateRedirect создает запись на узле
func (c *Client) CreateRedirect(ctx context.Context, req api.CreateRedirectRequest) (*api.Redirect, error) {
	var resp api.Redirect
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/redirects", req, &resp); err != nil {
		return nil, fmt.Errorf("create redirect request failed: %w", err)
	}
	return &resp, nil
}

// ListRedirects получает страницу записей
func (c *Client) ListRedirects(ctx context.Context, page, pageSize int, search string) (*api.ListRedirectsResponse, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	if search != "" {
		q.Set("search", search)
	}

	path := "/api/v1/redirects"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp api.ListRedirectsResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list redirects request failed: %w", err)
	}
	return &resp, nil
}

// Resolve возвращает адрес назначения для короткого кода
func (c *Client) Resolve(ctx context.Context, code string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/r/"+url.PathEscape(code), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusFound, http.StatusMovedPermanently, http.StatusTemporaryRedirect:
		return resp.Header.Get("Location"), nil
	case http.StatusNotFound:
		return "", ErrInvalidCode
	default:
		body, _ := io.ReadAll(resp.Body)
		return "", responseError(resp.StatusCode, body)
	}
}

// Health получает состояние узла
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	return &resp, nil
}

// Peers получает состояние связи узла с другими узлами
func (c *Client) Peers(ctx context.Context) (*peersync.Status, error) {
	var resp peersync.Status
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/peers", nil, &resp); err != nil {
		return nil, fmt.Errorf("peers request failed: %w", err)
	}
	return &resp, nil
}

// SyncPeer просит узел немедленно сверить реплику с узлом address
func (c *Client) SyncPeer(ctx context.Context, address string) (*api.SyncResponse, error) {
	var resp api.SyncResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/peers/sync", api.SyncRequest{Address: address}, &resp); err != nil {
		return nil, fmt.Errorf("sync request failed: %w", err)
	}
	return &resp, nil
}

// Collisions получает обнаруженные коллизии коротких кодов
func (c *Client) Collisions(ctx context.Context) ([]cache.CodeCollision, error) {
	var resp []cache.CodeCollision
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/redirects/collisions", nil, &resp); err != nil {
		return nil, fmt.Errorf("collisions request failed: %w", err)
	}
	return resp, nil
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
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
		return responseError(resp.StatusCode, respBody)
	}

	// Декодируем успешный ответ
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func responseError(status int, body []byte) error {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		if errResp.Message != "" {
			return fmt.Errorf("server error (%d): %s: %s", status, errResp.Error, errResp.Message)
		}
		return fmt.Errorf("server error (%d): %s", status, errResp.Error)
	}
	return fmt.Errorf("request failed with status %d: %s", status, string(body))
}
