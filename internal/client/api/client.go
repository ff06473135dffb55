package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/boardsync/pkg/api"
)

// Client представляет HTTP клиент pull-поверхности сервера
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient создает новый API клиент.
// token подставляется в Authorization каждого запроса.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateSession регистрирует сессию на сервере
func (c *Client) CreateSession(ctx context.Context, sessionID string) (*api.CreateSessionResponse, error) {
	var resp api.CreateSessionResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/sessions", api.CreateSessionRequest{SessionID: sessionID}, &resp)
	if err != nil {
		return nil, fmt.Errorf("create session request failed: %w", err)
	}
	return &resp, nil
}

// Snapshot забирает полный снимок сессии
func (c *Client) Snapshot(ctx context.Context, sessionID string) (*api.SnapshotResponse, error) {
	var resp api.SnapshotResponse
	err := c.doRequest(ctx, http.MethodGet, "/api/v1/sessions/"+sessionID, nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}
	return &resp, nil
}

// History забирает журнал событий сессии. limit 0 - лимит сервера.
func (c *Client) History(ctx context.Context, sessionID string, limit int) (*api.HistoryResponse, error) {
	path := "/api/v1/sessions/" + sessionID + "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp api.HistoryResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("history request failed: %w", err)
	}
	return &resp, nil
}

// ForceRelease административно снимает лок (нужен admin claim в токене)
func (c *Client) ForceRelease(ctx context.Context, sessionID, resourceID string) (*api.ForceReleaseResponse, error) {
	path := "/api/v1/sessions/" + sessionID + "/locks/" + resourceID + "/release"
	var resp api.ForceReleaseResponse
	if err := c.doRequest(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("force release request failed: %w", err)
	}
	return &resp, nil
}

// DialSession открывает push-канал сессии.
// Токен уходит в Authorization заголовке: у нас не браузер.
func (c *Client) DialSession(ctx context.Context, sessionID string) (*websocket.Conn, error) {
	wsURL := c.baseURL + "/api/v1/sessions/" + sessionID + "/ws"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial session (%d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial session: %w", err)
	}
	return ws, nil
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
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
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("server error (%d): %s %s", resp.StatusCode, errResp.Error, errResp.Message)
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
