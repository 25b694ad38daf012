// Package rest implements service.Service against a JSON todo collection
// endpoint (GET/POST /todos, PATCH/DELETE /todos/{id}).
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"golang.org/x/oauth2"

	"gtodo/internal/config"
	"gtodo/internal/logging"
	"gtodo/internal/service"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// Client implements service.Service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client for cfg.BaseURL. If a token file exists its access
// token is sent as a bearer token on every request.
func New(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base_url: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.HasToken() {
		token, err := LoadToken(cfg.TokenPath())
		if err != nil {
			return nil, err
		}
		httpClient.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(token),
			Base:   http.DefaultTransport,
		}
	}
	return NewWithHTTPClient(cfg.BaseURL, httpClient, logger), nil
}

// NewWithHTTPClient creates a client with a custom HTTP client (for testing).
func NewWithHTTPClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logging.OrDiscard(logger),
	}
}

// LoadToken reads a stored token file.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token.json: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid token.json: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("invalid token.json: missing access_token")
	}
	return &token, nil
}

// SaveToken writes token to path with mode 0600.
func SaveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// List implements service.Service.
func (c *Client) List(ctx context.Context) ([]service.Item, error) {
	var items []service.Item
	if err := c.do(ctx, "list", http.MethodGet, "/todos", nil, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []service.Item{}
	}
	return items, nil
}

// Create implements service.Service.
func (c *Client) Create(ctx context.Context, text string) (service.Item, error) {
	var item service.Item
	body := map[string]string{"body": text}
	if err := c.do(ctx, "create", http.MethodPost, "/todos", body, &item); err != nil {
		return service.Item{}, err
	}
	if item.ID == "" {
		return service.Item{}, service.ProtocolError("create", http.StatusCreated, "created item has no id")
	}
	return item, nil
}

// Toggle implements service.Service.
func (c *Client) Toggle(ctx context.Context, id string) (service.Item, error) {
	var item service.Item
	if err := c.do(ctx, "toggle", http.MethodPatch, "/todos/"+url.PathEscape(id), nil, &item); err != nil {
		return service.Item{}, err
	}
	return item, nil
}

// Delete implements service.Service.
func (c *Client) Delete(ctx context.Context, id string) (string, error) {
	var confirm struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "delete", http.MethodDelete, "/todos/"+url.PathEscape(id), nil, &confirm); err != nil {
		return "", err
	}
	if confirm.ID == "" {
		confirm.ID = id
	}
	return confirm.ID, nil
}

// do performs one round trip. A 2xx body is decoded into out; any other
// status becomes a *service.Error built from the {"error": ...} payload.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("remote call", "op", op, "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		return service.TransportError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return service.TransportError(op, err)
	}
	c.logger.Debug("remote response", "op", op, "status", resp.StatusCode, "bytes", len(data))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return service.ProtocolError(op, resp.StatusCode, err.Error())
		}
		return nil
	}
	return decodeError(op, resp.StatusCode, data)
}

func decodeError(op string, status int, data []byte) error {
	var payload struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return service.ProtocolError(op, status, "unparseable error body")
	}
	if payload.Error == nil || strings.TrimSpace(*payload.Error) == "" {
		return service.ProtocolError(op, status, "missing error message")
	}
	msg := *payload.Error

	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return service.ValidationError(op, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return service.AuthError(op, status, msg)
	case http.StatusNotFound:
		return service.NotFoundError(op, msg)
	case http.StatusConflict:
		return service.ConflictError(op, msg)
	default:
		return service.ServerError(op, status, msg)
	}
}

// IsTransport reports whether err came from the network rather than the server.
func IsTransport(err error) bool {
	return errors.Is(err, service.ErrTransport)
}
