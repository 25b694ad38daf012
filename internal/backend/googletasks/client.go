// Package googletasks implements service.Service on the Google Tasks
// default list.
package googletasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"gtodo/internal/config"
	"gtodo/internal/logging"
	"gtodo/internal/service"
)

const (
	// DefaultListID is the special ID for the default list.
	DefaultListID = "@default"

	// PageSize is the number of tasks per page.
	PageSize = 100

	// APITimeout is the timeout for API calls when the config sets none.
	APITimeout = 5 * time.Second

	// TasksScope is the OAuth scope for Google Tasks.
	TasksScope = "https://www.googleapis.com/auth/tasks"

	statusCompleted = "completed"
)

// Client implements service.Service using Google Tasks API.
type Client struct {
	svc     *tasks.Service
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a new Google Tasks client.
// Requires oauth_client.json and token.json to exist.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	oauthConfig, err := OAuthConfig(cfg)
	if err != nil {
		return nil, err
	}

	tokenData, err := os.ReadFile(cfg.TokenPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read token.json: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenData, &token); err != nil {
		return nil, fmt.Errorf("invalid token.json: %w", err)
	}

	// Token source refreshes automatically.
	httpClient := oauth2.NewClient(ctx, oauthConfig.TokenSource(ctx, &token))

	svc, err := tasks.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = APITimeout
	}
	return &Client{svc: svc, timeout: timeout, logger: logging.OrDiscard(logger)}, nil
}

// OAuthConfig loads the installed-app OAuth client from the config dir.
func OAuthConfig(cfg *config.Config) (*oauth2.Config, error) {
	clientJSON, err := os.ReadFile(cfg.OAuthClientPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth_client.json: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(clientJSON, TasksScope)
	if err != nil {
		return nil, fmt.Errorf("invalid oauth_client.json: %w", err)
	}
	return oauthConfig, nil
}

// NewWithHTTPClient creates a client with a custom HTTP client and API
// endpoint (for testing).
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client, endpoint string) (*Client, error) {
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{svc: svc, timeout: APITimeout, logger: logging.Discard()}, nil
}

// List returns every task on the default list, completed ones included, in
// API order.
func (c *Client) List(ctx context.Context) ([]service.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	items := []service.Item{}
	err := c.svc.Tasks.List(DefaultListID).
		MaxResults(PageSize).
		ShowCompleted(true).
		ShowHidden(true).
		ShowDeleted(false).
		Pages(ctx, func(resp *tasks.Tasks) error {
			for _, t := range resp.Items {
				items = append(items, toItem(t))
			}
			return nil
		})
	if err != nil {
		return nil, wrapError("list", err)
	}
	c.logger.Debug("listed tasks", "count", len(items))
	return items, nil
}

// Create inserts a task. Blank text is rejected before the API call since
// Google Tasks would accept it.
func (c *Client) Create(ctx context.Context, text string) (service.Item, error) {
	if strings.TrimSpace(text) == "" {
		return service.Item{}, service.ValidationError("create", "Todo body cannot be empty")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	t, err := c.svc.Tasks.Insert(DefaultListID, &tasks.Task{Title: text}).Context(ctx).Do()
	if err != nil {
		return service.Item{}, wrapError("create", err)
	}
	return toItem(t), nil
}

// Toggle marks a task completed. The Tasks API accepts a PATCH to an
// already completed task, so the task is read first and a completed one is
// reported as a conflict without patching.
func (c *Client) Toggle(ctx context.Context, id string) (service.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	current, err := c.svc.Tasks.Get(DefaultListID, id).Context(ctx).Do()
	if err != nil {
		return service.Item{}, wrapError("toggle", err)
	}
	if current.Status == statusCompleted {
		return service.Item{}, service.ConflictError("toggle", "Todo is already completed")
	}

	t, err := c.svc.Tasks.Patch(DefaultListID, id, &tasks.Task{Status: statusCompleted}).Context(ctx).Do()
	if err != nil {
		return service.Item{}, wrapError("toggle", err)
	}
	return toItem(t), nil
}

// Delete removes a task.
func (c *Client) Delete(ctx context.Context, id string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.svc.Tasks.Delete(DefaultListID, id).Context(ctx).Do(); err != nil {
		return "", wrapError("delete", err)
	}
	return id, nil
}

func toItem(t *tasks.Task) service.Item {
	return service.Item{
		ID:        t.Id,
		Text:      t.Title,
		Completed: t.Status == statusCompleted,
	}
}

// wrapError maps API errors onto the service error kinds.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		msg := strings.TrimSpace(apiErr.Message)
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return service.AuthError(op, apiErr.Code, "token expired or revoked (run: gtodo login)")
		case http.StatusNotFound:
			return service.NotFoundError(op, "Todo not found")
		}
		if msg == "" {
			return service.ProtocolError(op, apiErr.Code, "missing error message")
		}
		switch apiErr.Code {
		case http.StatusBadRequest:
			return service.ValidationError(op, msg)
		case http.StatusConflict:
			return service.ConflictError(op, msg)
		default:
			return service.ServerError(op, apiErr.Code, msg)
		}
	}

	// Everything else (timeouts, refused connections, token refresh
	// failures) happened before a response was read.
	return service.TransportError(op, err)
}
