package apiclient

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
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"timetracker/internal/domain"
	"timetracker/internal/identity"
	"timetracker/internal/ports"
)

const apiPrefix = "/api/time-entries"

// Client implements ports.Tracker against a running timetracker server.
// Status codes returned by the server are mapped back onto the domain error
// kinds, so callers handle local and remote trackers the same way.
type Client struct {
	baseURL string
	header  string
	http    *http.Client
	log     *slog.Logger
}

var _ ports.Tracker = (*Client)(nil)

// NewClient returns a client for the server at baseURL. header names the
// identity header the server reads; empty means identity.DefaultHeader.
func NewClient(baseURL, header string, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}
	if header == "" {
		header = identity.DefaultHeader
	}
	return &Client{
		baseURL: baseURL,
		header:  header,
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: log,
	}
}

func (c *Client) Start(ctx context.Context, userID, projectName string) (domain.TimeEntry, error) {
	var out domain.TimeEntry
	err := c.do(ctx, http.MethodPost, "/start", userID, map[string]string{"projectName": projectName}, &out)
	return out, err
}

func (c *Client) Stop(ctx context.Context, userID string) (domain.TimeEntry, error) {
	var out domain.TimeEntry
	err := c.do(ctx, http.MethodPost, "/stop", userID, nil, &out)
	return out, err
}

// Current returns nil when the server reports no running entry.
func (c *Client) Current(ctx context.Context, userID string) (*domain.TimeEntry, error) {
	var out *domain.TimeEntry
	if err := c.do(ctx, http.MethodGet, "/current", userID, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) History(ctx context.Context, userID string) ([]domain.TimeEntry, error) {
	out := []domain.TimeEntry{}
	if err := c.do(ctx, http.MethodGet, "/history", userID, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateDescription(ctx context.Context, userID, entryID, text string) (domain.TimeEntry, error) {
	var out domain.TimeEntry
	body := map[string]string{"timeEntryId": entryID, "description": text}
	err := c.do(ctx, http.MethodPost, "/update-description", userID, body, &out)
	return out, err
}

func (c *Client) DeleteEntry(ctx context.Context, userID, entryID string) error {
	if entryID == "" {
		return domain.InvalidInputf("time entry id is required")
	}
	return c.do(ctx, http.MethodDelete, "/"+url.PathEscape(entryID), userID, nil, nil)
}

// do sends one API request and decodes the JSON response into out. Reads
// are retried with exponential backoff on transport errors and 5xx
// responses; writes are sent once.
func (c *Client) do(ctx context.Context, method, path, userID string, in, out any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + apiPrefix + path
	if _, err := url.Parse(endpoint); err != nil {
		return domain.Infrastructure("parse server url", err)
	}

	var (
		payload []byte
		err     error
	)
	if in != nil {
		if payload, err = json.Marshal(in); err != nil {
			return domain.Infrastructure("encode request", err)
		}
	}

	attempt := func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return backoff.Permanent(domain.Infrastructure("build request", err))
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if userID != "" {
			req.Header.Set(c.header, userID)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return domain.Infrastructure(method+" "+path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			apiErr := decodeError(resp)
			if resp.StatusCode >= 500 {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(domain.Infrastructure("decode response", err))
		}
		return nil
	}

	if method != http.MethodGet {
		err := attempt()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	notify := func(err error, wait time.Duration) {
		c.log.Debug("api request failed, retrying",
			slog.String("path", path),
			slog.String("error", err.Error()),
			slog.Duration("wait", wait),
		)
	}
	return backoff.RetryNotify(attempt, policy, notify)
}

// decodeError turns an error response into a classified domain error.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Message string `json:"message"`
	}
	msg := string(raw)
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		msg = body.Message
	}
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return domain.InvalidInputf("%s", msg)
	case http.StatusNotFound:
		return domain.NotFoundf("%s", msg)
	case http.StatusConflict:
		return domain.Conflictf("%s", msg)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", identity.ErrUnauthenticated, msg)
	default:
		return domain.Infrastructure("server", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg))
	}
}
