// Package api is the REST boundary used for task mutations and the profile.
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
	"strings"
	"time"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/auth"
)

var ErrUnauthorized = errors.New("unauthorized")

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Is lets callers match 401/403 with errors.Is(err, ErrUnauthorized).
func (e *HTTPError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// Profile is the subset of the user profile the sync client needs.
type Profile struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name,omitempty"`
	OnboardingStep int    `json:"onboardingStep"`
}

// Client talks to the REST API with the same credentials as the realtime channel.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials func() auth.Credentials
}

func NewClient(baseURL string, credentials func() auth.Credentials) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		credentials: credentials,
	}
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/user-tasks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CompleteTask(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/user-tasks/"+url.PathEscape(id)+"/complete", nil, nil)
}

func (c *Client) IgnoreTask(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/user-tasks/"+url.PathEscape(id)+"/ignore", nil, nil)
}

func (c *Client) SnoozeTask(ctx context.Context, id string, until time.Time) error {
	body := map[string]string{"until": until.UTC().Format(time.RFC3339)}
	return c.doJSON(ctx, http.MethodPost, "/user-tasks/"+url.PathEscape(id)+"/snooze", body, nil)
}

func (c *Client) FetchProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.doJSON(ctx, http.MethodGet, "/profile", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	creds := c.credentials()
	if !creds.Present() {
		return auth.ErrNoCredentials
	}

	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", creds.BearerValue())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var payload struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		text := strings.TrimSpace(string(msg))
		if json.Unmarshal(msg, &payload) == nil {
			if payload.Message != "" {
				text = payload.Message
			} else if payload.Error != "" {
				text = payload.Error
			}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: text}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
