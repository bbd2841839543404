// Package couchdb is the HTTP transport used to talk to a CouchDB compatible server.
package couchdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// ErrEmptyServer is returned by NewClient when no server url is given.
var ErrEmptyServer = errors.New("couchdb: server url is empty")

// Options configures a Client.
type Options struct {
	Server   string
	User     string
	Password string

	// Per request timeout, zero means no timeout
	Timeout time.Duration

	// Optional, replaces the default http.Client (Timeout is ignored then)
	HTTPClient *http.Client
}

// Client issues GET requests against one server, with basic auth when
// credentials are configured.
type Client struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
}

func NewClient(opts Options) (*Client, error) {
	if opts.Server == "" {
		return nil, ErrEmptyServer
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		baseURL:  strings.TrimRight(opts.Server, "/"),
		user:     opts.User,
		password: opts.Password,
		http:     httpClient,
	}, nil
}

// Path joins segments into an escaped request path, e.g.
// Path("my/db", "_design", "views") is "/my%2Fdb/_design/views".
func Path(segments ...string) string {
	var sb strings.Builder
	for _, s := range segments {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(s))
	}
	return sb.String()
}

// URL returns the absolute url for path and an already encoded query.
func (c *Client) URL(path, rawQuery string) string {
	u := c.baseURL + path
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}

// GetJSON fetches path and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.get(ctx, c.URL(path, ""))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	return nil
}

// Touch fetches path with rawQuery and throws the body away.
func (c *Client) Touch(ctx context.Context, path, rawQuery string) error {
	resp, err := c.get(ctx, c.URL(path, rawQuery))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	return nil
}

// get returns the response for a 2xx status; any other status is turned
// into an *Error and the body is closed.
func (c *Client) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.user != "" || c.password != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	return nil, newError(resp)
}
