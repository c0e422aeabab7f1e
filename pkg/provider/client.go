package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const defaultTimeout = 60 * time.Second

// Client is a small fasthttp wrapper bound to one base url and a fixed set
// of request headers.
type Client struct {
	HTTP    *fasthttp.Client
	BaseURL string
	Headers map[string]string
	Timeout time.Duration
}

func NewClient(baseURL string, headers map[string]string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		HTTP:    &fasthttp.Client{Name: "datimsync", MaxResponseBodySize: 256 << 20},
		BaseURL: strings.TrimRight(baseURL, "/"),
		Headers: headers,
		Timeout: timeout,
	}
}

// BasicAuth returns the Authorization header value for user and pass.
func BasicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

// TokenAuth returns the OCL Authorization header value.
func TokenAuth(token string) string {
	return "Token " + token
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Do sends one request and returns the status code and a copy of the body.
// The deadline is the earlier of ctx's deadline and the client timeout.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, contentType string) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.BaseURL + path)
	req.Header.SetMethod(method)
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.SetContentType(contentType)
		req.SetBody(body)
	}

	deadline := time.Now().Add(c.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.HTTP.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	out := append([]byte(nil), resp.Body()...)
	return resp.StatusCode(), out, nil
}

// Get fetches path and fails on a non 2xx status.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	status, body, err := c.Do(ctx, fasthttp.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &StatusError{Method: fasthttp.MethodGet, Path: path, Status: status, Body: truncate(body)}
	}
	return body, nil
}

func truncate(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
