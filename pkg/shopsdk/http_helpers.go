package shopsdk

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
	"strings"
	"unicode"
)

// maxLoggedBody caps how much of a malformed body ends up in the logs.
const maxLoggedBody = 2 << 10

// request describes one backend call before it is sent.
type request struct {
	method string
	path   string
	query  url.Values
	body   any

	// noRefresh marks endpoints that legitimately answer 401 (login,
	// refresh, mfa verification) so a 401 is reported, not recovered.
	noRefresh bool
}

// response is a fully read HTTP response.
type response struct {
	status int
	header http.Header
	body   []byte
}

// envelope is the backend's standard response wrapper.
type envelope struct {
	Success    *bool           `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Pagination *Pagination     `json:"pagination"`
}

type requestValidator interface {
	Validate() ValidationErrors
}

type responseValidator interface {
	Validate() error
}

// send runs req through the pipeline: validate, attach the bearer token,
// attempt under the timeout, and on a 401 refresh once and retry.
func (c *Client) send(ctx context.Context, req request) (*response, error) {
	if v, ok := req.body.(requestValidator); ok {
		if errs := v.Validate(); len(errs) > 0 {
			return nil, errs
		}
	}

	var payload []byte
	if req.body != nil {
		var err error
		payload, err = json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	creds, err := c.storage.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	token := creds.Token

	resp, err := c.attempt(ctx, req, payload, token)
	if err != nil {
		return nil, err
	}

	if resp.status != http.StatusUnauthorized || token == "" || req.noRefresh {
		return checkStatus(resp)
	}

	if !c.refreshFrom(ctx, token) {
		return nil, c.expire(ctx, token)
	}

	creds, err = c.storage.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	resp, err = c.attempt(ctx, req, payload, creds.Token)
	if err != nil {
		return nil, err
	}
	return checkStatus(resp)
}

// attempt performs a single HTTP exchange bounded by the client timeout.
// The body is read inside the deadline.
func (c *Client) attempt(ctx context.Context, req request, payload []byte, token string) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.url(req.path)
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(actx, req.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, actx, req, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, c.transportError(ctx, actx, req, err)
	}

	return &response{status: httpResp.StatusCode, header: httpResp.Header, body: data}, nil
}

// transportError distinguishes our own deadline from caller cancellation.
func (c *Client) transportError(parent, attemptCtx context.Context, req request, err error) error {
	if parent.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %w after %s: %w", req.method, req.path, ErrTimeout, c.timeout, context.DeadlineExceeded)
	}
	return fmt.Errorf("%s %s: %w", req.method, req.path, err)
}

func checkStatus(resp *response) (*response, error) {
	if resp.status < 200 || resp.status >= 300 {
		return nil, parseErrorResponse(resp.status, resp.body)
	}
	return resp, nil
}

// ============================================================================
// Decoding
// ============================================================================

func isEmptyBody(resp *response) bool {
	return resp.status == http.StatusNoContent || len(bytes.TrimSpace(resp.body)) == 0
}

// unwrap strips the envelope, returning the data payload (nil when absent)
// and any pagination.
func (c *Client) unwrap(req request, resp *response) (json.RawMessage, *Pagination, error) {
	raw := bytes.TrimSpace(resp.body)
	if raw[0] != '{' {
		return raw, nil, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, c.decodeError(req, resp, err)
	}
	if env.Data != nil {
		return env.Data, env.Pagination, nil
	}
	if env.Success != nil {
		// Envelope without data: nothing to decode.
		return nil, env.Pagination, nil
	}
	return raw, nil, nil
}

func (c *Client) decodeError(req request, resp *response, err error) error {
	body := string(resp.body)
	if len(body) > maxLoggedBody {
		body = body[:maxLoggedBody]
	}
	c.logger.Error("malformed response body",
		"method", req.method,
		"path", req.path,
		"status", resp.status,
		"body", body,
		"err", err,
	)
	return &DecodeError{Path: req.path, Body: body, Err: err}
}

func (c *Client) decodeInto(req request, resp *response, data json.RawMessage, out any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return c.decodeError(req, resp, err)
	}
	return nil
}

func checkContract[T any](path string, v *T) error {
	validator, ok := any(v).(responseValidator)
	if !ok {
		return nil
	}
	if err := validator.Validate(); err != nil {
		return &ContractError{Path: path, Err: err}
	}
	return nil
}

// call sends req and decodes the envelope's data into T. An empty body
// yields the zero value.
func call[T any](ctx context.Context, c *Client, req request) (T, error) {
	var out T

	resp, err := c.send(ctx, req)
	if err != nil {
		return out, err
	}
	if isEmptyBody(resp) {
		return out, nil
	}

	data, _, err := c.unwrap(req, resp)
	if err != nil {
		return out, err
	}
	if err := c.decodeInto(req, resp, data, &out); err != nil {
		return out, err
	}
	if data != nil {
		if err := checkContract(req.path, &out); err != nil {
			return out, err
		}
	}
	return out, nil
}

// callPtr is call for single entities. An empty body yields nil.
func callPtr[T any](ctx context.Context, c *Client, req request) (*T, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if isEmptyBody(resp) {
		return nil, nil
	}

	data, _, err := c.unwrap(req, resp)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	out := new(T)
	if err := c.decodeInto(req, resp, data, out); err != nil {
		return nil, err
	}
	if err := checkContract(req.path, out); err != nil {
		return nil, err
	}
	return out, nil
}

// callPage sends req and decodes a paginated list. Lists arrive either as
// a bare array in data, or as data.items with data.pagination.
func callPage[T any](ctx context.Context, c *Client, req request) (*Page[T], error) {
	page := &Page[T]{Items: []T{}}

	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if isEmptyBody(resp) {
		return page, nil
	}

	data, pagination, err := c.unwrap(req, resp)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var nested struct {
			Items      []T         `json:"items"`
			Pagination *Pagination `json:"pagination"`
		}
		if err := c.decodeInto(req, resp, trimmed, &nested); err != nil {
			return nil, err
		}
		if nested.Items != nil {
			page.Items = nested.Items
		}
		if nested.Pagination != nil {
			pagination = nested.Pagination
		}
	} else if err := c.decodeInto(req, resp, trimmed, &page.Items); err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []T{}
	}

	if pagination != nil {
		page.Pagination = *pagination
	} else {
		page.Pagination = Pagination{Page: 1, Limit: len(page.Items), Total: len(page.Items), TotalPages: 1}
	}
	return page, nil
}

// callNoContent sends req and discards any body.
func callNoContent(ctx context.Context, c *Client, req request) error {
	_, err := c.send(ctx, req)
	return err
}

// ============================================================================
// Query helpers
// ============================================================================

// query accumulates camel-cased query parameters, skipping zero values.
type query url.Values

func (q query) str(key, v string) query {
	if v != "" {
		url.Values(q).Set(camelKey(key), v)
	}
	return q
}

func (q query) num(key string, v int) query {
	if v > 0 {
		url.Values(q).Set(camelKey(key), strconv.Itoa(v))
	}
	return q
}

func (q query) flag(key string, v *bool) query {
	if v != nil {
		url.Values(q).Set(camelKey(key), strconv.FormatBool(*v))
	}
	return q
}

func (q query) decimal(key string, v *float64) query {
	if v != nil {
		url.Values(q).Set(camelKey(key), strconv.FormatFloat(*v, 'f', -1, 64))
	}
	return q
}

func (q query) values() url.Values { return url.Values(q) }

// camelKey converts snake_case and kebab-case keys to camelCase. Keys that
// are already camelCase pass through.
func camelKey(key string) string {
	if !strings.ContainsAny(key, "_-") {
		return key
	}

	var b strings.Builder
	b.Grow(len(key))
	upper := false
	for _, r := range key {
		if r == '_' || r == '-' {
			upper = b.Len() > 0
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escape makes an ID safe for a path segment.
func escape(id string) string { return url.PathEscape(id) }
