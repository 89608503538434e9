package rtdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// RESTStore speaks the Firebase-style JSON dialect: every subtree is a
// document at {base}/{path}.json, PATCH against the root performs the
// multi-path update, and range queries are query parameters with
// JSON-encoded values.
type RESTStore struct {
	baseURL string
	secret  string
	http    *fasthttp.Client

	defaultTimeout time.Duration
}

type RESTOption func(*RESTStore)

func WithTimeout(d time.Duration) RESTOption {
	return func(s *RESTStore) { s.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) RESTOption {
	return func(s *RESTStore) { s.http.MaxConnsPerHost = n }
}

func NewRESTStore(baseURL, secret string, opts ...RESTOption) (*RESTStore, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("store base URL is required")
	}
	s := &RESTStore{
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		secret:         strings.TrimSpace(secret),
		http:           &fasthttp.Client{ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RESTStore) Get(ctx context.Context, path string) (any, error) {
	return s.do(ctx, fasthttp.MethodGet, path, nil, nil)
}

func (s *RESTStore) Put(ctx context.Context, path string, value any) error {
	_, err := s.do(ctx, fasthttp.MethodPut, path, value, nil)
	return err
}

func (s *RESTStore) Patch(ctx context.Context, path string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	payload := make(map[string]any, len(updates))
	for k, v := range updates {
		if IsRemove(v) {
			// the wire form of a subtree delete is an explicit null
			payload[cleanPath(k)] = nil
			continue
		}
		payload[cleanPath(k)] = v
	}
	_, err := s.do(ctx, fasthttp.MethodPatch, path, payload, nil)
	return err
}

func (s *RESTStore) Delete(ctx context.Context, path string) error {
	_, err := s.do(ctx, fasthttp.MethodDelete, path, nil, nil)
	return err
}

func (s *RESTStore) QueryChildren(ctx context.Context, path string, q Query) (map[string]any, error) {
	params := url.Values{}
	ob, err := json.Marshal(q.OrderBy)
	if err != nil {
		return nil, fmt.Errorf("encode orderBy: %w", err)
	}
	params.Set("orderBy", string(ob))
	if q.LimitToFirst > 0 {
		params.Set("limitToFirst", strconv.Itoa(q.LimitToFirst))
	}
	if q.EqualTo != nil {
		raw, err := json.Marshal(q.EqualTo)
		if err != nil {
			return nil, fmt.Errorf("encode equalTo: %w", err)
		}
		params.Set("equalTo", string(raw))
	}
	if q.EndAt != nil {
		raw, err := json.Marshal(q.EndAt)
		if err != nil {
			return nil, fmt.Errorf("encode endAt: %w", err)
		}
		params.Set("endAt", string(raw))
	}

	out, err := s.do(ctx, fasthttp.MethodGet, path, nil, params)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	return m, nil
}

func (s *RESTStore) ShallowKeys(ctx context.Context, path string) ([]string, error) {
	params := url.Values{}
	params.Set("shallow", "true")
	out, err := s.do(ctx, fasthttp.MethodGet, path, nil, params)
	if err != nil {
		return nil, err
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *RESTStore) Close() error { return nil }

func (s *RESTStore) restURL(path string, params url.Values) string {
	p := cleanPath(path)
	var b strings.Builder
	b.WriteString(s.baseURL)
	b.WriteString("/")
	if p != "" {
		b.WriteString(p)
	}
	b.WriteString(".json")
	sep := "?"
	if s.secret != "" {
		b.WriteString("?auth=")
		b.WriteString(url.QueryEscape(s.secret))
		sep = "&"
	}
	if len(params) > 0 {
		b.WriteString(sep)
		b.WriteString(params.Encode())
	}
	return b.String()
}

func (s *RESTStore) do(ctx context.Context, method, path string, in any, params url.Values) (any, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(s.restURL(path, params))
	req.Header.SetContentType("application/json")

	if in != nil || method == fasthttp.MethodPatch || method == fasthttp.MethodPut {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	if err := s.http.DoDeadline(req, resp, s.computeDeadline(ctx)); err != nil {
		return nil, fmt.Errorf("store request failed: %w", err)
	}

	status := resp.StatusCode()
	if status == fasthttp.StatusNotFound {
		return nil, nil
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("store error: status=%d body=%s", status, truncate(string(resp.Body()), 512))
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func (s *RESTStore) computeDeadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(s.defaultTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
