package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/lecom/internal/client/credentials"
	"github.com/dmitrijs2005/lecom/internal/common"
	"github.com/dmitrijs2005/lecom/internal/logging"
	"github.com/dmitrijs2005/lecom/internal/metrics"
)

const (
	DefaultTimeout = 10 * time.Second

	maxBodySize = 16 << 20
)

// TokenRefresher is implemented by *refresh.Coordinator.
type TokenRefresher interface {
	Refresh(ctx context.Context) (string, error)
}

type Pipeline struct {
	baseURL   *url.URL
	http      *http.Client
	store     credentials.Store
	refresher TokenRefresher
	logger    logging.Logger
	metrics   *metrics.Metrics
}

type Option func(*Pipeline)

// WithHTTPClient replaces the default client. Its Timeout is the per-call
// ceiling.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) { p.http = c }
}

func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.http = &http.Client{Timeout: d} }
}

func WithLogger(l logging.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func New(baseURL string, store credentials.Store, refresher TokenRefresher, opts ...Option) (*Pipeline, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	p := &Pipeline{
		baseURL:   u,
		http:      &http.Client{Timeout: DefaultTimeout},
		store:     store,
		refresher: refresher,
		logger:    logging.Discard(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Send dispatches req with the current access token. A 401 on the first
// attempt triggers one refresh and one retry with the refreshed token; a 401
// on the retry is final.
func (p *Pipeline) Send(ctx context.Context, req *Request) (*Response, error) {
	requestID := uuid.NewString()
	log := p.logger.With("method", req.Method, "path", req.Path, "request_id", requestID)

	var token string
	if !req.SkipAuth {
		token = p.store.Get().AccessToken
	}

	resp, err := p.dispatch(ctx, req, token, requestID)
	if err != nil {
		p.metrics.Request(metrics.OutcomeUnavailable)
		log.Warn(ctx, "pipeline.transport", "error", err)
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || req.SkipAuth {
		return p.finish(req, resp, nil)
	}

	log.Debug(ctx, "pipeline.unauthorized")

	fresh, rerr := p.refresher.Refresh(ctx)
	if rerr == nil && fresh == "" {
		rerr = common.ErrUnauthenticated
	}
	if rerr != nil {
		log.Info(ctx, "pipeline.refresh_failed", "error", rerr)
		return p.finish(req, resp, rerr)
	}

	p.metrics.Retry()
	log.Debug(ctx, "pipeline.retry")

	resp, err = p.dispatch(ctx, req, fresh, requestID)
	if err != nil {
		p.metrics.Request(metrics.OutcomeUnavailable)
		log.Warn(ctx, "pipeline.transport", "error", err, "retry", true)
		return nil, err
	}
	return p.finish(req, resp, nil)
}

func (p *Pipeline) finish(req *Request, resp *Response, cause error) (*Response, error) {
	if cause == nil && resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		p.metrics.Request(metrics.OutcomeOK)
		return resp, nil
	}

	if resp.StatusCode == http.StatusUnauthorized {
		p.metrics.Request(metrics.OutcomeAuthFailed)
	} else {
		p.metrics.Request(metrics.OutcomeHTTPError)
	}
	return nil, &StatusError{
		Method:     req.Method,
		Path:       req.Path,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		cause:      cause,
	}
}

func (p *Pipeline) dispatch(ctx context.Context, req *Request, token, requestID string) (*Response, error) {
	u := p.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	hr, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, err
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}
	hr.Header.Set("Accept", "application/json")
	if req.Body != nil && hr.Header.Get("Content-Type") == "" {
		hr.Header.Set("Content-Type", "application/json")
	}
	hr.Header.Set(common.RequestIDHeaderName, requestID)
	if token != "" {
		hr.Header.Set(common.AuthorizationHeaderName, common.BearerValue(token))
	}

	resp, err := p.http.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %w", req.Method, req.Path, common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w: %w", req.Method, req.Path, common.ErrUnavailable, err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}
