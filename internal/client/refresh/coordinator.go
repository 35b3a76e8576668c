// Package refresh implements single-flight credential refresh.
//
// The first caller to ask for a refresh while none is running becomes the
// leader and performs the one network call. Callers arriving while the call
// is in flight queue up as followers and receive the leader's outcome. The
// queue is drained, in arrival order, before the next round may start.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/lecom/internal/client/credentials"
	"github.com/dmitrijs2005/lecom/internal/common"
	"github.com/dmitrijs2005/lecom/internal/logging"
	"github.com/dmitrijs2005/lecom/internal/metrics"
)

const DefaultTimeout = 10 * time.Second

type State int

const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Refresher exchanges a refresh token for a new pair. It is called by the
// leader only, at most once per round.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken, subjectID string) (TokenPair, error)
}

type result struct {
	token string
	err   error
}

type Coordinator struct {
	store     credentials.Store
	refresher Refresher
	timeout   time.Duration
	logger    logging.Logger
	metrics   *metrics.Metrics

	mu      sync.Mutex
	state   State
	waiters []chan result
}

type Option func(*Coordinator)

// WithTimeout bounds the leader's network call.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

func WithLogger(l logging.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func NewCoordinator(store credentials.Store, refresher Refresher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		refresher: refresher,
		timeout:   DefaultTimeout,
		logger:    logging.Discard(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Refresh returns a fresh access token, joining the in-flight round if there
// is one. On failure the store has been cleared and the error matches both
// common.ErrRefreshFailed and common.ErrUnauthenticated.
//
// A follower whose ctx ends stops waiting and gets ctx.Err(); the round still
// completes for everyone else. The leader's network call is not cancelled by
// its caller's ctx since followers depend on it.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state == StateRefreshing {
		ch := make(chan result, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		c.metrics.RefreshCoalesced()

		select {
		case r := <-ch:
			return r.token, r.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.state = StateRefreshing
	c.mu.Unlock()

	// pre-set so followers are released with an error if the leader panics
	r := result{err: fmt.Errorf("%w: %w: aborted", common.ErrRefreshFailed, common.ErrUnauthenticated)}
	defer func() {
		c.mu.Lock()
		for _, ch := range c.waiters {
			ch <- r
		}
		c.waiters = nil
		c.state = StateIdle
		c.mu.Unlock()
	}()

	r.token, r.err = c.lead(context.WithoutCancel(ctx))
	return r.token, r.err
}

func (c *Coordinator) lead(ctx context.Context) (string, error) {
	cred := c.store.Get()
	if cred.RefreshToken == "" || cred.SubjectID == "" {
		c.metrics.Refresh(metrics.RefreshSkipped)
		c.logger.Warn(ctx, "refresh.skip", "reason", "no refresh token")
		return "", c.fail(ctx, common.ErrNoRefreshToken)
	}

	c.logger.Debug(ctx, "refresh.start", "subject_id", cred.SubjectID)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	pair, err := c.refresher.Refresh(callCtx, cred.RefreshToken, cred.SubjectID)
	cancel()
	if err != nil {
		c.metrics.Refresh(metrics.RefreshFailure)
		c.logger.Warn(ctx, "refresh.fail", "error", err)
		return "", c.fail(ctx, err)
	}

	next := credentials.Credential{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		SubjectID:    cred.SubjectID,
	}
	if err := c.store.Set(ctx, next); err != nil {
		c.metrics.Refresh(metrics.RefreshFailure)
		c.logger.Error(ctx, "refresh.store", "error", err)
		return "", c.fail(ctx, err)
	}

	c.metrics.Refresh(metrics.RefreshSuccess)
	c.logger.Info(ctx, "refresh.ok", "subject_id", cred.SubjectID)
	return pair.AccessToken, nil
}

// fail logs the session out and wraps cause for the callers.
func (c *Coordinator) fail(ctx context.Context, cause error) error {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error(ctx, "refresh.logout", "error", err)
	}
	return fmt.Errorf("%w: %w: %w", common.ErrRefreshFailed, common.ErrUnauthenticated, cause)
}
