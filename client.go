package oauthclient

import (
	"log/slog"
	"sync"
	"time"
)

// Client drives the authorization flow state machine and the background
// token refresh scheduler for a single logical login. All exported
// methods are safe to call from any goroutine.
//
// State changes happen under Client.mu, but subscriber callbacks and
// side effects (network calls, timer arming, storage writes) always run
// after the lock is released — this is the Go translation of running the
// whole state machine on a single designated thread without the
// reentrancy hazard a literal single-goroutine run loop would introduce.
type Client struct {
	mu sync.Mutex

	state     State
	flow      *flowState
	config    Config
	requestCookie int

	subscribers map[int]func(State)
	nextSubID   int

	storage    Storage
	networking Networking

	timeSource   TimeSource
	timerService TimerService

	eagerRefreshInterval time.Duration
	backoffMin           time.Duration
	backoffMax           time.Duration
	backoffCtl           *eagerBackOff
	waitingAfterError    bool
	refreshTimer         Timer

	logger *slog.Logger
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithTimeSource overrides the clock used for expiry and back-off
// computations. Tests typically pass a ScaledTimeSource.
func WithTimeSource(ts TimeSource) ClientOption {
	return func(c *Client) { c.timeSource = ts }
}

// WithTimerService overrides how one-shot scheduled work is run.
func WithTimerService(ts TimerService) ClientOption {
	return func(c *Client) { c.timerService = ts }
}

// WithEagerRefreshInterval sets how long before expiry a healthy access
// token is proactively refreshed. Default is 120 seconds.
func WithEagerRefreshInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.eagerRefreshInterval = d }
}

// WithBackoffBounds sets the minimum and maximum refresh retry delay.
// Defaults are 1 second and 2 hours.
func WithBackoffBounds(min, max time.Duration) ClientOption {
	return func(c *Client) { c.backoffMin, c.backoffMax = min, max }
}

// WithLogger overrides the structured logger used for non-fatal warnings.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a Client against the given Storage and Networking
// ports. storage and networking must not be nil.
func NewClient(storage Storage, networking Networking, opts ...ClientOption) *Client {
	c := &Client{
		state:                idleState(),
		subscribers:          make(map[int]func(State)),
		storage:              storage,
		networking:           networking,
		timeSource:           NewSystemTimeSource(),
		timerService:         NewRealTimerService(),
		eagerRefreshInterval: 120 * time.Second,
		backoffMin:           1 * time.Second,
		backoffMax:           2 * time.Hour,
		logger:               slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a snapshot of the current flow state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn to be called, synchronously, every time the
// state changes (including the state assignment that happens inside the
// call that triggered it). Callbacks must not block.
func (c *Client) Subscribe(fn func(State)) *Subscription {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return &Subscription{unsubscribe: func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}}
}

func (c *Client) snapshotSubscribersLocked() []func(State) {
	out := make([]func(State), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		out = append(out, fn)
	}
	return out
}

// transition runs mutate under the lock. mutate returns the new state
// (nil to leave the state unchanged entirely, not even re-notifying) and
// an optional after() closure to run once the lock is released, for any
// side effect that must not happen while c.mu is held.
func (c *Client) transition(mutate func() (*State, func())) {
	c.mu.Lock()
	newState, after := mutate()
	if newState == nil {
		c.mu.Unlock()
		if after != nil {
			after()
		}
		return
	}
	c.state = *newState
	subs := c.snapshotSubscribersLocked()
	c.mu.Unlock()

	for _, fn := range subs {
		fn(*newState)
	}
	if after != nil {
		after()
	}
}

// transitionIfLive is transition guarded by a request cookie: if cookie
// no longer matches c.requestCookie, some newer operation has superseded
// the one that's completing, so the result is dropped silently.
func (c *Client) transitionIfLive(cookie int, mutate func() (*State, func())) {
	c.transition(func() (*State, func()) {
		if cookie != c.requestCookie {
			return nil, nil
		}
		return mutate()
	})
}

// bumpCookieLocked invalidates any in-flight async operation awaiting the
// previous cookie value. c.mu must already be held.
func (c *Client) bumpCookieLocked() int {
	c.requestCookie++
	return c.requestCookie
}

func (c *Client) stopRefreshTimerLocked() {
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
}

// Cancel is valid in every state except authorized, where it is a no-op
// (use End to log out instead). Everywhere else it transitions to
// cancelled — even from idle, failed, or an already-cancelled state,
// firing the change notification regardless of whether the value actually
// changed — and bumps the request cookie so any outstanding token-endpoint
// request is invalidated.
func (c *Client) Cancel() {
	c.transition(func() (*State, func()) {
		if c.state.Tag == StateAuthorized {
			return nil, nil
		}
		c.bumpCookieLocked()
		c.stopRefreshTimerLocked()
		c.flow = nil
		s := cancelledState()
		return &s, nil
	})
}

// End logs out: while authorized it stops any pending refresh timer,
// enters cancelled, and then deletes the stored credentials for the
// current client identifier. In every other state it behaves exactly like
// Cancel.
func (c *Client) End() {
	c.transition(func() (*State, func()) {
		cookie := c.bumpCookieLocked()
		c.stopRefreshTimerLocked()
		c.flow = nil

		if c.state.Tag != StateAuthorized {
			s := cancelledState()
			return &s, nil
		}

		clientID := c.config.ClientIdentifier
		s := cancelledState()
		after := func() {
			if err := c.storage.Delete(clientID); err != nil {
				c.logger.Warn("oauthclient: failed to delete stored credentials on end",
					"client_id", clientID, "cookie", cookie, "error", err)
			}
		}
		return &s, after
	})
}
