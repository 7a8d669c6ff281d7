package oauthclient

import (
	"encoding/json"
	"time"
)

// computeAuthorizedTransitionLocked classifies freshly obtained or
// restored Credentials and decides what the token lifecycle manager
// should do next: go authorized with no timer, go authorized and kick off
// an immediate refresh, go authorized and arm an eager-refresh timer, go
// authorized and arm a plain expiry check, or fail outright. c.mu must
// already be held; the returned after() closure performs the actual
// storage write and timer arming once the caller releases the lock.
func (c *Client) computeAuthorizedTransitionLocked(creds Credentials, cookie int) (*State, func()) {
	hasTokenEndpoint := c.config.HasTokenEndpoint()
	refreshable := creds.CanBeRefreshed(hasTokenEndpoint)
	expiry := creds.EarliestExpirationDate()

	if expiry == nil {
		s := authorizedState(creds, false)
		return &s, func() { c.persistCredentials(creds) }
	}

	remaining := c.timeSource.IntervalFromNowTo(*expiry)

	if remaining <= 0 {
		if !refreshable {
			s := failedState(newRefreshError(true, "access token has expired and cannot be refreshed", nil))
			return &s, nil
		}
		s := authorizedState(creds, true)
		return &s, func() {
			c.persistCredentials(creds)
			c.performRefresh(cookie, creds)
		}
	}

	if refreshable {
		eager := remaining - c.eagerRefreshInterval
		if eager < 0 {
			eager = 0
		}
		s := authorizedState(creds, false)
		return &s, func() {
			c.persistCredentials(creds)
			c.armRefreshTimer(cookie, eager)
		}
	}

	s := authorizedState(creds, false)
	return &s, func() {
		c.persistCredentials(creds)
		c.armExpiryTimer(cookie, remaining)
	}
}

func (c *Client) persistCredentials(creds Credentials) {
	blob, err := json.Marshal(creds)
	if err != nil {
		c.logger.Warn("failed to encode credentials for storage", "client_id", c.config.ClientIdentifier, "error", err)
		return
	}
	if err := c.storage.Put(c.config.ClientIdentifier, blob); err != nil {
		c.logger.Warn("failed to persist credentials", "client_id", c.config.ClientIdentifier, "error", err)
	}
}

func (c *Client) armRefreshTimer(cookie int, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cookie != c.requestCookie {
		return
	}
	c.stopRefreshTimerLocked()
	c.refreshTimer = c.timerService.Schedule(d, func() {
		c.mu.Lock()
		var creds *Credentials
		if cookie == c.requestCookie && c.state.Credentials != nil {
			creds = c.state.Credentials
		}
		c.mu.Unlock()
		if creds != nil {
			c.performRefresh(cookie, *creds)
		}
	})
}

func (c *Client) armExpiryTimer(cookie int, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cookie != c.requestCookie {
		return
	}
	c.stopRefreshTimerLocked()
	c.refreshTimer = c.timerService.Schedule(d, func() {
		c.onExpiryCheck(cookie)
	})
}

func (c *Client) onExpiryCheck(cookie int) {
	c.transitionIfLive(cookie, func() (*State, func()) {
		s := failedState(newRefreshError(true, "access token expired and cannot be refreshed", nil))
		return &s, nil
	})
}

func (c *Client) performRefresh(cookie int, creds Credentials) {
	if creds.RefreshToken == nil || *creds.RefreshToken == "" {
		return
	}
	req := buildRefreshRequest(c.config, *creds.RefreshToken)
	fs := &flowState{config: c.config, responseType: creds.ResponseType, scope: creds.Scope}
	c.networking.PerformTokenRequest(req, func(result map[string]any, err error) {
		c.onRefreshResult(cookie, fs, creds, result, err)
	})
}

func (c *Client) onRefreshResult(cookie int, fs *flowState, prevCreds Credentials, result map[string]any, err error) {
	c.transitionIfLive(cookie, func() (*State, func()) {
		if err != nil {
			s := authorizedState(prevCreds, true)
			return &s, func() { c.scheduleBackoffRetry(cookie, prevCreds) }
		}

		if errCode, ok := stringField(result, "error"); ok {
			desc, _ := stringField(result, "error_description")
			s := failedState(newRefreshOAuthError(errCode, desc))
			return &s, func() {
				if delErr := c.storage.Delete(c.config.ClientIdentifier); delErr != nil {
					c.logger.Warn("failed to delete credentials after a permanent refresh error", "client_id", c.config.ClientIdentifier, "error", delErr)
				}
			}
		}

		newCreds, cerr := extractCredentialsFromResult(result, fs, c.timeSource, tokenEndpointSource)
		if cerr != nil {
			// Local extraction failure: the server never declared an
			// error, so credentials are not deleted — only a server
			// declared OAuth error does that.
			s := failedState(newRefreshError(true, "refresh response could not be parsed", cerr))
			return &s, nil
		}

		if newCreds.RefreshToken == nil {
			newCreds.RefreshToken = prevCreds.RefreshToken
		}
		if c.backoffCtl != nil {
			c.backoffCtl.Reset()
		}
		c.waitingAfterError = false

		return c.computeAuthorizedTransitionLocked(newCreds, cookie)
	})
}

func (c *Client) scheduleBackoffRetry(cookie int, creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cookie != c.requestCookie {
		return
	}
	if c.backoffCtl == nil {
		c.backoffCtl = newEagerBackOff(c.backoffMin, c.backoffMax)
	}
	d := c.backoffCtl.NextBackOff()
	c.waitingAfterError = true
	c.stopRefreshTimerLocked()
	c.refreshTimer = c.timerService.Schedule(d, func() {
		c.performRefresh(cookie, creds)
	})
}

// NudgeToRefresh preempts the current back-off wait and retries the
// refresh immediately. It has no effect unless the client is authorized
// and currently marked as refreshing. In that state it always resets the
// back-off so the next retry delay starts again from the minimum; it only
// issues a refresh request when the client is waiting out a back-off delay
// (as opposed to a request already being in flight).
func (c *Client) NudgeToRefresh() {
	c.transition(func() (*State, func()) {
		if c.state.Tag != StateAuthorized || !c.state.Refreshing {
			return nil, nil
		}
		if c.backoffCtl != nil {
			c.backoffCtl.Reset()
		}
		if !c.waitingAfterError {
			return nil, nil
		}
		c.waitingAfterError = false
		c.stopRefreshTimerLocked()
		cookie := c.requestCookie
		creds := *c.state.Credentials
		return nil, func() { c.performRefresh(cookie, creds) }
	})
}
