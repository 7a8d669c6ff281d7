package oauthclient

import "net/url"

// StateTag names one node of the flow state machine.
type StateTag int

const (
	StateIdle StateTag = iota
	StateAuthorizing
	StateFetchingToken
	StateAuthorized
	StateFailed
	StateCancelled
)

func (t StateTag) String() string {
	switch t {
	case StateIdle:
		return "idle"
	case StateAuthorizing:
		return "authorizing"
	case StateFetchingToken:
		return "fetchingToken"
	case StateAuthorized:
		return "authorized"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// State is a snapshot of the flow state machine. Only the fields relevant
// to Tag are meaningful; the rest are zero.
type State struct {
	Tag StateTag

	// Set during StateAuthorizing: the URL the host should open in a
	// browser, and the redirect URL it should be waiting for.
	AuthorizingURL         *url.URL
	AuthorizingRedirectURL *url.URL

	// Set during StateFailed.
	Err error

	// Set during StateAuthorized.
	Credentials *Credentials
	// Refreshing is true while an authorized state's credentials have
	// expired and a refresh is under way, or while a failed refresh waits
	// out its back-off. An eager refresh issued before expiry leaves it
	// false.
	Refreshing bool
}

func idleState() State {
	return State{Tag: StateIdle}
}

func authorizingState(authURL, redirectURL *url.URL) State {
	return State{Tag: StateAuthorizing, AuthorizingURL: authURL, AuthorizingRedirectURL: redirectURL}
}

func fetchingTokenState() State {
	return State{Tag: StateFetchingToken}
}

func failedState(err error) State {
	return State{Tag: StateFailed, Err: err}
}

func cancelledState() State {
	return State{Tag: StateCancelled}
}

func authorizedState(creds Credentials, refreshing bool) State {
	return State{Tag: StateAuthorized, Credentials: &creds, Refreshing: refreshing}
}

// Subscription is a handle returned by Client.Subscribe. Unsubscribe is
// idempotent and safe to call from within the subscriber callback itself.
type Subscription struct {
	unsubscribe func()
}

// Unsubscribe stops this subscription from receiving further state
// changes.
func (s *Subscription) Unsubscribe() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}
