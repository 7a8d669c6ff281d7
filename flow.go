package oauthclient

import (
	crand "crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// flowState is the bookkeeping a single Start call accumulates: enough to
// validate the eventual redirect and, on success, to classify and persist
// the resulting Credentials. It is discarded once the flow leaves
// authorizing/fetchingToken.
type flowState struct {
	config       Config
	mode         Mode
	scope        ScopeSet
	responseType ResponseTypeSet
	stateString  string
	nonceString  string
	flowID       string
}

// tokenSource distinguishes where a set of token-shaped claims came from,
// since the two sources trust different fields (an implicit-flow redirect
// never carries a refresh token worth keeping, see extractCredentialsFromResult).
type tokenSource int

const (
	tokenEndpointSource tokenSource = iota
	authorizationEndpointSource
)

// generateRandomToken returns a 168-bit, URL-safe, base64-encoded random
// value suitable for use as an OAuth state or OIDC nonce.
func generateRandomToken() (string, error) {
	buf := make([]byte, 21)
	if _, err := crand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// buildAuthorizationURL renders the authorization request URL for cfg,
// preserving any query parameters already present on
// cfg.AuthorizationEndpoint.
func buildAuthorizationURL(cfg Config, responseType ResponseTypeSet, scope ScopeSet, stateStr, nonceStr string) (*url.URL, error) {
	if cfg.AuthorizationEndpoint == nil {
		return nil, newConfigError("authorization endpoint is required")
	}
	if cfg.ClientIdentifier == "" {
		return nil, newConfigError("client identifier is required")
	}
	if cfg.RedirectURL == nil {
		return nil, newConfigError("redirect url is required")
	}

	pairs := []queryPair{
		{Key: "response_type", Value: responseType.SpaceJoinedSortedLower()},
		{Key: "client_id", Value: cfg.ClientIdentifier},
		{Key: "redirect_uri", Value: cfg.RedirectURL.String()},
	}
	if len(scope) > 0 {
		pairs = append(pairs, queryPair{Key: "scope", Value: scope.SpaceJoined()})
	}
	pairs = append(pairs, queryPair{Key: "state", Value: stateStr})
	if responseType.Contains(ResponseTypeIDToken) {
		pairs = append(pairs, queryPair{Key: "nonce", Value: nonceStr})
	}
	if cfg.Display != "" {
		pairs = append(pairs, queryPair{Key: "display", Value: string(cfg.Display)})
	}
	if len(cfg.Prompts) > 0 {
		toks := make([]string, len(cfg.Prompts))
		for i, p := range cfg.Prompts {
			toks[i] = string(p)
		}
		pairs = append(pairs, queryPair{Key: "prompt", Value: strings.Join(toks, " ")})
	}

	return AppendToQuery(cfg.AuthorizationEndpoint, pairs), nil
}

// extractRedirectParams flattens both the query and the fragment of a
// redirect URL into a single map. Authorization-code responses arrive in
// the query, implicit-flow responses in the fragment, and error responses
// have been observed in either depending on the server, so both are
// merged with the fragment taking precedence on key collisions.
func extractRedirectParams(u *url.URL) map[string]string {
	merged := ParseQueryMap(u.RawQuery)
	for k, v := range ParseQueryMap(u.Fragment) {
		merged[k] = v
	}
	return merged
}

// extractCredentialsFromResult applies the token-response validation rules
// to a decoded JSON object, regardless of whether it came from a token
// endpoint POST or directly off an implicit-flow redirect.
func extractCredentialsFromResult(result map[string]any, fs *flowState, ts TimeSource, source tokenSource) (Credentials, error) {
	if errCode, ok := stringField(result, "error"); ok {
		desc, _ := stringField(result, "error_description")
		if source == tokenEndpointSource {
			return Credentials{}, newTokenExchangeOAuthError(errCode, desc)
		}
		return Credentials{}, newAuthorizationError(errCode, desc)
	}

	responseType := fs.responseType
	wantsAccessToken := responseType.Contains(ResponseTypeCode) || responseType.Contains(ResponseTypeToken)
	wantsIDToken := responseType.Contains(ResponseTypeIDToken)

	var creds Credentials
	creds.ResponseType = responseType

	if wantsAccessToken {
		accessToken, hasAccessToken := stringField(result, "access_token")
		if !hasAccessToken {
			return Credentials{}, newTokenExchangeError("token response missing access_token", nil)
		}
		tokenType, hasTokenType := stringField(result, "token_type")
		if !hasTokenType {
			return Credentials{}, newTokenExchangeError("token response missing token_type", nil)
		}
		if !strings.EqualFold(tokenType, "bearer") {
			return Credentials{}, newTokenExchangeError(fmt.Sprintf("unsupported token_type %q", tokenType), nil)
		}
		if _, present := result["expires_in"]; present {
			expiresIn, ok := numericField(result, "expires_in")
			if !ok || expiresIn < 0 {
				return Credentials{}, newTokenExchangeError("token response has invalid expires_in", nil)
			}
			expiresAt := ts.Now().Add(time.Duration(expiresIn) * time.Second)
			creds.AccessTokenExpiresAt = &expiresAt
		}
		creds.AccessToken = &accessToken

		// A refresh token is only trusted when it comes from the token
		// endpoint; one riding along on an implicit-flow redirect is not
		// something the issuing server actually intended to hand out.
		if source == tokenEndpointSource {
			if rt, ok := stringField(result, "refresh_token"); ok {
				creds.RefreshToken = &rt
			}
		}
	}

	if wantsIDToken {
		idTokenRaw, ok := stringField(result, "id_token")
		if !ok {
			return Credentials{}, newTokenExchangeError("token response missing id_token", nil)
		}
		idt, err := ParseIDToken(idTokenRaw)
		if err != nil {
			return Credentials{}, err
		}
		if source == authorizationEndpointSource && fs.nonceString != "" {
			nonce, hasNonce := idt.Nonce()
			if !hasNonce || nonce != fs.nonceString {
				return Credentials{}, newTokenExchangeError("id token nonce does not match the request nonce", nil)
			}
		}
		creds.IDToken = idt
	}

	if scopeStr, hasScope := stringField(result, "scope"); hasScope {
		if scopeStr == "" {
			return Credentials{}, newTokenExchangeError("token response has empty scope", nil)
		}
		creds.Scope = ParseScopeString(scopeStr)
	} else {
		creds.Scope = fs.scope
	}

	return creds, nil
}

func basicAuthHeader(clientIdentifier, clientSecret string) string {
	raw := clientIdentifier + ":" + clientSecret
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

func buildTokenExchangeRequest(cfg Config, code string) TokenRequest {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", cfg.RedirectURL.String())

	headers := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	if cfg.ClientSecret != "" {
		headers["Authorization"] = basicAuthHeader(cfg.ClientIdentifier, cfg.ClientSecret)
	} else {
		form.Set("client_id", cfg.ClientIdentifier)
	}

	return TokenRequest{Method: "POST", URL: cfg.TokenEndpoint, Headers: headers, Body: []byte(form.Encode())}
}

func buildRefreshRequest(cfg Config, refreshToken string) TokenRequest {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	headers := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	if cfg.ClientSecret != "" {
		headers["Authorization"] = basicAuthHeader(cfg.ClientIdentifier, cfg.ClientSecret)
	} else {
		form.Set("client_id", cfg.ClientIdentifier)
	}

	return TokenRequest{Method: "POST", URL: cfg.TokenEndpoint, Headers: headers, Body: []byte(form.Encode())}
}

// Start begins a new flow attempt. It first tries to reuse a previously
// stored session for cfg.ClientIdentifier; failing that, ModeInteractive
// transitions to StateAuthorizing with a URL the host should open in a
// browser, while ModeSilent gives up and transitions to StateCancelled
// without any user interaction.
func (c *Client) Start(cfg Config, mode Mode, scope ScopeSet, responseType ResponseTypeSet) {
	c.transition(func() (*State, func()) {
		cookie := c.bumpCookieLocked()
		c.stopRefreshTimerLocked()
		c.config = cfg
		c.flow = nil

		stateStr, err := generateRandomToken()
		if err != nil {
			s := failedState(newConfigError("failed to generate state parameter"))
			return &s, nil
		}
		var nonceStr string
		if responseType.Contains(ResponseTypeIDToken) {
			nonceStr, err = generateRandomToken()
			if err != nil {
				s := failedState(newConfigError("failed to generate nonce parameter"))
				return &s, nil
			}
		}
		c.flow = &flowState{
			config:       cfg,
			mode:         mode,
			scope:        scope,
			responseType: responseType,
			stateString:  stateStr,
			nonceString:  nonceStr,
			flowID:       uuid.NewString(),
		}

		if creds, reusable := c.tryReuseStoredCredentialsLocked(cfg, scope, responseType); reusable {
			c.flow = nil
			return c.computeAuthorizedTransitionLocked(creds, cookie)
		}

		if mode == ModeSilent {
			c.flow = nil
			s := cancelledState()
			return &s, nil
		}

		return c.startInteractiveLocked(cfg, responseType, scope, stateStr, nonceStr)
	})
}

// tryReuseStoredCredentialsLocked implements the storage-reuse step that
// precedes every Start call, interactive or silent: a matching, still
// usable session short-circuits the whole authorization round trip.
func (c *Client) tryReuseStoredCredentialsLocked(cfg Config, requestedScope ScopeSet, responseType ResponseTypeSet) (Credentials, bool) {
	blob, err := c.storage.Get(cfg.ClientIdentifier)
	if err != nil {
		c.logger.Warn("storage read failed, treating session as absent", "client_id", cfg.ClientIdentifier, "error", err)
		return Credentials{}, false
	}
	if len(blob) == 0 {
		return Credentials{}, false
	}

	var creds Credentials
	if err := json.Unmarshal(blob, &creds); err != nil {
		c.logger.Warn("stored credentials are malformed, treating session as absent", "client_id", cfg.ClientIdentifier, "error", err)
		return Credentials{}, false
	}

	if !creds.ResponseType.Equal(responseType) {
		return Credentials{}, false
	}

	if expiry := creds.EarliestExpirationDate(); expiry != nil {
		remaining := c.timeSource.IntervalFromNowTo(*expiry)
		if remaining <= 0 && !creds.CanBeRefreshed(cfg.HasTokenEndpoint()) {
			// expired, and there is no way to refresh: not reusable.
			return Credentials{}, false
		}
	}

	if !creds.Scope.IsSupersetOf(requestedScope) {
		c.logger.Warn("stored credentials have a narrower scope than requested, reusing anyway",
			"client_id", cfg.ClientIdentifier, "stored_scope", creds.Scope.SpaceJoined(), "requested_scope", requestedScope.SpaceJoined())
	}

	return creds, true
}

func (c *Client) startInteractiveLocked(cfg Config, responseType ResponseTypeSet, scope ScopeSet, stateStr, nonceStr string) (*State, func()) {
	if responseType.Contains(ResponseTypeCode) && !cfg.HasTokenEndpoint() {
		c.flow = nil
		s := failedState(newConfigError("token endpoint is required when response type includes code"))
		return &s, nil
	}

	authURL, err := buildAuthorizationURL(cfg, responseType, scope, stateStr, nonceStr)
	if err != nil {
		c.flow = nil
		s := failedState(err)
		return &s, nil
	}

	s := authorizingState(authURL, cfg.RedirectURL)
	return &s, nil
}

// HandleAuthorizationRedirect delivers the URL the browser was redirected
// to once the authorization step completes. It is a no-op if the client is
// not currently StateAuthorizing.
func (c *Client) HandleAuthorizationRedirect(redirectURL *url.URL) {
	c.transition(func() (*State, func()) {
		if c.state.Tag != StateAuthorizing || c.flow == nil {
			return nil, nil
		}
		fs := c.flow
		cookie := c.bumpCookieLocked()
		params := extractRedirectParams(redirectURL)

		// The state check must run before error extraction: an
		// attacker-crafted redirect must not be trusted even to report
		// an error, since params["error"]/params["error_description"]
		// are just as attacker-controlled as a forged state value.
		if params["state"] != fs.stateString {
			c.flow = nil
			s := failedState(newAuthorizationError("invalid_state", "the state parameter did not match the authorization request"))
			return &s, nil
		}

		if errCode, ok := params["error"]; ok {
			c.flow = nil
			s := failedState(newAuthorizationError(errCode, params["error_description"]))
			return &s, nil
		}

		if fs.responseType.Contains(ResponseTypeCode) {
			code, ok := params["code"]
			if !ok || code == "" {
				c.flow = nil
				s := failedState(newAuthorizationError("invalid_request", "authorization response is missing code"))
				return &s, nil
			}
			req := buildTokenExchangeRequest(fs.config, code)
			s := fetchingTokenState()
			return &s, func() { c.performTokenExchange(cookie, fs, req) }
		}

		result := make(map[string]any, len(params))
		for k, v := range params {
			result[k] = v
		}
		creds, err := extractCredentialsFromResult(result, fs, c.timeSource, authorizationEndpointSource)
		c.flow = nil
		if err != nil {
			s := failedState(err)
			return &s, nil
		}
		return c.computeAuthorizedTransitionLocked(creds, cookie)
	})
}

// HandleAuthorizationFailure lets the host report that the authorization
// step itself could not be completed (for example, the system browser
// failed to launch). It is a no-op if the client is not currently
// StateAuthorizing.
func (c *Client) HandleAuthorizationFailure(cause error) {
	c.transition(func() (*State, func()) {
		if c.state.Tag != StateAuthorizing {
			return nil, nil
		}
		c.bumpCookieLocked()
		c.flow = nil
		s := failedState(&Error{Kind: KindAuthorization, Cause: cause})
		return &s, nil
	})
}

func (c *Client) performTokenExchange(cookie int, fs *flowState, req TokenRequest) {
	c.networking.PerformTokenRequest(req, func(result map[string]any, err error) {
		c.onTokenExchangeResult(cookie, fs, result, err)
	})
}

func (c *Client) onTokenExchangeResult(cookie int, fs *flowState, result map[string]any, err error) {
	c.transitionIfLive(cookie, func() (*State, func()) {
		c.flow = nil
		if err != nil {
			s := failedState(newTokenExchangeError("token exchange request failed", err))
			return &s, nil
		}
		creds, cerr := extractCredentialsFromResult(result, fs, c.timeSource, tokenEndpointSource)
		if cerr != nil {
			s := failedState(cerr)
			return &s, nil
		}
		return c.computeAuthorizedTransitionLocked(creds, cookie)
	})
}
