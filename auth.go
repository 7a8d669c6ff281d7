package oauthclient

// AuthProvider returns the current access token, refreshing transparently
// in the background if the client is configured to do so. It is meant for
// wiring into an http.RoundTripper or similar outbound-request hook.
type AuthProvider func() (string, error)

// NewAuthProvider returns an AuthProvider backed by c. It returns an error
// if the client is not currently authorized.
func NewAuthProvider(c *Client) AuthProvider {
	return func() (string, error) {
		state := c.State()
		if state.Tag != StateAuthorized || state.Credentials == nil || state.Credentials.AccessToken == nil {
			return "", newConfigError("client is not authorized")
		}
		return *state.Credentials.AccessToken, nil
	}
}
