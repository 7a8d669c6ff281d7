// Package oauthclient implements an OAuth 2.0 / OpenID Connect client for
// public clients such as mobile and desktop applications.
//
// It owns three things: a flow state machine that drives a user through
// the authorization code or implicit grant, a token lifecycle manager that
// keeps an access token fresh in the background, and a minimal ID Token
// decoder. The state machine never opens browsers and reaches the network,
// persistent storage and the clock only through the Storage, Networking
// and TimeSource interfaces; the package ships default implementations of
// those (HTTPNetworking, FileStorage, KeyringStorage, SecureStorage,
// MemoryStorage). JWT signatures are never verified.
//
// A typical embedding looks like:
//
//	client := oauthclient.NewClient(storage, networking)
//	sub := client.Subscribe(func(s oauthclient.State) {
//	    // drive UI off s.Tag
//	})
//	defer sub.Unsubscribe()
//	client.Start(cfg, oauthclient.ModeInteractive, scope, responseTypes)
package oauthclient
