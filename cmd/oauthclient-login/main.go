// oauthclient-login is a reference CLI that drives the interactive
// authorization-code flow end to end against a configured OAuth server:
// it opens the system browser, catches the redirect on a local loopback
// server, and prints the resulting credentials.
//
// Usage:
//
//	oauthclient-login --authorize-url ... --token-url ... --client-id ...
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	oauthclient "github.com/nanoauth/oauthclient"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBright = "\033[1m"
	colorDim    = "\033[2m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

var (
	authorizeURL string
	tokenURL     string
	clientID     string
	clientSecret string
	scopeFlag    string
	listenAddr   string
)

var rootCmd = &cobra.Command{
	Use:   "oauthclient-login",
	Short: "Run an interactive OAuth 2.0 authorization code login",
	Long: `oauthclient-login drives the oauthclient.Client state machine
through an interactive authorization-code login: it opens your browser,
runs a local loopback server to catch the redirect, and prints the
resulting access token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogin()
	},
}

func init() {
	rootCmd.Flags().StringVar(&authorizeURL, "authorize-url", "", "authorization endpoint (required)")
	rootCmd.Flags().StringVar(&tokenURL, "token-url", "", "token endpoint (required)")
	rootCmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client identifier (required)")
	rootCmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret, if confidential")
	rootCmd.Flags().StringVar(&scopeFlag, "scope", "openid profile email", "space-delimited scopes to request")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:8976", "loopback address to catch the redirect on")
	_ = rootCmd.MarkFlagRequired("authorize-url")
	_ = rootCmd.MarkFlagRequired("token-url")
	_ = rootCmd.MarkFlagRequired("client-id")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printError(message string) {
	fmt.Fprintf(os.Stderr, "%sError:%s %s\n", colorRed, colorReset, message)
}

func printSuccess(message string) {
	fmt.Printf("%s[ok]%s %s\n", colorGreen, colorReset, message)
}

func printInfo(message string) {
	fmt.Printf("%s[i]%s %s\n", colorCyan, colorReset, message)
}

func runLogin() error {
	authzURL, err := url.Parse(authorizeURL)
	if err != nil {
		return fmt.Errorf("invalid --authorize-url: %w", err)
	}
	tokURL, err := url.Parse(tokenURL)
	if err != nil {
		return fmt.Errorf("invalid --token-url: %w", err)
	}
	redirectURL := &url.URL{Scheme: "http", Host: listenAddr, Path: "/callback"}

	cfg := oauthclient.Config{
		AuthorizationEndpoint: authzURL,
		TokenEndpoint:         tokURL,
		ClientIdentifier:      clientID,
		ClientSecret:          clientSecret,
		RedirectURL:           redirectURL,
	}

	storage := oauthclient.NewSecureStorage("")
	networking := oauthclient.NewHTTPNetworking(nil)
	client := oauthclient.NewClient(storage, networking)

	redirectCh := make(chan *url.URL, 1)
	server := newCallbackServer(listenAddr, redirectCh)
	go func() { _ = server.ListenAndServe() }()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	done := make(chan oauthclient.State, 1)
	sub := client.Subscribe(func(s oauthclient.State) {
		switch s.Tag {
		case oauthclient.StateAuthorizing:
			printInfo("Opening browser for authorization...")
			if err := openBrowser(s.AuthorizingURL.String()); err != nil {
				printInfo("Could not open browser automatically. Visit this URL:")
				fmt.Printf("  %s%s%s\n", colorCyan, s.AuthorizingURL.String(), colorReset)
			}
		case oauthclient.StateFetchingToken:
			printInfo("Exchanging authorization code for tokens...")
		case oauthclient.StateAuthorized, oauthclient.StateFailed, oauthclient.StateCancelled:
			select {
			case done <- s:
			default:
			}
		}
	})
	defer sub.Unsubscribe()

	client.Start(cfg, oauthclient.ModeInteractive, oauthclient.ParseScopeString(scopeFlag),
		oauthclient.NewResponseTypeSet(oauthclient.ResponseTypeCode))

	go func() {
		redirect := <-redirectCh
		client.HandleAuthorizationRedirect(redirect)
	}()

	final := <-done
	switch final.Tag {
	case oauthclient.StateAuthorized:
		printSuccess("Login successful!")
		if final.Credentials != nil && final.Credentials.AccessToken != nil {
			fmt.Printf("\n%sAccess token:%s\n  %s\n", colorDim, colorReset, *final.Credentials.AccessToken)
		}
		return nil
	case oauthclient.StateCancelled:
		printInfo("Login cancelled")
		return nil
	default:
		msg := "login failed"
		if final.Err != nil {
			msg = final.Err.Error()
		}
		printError(msg)
		return fmt.Errorf("%s", msg)
	}
}

// newCallbackServer builds the loopback HTTP server that catches the
// authorization redirect and forwards its full URL (including the query
// string) onto redirectCh.
func newCallbackServer(addr string, redirectCh chan<- *url.URL) *http.Server {
	r := chi.NewRouter()
	r.Get("/callback", func(w http.ResponseWriter, req *http.Request) {
		full := *req.URL
		full.Scheme = "http"
		full.Host = addr
		select {
		case redirectCh <- &full:
		default:
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><h3>You can close this tab and return to the terminal.</h3></body></html>")
	})
	return &http.Server{Addr: addr, Handler: r}
}

func openBrowser(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "linux":
		cmd = exec.Command("xdg-open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		return fmt.Errorf("unsupported platform")
	}
	return cmd.Start()
}
