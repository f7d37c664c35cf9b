// ABOUTME: Google OAuth consent flow for the Sheets API
// ABOUTME: Runs a local callback server and stores the refresh token for later runs
package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/term"

	"github.com/harperreed/latecancel/sheets"
)

// AuthCommand handles OAuth setup
func (a *App) AuthCommand(args []string) error {
	fs := flag.NewFlagSet("auth", flag.ExitOnError)
	clientID := fs.String("client-id", a.Config.Google.ClientID, "OAuth client ID")
	noBrowser := fs.Bool("no-browser", false, "Print the consent URL without opening a browser")
	_ = fs.Parse(args)

	id := strings.TrimSpace(*clientID)
	if id == "" {
		fmt.Print("Client ID: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read client ID: %w", err)
		}
		id = strings.TrimSpace(line)
	}

	secret := a.Config.Google.ClientSecret
	if secret == "" {
		fmt.Print("Client secret: ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read client secret: %w", err)
		}
		fmt.Println() // New line after hidden input
		secret = strings.TrimSpace(string(b))
	}
	if id == "" || secret == "" {
		return fmt.Errorf("client ID and secret are required")
	}

	ctx := context.Background()
	config := sheets.NewOAuthConfig(id, secret)
	state := uuid.New().String()

	callbackChan := make(chan *oauth2.Token, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/callback", oauthCallback(ctx, config, state, callbackChan, errChan))
	server := &http.Server{Addr: sheets.CallbackAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Force a refresh token even when the user consented before
	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Println("Opening browser for Google OAuth...")
	fmt.Printf("\nIf browser doesn't open, visit this URL:\n%s\n\n", authURL)
	if !*noBrowser {
		_ = openBrowser(authURL)
	}

	select {
	case token := <-callbackChan:
		_ = server.Shutdown(ctx)

		if token.RefreshToken == "" {
			return fmt.Errorf("google returned no refresh token; revoke the app's access and try again")
		}
		path := sheets.TokenPath()
		if err := sheets.SaveToken(path, token); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}

		fmt.Printf("\n✓ Authenticated successfully\n")
		fmt.Printf("✓ Tokens saved to %s\n\n", path)
		fmt.Println("GOOGLE_REFRESH_TOKEN can now be omitted. Run 'latecancel run' to start.")
		return nil

	case err := <-errChan:
		_ = server.Shutdown(ctx)
		return fmt.Errorf("OAuth flow failed: %w", err)
	}
}

// oauthCallback exchanges the authorization code. Requests with the wrong state are rejected.
func oauthCallback(ctx context.Context, config *oauth2.Config, state string, tokens chan<- *oauth2.Token, errs chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if msg := q.Get("error"); msg != "" {
			http.Error(w, "authorization denied", http.StatusBadRequest)
			send(errs, fmt.Errorf("authorization denied: %s", msg))
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			send(errs, fmt.Errorf("no authorization code received"))
			return
		}

		token, err := config.Exchange(ctx, code)
		if err != nil {
			http.Error(w, "token exchange failed", http.StatusBadGateway)
			send(errs, fmt.Errorf("failed to exchange code: %w", err))
			return
		}

		send(tokens, token)
		_, _ = fmt.Fprintf(w, "Authorization successful! You can close this window.")
	}
}

// send delivers v unless a value is already waiting.
func send[T any](ch chan<- T, v T) {
	select {
	case ch <- v:
	default:
	}
}

// openBrowser attempts to open URL in default browser
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		cmd = "xdg-open"
		args = []string{url}
	}

	return exec.Command(cmd, args...).Start()
}
