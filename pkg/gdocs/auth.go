package gdocs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// CallbackHandler receives the OAuth redirect and delivers the authorization
// code, or the failure, on the given channels. Both channels need a buffer of 1.
func CallbackHandler(state string, codes chan<- string, errs chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "Authorization denied: "+e, http.StatusForbidden)
			select {
			case errs <- fmt.Errorf("authorization denied: %s", e):
			default:
			}
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "Missing authorization code", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "camlat is connected to Google Docs. You can close this window.")
		select {
		case codes <- code:
		default:
		}
	})
}

// Authorize runs the consent flow: it serves the redirect URL locally, hands
// the consent URL to prompt, waits for the callback and exchanges the code.
func (c *Client) Authorize(ctx context.Context, prompt func(authURL string)) error {
	u, err := url.Parse(c.config.RedirectURL)
	if err != nil {
		return fmt.Errorf("invalid redirect URL: %w", err)
	}

	state := uuid.NewString()
	codes := make(chan string, 1)
	errs := make(chan error, 1)

	mux := http.NewServeMux()
	mux.Handle(u.Path, CallbackHandler(state, codes, errs))

	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return fmt.Errorf("failed to listen for OAuth callback: %w", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errs <- err:
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	prompt(c.AuthURL(state))

	select {
	case code := <-codes:
		return c.Exchange(ctx, code)
	case err := <-errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
