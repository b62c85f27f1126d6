// Package callback implements the one-shot loopback HTTP listener that
// makes the Authorization Code (and Implicit) flows work from a CLI with no
// public redirect URI. Routing follows a chi-based single-mux idiom with an
// explicit 404 default; cancellation follows a signal-to-context pattern.
package callback

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/oauthctl/internal/oautherr"
)

// DefaultTimeout is the default wait for the callback to arrive.
const DefaultTimeout = 5 * time.Minute

// Result is what the listener hands back once it has served its one
// request.
type Result struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	Fragment         string
}

// Listener binds a single-request HTTP server on redirect_uri's host/port/
// path. Exactly one request to that path is served; everything else 404s.
type Listener struct {
	path            string
	captureFragment bool

	mu       sync.Mutex
	used     bool
	resultCh chan Result
	srv      *http.Server
	ln       net.Listener
}

// New constructs a Listener for redirectURI. captureFragment enables the
// Implicit-flow fragment re-post trick (the token arrives in a URL fragment
// the server never sees, so a small script re-requests it as a query param).
func New(redirectURI string, captureFragment bool) (*Listener, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, oautherr.BadURL{Field: "redirect_uri", Value: redirectURI, Err: err}
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return &Listener{
		path:            path,
		captureFragment: captureFragment,
		resultCh:        make(chan Result, 1),
	}, nil
}

// Listen binds addr (typically redirect_uri's host:port) without blocking,
// so callers can read back the bound port (useful when addr ends in :0)
// before opening the browser.
func (l *Listener) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return oautherr.PortBindFailed{Addr: addr, Err: err}
	}
	l.ln = ln

	r := chi.NewRouter()
	r.Get(l.path, l.handleCallback)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	})
	l.srv = &http.Server{Handler: r}

	go func() {
		if err := l.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Msg("callback: listener stopped with an error")
		}
	}()
	return nil
}

// Addr returns the bound listener address; call after Listen.
func (l *Listener) Addr() string {
	if l.ln == nil {
		return ""
	}
	return l.ln.Addr().String()
}

// Wait blocks until a request is served, ctx is canceled, or timeout
// elapses, then shuts the listener down on any outcome.
func (l *Listener) Wait(ctx context.Context, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if l.srv != nil {
			_ = l.srv.Shutdown(shutdownCtx)
		}
	}()

	select {
	case res := <-l.resultCh:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-time.After(timeout):
		return Result{}, oautherr.CallbackTimeout{Timeout: timeout.String()}
	}
}

func (l *Listener) handleCallback(w http.ResponseWriter, req *http.Request) {
	l.mu.Lock()
	if l.used {
		l.mu.Unlock()
		http.Error(w, oautherr.AlreadyUsed{}.Error(), http.StatusGone)
		return
	}

	q := req.URL.Query()
	fragment := q.Get("fragment")

	if l.captureFragment && fragment == "" {
		// First hit from the Implicit flow: the provider redirected with the
		// token in the URL fragment, which the server never sees. Serve a
		// page that re-posts window.location.hash as a query param.
		l.mu.Unlock()
		writeFragmentCapturePage(w)
		return
	}

	l.used = true
	l.mu.Unlock()

	res := Result{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
		Fragment:         fragment,
	}

	if res.Error != "" {
		writeResultPage(w, false, res.ErrorDescription)
	} else {
		writeResultPage(w, true, "")
	}

	l.resultCh <- res
}

func writeFragmentCapturePage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!DOCTYPE html><html><body>
<script>
var hash = window.location.hash.substring(1);
window.location.replace(window.location.pathname + "?fragment=" + encodeURIComponent(hash));
</script>
</body></html>`)
}

func writeResultPage(w http.ResponseWriter, ok bool, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	title := "Authorization complete"
	if !ok {
		title = "Authorization failed"
	}
	fmt.Fprintf(w, `<!DOCTYPE html><html><body>
<p>%s. %s You can close this window.</p>
<script>window.close();</script>
</body></html>`, title, detail)
}
