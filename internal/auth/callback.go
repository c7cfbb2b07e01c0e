package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dvloznov/monzo-export/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// CallbackServer captures the OAuth redirect on a local port so the user
// does not have to paste it back into the terminal.
type CallbackServer struct {
	ln      net.Listener
	srv     *http.Server
	results chan string
}

// NewCallbackHandler serves path and sends each full redirect URL it
// receives to results. Sends never block; only the first one is kept.
func NewCallbackHandler(path string, results chan<- string, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	r.Get(path, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("code") == "" && req.URL.Query().Get("error") == "" {
			middleware.WriteText(w, http.StatusBadRequest, "Missing code parameter.")
			return
		}

		redirect := "http://" + req.Host + req.URL.RequestURI()
		select {
		case results <- redirect:
		default:
		}
		middleware.WriteText(w, http.StatusOK, "Authorization received. Approve access in the Monzo app, then close this window.")
	})

	return r
}

// NewCallbackServer listens on addr (for example "127.0.0.1:8080") and
// serves the redirect path until Wait returns.
func NewCallbackServer(addr, path string, log zerolog.Logger) (*CallbackServer, error) {
	if path == "" {
		path = "/"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("NewCallbackServer: listening on %s: %w", addr, err)
	}

	results := make(chan string, 1)
	s := &CallbackServer{
		ln:      ln,
		results: results,
		srv: &http.Server{
			Handler:           NewCallbackHandler(path, results, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Callback server failed")
		}
	}()

	return s, nil
}

// Addr returns the address the server is listening on.
func (s *CallbackServer) Addr() string {
	return s.ln.Addr().String()
}

// Wait blocks until the first redirect arrives or ctx is done, then shuts
// the server down.
func (s *CallbackServer) Wait(ctx context.Context) (string, error) {
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	select {
	case redirect := <-s.results:
		return redirect, nil
	case <-ctx.Done():
		return "", fmt.Errorf("CallbackServer.Wait: %w", ctx.Err())
	}
}
