package textservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/neboloop/focusrelay/internal/httputil"
	"github.com/neboloop/focusrelay/internal/lifecycle"
	"github.com/neboloop/focusrelay/internal/relay"
)

const maxPushBody = 1 << 20

// Options configures a Service.
type Options struct {
	VaultPath string
	PushRate  float64
	PushBurst int
	Logger    *slog.Logger
}

// Service answers GET_LAST_TEXT requests from relays with the newest vault
// note and broadcasts pushed text.
type Service struct {
	vault    *Vault
	hub      *Hub
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// PushResult is the /push response body.
type PushResult struct {
	Sent int `json:"sent"`
}

// Status is the /status response body.
type Status struct {
	Clients int    `json:"clients"`
	Vault   string `json:"vault"`
	Latest  string `json:"latest,omitempty"`
}

// New builds a service. Call Run or mount Handler to start serving.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "textservice")
	}
	if opts.PushRate <= 0 {
		opts.PushRate = 5
	}
	if opts.PushBurst <= 0 {
		opts.PushBurst = 10
	}

	s := &Service{
		vault:   NewVault(opts.VaultPath, logger.With("part", "vault")),
		limiter: rate.NewLimiter(rate.Limit(opts.PushRate), opts.PushBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Extension and page origins both connect over loopback
				return true
			},
		},
		logger: logger,
	}
	s.hub = NewHub(s.handleRequest, logger.With("part", "hub"))
	s.hub.OnConnect(func(id string) { lifecycle.Emit(lifecycle.EventClientConnected, id) })
	s.hub.OnDisconnect(func(id string) { lifecycle.Emit(lifecycle.EventClientDisconnected, id) })
	s.vault.OnUpdate(func(path string) { lifecycle.Emit(lifecycle.EventNoteUpdated, path) })
	return s
}

// Vault returns the watched vault.
func (s *Service) Vault() *Vault { return s.vault }

// Hub returns the client hub.
func (s *Service) Hub() *Hub { return s.hub }

// Handler returns the HTTP routes of the service.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/", s.serveWS)
	r.Get("/ws", s.serveWS)
	r.Get("/status", s.serveStatus)
	r.Post("/push", s.servePush)
	return r
}

// Run watches the vault and serves on addr until ctx is cancelled.
func (s *Service) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchErr := make(chan error, 1)
	go func() { watchErr <- s.vault.Watch(ctx) }()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	s.logger.Info("text service listening", "addr", ln.Addr().String(), "vault", s.vault.Dir())
	lifecycle.Emit(lifecycle.EventServiceStarted, ln.Addr().String())

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-watchErr:
		if err != nil {
			runErr = fmt.Errorf("vault watcher: %w", err)
		}
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 3*time.Second)
	defer stop()
	s.hub.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Push broadcasts text to every connected relay. An empty text re-reads the
// pending note without consuming it.
func (s *Service) Push(text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		note, err := s.vault.Peek()
		if err != nil {
			return 0, err
		}
		text = note
	}
	if s.hub.Len() == 0 {
		s.logger.Warn("push with no connected clients")
		return 0, nil
	}
	return s.hub.Broadcast(relay.InsertText(text)), nil
}

// handleRequest answers GET_LAST_TEXT with the pending note, once.
func (s *Service) handleRequest(c *Client, msg relay.Message) {
	if msg.Type != relay.TypeGetLastText {
		s.logger.Debug("ignoring frame", "client", c.ID, "type", msg.String())
		return
	}

	text, err := s.vault.Consume()
	switch {
	case errors.Is(err, ErrNoNote):
		s.logger.Debug("no pending note", "client", c.ID)
		return
	case err != nil:
		s.logger.Warn("note not readable", "client", c.ID, "error", err)
		return
	case text == "":
		s.logger.Debug("pending note is empty", "client", c.ID)
		return
	}

	if err := c.Send(relay.InsertText(text)); err != nil {
		s.logger.Warn("reply dropped", "client", c.ID, "error", err)
		return
	}
	s.logger.Info("note sent", "client", c.ID, "chars", len([]rune(text)))
}

func (s *Service) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	s.hub.Serve(conn)
}

func (s *Service) serveStatus(w http.ResponseWriter, _ *http.Request) {
	httputil.OkJSON(w, Status{
		Clients: s.hub.Len(),
		Vault:   s.vault.Dir(),
		Latest:  s.vault.Latest(),
	})
}

func (s *Service) servePush(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		httputil.TooManyRequests(w, "")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPushBody))
	if err != nil {
		httputil.BadRequest(w, "read body")
		return
	}

	sent, err := s.Push(string(body))
	switch {
	case errors.Is(err, ErrNoNote):
		httputil.NotFound(w, err.Error())
		return
	case err != nil:
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.OkJSON(w, PushResult{Sent: sent})
}
