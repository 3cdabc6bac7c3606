// Package server exposes the agent over a websocket gateway. Each
// connection gets its own session and a strictly sequential turn loop;
// inbound frames are raw user text, outbound frames are typed event
// envelopes.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/seekerworks/searchagent/core"
	"github.com/seekerworks/searchagent/engine"
)

// Config configures the gateway.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// ShutdownTimeout bounds graceful shutdown. Default 10s.
	ShutdownTimeout time.Duration
}

// Saver persists the memory store at connection teardown.
type Saver interface {
	Save(ctx context.Context) error
}

// Server is the websocket gateway.
type Server struct {
	cfg    Config
	engine *engine.Engine
	saver  Saver
	log    zerolog.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates a gateway serving the engine.
func New(cfg Config, eng *engine.Engine, saver Saver, log zerolog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:    cfg,
		engine: eng,
		saver:  saver,
		log:    log.With().Str("component", "server").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from a separately served UI.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("listening")
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleWS runs one session. A reader goroutine feeds inbound text to
// the processing loop over a channel; a disconnect cancels the turn in
// flight, but memory writes already committed stay committed.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	session := engine.NewSession()
	log := s.log.With().Str("session", session.ID).Logger()
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	emitter := newWSEmitter(conn, log)
	s.engine.AnnounceTools(emitter)

	inbound := make(chan string)
	go func() {
		defer cancel()
		defer close(inbound)
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Msg("read failed")
				}
				return
			}
			if kind != websocket.TextMessage {
				continue
			}
			select {
			case inbound <- string(data):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.teardown(session, log)
			return
		case input, ok := <-inbound:
			if !ok {
				s.teardown(session, log)
				return
			}
			s.engine.ProcessTurn(ctx, session, input, emitter)
		}
	}
}

func (s *Server) teardown(session *engine.Session, log zerolog.Logger) {
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.saver.Save(saveCtx); err != nil {
		log.Error().Err(err).Msg("saving memory at teardown failed")
	}
	log.Info().Int("turns", session.Len()).Msg("client disconnected")
}

// wsEmitter serializes event writes. Gorilla connections allow only
// one concurrent writer.
type wsEmitter struct {
	mu   sync.Mutex
	conn *websocket.Conn
	log  zerolog.Logger
}

func newWSEmitter(conn *websocket.Conn, log zerolog.Logger) *wsEmitter {
	return &wsEmitter{conn: conn, log: log}
}

func (e *wsEmitter) Emit(ev core.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.conn.WriteJSON(ev); err != nil {
		e.log.Debug().Err(err).Str("type", string(ev.Type)).Msg("event write failed")
	}
}
