// Package channel exposes the verification bridge to callers: a websocket
// method channel carrying invocations, replies and state broadcasts, plus
// a small HTTP API.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Yahir019cx/pool-and-chill-app/internal/health"
	"github.com/Yahir019cx/pool-and-chill-app/internal/log"
	"github.com/Yahir019cx/pool-and-chill-app/internal/metrics"
	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk"
	"github.com/Yahir019cx/pool-and-chill-app/internal/session"
	"github.com/Yahir019cx/pool-and-chill-app/internal/verification"
)

// ChannelName identifies the method channel in snapshots.
const ChannelName = "com.poolandchill.app/didit"

const maxFrameBytes = 64 << 10

// Verifier is the part of the bridge the channel drives.
type Verifier interface {
	Start(ctx context.Context, token string, opts ...verification.StartOption) (*verification.Request, error)
	State() sdk.LifecycleState
	Pending() *verification.Request
}

// Options configures a Server.
type Options struct {
	AllowedOrigins []string
	AuthToken      string
	RateLimit      int
}

type Server struct {
	verifier       Verifier
	store          *session.Store
	broadcaster    *Broadcaster
	health         *health.Checker
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	rateLimit      int
	logger         zerolog.Logger
}

func NewServer(v Verifier, store *session.Store, broadcaster *Broadcaster, checker *health.Checker, opts Options) *Server {
	s := &Server{
		verifier:       v,
		store:          store,
		broadcaster:    broadcaster,
		health:         checker,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      opts.AuthToken,
		rateLimit:      opts.RateLimit,
		logger:         log.WithComponent("channel"),
	}

	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// Handler returns the router serving /ws, /api/... and /metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(requestContext)
	r.Use(requestLogger(s.logger))

	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/ws", s.handleWS)
		r.Get("/api/state", s.handleState)
		r.Get("/api/attempts", s.handleAttempts)
		r.Get("/api/attempts/{id}", s.handleAttempt)
		r.Get("/api/health", s.handleHealth)
		r.With(rateLimit(s.rateLimit)).Post("/api/verifications", s.handleStartVerification)
	})
	return r
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", "channel.upgrade_failed").Msg("ws upgrade error")
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", "channel.rejected").Str("remote", r.RemoteAddr).Msg("ws client rejected")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	s.logger.Info().Str("event", "channel.connected").Str("remote", r.RemoteAddr).Msg("ws client connected")
	go s.readLoop(c, r.RemoteAddr)
}

func (s *Server) readLoop(c *client, remote string) {
	defer func() {
		s.broadcaster.RemoveClient(c)
		s.logger.Info().Str("event", "channel.disconnected").Str("remote", remote).Msg("ws client disconnected")
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.broadcaster.Send(c, Message{Type: MsgError, Error: &ErrorPayload{
				Code:    verification.CodeInvalidArgs,
				Message: "malformed message",
			}})
			continue
		}

		switch msg.Type {
		case MsgInvoke:
			s.invoke(c, msg)
		default:
			s.broadcaster.Send(c, Message{Type: MsgError, ID: msg.ID, Error: &ErrorPayload{
				Code:    verification.CodeNotImplemented,
				Message: "unsupported message type " + string(msg.Type),
			}})
		}
	}
}

// invoke handles one method call. The reply is sent from the bridge's
// executor once the request resolves; local rejections reply immediately.
func (s *Server) invoke(c *client, msg Message) {
	metrics.IncInvocation("ws", msg.Method)
	if msg.Method != MethodStartVerification {
		s.broadcaster.Send(c, errorMessage(msg.ID, &verification.Error{
			Code:    verification.CodeNotImplemented,
			Message: "method " + msg.Method + " is not implemented",
		}))
		return
	}

	var args StartArgs
	if len(msg.Args) > 0 {
		if err := json.Unmarshal(msg.Args, &args); err != nil {
			s.broadcaster.Send(c, errorMessage(msg.ID, verification.ErrInvalidArgument))
			return
		}
	}

	corr := uuid.NewString()
	ctx := log.ContextWithCorrelationID(context.Background(), corr)
	id := msg.ID
	_, err := s.verifier.Start(ctx, args.SessionToken,
		verification.WithCorrelationID(corr),
		verification.WithCallback(func(o verification.Outcome) {
			s.broadcaster.Send(c, resultMessage(id, o))
		}),
	)
	if err != nil {
		s.broadcaster.Send(c, errorMessage(id, err))
	}
}

type startResponse struct {
	Value         *string `json:"value"`
	RequestID     uint64  `json:"requestId"`
	CorrelationID string  `json:"correlationId"`
}

// handleStartVerification is the blocking binding: it answers once the
// verification resolves. A client that disconnects first abandons the
// wait, not the verification.
func (s *Server) handleStartVerification(w http.ResponseWriter, r *http.Request) {
	metrics.IncInvocation("http", MethodStartVerification)
	ctx := r.Context()

	var args StartArgs
	if err := json.NewDecoder(io.LimitReader(r.Body, maxFrameBytes)).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, verification.ErrInvalidArgument)
		return
	}

	req, err := s.verifier.Start(ctx, args.SessionToken)
	if err != nil {
		writeError(w, err)
		return
	}

	o, err := req.Wait(ctx)
	if err != nil {
		l := log.WithContext(ctx, s.logger)
		l.Info().Str("event", "channel.wait_abandoned").Uint64("request_id", req.ID).Msg("client left before verification resolved")
		return
	}

	v, err := o.Result()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{
		Value:         v,
		RequestID:     req.ID,
		CorrelationID: req.CorrelationID,
	})
}

type stateResponse struct {
	Channel string             `json:"channel"`
	State   sdk.LifecycleState `json:"state"`
	Pending *pendingInfo       `json:"pending,omitempty"`
}

type pendingInfo struct {
	RequestID uint64             `json:"requestId"`
	Phase     verification.Phase `json:"phase"`
	StartedAt time.Time          `json:"startedAt"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{Channel: ChannelName, State: s.verifier.State()}
	if req := s.verifier.Pending(); req != nil {
		resp.Pending = &pendingInfo{RequestID: req.ID, Phase: req.Phase(), StartedAt: req.CreatedAt}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.broadcaster.FilterAttempts(s.store.GetAll()))
}

func (s *Server) handleAttempt(w http.ResponseWriter, r *http.Request) {
	a, ok := s.store.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "attempt not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.broadcaster.FilterAttempts([]*session.Attempt{a})[0])
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Report(r.Context(), s.verifier.State(), s.verifier.Pending() != nil)
	status := http.StatusOK
	if report.Status == health.StatusFailed {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Bridge-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	p := errorPayload(err)
	writeJSON(w, statusFor(p.Code), p)
}
