package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BICAS-web3/Backend/internal/hub"
	"github.com/BICAS-web3/Backend/internal/model"
	"github.com/BICAS-web3/Backend/internal/pipeline"
)

// Repository is the read surface the query API exposes.
type Repository interface {
	ListNetworks(ctx context.Context) ([]model.Network, error)
	ListRPCEndpoints(ctx context.Context, networkID int64) ([]model.RPCEndpoint, error)
	ListTokens(ctx context.Context, networkID int64) ([]model.Token, error)
	RecentBets(ctx context.Context, limit int) ([]model.BetDetail, error)
	BetsForPlayer(ctx context.Context, address string, limit int) ([]model.BetDetail, error)
	BetsForGame(ctx context.Context, gameName string, limit int) ([]model.BetDetail, error)
	SetNickname(ctx context.Context, address, nickname string) error
}

// Options tune the HTTP boundary.
type Options struct {
	PageSize int
	Hub      hub.Options
}

// Server mounts the query API and the realtime upgrade endpoint.
type Server struct {
	repo     Repository
	bc       *pipeline.Broadcaster
	opts     Options
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// New builds the HTTP boundary around the repository and broadcast feed.
func New(repo Repository, bc *pipeline.Broadcaster, opts Options, logger zerolog.Logger) *Server {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	return &Server{
		repo: repo,
		bc:   bc,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The feed is public; filtering happens per subscription.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "server").Logger(),
	}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/network/list", s.handleNetworks)
		r.Get("/rpc/get/{networkID}", s.handleRPCs)
		r.Get("/token/get/{networkID}", s.handleTokens)
		r.Get("/bets/list", s.handleRecentBets)
		r.Get("/bets/player/{address}", s.handlePlayerBets)
		r.Get("/bets/game/{gameName}", s.handleGameBets)
		r.Post("/player/nickname/set", s.handleSetNickname)
	})

	r.Get("/updates", s.handleUpdates)

	return r
}

// handleUpdates upgrades the connection and hands it to the hub, which owns
// it for its lifetime.
func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	hub.Serve(r.Context(), ws, s.bc, s.opts.Hub, s.logger)
}

func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	networks, err := s.repo.ListNetworks(r.Context())
	s.respondList(w, networks, err)
}

func (s *Server) handleRPCs(w http.ResponseWriter, r *http.Request) {
	networkID, err := strconv.ParseInt(chi.URLParam(r, "networkID"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid network id")
		return
	}
	rpcs, err := s.repo.ListRPCEndpoints(r.Context(), networkID)
	s.respondList(w, rpcs, err)
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	networkID, err := strconv.ParseInt(chi.URLParam(r, "networkID"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid network id")
		return
	}
	tokens, err := s.repo.ListTokens(r.Context(), networkID)
	s.respondList(w, tokens, err)
}

func (s *Server) handleRecentBets(w http.ResponseWriter, r *http.Request) {
	bets, err := s.repo.RecentBets(r.Context(), s.limit(r))
	s.respondList(w, bets, err)
}

func (s *Server) handlePlayerBets(w http.ResponseWriter, r *http.Request) {
	bets, err := s.repo.BetsForPlayer(r.Context(), chi.URLParam(r, "address"), s.limit(r))
	s.respondList(w, bets, err)
}

func (s *Server) handleGameBets(w http.ResponseWriter, r *http.Request) {
	bets, err := s.repo.BetsForGame(r.Context(), chi.URLParam(r, "gameName"), s.limit(r))
	s.respondList(w, bets, err)
}

type setNicknameRequest struct {
	Address  string `json:"address"`
	Nickname string `json:"nickname"`
}

func (s *Server) handleSetNickname(w http.ResponseWriter, r *http.Request) {
	var req setNicknameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Address == "" || req.Nickname == "" {
		s.respondError(w, http.StatusBadRequest, "address and nickname are required")
		return
	}
	if err := s.repo.SetNickname(r.Context(), req.Address, req.Nickname); err != nil {
		s.logger.Error().Err(err).Msg("nickname update failed")
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.respond(w, http.StatusOK, envelope{Status: "OK", Body: "The nickname has been changed"})
}

func (s *Server) limit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= s.opts.PageSize {
			return n
		}
	}
	return s.opts.PageSize
}

type envelope struct {
	Status string `json:"status"`
	Body   any    `json:"body"`
}

func (s *Server) respondList(w http.ResponseWriter, body any, err error) {
	if err != nil {
		s.logger.Error().Err(err).Msg("query failed")
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.respond(w, http.StatusOK, envelope{Status: "OK", Body: body})
}

func (s *Server) respondError(w http.ResponseWriter, code int, msg string) {
	s.respond(w, code, envelope{Status: "Err", Body: map[string]string{"error": msg}})
}

func (s *Server) respond(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug().Err(err).Msg("response write failed")
	}
}
