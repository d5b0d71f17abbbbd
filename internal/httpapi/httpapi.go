// Package httpapi serves read mostly REST endpoints next to the game socket.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dariubs/percent"
	"github.com/gorilla/mux"

	"github.com/zefir/statki-go-backend/internal"
	"github.com/zefir/statki-go-backend/internal/auth"
	"github.com/zefir/statki-go-backend/internal/db"
	"github.com/zefir/statki-go-backend/logger"
)

type Accounts interface {
	SignUp(ctx context.Context, username, password string) (string, error)
	Player(ctx context.Context, username string) (db.Player, error)
	Ranking(ctx context.Context, limit int) ([]db.Player, error)
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) (string, error)
	Delete(ctx context.Context, username, password string) error
}

type Games interface {
	List() []*internal.GameSession
	Lookup(user string) (*internal.GameSession, bool)
}

type PlayerStats struct {
	Username string  `json:"username"`
	Played   int     `json:"played"`
	Won      int     `json:"won"`
	WinRate  float64 `json:"win_rate"`
}

type LiveGame struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Players   [2]string `json:"players"`
	Phase     string    `json:"phase"`
	Suspended bool      `json:"suspended"`
}

func statsOf(p db.Player) PlayerStats {
	s := PlayerStats{Username: p.Username, Played: p.GamesPlayed, Won: p.GamesWon}
	if p.GamesPlayed > 0 {
		s.WinRate = percent.PercentOf(p.GamesWon, p.GamesPlayed)
	}
	return s
}

type api struct {
	accounts Accounts
	games    Games
}

func NewRouter(accounts Accounts, games Games) *mux.Router {
	a := &api{accounts: accounts, games: games}
	r := mux.NewRouter()
	r.HandleFunc("/healthz", a.health).Methods(http.MethodGet)
	r.HandleFunc("/api/ranking", a.ranking).Methods(http.MethodGet)
	r.HandleFunc("/api/players/{name}", a.player).Methods(http.MethodGet)
	r.HandleFunc("/api/games", a.liveGames).Methods(http.MethodGet)
	r.HandleFunc("/api/signup", a.signUp).Methods(http.MethodPost)
	r.HandleFunc("/api/players/{name}/password", a.changePassword).Methods(http.MethodPost)
	r.HandleFunc("/api/players/{name}", a.deletePlayer).Methods(http.MethodDelete)
	return r
}

// NewServer wraps h with the timeouts used for the API listener.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Debug().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) ranking(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	players, err := a.accounts.Ranking(r.Context(), limit)
	if err != nil {
		logger.Log.Error().Err(err).Msg("ranking")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]PlayerStats, 0, len(players))
	for _, p := range players {
		out = append(out, statsOf(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) player(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	p, err := a.accounts.Player(r.Context(), name)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no such player")
		return
	}
	if err != nil {
		logger.Log.Error().Err(err).Str("player", name).Msg("player stats")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, statsOf(p))
}

func (a *api) liveGames(w http.ResponseWriter, r *http.Request) {
	sessions := a.games.List()
	out := make([]LiveGame, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, LiveGame{
			ID:        s.ID,
			Mode:      s.Mode.String(),
			Players:   s.Players(),
			Phase:     s.Phase().String(),
			Suspended: s.Suspended(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type signUpRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func (a *api) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decode(w, r, &req) {
		return
	}
	token, err := a.accounts.SignUp(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]string{"token": token, "username": req.Username})
	case errors.Is(err, auth.ErrUserExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Log.Error().Err(err).Msg("sign up")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (a *api) changePassword(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req changePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	token, err := a.accounts.ChangePassword(r.Context(), name, req.OldPassword, req.NewPassword)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"token": token, "username": name})
	case errors.Is(err, auth.ErrBadCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Log.Error().Err(err).Str("player", name).Msg("change password")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type deletePlayerRequest struct {
	Password string `json:"password"`
}

// deletePlayer refuses while the player sits in a live game, whose seat
// would otherwise point at a removed account.
func (a *api) deletePlayer(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req deletePlayerRequest
	if !decode(w, r, &req) {
		return
	}
	if _, ok := a.games.Lookup(name); ok {
		writeError(w, http.StatusConflict, "player is in a game")
		return
	}
	err := a.accounts.Delete(r.Context(), name, req.Password)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, auth.ErrBadCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		logger.Log.Error().Err(err).Str("player", name).Msg("delete player")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
