// internal/handlers/game.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jason-s-yu/bikelane/internal/guessgame"
)

type createGameRequest struct {
	Rounds *int `json:"rounds"`
}

type createGameResponse struct {
	GameCode       string `json:"gameCode"`
	NumberOfRounds int    `json:"numberOfRounds"`
	RoundLength    int    `json:"roundLength"`
}

// gameStatusResponse lets a client decide whether joining still makes sense.
type gameStatusResponse struct {
	Exists         bool   `json:"exists"`
	Phase          string `json:"phase,omitempty"`
	Started        bool   `json:"started,omitempty"`
	Round          int    `json:"round,omitempty"`
	NumberOfRounds int    `json:"numberOfRounds,omitempty"`
	Players        int    `json:"players,omitempty"`
}

// CreateGameHandler handles POST /guessgame/create. The round count comes from the JSON body
// ({"rounds": N}) or, failing that, the rounds query parameter.
func CreateGameHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rounds, err := parseRounds(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		g, err := gs.Registry.CreateGame(rounds)
		if errors.Is(err, guessgame.ErrInvalidRounds) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			gs.Logger.Errorf("failed to create game: %v", err)
			http.Error(w, "failed to create game", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, createGameResponse{
			GameCode:       g.Code,
			NumberOfRounds: g.NumberOfRounds,
			RoundLength:    int(g.RoundLength.Seconds()),
		})
	}
}

// GameExistsHandler handles GET /guessgame/{code} so clients can validate a code before joining.
// Known games also report their phase and player count.
func GameExistsHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		g, ok := gs.Registry.GetGame(code)
		if !ok {
			writeJSON(w, http.StatusOK, gameStatusResponse{Exists: false})
			return
		}
		writeJSON(w, http.StatusOK, gameStatusResponse{
			Exists:         true,
			Phase:          string(g.Phase()),
			Started:        g.Started(),
			Round:          g.Round(),
			NumberOfRounds: g.NumberOfRounds,
			Players:        g.UserCount(),
		})
	}
}

func parseRounds(r *http.Request) (int, error) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return 0, errors.New("bad create game request payload")
	}
	if req.Rounds != nil {
		return *req.Rounds, nil
	}
	q := r.URL.Query().Get("rounds")
	if q == "" {
		return 0, errors.New("rounds is required")
	}
	rounds, err := strconv.Atoi(q)
	if err != nil {
		return 0, errors.New("rounds must be an integer")
	}
	return rounds, nil
}
