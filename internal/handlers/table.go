// internal/handlers/table.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/scoretracker/internal/auth"
	"github.com/jason-s-yu/scoretracker/internal/game"
)

const tableCookie = "table_token"

type createTableRequest struct {
	Rules map[string]interface{} `json:"rules,omitempty"`
}

type createTableResponse struct {
	TableID uuid.UUID  `json:"tableId"`
	Rules   game.Rules `json:"rules"`
}

// CreateTableHandler opens a new table and hands the caller its token cookie.
func CreateTableHandler(s *TableServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTableRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "bad table request payload", http.StatusBadRequest)
			return
		}
		rules, err := game.ParseRules(req.Rules, s.rules)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		id, _, err := s.CreateTable(r.Context(), rules)
		if err != nil {
			s.logger.Errorf("create table: %v", err)
			http.Error(w, "could not create table", http.StatusInternalServerError)
			return
		}
		token, err := auth.CreateJWT(id.String())
		if err != nil {
			s.logger.Errorf("sign table token: %v", err)
			http.Error(w, "could not create table", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     tableCookie,
			Value:    token,
			HttpOnly: true,
			Secure:   s.secureCookie,
			SameSite: http.SameSiteLaxMode,
			Path:     "/",
		})

		writeJSON(w, http.StatusOK, createTableResponse{TableID: id, Rules: rules})
	}
}

// TableStateHandler returns the full game state of the caller's table.
func TableStateHandler(s *TableServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, ok := s.authorizedTable(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, IntentResult{State: g.State(), Roster: g.SetupRoster()})
	}
}

// TableHistoryHandler returns the round by round score sheet.
func TableHistoryHandler(s *TableServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, ok := s.authorizedTable(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, g.History())
	}
}

// TableStandingsHandler returns players ranked by cumulative total.
func TableStandingsHandler(s *TableServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, ok := s.authorizedTable(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, g.Standings())
	}
}

// TableActionHandler applies one intent and returns the resulting state.
func TableActionHandler(s *TableServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, ok := s.authorizedTable(w, r)
		if !ok {
			return
		}
		var in Intent
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad intent payload", http.StatusBadRequest)
			return
		}

		res, err := dispatch(g, in)
		if err != nil {
			writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// authorizedTable resolves the table named by the caller's token. It writes the
// error response itself and reports false when there is none.
func (s *TableServer) authorizedTable(w http.ResponseWriter, r *http.Request) (*game.GameEngine, bool) {
	id, err := tableIDFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return nil, false
	}
	return s.Table(r.Context(), id), true
}

// tableIDFromRequest reads the table token from the cookie, or from a Bearer
// header for clients that cannot keep cookies.
func tableIDFromRequest(r *http.Request) (uuid.UUID, error) {
	token := ""
	if c, err := r.Cookie(tableCookie); err == nil {
		token = c.Value
	} else if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		token = bearer
	}
	if token == "" {
		return uuid.Nil, errors.New("missing table_token")
	}

	idStr, err := auth.AuthenticateJWT(token)
	if err != nil {
		return uuid.Nil, errors.New("invalid token")
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, errors.New("invalid table id in token")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
