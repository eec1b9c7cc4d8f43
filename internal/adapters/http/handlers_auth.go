package web

import (
	"errors"
	"net/http"
	"time"

	"clubhouse/internal/adapters/http/middleware"
	"clubhouse/internal/application/orchestrators"
	"clubhouse/internal/domain/account"
	"clubhouse/pkg/logger"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

type loginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Account   accountResponse `json:"account"`
}

func toAccountResponse(a account.Account) accountResponse {
	return accountResponse{ID: a.ID, Email: a.Email, DisplayName: a.DisplayName, Role: a.Role.String()}
}

// handleLogin checks credentials, starts a cookie session and returns a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	acct, err := orchestrators.ExecuteLogin(r.Context(), orchestrators.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	}, orchestrators.LoginDeps{AccountStore: s.stores.AccountStore, Now: s.now})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	sessionToken, err := s.sessions.Create(acct)
	if err != nil {
		internalError(w, err)
		return
	}
	bearer, expires, err := s.tokens.Issue(acct)
	if err != nil {
		internalError(w, err)
		return
	}

	middleware.SetSessionCookie(w, sessionToken)
	writeJSON(w, http.StatusOK, loginResponse{Token: bearer, ExpiresAt: expires, Account: toAccountResponse(acct)})
}

// handleLogout ends the cookie session. Bearer tokens expire on their own.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token, ok := middleware.SessionToken(r); ok {
		s.sessions.Delete(token)
	}
	middleware.ClearSessionCookie(w)
	logger.Info("auth_event", "event", "logout", "account_id", actor(r).ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the authenticated account.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	acct, err := s.stores.AccountStore.GetByID(r.Context(), actor(r).ID)
	if errors.Is(err, account.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "account no longer exists")
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}
