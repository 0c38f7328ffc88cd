package server

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"

	"casegen/pkg/domain"
)

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "cuerpo de solicitud invalido")
		return
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		writeError(w, http.StatusBadRequest, "correo invalido")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "la contrasena debe tener al menos 8 caracteres")
		return
	}
	user, err := s.app.SignUp(req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		writeAppError(w, err)
		return
	}
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "cuerpo de solicitud invalido")
		return
	}
	user, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if err := s.tokens.Revoke(bearerToken(r)); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
