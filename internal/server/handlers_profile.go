package server

import (
	"encoding/json"
	"io"
	"net/http"

	"casegen/internal/app"
	"casegen/pkg/domain"
)

type profileUpdateRequest struct {
	Bio     *string `json:"bio"`
	Company *string `json:"company"`
	Role    *string `json:"role"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	profile, err := s.app.Profile(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "profile": profile})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req profileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "cuerpo de solicitud invalido")
		return
	}
	profile, err := s.app.UpdateProfile(r.Context(), user, app.ProfileUpdate{
		Bio:     req.Bio,
		Company: req.Company,
		Role:    req.Role,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUploadAvatar(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "el archivo excede el tamano maximo permitido")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "se requiere un archivo")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "no se pudo leer el archivo")
		return
	}
	profile, err := s.app.UploadAvatar(r.Context(), user, header.Header.Get("Content-Type"), data)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
