package server

import (
	"io"
	"net/http"

	"casegen/internal/app"
	"casegen/pkg/domain"
)

func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request, user domain.User) {
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
	contentType := header.Header.Get("Content-Type")

	attachment, err := s.app.UploadAttachment(r.Context(), user, r.PathValue("id"), header.Filename, contentType, data)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, attachment)
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request, user domain.User) {
	attachments, err := s.app.ListAttachments(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if attachments == nil {
		attachments = []app.AttachmentWithURL{}
	}
	writeJSON(w, http.StatusOK, attachments)
}

func (s *Server) handleDeleteAttachment(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteAttachment(r.Context(), user, r.PathValue("id")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
