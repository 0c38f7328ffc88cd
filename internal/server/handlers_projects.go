package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"casegen/pkg/domain"
)

func (s *Server) handleUploadProject(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "el archivo excede el tamano maximo permitido")
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "el nombre del proyecto es obligatorio")
		return
	}
	description := r.FormValue("description")

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

	project, err := s.app.UploadProject(r.Context(), user, name, description, header.Filename, data)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, _ *http.Request, user domain.User) {
	projects, err := s.app.ListProjects(user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleProjectCases(w http.ResponseWriter, r *http.Request, user domain.User) {
	project, err := s.app.ProjectCases(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleProjectCasesPDF(w http.ResponseWriter, r *http.Request, user domain.User) {
	pdf, filename, err := s.app.ExportProjectPDF(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteProject(r.Context(), user, r.PathValue("id")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteProjectFile(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteProjectFile(r.Context(), user, r.PathValue("id")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
