package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"casegen/internal/extract"
	"casegen/internal/util"
	"casegen/pkg/domain"
	"casegen/pkg/export"
)

// Metric row seeded on upload. The AI response count is derived from the
// generated text by counting case headers.
const (
	uploadSeedMinutes  = 10
	uploadSeedAccuracy = 0.9
	caseHeaderMarker   = "ID:"
)

// UploadProject runs the full upload pipeline: duplicate-name check,
// extraction, generation, artifact storage, persistence, and the seeded
// usage metric row. The duplicate check comes first so a taken name fails
// before any extraction work or remote call.
func (a *App) UploadProject(ctx context.Context, user domain.User, name, description, filename string, data []byte) (domain.Project, error) {
	name = strings.TrimSpace(name)
	taken, err := a.store.HasProjectName(user.ID, name)
	if err != nil {
		return domain.Project{}, err
	}
	if taken {
		return domain.Project{}, ErrDuplicateName
	}

	artifact := extract.Artifact{
		Name: filename,
		Kind: extract.DetectKind(filename),
		Data: data,
	}
	text, err := extract.Extract(artifact)
	if err != nil {
		return domain.Project{}, err
	}

	cases, err := a.generator.GenerateProject(ctx, text)
	if err != nil {
		return domain.Project{}, err
	}

	key := "projects/" + uuid.NewString()
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return domain.Project{}, err
	}

	now := a.now()
	project := domain.Project{
		ID:               util.NewID(),
		OwnerID:          user.ID,
		Name:             name,
		Description:      strings.TrimSpace(description),
		FileKey:          key,
		OriginalFilename: filename,
		TestCases:        cases,
		CreatedAt:        now,
	}
	if err := a.store.CreateProject(project); err != nil {
		return domain.Project{}, err
	}

	seed := domain.UsageMetric{
		ID:               util.NewID(),
		UserID:           user.ID,
		ProjectID:        project.ID,
		Day:              now,
		TotalAIResponses: strings.Count(cases, caseHeaderMarker),
		TimeSavedMinutes: uploadSeedMinutes,
		Accuracy:         uploadSeedAccuracy,
		CreatedAt:        now,
	}
	if err := a.store.CreateMetric(seed); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// ListProjects returns the user's projects, newest first.
func (a *App) ListProjects(user domain.User) ([]domain.Project, error) {
	return a.store.ListProjectsByOwner(user.ID)
}

// ProjectCases returns a project's generated test cases. When the project
// has none yet they are generated once from the stored artifact (or the
// description as a fallback) and persisted for reuse.
func (a *App) ProjectCases(ctx context.Context, user domain.User, projectID string) (domain.Project, error) {
	project, err := a.ownedProject(user, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if project.TestCases != "" {
		return project, nil
	}

	text, err := a.projectText(ctx, project)
	if err != nil {
		return domain.Project{}, err
	}
	cases, err := a.generator.GenerateProject(ctx, text)
	if err != nil {
		return domain.Project{}, err
	}
	if err := a.store.SetProjectTestCases(project.ID, cases); err != nil {
		return domain.Project{}, err
	}
	project.TestCases = cases
	return project, nil
}

func (a *App) projectText(ctx context.Context, project domain.Project) (string, error) {
	if project.FileKey == "" {
		return project.Description, nil
	}
	body, err := a.objects.Get(ctx, project.FileKey)
	if err != nil {
		return "", err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	artifact := extract.Artifact{
		Name: project.OriginalFilename,
		Kind: extract.DetectKind(project.OriginalFilename),
		Data: data,
	}
	return extract.Extract(artifact)
}

// DeleteProject removes a project and its stored artifact.
func (a *App) DeleteProject(ctx context.Context, user domain.User, projectID string) error {
	project, err := a.ownedProject(user, projectID)
	if err != nil {
		return err
	}
	if project.FileKey != "" {
		if err := a.objects.Delete(ctx, project.FileKey); err != nil {
			util.LoggerFromContext(ctx).Warn("delete project artifact failed",
				"project_id", project.ID, "error", err.Error())
		}
	}
	return a.store.DeleteProject(project.ID)
}

// DeleteProjectFile removes the stored artifact but keeps the project and
// its generated cases.
func (a *App) DeleteProjectFile(ctx context.Context, user domain.User, projectID string) error {
	project, err := a.ownedProject(user, projectID)
	if err != nil {
		return err
	}
	if project.FileKey == "" {
		return nil
	}
	if err := a.objects.Delete(ctx, project.FileKey); err != nil {
		return err
	}
	return a.store.ClearProjectFile(project.ID)
}

// ExportProjectPDF renders a project's test cases as a PDF download.
func (a *App) ExportProjectPDF(_ context.Context, user domain.User, projectID string) ([]byte, string, error) {
	project, err := a.ownedProject(user, projectID)
	if err != nil {
		return nil, "", err
	}
	if project.TestCases == "" {
		return nil, "", ErrNoCases
	}
	pdf, err := export.CasesPDF(project.Name, project.TestCases)
	if err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("%s_casos_de_prueba.pdf", slugify(project.Name))
	return pdf, filename, nil
}

func (a *App) ownedProject(user domain.User, projectID string) (domain.Project, error) {
	project, ok, err := a.store.GetProject(projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if !ok || project.OwnerID != user.ID {
		return domain.Project{}, ErrNotFound
	}
	return project, nil
}

func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "proyecto"
	}
	return b.String()
}
