package store

import (
	"errors"
	"time"

	"casegen/pkg/domain"
)

// ErrSessionNotFound is returned by AppendMessage for an unknown session.
var ErrSessionNotFound = errors.New("chat session not found")

// Store defines persistence operations for users, projects, chats, and
// usage metrics.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// profiles
	GetOrCreateProfile(userID string) (domain.Profile, error)
	SaveProfile(domain.Profile) error

	// projects
	CreateProject(domain.Project) error
	HasProjectName(ownerID, name string) (bool, error)
	GetProject(id string) (domain.Project, bool, error)
	ListProjectsByOwner(ownerID string) ([]domain.Project, error)
	ListProjectsWithCases(ownerID string) ([]domain.Project, error)
	SetProjectTestCases(id, testCases string) error
	ClearProjectFile(id string) error
	DeleteProject(id string) error
	CountProjectsByOwner(ownerID string) (int, error)

	// chat sessions and messages
	CreateSession(domain.ChatSession) error
	GetSession(id string) (domain.ChatSession, bool, error)
	ListSessionsByOwner(ownerID string) ([]domain.ChatSession, error)
	CountSessionsByOwner(ownerID string) (int, error)
	CloseSession(id string, at time.Time) error
	// AppendMessage persists a message and, in the same transaction, bumps
	// the session counters and applies titleIfFirst when this is the
	// session's first message and the current title is empty or the
	// placeholder. It returns the updated session.
	AppendMessage(msg domain.ChatMessage, titleIfFirst string) (domain.ChatSession, error)
	ListMessages(chatID string) ([]domain.ChatMessage, error)
	LastMessageByOwner(ownerID string) (domain.ChatMessage, bool, error)

	// attachments
	CreateAttachment(domain.Attachment) error
	GetAttachment(id string) (domain.Attachment, bool, error)
	ListImageAttachmentsByOwner(ownerID string) ([]domain.Attachment, error)
	DeleteAttachment(id string) error

	// usage metrics
	CreateMetric(domain.UsageMetric) error
	// UpdateDailyMetric resolves the (user, project, day) row inside a
	// transaction, collapsing any duplicate rows to the earliest-created,
	// applies the mutation, and saves. The row is created when absent.
	UpdateDailyMetric(userID, projectID string, day time.Time, apply func(*domain.UsageMetric)) (domain.UsageMetric, error)
	MetricsInRange(userID string, start, end *time.Time) ([]domain.UsageMetric, error)
	DashboardSummary(userID string) (DashboardSummary, error)
	MetricsReport(userID string, start, end *time.Time) (MetricsReport, error)
}

// DashboardSummary is the aggregated view behind the dashboard endpoints.
type DashboardSummary struct {
	TotalCases       int                 `json:"totalCases"`
	TotalChats       int                 `json:"totalChats"`
	TotalProjects    int                 `json:"totalProjects"`
	TimeSavedMinutes int                 `json:"timeSavedMinutes"`
	AccuracyAvg      float64             `json:"accuracy"`
	LastActivity     *domain.ChatMessage `json:"lastActivity,omitempty"`
}

// DailyPoint is one day of accumulated generation activity.
type DailyPoint struct {
	Day              string `json:"date"`
	Cases            int    `json:"cases"`
	TimeSavedMinutes int    `json:"timeSaved"`
}

// ProjectPoint is per-project accumulated generation activity.
type ProjectPoint struct {
	Name             string  `json:"name"`
	Cases            int     `json:"cases"`
	TimeSavedMinutes int     `json:"timeSaved"`
	AccuracyAvg      float64 `json:"accuracy"`
}

// MetricsReport is the filtered metrics page payload.
type MetricsReport struct {
	TotalCases       int            `json:"totalCases"`
	TotalChats       int            `json:"totalChats"`
	TotalProjects    int            `json:"totalProjects"`
	TimeSavedMinutes int            `json:"timeSaved"`
	AccuracyAvg      float64        `json:"accuracy"`
	Daily            []DailyPoint   `json:"daily"`
	Projects         []ProjectPoint `json:"projects"`
}

// DayKey formats a day the way metric rows are keyed.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// DayOf truncates a timestamp to its UTC date.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
