package store

import (
	"time"

	"gorm.io/datatypes"

	"casegen/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	FirstName    string
	LastName     string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type ProfileModel struct {
	UserID    string `gorm:"primaryKey"`
	AvatarKey string
	Bio       string
	Company   string
	Role      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type ProjectModel struct {
	ID               string `gorm:"primaryKey"`
	OwnerID          string `gorm:"not null;uniqueIndex:idx_projects_owner_name"`
	Name             string `gorm:"not null;uniqueIndex:idx_projects_owner_name"`
	Description      string
	FileKey          string
	OriginalFilename string
	TestCases        string    `gorm:"type:text"`
	CreatedAt        time.Time `gorm:"not null"`
}

type ChatSessionModel struct {
	ID              string  `gorm:"primaryKey"`
	OwnerID         string  `gorm:"not null;index"`
	ProjectID       *string `gorm:"index"`
	Title           string  `gorm:"not null"`
	TotalMessages   int     `gorm:"not null;default:0"`
	TotalAIMessages int     `gorm:"not null;default:0"`
	CreatedAt       time.Time `gorm:"not null;index"`
	ClosedAt        *time.Time
}

type ChatMessageModel struct {
	ID               string `gorm:"primaryKey"`
	ChatID           string `gorm:"not null;index"`
	IsUser           bool   `gorm:"not null"`
	Content          string `gorm:"type:text;not null"`
	ResponseTimeMs   int
	PromptTokens     int
	CompletionTokens int
	Language         string
	Success          bool
	ErrorMessage     string
	CreatedAt        time.Time `gorm:"not null;index"`
}

// UsageMetricModel deliberately carries no uniqueness constraint on the
// (user, project, day) key; duplicate rows are collapsed on every update.
type UsageMetricModel struct {
	ID               string  `gorm:"primaryKey"`
	UserID           string  `gorm:"not null;index:idx_metrics_key"`
	ProjectID        *string `gorm:"index:idx_metrics_key"`
	Day              datatypes.Date `gorm:"not null;index:idx_metrics_key"`
	TotalChats       int
	TotalMessages    int
	TotalAIResponses int
	TimeSavedMinutes int
	Accuracy         float64
	CreatedAt        time.Time `gorm:"not null"`
}

type AttachmentModel struct {
	ID        string `gorm:"primaryKey"`
	ChatID    string `gorm:"not null;index"`
	FileKey   string `gorm:"not null"`
	Filename  string
	FileType  string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	value := id
	return &value
}

func fromOptionalID(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func profileToModel(p domain.Profile) ProfileModel {
	return ProfileModel{
		UserID:    p.UserID,
		AvatarKey: p.AvatarKey,
		Bio:       p.Bio,
		Company:   p.Company,
		Role:      p.Role,
		CreatedAt: p.CreatedAt,
	}
}

func profileFromModel(m ProfileModel) domain.Profile {
	return domain.Profile{
		UserID:    m.UserID,
		AvatarKey: m.AvatarKey,
		Bio:       m.Bio,
		Company:   m.Company,
		Role:      m.Role,
		CreatedAt: m.CreatedAt,
	}
}

func projectToModel(p domain.Project) ProjectModel {
	return ProjectModel{
		ID:               p.ID,
		OwnerID:          p.OwnerID,
		Name:             p.Name,
		Description:      p.Description,
		FileKey:          p.FileKey,
		OriginalFilename: p.OriginalFilename,
		TestCases:        p.TestCases,
		CreatedAt:        p.CreatedAt,
	}
}

func projectFromModel(m ProjectModel) domain.Project {
	return domain.Project{
		ID:               m.ID,
		OwnerID:          m.OwnerID,
		Name:             m.Name,
		Description:      m.Description,
		FileKey:          m.FileKey,
		OriginalFilename: m.OriginalFilename,
		TestCases:        m.TestCases,
		CreatedAt:        m.CreatedAt,
	}
}

func sessionToModel(s domain.ChatSession) ChatSessionModel {
	return ChatSessionModel{
		ID:              s.ID,
		OwnerID:         s.OwnerID,
		ProjectID:       optionalID(s.ProjectID),
		Title:           s.Title,
		TotalMessages:   s.TotalMessages,
		TotalAIMessages: s.TotalAIMessages,
		CreatedAt:       s.CreatedAt,
		ClosedAt:        s.ClosedAt,
	}
}

func sessionFromModel(m ChatSessionModel) domain.ChatSession {
	return domain.ChatSession{
		ID:              m.ID,
		OwnerID:         m.OwnerID,
		ProjectID:       fromOptionalID(m.ProjectID),
		Title:           m.Title,
		TotalMessages:   m.TotalMessages,
		TotalAIMessages: m.TotalAIMessages,
		CreatedAt:       m.CreatedAt,
		ClosedAt:        m.ClosedAt,
	}
}

func messageToModel(msg domain.ChatMessage) ChatMessageModel {
	return ChatMessageModel{
		ID:               msg.ID,
		ChatID:           msg.ChatID,
		IsUser:           msg.IsUser,
		Content:          msg.Content,
		ResponseTimeMs:   msg.ResponseTimeMs,
		PromptTokens:     msg.PromptTokens,
		CompletionTokens: msg.CompletionTokens,
		Language:         msg.Language,
		Success:          msg.Success,
		ErrorMessage:     msg.ErrorMessage,
		CreatedAt:        msg.CreatedAt,
	}
}

func messageFromModel(m ChatMessageModel) domain.ChatMessage {
	return domain.ChatMessage{
		ID:               m.ID,
		ChatID:           m.ChatID,
		IsUser:           m.IsUser,
		Content:          m.Content,
		ResponseTimeMs:   m.ResponseTimeMs,
		PromptTokens:     m.PromptTokens,
		CompletionTokens: m.CompletionTokens,
		Language:         m.Language,
		Success:          m.Success,
		ErrorMessage:     m.ErrorMessage,
		CreatedAt:        m.CreatedAt,
	}
}

func metricToModel(m domain.UsageMetric) UsageMetricModel {
	return UsageMetricModel{
		ID:               m.ID,
		UserID:           m.UserID,
		ProjectID:        optionalID(m.ProjectID),
		Day:              datatypes.Date(DayOf(m.Day)),
		TotalChats:       m.TotalChats,
		TotalMessages:    m.TotalMessages,
		TotalAIResponses: m.TotalAIResponses,
		TimeSavedMinutes: m.TimeSavedMinutes,
		Accuracy:         m.Accuracy,
		CreatedAt:        m.CreatedAt,
	}
}

func metricFromModel(m UsageMetricModel) domain.UsageMetric {
	return domain.UsageMetric{
		ID:               m.ID,
		UserID:           m.UserID,
		ProjectID:        fromOptionalID(m.ProjectID),
		Day:              time.Time(m.Day),
		TotalChats:       m.TotalChats,
		TotalMessages:    m.TotalMessages,
		TotalAIResponses: m.TotalAIResponses,
		TimeSavedMinutes: m.TimeSavedMinutes,
		Accuracy:         m.Accuracy,
		CreatedAt:        m.CreatedAt,
	}
}

func attachmentToModel(a domain.Attachment) AttachmentModel {
	return AttachmentModel{
		ID:        a.ID,
		ChatID:    a.ChatID,
		FileKey:   a.FileKey,
		Filename:  a.Filename,
		FileType:  a.FileType,
		CreatedAt: a.CreatedAt,
	}
}

func attachmentFromModel(m AttachmentModel) domain.Attachment {
	return domain.Attachment{
		ID:        m.ID,
		ChatID:    m.ChatID,
		FileKey:   m.FileKey,
		Filename:  m.Filename,
		FileType:  m.FileType,
		CreatedAt: m.CreatedAt,
	}
}
