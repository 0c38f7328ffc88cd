package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"casegen/internal/util"
	"casegen/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return NewWithDB(db)
}

// NewWithDB wraps an already-open GORM handle. Tests use this with an
// in-memory SQLite database.
func NewWithDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(
		&UserModel{},
		&ProfileModel{},
		&ProjectModel{},
		&ChatSessionModel{},
		&ChatMessageModel{},
		&UsageMetricModel{},
		&AttachmentModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "first_name", "last_name", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetOrCreateProfile returns the user's profile, creating an empty one on
// first access.
func (s *GormStore) GetOrCreateProfile(userID string) (domain.Profile, error) {
	var model ProfileModel
	err := s.db.First(&model, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		model = ProfileModel{UserID: userID, Role: "qa", CreatedAt: time.Now().UTC()}
		if err := s.db.Create(&model).Error; err != nil {
			return domain.Profile{}, err
		}
		return profileFromModel(model), nil
	}
	if err != nil {
		return domain.Profile{}, err
	}
	return profileFromModel(model), nil
}

// SaveProfile stores or updates a profile.
func (s *GormStore) SaveProfile(p domain.Profile) error {
	model := profileToModel(p)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"avatar_key", "bio", "company", "role"}),
	}).Create(&model).Error
}

// CreateProject stores a new project.
func (s *GormStore) CreateProject(p domain.Project) error {
	model := projectToModel(p)
	return s.db.Create(&model).Error
}

// HasProjectName checks if the owner already has a project with this name.
func (s *GormStore) HasProjectName(ownerID, name string) (bool, error) {
	var count int64
	if err := s.db.Model(&ProjectModel{}).
		Where("owner_id = ? AND name = ?", ownerID, name).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetProject retrieves a project.
func (s *GormStore) GetProject(id string) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	return projectFromModel(model), true, nil
}

// ListProjectsByOwner returns the owner's projects, newest first.
func (s *GormStore) ListProjectsByOwner(ownerID string) ([]domain.Project, error) {
	return s.listProjects("created_at DESC, id DESC", "owner_id = ?", ownerID)
}

// ListProjectsWithCases returns the owner's projects that have generated
// test cases, newest first.
func (s *GormStore) ListProjectsWithCases(ownerID string) ([]domain.Project, error) {
	return s.listProjects("created_at DESC, id DESC", "owner_id = ? AND test_cases <> ''", ownerID)
}

func (s *GormStore) listProjects(order string, conds ...any) ([]domain.Project, error) {
	var models []ProjectModel
	tx := s.db.Order(order)
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Project, 0, len(models))
	for _, m := range models {
		res = append(res, projectFromModel(m))
	}
	return res, nil
}

// SetProjectTestCases stores the generated test cases on a project.
func (s *GormStore) SetProjectTestCases(id, testCases string) error {
	return s.db.Model(&ProjectModel{}).
		Where("id = ?", id).
		Update("test_cases", testCases).Error
}

// ClearProjectFile detaches the uploaded artifact from the project without
// touching the generated cases.
func (s *GormStore) ClearProjectFile(id string) error {
	return s.db.Model(&ProjectModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"file_key": "", "original_filename": ""}).Error
}

// DeleteProject removes a project row.
func (s *GormStore) DeleteProject(id string) error {
	return s.db.Delete(&ProjectModel{}, "id = ?", id).Error
}

// CountProjectsByOwner returns the owner's project count.
func (s *GormStore) CountProjectsByOwner(ownerID string) (int, error) {
	var count int64
	if err := s.db.Model(&ProjectModel{}).Where("owner_id = ?", ownerID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// CreateSession stores a new chat session.
func (s *GormStore) CreateSession(session domain.ChatSession) error {
	model := sessionToModel(session)
	return s.db.Create(&model).Error
}

// GetSession retrieves a chat session.
func (s *GormStore) GetSession(id string) (domain.ChatSession, bool, error) {
	var model ChatSessionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ChatSession{}, false, nil
		}
		return domain.ChatSession{}, false, err
	}
	return sessionFromModel(model), true, nil
}

// ListSessionsByOwner returns the owner's sessions, newest first.
func (s *GormStore) ListSessionsByOwner(ownerID string) ([]domain.ChatSession, error) {
	var models []ChatSessionModel
	if err := s.db.Where("owner_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ChatSession, 0, len(models))
	for _, m := range models {
		res = append(res, sessionFromModel(m))
	}
	return res, nil
}

// CountSessionsByOwner returns the owner's session count.
func (s *GormStore) CountSessionsByOwner(ownerID string) (int, error) {
	var count int64
	if err := s.db.Model(&ChatSessionModel{}).Where("owner_id = ?", ownerID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// CloseSession marks a session closed at the given instant.
func (s *GormStore) CloseSession(id string, at time.Time) error {
	return s.db.Model(&ChatSessionModel{}).
		Where("id = ?", id).
		Update("closed_at", at.UTC()).Error
}

// AppendMessage persists a message and bumps the session counters in the
// same transaction. Counters are incremented in SQL so concurrent appends to
// one session never lose updates. On the first message of a session the title
// is replaced by titleIfFirst when the current title is empty or the
// placeholder.
func (s *GormStore) AppendMessage(msg domain.ChatMessage, titleIfFirst string) (domain.ChatSession, error) {
	var updated domain.ChatSession
	err := s.db.Transaction(func(tx *gorm.DB) error {
		model := messageToModel(msg)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}

		updates := map[string]any{
			"total_messages": gorm.Expr("total_messages + 1"),
		}
		if !msg.IsUser {
			updates["total_ai_messages"] = gorm.Expr("total_ai_messages + 1")
		}
		res := tx.Model(&ChatSessionModel{}).Where("id = ?", msg.ChatID).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}

		if titleIfFirst != "" {
			// total_messages is 1 only for the message appended above
			if err := tx.Model(&ChatSessionModel{}).
				Where("id = ? AND total_messages = 1 AND (TRIM(title) = '' OR LOWER(title) = LOWER(?))", msg.ChatID, "Nuevo Chat").
				Update("title", titleIfFirst).Error; err != nil {
				return err
			}
		}

		var session ChatSessionModel
		if err := tx.First(&session, "id = ?", msg.ChatID).Error; err != nil {
			return err
		}
		updated = sessionFromModel(session)
		return nil
	})
	if err != nil {
		return domain.ChatSession{}, err
	}
	return updated, nil
}

// ListMessages returns a session's messages in send order.
func (s *GormStore) ListMessages(chatID string) ([]domain.ChatMessage, error) {
	var models []ChatMessageModel
	// id breaks ties between messages created in the same instant
	if err := s.db.Where("chat_id = ?", chatID).
		Order("created_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ChatMessage, 0, len(models))
	for _, m := range models {
		res = append(res, messageFromModel(m))
	}
	return res, nil
}

// LastMessageByOwner returns the most recent message across all of the
// owner's sessions.
func (s *GormStore) LastMessageByOwner(ownerID string) (domain.ChatMessage, bool, error) {
	var model ChatMessageModel
	err := s.db.Model(&ChatMessageModel{}).
		Joins("JOIN chat_session_models ON chat_session_models.id = chat_message_models.chat_id").
		Where("chat_session_models.owner_id = ?", ownerID).
		Order("chat_message_models.created_at DESC, chat_message_models.id DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ChatMessage{}, false, nil
		}
		return domain.ChatMessage{}, false, err
	}
	return messageFromModel(model), true, nil
}

// CreateAttachment stores an attachment row.
func (s *GormStore) CreateAttachment(a domain.Attachment) error {
	model := attachmentToModel(a)
	return s.db.Create(&model).Error
}

// GetAttachment retrieves an attachment.
func (s *GormStore) GetAttachment(id string) (domain.Attachment, bool, error) {
	var model AttachmentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Attachment{}, false, nil
		}
		return domain.Attachment{}, false, err
	}
	return attachmentFromModel(model), true, nil
}

// ListImageAttachmentsByOwner returns the owner's image attachments,
// newest first.
func (s *GormStore) ListImageAttachmentsByOwner(ownerID string) ([]domain.Attachment, error) {
	var models []AttachmentModel
	if err := s.db.Model(&AttachmentModel{}).
		Joins("JOIN chat_session_models ON chat_session_models.id = attachment_models.chat_id").
		Where("chat_session_models.owner_id = ? AND attachment_models.file_type LIKE ?", ownerID, "image/%").
		Order("attachment_models.created_at DESC, attachment_models.id DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Attachment, 0, len(models))
	for _, m := range models {
		res = append(res, attachmentFromModel(m))
	}
	return res, nil
}

// DeleteAttachment removes an attachment row.
func (s *GormStore) DeleteAttachment(id string) error {
	return s.db.Delete(&AttachmentModel{}, "id = ?", id).Error
}

// CreateMetric stores a metric row as-is, without reconciliation.
func (s *GormStore) CreateMetric(m domain.UsageMetric) error {
	model := metricToModel(m)
	return s.db.Create(&model).Error
}

// UpdateDailyMetric resolves the (user, project, day) row inside a
// transaction, collapsing duplicates to the earliest-created, applies the
// mutation, and saves.
func (s *GormStore) UpdateDailyMetric(userID, projectID string, day time.Time, apply func(*domain.UsageMetric)) (domain.UsageMetric, error) {
	var result domain.UsageMetric
	err := s.db.Transaction(func(tx *gorm.DB) error {
		dayValue := datatypes.Date(DayOf(day))
		query := tx.Where("user_id = ? AND day = ?", userID, dayValue)
		if projectID == "" {
			query = query.Where("project_id IS NULL")
		} else {
			query = query.Where("project_id = ?", projectID)
		}

		var rows []UsageMetricModel
		if err := query.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
			return err
		}

		var model UsageMetricModel
		switch len(rows) {
		case 0:
			model = UsageMetricModel{
				ID:        util.NewID(),
				UserID:    userID,
				ProjectID: optionalID(projectID),
				Day:       dayValue,
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.Create(&model).Error; err != nil {
				return err
			}
		default:
			model = rows[0]
			for _, extra := range rows[1:] {
				if err := tx.Delete(&UsageMetricModel{}, "id = ?", extra.ID).Error; err != nil {
					return err
				}
			}
		}

		metric := metricFromModel(model)
		apply(&metric)
		model = metricToModel(metric)
		if err := tx.Save(&model).Error; err != nil {
			return err
		}
		result = metric
		return nil
	})
	if err != nil {
		return domain.UsageMetric{}, err
	}
	return result, nil
}

// MetricsInRange returns the user's metric rows, optionally bounded by
// start and end dates (inclusive).
func (s *GormStore) MetricsInRange(userID string, start, end *time.Time) ([]domain.UsageMetric, error) {
	tx := s.db.Where("user_id = ?", userID)
	if start != nil {
		tx = tx.Where("day >= ?", datatypes.Date(DayOf(*start)))
	}
	if end != nil {
		tx = tx.Where("day <= ?", datatypes.Date(DayOf(*end)))
	}
	var models []UsageMetricModel
	if err := tx.Order("day ASC, created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.UsageMetric, 0, len(models))
	for _, m := range models {
		res = append(res, metricFromModel(m))
	}
	return res, nil
}

// DashboardSummary aggregates lifetime usage for the dashboard.
func (s *GormStore) DashboardSummary(userID string) (DashboardSummary, error) {
	metrics, err := s.MetricsInRange(userID, nil, nil)
	if err != nil {
		return DashboardSummary{}, err
	}
	totalProjects, err := s.CountProjectsByOwner(userID)
	if err != nil {
		return DashboardSummary{}, err
	}
	totalChats, err := s.CountSessionsByOwner(userID)
	if err != nil {
		return DashboardSummary{}, err
	}
	var last *domain.ChatMessage
	if msg, ok, err := s.LastMessageByOwner(userID); err != nil {
		return DashboardSummary{}, err
	} else if ok {
		last = &msg
	}
	return summaryFromMetrics(metrics, totalProjects, totalChats, last), nil
}

// MetricsReport aggregates metrics for the filtered report page.
func (s *GormStore) MetricsReport(userID string, start, end *time.Time) (MetricsReport, error) {
	metrics, err := s.MetricsInRange(userID, start, end)
	if err != nil {
		return MetricsReport{}, err
	}
	projects, err := s.ListProjectsByOwner(userID)
	if err != nil {
		return MetricsReport{}, err
	}
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	totalChats, err := s.CountSessionsByOwner(userID)
	if err != nil {
		return MetricsReport{}, err
	}
	return reportFromMetrics(metrics, names, totalChats), nil
}
