package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"casegen/internal/util"
	"casegen/pkg/domain"
)

// MemoryStore is an in-memory Store used in tests.
type MemoryStore struct {
	mu          sync.Mutex
	users       map[string]domain.User
	profiles    map[string]domain.Profile
	projects    map[string]domain.Project
	sessions    map[string]domain.ChatSession
	messages    map[string][]domain.ChatMessage
	attachments map[string]domain.Attachment
	metrics     []domain.UsageMetric

	projectOrder    []string
	sessionOrder    []string
	attachmentOrder []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       map[string]domain.User{},
		profiles:    map[string]domain.Profile{},
		projects:    map[string]domain.Project{},
		sessions:    map[string]domain.ChatSession{},
		messages:    map[string][]domain.ChatMessage{},
		attachments: map[string]domain.Attachment{},
	}
}

func (s *MemoryStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) HasUserEmail(email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) GetOrCreateProfile(userID string) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[userID]; ok {
		return p, nil
	}
	p := domain.Profile{UserID: userID, Role: "qa", CreatedAt: time.Now().UTC()}
	s.profiles[userID] = p
	return p, nil
}

func (s *MemoryStore) SaveProfile(p domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
	return nil
}

func (s *MemoryStore) CreateProject(p domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
	s.projectOrder = append(s.projectOrder, p.ID)
	return nil
}

func (s *MemoryStore) HasProjectName(ownerID, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.OwnerID == ownerID && p.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetProject(id string) (domain.Project, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	return p, ok, nil
}

func (s *MemoryStore) ListProjectsByOwner(ownerID string) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.Project
	for i := len(s.projectOrder) - 1; i >= 0; i-- {
		p, ok := s.projects[s.projectOrder[i]]
		if ok && p.OwnerID == ownerID {
			res = append(res, p)
		}
	}
	return res, nil
}

func (s *MemoryStore) ListProjectsWithCases(ownerID string) ([]domain.Project, error) {
	all, _ := s.ListProjectsByOwner(ownerID)
	var res []domain.Project
	for _, p := range all {
		if p.TestCases != "" {
			res = append(res, p)
		}
	}
	return res, nil
}

func (s *MemoryStore) SetProjectTestCases(id, testCases string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.projects[id]; ok {
		p.TestCases = testCases
		s.projects[id] = p
	}
	return nil
}

func (s *MemoryStore) ClearProjectFile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.projects[id]; ok {
		p.FileKey = ""
		p.OriginalFilename = ""
		s.projects[id] = p
	}
	return nil
}

func (s *MemoryStore) DeleteProject(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, id)
	return nil
}

func (s *MemoryStore) CountProjectsByOwner(ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, p := range s.projects {
		if p.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CreateSession(session domain.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	s.sessionOrder = append(s.sessionOrder, session.ID)
	return nil
}

func (s *MemoryStore) GetSession(id string) (domain.ChatSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	return session, ok, nil
}

func (s *MemoryStore) ListSessionsByOwner(ownerID string) ([]domain.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.ChatSession
	for i := len(s.sessionOrder) - 1; i >= 0; i-- {
		session, ok := s.sessions[s.sessionOrder[i]]
		if ok && session.OwnerID == ownerID {
			res = append(res, session)
		}
	}
	return res, nil
}

func (s *MemoryStore) CountSessionsByOwner(ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, session := range s.sessions {
		if session.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CloseSession(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		closedAt := at.UTC()
		session.ClosedAt = &closedAt
		s.sessions[id] = session
	}
	return nil
}

func (s *MemoryStore) AppendMessage(msg domain.ChatMessage, titleIfFirst string) (domain.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[msg.ChatID]
	if !ok {
		return domain.ChatSession{}, ErrSessionNotFound
	}
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], msg)
	first := session.TotalMessages == 0
	session.TotalMessages++
	if !msg.IsUser {
		session.TotalAIMessages++
	}
	if first && titleIfFirst != "" {
		current := strings.TrimSpace(session.Title)
		if current == "" || strings.EqualFold(current, "Nuevo Chat") {
			session.Title = titleIfFirst
		}
	}
	s.sessions[msg.ChatID] = session
	return session, nil
}

func (s *MemoryStore) ListMessages(chatID string) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]domain.ChatMessage, len(s.messages[chatID]))
	copy(res, s.messages[chatID])
	return res, nil
}

func (s *MemoryStore) LastMessageByOwner(ownerID string) (domain.ChatMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last domain.ChatMessage
	found := false
	for chatID, msgs := range s.messages {
		session, ok := s.sessions[chatID]
		if !ok || session.OwnerID != ownerID {
			continue
		}
		for _, msg := range msgs {
			if !found || msg.CreatedAt.After(last.CreatedAt) {
				last = msg
				found = true
			}
		}
	}
	return last, found, nil
}

func (s *MemoryStore) CreateAttachment(a domain.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachments[a.ID] = a
	s.attachmentOrder = append(s.attachmentOrder, a.ID)
	return nil
}

func (s *MemoryStore) GetAttachment(id string) (domain.Attachment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attachments[id]
	return a, ok, nil
}

func (s *MemoryStore) ListImageAttachmentsByOwner(ownerID string) ([]domain.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.Attachment
	for i := len(s.attachmentOrder) - 1; i >= 0; i-- {
		a, ok := s.attachments[s.attachmentOrder[i]]
		if !ok || !strings.HasPrefix(a.FileType, "image/") {
			continue
		}
		session, ok := s.sessions[a.ChatID]
		if ok && session.OwnerID == ownerID {
			res = append(res, a)
		}
	}
	return res, nil
}

func (s *MemoryStore) DeleteAttachment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attachments, id)
	return nil
}

func (s *MemoryStore) CreateMetric(m domain.UsageMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.Day = DayOf(m.Day)
	s.metrics = append(s.metrics, m)
	return nil
}

func (s *MemoryStore) UpdateDailyMetric(userID, projectID string, day time.Time, apply func(*domain.UsageMetric)) (domain.UsageMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dayValue := DayOf(day)

	var matches []int
	for i, m := range s.metrics {
		if m.UserID == userID && m.ProjectID == projectID && m.Day.Equal(dayValue) {
			matches = append(matches, i)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return s.metrics[matches[i]].CreatedAt.Before(s.metrics[matches[j]].CreatedAt)
	})

	var metric domain.UsageMetric
	switch len(matches) {
	case 0:
		metric = domain.UsageMetric{
			ID:        util.NewID(),
			UserID:    userID,
			ProjectID: projectID,
			Day:       dayValue,
			CreatedAt: time.Now().UTC(),
		}
		apply(&metric)
		s.metrics = append(s.metrics, metric)
	default:
		metric = s.metrics[matches[0]]
		keep := make([]domain.UsageMetric, 0, len(s.metrics))
		for i, m := range s.metrics {
			skip := false
			for _, idx := range matches[1:] {
				if i == idx {
					skip = true
					break
				}
			}
			if !skip {
				keep = append(keep, m)
			}
		}
		s.metrics = keep
		apply(&metric)
		for i, m := range s.metrics {
			if m.ID == metric.ID {
				s.metrics[i] = metric
			}
		}
	}
	return metric, nil
}

func (s *MemoryStore) MetricsInRange(userID string, start, end *time.Time) ([]domain.UsageMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.UsageMetric
	for _, m := range s.metrics {
		if m.UserID != userID {
			continue
		}
		if start != nil && m.Day.Before(DayOf(*start)) {
			continue
		}
		if end != nil && m.Day.After(DayOf(*end)) {
			continue
		}
		res = append(res, m)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Day.Before(res[j].Day) })
	return res, nil
}

func (s *MemoryStore) DashboardSummary(userID string) (DashboardSummary, error) {
	metrics, _ := s.MetricsInRange(userID, nil, nil)
	totalProjects, _ := s.CountProjectsByOwner(userID)
	totalChats, _ := s.CountSessionsByOwner(userID)
	var last *domain.ChatMessage
	if msg, ok, _ := s.LastMessageByOwner(userID); ok {
		last = &msg
	}
	return summaryFromMetrics(metrics, totalProjects, totalChats, last), nil
}

func (s *MemoryStore) MetricsReport(userID string, start, end *time.Time) (MetricsReport, error) {
	metrics, _ := s.MetricsInRange(userID, start, end)
	projects, _ := s.ListProjectsByOwner(userID)
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	totalChats, _ := s.CountSessionsByOwner(userID)
	return reportFromMetrics(metrics, names, totalChats), nil
}
