package app

import (
	"context"
	"strings"
	"time"

	"casegen/internal/util"
	"casegen/pkg/ai"
	"casegen/pkg/domain"
)

// CreateChat opens a new session, optionally bound to one of the user's
// projects.
func (a *App) CreateChat(user domain.User, projectID string) (domain.ChatSession, error) {
	if projectID != "" {
		if _, err := a.ownedProject(user, projectID); err != nil {
			return domain.ChatSession{}, err
		}
	}
	session := domain.ChatSession{
		ID:        util.NewID(),
		OwnerID:   user.ID,
		ProjectID: projectID,
		Title:     placeholderTitle,
		CreatedAt: a.now(),
	}
	if err := a.store.CreateSession(session); err != nil {
		return domain.ChatSession{}, err
	}
	if err := a.recordChatCreated(user, projectID); err != nil {
		return domain.ChatSession{}, err
	}
	return session, nil
}

// GetChat returns a session and its messages. Wrong owner reads as absent.
func (a *App) GetChat(user domain.User, chatID string) (domain.ChatSession, []domain.ChatMessage, error) {
	session, err := a.ownedSession(user, chatID)
	if err != nil {
		return domain.ChatSession{}, nil, err
	}
	messages, err := a.store.ListMessages(chatID)
	if err != nil {
		return domain.ChatSession{}, nil, err
	}
	return session, messages, nil
}

// ListChats returns the user's sessions, newest first.
func (a *App) ListChats(user domain.User) ([]domain.ChatSession, error) {
	return a.store.ListSessionsByOwner(user.ID)
}

// CloseChat marks a session closed. Later appends still work but are
// logged.
func (a *App) CloseChat(user domain.User, chatID string) (domain.ChatSession, error) {
	session, err := a.ownedSession(user, chatID)
	if err != nil {
		return domain.ChatSession{}, err
	}
	closedAt := a.now()
	if err := a.store.CloseSession(session.ID, closedAt); err != nil {
		return domain.ChatSession{}, err
	}
	session.ClosedAt = &closedAt
	return session, nil
}

// SendMessage runs one blocking generation turn: persist the user message,
// call the generation endpoint, persist and return the AI message.
func (a *App) SendMessage(ctx context.Context, user domain.User, chatID, content string) (domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.ChatMessage{}, ErrEmptyMessage
	}
	session, err := a.ownedSession(user, chatID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	a.warnIfClosed(ctx, session)

	if err := a.appendUserMessage(user, session, content); err != nil {
		return domain.ChatMessage{}, err
	}

	contextText, err := a.chatContext(session)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	start := a.now()
	out, err := a.generator.Generate(ctx, ai.ComposeBlocking(content, contextText))
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return a.appendAIMessage(user, session, out, int(time.Since(start).Milliseconds()))
}

// StreamChat runs one streaming generation turn. Each generated line is
// handed to sink as it arrives; the AI message is persisted only after the
// stream ends cleanly. A sink error means the client went away, so the
// upstream request is aborted and nothing more is persisted.
func (a *App) StreamChat(ctx context.Context, user domain.User, chatID, content string, sink func(line string) error) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}
	session, err := a.ownedSession(user, chatID)
	if err != nil {
		return err
	}
	a.warnIfClosed(ctx, session)

	if err := a.appendUserMessage(user, session, content); err != nil {
		return err
	}

	contextText, err := a.chatContext(session)
	if err != nil {
		return err
	}
	start := a.now()
	stream, err := a.generator.GenerateStream(ctx, ai.ComposeStream(content, contextText))
	if err != nil {
		return err
	}
	defer stream.Close()

	var transcript strings.Builder
	for stream.Next() {
		line := stream.Line()
		transcript.WriteString(line)
		if err := sink(line); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	_, err = a.appendAIMessage(user, session, transcript.String(), int(time.Since(start).Milliseconds()))
	return err
}

func (a *App) appendUserMessage(user domain.User, session domain.ChatSession, content string) error {
	msg := domain.ChatMessage{
		ID:        util.NewID(),
		ChatID:    session.ID,
		IsUser:    true,
		Content:   content,
		CreatedAt: a.now(),
	}
	if _, err := a.store.AppendMessage(msg, deriveTitle(content)); err != nil {
		return err
	}
	return a.recordMessage(user, session.ProjectID, false, 0)
}

func (a *App) appendAIMessage(user domain.User, session domain.ChatSession, content string, responseTimeMs int) (domain.ChatMessage, error) {
	msg := domain.ChatMessage{
		ID:             util.NewID(),
		ChatID:         session.ID,
		IsUser:         false,
		Content:        strings.TrimSpace(content),
		ResponseTimeMs: responseTimeMs,
		Language:       "es",
		Success:        true,
		CreatedAt:      a.now(),
	}
	if _, err := a.store.AppendMessage(msg, ""); err != nil {
		return domain.ChatMessage{}, err
	}
	if err := a.recordMessage(user, session.ProjectID, true, responseTimeMs); err != nil {
		return domain.ChatMessage{}, err
	}
	return msg, nil
}

// chatContext resolves the generation context for a session: the test
// cases of its linked project, when there is one.
func (a *App) chatContext(session domain.ChatSession) (string, error) {
	if session.ProjectID == "" {
		return "", nil
	}
	project, ok, err := a.store.GetProject(session.ProjectID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return project.TestCases, nil
}

func (a *App) ownedSession(user domain.User, chatID string) (domain.ChatSession, error) {
	session, ok, err := a.store.GetSession(chatID)
	if err != nil {
		return domain.ChatSession{}, err
	}
	if !ok || session.OwnerID != user.ID {
		return domain.ChatSession{}, ErrNotFound
	}
	return session, nil
}

func (a *App) warnIfClosed(ctx context.Context, session domain.ChatSession) {
	if session.ClosedAt == nil {
		return
	}
	util.LoggerFromContext(ctx).Warn("message appended to closed session",
		"chat_id", session.ID,
		"closed_at", session.ClosedAt.Format(time.RFC3339))
}
