package domain

import "time"

// User is an authenticated account. Identity is always passed explicitly
// into application operations, never read from ambient state.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Profile holds presentation data attached to a user.
type Profile struct {
	UserID    string    `json:"userId"`
	AvatarKey string    `json:"avatarKey,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	Company   string    `json:"company,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Project is a user-owned uploaded artifact plus its generated test cases.
// Name is unique per owner. TestCases is populated once and reused on
// subsequent reads.
type Project struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"ownerId"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	FileKey          string    `json:"-"`
	OriginalFilename string    `json:"originalFilename,omitempty"`
	TestCases        string    `json:"testCases,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ChatSession groups chat messages for one user, optionally bound to a
// project. Counters are maintained by the message ledger.
type ChatSession struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"ownerId"`
	ProjectID       string     `json:"projectId,omitempty"`
	Title           string     `json:"title"`
	TotalMessages   int        `json:"totalMessages"`
	TotalAIMessages int        `json:"totalAiMessages"`
	CreatedAt       time.Time  `json:"createdAt"`
	ClosedAt        *time.Time `json:"closedAt,omitempty"`
}

// ChatMessage is one chat turn. Timing/token/outcome fields are only
// populated for AI-authored messages.
type ChatMessage struct {
	ID               string    `json:"id"`
	ChatID           string    `json:"chatId"`
	IsUser           bool      `json:"isUser"`
	Content          string    `json:"content"`
	ResponseTimeMs   int       `json:"responseTimeMs,omitempty"`
	PromptTokens     int       `json:"promptTokens,omitempty"`
	CompletionTokens int       `json:"completionTokens,omitempty"`
	Language         string    `json:"language,omitempty"`
	Success          bool      `json:"success"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// UsageMetric accumulates activity for one (user, project-or-none, day).
// ProjectID is empty for chats without a bound project.
type UsageMetric struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	ProjectID        string    `json:"projectId,omitempty"`
	Day              time.Time `json:"day"`
	TotalChats       int       `json:"totalChats"`
	TotalMessages    int       `json:"totalMessages"`
	TotalAIResponses int       `json:"totalAiResponses"`
	TimeSavedMinutes int       `json:"estimatedTimeSavedMinutes"`
	Accuracy         float64   `json:"estimatedAccuracy"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Attachment is a file uploaded into a chat. Only images are accepted.
type Attachment struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	FileKey   string    `json:"-"`
	Filename  string    `json:"filename"`
	FileType  string    `json:"fileType"`
	CreatedAt time.Time `json:"createdAt"`
}
