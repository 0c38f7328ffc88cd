// Package app implements the application operations behind the HTTP API:
// account management, project uploads, chat generation, and usage metrics.
package app

import (
	"strings"
	"sync"
	"time"

	"casegen/internal/util"
	"casegen/pkg/ai"
	"casegen/pkg/auth"
	"casegen/pkg/domain"
	"casegen/pkg/storage"
	"casegen/pkg/store"
)

// placeholderTitle is the title of a freshly created chat until the first
// message derives a real one.
const placeholderTitle = "Nuevo Chat"

// App wires the store, object storage, and generation client together.
type App struct {
	store     store.Store
	objects   storage.ObjectStore
	generator *ai.Client
	now       func() time.Time

	metricLocks keyedMutex
}

// New builds the application service.
func New(st store.Store, objects storage.ObjectStore, generator *ai.Client) *App {
	return &App{
		store:     st,
		objects:   objects,
		generator: generator,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SignUp registers a new account.
func (a *App) SignUp(email, password, firstName, lastName string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	taken, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, err
	}
	if taken {
		return domain.User{}, ErrEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	now := a.now()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, err
	}
	if _, err := a.store.GetOrCreateProfile(user.ID); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Login checks credentials and returns the account.
func (a *App) Login(email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, err
	}
	if !ok || !auth.ComparePassword(user.PasswordHash, password) {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// UserByID resolves an authenticated subject to its account.
func (a *App) UserByID(id string) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return user, nil
}

// deriveTitle builds a session title from the first message.
func deriveTitle(message string) string {
	message = strings.TrimSpace(message)
	runes := []rune(message)
	if len(runes) > 50 {
		return string(runes[:50])
	}
	return message
}

// keyedMutex hands out one mutex per key so concurrent writers for the
// same metric row are serialised without blocking unrelated rows.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}
