package app

import (
	"bytes"
	"context"
	"strings"
	"time"

	"casegen/pkg/domain"
)

const avatarURLExpiry = time.Hour

// ProfileView is a profile with a resolved avatar URL.
type ProfileView struct {
	domain.Profile
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Profile returns the user's profile, creating it on first access.
func (a *App) Profile(ctx context.Context, user domain.User) (ProfileView, error) {
	profile, err := a.store.GetOrCreateProfile(user.ID)
	if err != nil {
		return ProfileView{}, err
	}
	view := ProfileView{Profile: profile}
	if profile.AvatarKey != "" {
		if url, err := a.objects.PresignGet(ctx, profile.AvatarKey, avatarURLExpiry); err == nil {
			view.AvatarURL = url
		}
	}
	return view, nil
}

// ProfileUpdate carries optional profile fields; nil means keep current.
type ProfileUpdate struct {
	Bio     *string
	Company *string
	Role    *string
}

// UpdateProfile applies a partial profile update.
func (a *App) UpdateProfile(ctx context.Context, user domain.User, update ProfileUpdate) (ProfileView, error) {
	profile, err := a.store.GetOrCreateProfile(user.ID)
	if err != nil {
		return ProfileView{}, err
	}
	if update.Bio != nil {
		profile.Bio = strings.TrimSpace(*update.Bio)
	}
	if update.Company != nil {
		profile.Company = strings.TrimSpace(*update.Company)
	}
	if update.Role != nil {
		profile.Role = strings.TrimSpace(*update.Role)
	}
	if err := a.store.SaveProfile(profile); err != nil {
		return ProfileView{}, err
	}
	return a.Profile(ctx, user)
}

// UploadAvatar stores a new avatar image, replacing the previous key.
func (a *App) UploadAvatar(ctx context.Context, user domain.User, contentType string, data []byte) (ProfileView, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return ProfileView{}, ErrNotImage
	}
	profile, err := a.store.GetOrCreateProfile(user.ID)
	if err != nil {
		return ProfileView{}, err
	}
	key := "avatars/" + user.ID
	if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return ProfileView{}, err
	}
	profile.AvatarKey = key
	if err := a.store.SaveProfile(profile); err != nil {
		return ProfileView{}, err
	}
	return a.Profile(ctx, user)
}
