package app

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"casegen/internal/util"
	"casegen/pkg/domain"
)

const attachmentURLExpiry = 15 * time.Minute

// UploadAttachment stores an image in a chat session. Only images are
// accepted; other content types are rejected before touching storage.
func (a *App) UploadAttachment(ctx context.Context, user domain.User, chatID, filename, contentType string, data []byte) (domain.Attachment, error) {
	session, err := a.ownedSession(user, chatID)
	if err != nil {
		return domain.Attachment{}, err
	}
	if !strings.HasPrefix(contentType, "image/") {
		return domain.Attachment{}, ErrNotImage
	}

	key := "attachments/" + uuid.NewString()
	if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return domain.Attachment{}, err
	}
	attachment := domain.Attachment{
		ID:        util.NewID(),
		ChatID:    session.ID,
		FileKey:   key,
		Filename:  filename,
		FileType:  contentType,
		CreatedAt: a.now(),
	}
	if err := a.store.CreateAttachment(attachment); err != nil {
		return domain.Attachment{}, err
	}
	return attachment, nil
}

// AttachmentWithURL pairs an attachment with a short-lived download URL.
type AttachmentWithURL struct {
	domain.Attachment
	URL string `json:"url"`
}

// ListAttachments returns the user's image attachments with presigned
// download URLs, newest first.
func (a *App) ListAttachments(ctx context.Context, user domain.User) ([]AttachmentWithURL, error) {
	attachments, err := a.store.ListImageAttachmentsByOwner(user.ID)
	if err != nil {
		return nil, err
	}
	res := make([]AttachmentWithURL, 0, len(attachments))
	for _, att := range attachments {
		url, err := a.objects.PresignGet(ctx, att.FileKey, attachmentURLExpiry)
		if err != nil {
			util.LoggerFromContext(ctx).Warn("presign attachment failed",
				"attachment_id", att.ID, "error", err.Error())
			continue
		}
		res = append(res, AttachmentWithURL{Attachment: att, URL: url})
	}
	return res, nil
}

// DeleteAttachment removes an attachment and its stored object.
func (a *App) DeleteAttachment(ctx context.Context, user domain.User, attachmentID string) error {
	attachment, ok, err := a.store.GetAttachment(attachmentID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if _, err := a.ownedSession(user, attachment.ChatID); err != nil {
		return err
	}
	if err := a.objects.Delete(ctx, attachment.FileKey); err != nil {
		util.LoggerFromContext(ctx).Warn("delete attachment object failed",
			"attachment_id", attachment.ID, "error", err.Error())
	}
	return a.store.DeleteAttachment(attachment.ID)
}
