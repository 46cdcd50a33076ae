package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/imaad666/W-Chhatt/internal/audit"
	"github.com/imaad666/W-Chhatt/internal/domain"
	"github.com/imaad666/W-Chhatt/pkg/log"
	"github.com/imaad666/W-Chhatt/pkg/storage"
)

// AttachmentURLPrefix is the download route attachment messages point at.
const AttachmentURLPrefix = "/api/attachments/"

var (
	ErrAttachmentsDisabled = errors.New("attachments are disabled")
	ErrAttachmentTooLarge  = errors.New("attachment exceeds the upload limit")
	ErrAttachmentNotFound  = errors.New("attachment not found")
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Attachment is an uploaded file on its way to storage.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Attachments stores message files in a storage backend.
type Attachments struct {
	store   storage.Storage
	maxSize int64
}

func NewAttachments(store storage.Storage, maxSize int64) *Attachments {
	return &Attachments{store: store, maxSize: maxSize}
}

// Open returns the stored file for key.
func (a *Attachments) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.Contains(key, "..") {
		return nil, ErrAttachmentNotFound
	}
	rc, err := a.store.Read(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrAttachmentNotFound
		}
		return nil, err
	}
	return rc, nil
}

// Remove deletes the object an attachment message points at.
func (a *Attachments) Remove(ctx context.Context, content string) {
	key := strings.TrimPrefix(content, AttachmentURLPrefix)
	if key == content {
		return
	}
	if err := a.store.Delete(ctx, key); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("key", key).Msg("failed to delete attachment")
	}
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	return name
}

// OpenAttachment streams a stored attachment by its storage key.
func (r *Relay) OpenAttachment(ctx context.Context, key string) (io.ReadCloser, error) {
	if r.attachments == nil {
		return nil, ErrAttachmentsDisabled
	}
	return r.attachments.Open(ctx, key)
}

// SendAttachment stores file and posts an IMAGE or FILE message pointing at
// it.
func (r *Relay) SendAttachment(ctx context.Context, roomID string, sender domain.Identity, file Attachment) (*domain.Message, error) {
	if r.attachments == nil {
		return nil, ErrAttachmentsDisabled
	}
	if r.attachments.maxSize > 0 && file.Size > r.attachments.maxSize {
		return nil, ErrAttachmentTooLarge
	}

	user, err := r.resolve(ctx, roomID, sender)
	if err != nil {
		return nil, err
	}

	objectID, err := r.ids.Generate()
	if err != nil {
		return nil, err
	}
	key := path.Join("rooms", roomID, objectID, sanitizeFilename(file.Filename))

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := r.attachments.store.Write(ctx, key, file.Body, file.Size, contentType); err != nil {
		return nil, fmt.Errorf("failed to store attachment: %w", err)
	}

	msgType := domain.MessageTypeFile
	if strings.HasPrefix(contentType, "image/") {
		msgType = domain.MessageTypeImage
	}

	msg, err := r.store(ctx, roomID, user, AttachmentURLPrefix+key, msgType)
	if err != nil {
		if delErr := r.attachments.store.Delete(ctx, key); delErr != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(delErr).Str("key", key).Msg("failed to clean up attachment")
		}
		return nil, err
	}

	audit.Record(ctx, audit.Event{Action: audit.ActionUpload, UserID: user.ID, RoomID: roomID, MessageID: msg.ID, Detail: key}, "attachment uploaded")
	return msg, nil
}
