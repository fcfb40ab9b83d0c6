package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"parley/internal/content"
	"parley/internal/filestore"
	"parley/internal/models"
	"parley/internal/storage"
)

// Upload is an attachment as received from a client.
type Upload struct {
	Data     []byte
	MimeType string
	Name     string
}

// Blobs stores uploads and hands back a reference for messages and groups.
type Blobs interface {
	Save(ctx context.Context, ownerID string, upload Upload) (models.Attachment, error)
}

type MetadataStore interface {
	UpsertFileMetadata(ctx context.Context, meta storage.FileMetadata) error
	GetFileMetadata(ctx context.Context, id string) (storage.FileMetadata, error)
}

// Library keeps blob bytes in the file store and their metadata in storage.
type Library struct {
	files filestore.FileStore
	meta  MetadataStore
	now   func() time.Time
}

func NewLibrary(files filestore.FileStore, meta MetadataStore) *Library {
	return &Library{
		files: files,
		meta:  meta,
		now:   time.Now,
	}
}

func (l *Library) Save(ctx context.Context, ownerID string, upload Upload) (models.Attachment, error) {
	if len(upload.Data) == 0 {
		return models.Attachment{}, fmt.Errorf("%w: empty upload", models.ErrInvalidOperation)
	}
	name := content.StripTags(filepath.Base(upload.Name))
	if name == "" || name == "." || name == "/" {
		name = "file"
	}

	hash, size, err := l.files.Save(bytes.NewReader(upload.Data))
	if err != nil {
		return models.Attachment{}, fmt.Errorf("failed to store blob: %w", err)
	}

	meta := storage.FileMetadata{
		ID:        uuid.NewString(),
		Hash:      hash,
		MimeType:  upload.MimeType,
		Name:      name,
		Size:      size,
		CreatedAt: l.now().UnixMilli(),
		UserID:    ownerID,
	}
	if err := l.meta.UpsertFileMetadata(ctx, meta); err != nil {
		return models.Attachment{}, fmt.Errorf("failed to store file metadata: %w", err)
	}

	return models.Attachment{
		FileID:   meta.ID,
		MimeType: meta.MimeType,
		Name:     meta.Name,
		Size:     meta.Size,
	}, nil
}

// Open returns the metadata and content of a stored file.
func (l *Library) Open(ctx context.Context, fileID string) (storage.FileMetadata, io.ReadCloser, error) {
	meta, err := l.meta.GetFileMetadata(ctx, fileID)
	if err != nil {
		return storage.FileMetadata{}, nil, err
	}
	rc, err := l.files.Get(meta.Hash)
	if err != nil {
		return storage.FileMetadata{}, nil, err
	}
	return meta, rc, nil
}
