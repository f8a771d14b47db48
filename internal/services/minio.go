// Package services wraps the object store and the search cluster.
package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/models"
)

const MaxMediaSize = 10 << 20

var allowedMedia = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"application/pdf": ".pdf",
}

// CheckMedia validates an attachment before it is uploaded.
func CheckMedia(contentType string, size int64) error {
	if _, ok := allowedMedia[contentType]; !ok {
		return apperr.Validation("media", "unsupported file type "+contentType)
	}
	if size <= 0 || size > MaxMediaSize {
		return apperr.Validation("media", "attachments must be between 1 byte and 10 MB")
	}
	return nil
}

// MediaKey names the object of an attachment: <prefix>/<uuid><ext>.
func MediaKey(prefix, contentType string) string {
	return path.Join(prefix, uuid.NewString()+allowedMedia[contentType])
}

// MediaStore puts ticket attachments in a MinIO bucket.
type MediaStore struct {
	client *minio.Client
	bucket string
}

func NewMediaStore(client *minio.Client, bucket string) *MediaStore {
	return &MediaStore{client: client, bucket: bucket}
}

func (s *MediaStore) Upload(ctx context.Context, prefix string, r io.Reader, size int64, contentType string) (models.TicketMedia, error) {
	if err := CheckMedia(contentType, size); err != nil {
		return models.TicketMedia{}, err
	}
	key := MediaKey(prefix, contentType)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return models.TicketMedia{}, apperr.Wrap(apperr.ErrExternalService, fmt.Errorf("upload %s: %w", key, err))
	}
	log.Printf("📤 Uploaded %s (%d bytes)", key, size)
	return models.TicketMedia{Key: key, ContentType: contentType, Size: size}, nil
}

// UploadFile is Upload for a multipart form file.
func UploadFile(ctx context.Context, m Media, prefix string, fh *multipart.FileHeader) (models.TicketMedia, error) {
	contentType := strings.TrimSpace(strings.Split(fh.Header.Get("Content-Type"), ";")[0])
	if err := CheckMedia(contentType, fh.Size); err != nil {
		return models.TicketMedia{}, err
	}
	f, err := fh.Open()
	if err != nil {
		return models.TicketMedia{}, apperr.Validation("media", "unreadable file "+fh.Filename)
	}
	defer f.Close()
	return m.Upload(ctx, prefix, f, fh.Size, contentType)
}

func (s *MediaStore) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// Media is what the ticket handlers need from an object store.
type Media interface {
	Upload(ctx context.Context, prefix string, r io.Reader, size int64, contentType string) (models.TicketMedia, error)
	Delete(ctx context.Context, key string) error
	Sign(ctx context.Context, media []models.TicketMedia) []models.TicketMedia
}

// MemoryMedia keeps attachments in process for the memory backend.
type MemoryMedia struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryMedia() *MemoryMedia {
	return &MemoryMedia{objects: make(map[string][]byte)}
}

func (m *MemoryMedia) Upload(_ context.Context, prefix string, r io.Reader, size int64, contentType string) (models.TicketMedia, error) {
	if err := CheckMedia(contentType, size); err != nil {
		return models.TicketMedia{}, err
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxMediaSize+1))
	if err != nil {
		return models.TicketMedia{}, err
	}
	key := MediaKey(prefix, contentType)
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return models.TicketMedia{Key: key, ContentType: contentType, Size: int64(len(data))}, nil
}

func (m *MemoryMedia) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryMedia) Sign(_ context.Context, media []models.TicketMedia) []models.TicketMedia {
	out := make([]models.TicketMedia, len(media))
	for i, md := range media {
		md.URL = "memory://" + md.Key
		out[i] = md
	}
	return out
}

func (m *MemoryMedia) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}
