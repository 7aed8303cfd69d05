package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/neighborhood_alerts/internal/models"
)

// ErrUnsupportedMediaType возвращается для файлов, которые не являются изображением или видео
var ErrUnsupportedMediaType = errors.New("unsupported media type")

var allowedTypePrefixes = []string{"image/", "video/"}

// Resolver принимает не более одного файла на алерт и возвращает ссылку на него.
// Содержимое файла не анализируется.
type Resolver struct {
	store     BlobStore
	urlPrefix string
	now       func() time.Time
}

// NewResolver создает Resolver; urlPrefix - путь, под которым раздаются файлы
func NewResolver(store BlobStore, urlPrefix string) *Resolver {
	return &Resolver{
		store:     store,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		now:       time.Now,
	}
}

// Resolve сохраняет файл и возвращает ссылку. Для nil возвращает пустую строку.
// Каждый вызов дает новую ссылку, дедупликации нет.
func (r *Resolver) Resolve(ctx context.Context, upload *models.MediaUpload) (string, error) {
	if upload == nil {
		return "", nil
	}
	if !IsAllowedType(upload.ContentType) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMediaType, upload.ContentType)
	}
	if upload.Content == nil {
		return "", fmt.Errorf("media upload %q has no content", upload.Filename)
	}

	name := r.blobName(upload.Filename)
	if err := r.store.Put(ctx, name, upload.Content); err != nil {
		return "", fmt.Errorf("failed to store media: %w", err)
	}
	return r.urlPrefix + "/" + name, nil
}

// Discard удаляет файл по ссылке, полученной из Resolve
func (r *Resolver) Discard(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	if !strings.HasPrefix(ref, r.urlPrefix+"/") {
		return fmt.Errorf("media reference %q is not managed by this resolver", ref)
	}
	return r.store.Delete(ctx, path.Base(ref))
}

// blobName строит имя из времени загрузки, случайного суффикса и исходного расширения
func (r *Resolver) blobName(original string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s%s", r.now().UnixMilli(), suffix, ext)
}

// IsAllowedType проверяет, что MIME-тип начинается с image/ или video/
func IsAllowedType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	for _, prefix := range allowedTypePrefixes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}
