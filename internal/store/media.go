package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medgas-backend/internal/blob"
	"medgas-backend/internal/model"
)

// MediaStore owns media rows; the bytes live in the blob store.
type MediaStore struct {
	db     *gorm.DB
	log    *zap.Logger
	blobs  blob.Store
	reaper BlobReaper
	ttl    time.Duration
}

// MediaKey is the blob key of an uploaded file.
func MediaKey(siteID string, kind model.NodeType, elementID, fileName string) string {
	return fmt.Sprintf("sites/%s/%s/%s/%s-%s", siteID, kind, elementID, uuid.NewString(), fileName)
}

func cleanFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// UploadMedia stores the bytes of one file and records it against an element of the site.
func (m *MediaStore) UploadMedia(ctx context.Context, siteID string, in UploadInput, body io.Reader) (*model.Media, error) {
	if !in.ElementType.Valid() {
		return nil, invalid(EntityMedia, "unknown elementType %q", in.ElementType)
	}
	fileName := cleanFileName(in.FileName)
	if fileName == "" {
		return nil, invalid(EntityMedia, "fileName is required")
	}
	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	db := m.db.WithContext(ctx)
	site, err := first[model.Site](db, EntitySite, siteID)
	if err != nil {
		return nil, err
	}
	el, err := findElement(db, in.ElementType, in.ElementID)
	if err != nil {
		return nil, asReference(err, string(in.ElementType), in.ElementID)
	}
	if org, elSite := el.Owner(); org != site.OrganizationID || (elSite != nil && *elSite != siteID) {
		return nil, badReference(string(in.ElementType), in.ElementID, "%s %s does not belong to site %s", in.ElementType, in.ElementID, siteID)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	key := MediaKey(siteID, in.ElementType, in.ElementID, fileName)
	if _, err := m.blobs.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: mimeType}); err != nil {
		return nil, fmt.Errorf("store media bytes: %w", err)
	}

	row := model.Media{
		SiteID:      siteID,
		ElementID:   in.ElementID,
		ElementType: in.ElementType,
		StoragePath: key,
		FileName:    fileName,
		MimeType:    mimeType,
		SizeBytes:   int64(len(data)),
	}
	if err := db.Create(&row).Error; err != nil {
		m.queue([]string{key})
		return nil, classify(err, EntityMedia, row.ID)
	}
	m.log.Info("media uploaded",
		zap.String("media_id", row.ID),
		zap.String("element_type", string(in.ElementType)),
		zap.String("element_id", in.ElementID),
		zap.Int64("size_bytes", row.SizeBytes),
	)
	return &row, nil
}

func (m *MediaStore) GetMedia(ctx context.Context, id string) (*model.Media, error) {
	return first[model.Media](m.db.WithContext(ctx), EntityMedia, id)
}

func (m *MediaStore) ListMedia(ctx context.Context, kind model.NodeType, elementID string) ([]model.Media, error) {
	db := m.db.WithContext(ctx)
	if _, err := findElement(db, kind, elementID); err != nil {
		return nil, err
	}
	var out []model.Media
	err := db.Where("element_type = ? AND element_id = ?", kind, elementID).
		Order("created_at, id").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MediaURL returns a time-limited download URL for the file.
func (m *MediaStore) MediaURL(ctx context.Context, id string) (string, error) {
	row, err := m.GetMedia(ctx, id)
	if err != nil {
		return "", err
	}
	return m.blobs.PresignURL(ctx, row.StoragePath, blob.SignedURLOptions{Expiry: m.ttl})
}

// OpenMedia streams the file bytes. The caller closes the reader.
func (m *MediaStore) OpenMedia(ctx context.Context, id string) (*model.Media, io.ReadCloser, error) {
	row, err := m.GetMedia(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	_, rc, err := m.blobs.Get(ctx, row.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open media %s: %w", id, err)
	}
	return row, rc, nil
}

// DeleteMedia removes the row, then queues the bytes for deletion.
func (m *MediaStore) DeleteMedia(ctx context.Context, id string) error {
	row, err := m.GetMedia(ctx, id)
	if err != nil {
		return err
	}
	res := m.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Media{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(EntityMedia, id)
	}
	m.queue([]string{row.StoragePath})
	return nil
}

func (m *MediaStore) deleteForElementTx(tx *gorm.DB, kind model.NodeType, elementID string) ([]string, error) {
	return m.deleteWhere(tx, "element_type = ? AND element_id = ?", kind, elementID)
}

func (m *MediaStore) deleteForSiteTx(tx *gorm.DB, siteID string) ([]string, error) {
	return m.deleteWhere(tx, "site_id = ?", siteID)
}

func (m *MediaStore) deleteWhere(tx *gorm.DB, query string, args ...any) ([]string, error) {
	var keys []string
	if err := tx.Model(&model.Media{}).Where(query, args...).Pluck("storage_path", &keys).Error; err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	if err := tx.Where(query, args...).Delete(&model.Media{}).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// queue hands blob keys to the reaper. Call it only after the deleting transaction commits.
func (m *MediaStore) queue(keys []string) {
	for _, k := range keys {
		m.reaper.Dispatch(k)
	}
}
