package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/orghub/models"
)

// Staging keeps uploaded files until a post create or edit claims them.
type Staging struct {
	db      *gorm.DB
	dir     string
	ttl     time.Duration
	maxSize int64
	logger  *zap.Logger
	now     func() time.Time
}

// NewStaging prepares the staging directory.
func NewStaging(db *gorm.DB, dir string, ttl time.Duration, maxSize int64, logger *zap.Logger) (*Staging, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}
	return &Staging{db: db, dir: dir, ttl: ttl, maxSize: maxSize, logger: logger, now: time.Now}, nil
}

// Path returns the local file backing a staged upload.
func (s *Staging) Path(st *models.StagedAttachment) string {
	return filepath.Join(s.dir, st.StoredName)
}

// Save writes r into the staging directory and records it for accountID.
func (s *Staging) Save(ctx context.Context, accountID, originalName string, r io.Reader) (*models.StagedAttachment, error) {
	now := s.now()
	filename := now.UTC().Format("20060102150405") + "_" + safeFilename(originalName)
	stored := gonanoid.Must(12) + "_" + filename
	dst := filepath.Join(s.dir, stored)

	out, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}
	lr := &io.LimitedReader{R: r, N: s.maxSize + 1}
	written, err := io.Copy(out, lr)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return nil, fmt.Errorf("write staged file: %w", err)
	}
	if written > s.maxSize {
		_ = os.Remove(dst)
		return nil, Invalid("File size exceeds " + formatSize(s.maxSize))
	}

	st := &models.StagedAttachment{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		StoredName: stored,
		Filename:   filename,
		Size:       written,
		ExpireAt:   now.Add(s.ttl),
	}
	if err := s.db.WithContext(ctx).Create(st).Error; err != nil {
		_ = os.Remove(dst)
		return nil, err
	}
	return st, nil
}

// Resolve returns the staged upload id when it belongs to accountID and its file is still there.
func (s *Staging) Resolve(ctx context.Context, accountID, id string) (*models.StagedAttachment, error) {
	if !IsID(id) {
		return nil, Invalid("Invalid file")
	}
	var st models.StagedAttachment
	err := s.db.WithContext(ctx).Where("id = ? AND account_id = ?", id, accountID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Invalid("Invalid file")
	}
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.Path(&st)); err != nil {
		return nil, Invalid("Invalid file")
	}
	return &st, nil
}

// Consume drops the staging record once its file has been placed.
func (s *Staging) Consume(tx *gorm.DB, st *models.StagedAttachment) error {
	return tx.Delete(&models.StagedAttachment{}, "id = ?", st.ID).Error
}

// Discard removes a staged upload and its record. Failures are only logged.
func (s *Staging) Discard(ctx context.Context, accountID, id string) {
	if !IsID(id) {
		return
	}
	var st models.StagedAttachment
	if err := s.db.WithContext(ctx).Where("id = ? AND account_id = ?", id, accountID).First(&st).Error; err != nil {
		return
	}
	if err := os.Remove(s.Path(&st)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("discard staged file failed", zap.String("upload_id", id), zap.Error(err))
	}
	if err := s.db.WithContext(ctx).Delete(&models.StagedAttachment{}, "id = ?", st.ID).Error; err != nil {
		s.logger.Warn("discard staged record failed", zap.String("upload_id", id), zap.Error(err))
	}
}

// SweepExpired deletes up to limit expired uploads and returns how many were removed.
func (s *Staging) SweepExpired(ctx context.Context, limit int) (int, error) {
	var items []models.StagedAttachment
	if err := s.db.WithContext(ctx).Where("expire_at <= ?", s.now()).Limit(limit).Find(&items).Error; err != nil {
		return 0, err
	}
	for _, it := range items {
		if err := os.Remove(s.Path(&it)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("remove expired upload failed", zap.String("upload_id", it.ID), zap.Error(err))
		}
		// row goes regardless of the file outcome
		if err := s.db.WithContext(ctx).Delete(&models.StagedAttachment{}, "id = ?", it.ID).Error; err != nil {
			return 0, err
		}
	}
	return len(items), nil
}

func formatSize(n int64) string {
	switch {
	case n%(1<<20) == 0:
		return fmt.Sprintf("%dMB", n>>20)
	case n%(1<<10) == 0:
		return fmt.Sprintf("%dKB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func safeFilename(name string) string {
	base := filepath.Base(name)
	ext := strings.ToLower(filepath.Ext(base))
	stem := slug.Make(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		stem = "file"
	}
	if ext != "" {
		ext = "." + slug.Make(strings.TrimPrefix(ext, "."))
		if ext == "." {
			ext = ""
		}
	}
	return stem + ext
}
