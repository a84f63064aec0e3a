package services

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/cppla/orghub/models"
)

// ObjectStore keeps attachment objects addressed by slash separated keys.
type ObjectStore interface {
	Exists(key string) bool
	// MoveIn takes ownership of a local file and stores it under key.
	MoveIn(localPath, key string) error
	Delete(key string) error
	// DeletePrefix removes every object below prefix.
	DeletePrefix(prefix string) error
}

// LocalStore implements ObjectStore on the local file system.
type LocalStore struct {
	Folder string
}

// NewLocalStore creates the base folder when missing.
func NewLocalStore(folder string) (*LocalStore, error) {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("resolve storage folder: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage folder: %w", err)
	}
	return &LocalStore{Folder: abs}, nil
}

// FullPath maps a key onto the file system, refusing keys that escape Folder.
func (s *LocalStore) FullPath(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("empty storage key %q", key)
	}
	return filepath.Join(s.Folder, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func (s *LocalStore) Exists(key string) bool {
	fp, err := s.FullPath(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(fp)
	return err == nil
}

func (s *LocalStore) MoveIn(localPath, key string) error {
	fp, err := s.FullPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return fmt.Errorf("create attachment directory: %w", err)
	}
	if err := os.Rename(localPath, fp); err == nil {
		return nil
	}
	// rename fails across devices
	if err := copyFile(localPath, fp); err != nil {
		_ = os.Remove(fp)
		return fmt.Errorf("move attachment: %w", err)
	}
	return os.Remove(localPath)
}

func (s *LocalStore) Delete(key string) error {
	fp, err := s.FullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStore) DeletePrefix(prefix string) error {
	fp, err := s.FullPath(prefix)
	if err != nil {
		return err
	}
	return os.RemoveAll(fp)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// PostPrefix is the key prefix holding every attachment of a post.
func PostPrefix(organisationID, postID string) string {
	return path.Join("media", "organisation", organisationID, "post", postID)
}

// AttachmentKey is where a post's attachment lives.
func AttachmentKey(organisationID, postID, filename string) string {
	return path.Join(PostPrefix(organisationID, postID), filename)
}

// Attachments binds staged uploads to posts.
type Attachments struct {
	store   ObjectStore
	staging *Staging
	logger  *zap.Logger
}

// NewAttachments creates the attachment lifecycle manager.
func NewAttachments(store ObjectStore, staging *Staging, logger *zap.Logger) *Attachments {
	return &Attachments{store: store, staging: staging, logger: logger}
}

// Place moves a staged file under the post's prefix and returns its key.
func (a *Attachments) Place(staged *models.StagedAttachment, organisationID, postID string) (string, error) {
	key := AttachmentKey(organisationID, postID, staged.Filename)
	if err := a.store.MoveIn(a.staging.Path(staged), key); err != nil {
		return "", err
	}
	a.logger.Info("attachment placed", zap.String("post_id", postID), zap.String("key", key))
	return key, nil
}

// Remove deletes a single attachment.
func (a *Attachments) Remove(key string) error {
	return a.store.Delete(key)
}

// Discard removes a placed attachment after a failed write. Failures are only logged.
func (a *Attachments) Discard(key string) {
	if key == "" {
		return
	}
	if err := a.store.Delete(key); err != nil {
		a.logger.Warn("discard attachment failed", zap.String("key", key), zap.Error(err))
	}
}
