// Package attachments stores files attached to team responses.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"movetrack/internal/config"
	"movetrack/internal/domain"
)

// ErrTooLarge is returned before any upload when a file exceeds the configured cap.
var ErrTooLarge = errors.New("attachment exceeds size limit")

// File is an upload candidate.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Store is a blob store for attachments.
type Store interface {
	Upload(ctx context.Context, f File, movementID, teamID string) (domain.Attachment, error)
	// Delete removes the blob behind url. It reports false when url is not owned by the store.
	Delete(ctx context.Context, url string) (bool, error)
	// Owns reports whether url names a blob uploaded for the movement and team.
	Owns(url, movementID, teamID string) bool
}

// Error wraps a blob store failure.
type Error struct {
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("attachment %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CheckSize rejects files larger than max bytes.
func CheckSize(f File, max int64) error {
	if max > 0 && f.Size > max {
		return fmt.Errorf("%s is %d bytes, limit is %d: %w", f.Name, f.Size, max, ErrTooLarge)
	}
	return nil
}

// New builds the store selected by cfg. Relative local directories resolve against workspace.
func New(ctx context.Context, cfg config.AttachmentsConfig, workspace string) (Store, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	case "", "local":
		dir := cfg.Local.Dir
		if dir == "" {
			dir = "attachments"
		}
		if !filepath.IsAbs(dir) && workspace != "" {
			dir = filepath.Join(workspace, dir)
		}
		return NewLocalStore(dir, cfg.Local.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown attachments backend %q", cfg.Backend)
	}
}

// cleanName keeps the base name of an uploaded file and drops separators.
func cleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "file"
	}
	return name
}

func objectKey(movementID, teamID, id, name string) string {
	return path.Join(movementID, teamID, id+"-"+cleanName(name))
}

// keyOwnedBy reports whether key has the movementID/teamID/file shape objectKey produces.
func keyOwnedBy(key, movementID, teamID string) bool {
	if movementID == "" || teamID == "" {
		return false
	}
	parts := strings.Split(key, "/")
	return len(parts) == 3 && parts[0] == movementID && parts[1] == teamID && parts[2] != ""
}
