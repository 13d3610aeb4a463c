package attachments

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"movetrack/internal/domain"
)

// LocalStore keeps attachments on disk under Dir and addresses them by BaseURL.
type LocalStore struct {
	Dir     string
	BaseURL string
	Now     func() time.Time
}

func NewLocalStore(dir, baseURL string) *LocalStore {
	if baseURL == "" {
		baseURL = "/v0/files"
	}
	return &LocalStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/"), Now: time.Now}
}

func (s *LocalStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *LocalStore) Upload(ctx context.Context, f File, movementID, teamID string) (domain.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Attachment{}, &Error{Op: "upload", Name: f.Name, Err: err}
	}
	key := objectKey(movementID, teamID, uuid.NewString(), f.Name)
	full := filepath.Join(s.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return domain.Attachment{}, &Error{Op: "upload", Name: f.Name, Err: err}
	}
	dst, err := os.Create(full)
	if err != nil {
		return domain.Attachment{}, &Error{Op: "upload", Name: f.Name, Err: err}
	}
	size, err := io.Copy(dst, f.Body)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(full)
		return domain.Attachment{}, &Error{Op: "upload", Name: f.Name, Err: err}
	}
	return domain.Attachment{
		Name:       cleanName(f.Name),
		URL:        s.BaseURL + "/" + key,
		SizeBytes:  size,
		UploadedAt: s.now().UTC().Format(time.RFC3339),
	}, nil
}

func (s *LocalStore) Delete(ctx context.Context, url string) (bool, error) {
	full, ok := s.resolve(url)
	if !ok {
		return false, nil
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, &Error{Op: "delete", Name: path.Base(url), Err: err}
	}
	return true, nil
}

// Owns reports whether url resolves to movementID/teamID inside Dir.
func (s *LocalStore) Owns(url, movementID, teamID string) bool {
	rel, ok := s.relKey(url)
	return ok && keyOwnedBy(rel, movementID, teamID)
}

// relKey returns the cleaned object key behind a store URL.
func (s *LocalStore) relKey(url string) (string, bool) {
	prefix := s.BaseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	rel := path.Clean("/" + strings.TrimPrefix(url, prefix))
	if rel == "/" {
		return "", false
	}
	return strings.TrimPrefix(rel, "/"), true
}

// resolve maps a store URL back to a path inside Dir.
func (s *LocalStore) resolve(url string) (string, bool) {
	rel, ok := s.relKey(url)
	if !ok {
		return "", false
	}
	root, err := filepath.Abs(s.Dir)
	if err != nil {
		return "", false
	}
	full := filepath.Join(root, filepath.FromSlash(rel))
	if !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

// Handler serves stored files; mount it at BaseURL.
func (s *LocalStore) Handler() http.Handler {
	return http.StripPrefix(s.BaseURL, http.FileServer(http.Dir(s.Dir)))
}
