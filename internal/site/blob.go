package site

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Uploader stores an image for a publishing actor and returns where it
// ended up.
type Uploader interface {
	Save(subject, filename string, r io.Reader) (SavedBlob, error)
}

// SavedBlob is a completed upload: the store-relative path and the
// publicly resolvable URL for it.
type SavedBlob struct {
	Path string
	URL  string
}

type BlobStoreConfig struct {
	// Root directory for stored blobs. Created if missing.
	Root string
	// PublicBase is the URL prefix media is served under, e.g.
	// "http://127.0.0.1:8080/media".
	PublicBase string
	Now        func() time.Time
}

// BlobStore keeps uploaded images on disk under per-identity prefixes
// (posts/<subject>/...) and serves them back over /media/.
type BlobStore struct {
	rootAbs    string
	publicBase string
	now        func() time.Time
}

var blobSubjectRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func NewBlobStore(cfg BlobStoreConfig) (*BlobStore, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, errors.New("Root is required")
	}
	rootAbs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(rootAbs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &BlobStore{
		rootAbs:    rootAbs,
		publicBase: strings.TrimRight(cfg.PublicBase, "/"),
		now:        now,
	}, nil
}

// Save writes the upload under posts/<subject>/<unix-ms>-<name>. The
// timestamp prefix keeps concurrent uploads of the same filename from
// colliding; the subject segment scopes the blob to its publisher.
func (b *BlobStore) Save(subject, filename string, r io.Reader) (SavedBlob, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return SavedBlob{}, errors.New("subject is required")
	}
	if !blobSubjectRe.MatchString(subject) || strings.HasPrefix(subject, ".") {
		return SavedBlob{}, fmt.Errorf("invalid subject %q", subject)
	}

	name := sanitizeBlobName(filename)
	rel := path.Join("posts", subject, fmt.Sprintf("%d-%s", b.now().UnixMilli(), name))
	destAbs := filepath.Join(b.rootAbs, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(destAbs), 0o755); err != nil {
		return SavedBlob{}, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := writeStreamAtomic(destAbs, r, 0o644, ".upload-*"); err != nil {
		return SavedBlob{}, fmt.Errorf("failed to store upload: %w", err)
	}

	return SavedBlob{Path: rel, URL: b.PublicURL(rel)}, nil
}

// PublicURL resolves a store-relative path to the URL it is served at.
func (b *BlobStore) PublicURL(rel string) string {
	return b.publicBase + "/" + strings.TrimLeft(rel, "/")
}

// MediaHandler serves stored blobs. Paths are confined to the blob root;
// absolute paths and traversal attempts are rejected.
func MediaHandler(b *BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rel := strings.TrimPrefix(r.URL.Path, "/media/")
		absPath, apiErr, status := b.resolve(rel)
		if apiErr != nil {
			WriteAPIError(w, status, *apiErr)
			return
		}
		http.ServeFile(w, r, absPath)
	}
}

func (b *BlobStore) resolve(rel string) (string, *APIError, int) {
	if rel == "" || strings.Contains(rel, "\x00") || strings.Contains(rel, "\\") {
		return "", &APIError{
			Code:    "VALIDATION_ERROR",
			Message: "invalid media path",
		}, http.StatusBadRequest
	}

	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == "." ||
		clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", &APIError{
			Code:    "MEDIA_NOT_ALLOWED",
			Message: "media path escapes the blob store",
		}, http.StatusForbidden
	}

	absPath := filepath.Join(b.rootAbs, clean)
	if !isWithinRoot(b.rootAbs, absPath) {
		return "", &APIError{
			Code:    "MEDIA_NOT_ALLOWED",
			Message: "media path escapes the blob store",
		}, http.StatusForbidden
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &APIError{
				Code:    "MEDIA_NOT_FOUND",
				Message: "media not found",
			}, http.StatusNotFound
		}
		return "", &APIError{
			Code:    "INTERNAL_ERROR",
			Message: "failed to stat media",
		}, http.StatusInternalServerError
	}
	if !info.Mode().IsRegular() {
		return "", &APIError{
			Code:    "MEDIA_NOT_ALLOWED",
			Message: "only regular files are served",
		}, http.StatusForbidden
	}
	return absPath, nil, http.StatusOK
}

func isWithinRoot(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func sanitizeBlobName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	cleaned := strings.Trim(b.String(), ".")
	if cleaned == "" {
		cleaned = "upload"
	}
	return cleaned
}

func writeStreamAtomic(dest string, r io.Reader, perm os.FileMode, tmpPrefix string) error {
	dir := filepath.Dir(dest)
	f, err := os.CreateTemp(dir, tmpPrefix)
	if err != nil {
		return err
	}
	tmpPath := f.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(perm); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	// Ensure rename works even if the destination already exists.
	_ = os.Remove(dest)
	return os.Rename(tmpPath, dest)
}
