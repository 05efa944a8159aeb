// Package evidence stores proof files attached to case registrations and
// hands back opaque references for the case record.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxFiles is the number of files accepted in one upload.
const MaxFiles = 5

var (
	ErrNoFiles       = errors.New("evidence: no files uploaded")
	ErrTooManyFiles  = fmt.Errorf("evidence: at most %d files per upload", MaxFiles)
	extensionPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)
)

// Store writes one object and returns its reference.
type Store interface {
	Put(ctx context.Context, name, contentType string, body io.Reader) (string, error)
}

// File is one uploaded part.
type File struct {
	OriginalName string
	ContentType  string
	Body         io.Reader
}

// Uploader names and stores batches of proof files.
type Uploader struct {
	store       Store
	now         func() time.Time
	idGenerator func() string
}

func NewUploader(store Store) *Uploader {
	return &Uploader{
		store:       store,
		now:         time.Now,
		idGenerator: func() string { return uuid.NewString()[:8] },
	}
}

func (u *Uploader) WithClock(now func() time.Time) *Uploader {
	u.now = now
	return u
}

func (u *Uploader) WithIDGenerator(gen func() string) *Uploader {
	u.idGenerator = gen
	return u
}

// Upload stores files in order and returns their references. A failure part
// way leaves earlier files stored.
func (u *Uploader) Upload(ctx context.Context, files []File) ([]string, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if len(files) > MaxFiles {
		return nil, ErrTooManyFiles
	}

	refs := make([]string, 0, len(files))
	for _, f := range files {
		ref, err := u.store.Put(ctx, u.objectName(f.OriginalName), f.ContentType, f.Body)
		if err != nil {
			return refs, fmt.Errorf("evidence: store %q: %w", f.OriginalName, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// objectName keeps only the client's extension; the rest is generated.
func (u *Uploader) objectName(original string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	if !extensionPattern.MatchString(ext) {
		ext = ""
	}
	return fmt.Sprintf("%d-%s%s", u.now().UnixMilli(), u.idGenerator(), ext)
}
