// Package files is the filesystem side of a survey partition. Every survey
// gets a directory under the store root:
//
//	<root>/<survey id>/responses   attachments, stored under random names
//	<root>/<survey id>/resources   static survey assets, original names
//	<root>/processed_<survey id>.json
//
// Writes go to a temporary file in the target directory and are renamed
// into place, so readers never observe a partially written file.
package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/rhuss/umfrage/pkg/api"
	"github.com/rhuss/umfrage/pkg/debug"
	"github.com/rhuss/umfrage/pkg/observability"
	"github.com/rhuss/umfrage/pkg/storage"
)

const (
	responsesDir = "responses"
	resourcesDir = "resources"

	dirPerm  = 0o750
	filePerm = 0o640
)

// ErrInvalidName is returned for resource names that cannot be stored.
var ErrInvalidName = errors.New("invalid file name")

// ResponseGetter resolves a response row. storage.ResponseStore satisfies it.
type ResponseGetter interface {
	Get(ctx context.Context, id int64) (*api.ResponseRow, error)
}

// Store keeps attachments, resources and processed-components artifacts
// below a root directory.
type Store struct {
	root string
}

// New returns a Store rooted at dir, creating dir if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("files: root directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("creating %s: %w", abs, err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string {
	return s.root
}

// ResponsesDir returns the attachment directory of a survey.
func (s *Store) ResponsesDir(surveyID int64) (string, error) {
	return s.surveyPath(surveyID, responsesDir)
}

// ResourcesDir returns the resource directory of a survey.
func (s *Store) ResourcesDir(surveyID int64) (string, error) {
	return s.surveyPath(surveyID, resourcesDir)
}

// EnsureResponsesDir creates the attachment directory if it is missing.
func (s *Store) EnsureResponsesDir(surveyID int64) error {
	return s.ensure(s.ResponsesDir(surveyID))
}

// EnsureResourcesDir creates the resource directory if it is missing.
func (s *Store) EnsureResourcesDir(surveyID int64) error {
	return s.ensure(s.ResourcesDir(surveyID))
}

// RemoveResponsesDir deletes the attachment directory and everything in
// it. A missing directory is not an error.
func (s *Store) RemoveResponsesDir(surveyID int64) error {
	dir, err := s.ResponsesDir(surveyID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing %s: %w", dir, err)
	}
	return nil
}

// SaveAttachment writes content under a new random name in the survey's
// attachment directory and returns its descriptor. The caller records the
// descriptor in the owning response; until then the file is unreferenced.
func (s *Store) SaveAttachment(ctx context.Context, surveyID int64, fieldKey string, content io.Reader, originalName string) (api.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return api.StoredFile{}, err
	}
	dir, err := s.ResponsesDir(surveyID)
	if err != nil {
		return api.StoredFile{}, err
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return api.StoredFile{}, fmt.Errorf("creating %s: %w", dir, err)
	}

	stored := uuid.NewString()
	size, err := writeAtomic(filepath.Join(dir, stored), content)
	if err != nil {
		return api.StoredFile{}, err
	}

	observability.AttachmentBytesTotal.WithLabelValues("in").Add(float64(size))
	debug.Log("files", "attachment saved", "survey", surveyID, "field", fieldKey, "stored", stored, "size", size)

	return api.StoredFile{
		Filename:       displayName(originalName),
		StoredFilename: stored,
		Size:           size,
	}, nil
}

// LoadAttachment resolves response responseID through rows, reads its
// value at fieldKey as a StoredFile and returns the file's bytes. It fails
// with storage.ErrNotFound if the row, the value or the file is missing.
func (s *Store) LoadAttachment(ctx context.Context, rows ResponseGetter, surveyID int64, fieldKey string, responseID int64) ([]byte, api.StoredFile, error) {
	row, err := rows.Get(ctx, responseID)
	if err != nil {
		return nil, api.StoredFile{}, err
	}
	file, ok := row.Values[fieldKey].(api.StoredFile)
	if !ok {
		return nil, api.StoredFile{}, fmt.Errorf("response %d has no file at %q: %w", responseID, fieldKey, storage.ErrNotFound)
	}

	data, err := s.ReadAttachment(surveyID, file.StoredFilename)
	if err != nil {
		return nil, api.StoredFile{}, err
	}
	return data, file, nil
}

// ReadAttachment reads an attachment by stored name.
func (s *Store) ReadAttachment(surveyID int64, storedName string) ([]byte, error) {
	// Stored names are always generated UUIDs.
	if _, err := uuid.Parse(storedName); err != nil {
		return nil, fmt.Errorf("attachment %q: %w", storedName, storage.ErrNotFound)
	}
	dir, err := s.ResponsesDir(surveyID)
	if err != nil {
		return nil, err
	}
	data, err := readFile(filepath.Join(dir, storedName))
	if err != nil {
		return nil, err
	}
	observability.AttachmentBytesTotal.WithLabelValues("out").Add(float64(len(data)))
	return data, nil
}

// SaveResource stores a survey-level asset under its original file name,
// replacing an existing asset with the same name.
func (s *Store) SaveResource(ctx context.Context, surveyID int64, filename string, content io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	name, err := cleanName(filename)
	if err != nil {
		return 0, err
	}
	if err := s.EnsureResourcesDir(surveyID); err != nil {
		return 0, err
	}
	dir, _ := s.ResourcesDir(surveyID)

	size, err := writeAtomic(filepath.Join(dir, name), content)
	if err != nil {
		return 0, err
	}
	observability.AttachmentBytesTotal.WithLabelValues("in").Add(float64(size))
	debug.Log("files", "resource saved", "survey", surveyID, "name", name, "size", size)
	return size, nil
}

// ReadResource returns a survey-level asset.
func (s *Store) ReadResource(surveyID int64, filename string) ([]byte, error) {
	name, err := cleanName(filename)
	if err != nil {
		return nil, err
	}
	dir, err := s.ResourcesDir(surveyID)
	if err != nil {
		return nil, err
	}
	data, err := readFile(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	observability.AttachmentBytesTotal.WithLabelValues("out").Add(float64(len(data)))
	return data, nil
}

// WriteProcessedComponents replaces the processed-components artifact.
func (s *Store) WriteProcessedComponents(surveyID int64, content []byte) error {
	path, err := s.processedPath(surveyID)
	if err != nil {
		return err
	}
	_, err = writeAtomic(path, bytes.NewReader(content))
	return err
}

// ReadProcessedComponents returns the processed-components artifact.
func (s *Store) ReadProcessedComponents(surveyID int64) ([]byte, error) {
	path, err := s.processedPath(surveyID)
	if err != nil {
		return nil, err
	}
	return readFile(path)
}

// RemoveProcessedComponents deletes the artifact if present.
func (s *Store) RemoveProcessedComponents(surveyID int64) error {
	path, err := s.processedPath(surveyID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

func (s *Store) processedPath(surveyID int64) (string, error) {
	name, err := storage.ProcessedComponentsName(surveyID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, name), nil
}

func (s *Store) surveyPath(surveyID int64, sub string) (string, error) {
	dir, err := storage.DirName(surveyID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, dir, sub), nil
}

func (s *Store) ensure(dir string, err error) error {
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}

// displayName keeps the last element of a client-supplied file name.
func displayName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// cleanName accepts plain file names only.
func cleanName(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}

// writeAtomic writes r to a temp file next to path, syncs it and renames
// it over path.
func writeAtomic(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		return 0, fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("renaming into %s: %w", path, err)
	}
	committed = true
	return n, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
