package security

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathEscapes  = errors.New("path escapes workspace")
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
	ErrEmptyPath    = errors.New("empty path not allowed")
)

// PathValidator confines ledger paths and file access to one workspace
// directory using os.Root.
type PathValidator struct {
	root *os.Root
	dir  string
}

// New opens a PathValidator rooted at dir
func New(dir string) (*PathValidator, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace root: %w", err)
	}

	return &PathValidator{root: root, dir: absPath}, nil
}

// Close releases the underlying root handle.
func (pv *PathValidator) Close() error {
	if pv.root != nil {
		return pv.root.Close()
	}
	return nil
}

// Dir returns the absolute workspace directory
func (pv *PathValidator) Dir() string {
	return pv.dir
}

// ValidateAndNormalize turns a relative user path into the slash-separated
// form stored in the ledger. Empty, absolute and escaping paths are
// rejected, as are names filepath.IsLocal refuses (NUL, CON on Windows).
func (pv *PathValidator) ValidateAndNormalize(userPath string) (string, error) {
	if userPath == "" {
		return "", ErrEmptyPath
	}

	if !filepath.IsLocal(userPath) {
		if filepath.IsAbs(userPath) {
			return "", fmt.Errorf("%w: %s", ErrAbsolutePath, userPath)
		}
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, userPath)
	}

	return filepath.ToSlash(filepath.Clean(userPath)), nil
}

// Normalize accepts either a relative path or an absolute path that lies
// inside the workspace and returns its ledger form.
func (pv *PathValidator) Normalize(userPath string) (string, error) {
	if userPath == "" {
		return "", ErrEmptyPath
	}
	if !filepath.IsAbs(userPath) {
		return pv.ValidateAndNormalize(userPath)
	}

	rel, err := filepath.Rel(pv.dir, filepath.Clean(userPath))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, userPath)
	}
	norm, err := pv.ValidateAndNormalize(rel)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, userPath)
	}
	return norm, nil
}

// ValidateExistingPath re-checks a path read back from the ledger and
// returns it in platform form.
func (pv *PathValidator) ValidateExistingPath(storedPath string) (string, error) {
	norm, err := pv.ValidateAndNormalize(filepath.FromSlash(storedPath))
	if err != nil {
		return "", err
	}
	return filepath.FromSlash(norm), nil
}

// Abs returns the absolute location of a ledger path
func (pv *PathValidator) Abs(storedPath string) (string, error) {
	p, err := pv.ValidateExistingPath(storedPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(pv.dir, p), nil
}

// WriteFileInRoot writes a file inside the workspace. Symlinks pointing
// outside are refused by os.Root.
func (pv *PathValidator) WriteFileInRoot(path string, data []byte, perm os.FileMode) error {
	p, err := pv.ValidateExistingPath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if dir := filepath.Dir(p); dir != "." {
		if err := pv.mkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := pv.root.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// MkdirAllInRoot creates directories inside the workspace.
func (pv *PathValidator) MkdirAllInRoot(path string, perm os.FileMode) error {
	p, err := pv.ValidateExistingPath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	return pv.mkdirAll(p, perm)
}

func (pv *PathValidator) mkdirAll(p string, perm os.FileMode) error {
	var cur string
	for _, part := range strings.Split(p, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		err := pv.root.Mkdir(cur, perm)
		if err == nil || errors.Is(err, os.ErrExist) {
			continue
		}
		return err
	}
	info, err := pv.root.Stat(p)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", p)
	}
	return nil
}

// ReadFileInRoot reads a file inside the workspace.
func (pv *PathValidator) ReadFileInRoot(path string) ([]byte, error) {
	p, err := pv.ValidateExistingPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	f, err := pv.root.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// OpenInRoot opens a file inside the workspace for reading.
func (pv *PathValidator) OpenInRoot(path string) (*os.File, error) {
	p, err := pv.ValidateExistingPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	return pv.root.Open(p)
}

// StatInRoot stats a file inside the workspace.
func (pv *PathValidator) StatInRoot(path string) (os.FileInfo, error) {
	p, err := pv.ValidateExistingPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	return pv.root.Stat(p)
}
