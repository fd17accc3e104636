package acq

import (
	"io"
	"os"
	"path/filepath"

	"github.com/acqkit/acqkit-go/pkg/errs"
)

// ResourceKind classifies loadable resources.
type ResourceKind int

const (
	// ResourceFirmware is a firmware image a driver uploads to its
	// device at open time.
	ResourceFirmware ResourceKind = iota
)

// ResourceReader loads named resources for drivers. Applications that
// bundle firmware in unusual places install their own reader on the
// Context.
type ResourceReader interface {
	Open(kind ResourceKind, name string) (io.ReadCloser, error)
}

// FilesystemReader resolves resources against a list of directories, in
// order. It is the default reader.
type FilesystemReader struct {
	Dirs []string
}

// DefaultResourceDirs returns the standard search path: the user's data
// directory first, then the system-wide one.
func DefaultResourceDirs() []string {
	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".local", "share", "acqkit", "firmware"))
	}
	dirs = append(dirs, "/usr/share/acqkit/firmware")
	return dirs
}

// Open returns the first matching file in the search path.
func (r *FilesystemReader) Open(kind ResourceKind, name string) (io.ReadCloser, error) {
	const op = "acq.FilesystemReader.Open"
	if name == "" || name != filepath.Base(name) {
		return nil, errs.Argf(op, "bad resource name %q", name)
	}
	for _, dir := range r.Dirs {
		f, err := os.Open(filepath.Join(dir, name))
		if err == nil {
			return f, nil
		}
		if !os.IsNotExist(err) {
			return nil, errs.Wrap(errs.IO, op, err)
		}
	}
	return nil, errs.Newf(errs.IO, op, "resource %q not found", name)
}
