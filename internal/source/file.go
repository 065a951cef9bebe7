package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	importerrors "github.com/robso86/jsonschema-mapper/pkg/errors"
	"github.com/ulikunitz/xz"
)

// FileReader reads documents from the local file system. It accepts
// file:// URIs and bare paths; relative paths are taken from BaseDir.
// Files ending in .xz are decompressed.
type FileReader struct {
	BaseDir  string
	MaxBytes int64
}

func NewFileReader(baseDir string, maxBytes int64) *FileReader {
	return &FileReader{BaseDir: baseDir, MaxBytes: maxBytes}
}

func (r *FileReader) ReadResource(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := r.path(uri)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", importerrors.ErrResourceNotFound, path)
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var src io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".xz") {
		xr, err := xz.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("opening xz stream %s: %w", path, err)
		}
		src = xr
	}
	if r.MaxBytes > 0 {
		src = io.LimitReader(src, r.MaxBytes+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if r.MaxBytes > 0 && int64(len(data)) > r.MaxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", importerrors.ErrInvalidInput, path, r.MaxBytes)
	}
	return data, nil
}

func (r *FileReader) path(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %v", importerrors.ErrInvalidInput, err)
	}
	var p string
	switch u.Scheme {
	case "file":
		p = u.Path
	case "":
		p = u.Path
		if p == "" {
			p = uri
		}
	default:
		return "", fmt.Errorf("%w: file reader cannot read %q", importerrors.ErrInvalidInput, uri)
	}
	p = filepath.FromSlash(p)
	if !filepath.IsAbs(p) && r.BaseDir != "" {
		p = filepath.Join(r.BaseDir, p)
	}
	return p, nil
}

// WriteXZ compresses data into the file at path.
func WriteXZ(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w, err := xz.NewWriter(f)
	if err != nil {
		f.Close()
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
