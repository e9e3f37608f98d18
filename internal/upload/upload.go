// Package upload stores images dropped onto the board and hands back a URL
// the grid can render.
package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotImage is returned for payloads that are not an image.
var ErrNotImage = errors.New("not an image")

// Uploader persists a file and returns the URL it is reachable at.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

// LocalUploader writes uploads under Dir with random names.
type LocalUploader struct {
	Dir string
	// MaxBytes caps a single upload; zero means 10 MiB.
	MaxBytes int64
}

const defaultMaxBytes = 10 << 20

// NewLocal returns a LocalUploader rooted at dir.
func NewLocal(dir string) *LocalUploader {
	return &LocalUploader{Dir: dir}
}

// Upload copies r to <Dir>/<uuid><ext> and returns a file:// URL. The
// extension is taken from name.
func (u *LocalUploader) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(u.Dir, 0755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext != "" && !isImageExt(ext) {
		return "", fmt.Errorf("upload %s: %w", name, ErrNotImage)
	}

	path := filepath.Join(u.Dir, uuid.New().String()+ext)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}

	limit := u.MaxBytes
	if limit <= 0 {
		limit = defaultMaxBytes
	}
	n, err := io.Copy(f, io.LimitReader(&ctxReader{ctx: ctx, r: r}, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = fmt.Errorf("upload exceeds %d bytes", limit)
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

func isImageExt(ext string) bool {
	return strings.HasPrefix(mime.TypeByExtension(ext), "image/")
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// DecodeDataURL decodes a base64 data:image/*;base64,... URL and returns the
// bytes with a file extension matching the declared type.
func DecodeDataURL(dataURL string) (io.Reader, string, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return nil, "", fmt.Errorf("decode data url: missing data: prefix")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("decode data url: missing payload")
	}
	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("decode data url: only base64 payloads are supported")
	}
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, "", fmt.Errorf("decode data url %s: %w", mediaType, ErrNotImage)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data url: %w", err)
	}
	ext := ""
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		ext = exts[0]
	}
	return bytes.NewReader(data), ext, nil
}
