// Package imagesource loads tray photos from URLs or local paths.
package imagesource

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"trayaudit/internal/config"

	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"
)

// FetchError reports a transport failure or a non-2xx response.
type FetchError struct {
	Locator    string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch %s: status %d", e.Locator, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch %s: %v", e.Locator, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// DecodeError reports a payload that is not a supported image.
type DecodeError struct {
	Locator string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Locator, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Loader reads images over HTTP(S) or from the local filesystem. Each load is
// a single attempt.
type Loader struct {
	client   *http.Client
	maxBytes int64
}

func NewLoader(config *config.Config) *Loader {
	return &Loader{
		client:   &http.Client{Timeout: config.FetchTimeout},
		maxBytes: config.MaxImageBytes,
	}
}

// Load fetches locator and decodes it into an RGB bitmap. Existing local files
// are read directly; anything else is fetched over HTTP.
func (l *Loader) Load(ctx context.Context, locator string) (*image.RGBA, error) {
	var (
		data []byte
		err  error
	)

	if isLocalFile(locator) {
		data, err = l.readFile(locator)
	} else {
		data, err = l.fetch(ctx, locator)
	}
	if err != nil {
		return nil, err
	}

	return Decode(locator, data)
}

func isLocalFile(locator string) bool {
	info, err := os.Stat(locator)
	return err == nil && info.Mode().IsRegular()
}

func (l *Loader) readFile(locator string) ([]byte, error) {
	f, err := os.Open(locator)
	if err != nil {
		return nil, &FetchError{Locator: locator, Err: err}
	}
	defer f.Close()

	return l.readLimited(locator, f)
}

func (l *Loader) fetch(ctx context.Context, locator string) ([]byte, error) {
	u, err := url.Parse(locator)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &FetchError{Locator: locator, Err: errors.New("not a local file or http(s) url")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, &FetchError{Locator: locator, Err: err}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &FetchError{Locator: locator, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Locator: locator, StatusCode: resp.StatusCode}
	}

	return l.readLimited(locator, resp.Body)
}

func (l *Loader) readLimited(locator string, r io.Reader) ([]byte, error) {
	if l.maxBytes <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, &FetchError{Locator: locator, Err: err}
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, &FetchError{Locator: locator, Err: err}
	}
	if int64(len(data)) > l.maxBytes {
		return nil, &FetchError{Locator: locator, Err: errors.Errorf("image exceeds %d bytes", l.maxBytes)}
	}
	return data, nil
}

// Decode converts an encoded JPEG, PNG, GIF or WebP payload to RGBA.
func Decode(locator string, data []byte) (*image.RGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Locator: locator, Err: err}
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, &DecodeError{Locator: locator, Err: errors.New("image has no pixels")}
	}

	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba, nil
}

// Filename returns the last path segment of locator, without query or
// fragment. It is empty when the locator names no file, as in "http://host/".
func Filename(locator string) string {
	if u, err := url.Parse(locator); err == nil && u.Scheme != "" && u.Host != "" {
		locator = u.Path
	}
	locator = strings.ReplaceAll(locator, "\\", "/")
	if strings.HasSuffix(locator, "/") {
		return ""
	}
	switch name := path.Base(locator); name {
	case ".", "..", "/":
		return ""
	default:
		return name
	}
}
