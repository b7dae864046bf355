// Package fetch reads GIF payloads from HTTP(S) URLs, file URLs or plain
// filesystem paths.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// DefaultMaxBytes is the default payload limit.
const DefaultMaxBytes = 64 << 20 // 64MB

// ErrTooLarge is returned if the payload is larger than the client's limit.
var ErrTooLarge = errors.New("payload too large")

// StatusError is returned if the server responds with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (err *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", err.StatusCode, http.StatusText(err.StatusCode))
}

// Client fetches payloads.
type Client struct {
	// HTTP is the client to use for HTTP(S) URLs. If nil, http.DefaultClient
	// is used.
	HTTP *http.Client
	// MaxBytes limits the size of the payload. If 0, DefaultMaxBytes is used.
	// A negative value disables the limit.
	MaxBytes int64
}

// Default is the client with default settings.
var Default = &Client{}

// Fetch fetches the whole payload at the given URL or path. Fetch does not
// apply any timeout on its own; use ctx for that.
func (c *Client) Fetch(ctx context.Context, src string) ([]byte, error) {
	if path, ok := LocalPath(src); ok {
		return c.readFile(path)
	}

	u, err := url.Parse(src)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return c.get(ctx, src)
	default:
		return nil, errors.Errorf("unsupported scheme %q", u.Scheme)
	}
}

// LocalPath returns the file path of src if src is a path or a file:// URL.
func LocalPath(src string) (string, bool) {
	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" || isDrive(u.Scheme) {
		return src, true
	}

	if strings.EqualFold(u.Scheme, "file") {
		if u.Path != "" {
			return u.Path, true
		}
		return u.Opaque, true
	}

	return "", false
}

func (c *Client) get(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	r, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to GET")
	}
	defer r.Body.Close()

	if r.StatusCode < 200 || r.StatusCode > 299 {
		return nil, &StatusError{URL: src, StatusCode: r.StatusCode}
	}

	return c.readAll(r.Body)
}

func (c *Client) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	defer f.Close()

	return c.readAll(f)
}

func (c *Client) readAll(r io.Reader) ([]byte, error) {
	limit := c.MaxBytes
	if limit == 0 {
		limit = DefaultMaxBytes
	}

	if limit > 0 {
		// Read one more byte than allowed to tell an exact fit apart from an
		// overflow.
		r = io.LimitReader(r, limit+1)
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read body")
	}

	if limit > 0 && int64(len(b)) > limit {
		return nil, errors.Wrapf(ErrTooLarge, "over %d bytes", limit)
	}

	return b, nil
}

// isDrive returns true if the scheme is actually a Windows drive letter.
func isDrive(scheme string) bool {
	return len(scheme) == 1
}
