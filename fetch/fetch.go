// Package fetch downloads changelog documents and fingerprints their content
// so that a watcher only compares documents that actually changed.
package fetch

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/crypto/blake2b"

	"github.com/webframp/whatsnewbot/releasenotes"
)

// DefaultTimeout bounds one download.
const DefaultTimeout = 30 * time.Second

// maxDocumentSize guards against runaway downloads. whatsnew.txt is well
// under a megabyte.
const maxDocumentSize = 8 << 20

// ErrTooLarge is returned for documents over maxDocumentSize bytes.
var ErrTooLarge = fmt.Errorf("document exceeds %d bytes", maxDocumentSize)

// Document is one fetched revision of a changelog.
type Document struct {
	Source    string
	Text      string
	Hash      string
	FetchedAt time.Time
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// Fetcher downloads documents over HTTP.
type Fetcher struct {
	client *http.Client
}

// New returns a Fetcher whose requests are traced.
func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{client: &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}}
}

// NewWithClient returns a Fetcher using client as is.
func NewWithClient(client *http.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Get downloads url. The body must be UTF-8.
func (f *Fetcher) Get(ctx context.Context, url string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Document{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "whatsnewbot")

	resp, err := f.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Document{}, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return newDocument(url, resp.Body)
}

// Load reads a document from a URL or, for anything not starting with
// http:// or https://, from a local file.
func (f *Fetcher) Load(ctx context.Context, source string) (Document, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return f.Get(ctx, source)
	}
	file, err := os.Open(source)
	if err != nil {
		return Document{}, err
	}
	defer file.Close()
	return newDocument(source, file)
}

// Changed downloads url and reports whether its content differs from the
// content last seen with hash prevHash. An empty prevHash is always a change.
func (f *Fetcher) Changed(ctx context.Context, url, prevHash string) (Document, bool, error) {
	doc, err := f.Get(ctx, url)
	if err != nil {
		return Document{}, false, err
	}
	return doc, doc.Hash != prevHash, nil
}

func newDocument(source string, r io.Reader) (Document, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxDocumentSize+1))
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", source, err)
	}
	if len(data) > maxDocumentSize {
		return Document{}, fmt.Errorf("%s: %w", source, ErrTooLarge)
	}
	text, err := releasenotes.ReadDocument(bytes.NewReader(data))
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", source, err)
	}
	return Document{
		Source:    source,
		Text:      text,
		Hash:      Hash(text),
		FetchedAt: time.Now(),
	}, nil
}

// Hash fingerprints document text as hex BLAKE2b-256.
func Hash(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
