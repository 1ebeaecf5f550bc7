package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webframp/whatsnewbot/releasenotes"
)

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/whatsnew.txt":
			fmt.Fprint(w, "Release [1]\n * thing\n")
		case "/latin1.txt":
			_, _ = w.Write([]byte("caf\xe9\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewWithClient(srv.Client())
	ctx := context.Background()

	doc, err := f.Get(ctx, srv.URL+"/whatsnew.txt")
	require.NoError(t, err)
	assert.Equal(t, "Release [1]\n * thing\n", doc.Text)
	assert.Equal(t, Hash(doc.Text), doc.Hash)
	assert.Len(t, doc.Hash, 64)

	_, err = f.Get(ctx, srv.URL+"/latin1.txt")
	assert.ErrorIs(t, err, releasenotes.ErrInvalidEncoding)

	_, err = f.Get(ctx, srv.URL+"/missing")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestGet_SizeLimit(t *testing.T) {
	line := []byte("  * entry\n")
	fits := bytes.Repeat(line, maxDocumentSize/len(line))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fits.txt":
			_, _ = w.Write(fits)
		case "/over.txt":
			_, _ = w.Write(fits)
			_, _ = w.Write(bytes.Repeat([]byte("x"), maxDocumentSize-len(fits)+1))
		}
	}))
	defer srv.Close()

	f := NewWithClient(srv.Client())
	ctx := context.Background()

	doc, err := f.Get(ctx, srv.URL+"/fits.txt")
	require.NoError(t, err)
	assert.Len(t, doc.Text, len(fits))

	_, err = f.Get(ctx, srv.URL+"/over.txt")
	assert.ErrorIs(t, err, ErrTooLarge)

	path := filepath.Join(t.TempDir(), "whatsnew.txt")
	require.NoError(t, os.WriteFile(path, append(fits, bytes.Repeat([]byte("y"), maxDocumentSize)...), 0o644))
	_, err = f.Load(ctx, path)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestChanged(t *testing.T) {
	var body atomic.Value
	body.Store("Release [1]\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body.Load().(string))
	}))
	defer srv.Close()

	f := NewWithClient(srv.Client())
	ctx := context.Background()

	doc, changed, err := f.Changed(ctx, srv.URL, "")
	require.NoError(t, err)
	assert.True(t, changed)

	_, changed, err = f.Changed(ctx, srv.URL, doc.Hash)
	require.NoError(t, err)
	assert.False(t, changed)

	body.Store("Release [2]\n")
	_, changed, err = f.Changed(ctx, srv.URL, doc.Hash)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whatsnew.txt")
	require.NoError(t, os.WriteFile(path, []byte("Release [1]\n"), 0o644))

	doc, err := New(0).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Release [1]\n", doc.Text)
	assert.Equal(t, path, doc.Source)

	_, err = New(0).Load(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHash(t *testing.T) {
	assert.Equal(t, Hash("a"), Hash("a"))
	assert.NotEqual(t, Hash("a"), Hash("b"))
}
