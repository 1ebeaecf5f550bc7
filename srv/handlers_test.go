package srv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/webframp/whatsnewbot/db"
)

const (
	releaseDoc = "Release [2.0]\n *** New Features\n  * foo\n"
	nightlyDoc = "Wip [Hróðvitnir+1]\n *** New Features\n  * bar\n\n" +
		"Release [2.0]\n *** New Features\n  * foo\n"
	importantDoc = "Important changes [Hróðvitnir+1]\n * Scripts must be recompiled\n"
	buildsINI    = "[ohrrpgce-player-win-wip-sdl2.zip]\nsvn_rev = 13001\nbuild_date = 20240502\n\n" +
		"[ohrrpgce-player-linux-wip-x86_64.zip]\nsvn_rev = 13000\nbuild_date = 20240501\n"
)

// docServer serves changelogs whose content tests can change.
type docServer struct {
	mu    sync.Mutex
	files map[string]string
	hits  map[string]int
	*httptest.Server
}

func newDocServer(t *testing.T) *docServer {
	t.Helper()
	ds := &docServer{
		files: map[string]string{
			"/whatsnew.txt":              nightlyDoc,
			"/release/whatsnew.txt":      releaseDoc,
			"/IMPORTANT-nightly.txt":     importantDoc,
			"/nightly/nightly-check.ini": buildsINI,
		},
		hits: make(map[string]int),
	}
	ds.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ds.mu.Lock()
		defer ds.mu.Unlock()
		ds.hits[r.URL.Path]++
		text, ok := ds.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(text))
	}))
	t.Cleanup(ds.Close)
	return ds
}

func (ds *docServer) set(path, text string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.files[path] = text
}

func (ds *docServer) config(cfg Config) Config {
	cfg.NightlyURL = ds.URL + "/whatsnew.txt"
	cfg.ReleaseURL = ds.URL + "/release/whatsnew.txt"
	cfg.ImportantURL = ds.URL + "/IMPORTANT-nightly.txt"
	cfg.NightlyCheckURL = ds.URL + "/nightly/nightly-check.ini"
	return cfg
}

// testServer creates a test server with a fresh database
func testServer(t *testing.T) (*Server, *docServer, *fakeSource) {
	t.Helper()
	docs := newDocServer(t)
	cfg := docs.config(DefaultConfig())
	cfg.DBPath = filepath.Join(t.TempDir(), "test.sqlite3")

	server, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	t.Cleanup(func() {
		server.Shutdown(context.Background())
		server.Close()
	})

	src := newFakeSource()
	server.Source = src
	return server, docs, src
}

func get(t *testing.T, h http.HandlerFunc, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	server, _, _ := testServer(t)

	w := get(t, server.HandleHealth, "/health")

	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "ok" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestHandleWhatsNew(t *testing.T) {
	t.Run("nightly by default", func(t *testing.T) {
		server, docs, _ := testServer(t)

		w := get(t, server.HandleWhatsNew, "/api/whatsnew")

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		body := w.Body.String()
		if !strings.HasPrefix(body, "nightly whatsnew: "+docs.URL+"/whatsnew.txt\n----------\n") {
			t.Errorf("unexpected title: %q", body)
		}
		if !strings.Contains(body, "* bar") {
			t.Errorf("expected newest release notes, got: %q", body)
		}
		if strings.Contains(body, "* foo") {
			t.Errorf("older release should not be shown: %q", body)
		}
	})

	t.Run("important source", func(t *testing.T) {
		server, _, _ := testServer(t)

		w := get(t, server.HandleWhatsNew, "/api/whatsnew?source=IMPORTANT")

		if !strings.Contains(w.Body.String(), "Scripts must be recompiled") {
			t.Errorf("expected important notes, got: %q", w.Body.String())
		}
	})

	t.Run("bare argument", func(t *testing.T) {
		server, _, _ := testServer(t)

		w := get(t, server.HandleWhatsNew, "/api/whatsnew?release")

		if !strings.HasPrefix(w.Body.String(), "release whatsnew: ") {
			t.Errorf("expected release source, got: %q", w.Body.String())
		}
	})

	t.Run("unknown source", func(t *testing.T) {
		server, _, _ := testServer(t)

		w := get(t, server.HandleWhatsNew, "/api/whatsnew?source=beta")

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("file without releases is shown whole", func(t *testing.T) {
		server, docs, _ := testServer(t)
		docs.set("/whatsnew.txt", "Nothing here yet\n")

		w := get(t, server.HandleWhatsNew, "/api/whatsnew")

		if !strings.HasSuffix(w.Body.String(), "----------\nNothing here yet\n") {
			t.Errorf("got %q", w.Body.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		server, _, _ := testServer(t)

		w := get(t, server.HandleWhatsNew, "/api/whatsnew", "Accept", "application/json")

		var resp NotesResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Source != SourceNightly || resp.Release != "Hróðvitnir+1" {
			t.Errorf("unexpected response %+v", resp)
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		server, docs, _ := testServer(t)
		docs.mu.Lock()
		delete(docs.files, "/whatsnew.txt")
		docs.mu.Unlock()

		w := get(t, server.HandleWhatsNew, "/api/whatsnew")

		if w.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", w.Code)
		}
	})

	t.Run("documents are cached", func(t *testing.T) {
		server, docs, _ := testServer(t)

		get(t, server.HandleWhatsNew, "/api/whatsnew")
		get(t, server.HandleWhatsNew, "/api/whatsnew")

		docs.mu.Lock()
		defer docs.mu.Unlock()
		if n := docs.hits["/whatsnew.txt"]; n != 1 {
			t.Errorf("fetched %d times, want 1", n)
		}
	})
}

func TestHandleRelease(t *testing.T) {
	t.Run("matches without accents", func(t *testing.T) {
		server, _, _ := testServer(t)

		w := get(t, server.HandleRelease, "/api/release?Hrodvitnir%2B1")

		if !strings.Contains(w.Body.String(), "* bar") {
			t.Errorf("got %q", w.Body.String())
		}
	})

	t.Run("named parameter", func(t *testing.T) {
		server, _, _ := testServer(t)

		w := get(t, server.HandleRelease, "/api/release?name=2.0")

		body := w.Body.String()
		if !strings.Contains(body, "* foo") || strings.Contains(body, "* bar") {
			t.Errorf("got %q", body)
		}
	})

	t.Run("unknown release is not an error", func(t *testing.T) {
		server, _, _ := testServer(t)

		w := get(t, server.HandleRelease, "/api/release?name=zzzzzz")

		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "No release named") {
			t.Errorf("got %q", w.Body.String())
		}
	})

	t.Run("name too long", func(t *testing.T) {
		server, _, _ := testServer(t)

		w := get(t, server.HandleRelease, "/api/release?name="+strings.Repeat("x", MaxReleaseNameLen+1))

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestHandleChanges(t *testing.T) {
	t.Run("new entries only", func(t *testing.T) {
		server, _, _ := testServer(t)

		w := get(t, server.HandleChanges, "/api/changes")

		body := w.Body.String()
		if !strings.Contains(body, "* bar") {
			t.Errorf("expected new entry, got %q", body)
		}
		if strings.Contains(body, "foo") || strings.Contains(body, "+ ") {
			t.Errorf("plain output expected, got %q", body)
		}
	})

	t.Run("diff output", func(t *testing.T) {
		server, _, _ := testServer(t)

		w := get(t, server.HandleChanges, "/api/changes?diff=true")

		if !strings.Contains(w.Body.String(), "+ ") {
			t.Errorf("expected diff markers, got %q", w.Body.String())
		}
	})

	t.Run("no changes", func(t *testing.T) {
		server, docs, _ := testServer(t)
		docs.set("/whatsnew.txt", releaseDoc)

		w := get(t, server.HandleChanges, "/api/changes")

		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "No changes") {
			t.Errorf("got %d %q", w.Code, w.Body.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		server, docs, _ := testServer(t)

		w := get(t, server.HandleChanges, "/api/changes", "Accept", "application/json")

		var resp ChangesResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.OldURL != docs.URL+"/release/whatsnew.txt" || !strings.Contains(resp.Diff, "* bar") {
			t.Errorf("unexpected response %+v", resp)
		}
	})

	t.Run("unreadable changelog", func(t *testing.T) {
		tests := []struct {
			name string
			path string
			text string
		}{
			{"release missing", "/release/whatsnew.txt", ""},
			{"nightly not utf-8", "/whatsnew.txt", "caf\xe9\n"},
			{"nightly too large", "/whatsnew.txt", strings.Repeat("  * entry\n", 1<<20)},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				server, docs, _ := testServer(t)
				if tt.text == "" {
					docs.mu.Lock()
					delete(docs.files, tt.path)
					docs.mu.Unlock()
				} else {
					docs.set(tt.path, tt.text)
				}

				w := get(t, server.HandleChanges, "/api/changes")

				if w.Code != http.StatusBadGateway {
					t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
				}
				if !strings.Contains(w.Body.String(), "Could not read the changelog") {
					t.Errorf("body = %q", w.Body.String())
				}
			})
		}
	})
}

func TestHandleCommits(t *testing.T) {
	server, _, src := testServer(t)
	src.push("aaaa1111aaaa1111", "first", "", "")
	src.push("bbbb2222bbbb2222", "second", "whatsnew.txt", releaseDoc)
	src.push("cccc3333cccc3333", "third", "", "")

	t.Run("limit", func(t *testing.T) {
		w := get(t, server.HandleCommits, "/api/commits?num=2")

		lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
		if len(lines) != 2 {
			t.Fatalf("expected 2 lines, got %q", w.Body.String())
		}
		if !strings.Contains(lines[0], "third") || !strings.Contains(lines[1], "second") {
			t.Errorf("expected newest first, got %q", lines)
		}
	})

	t.Run("path filter", func(t *testing.T) {
		w := get(t, server.HandleCommits, "/api/commits?path=whatsnew.txt", "Accept", "application/json")

		var commits []map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &commits); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(commits) != 1 || commits[0]["sha"] != "bbbb2222bbbb2222" {
			t.Errorf("got %v", commits)
		}
	})

	t.Run("invalid count", func(t *testing.T) {
		for _, num := range []string{"0", "21", "abc"} {
			w := get(t, server.HandleCommits, "/api/commits?num="+num)
			if w.Code != http.StatusBadRequest {
				t.Errorf("num=%s: expected 400, got %d", num, w.Code)
			}
		}
	})

	t.Run("invalid path", func(t *testing.T) {
		w := get(t, server.HandleCommits, "/api/commits?path=../etc/passwd")
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestHandleCommit(t *testing.T) {
	server, _, src := testServer(t)
	c := src.push("dddd4444dddd4444", "Fixed a crash in the map editor", "", "")
	if err := server.State.SaveSVNRevs(context.Background(), map[int]string{12345: c.SHA}); err != nil {
		t.Fatal(err)
	}

	t.Run("svn revision", func(t *testing.T) {
		w := get(t, server.HandleCommit, "/api/commit?r12345")

		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Fixed a crash") {
			t.Errorf("got %d %q", w.Code, w.Body.String())
		}
	})

	t.Run("sha prefix", func(t *testing.T) {
		w := get(t, server.HandleCommit, "/api/commit?rev=DDDD4444")

		if !strings.Contains(w.Body.String(), "Fixed a crash") {
			t.Errorf("got %q", w.Body.String())
		}
	})

	t.Run("unknown svn revision", func(t *testing.T) {
		w := get(t, server.HandleCommit, "/api/commit?rev=r99")

		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Unknown revision r99") {
			t.Errorf("got %d %q", w.Code, w.Body.String())
		}
	})

	t.Run("unknown sha", func(t *testing.T) {
		w := get(t, server.HandleCommit, "/api/commit?rev=abcdef")

		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "not found") {
			t.Errorf("got %d %q", w.Code, w.Body.String())
		}
	})

	t.Run("malformed", func(t *testing.T) {
		for _, target := range []string{"/api/commit", "/api/commit?rev=xyz!"} {
			w := get(t, server.HandleCommit, target)
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d", target, w.Code)
			}
		}
	})
}

func TestHandleBuilds(t *testing.T) {
	server, _, _ := testServer(t)

	w := get(t, server.HandleBuilds, "/api/builds")
	if !strings.Contains(w.Body.String(), "Windows: r13001") || !strings.Contains(w.Body.String(), "Debian amd64") {
		t.Errorf("got %q", w.Body.String())
	}

	w = get(t, server.HandleBuilds, "/api/builds?important=true")
	if strings.Contains(w.Body.String(), "Debian") {
		t.Errorf("important builds should skip packages: %q", w.Body.String())
	}
}

func TestHandleStatus(t *testing.T) {
	server, _, _ := testServer(t)
	ctx := context.Background()
	if _, err := server.State.Advance(ctx, db.Delivery{
		Kind:       "changelog",
		Checkpoint: "changelog:whatsnew.txt",
		Revision:   "abc",
		Chunks:     2,
		Channel:    "discord:42",
	}); err != nil {
		t.Fatal(err)
	}
	if err := server.State.SaveSVNRevs(ctx, map[int]string{12000: "aaaa", 12001: "bbbb"}); err != nil {
		t.Fatal(err)
	}

	w := get(t, server.HandleStatus, "/api/status")

	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := resp.Checkpoints["changelog:whatsnew.txt"]; !ok {
		t.Errorf("missing checkpoint: %+v", resp.Checkpoints)
	}
	if len(resp.Deliveries) != 1 || resp.Deliveries[0].Chunks != 2 {
		t.Fatalf("unexpected deliveries: %+v", resp.Deliveries)
	}
	if resp.Deliveries[0].Channel != "discord:42" {
		t.Errorf("channel = %q, want discord:42", resp.Deliveries[0].Channel)
	}
	if resp.SVNRevs != 2 {
		t.Errorf("svn_revs = %d, want 2", resp.SVNRevs)
	}
}

func TestWithCooldown(t *testing.T) {
	server, _, _ := testServer(t)
	calls := 0
	h := server.WithCooldown(func(w http.ResponseWriter, r *http.Request) {
		calls++
		WriteTextResponse(w, http.StatusOK, "done")
	})
	nightbot := []string{"Nightbot-Channel", "name=slimesalad&displayName=SlimeSalad&provider=twitch"}

	first := get(t, h, "/api/whatsnew", nightbot...)
	second := get(t, h, "/api/whatsnew", nightbot...)
	other := get(t, h, "/api/whatsnew", "Moobot-channel-name", "Castle_Paradox")

	if first.Body.String() != "done\n" || other.Body.String() != "done\n" {
		t.Errorf("first call per channel should pass: %q %q", first.Body.String(), other.Body.String())
	}
	if second.Code != http.StatusOK || !strings.Contains(second.Body.String(), "cooldown") {
		t.Errorf("second call should be on cooldown: %d %q", second.Code, second.Body.String())
	}
	if calls != 2 {
		t.Errorf("handler called %d times, want 2", calls)
	}

	for i := 0; i < 3; i++ {
		if w := get(t, h, "/api/whatsnew?channel=web"); w.Body.String() != "done\n" {
			t.Errorf("query channels are not on cooldown: %q", w.Body.String())
		}
	}
}

func TestTruncateMessage(t *testing.T) {
	if got := truncateMessage("short\n", 100); got != "short\n" {
		t.Errorf("got %q", got)
	}
	got := truncateMessage(strings.Repeat("é", 200), 100)
	if got != strings.Repeat("é", 96)+"...\n" {
		t.Errorf("got %q", got)
	}
}
