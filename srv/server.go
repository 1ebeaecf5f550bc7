package srv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/webframp/whatsnewbot/builds"
	"github.com/webframp/whatsnewbot/db"
	"github.com/webframp/whatsnewbot/fetch"
	"github.com/webframp/whatsnewbot/releasenotes"
	"github.com/webframp/whatsnewbot/vcs"
)

// documentTTL is how long a fetched changelog is reused for commands.
const documentTTL = time.Minute

type Server struct {
	DB         *sql.DB
	State      *db.State
	Config     Config
	Source     vcs.Source
	Fetcher    *fetch.Fetcher
	Markers    *MarkerClient
	APILimiter *RateLimiter
	Cooldown   *RateLimiter

	httpMu     sync.Mutex
	httpServer *http.Server
	closed     bool

	docsMu sync.Mutex
	docs   map[string]fetch.Document
}

// MessageResponse is the JSON form of informational replies.
type MessageResponse struct {
	Message string `json:"message"`
}

// NotesResponse is the JSON form of a release section.
type NotesResponse struct {
	Source  string `json:"source"`
	URL     string `json:"url"`
	Release string `json:"release,omitempty"`
	Notes   string `json:"notes"`
}

// ChangesResponse is the JSON form of a changelog comparison.
type ChangesResponse struct {
	OldURL string `json:"old_url"`
	NewURL string `json:"new_url"`
	Diff   string `json:"diff"`
}

// StatusResponse reports watcher progress.
type StatusResponse struct {
	Checkpoints map[string]time.Time `json:"checkpoints"`
	Deliveries  []DeliveryView       `json:"deliveries"`
	SVNRevs     int64                `json:"svn_revs"`
}

// DeliveryView is one announcement made by the watcher.
type DeliveryView struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Checkpoint string    `json:"checkpoint"`
	Chunks     int64     `json:"chunks"`
	Channel    string    `json:"channel,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// New opens the database and prepares a server. The repository Source is
// set by the caller once the state store exists, since it records svn
// revisions there.
func New(cfg Config, markers *MarkerClient) (*Server, error) {
	srv := &Server{
		Config:     cfg,
		Fetcher:    fetch.New(fetch.DefaultTimeout),
		Markers:    markers,
		APILimiter: NewRateLimiter(cfg.APIRateLimit, cfg.APIRateInterval, cfg.APIRateBurst),
		Cooldown:   NewCooldown(cfg.CommandCooldown),
		docs:       make(map[string]fetch.Document),
	}
	if err := srv.setUpDatabase(cfg.DBPath); err != nil {
		return nil, err
	}
	return srv, nil
}

// HandleHealth godoc
// @Summary Health check
// @Tags system
// @Produce plain
// @Success 200 {string} string "ok"
// @Failure 503 {string} string "unhealthy"
// @Router /health [get]
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.DB.PingContext(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "unhealthy: database unreachable")
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// document returns the changelog at url, reusing a recent download.
func (s *Server) document(ctx context.Context, url string) (fetch.Document, error) {
	s.docsMu.Lock()
	doc, ok := s.docs[url]
	s.docsMu.Unlock()
	if ok && time.Since(doc.FetchedAt) < documentTTL {
		return doc, nil
	}

	doc, err := s.Fetcher.Get(ctx, url)
	if err != nil {
		return fetch.Document{}, err
	}
	s.docsMu.Lock()
	s.docs[url] = doc
	s.docsMu.Unlock()
	return doc, nil
}

// rawArg supports bot style arguments: /api/release?Hrodvitnir
func rawArg(r *http.Request, name string) string {
	if v := r.URL.Query().Get(name); v != "" {
		return v
	}
	if raw := r.URL.RawQuery; raw != "" && !strings.Contains(raw, "=") {
		decoded, err := url.QueryUnescape(raw)
		if err == nil {
			return strings.TrimSpace(decoded)
		}
	}
	return ""
}

// truncateMessage keeps plain text replies within the chat message limit.
func truncateMessage(text string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxLen-4]) + "...\n"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	slog.Error(op, "error", err)
	var se *fetch.StatusError
	if errors.As(err, &se) || errors.Is(err, releasenotes.ErrInvalidEncoding) || errors.Is(err, fetch.ErrTooLarge) {
		WriteMessageResponse(w, r, http.StatusBadGateway, "Could not read the changelog right now.")
		return
	}
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	WriteMessageResponse(w, r, http.StatusBadRequest, err.Error())
}

// HandleWhatsNew godoc
// @Summary Newest release section of a changelog
// @Description Returns the topmost release of the nightly, release or important changelog.
// @Tags commands
// @Produce plain,json
// @Param source query string false "nightly (default), release or important"
// @Success 200 {object} NotesResponse
// @Failure 400 {object} MessageResponse
// @Router /api/whatsnew [get]
func (s *Server) HandleWhatsNew(w http.ResponseWriter, r *http.Request) {
	AddBotAttributes(r)

	source, err := ValidateSource(rawArg(r, "source"))
	if err != nil {
		writeValidationError(w, r, err)
		return
	}
	u := s.Config.SourceURL(source)
	doc, err := s.document(r.Context(), u)
	if err != nil {
		s.writeError(w, r, "fetch whatsnew", err)
		return
	}

	var notFound *releasenotes.ReleaseNotFoundError
	notes, err := releasenotes.SpecificReleaseNotes(doc.Text, "")
	if errors.As(err, &notFound) {
		// Files without release headers are shown whole.
		notes = doc.Text
	}
	release := ""
	if names := releasenotes.Releases(doc.Text); len(names) > 0 {
		release = names[0]
	}

	if WantsJSON(r) {
		WriteJSON(w, http.StatusOK, NotesResponse{Source: source, URL: u, Release: release, Notes: notes})
		return
	}
	text := fmt.Sprintf("%s whatsnew: %s\n----------\n%s", source, u, notes)
	WriteTextResponse(w, http.StatusOK, truncateMessage(text, s.Config.MaxMessageLength))
}

// HandleRelease godoc
// @Summary Notes of one release
// @Description Names match regardless of case and accents. Unknown names get suggestions.
// @Tags commands
// @Produce plain,json
// @Param name query string false "release name, newest when empty"
// @Success 200 {object} NotesResponse
// @Failure 400 {object} MessageResponse
// @Router /api/release [get]
func (s *Server) HandleRelease(w http.ResponseWriter, r *http.Request) {
	AddBotAttributes(r)

	name := rawArg(r, "name")
	if err := ValidateReleaseName(name); err != nil {
		writeValidationError(w, r, err)
		return
	}
	doc, err := s.document(r.Context(), s.Config.NightlyURL)
	if err != nil {
		s.writeError(w, r, "fetch whatsnew", err)
		return
	}

	notes, err := releasenotes.SpecificReleaseNotes(doc.Text, name)
	var notFound *releasenotes.ReleaseNotFoundError
	if errors.As(err, &notFound) {
		// Return 200 so bots like Nightbot don't treat it as an error
		WriteMessageResponse(w, r, http.StatusOK, notFound.Error())
		return
	}
	if err != nil {
		s.writeError(w, r, "release notes", err)
		return
	}

	if WantsJSON(r) {
		WriteJSON(w, http.StatusOK, NotesResponse{Source: SourceNightly, URL: s.Config.NightlyURL, Release: name, Notes: notes})
		return
	}
	WriteTextResponse(w, http.StatusOK, truncateMessage(notes, s.Config.MaxMessageLength))
}

// HandleChanges godoc
// @Summary What the nightly adds over the last release
// @Tags commands
// @Produce plain,json
// @Param diff query bool false "show removed lines and hints (default false)"
// @Param all query bool false "include changes to older releases"
// @Success 200 {object} ChangesResponse
// @Router /api/changes [get]
func (s *Server) HandleChanges(w http.ResponseWriter, r *http.Request) {
	AddBotAttributes(r)

	q := r.URL.Query()
	opts := releasenotes.Options{
		Diff:       q.Get("diff") == "true" || q.Get("diff") == "1",
		NewestOnly: !(q.Get("all") == "true" || q.Get("all") == "1"),
	}

	var oldDoc, newDoc fetch.Document
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		oldDoc, err = s.document(ctx, s.Config.ReleaseURL)
		return err
	})
	g.Go(func() error {
		var err error
		newDoc, err = s.document(ctx, s.Config.NightlyURL)
		return err
	})
	if err := g.Wait(); err != nil {
		s.writeError(w, r, "fetch changelogs", err)
		return
	}

	diff := releasenotes.CompareReleaseNotes(oldDoc.Text, newDoc.Text, opts)

	if WantsJSON(r) {
		WriteJSON(w, http.StatusOK, ChangesResponse{OldURL: oldDoc.Source, NewURL: newDoc.Source, Diff: diff})
		return
	}
	if strings.TrimSpace(diff) == "" {
		WriteTextResponse(w, http.StatusOK, "No changes since the last release.")
		return
	}
	WriteTextResponse(w, http.StatusOK, truncateMessage(diff, s.Config.MaxMessageLength))
}

// HandleCommits godoc
// @Summary Latest commits
// @Tags commands
// @Produce plain,json
// @Param num query int false "number of commits, 1 to 20"
// @Param path query string false "only commits touching this path"
// @Success 200 {array} vcs.Commit
// @Failure 400 {object} MessageResponse
// @Router /api/commits [get]
func (s *Server) HandleCommits(w http.ResponseWriter, r *http.Request) {
	AddBotAttributes(r)

	q := r.URL.Query()
	num, err := ParseCommitCount(q.Get("num"))
	if err != nil {
		writeValidationError(w, r, err)
		return
	}
	path := q.Get("path")
	if err := ValidatePath(path); err != nil {
		writeValidationError(w, r, err)
		return
	}

	commits, err := s.Source.LastCommits(r.Context(), num, path, nil)
	if err != nil {
		s.writeError(w, r, "list commits", err)
		return
	}

	if WantsJSON(r) {
		WriteJSON(w, http.StatusOK, commits)
		return
	}
	if len(commits) == 0 {
		WriteTextResponse(w, http.StatusOK, "No commits found.")
		return
	}
	hyperlink := q.Get("links") == "true" || q.Get("links") == "1"
	var sb strings.Builder
	for _, c := range commits {
		sb.WriteString(c.ShortFormat(hyperlink))
		sb.WriteByte('\n')
	}
	WriteTextResponse(w, http.StatusOK, truncateMessage(sb.String(), s.Config.MaxMessageLength))
}

// HandleCommit godoc
// @Summary One commit in full
// @Tags commands
// @Produce plain,json
// @Param rev query string true "svn revision like r12345, or a git SHA"
// @Success 200 {object} vcs.Commit
// @Failure 400 {object} MessageResponse
// @Router /api/commit [get]
func (s *Server) HandleCommit(w http.ResponseWriter, r *http.Request) {
	AddBotAttributes(r)

	rev := rawArg(r, "rev")
	if err := ValidateRev(rev); err != nil {
		writeValidationError(w, r, err)
		return
	}

	ctx, span := StartDBSpan(r.Context(), "decode_rev", attribute.String("rev", rev))
	sha, err := vcs.DecodeRev(ctx, s.State, strings.ToLower(rev))
	RecordError(span, err)
	span.End()
	switch {
	case errors.Is(err, vcs.ErrUnknownRev):
		WriteMessageResponse(w, r, http.StatusOK, fmt.Sprintf("Unknown revision %s.", rev))
		return
	case err != nil:
		writeValidationError(w, r, err)
		return
	}

	commit, err := s.Source.Commit(r.Context(), sha)
	if err != nil {
		slog.Warn("get commit", "rev", rev, "error", err)
		WriteMessageResponse(w, r, http.StatusOK, fmt.Sprintf("Commit %s not found.", rev))
		return
	}

	if WantsJSON(r) {
		WriteJSON(w, http.StatusOK, commit)
		return
	}
	WriteTextResponse(w, http.StatusOK, truncateMessage(commit.Format(), s.Config.MaxMessageLength))
}

// HandleBuilds godoc
// @Summary Nightly builds
// @Tags commands
// @Produce plain,json
// @Param important query bool false "only the builds worth announcing"
// @Success 200 {array} builds.EngineBuild
// @Router /api/builds [get]
func (s *Server) HandleBuilds(w http.ResponseWriter, r *http.Request) {
	AddBotAttributes(r)

	doc, err := s.document(r.Context(), s.Config.NightlyCheckURL)
	if err != nil {
		s.writeError(w, r, "fetch builds", err)
		return
	}
	list, err := builds.Parse([]byte(doc.Text), s.Config.NightlyCheckURL)
	if err != nil {
		s.writeError(w, r, "parse builds", err)
		return
	}
	if q := r.URL.Query().Get("important"); q == "true" || q == "1" {
		list = builds.Important(list)
	}

	if WantsJSON(r) {
		WriteJSON(w, http.StatusOK, list)
		return
	}
	if len(list) == 0 {
		WriteTextResponse(w, http.StatusOK, "No builds found.")
		return
	}
	WriteTextResponse(w, http.StatusOK, truncateMessage(builds.Format(list), s.Config.MaxMessageLength))
}

// HandleStatus godoc
// @Summary Watcher checkpoints and recent announcements
// @Tags system
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /api/status [get]
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := StartDBSpan(r.Context(), "status")
	defer span.End()

	checkpoints, err := s.State.Checkpoints(ctx)
	if err != nil {
		RecordError(span, err)
		s.writeError(w, r, "list checkpoints", err)
		return
	}
	deliveries, err := s.State.RecentDeliveries(ctx, 20)
	if err != nil {
		RecordError(span, err)
		s.writeError(w, r, "list deliveries", err)
		return
	}
	svnRevs, err := s.State.SVNRevCount(ctx)
	if err != nil {
		RecordError(span, err)
		s.writeError(w, r, "count svn revs", err)
		return
	}

	resp := StatusResponse{
		Checkpoints: make(map[string]time.Time, len(checkpoints)),
		Deliveries:  make([]DeliveryView, len(deliveries)),
		SVNRevs:     svnRevs,
	}
	for _, cp := range checkpoints {
		resp.Checkpoints[cp.Name] = cp.UpdatedAt
	}
	for i, d := range deliveries {
		resp.Deliveries[i] = DeliveryView{
			ID:         d.ID,
			Kind:       d.Kind,
			Checkpoint: d.Checkpoint,
			Chunks:     d.Chunks,
			CreatedAt:  d.CreatedAt,
		}
		if d.Channel != nil {
			resp.Deliveries[i].Channel = *d.Channel
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// WithCooldown limits each chat channel to one command per cooldown. Requests
// that did not come through a bot are left to the API rate limit.
func (s *Server) WithCooldown(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch := GetBotChannel(r)
		if ch == nil || ch.Source == BotSourceQuery {
			next(w, r)
			return
		}
		if ok, retry := s.Cooldown.Reserve(ch.Key()); !ok {
			RecordSecurityEvent(r.Context(), "command_cooldown",
				attribute.String("bot.channel", ch.Key()),
				attribute.String("path", r.URL.Path),
			)
			secs := int(retry.Seconds() + 0.999)
			WriteMessageResponse(w, r, http.StatusOK, fmt.Sprintf("Command is on cooldown, try again in %ds.", secs))
			return
		}
		next(w, r)
	}
}

func (s *Server) setUpDatabase(dbPath string) error {
	wdb, err := db.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	s.DB = wdb
	if err := db.RunMigrations(context.Background(), wdb, s.Markers.MigrationMarker); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	s.State = db.NewState(wdb)
	return nil
}

// Handler returns the full middleware-wrapped route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.HandleHealth)

	// API routes with rate limiting
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/{$}", s.HandleAPIDocs)
	apiMux.HandleFunc("GET /api/openapi.json", s.HandleAPISpec)
	apiMux.HandleFunc("GET /api/whatsnew", s.WithCooldown(s.HandleWhatsNew))
	apiMux.HandleFunc("GET /api/release", s.WithCooldown(s.HandleRelease))
	apiMux.HandleFunc("GET /api/changes", s.WithCooldown(s.HandleChanges))
	apiMux.HandleFunc("GET /api/commits", s.WithCooldown(s.HandleCommits))
	apiMux.HandleFunc("GET /api/commit", s.WithCooldown(s.HandleCommit))
	apiMux.HandleFunc("GET /api/builds", s.WithCooldown(s.HandleBuilds))
	apiMux.HandleFunc("GET /api/status", s.HandleStatus)
	mux.Handle("/api/", s.APILimiter.Middleware(apiMux))

	return otelhttp.NewHandler(RequestLogger(SecurityHeaders(Gzip(LimitRequestBody(mux)))), "whatsnewbot")
}

func (s *Server) Serve(addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpMu.Lock()
	if s.closed {
		s.httpMu.Unlock()
		return nil
	}
	s.httpServer = hs
	s.httpMu.Unlock()

	slog.Info("starting server", "addr", addr)
	err := hs.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server and the rate limiters.
func (s *Server) Shutdown(ctx context.Context) error {
	s.APILimiter.Close()
	s.Cooldown.Close()
	s.httpMu.Lock()
	s.closed = true
	hs := s.httpServer
	s.httpMu.Unlock()
	if hs == nil {
		return nil
	}
	return hs.Shutdown(ctx)
}

// Close releases the database.
func (s *Server) Close() error {
	return s.DB.Close()
}
