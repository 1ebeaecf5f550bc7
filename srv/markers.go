package srv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Marker kinds, shown as separate lanes in Honeycomb.
const (
	MarkerTypeDeploy       = "deploy"
	MarkerTypeMigration    = "migration"
	MarkerTypeAnnouncement = "announcement"
)

// Build-time variables (set via -ldflags)
var (
	Version   = "dev"
	CommitSHA = "unknown"
)

const (
	honeycombMarkersURL = "https://api.honeycomb.io/1/markers/"
	defaultDataset      = "whatsnewbot"
	markerTimeout       = 10 * time.Second
	projectURL          = "https://github.com/webframp/whatsnewbot"
)

// Marker is the body of a Honeycomb marker.
type Marker struct {
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time,omitempty"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	URL       string `json:"url,omitempty"`
}

// MarkerClient posts markers to one Honeycomb dataset. A nil client ignores
// every call, so callers never check whether Honeycomb is configured.
type MarkerClient struct {
	apiKey  string
	dataset string
	baseURL string
	client  *http.Client
}

// NewMarkerClient returns nil when no Honeycomb API key is configured.
// HONEYCOMB_API_KEY, which the OpenTelemetry exporter also reads, is used
// when the config leaves the key empty.
func NewMarkerClient(cfg Config) *MarkerClient {
	apiKey := cfg.HoneycombAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("HONEYCOMB_API_KEY")
	}
	if apiKey == "" {
		return nil
	}

	dataset := cfg.HoneycombDataset
	if dataset == "" {
		dataset = defaultDataset
	}
	return &MarkerClient{
		apiKey:  apiKey,
		dataset: dataset,
		baseURL: honeycombMarkersURL,
		client:  &http.Client{Timeout: markerTimeout},
	}
}

// Send posts m, stamping it with the current time if it has none.
func (mc *MarkerClient) Send(ctx context.Context, m Marker) error {
	if mc == nil {
		return nil
	}
	if m.StartTime == 0 {
		m.StartTime = time.Now().Unix()
	}

	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, markerTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, mc.baseURL+mc.dataset, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create marker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Honeycomb-Team", mc.apiKey)

	resp, err := mc.client.Do(req)
	if err != nil {
		return fmt.Errorf("send marker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("marker API returned %s", resp.Status)
	}
	return nil
}

// mark sends m and only logs failures. A missing marker must never stop a
// deploy, a migration or an announcement.
func (mc *MarkerClient) mark(ctx context.Context, m Marker) {
	if mc == nil {
		return
	}
	if err := mc.Send(ctx, m); err != nil {
		slog.Warn("honeycomb marker failed", "type", m.Type, "error", err)
		return
	}
	slog.Debug("honeycomb marker created", "type", m.Type, "message", m.Message)
}

// DeployMarker records that this build started serving.
func (mc *MarkerClient) DeployMarker(ctx context.Context) {
	m := Marker{
		Message: "Deploy " + Version,
		Type:    MarkerTypeDeploy,
	}
	if CommitSHA != "unknown" && CommitSHA != "" {
		m.Message = fmt.Sprintf("Deploy %s (%s)", Version, CommitSHA[:min(7, len(CommitSHA))])
		m.URL = projectURL + "/commit/" + CommitSHA
	}
	mc.mark(ctx, m)
}

// MigrationMarker spans one applied database migration. It has the shape
// of db.MigrationFunc.
func (mc *MarkerClient) MigrationMarker(filename string, start, end time.Time) {
	mc.mark(context.Background(), Marker{
		StartTime: start.Unix(),
		EndTime:   end.Unix(),
		Message:   "Migration: " + filename,
		Type:      MarkerTypeMigration,
	})
}

// AnnouncementMarker records a notable post such as a new release, so
// delivery traffic can be lined up with it.
func (mc *MarkerClient) AnnouncementMarker(ctx context.Context, kind, name string) {
	msg := "Announced " + kind
	if name != "" {
		msg += " " + name
	}
	mc.mark(ctx, Marker{Message: msg, Type: MarkerTypeAnnouncement})
}
