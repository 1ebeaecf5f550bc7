// Package builds reads the nightly build manifest, nightly-check.ini, which
// records the svn revision and date each nightly package was built from.
package builds

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/webframp/whatsnewbot/fetch"
)

// EngineBuild is one downloadable nightly build.
type EngineBuild struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	SVNRev    int       `json:"svn_rev"`
	BuildDate time.Time `json:"build_date"`
	// Important builds are announced; the rest are only listed.
	Important bool `json:"important"`
}

// Label is the build name with its revision, as in "Windows: r12345".
func (b EngineBuild) Label() string {
	return fmt.Sprintf("%s: r%d", b.Name, b.SVNRev)
}

func (b EngineBuild) String() string {
	return b.Label() + " " + b.URL
}

type platform struct {
	name       string
	os         string
	playerExt  string
	base       string
	suffix     string
	nightlyExt string
	important  bool
}

var platforms = []platform{
	{"Windows", "win", ".zip", "ohrrpgce-win", "sdl2", ".zip", true},
	{"Win 95", "win", ".zip", "ohrrpgce-win", "win95", ".zip", false},
	{"Linux x86_64", "linux", ".zip", "ohrrpgce-linux", "x86_64", ".tar.bz2", true},
	{"Linux x86", "linux", ".zip", "ohrrpgce-linux", "x86", ".tar.bz2", false},
	{"Mac x86_64", "mac", ".tar.gz", "OHRRPGCE", "x86_64", ".dmg", true},
	{"Mac x86", "mac", ".tar.gz", "OHRRPGCE", "x86", ".dmg", false},
}

// Parse reads a nightly-check.ini. manifestURL is where it was downloaded
// from; the packages sit next to it. Platforms missing from the manifest are
// skipped with a warning.
func Parse(data []byte, manifestURL string) ([]EngineBuild, error) {
	cfg, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("parse nightly-check.ini: %w", err)
	}
	dir := manifestURL[:strings.LastIndex(manifestURL, "/")+1]

	var out []EngineBuild
	for _, p := range platforms {
		playerFile := fmt.Sprintf("ohrrpgce-player-%s-wip-%s%s", p.os, p.suffix, p.playerExt)
		sec, err := cfg.GetSection(playerFile)
		if err != nil {
			slog.Warn("builds: platform missing from nightly-check.ini", "file", playerFile)
			continue
		}

		rev, err := sec.Key("svn_rev").Int()
		if err != nil {
			return nil, fmt.Errorf("%s: svn_rev: %w", playerFile, err)
		}
		dateCode := sec.Key("build_date").String()
		date, err := time.Parse("20060102", dateCode)
		if err != nil {
			return nil, fmt.Errorf("%s: build_date: %w", playerFile, err)
		}

		out = append(out, EngineBuild{
			Name:      p.name,
			URL:       dir + fmt.Sprintf("%s-wip-%s%s", p.base, p.suffix, p.nightlyExt),
			SVNRev:    rev,
			BuildDate: date,
			Important: p.important,
		})

		if p.os == "linux" && p.suffix == "x86_64" {
			out = append(out, EngineBuild{
				Name:      "Debian amd64",
				URL:       dir + fmt.Sprintf("ohrrpgce_%s.wip-%d_amd64.deb", date.Format("2006-01-02"), rev),
				SVNRev:    rev,
				BuildDate: date,
			})
		}
	}
	return out, nil
}

// Fetch downloads and parses the manifest at url. The returned hash
// identifies the manifest revision.
func Fetch(ctx context.Context, f *fetch.Fetcher, url string) ([]EngineBuild, string, error) {
	doc, err := f.Get(ctx, url)
	if err != nil {
		return nil, "", err
	}
	list, err := Parse([]byte(doc.Text), url)
	if err != nil {
		return nil, "", err
	}
	return list, doc.Hash, nil
}

// Important filters the builds worth announcing.
func Important(list []EngineBuild) []EngineBuild {
	var out []EngineBuild
	for _, b := range list {
		if b.Important {
			out = append(out, b)
		}
	}
	return out
}

// Format lists builds one per line.
func Format(list []EngineBuild) string {
	var sb strings.Builder
	for _, b := range list {
		sb.WriteString(b.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
