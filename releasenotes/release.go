package releasenotes

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var releaseNamePattern = regexp.MustCompile(`^\S.*\[(.+)\]`)

const (
	maxSuggestions   = 2
	suggestionCutoff = 0.6
)

// ReleaseNotFoundError is returned when a named release is not in a document.
type ReleaseNotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *ReleaseNotFoundError) Error() string {
	if e.Name == "" {
		return "No releases found."
	}
	if len(e.Suggestions) > 0 {
		return fmt.Sprintf("No release named %s. Did you mean %s?", e.Name, strings.Join(e.Suggestions, " or "))
	}
	return fmt.Sprintf("No release named %s.", e.Name)
}

// Releases lists the release names of a document in order of appearance.
func Releases(text string) []string {
	var names []string
	for _, it := range ParseItems(SplitLines(text), true) {
		if m := releaseNamePattern.FindStringSubmatch(it.Text); m != nil {
			names = append(names, m[1])
		}
	}
	return names
}

// SpecificReleaseNotes returns the notes of one release, from its header up
// to the next release header, with wrapped lines joined. An empty release
// selects the topmost one. Names match regardless of case and accents, so
// "hrodvitnir" finds "Hróðvitnir".
func SpecificReleaseNotes(text, release string) (string, error) {
	items := ParseItemsKeepBlank(SplitLines(text), true)
	want := NormaliseReleaseName(release)

	var names []string
	var out strings.Builder
	found := false
	for _, it := range items {
		if m := releaseNamePattern.FindStringSubmatch(it.Text); m != nil {
			if found {
				return out.String(), nil
			}
			names = append(names, m[1])
			if release == "" || NormaliseReleaseName(m[1]) == want {
				found = true
			}
		}
		if found {
			out.WriteString(it.Text)
		}
	}
	if found {
		return out.String(), nil
	}

	if release == "" {
		return "", &ReleaseNotFoundError{}
	}
	return "", &ReleaseNotFoundError{
		Name:        cases.Title(language.Und).String(want),
		Suggestions: suggestReleases(release, names),
	}
}

// NormaliseReleaseName folds case and strips accents: "Hróðvitnir" becomes
// "hrodvitnir".
func NormaliseReleaseName(name string) string {
	name = strings.NewReplacer("ð", "d", "Ð", "D", "þ", "th", "Þ", "Th").Replace(strings.TrimSpace(name))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}
	return cases.Fold().String(stripped)
}

// suggestReleases returns up to two release names close to the requested
// one. Similar spellings are preferred; otherwise names containing the
// request's letters in order are offered.
func suggestReleases(release string, names []string) []string {
	word := NormaliseReleaseName(release)

	type candidate struct {
		score float64
		name  string
	}
	var hits []candidate
	m := difflib.NewMatcher(nil, splitChars(word))
	seen := make(map[string]bool)
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		m.SetSeq1(splitChars(NormaliseReleaseName(name)))
		if m.RealQuickRatio() >= suggestionCutoff &&
			m.QuickRatio() >= suggestionCutoff &&
			m.Ratio() >= suggestionCutoff {
			hits = append(hits, candidate{score: m.Ratio(), name: name})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].name > hits[j].name
	})

	var out []string
	for _, h := range hits {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, h.name)
	}
	if len(out) > 0 {
		return out
	}

	ranks := fuzzy.RankFindNormalizedFold(word, names)
	sort.Sort(ranks)
	for _, r := range ranks {
		if len(out) == maxSuggestions {
			break
		}
		if !slices.Contains(out, r.Target) {
			out = append(out, r.Target)
		}
	}
	return out
}
