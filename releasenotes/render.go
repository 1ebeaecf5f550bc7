package releasenotes

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// releasePattern matches release headers: no indentation and a [release name].
var releasePattern = regexp.MustCompile(`^\S.*\[.+\]`)

// maxHeaderLen limits context headers. Feature bullets with sub-bullets are
// often long and only the start is needed to place the change.
const maxHeaderLen = 80

// Options controls how a diff is rendered.
type Options struct {
	// Diff shows removed lines and hints with their tags. Otherwise only the
	// text of added lines is shown.
	Diff bool

	// NewestOnly stops at the second release header, so only changes to the
	// topmost release are shown.
	NewestOnly bool
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{Diff: true}
}

type pendingHeader struct {
	indent int
	text   string
}

// Render turns an aligned entry stream into a human readable delta. Each
// shown change is preceded by the not yet shown headers that scope it, so the
// reader can tell which release and section it belongs to. Items that only
// moved are not reported.
func Render(entries []Entry, opts Options) string {
	all := NewEntrySet(entries)

	var out strings.Builder
	var headers []pendingHeader
	releases := 0
	// shown is whether the last non-hint entry was written as a change. A
	// hint annotates that line only, so it is dropped with it.
	shown := false

	for i, e := range entries {
		if e.Tag == Hint {
			if opts.Diff && shown {
				out.WriteString(e.String())
			}
			continue
		}
		shown = false

		indent := e.Indent()
		nextIndent := 0
		if next, ok := nextLine(entries, i); ok {
			nextIndent = next.Indent()
		}

		for len(headers) > 0 && headers[len(headers)-1].indent >= indent {
			headers = headers[:len(headers)-1]
		}

		if opts.NewestOnly && e.Tag != Removed && releasePattern.MatchString(e.Text) {
			releases++
			if releases > 1 {
				break
			}
		}

		tag := e.Tag
		switch {
		case tag == Added && all.Has(Entry{Tag: Removed, Text: e.Text}):
			tag = Unchanged
		case tag == Removed && all.Has(Entry{Tag: Added, Text: e.Text}):
			tag = Unchanged
		}

		display := e.Text
		if opts.Diff {
			display = Entry{Tag: tag, Text: e.Text}.String()
		}
		if indent == 0 || strings.Contains(display, sectionMarker) {
			display = "\n" + display
		}

		switch {
		case tag == Added || (opts.Diff && tag == Removed):
			for _, h := range headers {
				out.WriteString(h.text)
			}
			headers = headers[:0]
			out.WriteString(display)
			shown = true
		case tag == Unchanged && nextIndent > indent:
			headers = append(headers, pendingHeader{indent: indent, text: truncateHeader(display)})
		}
	}

	return strings.TrimLeft(out.String(), "\n")
}

// nextLine returns the entry after i, skipping hints.
func nextLine(entries []Entry, i int) (Entry, bool) {
	for _, e := range entries[i+1:] {
		if e.Tag != Hint {
			return e, true
		}
	}
	return Entry{}, false
}

func truncateHeader(s string) string {
	if utf8.RuneCountInString(s) <= maxHeaderLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxHeaderLen-3]) + "...\n"
}

// CompareReleaseNotes returns the changes from oldText to newText. An empty
// result means there is nothing to report.
func CompareReleaseNotes(oldText, newText string, opts Options) string {
	oldItems := ParseItems(SplitLines(oldText), true)
	newItems := ParseItems(SplitLines(newText), true)
	return Render(Diff(oldItems, newItems), opts)
}
