package releasenotes

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

// Tag labels one aligned entry.
type Tag byte

const (
	Unchanged Tag = ' '
	Added     Tag = '+'
	Removed   Tag = '-'
	// Hint lines mark the characters that differ between a removed line and
	// the added line it was paired with.
	Hint Tag = '?'
)

// Entry is one line of the aligned stream produced by Diff.
type Entry struct {
	Tag  Tag
	Text string
}

// String renders the entry with its two-character tag prefix, as in "+ text".
func (e Entry) String() string {
	return string(rune(e.Tag)) + " " + e.Text
}

// Indent returns the indentation of the entry's text.
func (e Entry) Indent() int {
	return Indentation(e.Text)
}

// EntrySet answers membership queries over a diff result in constant time.
type EntrySet map[Entry]struct{}

// NewEntrySet indexes entries by tag and text.
func NewEntrySet(entries []Entry) EntrySet {
	set := make(EntrySet, len(entries))
	for _, e := range entries {
		set[e] = struct{}{}
	}
	return set
}

// Has reports whether e is in the set.
func (s EntrySet) Has(e Entry) bool {
	_, ok := s[e]
	return ok
}

// isCharJunk reports characters that carry too little signal to decide
// whether two lines are versions of the same item.
func isCharJunk(c string) bool {
	switch c {
	case " ", "_", "{", "}", ".", "[", "]":
		return true
	}
	return false
}

// pairCutoff is the minimum similarity for a removed and an added line to be
// shown as one edited line.
const pairCutoff = 0.75

// Diff aligns two item sequences line by line. Items are compared by their
// full text; lines in a replaced block that are similar enough are paired and
// annotated with Hint entries.
func Diff(oldItems, newItems []Item) []Entry {
	a, b := itemTexts(oldItems), itemTexts(newItems)
	d := &differ{}
	m := difflib.NewMatcher(a, b)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'r':
			d.fancyReplace(a, op.I1, op.I2, b, op.J1, op.J2)
		case 'd':
			d.dump(Removed, a, op.I1, op.I2)
		case 'i':
			d.dump(Added, b, op.J1, op.J2)
		case 'e':
			d.dump(Unchanged, a, op.I1, op.I2)
		}
	}
	return d.out
}

type differ struct {
	out []Entry
}

func (d *differ) emit(tag Tag, text string) {
	d.out = append(d.out, Entry{Tag: tag, Text: text})
}

func (d *differ) dump(tag Tag, lines []string, lo, hi int) {
	for _, line := range lines[lo:hi] {
		d.emit(tag, line)
	}
}

func (d *differ) plainReplace(a []string, alo, ahi int, b []string, blo, bhi int) {
	if bhi-blo < ahi-alo {
		d.dump(Added, b, blo, bhi)
		d.dump(Removed, a, alo, ahi)
		return
	}
	d.dump(Removed, a, alo, ahi)
	d.dump(Added, b, blo, bhi)
}

// fancyReplace finds the most similar pair of lines in a replaced block,
// emits it as an edited pair and recurses on the lines either side of it.
// Identical lines inside the block are used as a synchronisation point only
// when no pair reaches the cutoff.
func (d *differ) fancyReplace(a []string, alo, ahi int, b []string, blo, bhi int) {
	bestRatio := 0.74
	bestI, bestJ := -1, -1
	eqI, eqJ := -1, -1

	cruncher := difflib.NewMatcherWithJunk(nil, nil, true, isCharJunk)
	for j := blo; j < bhi; j++ {
		bj := b[j]
		cruncher.SetSeq2(splitChars(bj))
		for i := alo; i < ahi; i++ {
			ai := a[i]
			if ai == bj {
				if eqI < 0 {
					eqI, eqJ = i, j
				}
				continue
			}
			cruncher.SetSeq1(splitChars(ai))
			if cruncher.RealQuickRatio() > bestRatio &&
				cruncher.QuickRatio() > bestRatio &&
				cruncher.Ratio() > bestRatio {
				bestRatio, bestI, bestJ = cruncher.Ratio(), i, j
			}
		}
	}

	if bestRatio < pairCutoff {
		if eqI < 0 {
			d.plainReplace(a, alo, ahi, b, blo, bhi)
			return
		}
		bestI, bestJ = eqI, eqJ
	} else {
		eqI = -1
	}

	d.fancyHelper(a, alo, bestI, b, blo, bestJ)

	aelt, belt := a[bestI], b[bestJ]
	if eqI < 0 {
		achars, bchars := splitChars(aelt), splitChars(belt)
		cruncher.SetSeqs(achars, bchars)
		var atags, btags strings.Builder
		for _, op := range cruncher.GetOpCodes() {
			la, lb := op.I2-op.I1, op.J2-op.J1
			switch op.Tag {
			case 'r':
				atags.WriteString(strings.Repeat("^", la))
				btags.WriteString(strings.Repeat("^", lb))
			case 'd':
				atags.WriteString(strings.Repeat("-", la))
			case 'i':
				btags.WriteString(strings.Repeat("+", lb))
			case 'e':
				atags.WriteString(strings.Repeat(" ", la))
				btags.WriteString(strings.Repeat(" ", lb))
			}
		}
		d.qformat(aelt, belt, achars, bchars, atags.String(), btags.String())
	} else {
		d.emit(Unchanged, aelt)
	}

	d.fancyHelper(a, bestI+1, ahi, b, bestJ+1, bhi)
}

func (d *differ) fancyHelper(a []string, alo, ahi int, b []string, blo, bhi int) {
	switch {
	case alo < ahi && blo < bhi:
		d.fancyReplace(a, alo, ahi, b, blo, bhi)
	case alo < ahi:
		d.dump(Removed, a, alo, ahi)
	case blo < bhi:
		d.dump(Added, b, blo, bhi)
	}
}

func (d *differ) qformat(aline, bline string, achars, bchars []string, atags, btags string) {
	atags = strings.TrimRightFunc(keepOriginalWhitespace(achars, atags), unicode.IsSpace)
	btags = strings.TrimRightFunc(keepOriginalWhitespace(bchars, btags), unicode.IsSpace)

	d.emit(Removed, aline)
	if atags != "" {
		d.emit(Hint, atags+"\n")
	}
	d.emit(Added, bline)
	if btags != "" {
		d.emit(Hint, btags+"\n")
	}
}

// keepOriginalWhitespace replaces blank marker positions with the original
// whitespace character so that tabs keep markers aligned.
func keepOriginalWhitespace(chars []string, tags string) string {
	var sb strings.Builder
	for i := 0; i < len(chars) && i < len(tags); i++ {
		tag := tags[i]
		if tag == ' ' && isSpace(chars[i]) {
			sb.WriteString(chars[i])
			continue
		}
		sb.WriteByte(tag)
	}
	return sb.String()
}

func isSpace(c string) bool {
	r, _ := utf8.DecodeRuneInString(c)
	return unicode.IsSpace(r)
}

// splitChars splits s into single characters, the unit the pair matcher
// compares.
func splitChars(s string) []string {
	return strings.Split(s, "")
}
