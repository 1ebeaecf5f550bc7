package releasenotes

import (
	"strings"
	"unicode"
)

const (
	// sectionMarker opens a new section and always gets a blank line before it.
	sectionMarker = "***"

	// highlightsHeader is a header spelling that starts an item even without a
	// preceding blank line.
	highlightsHeader = "Highlights:"
)

// Kind classifies an item by its leading characters.
type Kind int

const (
	KindBlank Kind = iota
	KindHeader
	KindBullet
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindBullet:
		return "bullet"
	default:
		return "blank"
	}
}

// Item is one logical unit of a changelog: a header line, a bullet together
// with its continuation lines, or (when kept) a blank line.
type Item struct {
	Text string
}

// Indent returns the number of leading spaces of the item.
func (it Item) Indent() int {
	return Indentation(it.Text)
}

// Kind returns the item's classification.
func (it Item) Kind() Kind {
	return Classify(it.Text)
}

// ParseItems groups lines into items. A blank line ends the current item and
// is dropped; a line starting with "*" always starts a new item; any other line
// continues the previous item.
//
// With unwrap set, continuation lines are joined onto a single line: one space
// is inserted at each break unless the text before it ends with a hyphen.
// Without unwrap the raw lines are concatenated, newlines included.
func ParseItems(lines []string, unwrap bool) []Item {
	return parseItems(lines, unwrap, false)
}

// ParseItemsKeepBlank is ParseItems but keeps each blank line as its own item.
func ParseItemsKeepBlank(lines []string, unwrap bool) []Item {
	return parseItems(lines, unwrap, true)
}

func parseItems(lines []string, unwrap, keepBlank bool) []Item {
	var items []Item
	blank := true
	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			blank = true
			if keepBlank {
				items = append(items, Item{Text: line})
			}
			continue
		}

		if blank || strings.HasPrefix(stripped, "*") || stripped == highlightsHeader {
			items = append(items, Item{Text: line})
		} else {
			last := &items[len(items)-1]
			if unwrap {
				text := strings.TrimRightFunc(last.Text, unicode.IsSpace)
				if !strings.HasSuffix(text, "-") {
					text += " "
				}
				last.Text = text + strings.TrimLeftFunc(line, unicode.IsSpace)
			} else {
				last.Text += line
			}
		}
		blank = false
	}
	return items
}

// Indentation counts the leading spaces of text, ignoring any newlines that
// were prepended for display.
func Indentation(text string) int {
	text = strings.TrimLeft(text, "\n")
	return len(text) - len(strings.TrimLeft(text, " "))
}

// Classify derives the kind of an item from its text. Section markers and
// unindented lines without a list marker are headers; everything else that
// is not blank is a bullet.
func Classify(text string) Kind {
	trimmed := strings.TrimSpace(text)
	switch {
	case trimmed == "":
		return KindBlank
	case trimmed == highlightsHeader, strings.Contains(trimmed, sectionMarker):
		return KindHeader
	case Indentation(text) == 0 && !strings.HasPrefix(trimmed, "*"):
		return KindHeader
	default:
		return KindBullet
	}
}

func itemTexts(items []Item) []string {
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}
	return texts
}
