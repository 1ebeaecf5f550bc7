package releasenotes

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// ErrInvalidEncoding is returned for documents that are not valid UTF-8.
var ErrInvalidEncoding = errors.New("releasenotes: document is not valid UTF-8")

// ReadDocument reads a whole changelog. The encoding is never guessed: input
// that is not UTF-8 is an error.
func ReadDocument(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidEncoding
	}
	return string(b), nil
}

// SplitLines splits text into lines that keep their newline. A missing
// newline at the end of the text is added.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if last := lines[len(lines)-1]; !strings.HasSuffix(last, "\n") {
		lines[len(lines)-1] = last + "\n"
	}
	return lines
}
