package srv

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Command argument limits
const (
	MaxReleaseNameLen = 64
	MaxRevLen         = 40
	MaxPathLen        = 200
	MaxCommits        = 20
	DefaultCommits    = 5
)

// Changelog sources accepted by the whatsnew command.
const (
	SourceNightly   = "nightly"
	SourceRelease   = "release"
	SourceImportant = "important"
)

var revPattern = regexp.MustCompile(`^(r[0-9]+|[0-9a-fA-F]{4,40})$`)

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateLength checks if a string exceeds the max length (in runes, not bytes)
func ValidateLength(field, value string, maxLen int) error {
	if utf8.RuneCountInString(value) > maxLen {
		return ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be %d characters or less", maxLen),
		}
	}
	return nil
}

// ValidateRequired checks if a string is non-empty after trimming
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateReleaseName validates a release name (optional, empty means newest)
func ValidateReleaseName(name string) error {
	return ValidateLength("name", name, MaxReleaseNameLen)
}

// ValidateRev validates an svn revision like r12345 or a git SHA prefix
func ValidateRev(rev string) error {
	if err := ValidateRequired("rev", rev); err != nil {
		return err
	}
	if err := ValidateLength("rev", rev, MaxRevLen); err != nil {
		return err
	}
	if !revPattern.MatchString(rev) {
		return ValidationError{Field: "rev", Message: "must be an svn revision like r12345 or a git SHA"}
	}
	return nil
}

// ValidatePath validates a repository path filter (optional)
func ValidatePath(path string) error {
	if err := ValidateLength("path", path, MaxPathLen); err != nil {
		return err
	}
	if strings.HasPrefix(path, "/") || strings.Contains(path, "..") {
		return ValidationError{Field: "path", Message: "must be relative to the repository root"}
	}
	return nil
}

// ValidateSource normalises the whatsnew source argument
func ValidateSource(source string) (string, error) {
	switch s := strings.ToLower(strings.TrimSpace(source)); s {
	case "":
		return SourceNightly, nil
	case SourceNightly, SourceRelease, SourceImportant:
		return s, nil
	default:
		return "", ValidationError{Field: "source", Message: "must be nightly, release or important"}
	}
}

// ParseCommitCount parses the num argument, defaulting when empty
func ParseCommitCount(value string) (int, error) {
	if value == "" {
		return DefaultCommits, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 || n > MaxCommits {
		return 0, ValidationError{
			Field:   "num",
			Message: fmt.Sprintf("must be a number from 1 to %d", MaxCommits),
		}
	}
	return n, nil
}

// MaxRequestBodySize is the maximum allowed request body size (64KB).
// Commands carry their arguments in the query string.
const MaxRequestBodySize = 64 * 1024

// LimitRequestBody wraps a handler to limit request body size
func LimitRequestBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
		next.ServeHTTP(w, r)
	})
}
