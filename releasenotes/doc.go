// Package releasenotes extracts what is new between two versions of a
// whatsnew-style changelog.
//
// A changelog is a loosely structured text document: release headers such as
// "Hrodvitnir [20201231]" start at column zero, "***" lines open sections, and
// bullets start with "*" and may wrap onto indented continuation lines. The
// package turns each document into Items, aligns the two item sequences with a
// line differ, and renders the added (and optionally removed) items together
// with the chain of headers that scope them.
//
// Everything here is a pure text transformation. Functions hold no shared state
// and are safe to call concurrently.
package releasenotes
