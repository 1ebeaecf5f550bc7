package main

import (
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"golang.org/x/term"
)

// Spinner character sets: braille dots, or |/-\ when ASCII is forced.
const (
	unicodeSpinner = 14
	asciiSpinner   = 9
)

// startProgress shows a spinner with msg on w while a command waits on the
// network, and returns the function that removes it. Nothing is drawn unless
// w is a terminal, so piped and captured output stays clean.
func startProgress(w io.Writer, msg string) (stop func()) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) || os.Getenv("TERM") == "dumb" {
		return func() {}
	}

	set := unicodeSpinner
	if os.Getenv("WHATSNEW_ASCII") == "1" {
		set = asciiSpinner
	}
	s := spinner.New(spinner.CharSets[set], 100*time.Millisecond, spinner.WithWriter(f))
	s.Suffix = " " + msg
	s.Start()
	return s.Stop
}
