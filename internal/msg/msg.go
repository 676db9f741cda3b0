package msg

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// Stdout and Stderr can be swapped out by tests
var (
	Stdout io.Writer = color.Output
	Stderr io.Writer = color.Error
)

func emit(w io.Writer, label, format string, a ...any) {
	fmt.Fprint(w, label)
	fmt.Fprint(w, ": ")
	fmt.Fprintf(w, format, a...)
	fmt.Fprint(w, "\n")
}

func Error(format string, a ...any) {
	emit(Stderr, color.HiRedString("error"), format, a...)
}

func Warn(format string, a ...any) {
	emit(Stderr, color.YellowString("warn"), format, a...)
}

func Info(format string, a ...any) {
	emit(Stdout, color.HiGreenString("info"), format, a...)
}

// Exec echoes a command line before it is run
func Exec(cmdline string) {
	withBarCleared(func() {
		fmt.Fprintf(Stdout, "%s %s\n", color.HiCyanString("Executing:"), cmdline)
	})
}

// Created reports a file or directory the generator wrote
func Created(what, path string) {
	fmt.Fprintf(Stdout, "%s %s: %s\n", color.HiGreenString("Created"), what, path)
}

// IndentWriter prefixes every line written through it with Indent. Writes
// never land on the line of an active progress bar.
type IndentWriter struct {
	Indent    string
	W         io.Writer
	mu        sync.Mutex
	didIndent bool
}

func (w *IndentWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	buf := make([]byte, 0, len(p)+len(w.Indent))
	for _, c := range p {
		if !w.didIndent {
			buf = append(buf, w.Indent...)
			w.didIndent = true
		}
		buf = append(buf, c)
		if c == '\n' || c == '\r' {
			w.didIndent = false
		}
	}
	withBarCleared(func() {
		_, err = w.W.Write(buf)
	})
	if err != nil {
		return 0, err
	}
	return len(p), nil
}
