// Command subtrans translates SRT subtitle files with a chat-completion LLM,
// batch by batch, resuming interrupted runs from their artifacts.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MimeLyc/batch-sub-translator/internal/service"
)

const exitInterrupted = 130

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}

// reportError prints err for the user and returns the exit code.
func reportError(w io.Writer, err error) int {
	code := 1
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(w, "interrupted")
		code = exitInterrupted
	case errors.Is(err, errCheckFailed):
		fmt.Fprintln(w, err)
		return code
	default:
		fmt.Fprintln(w, "error:", err)
	}

	var te *service.TransError
	if errors.As(err, &te) {
		fmt.Fprintln(w, "hint:", service.Advice(err))
	}
	return code
}
