package main

import (
	"fmt"
	"io"

	"sag-go/internal/sag"
)

// newProgressObserver prints per-file log lines when verbose and a running
// counter otherwise.
func newProgressObserver(w io.Writer, verbose bool, label string) sag.Observer {
	return sag.ObserverFuncs{
		Progress: func(current, total int) {
			if verbose || total == 0 {
				return
			}
			fmt.Fprintf(w, "\r%s %d/%d", label, current, total)
			if current == total {
				fmt.Fprintln(w)
			}
		},
		Log: func(message string) {
			if verbose {
				fmt.Fprintln(w, message)
			}
		},
	}
}
