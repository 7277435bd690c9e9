// Copyright (c) 2025 Sqltunnel
// Licensed under the MIT License. See LICENSE file in the project root for details.

package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sqltunnel/cli/internal/logging"

	"github.com/pterm/pterm"
)

// Renderer prints one line per finished query file and keeps running totals.
type Renderer struct {
	out     io.Writer
	verbose bool

	mu     sync.Mutex
	done   int
	failed int
	rows   int64
}

// NewRenderer creates a renderer writing to w (os.Stdout when nil).
// With verbose set, query starts are printed as well.
func NewRenderer(w io.Writer, verbose bool) *Renderer {
	if w == nil {
		w = os.Stdout
	}
	return &Renderer{out: w, verbose: verbose}
}

// Render processes a single event. It is safe for concurrent use.
func (r *Renderer) Render(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case EventQueryStarted:
		if r.verbose {
			pterm.Info.WithWriter(r.out).Printfln("[%d/%d] running %s", ev.Index, ev.Total, ev.Source)
		}
	case EventQueryDone:
		r.done++
		r.rows += ev.Rows
		pterm.Success.WithWriter(r.out).Printfln("[%d/%d] %s -> %s (%s, %s)",
			ev.Index, ev.Total, filepath.Base(ev.Source), ev.Output, plural(ev.Rows, "row"), ev.Duration.Round(time.Millisecond))
	case EventQueryFailed:
		r.failed++
		msg := "unknown error"
		if ev.Err != nil {
			msg = logging.Mask(ev.Err.Error())
		}
		pterm.Error.WithWriter(r.out).Printfln("[%d/%d] %s: %s", ev.Index, ev.Total, filepath.Base(ev.Source), msg)
	}
}

// Totals returns the number of finished and failed query files and the rows written.
func (r *Renderer) Totals() (done, failed int, rows int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done, r.failed, r.rows
}

func plural(n int64, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
