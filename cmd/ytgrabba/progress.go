package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// progressView renders tool events for one download. On a terminal it
// redraws a single status line; otherwise progress goes to the debug log.
type progressView struct {
	out    io.Writer
	logger *slog.Logger
	tty    bool
	width  int

	mu    sync.Mutex
	drawn bool
}

func newProgressView(out io.Writer, logger *slog.Logger, quiet bool) *progressView {
	v := &progressView{out: out, logger: logger}
	if f, ok := out.(*os.File); ok && !quiet && term.IsTerminal(int(f.Fd())) {
		v.tty = true
		v.width = 80
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			v.width = w
		}
	}
	return v
}

// Sink returns the event sink for the engine.
func (v *progressView) Sink() domain.EventSink {
	return func(ev domain.OutputEvent) {
		switch ev.Kind {
		case domain.EventProgress:
			if ev.Progress == nil {
				return
			}
			if v.tty {
				v.draw(formatProgress(ev.Progress))
				return
			}
			v.logger.Debug("progress",
				"percent", ev.Progress.Percent,
				"total", ev.Progress.Total,
				"speed", ev.Progress.Speed,
				"eta", ev.Progress.ETA,
			)
		case domain.EventWarning:
			v.clear()
			v.logger.Warn("tool warning", "message", ev.Message)
		case domain.EventError:
			v.clear()
			v.logger.Error("tool error", "message", ev.Message)
		case domain.EventCompleted:
			v.logger.Debug("tool reported output", "path", ev.Path)
		}
	}
}

// Done clears the status line.
func (v *progressView) Done() {
	v.clear()
}

func (v *progressView) draw(line string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.width > 1 && len(line) > v.width-1 {
		line = line[:v.width-1]
	}
	fmt.Fprintf(v.out, "\r%-*s", v.width-1, line)
	v.drawn = true
}

func (v *progressView) clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.drawn {
		return
	}
	fmt.Fprintf(v.out, "\r%s\r", strings.Repeat(" ", v.width-1))
	v.drawn = false
}

func formatProgress(p *domain.Progress) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%5.1f%%]", p.Percent)
	if p.Total != "" {
		b.WriteString(" of " + p.Total)
	}
	if p.Speed != "" {
		b.WriteString(" at " + p.Speed)
	}
	if p.ETA > 0 {
		b.WriteString(" ETA " + formatETA(p.ETA))
	}
	return b.String()
}

func formatETA(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
