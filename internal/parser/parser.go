// Package parser turns the external tool's stdout and stderr into a single
// stream of classified events.
package parser

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// DefaultMaxLineLength caps a single line. Longer lines are emitted in chunks.
const DefaultMaxLineLength = 64 * 1024

const eventBuffer = 64

// Source is one output stream of a process.
type Source struct {
	Name   domain.StreamName
	Reader io.Reader
}

// Parser reads sources concurrently and classifies each line.
type Parser struct {
	classifier Classifier
	maxLine    int
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxLineLength sets the line length cap.
func WithMaxLineLength(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxLine = n
		}
	}
}

// New creates a Parser. A nil classifier uses DefaultClassifier.
func New(c Classifier, opts ...Option) *Parser {
	if c == nil {
		c = DefaultClassifier()
	}
	p := &Parser{classifier: c, maxLine: DefaultMaxLineLength}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stream is the merged event stream of one parse.
type Stream struct {
	events chan domain.OutputEvent
	done   chan struct{}
	err    error
}

// Events returns the event channel. It is closed once every source reached
// EOF, failed, or the context was cancelled.
func (s *Stream) Events() <-chan domain.OutputEvent {
	return s.events
}

// Wait blocks until the stream is finished and returns Err.
func (s *Stream) Wait() error {
	<-s.done
	return s.err
}

// Err returns the first read error, or nil while the parse is running.
// Once Events is closed the result is final.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Parse starts one read loop per source. Sources that implement io.Closer
// are closed when the parse stops early so blocked reads return.
func (p *Parser) Parse(ctx context.Context, sources ...Source) *Stream {
	s := &Stream{
		events: make(chan domain.OutputEvent, eventBuffer),
		done:   make(chan struct{}),
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error {
			return p.drain(gctx, src, s.events)
		})
	}

	stopped := make(chan struct{})
	go func() {
		select {
		case <-gctx.Done():
			closeSources(sources)
		case <-stopped:
		}
	}()

	go func() {
		s.err = g.Wait()
		close(stopped)
		// done first: a reader that sees events closed must also see err.
		close(s.done)
		close(s.events)
	}()

	return s
}

func (p *Parser) drain(ctx context.Context, src Source, out chan<- domain.OutputEvent) error {
	sc := bufio.NewScanner(src.Reader)
	sc.Buffer(make([]byte, 0, min(4096, p.maxLine+2)), p.maxLine+2)
	sc.Split(splitLines(p.maxLine))

	for sc.Scan() {
		line := strings.ToValidUTF8(sc.Text(), "\uFFFD")
		if strings.TrimSpace(line) == "" {
			continue
		}
		ev := p.classifier.Classify(src.Name, line)
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := sc.Err()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && (errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)) {
		return ctx.Err()
	}
	return domain.NewInvocationError(domain.KindStreamRead, "read "+string(src.Name),
		fmt.Errorf("%w: %v", domain.ErrStreamRead, err))
}

func closeSources(sources []Source) {
	for _, src := range sources {
		if c, ok := src.Reader.(io.Closer); ok {
			c.Close()
		}
	}
}

// splitLines splits on "\n", "\r\n" or a bare "\r", and cuts lines longer
// than maxLen into chunks. A trailing partial line is returned at EOF.
func splitLines(maxLen int) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}

		if i := bytes.IndexAny(data, "\r\n"); i >= 0 && i <= maxLen {
			if data[i] == '\n' {
				return i + 1, data[:i], nil
			}
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if atEOF {
				return i + 1, data[:i], nil
			}
			// Need one more byte to tell "\r" from "\r\n".
			return 0, nil, nil
		}

		if len(data) >= maxLen {
			return maxLen, data[:maxLen], nil
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}
