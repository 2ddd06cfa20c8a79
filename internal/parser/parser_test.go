package parser

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

func collect(t *testing.T, s *Stream) []domain.OutputEvent {
	t.Helper()
	var events []domain.OutputEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func lines(events []domain.OutputEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Line
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParse_LineEndings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"newline", "one\ntwo\n", []string{"one", "two"}},
		{"crlf", "one\r\ntwo\r\n", []string{"one", "two"}},
		{"carriage return redraw", "10%\r20%\r30%\n", []string{"10%", "20%", "30%"}},
		{"trailing partial line", "one\ntwo", []string{"one", "two"}},
		{"trailing carriage return", "one\r", []string{"one"}},
		{"blank lines skipped", "\n\none\n  \n", []string{"one"}},
		{"only partial", "done", []string{"done"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(nil)
			s := p.Parse(context.Background(), Source{Name: domain.StreamStdout, Reader: strings.NewReader(tt.input)})
			got := lines(collect(t, s))
			if !equal(got, tt.want) {
				t.Errorf("lines = %q, want %q", got, tt.want)
			}
			if err := s.Err(); err != nil {
				t.Errorf("Err() = %v", err)
			}
		})
	}
}

func TestParse_PartialCompletionLineFlushed(t *testing.T) {
	input := "[download] 100% of 1.00MiB\r[ytgrabba] Completed: /tmp/out.mp4"
	s := New(nil).Parse(context.Background(), Source{Name: domain.StreamStdout, Reader: strings.NewReader(input)})
	events := collect(t, s)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != domain.EventProgress {
		t.Errorf("events[0].Kind = %q, want progress", events[0].Kind)
	}
	if events[1].Kind != domain.EventCompleted || events[1].Path != "/tmp/out.mp4" {
		t.Errorf("events[1] = %+v, want completed /tmp/out.mp4", events[1])
	}
}

func TestParse_LongLinesChunked(t *testing.T) {
	s := New(nil, WithMaxLineLength(8)).Parse(context.Background(),
		Source{Name: domain.StreamStderr, Reader: strings.NewReader("abcdefghij\nxy\n")})
	got := lines(collect(t, s))
	want := []string{"abcdefgh", "ij", "xy"}
	if !equal(got, want) {
		t.Errorf("lines = %q, want %q", got, want)
	}
}

func TestParse_InvalidUTF8(t *testing.T) {
	s := New(nil).Parse(context.Background(),
		Source{Name: domain.StreamStdout, Reader: strings.NewReader("bad \xff\xfe byte\n")})
	events := collect(t, s)
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].Line != "bad � byte" {
		t.Errorf("Line = %q", events[0].Line)
	}
	if events[0].Kind != domain.EventUnrecognized {
		t.Errorf("Kind = %q, want unrecognized", events[0].Kind)
	}
}

func TestParse_MergesStreams(t *testing.T) {
	stdout := strings.NewReader("[download]  50.0% of 2.00MiB at 1.00MiB/s ETA 00:01\n[ytgrabba] Completed: a.mp4\n")
	stderr := strings.NewReader("WARNING: slow\nERROR: boom\n")

	s := New(nil).Parse(context.Background(),
		Source{Name: domain.StreamStdout, Reader: stdout},
		Source{Name: domain.StreamStderr, Reader: stderr},
	)

	counts := map[domain.StreamName]int{}
	kinds := map[domain.EventKind]int{}
	var outOrder []domain.EventKind
	for _, ev := range collect(t, s) {
		counts[ev.Stream]++
		kinds[ev.Kind]++
		if ev.Stream == domain.StreamStdout {
			outOrder = append(outOrder, ev.Kind)
		}
	}

	if counts[domain.StreamStdout] != 2 || counts[domain.StreamStderr] != 2 {
		t.Errorf("per-stream counts = %v", counts)
	}
	if kinds[domain.EventWarning] != 1 || kinds[domain.EventError] != 1 {
		t.Errorf("kinds = %v", kinds)
	}
	// Order within a stream is preserved.
	if len(outOrder) != 2 || outOrder[0] != domain.EventProgress || outOrder[1] != domain.EventCompleted {
		t.Errorf("stdout order = %v", outOrder)
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestParse_ReadError(t *testing.T) {
	s := New(nil).Parse(context.Background(),
		Source{Name: domain.StreamStdout, Reader: strings.NewReader("ok\n")},
		Source{Name: domain.StreamStderr, Reader: failingReader{err: errors.New("device gone")}},
	)
	collect(t, s)

	err := s.Err()
	if !errors.Is(err, domain.ErrStreamRead) {
		t.Fatalf("Err() = %v, want ErrStreamRead", err)
	}
	if domain.KindOf(err) != domain.KindStreamRead {
		t.Errorf("KindOf() = %q", domain.KindOf(err))
	}
}

func TestParse_CancelUnblocksReaders(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s := New(nil).Parse(ctx, Source{Name: domain.StreamStdout, Reader: pr})

	go func() {
		pw.Write([]byte("first\n"))
		cancel()
	}()

	collect(t, s)
	if err := s.Wait(); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
}

func TestStream_ErrBeforeDone(t *testing.T) {
	pr, pw := io.Pipe()
	s := New(nil).Parse(context.Background(), Source{Name: domain.StreamStdout, Reader: pr})
	if err := s.Err(); err != nil {
		t.Errorf("Err() while running = %v", err)
	}
	pw.Close()
	collect(t, s)
	if err := s.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}

func TestStream_ErrVisibleOnceEventsClosed(t *testing.T) {
	p := New(nil)
	const runs = 500

	var wg sync.WaitGroup
	lost := make(chan int, 8)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := 0
			for i := 0; i < runs; i++ {
				s := p.Parse(context.Background(),
					Source{Name: domain.StreamStdout, Reader: strings.NewReader("ok\n")},
					Source{Name: domain.StreamStderr, Reader: failingReader{err: errors.New("device gone")}},
				)
				for range s.Events() {
				}
				if !errors.Is(s.Err(), domain.ErrStreamRead) {
					n++
				}
			}
			lost <- n
		}()
	}
	wg.Wait()
	close(lost)

	total := 0
	for n := range lost {
		total += n
	}
	if total > 0 {
		t.Errorf("read error missing after Events closed in %d of %d parses", total, 8*runs)
	}
}
