// Package translator turns a finished process into an invocation outcome.
package translator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// DefaultTransient are error patterns worth retrying.
var DefaultTransient = []string{
	`(?i)connection (reset|refused|aborted)`,
	`(?i)timed? ?out`,
	`(?i)HTTP Error (5\d\d|429)`,
	`(?i)temporary failure in name resolution`,
	`(?i)(host|name or service) not (found|known)`,
	`(?i)getaddrinfo failed`,
	`(?i)remote end closed connection`,
	`(?i)unable to download (video data|webpage): .*(reset|timed out|incomplete)`,
}

// DefaultPermanent are error patterns that no retry will fix.
var DefaultPermanent = []string{
	`(?i)video unavailable`,
	`(?i)unsupported url`,
	`(?i)HTTP Error (401|403|404|410)`,
	`(?i)private video`,
	`(?i)sign in to confirm`,
	`(?i)(login|authentication) (required|failed)`,
	`(?i)requested format is not available`,
	`(?i)has been removed`,
	`(?i)is not a valid url`,
}

// History accumulates what an attempt reported. It is owned by a single
// goroutine and must not be shared between attempts.
type History struct {
	completed []string
	errors    []string
	warnings  []string
	progress  *domain.Progress
	lines     int
}

// Observe records an event.
func (h *History) Observe(ev domain.OutputEvent) {
	h.lines++
	switch ev.Kind {
	case domain.EventCompleted:
		if ev.Path != "" {
			h.completed = append(h.completed, ev.Path)
		}
	case domain.EventError:
		h.errors = append(h.errors, ev.Message)
	case domain.EventWarning:
		h.warnings = append(h.warnings, ev.Message)
	case domain.EventProgress:
		if ev.Progress != nil {
			p := *ev.Progress
			h.progress = &p
		}
	}
}

// LastPath returns the most recently reported output path.
func (h *History) LastPath() (string, bool) {
	if len(h.completed) == 0 {
		return "", false
	}
	return h.completed[len(h.completed)-1], true
}

// Errors returns the error messages in the order they were printed.
func (h *History) Errors() []string {
	return append([]string(nil), h.errors...)
}

// Warnings returns the warning messages in the order they were printed.
func (h *History) Warnings() []string {
	return append([]string(nil), h.warnings...)
}

// LastProgress returns the last progress update, if any.
func (h *History) LastProgress() *domain.Progress {
	return h.progress
}

// Lines returns how many events were observed.
func (h *History) Lines() int {
	return h.lines
}

// Translator applies exit-code and message rules.
type Translator struct {
	transient []*regexp.Regexp
	permanent []*regexp.Regexp
}

// New compiles the rule lists. Nil lists use the defaults; an empty,
// non-nil list disables that category.
func New(transient, permanent []string) (*Translator, error) {
	if transient == nil {
		transient = DefaultTransient
	}
	if permanent == nil {
		permanent = DefaultPermanent
	}

	t := &Translator{}
	var err error
	if t.transient, err = compile(transient); err != nil {
		return nil, fmt.Errorf("transient rules: %w", err)
	}
	if t.permanent, err = compile(permanent); err != nil {
		return nil, fmt.Errorf("permanent rules: %w", err)
	}
	return t, nil
}

// Default returns a translator with the default rules.
func Default() *Translator {
	t, err := New(nil, nil)
	if err != nil {
		panic(err)
	}
	return t
}

func compile(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Translate produces the outcome of a finished attempt. streamErr is the
// parser's read error, if any.
func (t *Translator) Translate(exitCode int, h *History, streamErr error) domain.Outcome {
	if h == nil {
		h = &History{}
	}
	meta := domain.Metadata{Warnings: h.Warnings()}

	if streamErr != nil {
		o := domain.FatalFailure(streamErr.Error(), exitCode)
		o.ErrKind = domain.KindStreamRead
		o.Metadata = meta
		return o
	}

	if exitCode == 0 {
		if path, ok := h.LastPath(); ok {
			return domain.Success(path, meta)
		}
		o := domain.FatalFailure(domain.ReasonAmbiguousSuccess, exitCode)
		o.Metadata = meta
		return o
	}

	o := domain.FatalFailure(domain.ReasonUnknownCause, exitCode)
	if len(h.errors) > 0 {
		o = t.classify(h.errors, exitCode)
	}
	o.Metadata = meta
	return o
}

func (t *Translator) classify(msgs []string, exitCode int) domain.Outcome {
	for _, m := range msgs {
		if match(t.permanent, m) {
			return domain.FatalFailure(m, exitCode)
		}
	}
	for _, m := range msgs {
		if match(t.transient, m) {
			return domain.RetryableFailure(m, exitCode)
		}
	}
	return domain.FatalFailure(firstNonEmpty(msgs), exitCode)
}

func match(rules []*regexp.Regexp, msg string) bool {
	for _, re := range rules {
		if re.MatchString(msg) {
			return true
		}
	}
	return false
}

func firstNonEmpty(msgs []string) string {
	for _, m := range msgs {
		if strings.TrimSpace(m) != "" {
			return m
		}
	}
	return domain.ReasonUnknownCause
}
