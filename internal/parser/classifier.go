package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// Classifier turns one line of tool output into an event. Implementations
// must be safe for concurrent use and must never fail: lines they do not
// understand become EventUnrecognized.
type Classifier interface {
	Classify(stream domain.StreamName, line string) domain.OutputEvent
}

// Rule maps a regular expression to an event kind. Named groups fill the
// event: percent, total, speed, eta for progress; msg for warnings and
// errors; path for completion.
type Rule struct {
	Kind    domain.EventKind
	Pattern string
	// Stream restricts the rule to one stream. Empty matches both.
	Stream domain.StreamName
}

// DefaultRules understand yt-dlp output with --newline and the launcher's
// completion marker.
func DefaultRules() []Rule {
	return []Rule{
		{Kind: domain.EventCompleted, Pattern: `^\[ytgrabba\] Completed: (?P<path>.+)$`},
		{Kind: domain.EventCompleted, Pattern: `^\[Merger\] Merging formats into "(?P<path>.+)"$`},
		{Kind: domain.EventCompleted, Pattern: `^\[download\] (?P<path>.+) has already been downloaded`},
		{Kind: domain.EventCompleted, Pattern: `^\[ExtractAudio\] Destination: (?P<path>.+)$`},
		{Kind: domain.EventProgress, Pattern: `^\[download\]\s+(?P<percent>\d+(?:\.\d+)?)%\s+of\s+~?\s*(?P<total>\S+)(?:\s+at\s+(?P<speed>Unknown B/s|\S+))?(?:\s+ETA\s+(?P<eta>\S+))?`},
		{Kind: domain.EventWarning, Pattern: `^WARNING:\s*(?P<msg>.*)$`},
		{Kind: domain.EventError, Pattern: `^ERROR:\s*(?P<msg>.*)$`},
	}
}

type compiledRule struct {
	kind   domain.EventKind
	stream domain.StreamName
	re     *regexp.Regexp
}

// RuleClassifier classifies lines with an ordered list of rules. The first
// matching rule wins.
type RuleClassifier struct {
	rules []compiledRule
}

// NewRuleClassifier compiles rules in order.
func NewRuleClassifier(rules []Rule) (*RuleClassifier, error) {
	c := &RuleClassifier{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		switch r.Kind {
		case domain.EventProgress, domain.EventWarning, domain.EventError, domain.EventCompleted:
		default:
			return nil, fmt.Errorf("rule %d: unsupported kind %q", i, r.Kind)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		c.rules = append(c.rules, compiledRule{kind: r.Kind, stream: r.Stream, re: re})
	}
	return c, nil
}

// DefaultClassifier returns a classifier for DefaultRules.
func DefaultClassifier() *RuleClassifier {
	c, err := NewRuleClassifier(DefaultRules())
	if err != nil {
		panic(err)
	}
	return c
}

// Classify implements Classifier.
func (c *RuleClassifier) Classify(stream domain.StreamName, line string) domain.OutputEvent {
	ev := domain.OutputEvent{Kind: domain.EventUnrecognized, Stream: stream, Line: line}
	text := strings.TrimRight(line, " \t")

	for _, r := range c.rules {
		if r.stream != "" && r.stream != stream {
			continue
		}
		m := r.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		group := func(name string) string {
			if i := r.re.SubexpIndex(name); i > 0 && i < len(m) {
				return strings.TrimSpace(m[i])
			}
			return ""
		}

		ev.Kind = r.kind
		switch r.kind {
		case domain.EventProgress:
			p := domain.Progress{
				Total: group("total"),
				Speed: group("speed"),
				ETA:   ParseETA(group("eta")),
			}
			p.Percent, _ = strconv.ParseFloat(group("percent"), 64)
			ev.Progress = &p
		case domain.EventWarning, domain.EventError:
			ev.Message = group("msg")
			if ev.Message == "" {
				ev.Message = text
			}
		case domain.EventCompleted:
			ev.Path = group("path")
		}
		return ev
	}

	return ev
}

// ParseETA parses "SS", "MM:SS" or "HH:MM:SS". Anything else is zero.
func ParseETA(s string) time.Duration {
	if s == "" {
		return 0
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0
	}
	var total int
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}
