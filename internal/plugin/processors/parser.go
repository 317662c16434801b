package processors

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sliink/eventd/internal/model"
)

// DefaultEventKind is used when no pattern names a kind
const DefaultEventKind = "message"

// LineParser turns raw text lines into events. Patterns are tried in order
// and may name the groups kind, payload and timestamp; the first match wins.
type LineParser struct {
	patterns    []*regexp.Regexp
	defaultKind string
	timeLayout  string
	now         func() time.Time
}

// NewLineParser compiles patterns. An empty defaultKind means "message" and
// an empty timeLayout means RFC3339.
func NewLineParser(patterns []string, defaultKind, timeLayout string) (*LineParser, error) {
	p := &LineParser{
		defaultKind: defaultKind,
		timeLayout:  timeLayout,
		now:         time.Now,
	}
	if p.defaultKind == "" {
		p.defaultKind = DefaultEventKind
	}
	if p.timeLayout == "" {
		p.timeLayout = time.RFC3339
	}

	for _, pat := range patterns {
		regex, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pat, err)
		}
		p.patterns = append(p.patterns, regex)
	}
	return p, nil
}

// Parse converts one line. Blank lines yield false.
func (p *LineParser) Parse(line string) (model.Event, bool) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return model.Event{}, false
	}

	kind := p.defaultKind
	payload := line
	occurredAt := p.now()

	for _, pattern := range p.patterns {
		matches := pattern.FindStringSubmatch(line)
		if matches == nil {
			continue
		}
		// Extract named capture groups
		for i, name := range pattern.SubexpNames() {
			if i == 0 || matches[i] == "" {
				continue
			}
			switch name {
			case "kind":
				kind = matches[i]
			case "payload":
				payload = matches[i]
			case "timestamp":
				if ts, err := time.Parse(p.timeLayout, matches[i]); err == nil {
					occurredAt = ts
				}
			}
		}
		break
	}

	return model.NewEvent(kind, payload, occurredAt), true
}
