package outputs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sliink/eventd/internal/model"
	"github.com/sliink/eventd/internal/plugin"
)

// StdoutOutput writes every notified event to standard output
type StdoutOutput struct {
	plugin.BasePlugin
	colorize bool
	format   string
	out      io.Writer
	mu       sync.Mutex
}

// NewStdoutOutput creates a new stdout notifier plugin
func NewStdoutOutput(id string) *StdoutOutput {
	return &StdoutOutput{
		BasePlugin: plugin.NewBasePlugin(id, "Stdout Output", model.NotifyPluginType),
		colorize:   false,
		format:     "text",
	}
}

// Initialize prepares the stdout output for operation
func (s *StdoutOutput) Initialize() bool {
	s.colorize = s.ConfigBool("colorize", s.colorize)
	s.format = s.ConfigString("format", s.format)

	s.SetStatus(model.StatusInitialized)
	return true
}

// Validate accepts the text and json formats
func (s *StdoutOutput) Validate() bool {
	format := s.ConfigString("format", "text")
	return format == "text" || format == "json"
}

// SetWriter redirects output, mainly for tests
func (s *StdoutOutput) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = w
}

// Notify prints the event as one line (text) or one JSON object
func (s *StdoutOutput) Notify(ctx context.Context, event model.Event) error {
	if s.GetStatus() != model.StatusRunning {
		return fmt.Errorf("stdout output %s is not running", s.ID())
	}

	var line string
	if s.format == "json" {
		data, err := json.Marshal(event.ToMap())
		if err != nil {
			return err
		}
		line = string(data)
	} else {
		line = s.formatText(event)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.out
	if out == nil {
		out = os.Stdout
	}
	_, err := fmt.Fprintln(out, line)
	return err
}

// formatText renders "[time] KIND: payload"
func (s *StdoutOutput) formatText(event model.Event) string {
	timestamp := event.OccurredAt.Format(time.RFC3339)

	kind := strings.ToUpper(event.Kind)
	if s.colorize {
		switch {
		case strings.Contains(event.Kind, "error"), strings.Contains(event.Kind, "alert"):
			kind = "\033[31m" + kind + "\033[0m" // Red
		case strings.Contains(event.Kind, "warn"):
			kind = "\033[33m" + kind + "\033[0m" // Yellow
		default:
			kind = "\033[32m" + kind + "\033[0m" // Green
		}
	}

	return fmt.Sprintf("[%s] %s: %s", timestamp, kind, event.Payload)
}
