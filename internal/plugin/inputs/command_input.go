package inputs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sliink/eventd/internal/model"
	"github.com/sliink/eventd/internal/plugin"
	"github.com/sliink/eventd/internal/plugin/processors"
)

// CommandInput runs a command on every scan and turns each line of its
// standard output into an event
type CommandInput struct {
	plugin.BasePlugin
	command []string
	dir     string
	env     []string
	timeout time.Duration
	parser  *processors.LineParser
}

// NewCommandInput creates a new command input plugin
func NewCommandInput(id string) *CommandInput {
	return &CommandInput{
		BasePlugin: plugin.NewBasePlugin(id, "Command Input", model.SourcePluginType),
		timeout:    10 * time.Second,
	}
}

// Validate requires a command
func (c *CommandInput) Validate() bool {
	if len(c.ConfigStrings("command")) == 0 {
		return false
	}
	_, err := newParser(&c.BasePlugin)
	return err == nil
}

// Initialize prepares the command input for operation
func (c *CommandInput) Initialize() bool {
	c.command = c.ConfigStrings("command")
	c.dir = c.ConfigString("dir", "")
	c.timeout = c.ConfigMillis("timeout_ms", c.timeout)

	// Extra environment on top of the daemon's own
	c.env = os.Environ()
	for k, v := range c.ConfigStringMap("env") {
		c.env = append(c.env, k+"="+v)
	}

	parser, err := newParser(&c.BasePlugin)
	if err != nil {
		c.Logger.Error("invalid parser configuration", "error", err)
		c.SetStatus(model.StatusError)
		return false
	}
	c.parser = parser

	c.SetStatus(model.StatusInitialized)
	return len(c.command) > 0
}

// Scan executes the command. A non-zero exit fails the scan.
func (c *CommandInput) Scan(ctx context.Context) ([]model.Event, error) {
	if c.GetStatus() != model.StatusRunning {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.command[0], c.command[1:]...)
	cmd.Dir = c.dir
	cmd.Env = c.env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", c.command[0], err, msg)
		}
		return nil, fmt.Errorf("%s: %w", c.command[0], err)
	}

	var events []model.Event
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		if event, ok := c.parser.Parse(scanner.Text()); ok {
			events = append(events, event)
		}
	}
	return events, scanner.Err()
}
