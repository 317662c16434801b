package inputs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sliink/eventd/internal/model"
	"github.com/sliink/eventd/internal/plugin"
	"github.com/sliink/eventd/internal/plugin/processors"
)

// FileInput tails files matched by glob patterns. Every scan returns the
// complete lines appended since the previous scan.
type FileInput struct {
	plugin.BasePlugin
	paths         []string
	fromEnd       bool
	parser        *processors.LineParser
	filePositions map[string]int64
	mutex         sync.Mutex
}

// NewFileInput creates a new file input plugin
func NewFileInput(id string) *FileInput {
	return &FileInput{
		BasePlugin:    plugin.NewBasePlugin(id, "File Input", model.SourcePluginType),
		filePositions: make(map[string]int64),
	}
}

// Initialize prepares the file input for operation
func (f *FileInput) Initialize() bool {
	f.paths = f.ConfigStrings("paths")
	f.fromEnd = f.ConfigString("start_at", "beginning") == "end"

	parser, err := newParser(&f.BasePlugin)
	if err != nil {
		f.Logger.Error("invalid parser configuration", "error", err)
		f.SetStatus(model.StatusError)
		return false
	}
	f.parser = parser

	f.SetStatus(model.StatusInitialized)
	return len(f.paths) > 0
}

// Validate checks if the file input is properly configured
func (f *FileInput) Validate() bool {
	paths := f.ConfigStrings("paths")
	if len(paths) == 0 {
		return false
	}
	for _, pattern := range paths {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return false
		}
	}
	_, err := newParser(&f.BasePlugin)
	return err == nil
}

// Scan reads new lines from every matched file. A file that cannot be read
// is logged and skipped so the other files still report.
func (f *FileInput) Scan(ctx context.Context) ([]model.Event, error) {
	if f.GetStatus() != model.StatusRunning {
		return nil, nil
	}

	var events []model.Event
	for _, pattern := range f.paths {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}

		for _, path := range matches {
			if err := ctx.Err(); err != nil {
				return events, nil
			}
			fileEvents, err := f.processFile(path)
			if err != nil {
				f.Logger.WarnContext(ctx, "cannot read file", "path", path, "error", err)
				continue
			}
			events = append(events, fileEvents...)
		}
	}
	return events, nil
}

// processFile reads complete lines from the last known offset. A trailing
// line without a newline is left for the next scan.
func (f *FileInput) processFile(path string) ([]model.Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	f.mutex.Lock()
	lastPosition, exists := f.filePositions[path]
	f.mutex.Unlock()

	switch {
	case !exists && f.fromEnd:
		lastPosition = info.Size()
	case lastPosition > info.Size():
		// truncated or rotated in place
		lastPosition = 0
	}

	if _, err := file.Seek(lastPosition, io.SeekStart); err != nil {
		return nil, err
	}

	var events []model.Event
	reader := bufio.NewReader(file)
	position := lastPosition
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		position += int64(len(line))
		if event, ok := f.parser.Parse(line); ok {
			events = append(events, event)
		}
	}

	f.mutex.Lock()
	f.filePositions[path] = position
	f.mutex.Unlock()

	return events, nil
}

// newParser builds the line parser shared by the line-oriented inputs
func newParser(p *plugin.BasePlugin) (*processors.LineParser, error) {
	return processors.NewLineParser(
		p.ConfigStrings("patterns"),
		p.ConfigString("default_kind", processors.DefaultEventKind),
		p.ConfigString("time_layout", ""),
	)
}
