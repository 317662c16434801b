// Package hooks loads event hooks written in Lua.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Shopify/go-lua"

	"github.com/sliink/eventd/internal/core"
	"github.com/sliink/eventd/internal/model"
)

const handlerName = "on_event"

// LuaLoader loads *.lua plugin files into hooks
type LuaLoader struct {
	logger *slog.Logger
}

// NewLuaLoader creates a loader whose scripts log through logger
func NewLuaLoader(logger *slog.Logger) *LuaLoader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LuaLoader{logger: logger}
}

// Extensions implements core.HookLoader
func (l *LuaLoader) Extensions() []string {
	return []string{".lua"}
}

// Load runs the file's top-level chunk once in a fresh state and binds its
// global on_event function. A file without one yields core.ErrNoHook.
func (l *LuaLoader) Load(path string) (model.Hook, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	hook := &LuaHook{
		name:   name,
		state:  lua.NewState(),
		logger: l.logger.With("hook", name),
	}
	lua.OpenLibraries(hook.state)
	hook.registerHelpers()

	if err := lua.LoadFile(hook.state, path, ""); err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), luaError(hook.state, err))
	}
	if err := hook.state.ProtectedCall(0, 0, 0); err != nil {
		return nil, fmt.Errorf("run %s: %w", filepath.Base(path), luaError(hook.state, err))
	}

	hook.state.Global(handlerName)
	defined := hook.state.IsFunction(-1)
	hook.state.Pop(1)
	if !defined {
		return nil, core.ErrNoHook
	}
	return hook, nil
}

// LuaHook calls a script's on_event for every event. A lua.State is not
// safe for concurrent use, so calls are serialized.
type LuaHook struct {
	name   string
	state  *lua.State
	logger *slog.Logger
	mu     sync.Mutex
}

// Name returns the script's file name without extension
func (h *LuaHook) Name() string {
	return h.name
}

// OnEvent calls on_event({kind, payload, occurred_at}). A raised Lua error
// is returned as a Go error.
func (h *LuaHook) OnEvent(ctx context.Context, event model.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	defer h.state.SetTop(0)

	if err := ctx.Err(); err != nil {
		return err
	}

	h.state.Global(handlerName)
	h.state.NewTable()
	h.state.PushString(event.Kind)
	h.state.SetField(-2, "kind")
	h.state.PushString(event.Payload)
	h.state.SetField(-2, "payload")
	h.state.PushInteger(int(event.OccurredAt.Unix()))
	h.state.SetField(-2, "occurred_at")

	if err := h.state.ProtectedCall(1, 0, 0); err != nil {
		return luaError(h.state, err)
	}
	return nil
}

// luaError attaches the error value left on the stack by a failed call
func luaError(state *lua.State, err error) error {
	if state.Top() == 0 {
		return err
	}
	msg, ok := state.ToString(-1)
	if !ok || msg == "" || strings.Contains(err.Error(), msg) {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}

// registerHelpers installs the eventd table: eventd.log(msg [, level])
func (h *LuaHook) registerHelpers() {
	h.state.NewTable()
	lua.SetFunctions(h.state, []lua.RegistryFunction{
		{Name: "log", Function: h.luaLog},
	}, 0)
	h.state.SetGlobal("eventd")
}

func (h *LuaHook) luaLog(state *lua.State) int {
	msg := lua.CheckString(state, 1)
	level := slog.LevelInfo
	switch lua.OptString(state, 2, "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	h.logger.Log(context.Background(), level, msg)
	return 0
}
