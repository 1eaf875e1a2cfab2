// Package bus provides the in-process message bus for gocoach.
// Commands (request/response) and Events (pub/sub) can be triggered from
// the TUI, the web socket surface, or the CLI, and are handled by registered
// handlers. A Bus is an explicit value so tests can use their own; the
// package-level functions operate on Default.
package bus

import (
	"fmt"
	"sort"
	"sync"
	"time"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
)

// Command represents a request to a component (request/response pattern)
type Command struct {
	Component string               // Target component: "interview", "gateway", etc.
	Name      string               // Command name: "start", "submit-answer", etc.
	Payload   any                  // Optional payload
	Source    string               // Origin: "tui", "web", "cli", "system"
	Result    chan<- CommandResult // Response channel (nil for fire-and-forget)
}

// CommandResult is the response from a command handler
type CommandResult struct {
	Success bool   // Whether the command succeeded
	Message string // Human-readable result message
	Data    any    // Optional structured data
	Error   error  // Error if failed
}

// CommandHandler processes a command and returns a result
type CommandHandler func(Command) CommandResult

type busError string

func (e busError) Error() string { return string(e) }

const (
	ErrTimeout        busError = "command timed out"
	ErrBusFull        busError = "command bus full"
	ErrNoHandler      busError = "no handler registered"
	ErrUnknownCommand busError = "unknown command"
)

// DefaultCommandTimeout bounds SendCommand waits.
const DefaultCommandTimeout = 30 * time.Second

// Bus holds command handlers and event subscriptions.
type Bus struct {
	commands      chan Command
	dispatchOnce  sync.Once
	registry      map[string]map[string]CommandHandler
	registryMu    sync.RWMutex
	subscriptions map[string][]subscription
	subsMu        sync.RWMutex
	nextSubID     uint64
	timeout       time.Duration
}

// New creates an empty bus with a queue of the given depth.
func New(queueDepth int) *Bus {
	if queueDepth <= 0 {
		queueDepth = 100
	}
	return &Bus{
		commands:      make(chan Command, queueDepth),
		registry:      make(map[string]map[string]CommandHandler),
		subscriptions: make(map[string][]subscription),
		timeout:       DefaultCommandTimeout,
	}
}

// Default is the process-wide bus.
var Default = New(100)

// SetTimeout changes how long Send waits for a handler.
func (b *Bus) SetTimeout(d time.Duration) {
	if d > 0 {
		b.timeout = d
	}
}

// --- Registration ---

// RegisterCommand adds a handler for a component command
func (b *Bus) RegisterCommand(component, command string, handler CommandHandler) {
	b.registryMu.Lock()
	defer b.registryMu.Unlock()

	if b.registry[component] == nil {
		b.registry[component] = make(map[string]CommandHandler)
	}
	b.registry[component][command] = handler
	L_trace("bus: command registered", "component", component, "command", command)
}

// UnregisterComponent removes all command handlers for a component
func (b *Bus) UnregisterComponent(component string) {
	b.registryMu.Lock()
	defer b.registryMu.Unlock()
	delete(b.registry, component)
}

// --- Send Commands ---

// Send sends a command and waits for the result.
// Returns an error result on timeout or when the queue is full.
func (b *Bus) Send(component, name string, payload any, source string) CommandResult {
	b.ensureDispatcher()

	result := make(chan CommandResult, 1)
	cmd := Command{
		Component: component,
		Name:      name,
		Payload:   payload,
		Source:    source,
		Result:    result,
	}

	select {
	case b.commands <- cmd:
	default:
		return CommandResult{Error: ErrBusFull, Message: "command bus full"}
	}

	select {
	case r := <-result:
		return r
	case <-time.After(b.timeout):
		return CommandResult{Error: ErrTimeout, Message: "command timed out"}
	}
}

// SendAsync sends a command without waiting for the result.
func (b *Bus) SendAsync(component, name string, payload any, source string) {
	b.ensureDispatcher()

	cmd := Command{
		Component: component,
		Name:      name,
		Payload:   payload,
		Source:    source,
	}

	select {
	case b.commands <- cmd:
	default:
		L_warn("bus: command dropped (bus full)", "component", component, "command", name)
	}
}

// --- Dispatcher ---

func (b *Bus) ensureDispatcher() {
	b.dispatchOnce.Do(func() {
		go func() {
			for cmd := range b.commands {
				b.dispatch(cmd)
			}
		}()
		L_trace("bus: command dispatcher started")
	})
}

func (b *Bus) dispatch(cmd Command) {
	L_debug("bus: command dispatch", "component", cmd.Component, "command", cmd.Name, "source", cmd.Source)

	b.registryMu.RLock()
	handlers := b.registry[cmd.Component]
	var handler CommandHandler
	if handlers != nil {
		handler = handlers[cmd.Name]
	}
	b.registryMu.RUnlock()

	var result CommandResult
	switch {
	case handlers == nil:
		result = CommandResult{
			Error:   fmt.Errorf("%w: %s", ErrNoHandler, cmd.Component),
			Message: fmt.Sprintf("component '%s' not available", cmd.Component),
		}
	case handler == nil:
		result = CommandResult{
			Error:   fmt.Errorf("%w: %s.%s", ErrUnknownCommand, cmd.Component, cmd.Name),
			Message: fmt.Sprintf("unknown command '%s' for component '%s'", cmd.Name, cmd.Component),
		}
	default:
		result = b.runHandler(handler, cmd)
	}

	if cmd.Result != nil {
		select {
		case cmd.Result <- result:
		default:
			L_warn("bus: result channel full", "component", cmd.Component, "command", cmd.Name)
		}
	}
}

func (b *Bus) runHandler(handler CommandHandler, cmd Command) (result CommandResult) {
	defer func() {
		if r := recover(); r != nil {
			L_error("bus: command handler panic", "component", cmd.Component, "command", cmd.Name, "panic", r)
			result = CommandResult{Error: fmt.Errorf("handler panic: %v", r), Message: "command failed"}
		}
	}()
	return handler(cmd)
}

// --- Introspection ---

// ListCommands returns all command names for a component
func (b *Bus) ListCommands(component string) []string {
	b.registryMu.RLock()
	defer b.registryMu.RUnlock()

	names := make([]string, 0, len(b.registry[component]))
	for name := range b.registry[component] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// --- Package-level helpers on Default ---

// RegisterCommand adds a handler on the default bus.
func RegisterCommand(component, command string, handler CommandHandler) {
	Default.RegisterCommand(component, command, handler)
}

// SendCommand sends a command on the default bus and waits for the result.
func SendCommand(component, name string, payload any) CommandResult {
	return Default.Send(component, name, payload, "unknown")
}
