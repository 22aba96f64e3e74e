package extensions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/getkin/kin-openapi/openapi3"
)

// ErrDispatchTimeout is returned by DispatchEvent and
// DispatchEventWithResponse when the dispatch budget
// elapses before all hooks complete.
var ErrDispatchTimeout = errors.New("extension dispatch timed out")

// ErrShutdownBudgetExceeded is returned by Shutdown when outstanding
// invocations do not quiesce within the given budget.
var ErrShutdownBudgetExceeded = errors.New("extension manager shutdown budget exceeded")

// RegistrationPayload is produced by the sandbox runtime (R) while executing
// an extension's initializer and consumed by the Manager's register().
type RegistrationPayload struct {
	ExtensionID    string
	Version        string
	APIVersion     string
	Capabilities   []string
	Tools          []ToolDef
	SlashCommands  []CommandDef
	Shortcuts      []ShortcutDef
	Flags          []FlagDef
	EventHooks     map[EventType][]HandlerFunc
	ProviderDefs   []ProviderDef
	ModelDefs      []ModelDef
}

// toolRegistration / cmdRegistration / etc. pair a registered definition with
// its owning extension id, so duplicate-name shadows can be reported.
type toolRegistration struct {
	def         ToolDef
	extensionID string
}
type cmdRegistration struct {
	def         CommandDef
	extensionID string
}
type shortcutRegistration struct {
	def         ShortcutDef
	extensionID string
}
type flagRegistration struct {
	def         FlagDef
	extensionID string
}
type providerRegistration struct {
	def         ProviderDef
	extensionID string
}
type eventHookRegistration struct {
	handler     HandlerFunc
	extensionID string
}

// ExtensionRegistry is the process-wide registration state owned by the
// Manager. Each namespace is independently guarded; duplicate names are
// retained as shadows (spec §3/§4.5: first-registering extension wins).
type ExtensionRegistry struct {
	mu sync.RWMutex

	tools      map[string][]toolRegistration
	commands   map[string][]cmdRegistration
	shortcuts  map[string][]shortcutRegistration
	flags      map[string][]flagRegistration
	providers  map[string][]providerRegistration
	eventHooks map[EventType][]eventHookRegistration

	// loadOrder records the order extensions were registered in, so event
	// dispatch and tie-breaking stay stable (spec §5).
	loadOrder []string
}

func newRegistry() *ExtensionRegistry {
	return &ExtensionRegistry{
		tools:      make(map[string][]toolRegistration),
		commands:   make(map[string][]cmdRegistration),
		shortcuts:  make(map[string][]shortcutRegistration),
		flags:      make(map[string][]flagRegistration),
		providers:  make(map[string][]providerRegistration),
		eventHooks: make(map[EventType][]eventHookRegistration),
	}
}

// Manager is the Extension Manager (M): it owns the ExtensionRegistry and a
// handle to the sandbox runtime, merges registrations, and dispatches
// events/commands/tools/shortcuts with timeout and panic-safety guarantees.
type Manager struct {
	registry *ExtensionRegistry
	runtime  *Runtime // may be nil in tests that only exercise registration

	mu          sync.Mutex
	draining    bool
	inflight    sync.WaitGroup
	defaultCtx  Context
}

// NewManager creates an empty Manager, optionally bound to a sandbox
// runtime for JS-backed command/tool/shortcut dispatch.
func NewManager(rt *Runtime) *Manager {
	return &Manager{registry: newRegistry(), runtime: rt}
}

// SetContext stores the Context used by Emit (the zero-argument dispatch
// convenience used for ambient lifecycle events like SessionStart/
// SessionShutdown, where the caller has no per-event Context to pass).
func (m *Manager) SetContext(ctx Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultCtx = ctx
}

func (m *Manager) context() Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultCtx
}

// Register merges one extension's RegistrationPayload into the registry.
// Duplicate names in any namespace are accepted but the first-registering
// extension wins; subsequent registrations are retained as shadows.
// Event hooks accept duplicates and preserve per-extension registration
// order; across extensions dispatch order follows load order.
func (m *Manager) Register(p RegistrationPayload) {
	r := m.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loadOrder = append(r.loadOrder, p.ExtensionID)

	for _, t := range p.Tools {
		if err := validateToolParameterSchema(t.Parameters); err != nil {
			log.Warn("rejecting pi.registerTool: invalid parameter schema", "extension", p.ExtensionID, "tool", t.Name, "err", err)
			continue
		}
		r.tools[t.Name] = append(r.tools[t.Name], toolRegistration{def: t, extensionID: p.ExtensionID})
	}
	for _, c := range p.SlashCommands {
		r.commands[c.Name] = append(r.commands[c.Name], cmdRegistration{def: c, extensionID: p.ExtensionID})
	}
	for _, s := range p.Shortcuts {
		r.shortcuts[s.Chord] = append(r.shortcuts[s.Chord], shortcutRegistration{def: s, extensionID: p.ExtensionID})
	}
	for _, f := range p.Flags {
		r.flags[f.Name] = append(r.flags[f.Name], flagRegistration{def: f, extensionID: p.ExtensionID})
	}
	for _, pd := range p.ProviderDefs {
		r.providers[pd.ID] = append(r.providers[pd.ID], providerRegistration{def: pd, extensionID: p.ExtensionID})
	}
	// Event hooks: iterate the extension's own hook map in a stable order
	// driven by EventType (map iteration order over a small fixed key set
	// is not itself the ordering guarantee — the guarantee is that, for a
	// single extension, registration order within AllEventTypes()'s event
	// buckets is preserved because the runtime appends to EventHooks[event]
	// in source order before handing us the payload).
	for _, et := range AllEventTypes() {
		for _, h := range p.EventHooks[et] {
			r.eventHooks[et] = append(r.eventHooks[et], eventHookRegistration{handler: h, extensionID: p.ExtensionID})
		}
	}
}

// validateToolParameterSchema confirms a pi.registerTool parameter schema is
// a well-formed JSON Schema document before the tool is allowed to shadow or
// win a name. A nil/empty schema (no parameters) is valid.
func validateToolParameterSchema(params map[string]any) error {
	if len(params) == 0 {
		return nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode parameter schema: %w", err)
	}
	schema := &openapi3.Schema{}
	if err := json.Unmarshal(b, schema); err != nil {
		return fmt.Errorf("decode parameter schema: %w", err)
	}
	return schema.Validate(context.Background())
}

// namedWinner returns the first-registered definition for a name, or the
// zero value and false if nothing is registered.
func namedWinner[T any](regs []T) (T, bool) {
	var zero T
	if len(regs) == 0 {
		return zero, false
	}
	return regs[0], true
}

// HasHandlers returns true if any registered extension has a handler for
// the given event type.
func (m *Manager) HasHandlers(event EventType) bool {
	r := m.registry
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.eventHooks[event]) > 0
}

// RegisteredTools returns the registry's tool list: exactly the distinct
// tool names contributed across all loaded extensions, each resolving to
// its first registrant.
func (m *Manager) RegisteredTools() []ToolDef {
	r := m.registry
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]ToolDef, 0, len(r.tools))
	for _, regs := range r.tools {
		if w, ok := namedWinner(regs); ok {
			tools = append(tools, w.def)
		}
	}
	return tools
}

// RegisteredCommands, RegisteredShortcuts, and RegisteredProviders are
// analogous cheap-lookup projections over the registry.
func (m *Manager) RegisteredCommands() []CommandDef {
	r := m.registry
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CommandDef, 0, len(r.commands))
	for _, regs := range r.commands {
		if w, ok := namedWinner(regs); ok {
			out = append(out, w.def)
		}
	}
	return out
}

func (m *Manager) RegisteredShortcuts() []ShortcutDef {
	r := m.registry
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ShortcutDef, 0, len(r.shortcuts))
	for _, regs := range r.shortcuts {
		if w, ok := namedWinner(regs); ok {
			out = append(out, w.def)
		}
	}
	return out
}

func (m *Manager) RegisteredProviders() []ProviderDef {
	r := m.registry
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProviderDef, 0, len(r.providers))
	for _, regs := range r.providers {
		if w, ok := namedWinner(regs); ok {
			out = append(out, w.def)
		}
	}
	return out
}

// ShadowCount reports how many registrations for name in the tool namespace
// were shadowed by the first-wins policy. Used for diagnostics.
func (m *Manager) ShadowCount(toolName string) int {
	r := m.registry
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.tools[toolName])
	if n == 0 {
		return 0
	}
	return n - 1
}

// dispatchResult carries a handler's outcome back to the dispatch loop.
type dispatchResult struct {
	result Result
	err    error
}

// DispatchEvent invokes every registered hook for event in load order,
// returning ok if all complete within timeout, otherwise a timeout error
// naming the budget. A hook raising (panicking) is logged and does not
// cancel sibling hooks; the first error encountered is retained.
func (m *Manager) DispatchEvent(ctx context.Context, event Event, payload Context, timeout time.Duration) error {
	_, err := m.dispatch(ctx, event, payload, timeout, false)
	return err
}

// DispatchEventWithResponse is DispatchEvent plus the first non-nil handler
// result.
func (m *Manager) DispatchEventWithResponse(ctx context.Context, event Event, payload Context, timeout time.Duration) (Result, error) {
	return m.dispatch(ctx, event, payload, timeout, true)
}

// Emit is a convenience wrapper used by tool-call interception sites that
// don't need a caller-supplied timeout or context; it applies a generous
// default budget.
func (m *Manager) Emit(event Event) (Result, error) {
	return m.DispatchEventWithResponse(context.Background(), event, m.context(), 5*time.Second)
}

func (m *Manager) dispatch(ctx context.Context, event Event, payload Context, timeout time.Duration, wantResponse bool) (Result, error) {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return nil, errors.New("extension manager is shutting down")
	}
	m.inflight.Add(1)
	m.mu.Unlock()
	defer m.inflight.Done()

	r := m.registry
	r.mu.RLock()
	hooks := append([]eventHookRegistration(nil), r.eventHooks[event.Type()]...)
	r.mu.RUnlock()

	done := make(chan dispatchResult, 1)
	go func() {
		var accumulated Result
		var firstErr error
		for _, h := range hooks {
			result, err := safeCall(h.handler, event, payload)
			if err != nil {
				log.Warn("extension handler error", "extension", h.extensionID, "event", event.Type(), "err", err)
				if firstErr == nil {
					firstErr = fmt.Errorf("extension %s: %w", h.extensionID, err)
				}
				continue
			}
			if result == nil {
				continue
			}
			if isBlocking(result) {
				done <- dispatchResult{result: result, err: firstErr}
				return
			}
			if accumulated == nil {
				accumulated = result
			}
		}
		done <- dispatchResult{result: accumulated, err: firstErr}
	}()

	select {
	case dr := <-done:
		if wantResponse {
			return dr.result, dr.err
		}
		return nil, dr.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w: event %s exceeded %s", ErrDispatchTimeout, event.Type(), timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ExecuteCommand looks up the owning extension for name and invokes it
// through the sandbox runtime.
func (m *Manager) ExecuteCommand(ctx context.Context, name, args string, cctx Context, timeout time.Duration) (string, error) {
	r := m.registry
	r.mu.RLock()
	regs := r.commands[name]
	r.mu.RUnlock()
	w, ok := namedWinner(regs)
	if !ok {
		return "", fmt.Errorf("no command registered: %s", name)
	}
	return runWithTimeout(ctx, timeout, func() (string, error) {
		return w.def.Execute(args, cctx)
	})
}

// ExecuteShortcut is analogous to ExecuteCommand for shortcut chords.
func (m *Manager) ExecuteShortcut(ctx context.Context, chord string, cctx Context, timeout time.Duration) (string, error) {
	r := m.registry
	r.mu.RLock()
	regs := r.shortcuts[chord]
	r.mu.RUnlock()
	w, ok := namedWinner(regs)
	if !ok {
		return "", fmt.Errorf("no shortcut registered: %s", chord)
	}
	return runWithTimeout(ctx, timeout, func() (string, error) {
		return w.def.Execute(cctx)
	})
}

// ExecuteTool looks up the owning extension's tool and invokes it with the
// given JSON-encoded input.
func (m *Manager) ExecuteTool(ctx context.Context, name, input string, timeout time.Duration) (string, error) {
	r := m.registry
	r.mu.RLock()
	regs := r.tools[name]
	r.mu.RUnlock()
	w, ok := namedWinner(regs)
	if !ok {
		return "", fmt.Errorf("no tool registered: %s", name)
	}
	return runWithTimeout(ctx, timeout, func() (string, error) {
		return w.def.Execute(input)
	})
}

func runWithTimeout(ctx context.Context, timeout time.Duration, fn func() (string, error)) (string, error) {
	type out struct {
		s   string
		err error
	}
	done := make(chan out, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- out{err: fmt.Errorf("extension panicked: %v", rec)}
			}
		}()
		s, err := fn()
		done <- out{s: s, err: err}
	}()
	select {
	case o := <-done:
		return o.s, o.err
	case <-time.After(timeout):
		return "", fmt.Errorf("%w: exceeded %s", ErrDispatchTimeout, timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Shutdown instructs the manager to stop accepting new calls and drain
// outstanding invocations up to budget. Returns true iff quiescence was
// reached within budget.
func (m *Manager) Shutdown(budget time.Duration) bool {
	m.mu.Lock()
	m.draining = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(budget):
		return false
	}
}

// safeCall invokes a handler, recovering from panics.
func safeCall(handler HandlerFunc, event Event, ctx Context) (result Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("extension panicked: %v", rec)
		}
	}()
	return handler(event, ctx), nil
}

// isBlocking returns true if the result should short-circuit further handlers.
func isBlocking(result Result) bool {
	switch r := result.(type) {
	case ToolCallResult:
		return r.Block
	case InputResult:
		return r.Action == "handled"
	}
	return false
}
