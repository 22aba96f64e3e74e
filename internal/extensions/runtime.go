package extensions

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dop251/goja"
)

// ErrTranspileFailed is returned when a .ts/.tsx extension fails ahead-of-
// execution type erasure and cannot be executed.
type ErrTranspileFailed struct {
	Path   string
	Reason string
}

func (e *ErrTranspileFailed) Error() string {
	return fmt.Sprintf("transpile failed for %s: %s", e.Path, e.Reason)
}

// job is a unit of work handed to the runtime's single owning goroutine. The
// JS interpreter is not safe for concurrent use, so every interaction with
// vm runs serialized on runtime.loop.
type job struct {
	fn   func(vm *goja.Runtime) (any, error)
	resp chan jobResult
}

type jobResult struct {
	val any
	err error
}

// Runtime is the Sandbox JS Runtime (R): one goja interpreter per process,
// owned exclusively by a single goroutine, with no ambient IO capability
// beyond what the host object exposes.
type Runtime struct {
	jobs   chan job
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

// NewRuntime starts the interpreter's owning goroutine and returns a handle.
func NewRuntime() *Runtime {
	rt := &Runtime{
		jobs: make(chan job, 16),
		done: make(chan struct{}),
	}
	rt.wg.Add(1)
	go rt.loop()
	return rt
}

func (r *Runtime) loop() {
	defer r.wg.Done()
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	installGlobals(vm)

	for {
		select {
		case j := <-r.jobs:
			val, err := j.fn(vm)
			j.resp <- jobResult{val: val, err: err}
		case <-r.done:
			return
		}
	}
}

// exec schedules fn to run on the interpreter goroutine and blocks until it
// completes or ctx is cancelled.
func (r *Runtime) exec(ctx context.Context, fn func(vm *goja.Runtime) (any, error)) (any, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("runtime is shut down")
	}
	r.mu.Unlock()

	j := job{fn: fn, resp: make(chan jobResult, 1)}
	select {
	case r.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-j.resp:
		return res.val, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops accepting new jobs and terminates the interpreter
// goroutine. Outstanding jobs already handed to the loop are allowed to
// finish; budget bounds the wait.
func (r *Runtime) Shutdown(budget time.Duration) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return true
	}
	r.closed = true
	r.mu.Unlock()

	close(r.done)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(budget):
		return false
	}
}

// LoadExtension reads, (if needed) transpiles, and evaluates the extension
// at spec.EntryPath, then invokes its initializer with a host object bound
// to the registry collector. It returns the RegistrationPayload the
// initializer produced.
func (r *Runtime) LoadExtension(ctx context.Context, spec ExtensionLoadSpec) (RegistrationPayload, error) {
	src, err := os.ReadFile(spec.EntryPath)
	if err != nil {
		return RegistrationPayload{}, fmt.Errorf("reading extension %s: %w", spec.ExtensionID, err)
	}

	isTS := isTypeScriptPath(spec.EntryPath)
	js, err := Transpile(string(src), isTS)
	if err != nil {
		return RegistrationPayload{}, &ErrTranspileFailed{Path: spec.EntryPath, Reason: err.Error()}
	}

	result, err := r.exec(ctx, func(vm *goja.Runtime) (any, error) {
		return r.evaluateExtension(vm, spec, js)
	})
	if err != nil {
		return RegistrationPayload{}, err
	}
	payload, _ := result.(RegistrationPayload)
	return payload, nil
}

// evaluateExtension runs inside the interpreter goroutine. It wraps the
// transpiled source in a CommonJS module shim (the virtual module resolver
// is hand-rolled, not a generic Node shim: unknown specifiers are refused),
// extracts the default export, and calls it with the host API object.
func (r *Runtime) evaluateExtension(vm *goja.Runtime, spec ExtensionLoadSpec, js string) (RegistrationPayload, error) {
	collector := newRegistrationCollector(spec)

	requireFn := func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		mod, err := resolveVirtualModule(vm, specifier)
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return mod
	}

	moduleObj := vm.NewObject()
	exportsObj := vm.NewObject()
	_ = moduleObj.Set("exports", exportsObj)

	wrapped := "(function(module, exports, require) {\n" + js + "\n})"
	program, err := goja.Compile(spec.EntryPath, wrapped, false)
	if err != nil {
		return RegistrationPayload{}, fmt.Errorf("compiling extension %s: %w", spec.ExtensionID, err)
	}

	wrapperFn, err := vm.RunProgram(program)
	if err != nil {
		return RegistrationPayload{}, fmt.Errorf("evaluating extension %s: %w", spec.ExtensionID, err)
	}
	callable, ok := goja.AssertFunction(wrapperFn)
	if !ok {
		return RegistrationPayload{}, fmt.Errorf("extension %s did not produce a callable module wrapper", spec.ExtensionID)
	}
	if _, err := callable(goja.Undefined(), moduleObj, exportsObj, vm.ToValue(requireFn)); err != nil {
		return RegistrationPayload{}, fmt.Errorf("extension %s threw during load: %w", spec.ExtensionID, err)
	}

	exportsVal := moduleObj.Get("exports")
	var initializer goja.Callable
	if exportsVal != nil && !goja.IsUndefined(exportsVal) {
		if fn, ok := goja.AssertFunction(exportsVal); ok {
			initializer = fn
		} else if obj := exportsVal.ToObject(vm); obj != nil {
			if def := obj.Get("default"); def != nil {
				if fn, ok := goja.AssertFunction(def); ok {
					initializer = fn
				}
			}
		}
	}
	if initializer == nil {
		return RegistrationPayload{}, fmt.Errorf("extension %s has no default export initializer", spec.ExtensionID)
	}

	host := buildHostObject(vm, collector)
	if _, err := initializer(goja.Undefined(), vm.ToValue(host)); err != nil {
		return RegistrationPayload{}, fmt.Errorf("extension %s initializer failed: %w", spec.ExtensionID, err)
	}

	// The runtime has no real timers or IO, so any promise an initializer
	// creates settles synchronously during the call above; there is no
	// separate microtask drain step.

	return collector.payload, nil
}

func isTypeScriptPath(path string) bool {
	for _, suf := range []string{".ts", ".tsx"} {
		if len(path) >= len(suf) && path[len(path)-len(suf):] == suf {
			return true
		}
	}
	return false
}

func installGlobals(vm *goja.Runtime) {
	vm.Set("Bun", buildBunGlobal(vm))
	vm.Set("console", buildConsoleGlobal(vm))
	// No process, no require at the global scope, no eval of arbitrary
	// strings across extension boundaries: the host object handed to each
	// initializer is the only ambient capability.
}

func buildConsoleGlobal(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.Export()
		}
		log.Debug("extension console", "args", args)
		return goja.Undefined()
	}
	_ = obj.Set("log", logFn)
	_ = obj.Set("error", logFn)
	_ = obj.Set("warn", logFn)
	_ = obj.Set("info", logFn)
	return obj
}
