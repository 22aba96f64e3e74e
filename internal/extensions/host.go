package extensions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dop251/goja"
)

// defaultHandlerTimeout bounds a single call to an extension-supplied tool
// execute function invoked from Go. Command and event handler calls are
// bounded by the Manager's own timeouts instead. Registration itself is
// synchronous and unbounded.
const defaultHandlerTimeout = 30 * time.Second

// registrationCollector accumulates calls made against the host object
// during one extension's initializer invocation into a RegistrationPayload.
// Registration order within the initializer is preserved because each
// pi.register* call appends in the order it executes (spec §5: "within one
// extension, registration calls are applied in source order").
type registrationCollector struct {
	spec    ExtensionLoadSpec
	payload RegistrationPayload
}

func newRegistrationCollector(spec ExtensionLoadSpec) *registrationCollector {
	return &registrationCollector{
		spec: spec,
		payload: RegistrationPayload{
			ExtensionID: spec.ExtensionID,
			Version:     spec.Version,
			APIVersion:  spec.APIVersion,
			EventHooks:  make(map[EventType][]HandlerFunc),
		},
	}
}

// buildHostObject constructs the narrow capability-gated host object (named
// "pi" by convention in extension source) handed to an extension's default
// export. Every method that mutates the registry forwards into collector;
// nothing here grants ambient IO - print/sendMessage route through Context
// supplied at dispatch time, not at load time.
func buildHostObject(vm *goja.Runtime, collector *registrationCollector) *goja.Object {
	host := vm.NewObject()

	_ = host.Set("registerCommand", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		var opts struct {
			Description string `json:"description"`
		}
		decodeArg(vm, call.Argument(1), &opts)
		fn, _ := goja.AssertFunction(call.Argument(1))
		if fn == nil {
			// second positional may be an options object with an "execute" field
			if obj := call.Argument(1).ToObject(vm); obj != nil {
				if execVal := obj.Get("execute"); execVal != nil {
					fn, _ = goja.AssertFunction(execVal)
				}
				if d := obj.Get("description"); d != nil {
					opts.Description = d.String()
				}
			}
		}
		collector.payload.SlashCommands = append(collector.payload.SlashCommands, CommandDef{
			Name:        name,
			Description: opts.Description,
			Execute:     wrapCommandCallable(vm, fn),
		})
		return goja.Undefined()
	})

	_ = host.Set("registerTool", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		obj := call.Argument(1).ToObject(vm)
		def := ToolDef{Name: name}
		if obj != nil {
			if d := obj.Get("description"); d != nil {
				def.Description = d.String()
			}
			if p := obj.Get("parameters"); p != nil {
				var params map[string]any
				decodeValue(vm, p, &params)
				def.Parameters = params
			}
			if execVal := obj.Get("execute"); execVal != nil {
				if fn, ok := goja.AssertFunction(execVal); ok {
					def.Execute = wrapToolCallable(vm, fn)
				}
			}
		}
		collector.payload.Tools = append(collector.payload.Tools, def)
		return goja.Undefined()
	})

	_ = host.Set("registerShortcut", func(call goja.FunctionCall) goja.Value {
		chord := call.Argument(0).String()
		obj := call.Argument(1).ToObject(vm)
		def := ShortcutDef{Chord: chord}
		if obj != nil {
			if d := obj.Get("description"); d != nil {
				def.Description = d.String()
			}
			if execVal := obj.Get("execute"); execVal != nil {
				if fn, ok := goja.AssertFunction(execVal); ok {
					def.Execute = wrapShortcutCallable(vm, fn)
				}
			}
		}
		collector.payload.Shortcuts = append(collector.payload.Shortcuts, def)
		return goja.Undefined()
	})

	_ = host.Set("registerFlag", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		var def FlagDef
		def.Name = name
		if obj := call.Argument(1).ToObject(vm); obj != nil {
			if t := obj.Get("type"); t != nil {
				def.Type = t.String()
			}
			if d := obj.Get("description"); d != nil {
				def.Description = d.String()
			}
			if dv := obj.Get("default"); dv != nil {
				def.Default = dv.Export()
			}
		}
		collector.payload.Flags = append(collector.payload.Flags, def)
		return goja.Undefined()
	})

	_ = host.Set("registerProvider", func(call goja.FunctionCall) goja.Value {
		var def ProviderDef
		decodeArg(vm, call.Argument(0), &def)
		collector.payload.ProviderDefs = append(collector.payload.ProviderDefs, def)
		return goja.Undefined()
	})

	onEvent := func(call goja.FunctionCall) goja.Value {
		eventName := call.Argument(0).String()
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			return goja.Undefined()
		}
		et := EventType(eventName)
		collector.payload.EventHooks[et] = append(collector.payload.EventHooks[et], wrapEventHandler(vm, et, fn))
		return goja.Undefined()
	}
	_ = host.Set("on", onEvent)
	_ = host.Set("events", onEvent)

	return host
}

func decodeArg(vm *goja.Runtime, v goja.Value, out any) {
	decodeValue(vm, v, out)
}

func decodeValue(vm *goja.Runtime, v goja.Value, out any) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return
	}
	raw, err := v.ToObject(vm).MarshalJSON()
	if err != nil {
		return
	}
	_ = json.Unmarshal(raw, out)
}

// wrapToolCallable adapts a JS execute(args, ctx) function into the Go
// ToolDef.Execute signature, round-tripping the tool input/output as JSON
// text across the sandbox boundary.
func wrapToolCallable(vm *goja.Runtime, fn goja.Callable) func(string) (string, error) {
	return func(input string) (string, error) {
		var args any
		_ = json.Unmarshal([]byte(input), &args)
		ctx, cancel := context.WithTimeout(context.Background(), defaultHandlerTimeout)
		defer cancel()
		resultCh := make(chan jobResult, 1)
		go func() {
			v, err := fn(goja.Undefined(), vm.ToValue(args))
			if err != nil {
				resultCh <- jobResult{err: err}
				return
			}
			resultCh <- jobResult{val: exportToJSON(v)}
		}()
		select {
		case r := <-resultCh:
			if r.err != nil {
				return "", r.err
			}
			s, _ := r.val.(string)
			return s, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func wrapCommandCallable(vm *goja.Runtime, fn goja.Callable) func(string, Context) (string, error) {
	return func(args string, cctx Context) (string, error) {
		if fn == nil {
			return "", nil
		}
		v, err := fn(goja.Undefined(), vm.ToValue(args), vm.ToValue(contextToMap(cctx)))
		if err != nil {
			return "", err
		}
		return v.String(), nil
	}
}

func wrapShortcutCallable(vm *goja.Runtime, fn goja.Callable) func(Context) (string, error) {
	return func(cctx Context) (string, error) {
		if fn == nil {
			return "", nil
		}
		v, err := fn(goja.Undefined(), vm.ToValue(contextToMap(cctx)))
		if err != nil {
			return "", err
		}
		return v.String(), nil
	}
}

// wrapEventHandler adapts a JS event handler into a HandlerFunc. Results
// are decoded back into the typed Result matching the event's expected
// response shape; handlers that return nothing leave the event unmodified.
func wrapEventHandler(vm *goja.Runtime, et EventType, fn goja.Callable) HandlerFunc {
	return func(event Event, cctx Context) Result {
		eventVal := vm.ToValue(eventToMap(event))
		ctxVal := vm.ToValue(contextToMap(cctx))
		v, err := fn(goja.Undefined(), eventVal, ctxVal)
		if err != nil || v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return nil
		}
		return decodeResult(vm, et, v)
	}
}

func exportToJSON(v goja.Value) any {
	if v == nil {
		return ""
	}
	exported := v.Export()
	data, err := json.Marshal(exported)
	if err != nil {
		return ""
	}
	return string(data)
}

func eventToMap(event Event) map[string]any {
	data, _ := json.Marshal(event)
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	if m == nil {
		m = map[string]any{}
	}
	m["type"] = string(event.Type())
	return m
}

func contextToMap(cctx Context) map[string]any {
	return map[string]any{
		"sessionId":   cctx.SessionID,
		"cwd":         cctx.CWD,
		"model":       cctx.Model,
		"interactive": cctx.Interactive,
	}
}

func decodeResult(vm *goja.Runtime, et EventType, v goja.Value) Result {
	var raw map[string]any
	decodeValue(vm, v, &raw)
	if raw == nil {
		return nil
	}
	switch et {
	case ToolCall:
		block, _ := raw["block"].(bool)
		reason, _ := raw["reason"].(string)
		return ToolCallResult{Block: block, Reason: reason}
	case ToolResult:
		var res ToolResultResult
		if c, ok := raw["content"].(string); ok {
			res.Content = &c
		}
		if e, ok := raw["isError"].(bool); ok {
			res.IsError = &e
		}
		return res
	case Input:
		action, _ := raw["action"].(string)
		text, _ := raw["text"].(string)
		if action == "" {
			action = "continue"
		}
		return InputResult{Action: action, Text: text}
	case BeforeAgentStart:
		var res BeforeAgentStartResult
		if t, ok := raw["injectText"].(string); ok {
			res.InjectText = &t
		}
		if s, ok := raw["systemPrompt"].(string); ok {
			res.SystemPrompt = &s
		}
		return res
	default:
		return nil
	}
}
