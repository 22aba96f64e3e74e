package extensions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func payloadWithHook(id string, hook HandlerFunc) RegistrationPayload {
	return RegistrationPayload{
		ExtensionID: id,
		Tools: []ToolDef{{
			Name: id + "_tool",
			Execute: func(input string) (string, error) {
				return id, nil
			},
		}},
		EventHooks: map[EventType][]HandlerFunc{
			SessionStart: {hook},
		},
	}
}

// TestManager_ConcurrentRegistration exercises many extensions registering
// at once (spec §8 scenario 4): every tool/command namespace must end up
// with exactly one winner per name and the registry must not race or drop
// registrations under concurrent Register calls.
func TestManager_ConcurrentRegistration(t *testing.T) {
	mgr := NewManager(nil)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("ext-%02d", i)
			mgr.Register(RegistrationPayload{
				ExtensionID: id,
				Tools: []ToolDef{
					{Name: fmt.Sprintf("tool-%02d", i), Execute: func(string) (string, error) { return id, nil }},
					{Name: "shared-tool", Execute: func(string) (string, error) { return id, nil }},
				},
			})
		}()
	}
	wg.Wait()

	tools := mgr.RegisteredTools()
	// n distinct tools plus one winner for "shared-tool".
	if len(tools) != n+1 {
		t.Fatalf("expected %d registered tools, got %d", n+1, len(tools))
	}

	if got := mgr.ShadowCount("shared-tool"); got != n-1 {
		t.Errorf("ShadowCount(shared-tool) = %d, want %d", got, n-1)
	}
}

// TestManager_EventHookDispatchOrder verifies hooks fire in the order their
// owning extensions were registered — the load list's order of appearance,
// not any other tie-break.
func TestManager_EventHookDispatchOrder(t *testing.T) {
	mgr := NewManager(nil)

	var mu sync.Mutex
	var order []string
	recordingHook := func(id string) HandlerFunc {
		return func(event Event, ctx Context) Result {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}
	}

	ids := []string{"first", "second", "third"}
	for _, id := range ids {
		mgr.Register(payloadWithHook(id, recordingHook(id)))
	}

	err := mgr.DispatchEvent(context.Background(), SessionStartEvent{SessionID: "s1"}, Context{}, time.Second)
	if err != nil {
		t.Fatalf("DispatchEvent() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(ids) {
		t.Fatalf("order = %v, want %d entries", order, len(ids))
	}
	for i, id := range ids {
		if order[i] != id {
			t.Errorf("order[%d] = %q, want %q (load order: %v)", i, order[i], id, ids)
		}
	}
}

// TestManager_EventHookDispatchOrder_LaterLoadOrderRearranges confirms the
// ordering tracks load order, not registration content or name — loading
// the same extension ids in a different sequence flips the dispatch order.
func TestManager_EventHookDispatchOrder_LaterLoadOrderRearranges(t *testing.T) {
	mgr := NewManager(nil)

	var mu sync.Mutex
	var order []string
	recordingHook := func(id string) HandlerFunc {
		return func(event Event, ctx Context) Result {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}
	}

	loadOrder := []string{"zeta", "alpha", "mu"}
	for _, id := range loadOrder {
		mgr.Register(payloadWithHook(id, recordingHook(id)))
	}

	if err := mgr.DispatchEvent(context.Background(), SessionStartEvent{SessionID: "s1"}, Context{}, time.Second); err != nil {
		t.Fatalf("DispatchEvent() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, id := range loadOrder {
		if order[i] != id {
			t.Errorf("order[%d] = %q, want %q (alphabetical order must not win over load order)", i, order[i], id)
		}
	}
}

// TestManager_RejectsInvalidToolParameterSchema confirms a malformed
// pi.registerTool parameter schema does not shadow or win a tool name, while
// valid schemas and tools with no declared parameters register normally.
func TestManager_RejectsInvalidToolParameterSchema(t *testing.T) {
	mgr := NewManager(nil)

	mgr.Register(RegistrationPayload{
		ExtensionID: "bad-ext",
		Tools: []ToolDef{{
			Name: "broken",
			// "required" must be a list of property names; a bare string is
			// not a valid JSON Schema document and must fail to decode.
			Parameters: map[string]any{"type": "object", "required": "not-an-array"},
			Execute:    func(string) (string, error) { return "bad", nil },
		}},
	})
	mgr.Register(RegistrationPayload{
		ExtensionID: "good-ext",
		Tools: []ToolDef{
			{
				Name:       "well-formed",
				Parameters: map[string]any{"type": "object", "properties": map[string]any{"x": map[string]any{"type": "string"}}},
				Execute:    func(string) (string, error) { return "good", nil },
			},
			{Name: "no-params", Execute: func(string) (string, error) { return "no-params", nil }},
		},
	})

	tools := mgr.RegisteredTools()
	names := map[string]bool{}
	for _, tl := range tools {
		names[tl.Name] = true
	}
	if names["broken"] {
		t.Errorf("expected 'broken' tool with invalid schema to be rejected, registered tools: %v", names)
	}
	if !names["well-formed"] || !names["no-params"] {
		t.Errorf("expected valid tools to register, got: %v", names)
	}
}

// TestManager_FirstRegistrantWins confirms the named-winner policy: the
// first extension to register a given tool name is the one ExecuteTool
// actually calls, even once a later extension shadows the same name.
func TestManager_FirstRegistrantWins(t *testing.T) {
	mgr := NewManager(nil)

	mgr.Register(RegistrationPayload{
		ExtensionID: "ext-a",
		Tools: []ToolDef{{Name: "dup", Execute: func(string) (string, error) { return "a", nil }}},
	})
	mgr.Register(RegistrationPayload{
		ExtensionID: "ext-b",
		Tools: []ToolDef{{Name: "dup", Execute: func(string) (string, error) { return "b", nil }}},
	})

	got, err := mgr.ExecuteTool(context.Background(), "dup", "", time.Second)
	if err != nil {
		t.Fatalf("ExecuteTool() error = %v", err)
	}
	if got != "a" {
		t.Errorf("ExecuteTool(dup) = %q, want %q (first registrant wins)", got, "a")
	}
	if shadows := mgr.ShadowCount("dup"); shadows != 1 {
		t.Errorf("ShadowCount(dup) = %d, want 1", shadows)
	}
}
