package agent

import "testing"

func TestToolRegistry(t *testing.T) {
	registry := NewToolRegistry()

	if _, ok := registry.Get("read"); ok {
		t.Fatal("empty registry returned a tool")
	}

	registry.Register(&fakeTool{name: "read"})
	registry.Register(&fakeTool{name: "write"})
	registry.Register(&fakeTool{name: "bash"})

	if tool, ok := registry.Get("write"); !ok || tool.Name() != "write" {
		t.Errorf("Get(write) = %v, %v", tool, ok)
	}

	// AsLLMTools preserves registration order so the prompt is stable.
	tools := registry.AsLLMTools()
	if len(tools) != 3 {
		t.Fatalf("AsLLMTools = %d tools", len(tools))
	}
	for i, want := range []string{"read", "write", "bash"} {
		if tools[i].Name() != want {
			t.Errorf("tool %d = %s, want %s", i, tools[i].Name(), want)
		}
	}

	registry.Unregister("write")
	if _, ok := registry.Get("write"); ok {
		t.Error("unregistered tool still present")
	}
	if got := len(registry.AsLLMTools()); got != 2 {
		t.Errorf("AsLLMTools after unregister = %d", got)
	}
}

func TestToolRegistryReplace(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&fakeTool{name: "read", schema: `{"type":"object"}`})
	replacement := &fakeTool{name: "read", schema: `{"type":"object","properties":{}}`}
	registry.Register(replacement)

	tool, ok := registry.Get("read")
	if !ok {
		t.Fatal("tool missing after replace")
	}
	if string(tool.Schema()) != string(replacement.Schema()) {
		t.Error("replacement did not take effect")
	}
	if got := len(registry.AsLLMTools()); got != 1 {
		t.Errorf("duplicate registration inflated the list: %d", got)
	}
}
