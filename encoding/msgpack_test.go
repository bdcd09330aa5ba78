package encoding

import (
	"sync"
	"testing"
)

type heartbeat struct {
	Node  string `msgpack:"node"`
	Ticks uint64 `msgpack:"ticks"`
}

func TestMarshal_Basic(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{"string", "hello world"},
		{"int", 12345},
		{"float64", 3.14159},
		{"bool", true},
		{"slice", []int{1, 2, 3}},
		{"map", map[string]any{"subject": "system", "size": 3}},
		{"struct", heartbeat{Node: "n1", Ticks: 7}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Marshal(tc.input)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if len(data) == 0 {
				t.Error("Expected non-empty result")
			}
		})
	}
}

func TestMarshal_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				data, err := Marshal(map[string]any{"worker": id, "n": j})
				if err != nil {
					t.Errorf("Marshal failed: %v", err)
					return
				}
				if len(data) == 0 {
					t.Error("Expected non-empty result")
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestUnmarshal_Struct(t *testing.T) {
	data, err := Marshal(heartbeat{Node: "n1", Ticks: 42})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var got heartbeat
	if err := Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.Node != "n1" || got.Ticks != 42 {
		t.Errorf("got %+v", got)
	}
}

func TestUnmarshal_LooseInterface(t *testing.T) {
	data, err := Marshal(map[string]any{
		"text":  "saved",
		"bin":   []byte{0xDE, 0xAD},
		"count": int64(3),
	})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var result any
	if err := Unmarshal(data, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("Expected map[string]any, got %T", result)
	}
	if v, ok := m["text"].(string); !ok || v != "saved" {
		t.Errorf("text: got %T %v", m["text"], m["text"])
	}
	if _, ok := m["bin"].(string); !ok {
		t.Errorf("bin: got %T, want string", m["bin"])
	}
	if v, ok := m["count"].(int64); !ok || v != 3 {
		t.Errorf("count: got %T %v", m["count"], m["count"])
	}
}
