package commandstructure

import (
	"errors"
	"testing"
)

func TestCommandInvoker_EmptyCommandList(t *testing.T) {
	invoker := NewCommandInvoker([]Command{})
	testData := []byte("test data")
	result, err := invoker.Execute(testData)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if string(result) != string(testData) {
		t.Error("Expected result to match input for empty command list")
	}
}

func TestCommandInvoker_ExecutesInOrder(t *testing.T) {
	invoker := NewCommandInvoker([]Command{
		newSuffixCommand("first", "-a"),
		newSuffixCommand("second", "-b"),
		newMockCommand("passthrough"),
	})

	result, err := invoker.Execute([]byte("x"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(result) != "x-a-b" {
		t.Errorf("Expected 'x-a-b', got '%s'", string(result))
	}
}

func TestCommandInvoker_StopsOnError(t *testing.T) {
	sentinel := errors.New("boom")
	called := false
	invoker := NewCommandInvoker([]Command{
		newMockCommandWithError("failing", sentinel),
		&mockCommand{name: "after", executeFunc: func(b []byte) ([]byte, error) {
			called = true
			return b, nil
		}},
	})

	_, err := invoker.Execute([]byte("x"))
	if !errors.Is(err, sentinel) {
		t.Fatalf("Expected wrapped sentinel error, got %v", err)
	}
	if called {
		t.Error("Expected pipeline to stop after the failing command")
	}
}

func TestNewCommandInvokerFromConfig(t *testing.T) {
	registry := NewCommandRegistry()
	err := registry.Register("TestCommand", func(params map[string]any) (Command, error) {
		if err := ValidateRequiredParams(params, []string{"suffix"}); err != nil {
			return nil, err
		}
		return newSuffixCommand("TestCommand", GetStringParam(params, "suffix", "")), nil
	})
	if err != nil {
		t.Fatalf("Failed to register test command: %v", err)
	}

	tests := []struct {
		name    string
		configs []CommandConfig
		wantErr bool
		want    string
	}{
		{
			name:    "empty pipeline",
			configs: nil,
			want:    "in",
		},
		{
			name: "configured command",
			configs: []CommandConfig{
				{Name: "TestCommand", Params: map[string]any{"suffix": "!"}},
			},
			want: "in!",
		},
		{
			name: "unknown command",
			configs: []CommandConfig{
				{Name: "UnknownCommand", Params: map[string]any{}},
			},
			wantErr: true,
		},
		{
			name: "missing parameter",
			configs: []CommandConfig{
				{Name: "TestCommand", Params: map[string]any{}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoker, err := NewCommandInvokerFromConfig(registry, tt.configs)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			got, err := invoker.Execute([]byte("in"))
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Expected '%s', got '%s'", tt.want, string(got))
			}
			if len(invoker.Names()) != len(tt.configs) {
				t.Errorf("Expected %d names, got %d", len(tt.configs), len(invoker.Names()))
			}
		})
	}
}
