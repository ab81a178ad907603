package commandstructure

import (
	"testing"
)

func passthroughFactory(name string) CommandFactory {
	return func(params map[string]any) (Command, error) {
		return newMockCommand(name), nil
	}
}

func TestNewCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()
	if registry == nil {
		t.Fatal("Expected non-nil registry")
	}
	if registry.factories == nil {
		t.Fatal("Expected non-nil factories map")
	}
}

func TestCommandRegistry_Register(t *testing.T) {
	registry := NewCommandRegistry()

	// Test successful registration
	if err := registry.Register("TestCommand", passthroughFactory("TestCommand")); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	// Test duplicate registration
	if err := registry.Register("TestCommand", passthroughFactory("TestCommand")); err == nil {
		t.Error("Expected error for duplicate registration")
	}

	// Test empty name
	if err := registry.Register("", passthroughFactory("")); err == nil {
		t.Error("Expected error for empty name")
	}

	// Test nil factory
	if err := registry.Register("NilFactory", nil); err == nil {
		t.Error("Expected error for nil factory")
	}
}

func TestCommandRegistry_Create(t *testing.T) {
	registry := NewCommandRegistry()
	if err := registry.Register("TestCommand", passthroughFactory("TestCommand")); err != nil {
		t.Fatalf("Failed to register command: %v", err)
	}

	command, err := registry.Create("TestCommand", nil)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if command == nil {
		t.Fatal("Expected non-nil command")
	}
	if command.Name() != "TestCommand" {
		t.Errorf("Expected command name 'TestCommand', got '%s'", command.Name())
	}

	if _, err = registry.Create("UnknownCommand", nil); err == nil {
		t.Error("Expected error for unknown command")
	}
}

func TestCommandRegistry_GetRegisteredNames(t *testing.T) {
	registry := NewCommandRegistry()

	if names := registry.GetRegisteredNames(); len(names) != 0 {
		t.Errorf("Expected 0 registered names, got %d", len(names))
	}

	for _, name := range []string{"Command2", "Command1"} {
		if err := registry.Register(name, passthroughFactory(name)); err != nil {
			t.Fatalf("Failed to register %s: %v", name, err)
		}
	}

	names := registry.GetRegisteredNames()
	if len(names) != 2 || names[0] != "Command1" || names[1] != "Command2" {
		t.Errorf("Expected sorted [Command1 Command2], got %v", names)
	}
	if !registry.IsRegistered("Command1") {
		t.Error("Expected Command1 to be registered")
	}
	if registry.IsRegistered("UnknownCommand") {
		t.Error("Expected UnknownCommand to not be registered")
	}
}
