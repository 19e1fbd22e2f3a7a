package app

import (
	"strings"
	"testing"
)

func TestParseCommand_DefaultsToServe(t *testing.T) {
	cmd, err := ParseCommand([]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd != CommandServe {
		t.Errorf("ParseCommand([]) = %q, want %q", cmd, CommandServe)
	}
}

func TestParseCommand_KnownCommands(t *testing.T) {
	tests := []struct {
		arg  string
		want Command
	}{
		{"serve", CommandServe},
		{"worker", CommandWorker},
		{"migrate", CommandMigrate},
		{"healthcheck", CommandHealthcheck},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			cmd, err := ParseCommand([]string{tt.arg})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cmd != tt.want {
				t.Errorf("ParseCommand([%s]) = %q, want %q", tt.arg, cmd, tt.want)
			}
		})
	}
}

func TestParseCommand_UnknownReturnsUsage(t *testing.T) {
	_, err := ParseCommand([]string{"fetch"})
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), `"fetch"`) {
		t.Errorf("error should name the command: %v", err)
	}
	if !strings.Contains(err.Error(), "usage: sexta") {
		t.Errorf("error should include usage: %v", err)
	}
}

func TestParseCommand_IgnoresExtraArgs(t *testing.T) {
	cmd, err := ParseCommand([]string{"worker", "--verbose"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd != CommandWorker {
		t.Errorf("ParseCommand([worker --verbose]) = %q, want %q", cmd, CommandWorker)
	}
}

func TestUsage_ListsAllCommands(t *testing.T) {
	usage := Usage()
	for _, c := range []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck} {
		if !strings.Contains(usage, string(c)) {
			t.Errorf("Usage() should list %q:\n%s", c, usage)
		}
	}
}
