package security

import (
	"context"
	"strings"
	"testing"
)

func TestHelperRunner_Check(t *testing.T) {
	h := NewHelperRunner(t.TempDir())

	tests := []struct {
		name    string
		argv    []string
		wantErr string
	}{
		{"git identity", []string{"git", "config", "user.email"}, ""},
		{"keychain lookup", []string{"security", "find-generic-password", "-s", "fwrelease-smtp", "-a", "fw@example.com", "-w"}, ""},
		{"keyring lookup", []string{"secret-tool", "lookup", "service", "fwrelease-smtp"}, ""},
		{"empty", nil, "empty command"},
		{"not allowed", []string{"curl", "https://example.com"}, "not allowed"},
		{"shell", []string{"sh", "-c", "whoami"}, "not allowed"},
		{"semicolon", []string{"git", "config; rm -rf /"}, "metacharacters"},
		{"substitution", []string{"secret-tool", "lookup", "$(whoami)"}, "metacharacters"},
		{"quotes", []string{"git", "config", "'user.email'"}, "metacharacters"},
		{"newline", []string{"security", "find\nrm"}, "metacharacters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Check(tt.argv)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Check() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Check() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewHelperRunner_CopiesDefaults(t *testing.T) {
	h := NewHelperRunner("")
	h.Allowed["pass"] = true

	if err := h.Check([]string{"pass", "show", "smtp"}); err != nil {
		t.Errorf("Check() error = %v", err)
	}
	if DefaultHelpers["pass"] {
		t.Error("changing a runner's allowlist must not change DefaultHelpers")
	}
}

func TestHelperRunner_Output(t *testing.T) {
	h := &HelperRunner{WorkDir: t.TempDir(), Allowed: map[string]bool{"echo": true}}
	got, err := h.Output(context.Background(), "echo", "  fw@example.com  ")
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if got != "fw@example.com" {
		t.Errorf("Output() = %q, want trimmed stdout", got)
	}
}

func TestHelperRunner_OutputFailure(t *testing.T) {
	h := &HelperRunner{Allowed: map[string]bool{"false": true, "sleep": true}}

	if _, err := h.Output(context.Background(), "false"); err == nil {
		t.Error("Output() should fail when the helper exits non-zero")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Output(ctx, "sleep", "5"); err == nil {
		t.Error("Output() should fail with a cancelled context")
	}
}
