package security

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"os/exec"
	"slices"
	"strings"
	"time"
)

// helperTimeout bounds a single helper lookup. Keyring prompts that wait
// for user input would otherwise stall a release.
const helperTimeout = 15 * time.Second

// DefaultHelpers are the programs consulted for sender identity and SMTP
// credentials.
var DefaultHelpers = map[string]bool{
	"git":         true, // sender identity
	"security":    true, // macOS keychain
	"secret-tool": true, // libsecret keyring
}

// HelperRunner runs allowlisted helper programs directly, never through a
// shell, and returns what they print.
type HelperRunner struct {
	Allowed map[string]bool
	WorkDir string
	Env     []string
}

// NewHelperRunner returns a runner allowing DefaultHelpers.
func NewHelperRunner(workDir string) *HelperRunner {
	return &HelperRunner{Allowed: maps.Clone(DefaultHelpers), WorkDir: workDir}
}

// Check rejects empty commands, programs outside the allowlist and
// arguments carrying shell metacharacters.
func (h *HelperRunner) Check(argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command")
	}
	if !h.Allowed[argv[0]] {
		return fmt.Errorf("helper %q not allowed (allowed: %s)", argv[0], strings.Join(slices.Sorted(maps.Keys(h.Allowed)), ", "))
	}
	for i, arg := range argv[1:] {
		if strings.ContainsAny(arg, shellMetachars) {
			return fmt.Errorf("argument %d of %s contains shell metacharacters: %q", i+1, argv[0], arg)
		}
	}
	return nil
}

const shellMetachars = ";|&$`\n><(){}*?[]\\'\""

// Output runs argv and returns its trimmed stdout. Stderr is kept out of the
// result so that warnings never end up in a looked-up secret.
func (h *HelperRunner) Output(ctx context.Context, argv ...string) (string, error) {
	if err := h.Check(argv); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, helperTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = h.WorkDir
	cmd.Env = h.Env
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", argv[0], err, msg)
		}
		return "", fmt.Errorf("%s: %w", argv[0], err)
	}
	return strings.TrimSpace(string(out)), nil
}
