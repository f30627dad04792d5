// Package firmware reads and patches the firmware configuration header.
//
// The header is a tracked project file that every build mutates, so all
// writes go through a Guard that can put the original bytes back.
package firmware

import (
	"fmt"
	"os"
	"regexp"
)

// UnknownVersion is reported when the header declares no version.
const UnknownVersion = "UNKNOWN"

// Schema names the declarations recognised in the header.
type Schema struct {
	ModeName       string
	IdentifierName string
	IdentifierSize int
	DebugName      string
	VersionName    string
}

// DefaultSchema matches the stock globals.h layout.
func DefaultSchema() Schema {
	return Schema{
		ModeName:       "SYSTEM",
		IdentifierName: "UNIT",
		IdentifierSize: 15,
		DebugName:      "DEBUG",
		VersionName:    "FIRMWARE_VERSION",
	}
}

// Params is one build's worth of header values.
type Params struct {
	Mode       int
	Identifier string
	Debug      bool
}

func (s Schema) modePattern() *regexp.Regexp {
	return regexp.MustCompile(`#define[ \t]+` + regexp.QuoteMeta(s.ModeName) + `[ \t]+\d+`)
}

func (s Schema) identifierPattern() *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`char[ \t]+%s\[%d\][ \t]*=[ \t]*"[^"\n]*"`,
		regexp.QuoteMeta(s.IdentifierName), s.IdentifierSize))
}

func (s Schema) debugPattern() *regexp.Regexp {
	return regexp.MustCompile(`#define[ \t]+` + regexp.QuoteMeta(s.DebugName) + `[ \t]+\d+`)
}

func (s Schema) versionPattern() *regexp.Regexp {
	return regexp.MustCompile(`#define[ \t]+` + regexp.QuoteMeta(s.VersionName) + `[ \t]+"([^"]+)"`)
}

// Render returns pristine with the mode, identifier and debug declarations
// replaced by p. Replacement text is literal. The second return value lists
// the declarations that were not found; their lines are left untouched.
func (s Schema) Render(pristine []byte, p Params) ([]byte, []string) {
	debug := 0
	if p.Debug {
		debug = 1
	}

	subs := []struct {
		name string
		re   *regexp.Regexp
		repl string
	}{
		{s.ModeName, s.modePattern(), fmt.Sprintf("#define %s %d", s.ModeName, p.Mode)},
		{s.IdentifierName, s.identifierPattern(), fmt.Sprintf(`char %s[%d] = "%s"`, s.IdentifierName, s.IdentifierSize, p.Identifier)},
		{s.DebugName, s.debugPattern(), fmt.Sprintf("#define %s %d", s.DebugName, debug)},
	}

	var missing []string
	out := pristine
	for _, sub := range subs {
		if !sub.re.Match(out) {
			missing = append(missing, sub.name)
			continue
		}
		out = sub.re.ReplaceAllLiteral(out, []byte(sub.repl))
	}
	return out, missing
}

// Version extracts the declared firmware version, or UnknownVersion.
func (s Schema) Version(content []byte) string {
	m := s.versionPattern().FindSubmatch(content)
	if m == nil {
		return UnknownVersion
	}
	return string(m[1])
}

// ReadVersion reads the header at path and extracts its version.
func (s Schema) ReadVersion(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read configuration source: %w", err)
	}
	return s.Version(content), nil
}
