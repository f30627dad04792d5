// Package console prints operator-facing progress lines.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/gookit/color"
	"golang.org/x/term"
)

const ruleWidth = 50

// Console writes progress lines, colored when the writer is a terminal.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// New returns a console writing to out. Colors are turned off unless out
// is a terminal.
func New(out io.Writer) *Console {
	if f, ok := out.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		color.Enable = false
	}
	return &Console{out: out}
}

// Stdout returns a console on os.Stdout.
func Stdout() *Console {
	return New(os.Stdout)
}

// Discard returns a console that prints nothing.
func Discard() *Console {
	return &Console{out: io.Discard}
}

func (c *Console) write(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, s)
}

// Rule returns a horizontal rule of width characters.
func Rule(ch string, width int) string {
	return strings.Repeat(ch, width)
}

// Header prints text framed by rules.
func (c *Console) Header(text string) {
	rule := Rule("=", ruleWidth)
	c.write(fmt.Sprintf("\n%s\n  %s\n%s\n\n", rule, text, rule))
}

// Step announces an action about to happen.
func (c *Console) Step(format string, args ...any) {
	c.write(color.Warn.Sprint("→ "+fmt.Sprintf(format, args...)) + "\n")
}

// Success prints a completed action.
func (c *Console) Success(format string, args ...any) {
	c.write(color.Success.Sprint("✓ "+fmt.Sprintf(format, args...)) + "\n")
}

// Error prints a failed action.
func (c *Console) Error(format string, args ...any) {
	c.write(color.Danger.Sprint("✗ "+fmt.Sprintf(format, args...)) + "\n")
}

// Warn prints a non-fatal problem.
func (c *Console) Warn(format string, args ...any) {
	c.write(color.Warn.Sprint("⚠ "+fmt.Sprintf(format, args...)) + "\n")
}

// Printf prints uncolored text.
func (c *Console) Printf(format string, args ...any) {
	c.write(fmt.Sprintf(format, args...))
}

// Check prints msg padded to a column followed by [OK] or [FAIL].
func (c *Console) Check(msg string, ok bool) {
	if ok {
		c.write(fmt.Sprintf("%-70s%s\n", msg, color.Green.Sprint("[OK]")))
		return
	}
	c.write(fmt.Sprintf("%-70s%s\n", msg, color.Red.Sprint("[FAIL]")))
}

// CheckWarn prints msg padded to a column followed by [WARN].
func (c *Console) CheckWarn(msg string) {
	c.write(fmt.Sprintf("%-70s%s\n", msg, color.Yellow.Sprint("[WARN]")))
}

// Tally prints "label: n" in green when good, red otherwise.
func (c *Console) Tally(label string, n int, good bool) {
	line := fmt.Sprintf("%s: %d", label, n)
	if good {
		c.write(color.Green.Sprint(line) + "\n")
		return
	}
	c.write(color.Red.Sprint(line) + "\n")
}
