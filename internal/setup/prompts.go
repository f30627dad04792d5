// Package setup writes a starter fwrelease.yaml, asking the operator for the
// few values that have no sensible default.
package setup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"fwrelease/internal/config"
	"fwrelease/internal/security"
	"fwrelease/pkg/fileutil"
)

// Answers are the values collected from the operator.
type Answers struct {
	Product     string
	SketchDir   string
	ReleaseRoot string
	To          []string
	Cc          []string
	Transport   string
	Repo        string
}

// DefaultAnswers are used for anything left blank, and for everything when
// stdin is not a terminal.
func DefaultAnswers() Answers {
	return Answers{
		Product:     config.DefaultProduct,
		SketchDir:   ".",
		ReleaseRoot: config.DefaultReleaseRoot,
		Transport:   config.DefaultTransport,
	}
}

// Prompter asks questions on out and reads answers from in.
type Prompter struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewPrompter creates a prompter.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{reader: bufio.NewReader(in), out: out}
}

// Ask fills a with the operator's answers, keeping a's values as defaults.
func (p *Prompter) Ask(a *Answers) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Product name used in archive names, mail subjects and notes")
	fmt.Fprintln(p.out, "Example: AIO9")
	a.Product = p.readValue("Enter product name", a.Product)

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Sketch directory holding the .ino sketch and globals.h")
	a.SketchDir = p.readValue("Enter sketch directory", a.SketchDir)

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Where release bundles and archives are written")
	fmt.Fprintln(p.out, "Relative paths are resolved against the sketch directory")
	a.ReleaseRoot = p.readValue("Enter release root", a.ReleaseRoot)

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Release email recipients, comma separated")
	fmt.Fprintln(p.out, "Example: production@example.com, qa@example.com")
	a.To = SplitList(p.readValue("Enter recipients", strings.Join(a.To, ", ")))
	a.Cc = SplitList(p.readValue("Enter CC (or leave empty)", strings.Join(a.Cc, ", ")))

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Mail transport: client (desktop mail draft), sendmail or smtp")
	for {
		a.Transport = p.readValue("Enter transport", a.Transport)
		if config.Transports[a.Transport] {
			break
		}
		fmt.Fprintf(p.out, "Unknown transport %q\n", a.Transport)
		a.Transport = config.DefaultTransport
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "GitHub repository (owner/repo) for 'fwrelease publish'")
	fmt.Fprintln(p.out, "Leave empty to skip GitHub releases")
	for {
		a.Repo = p.readValue("Enter owner/repo (or leave empty)", a.Repo)
		if a.Repo == "" || security.ValidateRepo(a.Repo) == nil {
			break
		}
		fmt.Fprintf(p.out, "Invalid repository %q\n", a.Repo)
		a.Repo = ""
	}
}

// readValue prompts for input with an optional default
func (p *Prompter) readValue(prompt, defaultValue string) string {
	if defaultValue != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", prompt, defaultValue)
	} else {
		fmt.Fprintf(p.out, "%s: ", prompt)
	}

	input, err := p.reader.ReadString('\n')
	if err != nil && input == "" {
		return defaultValue
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue
	}
	return input
}

// IsInteractive checks if stdin is a terminal
func IsInteractive() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Starter builds the config written by init. Paths stay relative so the
// file can be moved with the sketch.
func Starter(a Answers) *config.Config {
	return &config.Config{
		Product:   a.Product,
		SketchDir: a.SketchDir,
		Builds:    config.DefaultBuilds(),
		Release: config.ReleaseConfig{
			Root:          a.ReleaseRoot,
			ArchiveFormat: config.DefaultArchiveFormat,
		},
		Mail: config.MailConfig{
			Transport: a.Transport,
			To:        a.To,
			Cc:        a.Cc,
		},
		Publish: config.PublishConfig{Repo: a.Repo},
	}
}

// WriteConfig writes cfg to path with config file permissions. An existing
// file is only replaced when force is set.
func WriteConfig(path string, cfg *config.Config, force bool) error {
	if fileutil.PathExists(path) && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	header := "# fwrelease configuration. Relative paths resolve against sketch_dir,\n# which itself resolves against this file's directory.\n"
	return security.WritePrivateFile(path, append([]byte(header), data...), security.PermConfigFile)
}
