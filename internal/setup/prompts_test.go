package setup

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"fwrelease/internal/config"
	"fwrelease/internal/security"
)

func TestAsk(t *testing.T) {
	input := strings.Join([]string{
		"",                                  // product keeps default
		"firmware/aio9",                     // sketch dir
		"",                                  // release root
		"prod@example.com, , qa@example.com", // recipients
		"",                                  // cc
		"carrier-pigeon",                    // rejected transport
		"sendmail",                          // transport
		"not a repo",                        // rejected repo
		"spatika/aio9",                      // repo
	}, "\n") + "\n"

	var out bytes.Buffer
	a := DefaultAnswers()
	NewPrompter(strings.NewReader(input), &out).Ask(&a)

	want := Answers{
		Product:     config.DefaultProduct,
		SketchDir:   "firmware/aio9",
		ReleaseRoot: config.DefaultReleaseRoot,
		To:          []string{"prod@example.com", "qa@example.com"},
		Transport:   config.TransportSendmail,
		Repo:        "spatika/aio9",
	}
	if !reflect.DeepEqual(a, want) {
		t.Errorf("Ask() = %+v, want %+v", a, want)
	}
	if !strings.Contains(out.String(), `Unknown transport "carrier-pigeon"`) {
		t.Error("bad transport should be reported")
	}
	if !strings.Contains(out.String(), `Invalid repository "not a repo"`) {
		t.Error("bad repository should be reported")
	}
}

func TestAsk_EOFKeepsDefaults(t *testing.T) {
	a := DefaultAnswers()
	NewPrompter(strings.NewReader(""), &bytes.Buffer{}).Ask(&a)

	if !reflect.DeepEqual(a, DefaultAnswers()) {
		t.Errorf("Ask() on empty input = %+v", a)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{" , ", nil},
		{"a@example.com", []string{"a@example.com"}},
		{"a@example.com,b@example.com ", []string{"a@example.com", "b@example.com"}},
	}
	for _, tt := range tests {
		if got := SplitList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWriteConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.ConfigFileName)

	a := DefaultAnswers()
	a.To = []string{"prod@example.com"}
	a.Repo = "spatika/aio9"
	if err := WriteConfig(path, Starter(a), false); err != nil {
		t.Fatalf("WriteConfig() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != security.PermConfigFile {
		t.Errorf("mode = %o, want %o", info.Mode().Perm(), security.PermConfigFile)
	}

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), dir) {
		t.Error("starter config should not contain absolute paths")
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if len(cfg.Builds) != len(config.DefaultBuilds()) {
		t.Errorf("Builds = %d entries", len(cfg.Builds))
	}
	if cfg.Publish.Repo != "spatika/aio9" || cfg.Mail.To[0] != "prod@example.com" {
		t.Errorf("answers not carried into config: %+v %+v", cfg.Publish, cfg.Mail)
	}
	if cfg.Release.Root != filepath.Join(dir, config.DefaultReleaseRoot) {
		t.Errorf("Release.Root = %s", cfg.Release.Root)
	}

	if err := WriteConfig(path, Starter(a), false); err == nil {
		t.Error("existing config must not be overwritten without force")
	}
	if err := WriteConfig(path, Starter(a), true); err != nil {
		t.Errorf("WriteConfig(force) error = %v", err)
	}
}
