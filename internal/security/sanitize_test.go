package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateRepo(t *testing.T) {
	tests := []struct {
		name    string
		repo    string
		wantErr bool
	}{
		{"simple", "spatika/aio9-firmware", false},
		{"with underscores", "my_org/my_repo", false},
		{"with dots in repo", "org/repo.name", false},

		{"empty", "", true},
		{"missing owner", "/repo", true},
		{"missing repo", "owner/", true},
		{"no slash", "repo", true},
		{"extra segment", "owner/repo/extra", true},
		{"traversal", "owner/..", true},
		{"command injection", "owner/repo; rm -rf /", true},
		{"url", "https://github.com/owner/repo", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRepo(tt.repo)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRepo() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantErr bool
	}{
		{"plain", "5.37", false},
		{"with v", "v5.37", false},
		{"semver pre-release", "1.2.3-rc1", false},
		{"build metadata", "1.2.3+abc", false},
		{"sentinel", "UNKNOWN", false},

		{"empty", "", true},
		{"starts with dash", "-5.37", true},
		{"starts with dot", ".5", true},
		{"slash", "5/37", true},
		{"traversal", "5..37", true},
		{"space", "5 37", true},
		{"newline", "5.37\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVersion(tt.version)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateVersion() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateOutputName(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		wantErr bool
	}{
		{"upper snake", "KSNDMC_TRG", false},
		{"with dash", "spatika-addon", false},
		{"with numbers", "AIO9", false},

		{"empty name", "", true},
		{"starts with dash", "-out", true},
		{"starts with dot", ".out", true},
		{"with slash", "out/put", true},
		{"with space", "out put", true},
		{"command injection", "out; rm -rf /", true},
		{"path traversal", "../etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputName(tt.output)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOutputName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWithinDir(t *testing.T) {
	root := t.TempDir()
	releases := filepath.Join(root, "releases")
	bundle := filepath.Join(releases, "AIO9_v5.37")
	elsewhere := filepath.Join(root, "elsewhere")
	dotted := filepath.Join(releases, "..hidden")
	for _, d := range []string{bundle, elsewhere, dotted} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	escape := filepath.Join(releases, "escape")
	if err := os.Symlink(elsewhere, escape); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		target  string
		wantErr bool
	}{
		{"bundle below root", bundle, false},
		{"root itself", releases, false},
		{"name starting with dots", dotted, false},
		{"sibling directory", elsewhere, true},
		{"dot-dot path", filepath.Join(releases, "..", "elsewhere"), true},
		{"symlink leaving root", escape, true},
		{"missing target", filepath.Join(releases, "missing"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := WithinDir(releases, tt.target)
			if (err != nil) != tt.wantErr {
				t.Errorf("WithinDir() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func BenchmarkValidateOutputName(b *testing.B) {
	name := "KSNDMC_ADDON"
	for i := 0; i < b.N; i++ {
		_ = ValidateOutputName(name)
	}
}
