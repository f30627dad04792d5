package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"fwrelease/internal/security"
)

// ConfigFileName is the file looked up on the default search paths.
const ConfigFileName = "fwrelease.yaml"

const (
	DefaultProduct          = "AIO9"
	DefaultSourceFile       = "globals.h"
	DefaultIdentifierSize   = 15
	DefaultToolchainCommand = "arduino-cli"
	DefaultFQBN             = "esp32:esp32:esp32:PartitionScheme=custom"
	DefaultPartitions       = "partitions.csv"
	DefaultArtifactPattern  = "*.ino.bin"
	DefaultOutputDir        = "builds"
	DefaultSharedBuildDir   = "build/all_configs_shared"
	DefaultReleaseRoot      = "release"
	DefaultSupportDir       = "flash_files"
	DefaultArchiveFormat    = "zip"
	DefaultNotesDir         = "releases"
	DefaultChangelog        = "CHANGELOG.md"
	DefaultTransport        = "client"
	DefaultSubject          = "{{PRODUCT}} Firmware Release v{{VERSION}} - {{SUMMARY}}"
	DefaultSMTPHost         = "smtp.gmail.com"
	DefaultSMTPPort         = 587
	DefaultSendmailCommand  = "sendmail -t -oi"
	DefaultCredentialKey    = "fwrelease-smtp"
	DefaultFallbackSender   = "noreply@spatika.com"
	DefaultFallbackName     = "AIO Release Bot"
	DefaultHistoryDB        = "fwrelease.db"
	DefaultServerHost       = "127.0.0.1"
	DefaultServerPort       = 8090
	DefaultRateLimit        = 10.0
	DefaultRateBurst        = 20
)

// Mail transports
const (
	TransportClient   = "client"
	TransportSendmail = "sendmail"
	TransportSMTP     = "smtp"
)

// Transports accepted in mail.transport.
var Transports = map[string]bool{
	TransportClient:   true,
	TransportSendmail: true,
	TransportSMTP:     true,
}

// ArchiveFormats accepted in release.archive_format.
var ArchiveFormats = map[string]bool{
	"zip":    true,
	"tar.xz": true,
}

// Config is the root of fwrelease.yaml.
type Config struct {
	Product        string          `yaml:"product,omitempty"`
	SketchDir      string          `yaml:"sketch_dir,omitempty"`
	OutputDir      string          `yaml:"output_dir,omitempty"`
	SharedBuildDir string          `yaml:"shared_build_dir,omitempty"`
	HistoryDB      string          `yaml:"history_db,omitempty"`
	Source         SourceConfig    `yaml:"source,omitempty"`
	Toolchain      ToolchainConfig `yaml:"toolchain,omitempty"`
	Builds         []BuildConfig   `yaml:"builds,omitempty"`
	Release        ReleaseConfig   `yaml:"release,omitempty"`
	Notes          NotesConfig     `yaml:"notes,omitempty"`
	Mail           MailConfig      `yaml:"mail,omitempty"`
	Publish        PublishConfig   `yaml:"publish,omitempty"`
	Server         ServerConfig    `yaml:"server,omitempty"`

	// path the config was loaded from, empty for defaults
	path string
}

// SourceConfig names the configuration header and the declarations patched in it.
type SourceConfig struct {
	File           string `yaml:"file,omitempty"`
	BackupPath     string `yaml:"backup_path,omitempty"`
	ModeName       string `yaml:"mode_name,omitempty"`
	IdentifierName string `yaml:"identifier_name,omitempty"`
	IdentifierSize int    `yaml:"identifier_size,omitempty"`
	DebugName      string `yaml:"debug_name,omitempty"`
	VersionName    string `yaml:"version_name,omitempty"`
}

// ToolchainConfig describes the external compiler invocation.
type ToolchainConfig struct {
	Command         string `yaml:"command,omitempty"`
	FQBN            string `yaml:"fqbn,omitempty"`
	Partitions      string `yaml:"partitions,omitempty"`
	ExtraArgs       string `yaml:"extra_args,omitempty"`
	ArtifactPattern string `yaml:"artifact_pattern,omitempty"`
	Timeout         int    `yaml:"timeout,omitempty"` // seconds, 0 means none
}

// BuildConfig is one (mode, identifier, output) tuple.
type BuildConfig struct {
	Mode        int    `yaml:"mode,omitempty"`
	Identifier  string `yaml:"identifier,omitempty"`
	Output      string `yaml:"output,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Label returns "OUTPUT (Description)" or just the output name.
func (b BuildConfig) Label() string {
	if b.Description == "" {
		return b.Output
	}
	return fmt.Sprintf("%s (%s)", b.Output, b.Description)
}

type ReleaseConfig struct {
	Root          string `yaml:"root,omitempty"`
	ArchivePrefix string `yaml:"archive_prefix,omitempty"`
	ArchiveFormat string `yaml:"archive_format,omitempty"`
	SupportDir    string `yaml:"support_dir,omitempty"`
}

type NotesConfig struct {
	Dir       string   `yaml:"dir,omitempty"`
	Docs      []string `yaml:"docs,omitempty"`
	Changelog string   `yaml:"changelog,omitempty"`
}

type MailConfig struct {
	Transport       string   `yaml:"transport,omitempty"`
	To              []string `yaml:"to,omitempty"`
	Cc              []string `yaml:"cc,omitempty"`
	Subject         string   `yaml:"subject,omitempty"`
	FallbackSender  string   `yaml:"fallback_sender,omitempty"`
	FallbackName    string   `yaml:"fallback_name,omitempty"`
	SMTPHost        string   `yaml:"smtp_host,omitempty"`
	SMTPPort        int      `yaml:"smtp_port,omitempty"`
	Username        string   `yaml:"username,omitempty"`
	CredentialKey   string   `yaml:"credential_key,omitempty"`
	SendmailCommand string   `yaml:"sendmail_command,omitempty"`
	ScratchDir      string   `yaml:"scratch_dir,omitempty"`
}

type PublishConfig struct {
	Repo  string `yaml:"repo,omitempty"` // owner/name
	Token string `yaml:"token,omitempty"`
}

type ServerConfig struct {
	Host      string  `yaml:"host,omitempty"`
	Port      int     `yaml:"port,omitempty"`
	RateLimit float64 `yaml:"rate_limit,omitempty"`
	RateBurst int     `yaml:"rate_burst,omitempty"`
}

// DefaultBuilds is the configuration list used when the file names none.
func DefaultBuilds() []BuildConfig {
	return []BuildConfig{
		{Mode: 0, Identifier: "KSNDMC_TRG", Output: "KSNDMC_TRG", Description: "Rain Gauge"},
		{Mode: 0, Identifier: "BIHAR_TRG", Output: "BIHAR_TRG", Description: "Bihar Rain Gauge"},
		{Mode: 0, Identifier: "SPATIKA_GEN", Output: "SPATIKA_TRG", Description: "Spatika Rain Gauge"},
		{Mode: 1, Identifier: "KSNDMC_TWS", Output: "KSNDMC_TWS", Description: "Weather Station"},
		{Mode: 2, Identifier: "KSNDMC_ADDON", Output: "KSNDMC_ADDON", Description: "Add-on Config"},
		{Mode: 2, Identifier: "SPATIKA_GEN", Output: "SPATIKA_ADDON", Description: "Spatika Add-on"},
	}
}

// DefaultDocs are the documents scanned for change markers.
func DefaultDocs() []string {
	return []string{
		"FINAL_FIXES_COMPLETE.md",
		"CRITICAL_FIXES_IMPLEMENTED.md",
		"COMPREHENSIVE_PROJECT_REVIEW.md",
	}
}

// Default returns a config with every default applied, rooted at sketchDir.
func Default(sketchDir string) *Config {
	cfg := &Config{SketchDir: sketchDir}
	cfg.applyDefaults()
	return cfg
}

// Load reads, defaults and validates a config file. Relative paths in the
// file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	cfg.path = path

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config directory: %w", err)
	}
	if cfg.SketchDir == "" {
		cfg.SketchDir = base
	} else if !filepath.IsAbs(cfg.SketchDir) {
		cfg.SketchDir = filepath.Join(base, cfg.SketchDir)
	}

	cfg.applyDefaults()

	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration in %s:\n%s", path, strings.Join(problems, "\n"))
	}

	return &cfg, nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

func (c *Config) applyDefaults() {
	if c.Product == "" {
		c.Product = DefaultProduct
	}
	if c.SketchDir == "" {
		c.SketchDir = "."
	}
	c.OutputDir = c.resolve(c.OutputDir, DefaultOutputDir)
	c.SharedBuildDir = c.resolve(c.SharedBuildDir, DefaultSharedBuildDir)
	c.HistoryDB = c.resolve(c.HistoryDB, DefaultHistoryDB)

	s := &c.Source
	s.File = c.resolve(s.File, DefaultSourceFile)
	if s.BackupPath == "" {
		s.BackupPath = DefaultBackupPath(s.File)
	}
	if s.ModeName == "" {
		s.ModeName = "SYSTEM"
	}
	if s.IdentifierName == "" {
		s.IdentifierName = "UNIT"
	}
	if s.IdentifierSize == 0 {
		s.IdentifierSize = DefaultIdentifierSize
	}
	if s.DebugName == "" {
		s.DebugName = "DEBUG"
	}
	if s.VersionName == "" {
		s.VersionName = "FIRMWARE_VERSION"
	}

	tc := &c.Toolchain
	if tc.Command == "" {
		tc.Command = DefaultToolchainCommand
	}
	if tc.FQBN == "" {
		tc.FQBN = DefaultFQBN
	}
	tc.Partitions = c.resolve(tc.Partitions, DefaultPartitions)
	if tc.ArtifactPattern == "" {
		tc.ArtifactPattern = DefaultArtifactPattern
	}

	if len(c.Builds) == 0 {
		c.Builds = DefaultBuilds()
	}

	r := &c.Release
	r.Root = c.resolve(r.Root, DefaultReleaseRoot)
	if r.ArchivePrefix == "" {
		r.ArchivePrefix = c.Product
	}
	if r.ArchiveFormat == "" {
		r.ArchiveFormat = DefaultArchiveFormat
	}
	r.SupportDir = c.resolve(r.SupportDir, DefaultSupportDir)

	n := &c.Notes
	n.Dir = c.resolve(n.Dir, DefaultNotesDir)
	if n.Docs == nil {
		n.Docs = DefaultDocs()
	}
	n.Changelog = c.resolve(n.Changelog, DefaultChangelog)

	m := &c.Mail
	if m.Transport == "" {
		m.Transport = DefaultTransport
	}
	if m.Subject == "" {
		m.Subject = DefaultSubject
	}
	if m.FallbackSender == "" {
		m.FallbackSender = DefaultFallbackSender
	}
	if m.FallbackName == "" {
		m.FallbackName = DefaultFallbackName
	}
	if m.SMTPHost == "" {
		m.SMTPHost = DefaultSMTPHost
	}
	if m.SMTPPort == 0 {
		m.SMTPPort = DefaultSMTPPort
	}
	if m.CredentialKey == "" {
		m.CredentialKey = DefaultCredentialKey
	}
	if m.SendmailCommand == "" {
		m.SendmailCommand = DefaultSendmailCommand
	}
	if m.ScratchDir == "" {
		m.ScratchDir = os.TempDir()
	}

	sv := &c.Server
	if sv.Host == "" {
		sv.Host = DefaultServerHost
	}
	if sv.Port == 0 {
		sv.Port = DefaultServerPort
	}
	if sv.RateLimit == 0 {
		sv.RateLimit = DefaultRateLimit
	}
	if sv.RateBurst == 0 {
		sv.RateBurst = DefaultRateBurst
	}
}

// DefaultBackupPath returns the scratch copy path for the header at source.
// The name carries a hash of the absolute path so sketches with the same
// header name never share a backup.
func DefaultBackupPath(source string) string {
	abs, err := filepath.Abs(source)
	if err != nil {
		abs = source
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s.%x.backup", filepath.Base(source), sum[:6]))
}

// resolve applies a default and anchors relative paths at the sketch dir.
func (c *Config) resolve(value, def string) string {
	if value == "" {
		value = def
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(c.SketchDir, value)
}

// Validate returns one line per problem found; empty means valid.
func (c *Config) Validate() []string {
	var problems []string

	if c.Source.IdentifierSize < 2 {
		problems = append(problems, fmt.Sprintf("  - source.identifier_size must be at least 2, got %d", c.Source.IdentifierSize))
	}
	if c.Toolchain.Timeout < 0 {
		problems = append(problems, fmt.Sprintf("  - toolchain.timeout must be a positive integer, got %d", c.Toolchain.Timeout))
	}

	seen := make(map[string]int)
	for i, b := range c.Builds {
		if err := security.ValidateOutputName(b.Output); err != nil {
			problems = append(problems, fmt.Sprintf("  - builds[%d]: %v", i, err))
		}
		if prev, dup := seen[b.Output]; dup {
			problems = append(problems, fmt.Sprintf("  - builds[%d]: output '%s' already used by builds[%d]", i, b.Output, prev))
		}
		seen[b.Output] = i

		if b.Mode < 0 {
			problems = append(problems, fmt.Sprintf("  - builds[%d]: mode must be non-negative, got %d", i, b.Mode))
		}
		if err := ValidateIdentifier(b.Identifier, c.Source.IdentifierSize); err != nil {
			problems = append(problems, fmt.Sprintf("  - builds[%d]: %v", i, err))
		}
	}

	if !ArchiveFormats[c.Release.ArchiveFormat] {
		problems = append(problems, fmt.Sprintf("  - release.archive_format must be zip or tar.xz, got '%s'", c.Release.ArchiveFormat))
	}
	if !Transports[c.Mail.Transport] {
		problems = append(problems, fmt.Sprintf("  - mail.transport must be client, sendmail or smtp, got '%s'", c.Mail.Transport))
	}
	if c.Mail.SMTPPort < 0 || c.Mail.SMTPPort > 65535 {
		problems = append(problems, fmt.Sprintf("  - mail.smtp_port out of range: %d", c.Mail.SMTPPort))
	}
	if c.Publish.Repo != "" {
		if parts := strings.Split(c.Publish.Repo, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			problems = append(problems, fmt.Sprintf("  - publish.repo must be owner/name, got '%s'", c.Publish.Repo))
		}
	}

	return problems
}

// ValidateIdentifier checks that id fits a C char buffer of the given size
// (terminator included) and cannot break out of the string literal.
func ValidateIdentifier(id string, size int) error {
	if id == "" {
		return errors.New("identifier is empty")
	}
	if len(id) >= size {
		return fmt.Errorf("identifier '%s' is %d bytes, buffer holds %d including terminator", id, len(id), size)
	}
	if strings.ContainsAny(id, "\"\\\n\r") {
		return fmt.Errorf("identifier '%s' contains quote, backslash or newline", id)
	}
	return nil
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
