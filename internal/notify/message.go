// Package notify composes the release announcement and hands it to one of
// the configured mail transports.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"fwrelease/internal/config"
	"fwrelease/internal/console"
	"fwrelease/internal/release"
	"fwrelease/internal/security"
	"fwrelease/pkg/fileutil"
	"fwrelease/pkg/templates"
)

// DefaultSummary is used when no summary is given on the command line.
const DefaultSummary = "New Release"

// ErrArchiveMissing is returned when the release archive to attach does not exist.
var ErrArchiveMissing = errors.New("release archive not found")

// Attachment is a file sent along with the message.
type Attachment struct {
	Path string
	Name string // name shown to the recipient
}

// Message is a composed release email.
type Message struct {
	Version     string
	FromName    string
	FromAddress string
	To          []string
	Cc          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// From returns the formatted sender.
func (m *Message) From() string {
	return fmt.Sprintf("%s <%s>", m.FromName, m.FromAddress)
}

// Recipients returns To followed by Cc.
func (m *Message) Recipients() []string {
	return append(slices.Clone(m.To), m.Cc...)
}

// Composer builds messages from the mail config.
type Composer struct {
	Mail           config.MailConfig
	Product        string
	Configurations []string // labels listed under package contents
	Exec           *security.HelperRunner
	Now            func() time.Time
}

// NewComposer creates a composer for cfg.
func NewComposer(cfg *config.Config) *Composer {
	labels := make([]string, 0, len(cfg.Builds))
	for _, b := range cfg.Builds {
		labels = append(labels, b.Label())
	}
	return &Composer{
		Mail:           cfg.Mail,
		Product:        cfg.Product,
		Configurations: labels,
		Exec:           security.NewHelperRunner(cfg.SketchDir),
	}
}

// Sender returns the git identity, or the configured fallback when either
// value cannot be read.
func (c *Composer) Sender(ctx context.Context) (name, address string) {
	if c.Exec != nil {
		email, emailErr := c.Exec.Output(ctx, "git", "config", "user.email")
		user, nameErr := c.Exec.Output(ctx, "git", "config", "user.name")
		if emailErr == nil && nameErr == nil && email != "" && user != "" {
			return user, email
		}
	}
	return c.Mail.FallbackName, c.Mail.FallbackSender
}

// Compose builds the message announcing version. The archive must exist;
// a missing notes file only changes the body.
func (c *Composer) Compose(ctx context.Context, version, archive, notesPath, summary string) (*Message, error) {
	if summary == "" {
		summary = DefaultSummary
	}
	if !fileutil.FileExists(archive) {
		return nil, fmt.Errorf("%w: %s", ErrArchiveMissing, archive)
	}

	bare := release.BareVersion(version)
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	msg := &Message{Version: bare}
	msg.FromName, msg.FromAddress = c.Sender(ctx)
	msg.To = slices.Clone(c.Mail.To)
	msg.Cc = slices.Clone(c.Mail.Cc)
	if !slices.Contains(msg.Cc, msg.FromAddress) {
		msg.Cc = append(msg.Cc, msg.FromAddress)
	}
	msg.Subject = templates.RenderString(c.Mail.Subject, templates.TemplateData{
		"PRODUCT": c.Product,
		"VERSION": bare,
		"SUMMARY": summary,
	})

	notesText := fmt.Sprintf("Release v%s\n\n%s", bare, summary)
	if data, err := os.ReadFile(notesPath); err == nil {
		notesText = StripMarkdown(string(data))
	}

	body, err := templates.Render(templates.EmailBody, map[string]any{
		"Version":        bare,
		"Date":           now().Format("January 02, 2006"),
		"Summary":        summary,
		"Rule":           console.Rule("=", 60),
		"Notes":          notesText,
		"Configurations": c.Configurations,
		"SenderName":     msg.FromName,
		"Product":        c.Product,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render email body: %w", err)
	}
	msg.Body = body

	msg.Attachments = append(msg.Attachments, Attachment{Path: archive, Name: filepath.Base(archive)})
	if fileutil.FileExists(notesPath) {
		msg.Attachments = append(msg.Attachments, Attachment{
			Path: notesPath,
			Name: fmt.Sprintf("RELEASE_NOTES_v%s.md", bare),
		})
	}

	return msg, nil
}

// StripMarkdown removes heading, bold and code markers for a plain text body.
func StripMarkdown(s string) string {
	return strings.NewReplacer("#", "", "**", "", "`", "").Replace(s)
}
