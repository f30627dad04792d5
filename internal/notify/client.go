package notify

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"fwrelease/internal/console"
	"fwrelease/internal/security"
	"fwrelease/pkg/cmdutil"
)

// mailtoPreview is the body placed in the mailto link; the full body is
// too long for a URL and is pasted from the body file instead.
const mailtoPreview = "Release package attached. See full details in email body file."

const openerTimeout = 30 * time.Second

// ClientTransport prepares a draft in the desktop mail client. Attachments
// cannot travel through a mailto link, so the operator attaches them by hand.
type ClientTransport struct {
	ScratchDir string
	Opener     []string // defaults to open or xdg-open
	Console    *console.Console

	// set by Deliver
	BodyFile        string
	AttachmentsFile string
}

func (t *ClientTransport) Name() string { return "client" }

// Deliver writes the body and attachment list to the scratch dir and opens
// a mailto link. A failure to open the client is returned after the files
// are written, so the operator can still send by hand.
func (t *ClientTransport) Deliver(ctx context.Context, msg *Message) error {
	out := t.Console
	if out == nil {
		out = console.Discard()
	}

	t.BodyFile = filepath.Join(t.ScratchDir, fmt.Sprintf("release_email_v%s_body.txt", msg.Version))
	t.AttachmentsFile = filepath.Join(t.ScratchDir, fmt.Sprintf("release_email_v%s_attachments.txt", msg.Version))

	if err := writeScratch(t.BodyFile, msg.Body); err != nil {
		return err
	}
	var list strings.Builder
	for _, a := range msg.Attachments {
		fmt.Fprintf(&list, "%s: %s\n", a.Name, a.Path)
	}
	if err := writeScratch(t.AttachmentsFile, list.String()); err != nil {
		return err
	}
	out.Success("Email draft prepared")

	t.printManualSteps(out, msg)

	opener := t.Opener
	if len(opener) == 0 {
		opener = defaultOpener()
	}
	cmd := append(append([]string{}, opener...), MailtoURL(msg))
	if _, err := cmdutil.RunWithTimeout(ctx, "", openerTimeout, cmd); err != nil {
		out.Warn("Could not open mail client: %v", err)
		out.Printf("\nEmail details saved to:\n   Body: %s\n   Attachments: %s\n", t.BodyFile, t.AttachmentsFile)
		return fmt.Errorf("failed to open mail client: %w", err)
	}

	out.Success("Mail client opened with pre-filled email")
	out.Warn("Remember to:")
	n := 1
	for _, a := range msg.Attachments {
		out.Printf("   %d. Attach: %s\n", n, filepath.Base(a.Path))
		n++
	}
	out.Printf("   %d. Replace body with content from: %s\n", n, t.BodyFile)
	return nil
}

func (t *ClientTransport) printManualSteps(out *console.Console, msg *Message) {
	rule := console.Rule("=", 60)
	out.Printf("\n%s\nMANUAL STEP REQUIRED\n%s\n", rule, rule)
	out.Printf("\nPlease send the email manually:\n\n")
	out.Printf("1. Create new email with:\n")
	out.Printf("   To: %s\n", strings.Join(msg.To, ", "))
	out.Printf("   CC: %s\n", strings.Join(msg.Cc, ", "))
	out.Printf("   Subject: %s\n", msg.Subject)
	out.Printf("\n2. Attach files:\n")
	for _, a := range msg.Attachments {
		out.Printf("   - %s\n", a.Path)
	}
	out.Printf("\n3. Copy email body from:\n   %s\n", t.BodyFile)
	out.Printf("\n4. Send the email\n\n%s\n", rule)
}

// MailtoURL builds the mailto link for msg: every recipient, the subject and
// a short preview body, percent-encoded.
func MailtoURL(msg *Message) string {
	return fmt.Sprintf("mailto:%s?subject=%s&body=%s",
		strings.Join(msg.Recipients(), ","),
		mailtoEscape(msg.Subject),
		mailtoEscape(mailtoPreview))
}

func mailtoEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func defaultOpener() []string {
	if runtime.GOOS == "darwin" {
		return []string{"open"}
	}
	return []string{"xdg-open"}
}

func writeScratch(path, content string) error {
	return security.WritePrivateFile(path, []byte(content), security.PermScratchFile)
}
