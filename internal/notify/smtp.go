package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/wneessen/go-mail"
	"golang.org/x/term"

	"fwrelease/internal/security"
)

// ErrNoPassword is returned when no SMTP password could be obtained.
var ErrNoPassword = errors.New("no SMTP password available")

// SMTPTransport submits over SMTP with STARTTLS and PLAIN auth.
type SMTPTransport struct {
	Host          string
	Port          int
	Username      string
	CredentialKey string
	Exec          *security.HelperRunner
	Prompt        func(user, host string) (string, error)

	// Password skips the credential store when set.
	Password string
}

func (t *SMTPTransport) Name() string { return "smtp" }

// Deliver authenticates and sends msg.
func (t *SMTPTransport) Deliver(ctx context.Context, msg *Message) error {
	user := t.Username
	if user == "" {
		user = msg.FromAddress
	}

	password, err := t.password(ctx, user)
	if err != nil {
		return err
	}

	m, err := buildMIME(msg)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(t.Host,
		mail.WithPort(t.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(user),
		mail.WithPassword(password),
	)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send via %s:%d: %w", t.Host, t.Port, err)
	}
	return nil
}

// password looks in the OS credential store first, then asks the operator.
func (t *SMTPTransport) password(ctx context.Context, user string) (string, error) {
	if t.Password != "" {
		return t.Password, nil
	}
	if t.Exec != nil {
		if pw, err := t.Exec.Output(ctx, CredentialLookup(runtime.GOOS, t.CredentialKey, user)...); err == nil && pw != "" {
			return pw, nil
		}
	}
	if t.Prompt == nil {
		return "", ErrNoPassword
	}
	return t.Prompt(user, t.Host)
}

// CredentialLookup returns the command that prints the stored password for
// user under key: the keychain on macOS, libsecret elsewhere.
func CredentialLookup(goos, key, user string) []string {
	if goos == "darwin" {
		return []string{"security", "find-generic-password", "-s", key, "-a", user, "-w"}
	}
	return []string{"secret-tool", "lookup", "service", key, "account", user}
}

// PromptPassword reads a password from the terminal without echo.
func PromptPassword(user, host string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%w: stdin is not a terminal", ErrNoPassword)
	}
	fmt.Fprintf(os.Stderr, "SMTP password for %s@%s: ", user, host)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(pw) == 0 {
		return "", ErrNoPassword
	}
	return string(pw), nil
}
