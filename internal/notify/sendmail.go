package notify

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"fwrelease/pkg/cmdutil"
)

// SendmailTransport pipes the MIME message to a local MTA.
type SendmailTransport struct {
	Command string // shell-quoted, e.g. "sendmail -t -oi"
}

func (t *SendmailTransport) Name() string { return "sendmail" }

// Deliver writes the message to the MTA's stdin. The MTA reads recipients
// from the headers.
func (t *SendmailTransport) Deliver(ctx context.Context, msg *Message) error {
	parts, err := cmdutil.ParseCommandString(t.Command)
	if err != nil {
		return fmt.Errorf("invalid sendmail command: %w", err)
	}

	m, err := buildMIME(msg)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{Stdin: &buf}, parts)
	if err != nil {
		return fmt.Errorf("sendmail failed: %w: %s", err, strings.TrimSpace(string(result.Output)))
	}
	return nil
}
