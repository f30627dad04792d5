package notify

import (
	"context"
	"fmt"

	"fwrelease/internal/config"
	"fwrelease/internal/console"
	"fwrelease/internal/security"
)

// Transport delivers a composed message.
type Transport interface {
	Name() string
	Deliver(ctx context.Context, msg *Message) error
}

// NewTransport returns the transport named by cfg.Transport.
func NewTransport(cfg config.MailConfig, exec *security.HelperRunner, out *console.Console) (Transport, error) {
	if out == nil {
		out = console.Discard()
	}

	switch cfg.Transport {
	case config.TransportClient:
		return &ClientTransport{ScratchDir: cfg.ScratchDir, Console: out}, nil
	case config.TransportSendmail:
		return &SendmailTransport{Command: cfg.SendmailCommand}, nil
	case config.TransportSMTP:
		return &SMTPTransport{
			Host:          cfg.SMTPHost,
			Port:          cfg.SMTPPort,
			Username:      cfg.Username,
			CredentialKey: cfg.CredentialKey,
			Exec:          exec,
			Prompt:        PromptPassword,
		}, nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
}
