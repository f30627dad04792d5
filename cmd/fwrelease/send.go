package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"fwrelease/internal/console"
	"fwrelease/internal/notify"
	"fwrelease/internal/security"

	"github.com/spf13/cobra"
)

var sendTransport string

var sendCmd = &cobra.Command{
	Use:   "send VERSION ARCHIVE NOTES [SUMMARY]",
	Short: "Announce a release by email",
	Long: `Compose the release announcement and hand it to the configured mail transport.

Transports:
  client    open a draft in the desktop mail client (attachments added by hand)
  sendmail  pipe a MIME message to the local MTA
  smtp      send through an SMTP server with STARTTLS

The SMTP password is read from the OS credential store, falling back to a
prompt when stdin is a terminal.

Example:
  fwrelease send 5.37 release/AIO9_v5.37.zip release/v5.37/RELEASE_NOTES.md "Watchdog fixes"`,
	Args: cobra.RangeArgs(3, 4),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendTransport, "transport", getEnvOrDefault("FWRELEASE_MAIL_TRANSPORT", ""), "Override mail.transport (client, sendmail or smtp)")
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if sendTransport != "" {
		cfg.Mail.Transport = sendTransport
	}

	logger, logFileHandle, err := setupLogging(logFile, false)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	version, archive, notesPath := args[0], args[1], args[2]
	summary := notify.DefaultSummary
	if len(args) > 3 {
		summary = args[3]
	}
	if err := security.ValidateVersion(version); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := console.Stdout()
	exec := security.NewHelperRunner(cfg.SketchDir)

	msg, err := notify.NewComposer(cfg).Compose(ctx, version, archive, notesPath, summary)
	if err != nil {
		return err
	}

	out.Step("Preparing email...")
	out.Printf("   From: %s\n", msg.From())
	out.Printf("   To: %s\n", strings.Join(msg.To, ", "))
	out.Printf("   CC: %s\n", strings.Join(msg.Cc, ", "))
	out.Printf("   Subject: %s\n", msg.Subject)
	for _, a := range msg.Attachments {
		if info, err := os.Stat(a.Path); err == nil {
			out.Printf("   Attaching: %s (%.2f MB)\n", a.Name, float64(info.Size())/(1024*1024))
		}
	}

	transport, err := notify.NewTransport(cfg.Mail, exec, out)
	if err != nil {
		return err
	}

	logger.Info("sending release email", "version", version, "transport", transport.Name(), "recipients", len(msg.Recipients()))
	if err := transport.Deliver(ctx, msg); err != nil {
		logger.Error("release email failed", "transport", transport.Name(), "error", err)
		if transport.Name() != "client" {
			out.Error("Failed to send email: %v", err)
			out.Printf("\nSend manually to %s with subject %q and attach:\n", strings.Join(msg.Recipients(), ", "), msg.Subject)
			for _, a := range msg.Attachments {
				out.Printf("   - %s\n", a.Path)
			}
		}
		return err
	}

	logger.Info("release email delivered", "version", version, "transport", transport.Name())
	if transport.Name() != "client" {
		out.Success("Email sent to %d recipients", len(msg.Recipients()))
	}
	return nil
}
