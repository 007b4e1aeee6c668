// Package notify delivers import-lifecycle notifications. Delivery is
// best effort by contract: callers treat failures as log-worthy, never
// as ingestion failures.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"sort"
	"strings"

	"bgeigie-hub/internal/config"
	"bgeigie-hub/internal/jobs"
)

// New picks the mail notifier when SMTP is configured and the log-only
// notifier otherwise.
func New(cfg config.NotifyConfig, log *slog.Logger) jobs.Notifier {
	if cfg.SMTP.Host != "" {
		return &Mailer{cfg: cfg.SMTP, log: log, send: smtp.SendMail}
	}
	return &LogNotifier{log: log}
}

// LogNotifier records notifications in the log instead of delivering
// them. Used when no mail transport is configured, and in tests.
type LogNotifier struct {
	log *slog.Logger
}

func (n *LogNotifier) Notify(_ context.Context, kind string, importID int64, recipient string, metadata map[string]string) error {
	n.log.Info("notification",
		"kind", kind, "import_id", importID, "recipient", recipient, "metadata", metadata)
	return nil
}

// Mailer delivers notifications over SMTP.
type Mailer struct {
	cfg config.SMTPConfig
	log *slog.Logger

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (m *Mailer) Notify(_ context.Context, kind string, importID int64, recipient string, metadata map[string]string) error {
	if recipient == "" {
		return fmt.Errorf("no recipient for %s notification", kind)
	}

	subject, intro := subjectAndIntro(kind, importID)
	msg := buildMessage(m.cfg.From, recipient, subject, intro, importID, metadata)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, auth, m.cfg.From, []string{recipient}, msg); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}
	m.log.Info("notification sent", "kind", kind, "import_id", importID, "recipient", recipient)
	return nil
}

func subjectAndIntro(kind string, importID int64) (string, string) {
	switch kind {
	case jobs.NotifyImportApproved:
		return fmt.Sprintf("bGeigie import #%d approved", importID),
			"Your drive-log import has been approved and its measurements are published."
	case jobs.NotifyImportRejected:
		return fmt.Sprintf("bGeigie import #%d rejected", importID),
			"Your drive-log import has been rejected after review."
	case jobs.NotifyImportProcessed:
		return fmt.Sprintf("bGeigie import #%d processed", importID),
			"Your drive-log import has been processed and is awaiting review."
	default:
		return fmt.Sprintf("bGeigie import #%d: %s", importID, kind),
			"Your drive-log import status changed."
	}
}

func buildMessage(from, to, subject, intro string, importID int64, metadata map[string]string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(intro)
	b.WriteString("\r\n\r\n")
	fmt.Fprintf(&b, "Import ID: %d\r\n", importID)

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, metadata[k])
	}
	return []byte(b.String())
}
