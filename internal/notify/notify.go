// Package notify alerts human advisors outside of the chat when a student
// conversation is escalated.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Escalation describes a conversation handed to a human advisor
type Escalation struct {
	Student        string
	Question       string
	LLMAnswer      string
	UncertainAreas string
}

type Notifier interface {
	NotifyEscalation(ctx context.Context, e Escalation) error
}

// Nop discards notifications
type Nop struct{}

func (Nop) NotifyEscalation(context.Context, Escalation) error { return nil }

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

type EmailNotifier struct {
	cfg    EmailConfig
	logger *zap.Logger
}

// NewEmailNotifier returns Nop when credentials or a recipient are missing
func NewEmailNotifier(cfg EmailConfig, logger *zap.Logger) Notifier {
	if cfg.Username == "" || cfg.Password == "" || cfg.To == "" {
		logger.Warn("Email credentials not configured, escalation emails disabled")
		return Nop{}
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &EmailNotifier{cfg: cfg, logger: logger}
}

var escalationBody = template.Must(template.New("escalation").Parse(`<html>
<body>
  <h2>New Escalation Alert</h2>
  <p>Student <b>{{.Student}}</b> has requested help that requires your attention.</p>
  <h3>Student question:</h3>
  <p>{{.Question}}</p>
  <h3>AI-Generated Response:</h3>
  <p>{{.LLMAnswer}}</p>
  {{- if .UncertainAreas}}
  <h3>Uncertain areas:</h3>
  <p>{{.UncertainAreas}}</p>
  {{- end}}
  <p>Please log in to RocketChat to respond to this message.</p>
  <hr>
  <p><i>This is an automated message from the Tufts CS Advising Bot.</i></p>
</body>
</html>`))

func (n *EmailNotifier) NotifyEscalation(ctx context.Context, e Escalation) error {
	msg, err := n.buildMessage(e)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(n.cfg.Host,
		mail.WithPort(n.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.cfg.Username),
		mail.WithPassword(n.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send escalation email: %w", err)
	}

	n.logger.Info("Escalation email sent", zap.String("student", e.Student))
	return nil
}

func (n *EmailNotifier) buildMessage(e Escalation) (*mail.Msg, error) {
	var body bytes.Buffer
	if err := escalationBody.Execute(&body, e); err != nil {
		return nil, fmt.Errorf("render escalation email: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(n.cfg.To); err != nil {
		return nil, fmt.Errorf("invalid advisor address: %w", err)
	}
	msg.Subject(fmt.Sprintf("🚨 ALERT: New CS Advising Escalation from %s", e.Student))
	msg.SetBodyString(mail.TypeTextHTML, body.String())
	return msg, nil
}
