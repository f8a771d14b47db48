package notify

import (
	"context"
	"fmt"
	"html"
	"log"

	"github.com/wneessen/go-mail"
)

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// MailSender emails the customer when the message carries an address.
// OTP codes are never emailed.
type MailSender struct {
	cfg MailConfig
}

func NewMailSender(cfg MailConfig) *MailSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &MailSender{cfg: cfg}
}

func (m *MailSender) Name() string { return "mail" }

func (m *MailSender) Send(ctx context.Context, msg Message) error {
	if msg.Email == "" || msg.Kind == KindOTP {
		return ErrNoRecipient
	}

	email := mail.NewMsg()
	if err := email.From(m.cfg.From); err != nil {
		return err
	}
	if err := email.To(msg.Email); err != nil {
		return err
	}
	email.Subject(Subject(msg.Kind))
	email.SetBodyString(mail.TypeTextHTML, RenderHTML(msg))

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return err
	}

	log.Println("📤 Sending email to", msg.Email)
	return client.DialAndSendWithContext(ctx, email)
}

func Subject(kind Kind) string {
	switch kind {
	case KindOrderConfirmed:
		return "✅ Order confirmed - ShoeMart"
	case KindOrderShipped:
		return "📦 Your order is on its way - ShoeMart"
	case KindOrderDelivered:
		return "🎉 Your order was delivered - ShoeMart"
	case KindOrderCancelled:
		return "❌ Order cancelled - ShoeMart"
	case KindTicketUpdate:
		return "🎫 Support ticket update - ShoeMart"
	default:
		return "📋 Update from ShoeMart"
	}
}

func RenderHTML(msg Message) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>%s</title>
</head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">%s</h2>
		<p>Hello,</p>
		<p>%s</p>
		<p style="margin-top: 30px; color: #555;">
			Regards,<br>
			<strong>The ShoeMart team</strong>
		</p>
	</div>
</body>
</html>`, html.EscapeString(Subject(msg.Kind)), html.EscapeString(Subject(msg.Kind)), html.EscapeString(Text(msg)))
}
