package notification

import (
	"bytes"
	"fmt"
	"html/template"

	extErrors "github.com/pkg/errors"
	"github.com/resendlabs/resend-go"
	"go.uber.org/zap"
)

var receiptTemplate = template.Must(template.New("receipt").Parse(`
<p>Hi {{.Name}},</p>
<p>We received your payment of <strong>${{.Amount}}</strong> for {{.Program}}. Thank you!</p>
<p>See you at your next session.</p>
`))

var linkTemplate = template.Must(template.New("link").Parse(`
<p>Hi {{.Name}},</p>
<p>Your trainer has set up <strong>{{.Program}}</strong> for you.</p>
<p><a href="{{.URL}}">Complete your payment here</a>. The link is valid for 24 hours.</p>
`))

var failureTemplate = template.Must(template.New("failure").Parse(`
<p>Hi {{.Name}},</p>
<p>The renewal payment of <strong>${{.Amount}}</strong> for {{.Client}} did not go through.</p>
<p>Ask them to update their card, then retry the payment from the dashboard.</p>
`))

// MailerOptions contains the configuration for the Mailer
type MailerOptions struct {
	APIKey string
	From   string
	Logger *zap.Logger
}

// Mailer sends transactional email through Resend
type Mailer struct {
	MailerOptions
	client *resend.Client
}

// NewMailer will create a Mailer backed by the Resend API
func NewMailer(option MailerOptions) (*Mailer, error) {
	if len(option.APIKey) == 0 {
		return nil, fmt.Errorf("empty APIKey is invalid")
	}
	if len(option.From) == 0 {
		return nil, fmt.Errorf("empty From is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Mailer{
		MailerOptions: option,
		client:        resend.NewClient(option.APIKey),
	}, nil
}

func (m *Mailer) send(to, subject string, tmpl *template.Template, data interface{}) error {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return extErrors.Wrap(err, "Cannot render email")
	}
	_, err := m.client.Emails.Send(&resend.SendEmailRequest{
		From:    m.From,
		To:      []string{to},
		Subject: subject,
		Html:    body.String(),
	})
	if err != nil {
		return extErrors.Wrap(err, "Cannot send email")
	}
	return nil
}

// PaymentReceipt thanks a client for a settled payment
func (m *Mailer) PaymentReceipt(to, name, amount, programName string) error {
	return m.send(to, "Payment received", receiptTemplate, map[string]string{
		"Name":    name,
		"Amount":  amount,
		"Program": programName,
	})
}

// CheckoutLink hands the client their hosted payment link
func (m *Mailer) CheckoutLink(to, name, programName, url string) error {
	return m.send(to, "Complete your payment", linkTemplate, map[string]string{
		"Name":    name,
		"Program": programName,
		"URL":     url,
	})
}

// PaymentFailed warns the trainer that a renewal bounced
func (m *Mailer) PaymentFailed(to, trainerName, clientName, amount string) error {
	return m.send(to, "A client payment failed", failureTemplate, map[string]string{
		"Name":   trainerName,
		"Client": clientName,
		"Amount": amount,
	})
}
