// package notify delivers operational alerts to the developer/operator
// distribution list. This system runs unattended, so email is its only
// user-visible error surface.
package notify

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/maleexcel/welldyne-app/conf"
	"github.com/pkg/errors"
)

type Mailer interface {
	OperatorAlert(ctx context.Context, subject, body string) error
}

type Config struct {
	From       string `conf:"ALERT_FROM_ADDRESS"`
	Recipients string `conf:"ALERT_RECIPIENTS"` // comma separated
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := conf.Checkout(cfg); err != nil {
		return nil, err
	}
	if cfg.From == "" || cfg.Recipients == "" {
		return nil, errors.New("invalid config, ALERT_FROM_ADDRESS and ALERT_RECIPIENTS must be set")
	}
	return cfg, nil
}

// SESMailer sends operator alerts through AWS SES.
type SESMailer struct {
	cfg Config
}

var _ Mailer = &SESMailer{}

func NewSESMailer(cfg Config) *SESMailer {
	return &SESMailer{cfg: cfg}
}

func (m *SESMailer) OperatorAlert(ctx context.Context, subject, body string) error {
	sess, err := session.NewSession()
	if err != nil {
		return errors.Wrap(err, "could not create SES session")
	}

	var recipients []*string
	for _, addr := range strings.Split(m.cfg.Recipients, ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			recipients = append(recipients, aws.String(addr))
		}
	}

	svc := ses.New(sess)
	_, err = svc.SendEmailWithContext(ctx, &ses.SendEmailInput{
		Source:      aws.String(m.cfg.From),
		Destination: &ses.Destination{ToAddresses: recipients},
		Message: &ses.Message{
			Subject: &ses.Content{Data: aws.String(subject)},
			Body:    &ses.Body{Text: &ses.Content{Data: aws.String(body)}},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "could not send operator alert %q", subject)
	}
	return nil
}
