package senders

import (
	"context"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/ticketguy/Keepshot/lib/models"
)

type mailgunSender struct {
	base
}

func (e *mailgunSender) SendNotification(ctx context.Context, notifier *models.Notifier, bookmark *models.Bookmark, notification *models.Notification) (string, error) {
	format := &changeEmailFormat{bookmark, notification}
	return e.send(ctx, format.Subject(), format.Body(), notifier.PlatformIdentifier)
}

func (e *mailgunSender) SendVerification(ctx context.Context, notifier *models.Notifier, verifyURL string) (string, error) {
	format := &verificationEmailFormat{verifyURL}
	return e.send(ctx, format.Subject(), format.Body(), notifier.PlatformIdentifier)
}

func (e *mailgunSender) send(ctx context.Context, subject, body, recipient string) (string, error) {
	mg := mailgun.NewMailgun(e.cfg.Mailgun.Domain, e.cfg.Mailgun.APIKey)
	mg.Client().Transport = e.transport

	// Create message with empty body first.
	message := mg.NewMessage(e.cfg.Mailgun.SenderFrom, subject, "", recipient)
	// SetHtml with the payload proper. This will assign the MIME type properly.
	message.SetHtml(body)

	timeout := time.Duration(e.cfg.Mailgun.TimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, id, err := mg.Send(ctx, message)
	return id, err
}
