// Package notify delivers quotes to clients over email, SMS, PDF and the
// client portal.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"tradiehub-backend/internal/messaging"
	"tradiehub-backend/internal/models"
	"tradiehub-backend/internal/supabase"
)

type Method string

const (
	MethodEmail  Method = "email"
	MethodSMS    Method = "sms"
	MethodPDF    Method = "pdf"
	MethodPortal Method = "portal"
)

func ParseMethod(s string) (Method, bool) {
	switch Method(s) {
	case MethodEmail, MethodSMS, MethodPDF, MethodPortal:
		return Method(s), true
	}
	return "", false
}

type Recipient struct {
	UserID uuid.UUID
	Name   string
	Email  string
	Phone  string
}

type Message struct {
	Subject string
	Body    string
	// Link points the client at the public quote page or document.
	Link   string
	Quote  *models.Quote
	Tradie *models.User
	Client *models.User
}

type Receipt struct {
	Reference string
	URL       string
}

type Messenger interface {
	SendEmail(ctx context.Context, email messaging.Email) (*messaging.SendResult, error)
	SendSMS(ctx context.Context, sms messaging.SMS) (*messaging.SendResult, error)
}

type DocumentStore interface {
	UploadDocument(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

type PortalPublisher interface {
	Publish(ctx context.Context, notification supabase.PortalNotification) error
}

// Dispatcher routes a message to the channel named by method. Channels whose
// backend is not configured fail with an error instead of panicking.
type Dispatcher struct {
	messenger Messenger
	documents DocumentStore
	portal    PortalPublisher
	logger    *logrus.Logger
}

func NewDispatcher(messenger Messenger, documents DocumentStore, portal PortalPublisher, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		messenger: messenger,
		documents: documents,
		portal:    portal,
		logger:    logger,
	}
}

func (d *Dispatcher) Send(ctx context.Context, method Method, to Recipient, msg Message) (*Receipt, error) {
	switch method {
	case MethodEmail:
		return d.sendEmail(ctx, to, msg)
	case MethodSMS:
		return d.sendSMS(ctx, to, msg)
	case MethodPDF:
		return d.sendPDF(ctx, msg)
	case MethodPortal:
		return d.sendPortal(ctx, to, msg)
	}
	return nil, fmt.Errorf("unsupported delivery method %q", method)
}

func reference(msg Message) string {
	if msg.Quote != nil {
		return msg.Quote.QuoteNumber
	}
	return ""
}

func withLink(body, link string) string {
	if link == "" {
		return body
	}
	return body + "\n\n" + link
}

func (d *Dispatcher) sendEmail(ctx context.Context, to Recipient, msg Message) (*Receipt, error) {
	if d.messenger == nil {
		return nil, fmt.Errorf("email delivery is not configured")
	}
	if to.Email == "" {
		return nil, fmt.Errorf("recipient email is required")
	}
	result, err := d.messenger.SendEmail(ctx, messaging.Email{
		To:        to.Email,
		ToName:    to.Name,
		Subject:   msg.Subject,
		Text:      withLink(msg.Body, msg.Link),
		Reference: reference(msg),
	})
	if err != nil {
		return nil, err
	}
	return &Receipt{Reference: result.MessageID}, nil
}

func (d *Dispatcher) sendSMS(ctx context.Context, to Recipient, msg Message) (*Receipt, error) {
	if d.messenger == nil {
		return nil, fmt.Errorf("sms delivery is not configured")
	}
	if to.Phone == "" {
		return nil, fmt.Errorf("recipient phone is required")
	}
	result, err := d.messenger.SendSMS(ctx, messaging.SMS{
		To:        to.Phone,
		Body:      withLink(msg.Subject, msg.Link),
		Reference: reference(msg),
	})
	if err != nil {
		return nil, err
	}
	return &Receipt{Reference: result.MessageID}, nil
}

func (d *Dispatcher) sendPDF(ctx context.Context, msg Message) (*Receipt, error) {
	if d.documents == nil {
		return nil, fmt.Errorf("document storage is not configured")
	}
	if msg.Quote == nil {
		return nil, fmt.Errorf("quote is required for pdf delivery")
	}

	data, err := RenderQuotePDF(msg.Quote, msg.Tradie, msg.Client)
	if err != nil {
		return nil, err
	}

	path := supabase.QuoteDocumentPath(msg.Quote.TradieID, msg.Quote.QuoteNumber)
	url, err := d.documents.UploadDocument(ctx, path, data, "application/pdf")
	if err != nil {
		return nil, err
	}

	d.logger.WithFields(logrus.Fields{
		"quote_number": msg.Quote.QuoteNumber,
		"path":         path,
		"size":         len(data),
	}).Debug("quote document uploaded")

	return &Receipt{Reference: path, URL: url}, nil
}

func (d *Dispatcher) sendPortal(ctx context.Context, to Recipient, msg Message) (*Receipt, error) {
	if d.portal == nil {
		return nil, fmt.Errorf("portal delivery is not configured")
	}
	if to.UserID == uuid.Nil {
		return nil, fmt.Errorf("recipient user is required")
	}

	notification := supabase.PortalNotification{
		UserID: to.UserID,
		Title:  msg.Subject,
		Body:   msg.Body,
		Link:   msg.Link,
	}
	if msg.Quote != nil {
		quoteID := msg.Quote.ID
		notification.QuoteID = &quoteID
	}
	if err := d.portal.Publish(ctx, notification); err != nil {
		return nil, err
	}
	return &Receipt{Reference: reference(msg)}, nil
}
