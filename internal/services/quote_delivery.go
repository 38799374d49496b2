package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"tradiehub-backend/internal/apperr"
	"tradiehub-backend/internal/metrics"
	"tradiehub-backend/internal/models"
	"tradiehub-backend/internal/notify"
)

// SendQuote moves a draft to sent and delivers it on each requested channel.
// Channel failures are reported per channel and never undo the transition.
func (s *QuoteService) SendQuote(ctx context.Context, quoteID, tradieID uuid.UUID, req models.SendQuoteRequest) (*models.SendQuoteResult, error) {
	methods, err := parseMethods(req.DeliveryMethods)
	if err != nil {
		return nil, err
	}

	quote, err := s.loadOwnedQuote(ctx, quoteID, tradieID)
	if err != nil {
		return nil, err
	}

	client, err := s.directory.GetUser(ctx, quote.ClientID)
	if err != nil {
		return nil, s.storeError(err, "client", "failed to load client")
	}
	recipient := notify.Recipient{
		UserID: client.ID,
		Name:   client.Name,
		Email:  firstNonEmpty(req.RecipientEmail, client.Email),
		Phone:  firstNonEmpty(req.RecipientPhone, client.Phone),
	}
	if err := validateRecipient(methods, recipient); err != nil {
		return nil, err
	}

	if err := s.expireIfOverdue(ctx, quote); err != nil {
		return nil, err
	}
	if quote.Status != models.QuoteStatusDraft {
		return nil, apperr.InvalidStateTransition("quote", string(quote.Status), string(models.QuoteStatusSent))
	}
	if err := s.transition(ctx, quote, []models.QuoteStatus{models.QuoteStatusDraft}, models.QuoteStatusSent, ""); err != nil {
		return nil, err
	}
	sentAt := quote.UpdatedAt
	quote.SentAt = &sentAt

	tradie, err := s.directory.GetUser(ctx, tradieID)
	if err != nil {
		s.logger.WithError(err).WithField("tradie_id", tradieID).Warn("failed to load tradie for quote delivery")
		tradie = nil
	}

	msg := s.quoteMessage(quote, tradie, client, req.Message)
	results := make([]models.DeliveryResult, 0, len(methods))
	for _, method := range methods {
		result := s.deliver(ctx, method, recipient, msg)
		// Later channels link to the rendered document as well.
		if method == notify.MethodPDF && result.Success && result.URL != "" {
			msg.Body += "\n\nDownload the quote: " + result.URL
		}
		results = append(results, result)
	}

	return &models.SendQuoteResult{Quote: quote, Deliveries: results}, nil
}

func (s *QuoteService) deliver(ctx context.Context, method notify.Method, to notify.Recipient, msg notify.Message) models.DeliveryResult {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.NotificationTimeout)
	defer cancel()

	result := models.DeliveryResult{Method: string(method)}
	if s.sender == nil {
		result.Error = "delivery is not configured"
		metrics.RecordDelivery(string(method), false)
		return result
	}

	receipt, err := s.sender.Send(sendCtx, method, to, msg)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"quote_number": msg.Quote.QuoteNumber,
			"method":       method,
		}).Warn("quote delivery failed")
		result.Error = err.Error()
		metrics.RecordDelivery(string(method), false)
		return result
	}

	result.Success = true
	result.Reference = receipt.Reference
	result.URL = receipt.URL
	metrics.RecordDelivery(string(method), true)
	return result
}

func (s *QuoteService) quoteMessage(quote *models.Quote, tradie, client *models.User, custom string) notify.Message {
	from := "your tradie"
	if tradie != nil && tradie.Name != "" {
		from = tradie.Name
	}

	body := custom
	if body == "" {
		name := "there"
		if client.Name != "" {
			name = client.Name
		}
		body = fmt.Sprintf("Hi %s,\n\n%s has sent you quote %s for %q totalling $%s (incl. GST $%s). It is valid until %s.",
			name, from, quote.QuoteNumber, quote.Title, quote.TotalAmount.StringFixed(2),
			quote.GSTAmount.StringFixed(2), quote.ValidUntil.Format("2 Jan 2006"))
	}

	return notify.Message{
		Subject: fmt.Sprintf("Quote %s from %s", quote.QuoteNumber, from),
		Body:    body,
		Link:    s.viewURL(quote.QuoteNumber),
		Quote:   quote,
		Tradie:  tradie,
		Client:  client,
	}
}

func (s *QuoteService) viewURL(quoteNumber string) string {
	if s.cfg.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/quotes/view/" + quoteNumber
}

func parseMethods(raw []string) ([]notify.Method, error) {
	if len(raw) == 0 {
		return nil, apperr.ValidationField("delivery_methods", "at least one delivery method is required")
	}

	seen := make(map[notify.Method]bool, len(raw))
	methods := make([]notify.Method, 0, len(raw))
	for i, r := range raw {
		method, ok := notify.ParseMethod(strings.ToLower(strings.TrimSpace(r)))
		if !ok {
			return nil, apperr.ValidationField(fmt.Sprintf("delivery_methods[%d]", i), "must be email, sms, pdf or portal")
		}
		if !seen[method] {
			seen[method] = true
			methods = append(methods, method)
		}
	}

	// The document is rendered first so the other channels can link to it.
	if seen[notify.MethodPDF] {
		ordered := []notify.Method{notify.MethodPDF}
		for _, m := range methods {
			if m != notify.MethodPDF {
				ordered = append(ordered, m)
			}
		}
		methods = ordered
	}
	return methods, nil
}

func validateRecipient(methods []notify.Method, to notify.Recipient) error {
	fields := make(map[string]string)
	for _, method := range methods {
		switch method {
		case notify.MethodEmail:
			if to.Email == "" {
				fields["recipient_email"] = "recipient email is required for email delivery"
			}
		case notify.MethodSMS:
			if to.Phone == "" {
				fields["recipient_phone"] = "recipient phone is required for sms delivery"
			}
		}
	}
	if len(fields) > 0 {
		return apperr.Validation("missing delivery recipient", fields)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ViewQuote is the public lookup by quote number. The first view of a sent
// quote marks it viewed; later views leave the status alone.
func (s *QuoteService) ViewQuote(ctx context.Context, quoteNumber string) (*models.Quote, error) {
	quote, err := s.quotes.GetQuoteByNumber(ctx, quoteNumber)
	if err != nil {
		return nil, s.storeError(err, "quote", "failed to load quote")
	}
	if quote.Status == models.QuoteStatusDraft {
		return nil, apperr.NotFound("quote")
	}
	if err := s.expireIfOverdue(ctx, quote); err != nil {
		return nil, err
	}
	if quote.Status != models.QuoteStatusSent {
		return quote, nil
	}

	now := s.now()
	ok, err := s.quotes.TransitionQuoteStatus(ctx, quote.ID, []models.QuoteStatus{models.QuoteStatusSent}, models.QuoteStatusViewed, "", now)
	if err != nil {
		return nil, apperr.Internal("failed to record quote view", err)
	}
	if ok {
		metrics.RecordQuoteTransition(string(models.QuoteStatusSent), string(models.QuoteStatusViewed))
	}
	return s.loadQuote(ctx, quote.ID)
}

func (s *QuoteService) AcceptQuote(ctx context.Context, quoteNumber string, clientID uuid.UUID) (*models.Quote, error) {
	return s.decide(ctx, quoteNumber, clientID, models.QuoteStatusAccepted, "")
}

func (s *QuoteService) RejectQuote(ctx context.Context, quoteNumber string, clientID uuid.UUID, reason string) (*models.Quote, error) {
	return s.decide(ctx, quoteNumber, clientID, models.QuoteStatusRejected, reason)
}

func (s *QuoteService) decide(ctx context.Context, quoteNumber string, clientID uuid.UUID, target models.QuoteStatus, reason string) (*models.Quote, error) {
	quote, err := s.decidableQuote(ctx, quoteNumber, clientID, target)
	if err != nil {
		return nil, err
	}

	if err := s.transition(ctx, quote, models.DecidableQuoteStatuses, target, reason); err != nil {
		return nil, s.explainLostDecision(ctx, quote, err)
	}
	return s.loadQuote(ctx, quote.ID)
}

// decidableQuote loads a quote the client may accept or reject right now.
// Expiry is checked against the wall clock, whatever the stored status says.
func (s *QuoteService) decidableQuote(ctx context.Context, quoteNumber string, clientID uuid.UUID, target models.QuoteStatus) (*models.Quote, error) {
	quote, err := s.quotes.GetQuoteByNumber(ctx, quoteNumber)
	if err != nil {
		return nil, s.storeError(err, "quote", "failed to load quote")
	}
	if quote.Status == models.QuoteStatusDraft {
		return nil, apperr.NotFound("quote")
	}
	if quote.ClientID != clientID {
		return nil, apperr.UnauthorizedAccess("this quote was not sent to you")
	}

	if quote.IsExpiredAt(s.now()) || quote.Status == models.QuoteStatusExpired {
		if err := s.expireIfOverdue(ctx, quote); err != nil {
			return nil, err
		}
		return nil, apperr.QuoteExpired(quote.QuoteNumber)
	}
	if !quote.Status.CanTransitionTo(target) {
		return nil, apperr.InvalidStateTransition("quote", string(quote.Status), string(target))
	}
	return quote, nil
}

// explainLostDecision turns a lost race into QuoteExpired when the winner
// was the expiry sweep.
func (s *QuoteService) explainLostDecision(ctx context.Context, quote *models.Quote, err error) error {
	if apperr.KindOf(err) != apperr.KindInvalidStateTransition {
		return err
	}
	current, loadErr := s.loadQuote(ctx, quote.ID)
	if loadErr == nil && current.Status == models.QuoteStatusExpired {
		return apperr.QuoteExpired(quote.QuoteNumber)
	}
	return err
}
