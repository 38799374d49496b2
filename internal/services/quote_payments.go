package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"tradiehub-backend/internal/apperr"
	"tradiehub-backend/internal/database"
	"tradiehub-backend/internal/metrics"
	"tradiehub-backend/internal/models"
	"tradiehub-backend/internal/payments"
	"tradiehub-backend/internal/retry"
)

var errAcceptanceLost = errors.New("quote status changed before acceptance was recorded")

// AcceptQuoteWithPayment charges the quote total and records the acceptance
// together with the payment. A failed or timed out charge leaves the quote
// untouched. A charge that cannot be recorded is refunded.
func (s *QuoteService) AcceptQuoteWithPayment(ctx context.Context, quoteNumber string, clientID uuid.UUID, req models.AcceptWithPaymentRequest) (*models.AcceptWithPaymentResult, error) {
	lockKey := "quote-accept:" + req.RequestID
	if err := s.acquire(ctx, lockKey, req.RequestID); err != nil {
		return nil, err
	}

	result, charged, err := s.acceptWithPayment(ctx, quoteNumber, clientID, req)
	if err != nil {
		// A request id whose charge went through and was refunded stays
		// spent. The gateway would replay that charge for the same key.
		if charged {
			return nil, err
		}
		// Anything that stopped before a charge may be retried with the
		// same request id.
		if releaseErr := s.locker.Release(context.WithoutCancel(ctx), lockKey); releaseErr != nil {
			s.logger.WithError(releaseErr).WithField("request_id", req.RequestID).Warn("failed to release idempotency lock")
		}
		return nil, err
	}
	return result, nil
}

// acceptWithPayment reports charged when the gateway took the money, even if
// the acceptance then failed and the charge was refunded.
func (s *QuoteService) acceptWithPayment(ctx context.Context, quoteNumber string, clientID uuid.UUID, req models.AcceptWithPaymentRequest) (*models.AcceptWithPaymentResult, bool, error) {
	quote, err := s.decidableQuote(ctx, quoteNumber, clientID, models.QuoteStatusAccepted)
	if err != nil {
		return nil, false, err
	}
	if !quote.TotalAmount.IsPositive() {
		return nil, false, apperr.Validation("quote total must be greater than zero to pay online", nil)
	}

	log := s.logger.WithFields(logrus.Fields{
		"quote_id":     quote.ID,
		"quote_number": quote.QuoteNumber,
		"request_id":   req.RequestID,
	})

	chargeCtx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	charge, err := s.gateway.Charge(chargeCtx, payments.ChargeRequest{
		Amount:          quote.TotalAmount,
		Currency:        s.cfg.Currency,
		PaymentMethodID: req.PaymentMethodID,
		Description:     "Quote " + quote.QuoteNumber,
		IdempotencyKey:  chargeKey(req),
		Metadata: map[string]string{
			"quote_id":     quote.ID.String(),
			"quote_number": quote.QuoteNumber,
		},
	})
	cancel()
	if err != nil {
		return nil, false, s.paymentError(log, "charge", err)
	}
	metrics.RecordPayment("charge", "succeeded")

	// The money has moved. From here on the client hanging up must not stop
	// the acceptance from being recorded or compensated.
	persistCtx := context.WithoutCancel(ctx)
	now := s.now()
	payment := &models.QuotePayment{
		ID:              uuid.New(),
		QuoteID:         quote.ID,
		ClientID:        clientID,
		PaymentIntentID: charge.PaymentIntentID,
		Amount:          quote.TotalAmount,
		Currency:        s.cfg.Currency,
		Status:          models.PaymentStatusSucceeded,
		RefundedAmount:  decimal.Zero,
		RequestID:       req.RequestID,
		CreatedAt:       now,
	}

	err = s.cfg.PersistRetry.Do(persistCtx, func() error {
		ok, err := s.payments.AcceptQuoteWithPayment(persistCtx, quote.ID, models.DecidableQuoteStatuses, now, payment)
		if err != nil {
			// A payment already on file means another acceptance won.
			if errors.Is(err, database.ErrDuplicate) {
				return retry.Permanent(errAcceptanceLost)
			}
			return err
		}
		if !ok {
			return retry.Permanent(errAcceptanceLost)
		}
		return nil
	})
	if err != nil {
		s.compensate(persistCtx, log, charge, req.RequestID)
		if errors.Is(err, errAcceptanceLost) {
			current, loadErr := s.loadQuote(persistCtx, quote.ID)
			if loadErr != nil {
				return nil, true, loadErr
			}
			if current.Status == models.QuoteStatusExpired {
				return nil, true, apperr.QuoteExpired(quote.QuoteNumber)
			}
			return nil, true, apperr.InvalidStateTransition("quote", string(current.Status), string(models.QuoteStatusAccepted))
		}
		log.WithError(err).Error("failed to record quote acceptance")
		return nil, true, apperr.Internal("failed to record quote acceptance", err)
	}
	metrics.RecordQuoteTransition(string(quote.Status), string(models.QuoteStatusAccepted))

	invoice, err := s.issueInvoice(persistCtx, quote, models.InvoiceStatusPaid, now)
	if err != nil {
		// Acceptance and payment are recorded; the invoice can be generated later.
		log.WithError(err).Warn("failed to issue invoice for paid quote")
	}

	accepted, err := s.loadQuote(persistCtx, quote.ID)
	if err != nil {
		return nil, true, err
	}
	return &models.AcceptWithPaymentResult{Quote: accepted, Payment: payment, Invoice: invoice}, true, nil
}

// chargeKey scopes the gateway idempotency key to the request and the card,
// so a declined card can be retried with another one under the same request.
func chargeKey(req models.AcceptWithPaymentRequest) string {
	return "quote-charge-" + req.RequestID + "-" + req.PaymentMethodID
}

// compensate refunds a charge whose acceptance could not be recorded.
func (s *QuoteService) compensate(ctx context.Context, log *logrus.Entry, charge *payments.Charge, requestID string) {
	refundCtx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	defer cancel()

	refund, err := s.gateway.Refund(refundCtx, payments.RefundRequest{
		PaymentIntentID: charge.PaymentIntentID,
		Amount:          charge.Amount,
		Reason:          "quote acceptance could not be recorded",
		IdempotencyKey:  "quote-compensate-" + requestID,
	})
	if err != nil {
		metrics.RecordPayment("compensation", "failed")
		log.WithError(err).WithField("payment_intent_id", charge.PaymentIntentID).
			Error("failed to refund charge for unrecorded acceptance, manual reconciliation required")
		return
	}
	metrics.RecordPayment("compensation", "succeeded")
	log.WithFields(logrus.Fields{
		"payment_intent_id": charge.PaymentIntentID,
		"refund_id":         refund.RefundID,
	}).Warn("charge refunded after acceptance could not be recorded")
}

// CreatePaymentIntent returns a handle the client completes on their side.
// The quote status does not change.
func (s *QuoteService) CreatePaymentIntent(ctx context.Context, quoteNumber string, clientID uuid.UUID, requestID string) (*models.PaymentIntentResult, error) {
	quote, err := s.decidableQuote(ctx, quoteNumber, clientID, models.QuoteStatusAccepted)
	if err != nil {
		return nil, err
	}
	if !quote.TotalAmount.IsPositive() {
		return nil, apperr.Validation("quote total must be greater than zero to pay online", nil)
	}

	intentCtx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	defer cancel()

	intent, err := s.gateway.CreateIntent(intentCtx, payments.IntentRequest{
		Amount:         quote.TotalAmount,
		Currency:       s.cfg.Currency,
		Description:    "Quote " + quote.QuoteNumber,
		IdempotencyKey: "quote-intent-" + requestID,
		Metadata: map[string]string{
			"quote_id":     quote.ID.String(),
			"quote_number": quote.QuoteNumber,
		},
	})
	if err != nil {
		return nil, s.paymentError(s.logger.WithField("quote_number", quoteNumber), "intent", err)
	}
	metrics.RecordPayment("intent", "succeeded")

	return &models.PaymentIntentResult{
		PaymentIntentID: intent.PaymentIntentID,
		ClientSecret:    intent.ClientSecret,
		Amount:          quote.TotalAmount,
		Currency:        s.cfg.Currency,
		Status:          intent.Status,
	}, nil
}

// GenerateQuoteInvoice issues the invoice for an accepted quote. Repeated
// calls return the invoice already issued.
func (s *QuoteService) GenerateQuoteInvoice(ctx context.Context, quoteID, tradieID uuid.UUID, requestID string) (*models.Invoice, error) {
	quote, err := s.loadOwnedQuote(ctx, quoteID, tradieID)
	if err != nil {
		return nil, err
	}
	if quote.Status != models.QuoteStatusAccepted {
		return nil, apperr.StateConflict("invoices can only be generated for accepted quotes", string(quote.Status))
	}

	existing, err := s.payments.GetInvoiceByQuote(ctx, quoteID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, apperr.Internal("failed to load invoice", err)
	}

	status := models.InvoiceStatusIssued
	if _, err := s.payments.GetPaymentByQuote(ctx, quoteID); err == nil {
		status = models.InvoiceStatusPaid
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, apperr.Internal("failed to load payment", err)
	}

	invoice, err := s.issueInvoice(ctx, quote, status, s.now())
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"quote_id":   quoteID,
			"request_id": requestID,
		}).Error("failed to generate invoice")
		return nil, apperr.Internal("failed to generate invoice", err)
	}
	return invoice, nil
}

func (s *QuoteService) issueInvoice(ctx context.Context, quote *models.Quote, status models.InvoiceStatus, now time.Time) (*models.Invoice, error) {
	seq, err := s.payments.NextInvoiceSequence(ctx)
	if err != nil {
		return nil, err
	}

	invoice := &models.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: fmt.Sprintf("INV-%d-%06d", now.Year(), seq),
		QuoteID:       quote.ID,
		TradieID:      quote.TradieID,
		ClientID:      quote.ClientID,
		Subtotal:      quote.Subtotal,
		GSTAmount:     quote.GSTAmount,
		TotalAmount:   quote.TotalAmount,
		Status:        status,
		IssuedAt:      now,
		DueDate:       now.AddDate(0, 0, s.cfg.InvoiceDueDays),
	}
	if status == models.InvoiceStatusPaid {
		paidAt := now
		invoice.PaidAt = &paidAt
	}

	err = s.payments.CreateInvoice(ctx, invoice)
	if errors.Is(err, database.ErrDuplicate) {
		// Another request issued it first.
		return s.payments.GetInvoiceByQuote(ctx, quote.ID)
	}
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// RefundQuotePayment refunds part or all of a captured payment. The amount is
// reserved against the payment before the gateway call so concurrent refunds
// can never exceed the charge.
func (s *QuoteService) RefundQuotePayment(ctx context.Context, quoteID, tradieID uuid.UUID, req models.RefundQuoteRequest) (*models.RefundResult, error) {
	amount := req.Amount
	if !amount.IsPositive() {
		return nil, apperr.ValidationField("amount", "amount must be greater than 0")
	}
	if !amount.Equal(amount.Round(2)) {
		return nil, apperr.ValidationField("amount", "amount must have at most 2 decimal places")
	}

	quote, err := s.loadOwnedQuote(ctx, quoteID, tradieID)
	if err != nil {
		return nil, err
	}
	payment, err := s.payments.GetPaymentByQuote(ctx, quote.ID)
	if err != nil {
		return nil, s.storeError(err, "payment", "failed to load payment")
	}
	if amount.GreaterThan(payment.Refundable()) {
		return nil, apperr.ValidationField("amount", fmt.Sprintf("amount exceeds the refundable balance of %s", payment.Refundable().StringFixed(2)))
	}

	lockKey := "quote-refund:" + req.RequestID
	if err := s.acquire(ctx, lockKey, req.RequestID); err != nil {
		return nil, err
	}
	releaseLock := func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey); err != nil {
			s.logger.WithError(err).WithField("request_id", req.RequestID).Warn("failed to release idempotency lock")
		}
	}

	reserved, err := s.payments.ReserveRefund(ctx, payment.ID, amount)
	if err != nil {
		releaseLock()
		return nil, apperr.Internal("failed to reserve refund", err)
	}
	if !reserved {
		releaseLock()
		return nil, apperr.ValidationField("amount", "amount exceeds the refundable balance")
	}

	log := s.logger.WithFields(logrus.Fields{
		"quote_id":   quote.ID,
		"payment_id": payment.ID,
		"request_id": req.RequestID,
	})
	persistCtx := context.WithoutCancel(ctx)

	refundCtx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	refund, err := s.gateway.Refund(refundCtx, payments.RefundRequest{
		PaymentIntentID: payment.PaymentIntentID,
		Amount:          amount,
		Reason:          req.Reason,
		IdempotencyKey:  "quote-refund-" + req.RequestID,
	})
	cancel()
	if err != nil {
		if releaseErr := s.payments.ReleaseRefund(persistCtx, payment.ID, amount); releaseErr != nil {
			log.WithError(releaseErr).Error("failed to release refund reservation")
		}
		releaseLock()
		return nil, s.paymentError(log, "refund", err)
	}
	metrics.RecordPayment("refund", "succeeded")

	record := &models.QuoteRefund{
		ID:        uuid.New(),
		PaymentID: payment.ID,
		QuoteID:   quote.ID,
		RefundID:  refund.RefundID,
		Amount:    amount,
		Reason:    req.Reason,
		Status:    refund.Status,
		RequestID: req.RequestID,
		CreatedAt: s.now(),
	}
	if err := s.payments.CreateRefund(persistCtx, record); err != nil {
		// The refund went through and the reservation already counts it.
		log.WithError(err).WithField("refund_id", refund.RefundID).Error("failed to record refund")
	}

	updated, err := s.payments.GetPaymentByQuote(persistCtx, quote.ID)
	if err != nil {
		return nil, s.storeError(err, "payment", "failed to load payment")
	}
	return &models.RefundResult{Refund: record, Payment: updated}, nil
}

func (s *QuoteService) acquire(ctx context.Context, key, requestID string) error {
	if requestID == "" {
		return apperr.ValidationField("request_id", "request id is required")
	}
	acquired, err := s.locker.Acquire(ctx, key, s.cfg.IdempotencyTTL)
	if err != nil {
		s.logger.WithError(err).WithField("request_id", requestID).Error("failed to acquire idempotency lock")
		return apperr.Internal("failed to acquire request lock", err)
	}
	if !acquired {
		return apperr.DuplicateRequest(requestID)
	}
	return nil
}

// paymentError maps a gateway failure. A timeout is never taken as success.
func (s *QuoteService) paymentError(log *logrus.Entry, operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		metrics.RecordPayment(operation, "timeout")
		log.WithError(err).Error("payment gateway timed out")
		return apperr.Timeout("payment "+operation, err)
	}

	metrics.RecordPayment(operation, "failed")
	var decline *payments.DeclineError
	if errors.As(err, &decline) {
		log.WithError(err).Info("payment declined")
	} else {
		log.WithError(err).Error("payment gateway error")
	}
	return apperr.PaymentFailed(payments.Reason(err), err)
}
