package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"tradiehub-backend/internal/models"
)

const quoteColumns = `id, quote_number, tradie_id, client_id, job_id, title, description, gst_enabled,
	subtotal, gst_amount, total_amount, status, status_reason, valid_until, terms_conditions, notes,
	sent_at, viewed_at, accepted_at, rejected_at, created_at, updated_at`

const quoteItemColumns = `id, quote_id, item_type, description, quantity, unit, unit_price, line_total, sort_order`

const paymentColumns = `id, quote_id, client_id, payment_intent_id, amount, currency, status, refunded_amount, request_id, created_at`

const invoiceColumns = `id, invoice_number, quote_id, tradie_id, client_id, subtotal, gst_amount, total_amount,
	status, issued_at, due_date, paid_at`

func statusArray(statuses []models.QuoteStatus) interface{} {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return pq.Array(values)
}

// timestampColumn returns the column stamped when a quote enters the status.
func timestampColumn(status models.QuoteStatus) string {
	switch status {
	case models.QuoteStatusSent:
		return "sent_at"
	case models.QuoteStatusViewed:
		return "viewed_at"
	case models.QuoteStatusAccepted:
		return "accepted_at"
	case models.QuoteStatusRejected:
		return "rejected_at"
	}
	return ""
}

func (s *Store) CreateQuote(ctx context.Context, quote *models.Quote) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO quotes (`+quoteColumns+`)
			VALUES (:id, :quote_number, :tradie_id, :client_id, :job_id, :title, :description, :gst_enabled,
				:subtotal, :gst_amount, :total_amount, :status, :status_reason, :valid_until, :terms_conditions, :notes,
				:sent_at, :viewed_at, :accepted_at, :rejected_at, :created_at, :updated_at)
		`, quote)
		if err != nil {
			return mapError(err)
		}
		return insertItems(ctx, tx, quote.ID, quote.Items)
	})
}

func insertItems(ctx context.Context, tx *sqlx.Tx, quoteID uuid.UUID, items []models.QuoteItem) error {
	for i := range items {
		items[i].QuoteID = quoteID
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO quote_items (`+quoteItemColumns+`)
			VALUES (:id, :quote_id, :item_type, :description, :quantity, :unit, :unit_price, :line_total, :sort_order)
		`, items[i]); err != nil {
			return fmt.Errorf("failed to insert quote item: %w", err)
		}
	}
	return nil
}

func (s *Store) QuoteNumberExists(ctx context.Context, quoteNumber string) (bool, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM quotes WHERE quote_number = $1)`, quoteNumber); err != nil {
		return false, fmt.Errorf("failed to check quote number: %w", err)
	}
	return exists, nil
}

func (s *Store) GetQuote(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	return s.getQuote(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id)
}

func (s *Store) GetQuoteByNumber(ctx context.Context, quoteNumber string) (*models.Quote, error) {
	return s.getQuote(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE quote_number = $1`, quoteNumber)
}

func (s *Store) getQuote(ctx context.Context, query string, arg interface{}) (*models.Quote, error) {
	var quote models.Quote
	if err := s.db.GetContext(ctx, &quote, query, arg); err != nil {
		return nil, mapError(err)
	}

	items := []models.QuoteItem{}
	if err := s.db.SelectContext(ctx, &items, `
		SELECT `+quoteItemColumns+` FROM quote_items WHERE quote_id = $1 ORDER BY sort_order
	`, quote.ID); err != nil {
		return nil, fmt.Errorf("failed to load quote items: %w", err)
	}
	quote.Items = items
	return &quote, nil
}

func (s *Store) ListQuotes(ctx context.Context, tradieID uuid.UUID, filter models.QuoteFilter) ([]models.Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE tradie_id = $1`
	args := []interface{}{tradieID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	quotes := []models.Quote{}
	if err := s.db.SelectContext(ctx, &quotes, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	return quotes, nil
}

// UpdateQuote writes the editable fields only while the stored status is one
// of expected. It reports false when the status check fails.
func (s *Store) UpdateQuote(ctx context.Context, quote *models.Quote, expected []models.QuoteStatus, replaceItems bool) (bool, error) {
	updated := false
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE quotes
			SET title = $2, description = $3, gst_enabled = $4, subtotal = $5, gst_amount = $6,
				total_amount = $7, valid_until = $8, terms_conditions = $9, notes = $10, updated_at = $11
			WHERE id = $1 AND status = ANY($12)
		`, quote.ID, quote.Title, quote.Description, quote.GSTEnabled, quote.Subtotal, quote.GSTAmount,
			quote.TotalAmount, quote.ValidUntil, quote.TermsConditions, quote.Notes, quote.UpdatedAt,
			statusArray(expected))
		if err != nil {
			return fmt.Errorf("failed to update quote: %w", err)
		}
		n, err := rowsAffected(result)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		if replaceItems {
			if _, err := tx.ExecContext(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, quote.ID); err != nil {
				return fmt.Errorf("failed to clear quote items: %w", err)
			}
			if err := insertItems(ctx, tx, quote.ID, quote.Items); err != nil {
				return err
			}
		}
		updated = true
		return nil
	})
	return updated, err
}

// TransitionQuoteStatus moves a quote to status `to` only if its current
// status is in `from`.
func (s *Store) TransitionQuoteStatus(ctx context.Context, id uuid.UUID, from []models.QuoteStatus, to models.QuoteStatus, reason string, at time.Time) (bool, error) {
	return transitionQuote(ctx, s.db, id, from, to, reason, at)
}

func transitionQuote(ctx context.Context, db sqlx.ExecerContext, id uuid.UUID, from []models.QuoteStatus, to models.QuoteStatus, reason string, at time.Time) (bool, error) {
	set := "status = $2, status_reason = $3, updated_at = $4"
	if column := timestampColumn(to); column != "" {
		set += ", " + column + " = $4"
	}

	result, err := db.ExecContext(ctx, `UPDATE quotes SET `+set+` WHERE id = $1 AND status = ANY($5)`,
		id, string(to), reason, at, statusArray(from))
	if err != nil {
		return false, fmt.Errorf("failed to update quote status: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) DeleteQuote(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM quotes WHERE id = $1 AND status = $2`, id, string(models.QuoteStatusDraft))
	if err != nil {
		return false, fmt.Errorf("failed to delete quote: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) ExpireOverdueQuotes(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE quotes
		SET status = 'expired', status_reason = 'validity period ended', updated_at = $1
		WHERE status IN ('draft', 'sent', 'viewed') AND valid_until < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire quotes: %w", err)
	}
	return rowsAffected(result)
}

// AcceptQuoteWithPayment records the acceptance and the captured payment in
// one transaction. It reports false, writing nothing, if the status check fails.
func (s *Store) AcceptQuoteWithPayment(ctx context.Context, quoteID uuid.UUID, from []models.QuoteStatus, at time.Time, payment *models.QuotePayment) (bool, error) {
	accepted := false
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := transitionQuote(ctx, tx, quoteID, from, models.QuoteStatusAccepted, "accepted with payment", at)
		if err != nil || !ok {
			return err
		}

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO quote_payments (`+paymentColumns+`)
			VALUES (:id, :quote_id, :client_id, :payment_intent_id, :amount, :currency, :status, :refunded_amount, :request_id, :created_at)
		`, payment); err != nil {
			return fmt.Errorf("failed to record payment: %w", mapError(err))
		}
		accepted = true
		return nil
	})
	return accepted, err
}

func (s *Store) GetPaymentByQuote(ctx context.Context, quoteID uuid.UUID) (*models.QuotePayment, error) {
	var payment models.QuotePayment
	if err := s.db.GetContext(ctx, &payment, `SELECT `+paymentColumns+` FROM quote_payments WHERE quote_id = $1`, quoteID); err != nil {
		return nil, mapError(err)
	}
	return &payment, nil
}

// ReserveRefund adds amount to the refunded total if it stays within the
// captured amount.
func (s *Store) ReserveRefund(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE quote_payments
		SET refunded_amount = refunded_amount + $2,
			status = CASE WHEN refunded_amount + $2 >= amount THEN 'refunded' ELSE 'partially_refunded' END
		WHERE id = $1 AND refunded_amount + $2 <= amount
	`, paymentID, amount)
	if err != nil {
		return false, fmt.Errorf("failed to reserve refund: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) ReleaseRefund(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE quote_payments
		SET refunded_amount = GREATEST(refunded_amount - $2, 0),
			status = CASE WHEN refunded_amount - $2 <= 0 THEN 'succeeded' ELSE 'partially_refunded' END
		WHERE id = $1
	`, paymentID, amount)
	if err != nil {
		return fmt.Errorf("failed to release refund: %w", err)
	}
	return nil
}

func (s *Store) CreateRefund(ctx context.Context, refund *models.QuoteRefund) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO quote_refunds (id, payment_id, quote_id, refund_id, amount, reason, status, request_id, created_at)
		VALUES (:id, :payment_id, :quote_id, :refund_id, :amount, :reason, :status, :request_id, :created_at)
	`, refund)
	if err != nil {
		return fmt.Errorf("failed to record refund: %w", mapError(err))
	}
	return nil
}

func (s *Store) NextInvoiceSequence(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.GetContext(ctx, &seq, `SELECT nextval('invoice_number_seq')`); err != nil {
		return 0, fmt.Errorf("failed to allocate invoice number: %w", err)
	}
	return seq, nil
}

func (s *Store) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (:id, :invoice_number, :quote_id, :tradie_id, :client_id, :subtotal, :gst_amount, :total_amount,
			:status, :issued_at, :due_date, :paid_at)
	`, invoice)
	return mapError(err)
}

func (s *Store) GetInvoiceByQuote(ctx context.Context, quoteID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := s.db.GetContext(ctx, &invoice, `SELECT `+invoiceColumns+` FROM invoices WHERE quote_id = $1`, quoteID); err != nil {
		return nil, mapError(err)
	}
	return &invoice, nil
}

func (s *Store) QuoteStatsByStatus(ctx context.Context, tradieID uuid.UUID, start, end time.Time) ([]models.StatusAggregate, error) {
	stats := []models.StatusAggregate{}
	err := s.db.SelectContext(ctx, &stats, `
		SELECT status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS amount
		FROM quotes
		WHERE tradie_id = $1 AND created_at >= $2 AND created_at <= $3
		GROUP BY status
		ORDER BY status
	`, tradieID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate quotes: %w", err)
	}
	return stats, nil
}
