package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Amounts are rendered as JSON numbers rather than quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

type QuoteStatus string

const (
	QuoteStatusDraft     QuoteStatus = "draft"
	QuoteStatusSent      QuoteStatus = "sent"
	QuoteStatusViewed    QuoteStatus = "viewed"
	QuoteStatusAccepted  QuoteStatus = "accepted"
	QuoteStatusRejected  QuoteStatus = "rejected"
	QuoteStatusExpired   QuoteStatus = "expired"
	QuoteStatusCancelled QuoteStatus = "cancelled"
)

var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuoteStatusDraft:  {QuoteStatusSent, QuoteStatusCancelled, QuoteStatusExpired},
	QuoteStatusSent:   {QuoteStatusViewed, QuoteStatusAccepted, QuoteStatusRejected, QuoteStatusCancelled, QuoteStatusExpired},
	QuoteStatusViewed: {QuoteStatusAccepted, QuoteStatusRejected, QuoteStatusCancelled, QuoteStatusExpired},
}

// AllQuoteStatuses lists every status in lifecycle order.
var AllQuoteStatuses = []QuoteStatus{
	QuoteStatusDraft,
	QuoteStatusSent,
	QuoteStatusViewed,
	QuoteStatusAccepted,
	QuoteStatusRejected,
	QuoteStatusExpired,
	QuoteStatusCancelled,
}

// EditableQuoteStatuses are the statuses in which a quote's content may change.
var EditableQuoteStatuses = []QuoteStatus{QuoteStatusDraft, QuoteStatusSent, QuoteStatusViewed}

// DecidableQuoteStatuses are the statuses from which a client may accept or reject.
var DecidableQuoteStatuses = []QuoteStatus{QuoteStatusSent, QuoteStatusViewed}

func ParseQuoteStatus(s string) (QuoteStatus, bool) {
	for _, status := range AllQuoteStatuses {
		if string(status) == s {
			return status, true
		}
	}
	return "", false
}

func (s QuoteStatus) IsTerminal() bool {
	_, hasTransitions := quoteTransitions[s]
	return !hasTransitions
}

func (s QuoteStatus) IsEditable() bool {
	for _, status := range EditableQuoteStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s QuoteStatus) CanTransitionTo(next QuoteStatus) bool {
	for _, allowed := range quoteTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type ItemType string

const (
	ItemTypeMaterial ItemType = "material"
	ItemTypeLabor    ItemType = "labor"
	ItemTypeOther    ItemType = "other"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeMaterial, ItemTypeLabor, ItemTypeOther:
		return true
	}
	return false
}

type Quote struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	QuoteNumber     string          `db:"quote_number" json:"quote_number"`
	TradieID        uuid.UUID       `db:"tradie_id" json:"tradie_id"`
	ClientID        uuid.UUID       `db:"client_id" json:"client_id"`
	JobID           *uuid.UUID      `db:"job_id" json:"job_id,omitempty"`
	Title           string          `db:"title" json:"title"`
	Description     string          `db:"description" json:"description"`
	Items           []QuoteItem     `db:"-" json:"items"`
	GSTEnabled      bool            `db:"gst_enabled" json:"gst_enabled"`
	Subtotal        decimal.Decimal `db:"subtotal" json:"subtotal"`
	GSTAmount       decimal.Decimal `db:"gst_amount" json:"gst_amount"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status          QuoteStatus     `db:"status" json:"status"`
	StatusReason    string          `db:"status_reason" json:"status_reason,omitempty"`
	ValidUntil      time.Time       `db:"valid_until" json:"valid_until"`
	TermsConditions string          `db:"terms_conditions" json:"terms_conditions,omitempty"`
	Notes           string          `db:"notes" json:"notes,omitempty"`
	SentAt          *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	ViewedAt        *time.Time      `db:"viewed_at" json:"viewed_at,omitempty"`
	AcceptedAt      *time.Time      `db:"accepted_at" json:"accepted_at,omitempty"`
	RejectedAt      *time.Time      `db:"rejected_at" json:"rejected_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// IsExpiredAt reports whether the validity window has passed at the given time.
func (q *Quote) IsExpiredAt(now time.Time) bool {
	return now.After(q.ValidUntil)
}

type QuoteItem struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	QuoteID     uuid.UUID       `db:"quote_id" json:"quote_id"`
	ItemType    ItemType        `db:"item_type" json:"item_type"`
	Description string          `db:"description" json:"description"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	Unit        string          `db:"unit" json:"unit"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	LineTotal   decimal.Decimal `db:"line_total" json:"line_total"`
	SortOrder   int             `db:"sort_order" json:"sort_order"`
}

type QuoteFilter struct {
	Status QuoteStatus
	Limit  int
	Offset int
}

type PaymentStatus string

const (
	PaymentStatusSucceeded         PaymentStatus = "succeeded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentStatusRefunded          PaymentStatus = "refunded"
)

type QuotePayment struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	QuoteID         uuid.UUID       `db:"quote_id" json:"quote_id"`
	ClientID        uuid.UUID       `db:"client_id" json:"client_id"`
	PaymentIntentID string          `db:"payment_intent_id" json:"payment_intent_id"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Currency        string          `db:"currency" json:"currency"`
	Status          PaymentStatus   `db:"status" json:"status"`
	RefundedAmount  decimal.Decimal `db:"refunded_amount" json:"refunded_amount"`
	RequestID       string          `db:"request_id" json:"request_id"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// Refundable returns the amount that has not been refunded yet.
func (p *QuotePayment) Refundable() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}

type QuoteRefund struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	PaymentID uuid.UUID       `db:"payment_id" json:"payment_id"`
	QuoteID   uuid.UUID       `db:"quote_id" json:"quote_id"`
	RefundID  string          `db:"refund_id" json:"refund_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Reason    string          `db:"reason" json:"reason"`
	Status    string          `db:"status" json:"status"`
	RequestID string          `db:"request_id" json:"request_id"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

type InvoiceStatus string

const (
	InvoiceStatusIssued InvoiceStatus = "issued"
	InvoiceStatusPaid   InvoiceStatus = "paid"
)

type Invoice struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	InvoiceNumber string          `db:"invoice_number" json:"invoice_number"`
	QuoteID       uuid.UUID       `db:"quote_id" json:"quote_id"`
	TradieID      uuid.UUID       `db:"tradie_id" json:"tradie_id"`
	ClientID      uuid.UUID       `db:"client_id" json:"client_id"`
	Subtotal      decimal.Decimal `db:"subtotal" json:"subtotal"`
	GSTAmount     decimal.Decimal `db:"gst_amount" json:"gst_amount"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status        InvoiceStatus   `db:"status" json:"status"`
	IssuedAt      time.Time       `db:"issued_at" json:"issued_at"`
	DueDate       time.Time       `db:"due_date" json:"due_date"`
	PaidAt        *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
}

// StatusAggregate is one row of the per-status analytics breakdown.
type StatusAggregate struct {
	Status QuoteStatus     `db:"status" json:"status"`
	Count  int             `db:"count" json:"count"`
	Amount decimal.Decimal `db:"amount" json:"amount"`
}

type QuoteAnalytics struct {
	StartDate      time.Time         `json:"start_date"`
	EndDate        time.Time         `json:"end_date"`
	TotalQuotes    int               `json:"total_quotes"`
	TotalValue     decimal.Decimal   `json:"total_value"`
	AcceptedValue  decimal.Decimal   `json:"accepted_value"`
	ConversionRate float64           `json:"conversion_rate"`
	ByStatus       []StatusAggregate `json:"by_status"`
}
