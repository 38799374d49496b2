package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// APIResponse is the envelope every endpoint responds with.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

type QuoteCalculation struct {
	Subtotal    decimal.Decimal   `json:"subtotal"`
	GSTAmount   decimal.Decimal   `json:"gst_amount"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	LineTotals  []decimal.Decimal `json:"line_totals"`
}

type DeliveryResult struct {
	Method    string `json:"method"`
	Success   bool   `json:"success"`
	Reference string `json:"reference,omitempty"`
	URL       string `json:"url,omitempty"`
	Error     string `json:"error,omitempty"`
}

type SendQuoteResult struct {
	Quote      *Quote           `json:"quote"`
	Deliveries []DeliveryResult `json:"deliveries"`
}

type PaymentIntentResult struct {
	PaymentIntentID string          `json:"payment_intent_id"`
	ClientSecret    string          `json:"client_secret"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
}

type AcceptWithPaymentResult struct {
	Quote   *Quote        `json:"quote"`
	Payment *QuotePayment `json:"payment"`
	Invoice *Invoice      `json:"invoice,omitempty"`
}

type RefundResult struct {
	Refund  *QuoteRefund  `json:"refund"`
	Payment *QuotePayment `json:"payment"`
}

type PriceBreakdownLine struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

type PricingSuggestion struct {
	SuggestedTotal decimal.Decimal      `json:"suggested_total"`
	MinTotal       decimal.Decimal      `json:"min_total"`
	MaxTotal       decimal.Decimal      `json:"max_total"`
	Confidence     float64              `json:"confidence"`
	Breakdown      []PriceBreakdownLine `json:"breakdown"`
	Source         string               `json:"source"`
	Notes          []string             `json:"notes,omitempty"`
}

type BulkStatusItemResult struct {
	ApplicationID uuid.UUID         `json:"application_id"`
	Success       bool              `json:"success"`
	Status        ApplicationStatus `json:"status,omitempty"`
	Code          string            `json:"code,omitempty"`
	Error         string            `json:"error,omitempty"`
}

type BulkStatusResult struct {
	Updated int                    `json:"updated"`
	Failed  int                    `json:"failed"`
	Results []BulkStatusItemResult `json:"results"`
}
