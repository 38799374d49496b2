package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type QuoteItemInput struct {
	ItemType    ItemType        `json:"item_type" binding:"required,oneof=material labor other" example:"labor"`
	Description string          `json:"description" binding:"required,max=500" example:"Install downlights"`
	Quantity    decimal.Decimal `json:"quantity" example:"2"`
	Unit        string          `json:"unit,omitempty" binding:"max=20" example:"hour"`
	UnitPrice   decimal.Decimal `json:"unit_price" example:"50"`
}

type CalculateQuoteRequest struct {
	Items      []QuoteItemInput `json:"items" binding:"dive"`
	GSTEnabled bool             `json:"gst_enabled"`
}

type CreateQuoteRequest struct {
	ClientID    uuid.UUID        `json:"client_id" binding:"required"`
	JobID       *uuid.UUID       `json:"job_id,omitempty"`
	Title       string           `json:"title" binding:"required,min=3,max=200"`
	Description string           `json:"description" binding:"max=5000"`
	Items       []QuoteItemInput `json:"items" binding:"dive"`
	// GSTEnabled defaults to true when omitted.
	GSTEnabled      *bool     `json:"gst_enabled,omitempty"`
	ValidUntil      time.Time `json:"valid_until" binding:"required"`
	TermsConditions string    `json:"terms_conditions,omitempty" binding:"max=10000"`
	Notes           string    `json:"notes,omitempty" binding:"max=5000"`
}

// UpdateQuoteRequest carries a partial update; nil fields are left unchanged.
type UpdateQuoteRequest struct {
	Title           *string          `json:"title,omitempty" binding:"omitempty,min=3,max=200"`
	Description     *string          `json:"description,omitempty" binding:"omitempty,max=5000"`
	Items           []QuoteItemInput `json:"items,omitempty" binding:"dive"`
	GSTEnabled      *bool            `json:"gst_enabled,omitempty"`
	ValidUntil      *time.Time       `json:"valid_until,omitempty"`
	TermsConditions *string          `json:"terms_conditions,omitempty" binding:"omitempty,max=10000"`
	Notes           *string          `json:"notes,omitempty" binding:"omitempty,max=5000"`
}

type UpdateQuoteStatusRequest struct {
	Status string `json:"status" binding:"required" example:"cancelled"`
	Reason string `json:"reason,omitempty" binding:"max=1000"`
}

type SendQuoteRequest struct {
	DeliveryMethods []string `json:"delivery_methods" binding:"required,min=1,dive,oneof=email sms pdf portal"`
	RecipientEmail  string   `json:"recipient_email,omitempty" binding:"omitempty,email"`
	RecipientPhone  string   `json:"recipient_phone,omitempty" binding:"omitempty,min=8,max=20"`
	Message         string   `json:"message,omitempty" binding:"max=2000"`
}

type RejectQuoteRequest struct {
	Reason string `json:"reason,omitempty" binding:"max=1000"`
}

type AcceptWithPaymentRequest struct {
	PaymentMethodID string `json:"payment_method_id" binding:"required" example:"pm_card_visa"`
	RequestID       string `json:"request_id" binding:"required,max=100"`
}

type PaymentIntentRequest struct {
	RequestID string `json:"request_id" binding:"required,max=100"`
}

type GenerateInvoiceRequest struct {
	RequestID string `json:"request_id" binding:"required,max=100"`
}

type RefundQuoteRequest struct {
	Amount    decimal.Decimal `json:"amount" example:"25.50"`
	Reason    string          `json:"reason" binding:"required,max=500"`
	RequestID string          `json:"request_id" binding:"required,max=100"`
}

type AIPricingRequest struct {
	JobDescription    string   `json:"job_description"`
	JobType           string   `json:"job_type"`
	TradieHourlyRate  float64  `json:"tradie_hourly_rate"`
	EstimatedDuration *float64 `json:"estimated_duration,omitempty"`
	Location          string   `json:"location,omitempty"`
}

type CreateMarketplaceJobRequest struct {
	Title           string          `json:"title" binding:"required,min=3,max=200"`
	Description     string          `json:"description" binding:"required,min=10,max=5000"`
	JobType         string          `json:"job_type" binding:"required,max=50"`
	UrgencyLevel    UrgencyLevel    `json:"urgency_level" binding:"required,oneof=low medium high emergency"`
	EstimatedBudget decimal.Decimal `json:"estimated_budget"`
	Location        string          `json:"location" binding:"max=200"`
	DateRequired    *time.Time      `json:"date_required,omitempty"`
	// ExpiresInDays defaults to 14.
	ExpiresInDays int `json:"expires_in_days,omitempty" binding:"omitempty,min=1,max=90"`
}

type UpdateMarketplaceJobRequest struct {
	Title           *string          `json:"title,omitempty" binding:"omitempty,min=3,max=200"`
	Description     *string          `json:"description,omitempty" binding:"omitempty,min=10,max=5000"`
	UrgencyLevel    *UrgencyLevel    `json:"urgency_level,omitempty" binding:"omitempty,oneof=low medium high emergency"`
	EstimatedBudget *decimal.Decimal `json:"estimated_budget,omitempty"`
	Location        *string          `json:"location,omitempty" binding:"omitempty,max=200"`
	DateRequired    *time.Time       `json:"date_required,omitempty"`
}

type CreateApplicationRequest struct {
	MarketplaceJobID    uuid.UUID       `json:"marketplace_job_id" binding:"required"`
	CustomQuote         decimal.Decimal `json:"custom_quote"`
	ProposedTimeline    string          `json:"proposed_timeline" binding:"required,max=500"`
	ApproachDescription string          `json:"approach_description" binding:"required,min=20,max=5000"`
	AvailabilityDates   []string        `json:"availability_dates" binding:"max=30,dive,datetime=2006-01-02"`
}

type UpdateApplicationStatusRequest struct {
	Status string `json:"status" binding:"required" example:"under_review"`
	Reason string `json:"reason,omitempty" binding:"max=1000"`
}

type WithdrawApplicationRequest struct {
	Reason        string `json:"reason" binding:"max=500"`
	RefundCredits bool   `json:"refund_credits"`
}

type BulkApplicationStatusRequest struct {
	ApplicationIDs []uuid.UUID `json:"application_ids" binding:"required,min=1,max=100"`
	Status         string      `json:"status" binding:"required"`
	Reason         string      `json:"reason,omitempty" binding:"max=1000"`
}

type GrantCreditsRequest struct {
	TradieID uuid.UUID `json:"tradie_id" binding:"required"`
	Amount   int       `json:"amount" binding:"required,gt=0,lte=10000"`
	Reason   string    `json:"reason" binding:"required,max=200"`
}
