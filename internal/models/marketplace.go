package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// WithdrawalWindow is how long after submission an application may be withdrawn.
const WithdrawalWindow = 24 * time.Hour

type MarketplaceJobStatus string

const (
	MarketplaceJobAvailable MarketplaceJobStatus = "available"
	MarketplaceJobExpired   MarketplaceJobStatus = "expired"
	MarketplaceJobFilled    MarketplaceJobStatus = "filled"
	MarketplaceJobCancelled MarketplaceJobStatus = "cancelled"
)

type UrgencyLevel string

const (
	UrgencyLow       UrgencyLevel = "low"
	UrgencyMedium    UrgencyLevel = "medium"
	UrgencyHigh      UrgencyLevel = "high"
	UrgencyEmergency UrgencyLevel = "emergency"
)

func (u UrgencyLevel) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyEmergency:
		return true
	}
	return false
}

type MarketplaceJob struct {
	ID               uuid.UUID            `db:"id" json:"id"`
	ClientID         uuid.UUID            `db:"client_id" json:"client_id"`
	Title            string               `db:"title" json:"title"`
	Description      string               `db:"description" json:"description"`
	JobType          string               `db:"job_type" json:"job_type"`
	UrgencyLevel     UrgencyLevel         `db:"urgency_level" json:"urgency_level"`
	Status           MarketplaceJobStatus `db:"status" json:"status"`
	EstimatedBudget  decimal.Decimal      `db:"estimated_budget" json:"estimated_budget"`
	Location         string               `db:"location" json:"location"`
	DateRequired     *time.Time           `db:"date_required" json:"date_required,omitempty"`
	ExpiresAt        time.Time            `db:"expires_at" json:"expires_at"`
	ApplicationCount int                  `db:"application_count" json:"application_count"`
	CreatedAt        time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time            `db:"updated_at" json:"updated_at"`
}

// IsOpenAt reports whether the job accepts applications at the given time.
func (j *MarketplaceJob) IsOpenAt(now time.Time) bool {
	return j.Status == MarketplaceJobAvailable && now.Before(j.ExpiresAt)
}

type MarketplaceJobFilter struct {
	JobType string
	Limit   int
	Offset  int
}

type ApplicationStatus string

const (
	ApplicationSubmitted   ApplicationStatus = "submitted"
	ApplicationUnderReview ApplicationStatus = "under_review"
	ApplicationSelected    ApplicationStatus = "selected"
	ApplicationRejected    ApplicationStatus = "rejected"
	ApplicationWithdrawn   ApplicationStatus = "withdrawn"
)

var applicationTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationSubmitted:   {ApplicationUnderReview, ApplicationWithdrawn},
	ApplicationUnderReview: {ApplicationSelected, ApplicationRejected},
}

func ParseApplicationStatus(s string) (ApplicationStatus, bool) {
	switch ApplicationStatus(s) {
	case ApplicationSubmitted, ApplicationUnderReview, ApplicationSelected, ApplicationRejected, ApplicationWithdrawn:
		return ApplicationStatus(s), true
	}
	return "", false
}

func (s ApplicationStatus) CanTransitionTo(next ApplicationStatus) bool {
	for _, allowed := range applicationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ApplicationStatus) IsTerminal() bool {
	_, ok := applicationTransitions[s]
	return !ok
}

type JobApplication struct {
	ID                   uuid.UUID         `db:"id" json:"id"`
	MarketplaceJobID     uuid.UUID         `db:"marketplace_job_id" json:"marketplace_job_id"`
	TradieID             uuid.UUID         `db:"tradie_id" json:"tradie_id"`
	CustomQuote          decimal.Decimal   `db:"custom_quote" json:"custom_quote"`
	ProposedTimeline     string            `db:"proposed_timeline" json:"proposed_timeline"`
	ApproachDescription  string            `db:"approach_description" json:"approach_description"`
	AvailabilityDates    pq.StringArray    `db:"availability_dates" json:"availability_dates"`
	CreditsUsed          int               `db:"credits_used" json:"credits_used"`
	Status               ApplicationStatus `db:"status" json:"status"`
	StatusReason         string            `db:"status_reason" json:"status_reason,omitempty"`
	WithdrawalReason     string            `db:"withdrawal_reason" json:"withdrawal_reason,omitempty"`
	ApplicationTimestamp time.Time         `db:"application_timestamp" json:"application_timestamp"`
	UpdatedAt            time.Time         `db:"updated_at" json:"updated_at"`
}

// IsWithdrawable reports whether the tradie may still withdraw the application.
func (a *JobApplication) IsWithdrawable(now time.Time) bool {
	return a.Status == ApplicationSubmitted && now.Before(a.WithdrawalDeadline())
}

func (a *JobApplication) WithdrawalDeadline() time.Time {
	return a.ApplicationTimestamp.Add(WithdrawalWindow)
}

// Eligibility reasons.
const (
	ReasonJobNotAvailable     = "job_not_available"
	ReasonJobExpired          = "job_expired"
	ReasonAlreadyApplied      = "already_applied"
	ReasonInsufficientCredits = "insufficient_credits"
	ReasonOwnJob              = "own_job"
)

type EligibilityResult struct {
	CanApply        bool     `json:"can_apply"`
	Reasons         []string `json:"reasons"`
	RequiredCredits int      `json:"required_credits"`
	CurrentBalance  int      `json:"current_balance"`
}

type CreditTransactionKind string

const (
	CreditGrant            CreditTransactionKind = "grant"
	CreditApplicationDebit CreditTransactionKind = "application_debit"
	CreditWithdrawalRefund CreditTransactionKind = "withdrawal_refund"
)

type CreditTransaction struct {
	ID           uuid.UUID             `db:"id" json:"id"`
	TradieID     uuid.UUID             `db:"tradie_id" json:"tradie_id"`
	Amount       int                   `db:"amount" json:"amount"`
	Kind         CreditTransactionKind `db:"kind" json:"kind"`
	Reason       string                `db:"reason" json:"reason"`
	ReferenceID  *uuid.UUID            `db:"reference_id" json:"reference_id,omitempty"`
	BalanceAfter int                   `db:"balance_after" json:"balance_after"`
	CreatedAt    time.Time             `db:"created_at" json:"created_at"`
}

type CreditBalance struct {
	TradieID uuid.UUID `json:"tradie_id"`
	Balance  int       `json:"balance"`
}
