package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"tradiehub-backend/internal/models"
	"tradiehub-backend/internal/notify"
	"tradiehub-backend/internal/payments"
)

// QuoteStore persists quotes. Status changes are conditional on the stored
// status and report false when the condition no longer holds.
type QuoteStore interface {
	CreateQuote(ctx context.Context, quote *models.Quote) error
	QuoteNumberExists(ctx context.Context, quoteNumber string) (bool, error)
	GetQuote(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	GetQuoteByNumber(ctx context.Context, quoteNumber string) (*models.Quote, error)
	ListQuotes(ctx context.Context, tradieID uuid.UUID, filter models.QuoteFilter) ([]models.Quote, error)
	UpdateQuote(ctx context.Context, quote *models.Quote, expected []models.QuoteStatus, replaceItems bool) (bool, error)
	TransitionQuoteStatus(ctx context.Context, id uuid.UUID, from []models.QuoteStatus, to models.QuoteStatus, reason string, at time.Time) (bool, error)
	DeleteQuote(ctx context.Context, id uuid.UUID) (bool, error)
	ExpireOverdueQuotes(ctx context.Context, now time.Time) (int64, error)
	QuoteStatsByStatus(ctx context.Context, tradieID uuid.UUID, start, end time.Time) ([]models.StatusAggregate, error)
}

// PaymentStore persists captured payments, refunds and invoices.
type PaymentStore interface {
	AcceptQuoteWithPayment(ctx context.Context, quoteID uuid.UUID, from []models.QuoteStatus, at time.Time, payment *models.QuotePayment) (bool, error)
	GetPaymentByQuote(ctx context.Context, quoteID uuid.UUID) (*models.QuotePayment, error)
	ReserveRefund(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal) (bool, error)
	ReleaseRefund(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal) error
	CreateRefund(ctx context.Context, refund *models.QuoteRefund) error
	NextInvoiceSequence(ctx context.Context) (int64, error)
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	GetInvoiceByQuote(ctx context.Context, quoteID uuid.UUID) (*models.Invoice, error)
}

type MarketplaceStore interface {
	CreateMarketplaceJob(ctx context.Context, job *models.MarketplaceJob) error
	GetMarketplaceJob(ctx context.Context, id uuid.UUID) (*models.MarketplaceJob, error)
	ListAvailableJobs(ctx context.Context, filter models.MarketplaceJobFilter, now time.Time) ([]models.MarketplaceJob, error)
	UpdateMarketplaceJob(ctx context.Context, job *models.MarketplaceJob, now time.Time) (bool, error)
	DeleteMarketplaceJob(ctx context.Context, id uuid.UUID) (bool, error)
	ExpireOverdueJobs(ctx context.Context, now time.Time) (int64, error)
}

type ApplicationStore interface {
	GetMarketplaceJob(ctx context.Context, id uuid.UUID) (*models.MarketplaceJob, error)
	GetApplication(ctx context.Context, id uuid.UUID) (*models.JobApplication, error)
	FindApplication(ctx context.Context, jobID, tradieID uuid.UUID) (*models.JobApplication, error)
	ListApplicationsByTradie(ctx context.Context, tradieID uuid.UUID) ([]models.JobApplication, error)
	ListApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]models.JobApplication, error)
	CreateApplication(ctx context.Context, app *models.JobApplication, now time.Time) error
	WithdrawApplication(ctx context.Context, id uuid.UUID, reason string, refund int, now time.Time) (bool, error)
	TransitionApplicationStatus(ctx context.Context, id uuid.UUID, from, to models.ApplicationStatus, reason string, now time.Time) (bool, error)
	SelectApplication(ctx context.Context, id, jobID uuid.UUID, reason string, now time.Time) (bool, error)
	GetCreditBalance(ctx context.Context, tradieID uuid.UUID) (int, error)
}

type CreditStore interface {
	GetCreditBalance(ctx context.Context, tradieID uuid.UUID) (int, error)
	GrantCredits(ctx context.Context, tradieID uuid.UUID, amount int, reason string, now time.Time) (*models.CreditTransaction, error)
	ListCreditTransactions(ctx context.Context, tradieID uuid.UUID, limit int) ([]models.CreditTransaction, error)
}

// Directory supplies users and client jobs for ownership checks and contact data.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

type PaymentGateway interface {
	Charge(ctx context.Context, req payments.ChargeRequest) (*payments.Charge, error)
	CreateIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error)
	Refund(ctx context.Context, req payments.RefundRequest) (*payments.Refund, error)
}

type Sender interface {
	Send(ctx context.Context, method notify.Method, to notify.Recipient, msg notify.Message) (*notify.Receipt, error)
}

// Locker guards request ids against concurrent or repeated execution.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
