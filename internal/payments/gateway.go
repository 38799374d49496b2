// Package payments charges and refunds quote payments through Stripe.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"tradiehub-backend/internal/pricing"
)

type ChargeRequest struct {
	Amount          decimal.Decimal
	Currency        string
	PaymentMethodID string
	Description     string
	IdempotencyKey  string
	Metadata        map[string]string
}

type Charge struct {
	PaymentIntentID string
	Status          string
	Amount          decimal.Decimal
	Currency        string
}

type IntentRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

type Intent struct {
	PaymentIntentID string
	ClientSecret    string
	Status          string
}

type RefundRequest struct {
	PaymentIntentID string
	Amount          decimal.Decimal
	Reason          string
	IdempotencyKey  string
}

type Refund struct {
	RefundID string
	Status   string
}

// DeclineError is returned when the gateway refuses the operation.
type DeclineError struct {
	Code   string
	Reason string
	Err    error
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("payment declined (%s): %s", e.Code, e.Reason)
}

func (e *DeclineError) Unwrap() error {
	return e.Err
}

// StripeGateway implements the gateway on the Stripe PaymentIntents API.
type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	api := client.New(secretKey, stripe.NewBackends(httpClient))
	return &StripeGateway{api: api}
}

// NewStripeGatewayWithBackend targets a custom API URL, e.g. a local mock.
func NewStripeGatewayWithBackend(secretKey, apiURL string) *StripeGateway {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(apiURL),
		HTTPClient:        &http.Client{Timeout: 30 * time.Second},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	})
	api := client.New(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &StripeGateway{api: api}
}

// Charge creates and confirms a PaymentIntent for the full amount.
func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(pricing.ToCents(req.Amount)),
		Currency:      stripe.String(req.Currency),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, translateError(ctx, err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, &DeclineError{
			Code:   string(pi.Status),
			Reason: "payment was not completed",
		}
	}

	return &Charge{
		PaymentIntentID: pi.ID,
		Status:          string(pi.Status),
		Amount:          pricing.FromCents(pi.Amount),
		Currency:        string(pi.Currency),
	}, nil
}

// CreateIntent creates an unconfirmed PaymentIntent the client completes.
func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(pricing.ToCents(req.Amount)),
		Currency:    stripe.String(req.Currency),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, translateError(ctx, err)
	}

	return &Intent{
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		Status:          string(pi.Status),
	}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (*Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentIntentID),
		Amount:        stripe.Int64(pricing.ToCents(req.Amount)),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}

	refund, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, translateError(ctx, err)
	}
	if refund.Status == stripe.RefundStatusFailed || refund.Status == stripe.RefundStatusCanceled {
		return nil, &DeclineError{Code: string(refund.Status), Reason: "refund was not completed"}
	}

	return &Refund{RefundID: refund.ID, Status: string(refund.Status)}, nil
}

func translateError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("payment gateway call aborted: %w", ctxErr)
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		code := string(stripeErr.Code)
		if stripeErr.DeclineCode != "" {
			code = string(stripeErr.DeclineCode)
		}
		if stripeErr.Type == stripe.ErrorTypeCard || stripeErr.Type == stripe.ErrorTypeInvalidRequest {
			return &DeclineError{Code: code, Reason: stripeErr.Msg, Err: err}
		}
	}
	return fmt.Errorf("payment gateway error: %w", err)
}

// Reason extracts a human-readable failure reason from a gateway error.
func Reason(err error) string {
	var decline *DeclineError
	if errors.As(err, &decline) {
		return decline.Reason
	}
	return "payment provider unavailable"
}
