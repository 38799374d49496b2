package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"tradiehub-backend/internal/database/memory"
	"tradiehub-backend/internal/idempotency"
	"tradiehub-backend/internal/logging"
	"tradiehub-backend/internal/models"
	"tradiehub-backend/internal/notify"
	"tradiehub-backend/internal/payments"
	"tradiehub-backend/internal/pricing"
	"tradiehub-backend/internal/retry"
	"tradiehub-backend/internal/services"
)

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type chargeResult struct {
	paymentMethodID string
	charge          *payments.Charge
	err             error
}

// fakeGateway replays the stored result for a repeated idempotency key and
// rejects a key reused with a different payment method, as Stripe does.
type fakeGateway struct {
	mu        sync.Mutex
	chargeErr error
	refundErr error
	// block makes Charge wait for the context to end.
	block   bool
	calls   int
	charges []payments.ChargeRequest
	results map[string]chargeResult
	refunds []payments.RefundRequest
	intents []payments.IntentRequest
}

func (g *fakeGateway) Charge(ctx context.Context, req payments.ChargeRequest) (*payments.Charge, error) {
	g.mu.Lock()
	g.calls++
	if prior, ok := g.results[req.IdempotencyKey]; ok {
		g.mu.Unlock()
		if prior.paymentMethodID != req.PaymentMethodID {
			return nil, errors.New("idempotency_error: key reused with different parameters")
		}
		return prior.charge, prior.err
	}
	block, chargeErr := g.block, g.chargeErr
	g.charges = append(g.charges, req)
	n := len(g.charges)
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	result := chargeResult{paymentMethodID: req.PaymentMethodID, err: chargeErr}
	if chargeErr == nil {
		result.charge = &payments.Charge{
			PaymentIntentID: fmt.Sprintf("pi_test_%d", n),
			Status:          "succeeded",
			Amount:          req.Amount,
			Currency:        req.Currency,
		}
	}
	g.mu.Lock()
	if g.results == nil {
		g.results = make(map[string]chargeResult)
	}
	g.results[req.IdempotencyKey] = result
	g.mu.Unlock()
	return result.charge, result.err
}

func (g *fakeGateway) CreateIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents = append(g.intents, req)
	return &payments.Intent{
		PaymentIntentID: fmt.Sprintf("pi_intent_%d", len(g.intents)),
		ClientSecret:    "secret",
		Status:          "requires_payment_method",
	}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, req payments.RefundRequest) (*payments.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, req)
	return &payments.Refund{RefundID: fmt.Sprintf("re_test_%d", len(g.refunds)), Status: "succeeded"}, nil
}

// Calls counts every Charge request, replays included.
func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// Charges counts the charges that reached a fresh idempotency key.
func (g *fakeGateway) Charges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges)
}

func (g *fakeGateway) Refunds() []payments.RefundRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]payments.RefundRequest(nil), g.refunds...)
}

type sentMessage struct {
	method notify.Method
	to     notify.Recipient
	msg    notify.Message
}

type fakeSender struct {
	mu   sync.Mutex
	fail map[notify.Method]bool
	sent []sentMessage
}

func (s *fakeSender) Send(ctx context.Context, method notify.Method, to notify.Recipient, msg notify.Message) (*notify.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[method] {
		return nil, errors.New(string(method) + " provider unavailable")
	}
	s.sent = append(s.sent, sentMessage{method: method, to: to, msg: msg})
	receipt := &notify.Receipt{Reference: fmt.Sprintf("%s-%d", method, len(s.sent))}
	if method == notify.MethodPDF {
		receipt.URL = "https://files.test/quotes/" + msg.Quote.QuoteNumber + ".pdf"
	}
	return receipt, nil
}

type quoteFixture struct {
	store   *memory.Store
	quotes  *services.QuoteService
	gateway *fakeGateway
	sender  *fakeSender
	clock   *clock
	tradie  models.User
	client  models.User
}

func newQuoteFixture(t *testing.T) *quoteFixture {
	t.Helper()
	return newQuoteFixtureWithPayments(t, nil)
}

// newQuoteFixtureWithPayments lets a test wrap the payment store. wrap may be nil.
func newQuoteFixtureWithPayments(t *testing.T, wrap func(*memory.Store) services.PaymentStore) *quoteFixture {
	t.Helper()

	f := &quoteFixture{
		store:   memory.New(),
		gateway: &fakeGateway{},
		sender:  &fakeSender{fail: map[notify.Method]bool{}},
		clock:   &clock{now: baseTime},
		tradie:  models.User{ID: uuid.New(), Role: models.RoleTradie, Name: "Sam Sparks", Email: "sam@sparks.test", Phone: "+61400000001"},
		client:  models.User{ID: uuid.New(), Role: models.RoleClient, Name: "Casey Client", Email: "casey@example.test", Phone: "+61400000002"},
	}
	f.store.PutUser(f.tradie)
	f.store.PutUser(f.client)

	var paymentStore services.PaymentStore = f.store
	if wrap != nil {
		paymentStore = wrap(f.store)
	}

	f.quotes = services.NewQuoteService(services.QuoteServiceDeps{
		Quotes:     f.store,
		Payments:   paymentStore,
		Directory:  f.store,
		Calculator: pricing.NewCalculator(0.10),
		Gateway:    f.gateway,
		Sender:     f.sender,
		Locker:     idempotency.NewMemoryLocker(),
		Logger:     logging.Discard(),
	}, services.QuoteServiceConfig{
		BaseURL:        "https://app.tradiehub.test",
		PaymentTimeout: 50 * time.Millisecond,
		PersistRetry:   retry.Policy{MaxRetries: 2},
	}).WithClock(f.clock.Now)
	return f
}

func quoteItems() []models.QuoteItemInput {
	return []models.QuoteItemInput{{
		ItemType:    models.ItemTypeLabor,
		Description: "Install downlights",
		Quantity:    decimal.NewFromInt(2),
		UnitPrice:   decimal.NewFromInt(50),
	}}
}

func (f *quoteFixture) createQuote(t *testing.T) *models.Quote {
	t.Helper()
	quote, err := f.quotes.CreateQuote(context.Background(), f.tradie.ID, models.CreateQuoteRequest{
		ClientID:   f.client.ID,
		Title:      "Kitchen lighting",
		Items:      quoteItems(),
		ValidUntil: f.clock.Now().Add(7 * 24 * time.Hour),
	})
	require.NoError(t, err)
	return quote
}

func (f *quoteFixture) sentQuote(t *testing.T) *models.Quote {
	t.Helper()
	quote := f.createQuote(t)
	result, err := f.quotes.SendQuote(context.Background(), quote.ID, f.tradie.ID, models.SendQuoteRequest{
		DeliveryMethods: []string{"email"},
	})
	require.NoError(t, err)
	return result.Quote
}

func (f *quoteFixture) acceptWithPayment(t *testing.T, quote *models.Quote, requestID string) *models.AcceptWithPaymentResult {
	t.Helper()
	result, err := f.quotes.AcceptQuoteWithPayment(context.Background(), quote.QuoteNumber, f.client.ID, models.AcceptWithPaymentRequest{
		PaymentMethodID: "pm_card_visa",
		RequestID:       requestID,
	})
	require.NoError(t, err)
	return result
}
