package services_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tradiehub-backend/internal/apperr"
	"tradiehub-backend/internal/models"
	"tradiehub-backend/internal/notify"
)

func TestCreateQuote_ComputesTotals(t *testing.T) {
	f := newQuoteFixture(t)

	quote := f.createQuote(t)

	assert.Equal(t, models.QuoteStatusDraft, quote.Status)
	assert.True(t, quote.GSTEnabled)
	assert.Equal(t, "100.00", quote.Subtotal.StringFixed(2))
	assert.Equal(t, "10.00", quote.GSTAmount.StringFixed(2))
	assert.Equal(t, "110.00", quote.TotalAmount.StringFixed(2))
	require.Len(t, quote.Items, 1)
	assert.Equal(t, "100.00", quote.Items[0].LineTotal.StringFixed(2))

	assert.True(t, strings.HasPrefix(quote.QuoteNumber, "QT-20250310-"), quote.QuoteNumber)
	assert.Len(t, quote.QuoteNumber, len("QT-20250310-")+6)
}

func TestCreateQuote_WithoutGST(t *testing.T) {
	f := newQuoteFixture(t)
	gst := false

	quote, err := f.quotes.CreateQuote(context.Background(), f.tradie.ID, models.CreateQuoteRequest{
		ClientID:   f.client.ID,
		Title:      "Kitchen lighting",
		Items:      quoteItems(),
		GSTEnabled: &gst,
		ValidUntil: baseTime.Add(time.Hour),
	})

	require.NoError(t, err)
	assert.True(t, quote.GSTAmount.IsZero())
	assert.Equal(t, "100.00", quote.TotalAmount.StringFixed(2))
}

func TestCreateQuote_UniqueNumbers(t *testing.T) {
	f := newQuoteFixture(t)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		quote := f.createQuote(t)
		assert.False(t, seen[quote.QuoteNumber], "duplicate quote number %s", quote.QuoteNumber)
		seen[quote.QuoteNumber] = true
	}
}

func TestCreateQuote_Validation(t *testing.T) {
	f := newQuoteFixture(t)
	ctx := context.Background()

	t.Run("valid until in the past", func(t *testing.T) {
		_, err := f.quotes.CreateQuote(ctx, f.tradie.ID, models.CreateQuoteRequest{
			ClientID:   f.client.ID,
			Title:      "Kitchen lighting",
			Items:      quoteItems(),
			ValidUntil: baseTime.Add(-time.Minute),
		})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("recipient is not a client", func(t *testing.T) {
		_, err := f.quotes.CreateQuote(ctx, f.tradie.ID, models.CreateQuoteRequest{
			ClientID:   f.tradie.ID,
			Title:      "Kitchen lighting",
			Items:      quoteItems(),
			ValidUntil: baseTime.Add(time.Hour),
		})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := f.quotes.CreateQuote(ctx, f.tradie.ID, models.CreateQuoteRequest{
			ClientID:   uuid.New(),
			Title:      "Kitchen lighting",
			Items:      quoteItems(),
			ValidUntil: baseTime.Add(time.Hour),
		})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("job assigned to another tradie", func(t *testing.T) {
		other := uuid.New()
		job := models.Job{ID: uuid.New(), ClientID: f.client.ID, TradieID: &other, Title: "Rewire"}
		f.store.PutJob(job)

		_, err := f.quotes.CreateQuote(ctx, f.tradie.ID, models.CreateQuoteRequest{
			ClientID:   f.client.ID,
			JobID:      &job.ID,
			Title:      "Kitchen lighting",
			Items:      quoteItems(),
			ValidUntil: baseTime.Add(time.Hour),
		})
		assert.ErrorIs(t, err, apperr.ErrUnauthorizedAccess)
	})
}

func TestGetQuote_Access(t *testing.T) {
	f := newQuoteFixture(t)
	quote := f.createQuote(t)
	ctx := context.Background()

	_, err := f.quotes.GetQuote(ctx, quote.ID, models.Actor{UserID: f.tradie.ID, Role: models.RoleTradie})
	assert.NoError(t, err)
	_, err = f.quotes.GetQuote(ctx, quote.ID, models.Actor{UserID: f.client.ID, Role: models.RoleClient})
	assert.NoError(t, err)
	_, err = f.quotes.GetQuote(ctx, quote.ID, models.Actor{UserID: uuid.New(), Role: models.RoleAdmin})
	assert.NoError(t, err)

	_, err = f.quotes.GetQuote(ctx, quote.ID, models.Actor{UserID: uuid.New(), Role: models.RoleTradie})
	assert.ErrorIs(t, err, apperr.ErrUnauthorizedAccess)
}

func TestUpdateQuote_RecomputesTotals(t *testing.T) {
	f := newQuoteFixture(t)
	quote := f.sentQuote(t)

	title := "Kitchen and hallway lighting"
	items := append(quoteItems(), models.QuoteItemInput{
		ItemType:    models.ItemTypeMaterial,
		Description: "LED downlight",
		Quantity:    decimal.NewFromInt(4),
		UnitPrice:   decimal.RequireFromString("12.50"),
	})

	updated, err := f.quotes.UpdateQuote(context.Background(), quote.ID, f.tradie.ID, models.UpdateQuoteRequest{
		Title: &title,
		Items: items,
	})

	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Len(t, updated.Items, 2)
	assert.Equal(t, "150.00", updated.Subtotal.StringFixed(2))
	assert.Equal(t, "165.00", updated.TotalAmount.StringFixed(2))
	assert.Equal(t, models.QuoteStatusSent, updated.Status)
}

func TestUpdateQuote_ImmutableOnceAccepted(t *testing.T) {
	f := newQuoteFixture(t)
	quote := f.sentQuote(t)
	_, err := f.quotes.AcceptQuote(context.Background(), quote.QuoteNumber, f.client.ID)
	require.NoError(t, err)

	title := "Changed"
	_, err = f.quotes.UpdateQuote(context.Background(), quote.ID, f.tradie.ID, models.UpdateQuoteRequest{Title: &title})

	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)
}

func TestUpdateQuote_OtherTradie(t *testing.T) {
	f := newQuoteFixture(t)
	quote := f.createQuote(t)
	title := "Changed"

	_, err := f.quotes.UpdateQuote(context.Background(), quote.ID, uuid.New(), models.UpdateQuoteRequest{Title: &title})

	assert.ErrorIs(t, err, apperr.ErrUnauthorizedAccess)
}

func TestUpdateQuoteStatus(t *testing.T) {
	f := newQuoteFixture(t)
	ctx := context.Background()

	t.Run("draft cannot jump to accepted", func(t *testing.T) {
		quote := f.createQuote(t)
		_, err := f.quotes.UpdateQuoteStatus(ctx, quote.ID, f.tradie.ID, models.UpdateQuoteStatusRequest{Status: "accepted"})

		require.ErrorIs(t, err, apperr.ErrInvalidStateTransition)
		assert.Equal(t, "draft", apperr.From(err).Details["current_status"])
	})

	t.Run("viewed is set by the client only", func(t *testing.T) {
		quote := f.sentQuote(t)
		_, err := f.quotes.UpdateQuoteStatus(ctx, quote.ID, f.tradie.ID, models.UpdateQuoteStatusRequest{Status: "viewed"})

		assert.ErrorIs(t, err, apperr.ErrUnauthorizedAccess)
	})

	t.Run("unknown status", func(t *testing.T) {
		quote := f.createQuote(t)
		_, err := f.quotes.UpdateQuoteStatus(ctx, quote.ID, f.tradie.ID, models.UpdateQuoteStatusRequest{Status: "archived"})

		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("cancel a sent quote", func(t *testing.T) {
		quote := f.sentQuote(t)
		updated, err := f.quotes.UpdateQuoteStatus(ctx, quote.ID, f.tradie.ID, models.UpdateQuoteStatusRequest{
			Status: "cancelled",
			Reason: "client went elsewhere",
		})

		require.NoError(t, err)
		assert.Equal(t, models.QuoteStatusCancelled, updated.Status)
		assert.Equal(t, "client went elsewhere", updated.StatusReason)
	})

	t.Run("terminal states stay terminal", func(t *testing.T) {
		quote := f.sentQuote(t)
		_, err := f.quotes.UpdateQuoteStatus(ctx, quote.ID, f.tradie.ID, models.UpdateQuoteStatusRequest{Status: "cancelled"})
		require.NoError(t, err)

		_, err = f.quotes.UpdateQuoteStatus(ctx, quote.ID, f.tradie.ID, models.UpdateQuoteStatusRequest{Status: "sent"})
		assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)
	})
}

func TestDeleteQuote_DraftOnly(t *testing.T) {
	f := newQuoteFixture(t)
	ctx := context.Background()

	draft := f.createQuote(t)
	require.NoError(t, f.quotes.DeleteQuote(ctx, draft.ID, f.tradie.ID))
	_, err := f.quotes.GetQuote(ctx, draft.ID, models.Actor{UserID: f.tradie.ID, Role: models.RoleTradie})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	sent := f.sentQuote(t)
	err = f.quotes.DeleteQuote(ctx, sent.ID, f.tradie.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)
}

func TestSendQuote_DeliversEachChannel(t *testing.T) {
	f := newQuoteFixture(t)
	f.sender.fail[notify.MethodSMS] = true
	quote := f.createQuote(t)

	result, err := f.quotes.SendQuote(context.Background(), quote.ID, f.tradie.ID, models.SendQuoteRequest{
		DeliveryMethods: []string{"email", "pdf", "sms", "email"},
	})

	require.NoError(t, err)
	assert.Equal(t, models.QuoteStatusSent, result.Quote.Status)
	require.NotNil(t, result.Quote.SentAt)

	require.Len(t, result.Deliveries, 3)
	assert.Equal(t, "pdf", result.Deliveries[0].Method)
	assert.True(t, result.Deliveries[0].Success)
	assert.NotEmpty(t, result.Deliveries[0].URL)
	assert.Equal(t, "email", result.Deliveries[1].Method)
	assert.True(t, result.Deliveries[1].Success)
	assert.Equal(t, "sms", result.Deliveries[2].Method)
	assert.False(t, result.Deliveries[2].Success)
	assert.NotEmpty(t, result.Deliveries[2].Error)

	// The email links to the rendered document.
	require.Len(t, f.sender.sent, 2)
	email := f.sender.sent[1]
	assert.Equal(t, f.client.Email, email.to.Email)
	assert.Contains(t, email.msg.Body, result.Deliveries[0].URL)
	assert.Equal(t, "https://app.tradiehub.test/quotes/view/"+quote.QuoteNumber, email.msg.Link)
}

func TestSendQuote_OverridesRecipient(t *testing.T) {
	f := newQuoteFixture(t)
	quote := f.createQuote(t)

	_, err := f.quotes.SendQuote(context.Background(), quote.ID, f.tradie.ID, models.SendQuoteRequest{
		DeliveryMethods: []string{"email"},
		RecipientEmail:  "accounts@example.test",
		Message:         "Here is the quote we discussed.",
	})

	require.NoError(t, err)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "accounts@example.test", f.sender.sent[0].to.Email)
	assert.Equal(t, "Here is the quote we discussed.", f.sender.sent[0].msg.Body)
}

func TestSendQuote_OnlyDrafts(t *testing.T) {
	f := newQuoteFixture(t)
	quote := f.sentQuote(t)

	_, err := f.quotes.SendQuote(context.Background(), quote.ID, f.tradie.ID, models.SendQuoteRequest{
		DeliveryMethods: []string{"email"},
	})

	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)
}

func TestSendQuote_MissingRecipientLeavesDraft(t *testing.T) {
	f := newQuoteFixture(t)
	f.client.Phone = ""
	f.store.PutUser(f.client)
	quote := f.createQuote(t)

	_, err := f.quotes.SendQuote(context.Background(), quote.ID, f.tradie.ID, models.SendQuoteRequest{
		DeliveryMethods: []string{"sms"},
	})

	require.ErrorIs(t, err, apperr.ErrValidation)
	stored, err := f.quotes.GetQuote(context.Background(), quote.ID, models.Actor{UserID: f.tradie.ID})
	require.NoError(t, err)
	assert.Equal(t, models.QuoteStatusDraft, stored.Status)
}

func TestViewQuote_MarksViewedOnce(t *testing.T) {
	f := newQuoteFixture(t)
	quote := f.sentQuote(t)
	ctx := context.Background()

	first, err := f.quotes.ViewQuote(ctx, quote.QuoteNumber)
	require.NoError(t, err)
	assert.Equal(t, models.QuoteStatusViewed, first.Status)
	require.NotNil(t, first.ViewedAt)

	f.clock.Advance(time.Hour)
	second, err := f.quotes.ViewQuote(ctx, quote.QuoteNumber)
	require.NoError(t, err)
	assert.Equal(t, models.QuoteStatusViewed, second.Status)
	assert.Equal(t, *first.ViewedAt, *second.ViewedAt)
}

func TestViewQuote_DraftsAreHidden(t *testing.T) {
	f := newQuoteFixture(t)
	quote := f.createQuote(t)

	_, err := f.quotes.ViewQuote(context.Background(), quote.QuoteNumber)

	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAcceptQuote(t *testing.T) {
	f := newQuoteFixture(t)
	quote := f.sentQuote(t)

	accepted, err := f.quotes.AcceptQuote(context.Background(), quote.QuoteNumber, f.client.ID)

	require.NoError(t, err)
	assert.Equal(t, models.QuoteStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.AcceptedAt)

	_, err = f.quotes.RejectQuote(context.Background(), quote.QuoteNumber, f.client.ID, "too late")
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)
}

func TestAcceptQuote_OtherClient(t *testing.T) {
	f := newQuoteFixture(t)
	quote := f.sentQuote(t)

	_, err := f.quotes.AcceptQuote(context.Background(), quote.QuoteNumber, uuid.New())

	assert.ErrorIs(t, err, apperr.ErrUnauthorizedAccess)
}

func TestRejectQuote_RecordsReason(t *testing.T) {
	f := newQuoteFixture(t)
	quote := f.sentQuote(t)

	rejected, err := f.quotes.RejectQuote(context.Background(), quote.QuoteNumber, f.client.ID, "found a cheaper quote")

	require.NoError(t, err)
	assert.Equal(t, models.QuoteStatusRejected, rejected.Status)
	assert.Equal(t, "found a cheaper quote", rejected.StatusReason)
}

func TestAcceptQuote_ExpiredRegardlessOfStoredStatus(t *testing.T) {
	f := newQuoteFixture(t)
	quote := f.sentQuote(t)
	f.clock.Advance(8 * 24 * time.Hour)

	_, err := f.quotes.AcceptQuote(context.Background(), quote.QuoteNumber, f.client.ID)
	require.ErrorIs(t, err, apperr.ErrQuoteExpired)

	stored, err := f.quotes.GetQuote(context.Background(), quote.ID, models.Actor{UserID: f.client.ID})
	require.NoError(t, err)
	assert.Equal(t, models.QuoteStatusExpired, stored.Status)

	// Still expired on a second attempt.
	_, err = f.quotes.AcceptQuote(context.Background(), quote.QuoteNumber, f.client.ID)
	assert.ErrorIs(t, err, apperr.ErrQuoteExpired)
}

func TestAcceptQuote_ConcurrentExactlyOneWinner(t *testing.T) {
	f := newQuoteFixture(t)
	quote := f.sentQuote(t)

	const attempts = 10
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.quotes.AcceptQuote(context.Background(), quote.QuoteNumber, f.client.ID)
			} else {
				_, err = f.quotes.RejectQuote(context.Background(), quote.QuoteNumber, f.client.ID, "")
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)
	}
	assert.Equal(t, 1, wins)
}

func TestExpireOverdue(t *testing.T) {
	f := newQuoteFixture(t)
	ctx := context.Background()
	f.createQuote(t)
	f.sentQuote(t)
	accepted := f.sentQuote(t)
	_, err := f.quotes.AcceptQuote(ctx, accepted.QuoteNumber, f.client.ID)
	require.NoError(t, err)

	f.clock.Advance(8 * 24 * time.Hour)
	n, err := f.quotes.ExpireOverdue(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	stored, err := f.quotes.GetQuote(ctx, accepted.ID, models.Actor{UserID: f.tradie.ID})
	require.NoError(t, err)
	assert.Equal(t, models.QuoteStatusAccepted, stored.Status)
}

func TestListQuotes_ExpiresOverdueOnRead(t *testing.T) {
	f := newQuoteFixture(t)
	ctx := context.Background()
	sent := f.sentQuote(t)
	accepted := f.sentQuote(t)
	_, err := f.quotes.AcceptQuote(ctx, accepted.QuoteNumber, f.client.ID)
	require.NoError(t, err)

	f.clock.Advance(8 * 24 * time.Hour)

	active, err := f.quotes.ListQuotes(ctx, f.tradie.ID, models.QuoteFilter{Status: models.QuoteStatusSent})
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := f.quotes.ListQuotes(ctx, f.tradie.ID, models.QuoteFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	statuses := map[uuid.UUID]models.QuoteStatus{}
	for _, q := range all {
		statuses[q.ID] = q.Status
	}
	assert.Equal(t, models.QuoteStatusExpired, statuses[sent.ID])
	assert.Equal(t, models.QuoteStatusAccepted, statuses[accepted.ID])

	expired, err := f.quotes.ListQuotes(ctx, f.tradie.ID, models.QuoteFilter{Status: models.QuoteStatusExpired})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, sent.ID, expired[0].ID)
}

func TestGetAnalytics(t *testing.T) {
	f := newQuoteFixture(t)
	ctx := context.Background()

	f.createQuote(t)
	f.sentQuote(t)
	accepted := f.sentQuote(t)
	_, err := f.quotes.AcceptQuote(ctx, accepted.QuoteNumber, f.client.ID)
	require.NoError(t, err)

	analytics, err := f.quotes.GetAnalytics(ctx, f.tradie.ID, baseTime.Add(-time.Hour), baseTime.Add(time.Hour))

	require.NoError(t, err)
	assert.Equal(t, 3, analytics.TotalQuotes)
	assert.Equal(t, "330.00", analytics.TotalValue.StringFixed(2))
	assert.Equal(t, "110.00", analytics.AcceptedValue.StringFixed(2))
	assert.Equal(t, 0.5, analytics.ConversionRate)

	_, err = f.quotes.GetAnalytics(ctx, f.tradie.ID, baseTime, baseTime.Add(-time.Hour))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
