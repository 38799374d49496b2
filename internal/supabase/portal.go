package supabase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const portalTable = "portal_notifications"

// PortalNotification is a row in the client portal inbox. Inserts are
// broadcast to subscribed portals by Supabase Realtime.
type PortalNotification struct {
	UserID  uuid.UUID  `json:"user_id"`
	QuoteID *uuid.UUID `json:"quote_id,omitempty"`
	Title   string     `json:"title"`
	Body    string     `json:"body"`
	Link    string     `json:"link,omitempty"`
}

type PortalClient struct {
	client *Client
}

func NewPortalClient(client *Client) *PortalClient {
	return &PortalClient{client: client}
}

func (p *PortalClient) Publish(ctx context.Context, notification PortalNotification) error {
	err := runWithContext(ctx, func() error {
		_, _, err := p.client.Supabase.From(portalTable).
			Insert(notification, false, "", "minimal", "").
			Execute()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to publish portal notification: %w", err)
	}
	return nil
}
