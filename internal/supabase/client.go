package supabase

import (
	"context"

	"github.com/supabase-community/supabase-go"
)

type Client struct {
	Supabase *supabase.Client
}

func NewClient(supabaseURL, serviceKey string) (*Client, error) {
	client, err := supabase.NewClient(supabaseURL, serviceKey, nil)
	if err != nil {
		return nil, err
	}

	return &Client{
		Supabase: client,
	}, nil
}

// runWithContext bounds a blocking SDK call, which takes no context itself,
// by ctx. The call keeps running in the background after ctx is done.
func runWithContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
