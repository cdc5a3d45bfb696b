package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
)

// Event is one change notification from the record collection.
type Event struct {
	Op      string `json:"op"`
	AssetID string `json:"id"`
}

// Feed is a cancellable change subscription on the record collection. The
// returned channel closes when the subscription is lost or the context ends;
// cancellation releases the underlying stream deterministically.
type Feed interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// PgFeed subscribes to the NOTIFY channel the migration installs a trigger
// for, using a dedicated pgx connection.
type PgFeed struct {
	dsn     string
	channel string
}

// NewPgFeed creates a feed over the given Postgres DSN and channel name.
func NewPgFeed(dsn, channel string) *PgFeed {
	return &PgFeed{dsn: dsn, channel: channel}
}

// Subscribe opens the listening connection and starts the delivery goroutine.
func (f *PgFeed) Subscribe(ctx context.Context) (<-chan Event, error) {
	conn, err := pgx.Connect(ctx, f.dsn)
	if err != nil {
		return nil, fmt.Errorf("change feed connect: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("change feed listen on %s: %w", f.channel, err)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer conn.Close(context.Background())
		for {
			notification, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("Warning: change feed lost: %v", err)
				}
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(notification.Payload), &ev); err != nil {
				// A malformed payload is still a change signal.
				ev = Event{Op: "unknown"}
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
