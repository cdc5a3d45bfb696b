package sync

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"asset-ledger-backend/internal/model"
)

// Fetcher is the read side the loop needs from the repository.
type Fetcher interface {
	FetchAll(ctx context.Context) []model.Asset
}

// Loop keeps every viewer's record set reasonably fresh. The change feed is
// the primary signal; a fixed-interval poll drives refreshes only while no
// subscription is established, and resumes when the feed is lost. Each signal
// triggers a full re-pull; the held set is only replaced when the updatedAt
// fingerprint of the fetched set differs.
type Loop struct {
	fetcher   Fetcher
	feed      Feed
	interval  time.Duration
	onRefresh func([]model.Asset)

	fingerprint string
}

// NewLoop wires the loop. feed may be nil, which leaves only the poll path
// (cache-only deployments). onRefresh fires once per effective change.
func NewLoop(fetcher Fetcher, feed Feed, interval time.Duration, onRefresh func([]model.Asset)) *Loop {
	return &Loop{fetcher: fetcher, feed: feed, interval: interval, onRefresh: onRefresh}
}

// Run drives the loop until ctx is cancelled. Teardown stops the timer and
// releases the subscription through ctx.
func (l *Loop) Run(ctx context.Context) {
	log.Println("Starting synchronization loop...")
	l.refresh(ctx)

	events := l.subscribe(ctx)

	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		if events == nil {
			select {
			case <-ctx.Done():
				log.Println("Synchronization loop shutting down.")
				return
			case <-timer.C:
				l.refresh(ctx)
				timer.Reset(l.interval)
				// Each poll tick also retries the push channel.
				events = l.subscribe(ctx)
			}
			continue
		}

		select {
		case <-ctx.Done():
			log.Println("Synchronization loop shutting down.")
			return
		case _, ok := <-events:
			if !ok {
				log.Println("Change feed closed; polling resumes.")
				events = nil
				// Drain a tick that fired while the feed was driving, or
				// the fallback would start with one spurious poll.
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(l.interval)
				continue
			}
			l.refresh(ctx)
		}
	}
}

func (l *Loop) subscribe(ctx context.Context) <-chan Event {
	if l.feed == nil {
		return nil
	}
	events, err := l.feed.Subscribe(ctx)
	if err != nil {
		log.Printf("Change feed unavailable, staying on the poll fallback: %v", err)
		return nil
	}
	log.Println("Change feed established; poll channel stands down.")
	return events
}

// refresh re-pulls the full set and publishes it when it actually changed.
func (l *Loop) refresh(ctx context.Context) {
	assets := l.fetcher.FetchAll(ctx)
	fp := fingerprint(assets)
	if fp == l.fingerprint {
		return
	}
	l.fingerprint = fp
	if l.onRefresh != nil {
		l.onRefresh(assets)
	}
}

func fingerprint(assets []model.Asset) string {
	var b strings.Builder
	for _, a := range assets {
		b.WriteString(a.ID)
		b.WriteByte('@')
		b.WriteString(strconv.FormatInt(a.UpdatedAt.UnixNano(), 10))
		b.WriteByte(';')
	}
	return b.String()
}
