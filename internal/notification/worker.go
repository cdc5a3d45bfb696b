package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"asset-ledger-backend/internal/model"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real implementation backed by the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Job is one asset transition to announce.
type Job struct {
	AssetID string
	Status  model.AssetStatus
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size), // Buffered channel
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			log.Printf("Worker %d processing asset %s", id, job.AssetID)
			wp.sendNotificationsForAsset(ctx, job)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch sends a job to the worker pool.
func (wp *WorkerPool) Dispatch(job Job) {
	wp.jobs <- job
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

// sendNotificationsForAsset fetches subscriptions and sends notifications for
// a transitioned asset.
func (wp *WorkerPool) sendNotificationsForAsset(ctx context.Context, job Job) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_asset_mapping sam ON sam.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sam.asset_id = ?", job.AssetID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for asset %s: %v", job.AssetID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for asset %s", len(subscriptions), job.AssetID)

	label := job.AssetID
	var asset model.Asset
	if err := wp.db.WithContext(ctx).
		Select("asset_number", "equipment_name").
		First(&asset, "id = ?", job.AssetID).Error; err != nil {
		log.Printf("Error fetching asset %s: %v", job.AssetID, err)
	} else if asset.EquipmentName != "" {
		label = fmt.Sprintf("%s (%s)", asset.EquipmentName, asset.AssetNumber)
	}

	message := statusMessage(label, job.Status)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

func statusMessage(label string, status model.AssetStatus) string {
	switch status {
	case model.StatusPendingReview:
		return fmt.Sprintf("資産 %s の確認依頼が届きました", label)
	case model.StatusApproved:
		return fmt.Sprintf("資産 %s が承認されました", label)
	case model.StatusRejected:
		return fmt.Sprintf("資産 %s が差し戻されました", label)
	default:
		return fmt.Sprintf("資産 %s が更新されました", label)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	// Manually construct the webpush.Subscription object
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == 410 {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
