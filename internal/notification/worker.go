package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"gauge-tracking-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool fans gauge-available events out to push subscribers.
type WorkerPool struct {
	size    int
	jobs    chan int64
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan int64, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("notification worker %d started", id)
	for {
		select {
		case gaugeID := <-wp.jobs:
			wp.sendNotificationsForGauge(ctx, gaugeID)
		case <-ctx.Done():
			log.Printf("notification worker %d shutting down", id)
			return
		}
	}
}

// GaugeAvailable enqueues a notification job. Implements service.Notifier.
func (wp *WorkerPool) GaugeAvailable(gaugeID int64) {
	select {
	case wp.jobs <- gaugeID:
	default:
		// Best-effort: the status change itself already committed.
		log.Printf("notification queue full, dropping event for gauge %d", gaugeID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan int64 {
	return wp.jobs
}

// sendNotificationsForGauge fetches subscriptions and notifies them that the
// gauge is available again.
func (wp *WorkerPool) sendNotificationsForGauge(ctx context.Context, gaugeID int64) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_gauge_mapping sgm ON sgm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sgm.gauge_id = ?", gaugeID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("error fetching subscriptions for gauge %d: %v", gaugeID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	var gauge model.Gauge
	gaugeLabel := fmt.Sprintf("%d", gaugeID)
	if err := wp.db.WithContext(ctx).
		Select("identifier").
		First(&gauge, gaugeID).Error; err != nil {
		log.Printf("error fetching gauge %d: %v", gaugeID, err)
	} else if gauge.Identifier != "" {
		gaugeLabel = gauge.Identifier
	}

	log.Printf("sending %d notifications for gauge %s", len(subscriptions), gaugeLabel)

	message := fmt.Sprintf("Gauge %s is available again", gaugeLabel)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("subscription for endpoint %s is expired, deleting", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
