package main

import (
	"time"

	"civic-complaints-portal/pkg/queue"

	amqp "github.com/rabbitmq/amqp091-go"
)

const notificationQueue = "notification_queue"

// statusEvent fans a triage decision out to the notification channel.
type statusEvent struct {
	Type        string    `json:"type"`
	ComplaintID string    `json:"complaint_id"`
	Reference   string    `json:"reference"`
	CitizenID   string    `json:"citizen_id"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// eventPublisher decouples handlers from the broker; tests plug in a
// recorder.
type eventPublisher interface {
	Publish(payload interface{}) error
}

type amqpPublisher struct {
	ch *amqp.Channel
}

func (p *amqpPublisher) Publish(payload interface{}) error {
	return queue.PublishMessage(p.ch, notificationQueue, payload)
}
