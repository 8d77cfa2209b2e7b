package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"civic-complaints-portal/pkg/config"
	"civic-complaints-portal/pkg/database"
	"civic-complaints-portal/pkg/queue"

	"go.mongodb.org/mongo-driver/mongo"
)

const notificationQueue = "notification_queue"

// notificationEvent is the union of everything published to the
// notification queue; Type discriminates.
type notificationEvent struct {
	Type        string    `json:"type"` // otp_sms, status_update
	Phone       string    `json:"phone,omitempty"`
	Code        string    `json:"code,omitempty"`
	ComplaintID string    `json:"complaint_id,omitempty"`
	Reference   string    `json:"reference,omitempty"`
	CitizenID   string    `json:"citizen_id,omitempty"`
	Status      string    `json:"status,omitempty"`
	SentAt      time.Time `json:"sent_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// deliveryRecord is what lands in the delivery log. The OTP code is
// deliberately not persisted.
type deliveryRecord struct {
	Type        string    `bson:"type"`
	Phone       string    `bson:"phone,omitempty"`
	ComplaintID string    `bson:"complaint_id,omitempty"`
	Reference   string    `bson:"reference,omitempty"`
	CitizenID   string    `bson:"citizen_id,omitempty"`
	Status      string    `bson:"status,omitempty"`
	DeliveredAt time.Time `bson:"delivered_at"`
}

func logDelivery(deliveries *mongo.Collection, rec deliveryRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := deliveries.InsertOne(ctx, rec); err != nil {
		log.Printf("[WARN] Failed to record delivery: %v", err)
	}
}

func handleEvent(deliveries *mongo.Collection, body []byte) {
	var event notificationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("[WARN] Error parsing event: %v", err)
		return
	}

	switch event.Type {
	case "otp_sms":
		// Dev SMS sink; a real SMS provider slots in here.
		log.Printf("[SMS] OTP for %s is %s (valid 10 min)", event.Phone, event.Code)
		logDelivery(deliveries, deliveryRecord{
			Type:        event.Type,
			Phone:       event.Phone,
			DeliveredAt: time.Now(),
		})
	case "status_update":
		log.Printf("[NOTIFY] Complaint %s is now %s", event.Reference, event.Status)
		logDelivery(deliveries, deliveryRecord{
			Type:        event.Type,
			ComplaintID: event.ComplaintID,
			Reference:   event.Reference,
			CitizenID:   event.CitizenID,
			Status:      event.Status,
			DeliveredAt: time.Now(),
		})
	default:
		log.Printf("[WARN] Unknown event type: %q", event.Type)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[ERROR] Invalid configuration: %v", err)
	}

	mongoDB, err := database.ConnectMongo(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatalf("[ERROR] Failed to connect to MongoDB: %v", err)
	}
	deliveries := mongoDB.Collection("deliveries")
	log.Println("[OK] Connected to MongoDB")

	conn, ch, err := queue.ConnectRabbitMQ(cfg.AmqpURI)
	if err != nil {
		log.Fatalf("[ERROR] Failed to connect to RabbitMQ: %v", err)
	}
	defer conn.Close()
	defer ch.Close()
	log.Println("[OK] Connected to RabbitMQ")

	msgs, err := queue.ConsumeMessages(ch, notificationQueue)
	if err != nil {
		log.Fatalf("[ERROR] Failed to consume queue: %v", err)
	}

	go func() {
		for d := range msgs {
			handleEvent(deliveries, d.Body)
		}
	}()

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "UP",
			"service": "notification-service",
		})
	})

	log.Printf("[INFO] Notification Service running on %s, waiting for events in %q", cfg.NotificationAddr, notificationQueue)
	if err := http.ListenAndServe(cfg.NotificationAddr, nil); err != nil {
		log.Fatalf("[ERROR] Server failed: %v", err)
	}
}
