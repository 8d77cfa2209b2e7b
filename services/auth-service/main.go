package main

import (
	"log"
	"net/http"
	"time"

	"civic-complaints-portal/pkg/config"
	"civic-complaints-portal/pkg/database"
	"civic-complaints-portal/pkg/middleware"
	"civic-complaints-portal/pkg/password"
	"civic-complaints-portal/pkg/queue"
	"civic-complaints-portal/pkg/token"
	"civic-complaints-portal/services/auth-service/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

const notificationQueue = "notification_queue"

// smsEvent is what the auth service hands to the notification channel
// for delivery. It is the only place an OTP code leaves this service.
type smsEvent struct {
	Type   string    `json:"type"`
	Phone  string    `json:"phone"`
	Code   string    `json:"code"`
	SentAt time.Time `json:"sent_at"`
}

// queueSMSSender publishes OTP deliveries to RabbitMQ. The consumer
// side decides how (and whether) the SMS actually goes out.
type queueSMSSender struct {
	ch *amqp.Channel
}

func (s *queueSMSSender) Send(phone, code string) error {
	return queue.PublishMessage(s.ch, notificationQueue, smsEvent{
		Type:   "otp_sms",
		Phone:  phone,
		Code:   code,
		SentAt: time.Now(),
	})
}

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		log.Fatalf("[ERROR] Invalid configuration: %v", err)
	}

	db, err = database.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("[ERROR] Failed to connect to database: %v", err)
	}

	log.Println("[INFO] Running Auto Migration...")
	if err := db.AutoMigrate(&models.Citizen{}, &models.Admin{}); err != nil {
		log.Fatalf("[ERROR] Migration failed: %v", err)
	}
	log.Println("[OK] Migration success!")

	conn, ch, err := queue.ConnectRabbitMQ(cfg.AmqpURI)
	if err != nil {
		log.Fatalf("[ERROR] Failed to connect to RabbitMQ: %v", err)
	}
	defer conn.Close()
	defer ch.Close()
	log.Println("[OK] Connected to RabbitMQ")

	tokens = token.NewService(cfg.JWTSecret, cfg.TokenTTL)
	hasher = password.NewHasher(cfg.BcryptCost)
	engine = &otpEngine{
		db:           db,
		sender:       &queueSMSSender{ch: ch},
		ttl:          cfg.OTPTTL,
		resendWindow: cfg.OTPResendWindow,
	}
	authn := middleware.NewAuthenticator(tokens, cfg.CookieName)

	middleware.RegisterMetrics()
	chain := func(h http.HandlerFunc) http.Handler {
		return middleware.TraceMiddleware(middleware.MetricsMiddleware(middleware.LoggerMiddleware(h)))
	}

	http.Handle("/api/citizen/signup", chain(citizenSignupHandler))
	http.Handle("/api/citizen/verify", chain(citizenVerifyHandler))
	http.Handle("/api/citizen/resend-otp", chain(citizenResendHandler))
	http.Handle("/api/citizen/login", chain(citizenLoginHandler))
	http.Handle("/api/citizen/me", chain(authn.Middleware(middleware.RequireRole(token.RoleCitizen)(citizenMeHandler))))
	http.Handle("/api/citizen/profile", chain(authn.Middleware(middleware.RequireRole(token.RoleCitizen)(citizenProfileHandler))))

	http.Handle("/api/admin/signup", chain(adminSignupHandler))
	http.Handle("/api/admin/login", chain(adminLoginHandler))
	http.Handle("/api/admin/me", chain(authn.Middleware(middleware.RequireRole(token.RoleAdmin)(adminMeHandler))))
	http.Handle("/api/admin/profile", chain(authn.Middleware(middleware.RequireRole(token.RoleAdmin)(adminProfileHandler))))

	http.HandleFunc("/health", healthCheckHandler)
	http.Handle("/metrics", middleware.GetMetricsHandler())

	log.Printf("[INFO] Auth Service running on %s", cfg.AuthAddr)
	if err := http.ListenAndServe(cfg.AuthAddr, nil); err != nil {
		log.Fatalf("[ERROR] Server failed: %v", err)
	}
}
