package main

import (
	"log"
	"net/http"
	"strings"

	"civic-complaints-portal/pkg/cache"
	"civic-complaints-portal/pkg/config"
	"civic-complaints-portal/pkg/database"
	"civic-complaints-portal/pkg/middleware"
	"civic-complaints-portal/pkg/queue"
	"civic-complaints-portal/pkg/response"
	"civic-complaints-portal/pkg/token"
	"civic-complaints-portal/services/complaint-service/models"
)

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
	if err := db.AutoMigrate(&models.Complaint{}, &models.ComplaintUpvote{}); err != nil {
		log.Fatalf("[ERROR] Migration failed: %v", err)
	}
	log.Println("[OK] Migration success!")

	if cfg.RedisAddr != "" {
		store, err = cache.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("[ERROR] Failed to connect to Redis: %v", err)
		}
		log.Println("[OK] Connected to Redis")
	}

	conn, ch, err := queue.ConnectRabbitMQ(cfg.AmqpURI)
	if err != nil {
		log.Fatalf("[ERROR] Failed to connect to RabbitMQ: %v", err)
	}
	defer conn.Close()
	defer ch.Close()
	notifier = &amqpPublisher{ch: ch}
	log.Println("[OK] Connected to RabbitMQ")

	tokens := token.NewService(cfg.JWTSecret, cfg.TokenTTL)
	authn := middleware.NewAuthenticator(tokens, cfg.CookieName)

	middleware.RegisterMetrics()
	chain := func(h http.HandlerFunc) http.Handler {
		return middleware.TraceMiddleware(middleware.MetricsMiddleware(middleware.LoggerMiddleware(h)))
	}

	citizenOnly := func(h http.HandlerFunc) http.HandlerFunc {
		return authn.Middleware(middleware.RequireRole(token.RoleCitizen)(h))
	}
	adminOnly := func(h http.HandlerFunc) http.HandlerFunc {
		return authn.Middleware(middleware.RequireRole(token.RoleAdmin)(h))
	}

	http.Handle("/api/complaints", chain(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			listComplaintsHandler(w, r)
		case http.MethodPost:
			citizenOnly(fileComplaintHandler)(w, r)
		default:
			response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		}
	}))
	http.Handle("/api/complaints/top", chain(topComplaintsHandler))

	// Detail routes: /api/complaints/{id-or-reference}/{action}
	http.Handle("/api/complaints/", chain(func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/complaints/")
		parts := strings.SplitN(rest, "/", 2)
		id := parts[0]
		action := ""
		if len(parts) == 2 {
			action = parts[1]
		}
		if id == "" {
			response.Error(w, http.StatusBadRequest, "Missing complaint ID", "")
			return
		}

		switch {
		case action == "track" && r.Method == http.MethodGet:
			trackComplaintHandler(w, r, id)
		case action == "upvote" && r.Method == http.MethodPost:
			citizenOnly(func(w http.ResponseWriter, r *http.Request) {
				upvoteComplaintHandler(w, r, id)
			})(w, r)
		case action == "status" && r.Method == http.MethodPut:
			adminOnly(func(w http.ResponseWriter, r *http.Request) {
				updateStatusHandler(w, r, id)
			})(w, r)
		case action == "" && r.Method == http.MethodGet:
			trackComplaintHandler(w, r, id)
		default:
			response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		}
	}))

	http.HandleFunc("/health", healthCheckHandler)
	http.Handle("/metrics", middleware.GetMetricsHandler())

	log.Printf("[INFO] Complaint Service running on %s", cfg.ComplaintAddr)
	if err := http.ListenAndServe(cfg.ComplaintAddr, nil); err != nil {
		log.Fatalf("[ERROR] Server failed: %v", err)
	}
}
