package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/service-desk/internal/auth"
	"github.com/ukydev/service-desk/internal/client"
	"github.com/ukydev/service-desk/internal/config"
	"github.com/ukydev/service-desk/internal/db"
	"github.com/ukydev/service-desk/internal/desk"
	"github.com/ukydev/service-desk/internal/handlers"
	"github.com/ukydev/service-desk/internal/metrics"
	"github.com/ukydev/service-desk/internal/middleware"
	"github.com/ukydev/service-desk/internal/models"
	"github.com/ukydev/service-desk/internal/notify"
)

// server holds everything the router needs.
type server struct {
	desk    handlers.DeskService
	login   handlers.LoginBackend
	auth    *auth.Service
	metrics *metrics.Registry
	limiter *middleware.RateLimitMiddleware
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) routes() http.Handler {
	am := middleware.NewAuthMiddleware(s.auth)
	authHandler := handlers.NewAuthHandler(s.auth, s.login)
	svc := handlers.NewServiceHandler(s.desk)

	guard := func(perm string, h http.HandlerFunc) http.Handler {
		return am.RequirePermission(perm)(h)
	}
	write := func(perm string, h http.HandlerFunc) http.Handler {
		return s.limiter.RateLimit(guard(perm, h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", s.metrics.Handler())

	mux.Handle("/api/auth/login", s.limiter.RateLimit(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("/api/auth/profile", authHandler.GetProfile)
	mux.HandleFunc("/api/auth/logout", authHandler.Logout)

	mux.Handle("/api/completed-services", guard(models.PermViewServices, svc.List))
	mux.Handle("/api/completed-services/{id}", guard(models.PermViewServices, svc.Get))
	mux.Handle("/api/completed-services/{id}/history", guard(models.PermViewServices, svc.History))
	mux.Handle("/api/completed-services/{id}/invoice", write(models.PermGenerateInvoice, svc.GenerateInvoice))
	mux.Handle("/api/completed-services/{id}/payment", write(models.PermProcessPayment, svc.Payment))
	mux.Handle("/api/completed-services/{id}/delivery", write(models.PermProcessDelivery, svc.Delivery))

	return middleware.RequestLogger(am.Authenticate(mux))
}

func run(ctx context.Context, cfg *config.Config) error {
	reg := metrics.NewRegistry()
	api := client.New(cfg.Backend.URL, cfg.Endpoints, cfg.Backend.Timeout, client.WithObserver(reg.ObserveBackend))

	notifiers := notify.Multi{notify.LogNotifier{}}
	opts := []desk.Option{desk.WithMetrics(reg)}

	if cfg.Mongo.URI != "" {
		mc, err := db.ConnectMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			return err
		}
		defer mc.Disconnect(context.Background())

		journal := &db.MongoJournal{Collection: mc.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)}
		if err := journal.EnsureIndexes(ctx); err != nil {
			log.WithError(err).Warn("Failed to create journal indexes")
		}
		opts = append(opts, desk.WithJournal(journal))
		log.WithFields(log.Fields{
			"database":   cfg.Mongo.Database,
			"collection": cfg.Mongo.Collection,
		}).Info("Action journal enabled")
	}

	if cfg.MQTT.Broker != "" {
		mq, disconnect, err := notify.NewMQTTNotifier(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic)
		if err != nil {
			return err
		}
		defer disconnect()
		notifiers = append(notifiers, mq)
	}
	opts = append(opts, desk.WithNotifier(notifiers))

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if !authService.Verifies() {
		log.Warn("JWT_SECRET is not set; backend tokens are accepted without signature verification")
	}

	limiter := middleware.NewRateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	limiter.OnLimited = func(*http.Request) { reg.RateLimited.Inc() }
	limiter.TrustProxy = cfg.RateLimit.TrustProxy
	go limiter.Cleanup(ctx, 5*time.Minute)

	s := &server{
		desk:    desk.New(api, opts...),
		login:   api,
		auth:    authService,
		metrics: reg,
		limiter: limiter,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Server shutdown failed")
		}
	}()

	log.WithFields(log.Fields{
		"port":    cfg.Server.Port,
		"backend": cfg.Backend.URL,
		"config":  cfg.ConfigPath,
	}).Info("Service desk listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	cfg.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("Service desk stopped")
	}
}
