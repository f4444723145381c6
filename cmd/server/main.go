package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suPer8Hu/leadchat/internal/ai"
	"github.com/suPer8Hu/leadchat/internal/chat"
	"github.com/suPer8Hu/leadchat/internal/config"
	"github.com/suPer8Hu/leadchat/internal/db"
	"github.com/suPer8Hu/leadchat/internal/geo"
	"github.com/suPer8Hu/leadchat/internal/httpapi"
	"github.com/suPer8Hu/leadchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/leadchat/internal/models"
	"github.com/suPer8Hu/leadchat/internal/store/rabbitmq"
	"github.com/suPer8Hu/leadchat/internal/store/redisstore"
	"github.com/suPer8Hu/leadchat/internal/widget"
)

const defaultShutdownTimeout = 30 * time.Second

// shutdownTimeout gives in-flight exchanges their full bound to finish.
func shutdownTimeout(exchange time.Duration) time.Duration {
	if exchange <= 0 {
		return defaultShutdownTimeout
	}
	return exchange
}

func main() {
	cfg := config.Load()
	if cfg.OpenAIAPIKey == "" || cfg.OpenAIAssistantID == "" {
		log.Printf("warning: OPENAI_API_KEY or OPENAI_ASSISTANT_ID missing, /chat/exchange will fail")
	}

	gdb := db.Connect(cfg.DBDSN)
	if err := chat.Migrate(gdb); err != nil {
		log.Fatalf("migrate chat: %v", err)
	}
	if err := widget.Migrate(gdb); err != nil {
		log.Fatalf("migrate widget: %v", err)
	}
	if err := gdb.AutoMigrate(&models.User{}); err != nil {
		log.Fatalf("migrate users: %v", err)
	}
	if err := handlers.EnsureUser(context.Background(), gdb, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatalf("ensure admin user: %v", err)
	}

	// redis is optional; without it geo lookups are simply not cached
	var geoCache geo.Cache
	if cfg.RedisAddr != "" {
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rds.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rds.Ping(pingCtx); err != nil {
			log.Printf("redis ping failed addr=%s err=%v, geo cache disabled", cfg.RedisAddr, err)
		} else {
			geoCache = rds
		}
		cancel()
	}

	var events handlers.EventPublisher
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatalf("rabbit publisher: %v", err)
		}
		defer pub.Close()
		events = pub
	}

	svc := chat.NewService(
		chat.NewRepo(gdb),
		ai.NewOpenAIAssistant(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey),
		cfg.OpenAIAssistantID,
		chat.WithPollInterval(cfg.RunPollInterval),
		chat.WithLocator(geo.NewIPAPI(cfg.GeoIPBaseURL, geoCache)),
	)

	r := httpapi.NewRouter(handlers.NewHandler(gdb, cfg, svc, events))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("server listening addr=%s queue=%t", cfg.HTTPAddr, events != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg.ExchangeTimeout))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
