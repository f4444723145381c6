package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/leadchat/internal/config"
	"github.com/suPer8Hu/leadchat/internal/db"
	"github.com/suPer8Hu/leadchat/internal/store/rabbitmq"
	"github.com/suPer8Hu/leadchat/internal/widget"
)

const (
	retryHeader = "x-retry-count"
	maxAttempts = 3
	retryDelay  = 5 * time.Second
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

type eventWriter interface {
	InsertEvent(ctx context.Context, e *widget.Event) error
}

// retrier parks a delivery on the retry queue; it comes back after its TTL.
type retrier func(ctx context.Context, d amqp.Delivery, attempt int) error

func attempts(d amqp.Delivery) int {
	switch v := d.Headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func handleDelivery(ctx context.Context, workerID int, w eventWriter, retry retrier, d amqp.Delivery) {
	e, err := rabbitmq.DecodeEvent(d.Body)
	if err != nil {
		log.Printf("worker=%d bad message: %v", workerID, err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	if err := w.InsertEvent(ctx, e); err != nil {
		n := attempts(d) + 1
		log.Printf("worker=%d event type=%s attempt=%d failed cost=%s err=%v", workerID, e.EventType, n, time.Since(start), err)
		if n < maxAttempts && retry != nil {
			rerr := retry(ctx, d, n)
			if rerr == nil {
				_ = d.Ack(false)
				return
			}
			log.Printf("worker=%d retry publish failed err=%v", workerID, rerr)
		}
		_ = d.Nack(false, false)
		return
	}

	if err := d.Ack(false); err != nil {
		log.Printf("worker=%d ack failed type=%s err=%v", workerID, e.EventType, err)
	}
}

func main() {
	cfg := config.Load()
	if cfg.RabbitURL == "" {
		log.Fatalf("RABBIT_URL is required for the worker")
	}

	gdb := db.Connect(cfg.DBDSN)
	if err := widget.Migrate(gdb); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	repo := widget.NewRepo(gdb)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	// amqp channels are not safe for concurrent publishing
	var pubMu sync.Mutex
	retry := func(ctx context.Context, d amqp.Delivery, attempt int) error {
		pubMu.Lock()
		defer pubMu.Unlock()
		return ch.PublishWithContext(ctx, "", cfg.RabbitQueue+".retry", false, false, amqp.Publishing{
			ContentType:  d.ContentType,
			DeliveryMode: amqp.Persistent,
			Type:         d.Type,
			Body:         d.Body,
			Expiration:   strconv.FormatInt(retryDelay.Milliseconds(), 10),
			Headers:      amqp.Table{retryHeader: int32(attempt)},
			Timestamp:    time.Now(),
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				handleDelivery(ctx, workerID, repo, retry, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed, shutting down")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}
