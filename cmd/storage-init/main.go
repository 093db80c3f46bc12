package main

import (
	"context"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"calendar-countdown/storage"
	"calendar-countdown/storage/migrations"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		if err := migrate(ctx, dsn); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		log.Info("postgres schema up to date")
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Info("STORAGE_CONNECTION_STRING not set; skipping table and queue setup")
		log.Info("storage init complete")
		return
	}

	table := os.Getenv("EVENTS_TABLE")
	if table == "" {
		table = "Events"
	}
	st, err := storage.New(connStr, table, time.UTC)
	if err != nil {
		log.Fatalf("table client: %v", err)
	}
	if err := st.CreateTable(ctx); err != nil {
		log.Fatalf("create table %s: %v", table, err)
	}
	log.WithField("table", table).Debug("table ready")

	if queue := os.Getenv("ROLL_QUEUE"); queue != "" {
		n, err := storage.NewQueueNotifier(connStr, queue)
		if err != nil {
			log.Fatalf("queue client: %v", err)
		}
		if err := n.CreateQueue(ctx); err != nil {
			log.Fatalf("create queue %s: %v", queue, err)
		}
		log.WithField("queue", queue).Debug("queue ready")
	}

	log.Info("storage init complete")
}

func migrate(ctx context.Context, dsn string) error {
	pool, err := storage.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()
	return migrations.Apply(ctx, pool)
}
