package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

// dlq-inspect выводит содержимое dead-letter очереди webhook-событий.
// Только чтение: события исправляются и переигрываются вручную.
func main() {
	var (
		dsn   string
		limit int
	)

	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: MARKET_POSTGRES_DSN)")
	flag.IntVar(&limit, "limit", 50, "maximum number of entries to print")
	flag.Parse()

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("MARKET_POSTGRES_DSN"))
	}
	if dsn == "" {
		fail("MARKET_POSTGRES_DSN (or -dsn) is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	repo := postgres.NewWebhookDLQRepository(store)

	count, err := repo.Count()
	if err != nil {
		fail("count dlq entries: %v", err)
	}

	entries, err := repo.List(limit)
	if err != nil {
		fail("list dlq entries: %v", err)
	}

	fmt.Printf("webhook dlq: %d entries total, showing %d\n", count, len(entries))
	for _, entry := range entries {
		fmt.Printf("%s  event=%s provider_event=%s type=%s attempts=%d\n",
			entry.CreatedAt.Format(time.RFC3339), entry.EventID, entry.ProviderEventID,
			entry.EventType, entry.Attempts)
		fmt.Printf("    error: %s\n", entry.ErrorMessage)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
