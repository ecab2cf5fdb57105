// Command smoke exercises every collector operation once against live
// services and prints what it finds. It writes to a separate collection.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lunarcollector/internal/app"
	"lunarcollector/internal/config"
	"lunarcollector/internal/record"
	"lunarcollector/internal/store"
)

func main() {
	var configPath string
	var collection string
	var symbolsFlag string

	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json or config.yaml (optional)")
	flag.StringVar(&collection, "collection", "lunarcrush_test", "collection to write to")
	flag.StringVar(&symbolsFlag, "symbols", "BTC,ETH", "symbols to look up after saving")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil { log.Fatalf("config: %v", err) }
	cfg.Mongo.Collection = collection

	logger, err := app.NewLogger(cfg.Logging)
	if err != nil { log.Fatalf("logger: %v", err) }
	a, err := app.New(cfg, logger)
	if err != nil { log.Fatalf("wiring: %v", err) }

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed := run(ctx, a, splitCSV(symbolsFlag))

	log.Println("cleaning up")
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		log.Printf("close: %v", err)
	} else {
		log.Println("connection closed")
	}
	if failed {
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, symbols []string) (failed bool) {
	log.Println("1. ensuring collection")
	if err := a.Store.EnsureReady(ctx); err != nil {
		log.Printf("ensure: %v", err)
		return true
	}

	log.Println("2. fetching snapshot")
	env, err := a.Client.FetchAll(ctx)
	if err != nil {
		log.Printf("fetch: %v", err)
		return true
	}
	log.Printf("fetched %d tokens in category %q", len(env.Data), env.Category)
	if len(env.Data) > 0 {
		dump("first token", env.Data[0].Fields)
	}

	recs := record.Normalize(env, a.Shape)
	log.Println("3. saving")
	res, err := a.Store.UpsertBatch(ctx, recs)
	if err != nil {
		log.Printf("save: %v", err)
		return true
	}
	log.Printf("processed %d records (upserted=%d modified=%d)", res.Attempted, res.Upserted, res.Modified)

	log.Println("4. reading latest records")
	for _, sym := range symbols {
		r, err := a.Store.LatestFor(ctx, sym)
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("%s: no record", sym)
			continue
		}
		if err != nil {
			log.Printf("latest %s: %v", sym, err)
			return true
		}
		dump(sym, r)
	}

	log.Println("5. saving twice more on the same day")
	for i := 0; i < 2; i++ {
		if _, err := a.Store.UpsertBatch(ctx, recs); err != nil {
			log.Printf("save: %v", err)
			return true
		}
		time.Sleep(time.Second)
	}
	if len(symbols) > 0 {
		r, err := a.Store.ForDay(ctx, symbols[0], time.Now())
		if err != nil {
			log.Printf("%s today: %v", symbols[0], err)
			return true
		}
		log.Printf("%s updateCount today: %d", symbols[0], r.UpdateCount)
	}
	return false
}

func dump(label string, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("%s: %v", label, err)
		return
	}
	fmt.Printf("%s:\n%s\n", label, b)
}
