package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/go-redis/cache/v8"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vmaslov/brokerage/internal/account"
	"github.com/vmaslov/brokerage/internal/commission"
	"github.com/vmaslov/brokerage/internal/config"
	"github.com/vmaslov/brokerage/internal/event"
	"github.com/vmaslov/brokerage/internal/ledger"
	"github.com/vmaslov/brokerage/internal/model"
	"github.com/vmaslov/brokerage/internal/quote"
	"github.com/vmaslov/brokerage/internal/repository"
	"github.com/vmaslov/brokerage/internal/trigger"
)

func defaultSymbols() []model.Symbol {
	lot := decimal.RequireFromString("0.01")
	contract := decimal.NewFromInt(100000)
	return []model.Symbol{
		{Title: "EURUSD", ContractSize: contract, QuoteCurrency: "USD", LotStep: lot,
			CommissionPerLot: decimal.NewFromInt(7), SwapLongPerLot: decimal.RequireFromString("-8.4"),
			SwapShortPerLot: decimal.RequireFromString("2.1")},
		{Title: "GBPUSD", ContractSize: contract, QuoteCurrency: "USD", LotStep: lot,
			CommissionPerLot: decimal.NewFromInt(7), SwapLongPerLot: decimal.RequireFromString("-6.2"),
			SwapShortPerLot: decimal.RequireFromString("1.3")},
		{Title: "USDJPY", ContractSize: contract, QuoteCurrency: "JPY", LotStep: lot,
			CommissionPerLot: decimal.NewFromInt(7), SwapLongPerLot: decimal.RequireFromString("4.5"),
			SwapShortPerLot: decimal.RequireFromString("-11.7")},
	}
}

func main() {
	// Configuration
	cfg := new(config.Config)
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("%v", err)
	}
	threshold, err := decimal.NewFromString(cfg.MarginCallLevel)
	if err != nil {
		log.Fatalf("margin call level: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres
	url := fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		cfg.UsernamePostgres, cfg.PasswordPostgres, cfg.HostPostgres, cfg.PortPostgres, cfg.DBNamePostgres)
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer func(conn *pgx.Conn) {
		if err = conn.Close(context.Background()); err != nil {
			log.Error(err)
		}
	}(conn)
	rep := repository.NewPostgres(conn)

	// Redis quote cache
	hostAndPort := fmt.Sprint(cfg.HostRedisCache, ":", cfg.PortRedisCache)
	ring := redis.NewRing(&redis.RingOptions{Addrs: map[string]string{cfg.ServerRedisCache: hostAndPort}})
	quotes := repository.NewCache(cache.New(&cache.Options{Redis: ring}),
		time.Duration(cfg.QuoteTTLSeconds)*time.Second)

	// Kafka events
	events := event.NewKafka(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic)
	defer func() {
		if err = events.Close(); err != nil {
			log.Error(err)
		}
	}()

	catalog := quote.NewCatalog(defaultSymbols())
	rates := quote.NewRates(nil)

	engine := commission.NewEngine(rep, catalog, events, cfg.CurrencyExponent)
	aggregator := account.NewAggregator(rep, rep, quotes, catalog, rates)
	book := ledger.NewLedger(rep, rep, quotes, catalog, rates, aggregator, engine, events, cfg.UpdateRetries)
	evaluator := trigger.NewEvaluator(rep, quotes, book, book)
	monitor := account.NewMonitor(aggregator, book, events, threshold,
		time.Duration(cfg.MonitorIntervalMSec)*time.Millisecond)

	// Quote stream
	go quote.NewFeed(cfg.QuoteFeedURL, quotes).Listen(ctx)

	// Pending orders and protections
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.TriggerIntervalMSec) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := evaluator.Evaluate(ctx); err != nil {
					log.Error(err)
				}
				if _, err := evaluator.SweepProtections(ctx); err != nil {
					log.Error(err)
				}
			}
		}
	}()

	// Margin calls
	go monitor.Run(ctx)

	// Overnight financing
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.SwapIntervalHours) * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := book.AccrueSwap(ctx); err != nil {
					log.Error(err)
				}
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
