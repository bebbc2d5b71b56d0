package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/realtime-auction/internal/admission"
	"github.com/iliyamo/realtime-auction/internal/catalogue"
	"github.com/iliyamo/realtime-auction/internal/coldstore"
	"github.com/iliyamo/realtime-auction/internal/config"
	"github.com/iliyamo/realtime-auction/internal/database"
	"github.com/iliyamo/realtime-auction/internal/extension"
	"github.com/iliyamo/realtime-auction/internal/fanout"
	"github.com/iliyamo/realtime-auction/internal/finalize"
	"github.com/iliyamo/realtime-auction/internal/gateway"
	"github.com/iliyamo/realtime-auction/internal/hotstore"
	"github.com/iliyamo/realtime-auction/internal/identity"
	"github.com/iliyamo/realtime-auction/internal/jobs"
	"github.com/iliyamo/realtime-auction/internal/middleware"
	"github.com/iliyamo/realtime-auction/internal/model"
	"github.com/iliyamo/realtime-auction/internal/obs"
)

func main() {
	// Mirrors the teacher's go.mod carrying godotenv for local development;
	// a missing .env in a real deployment is not fatal, env vars just come
	// from the process environment instead.
	_ = godotenv.Load()

	cfg := config.Load()

	logger := obs.NewLogger(cfg.Env)
	log := obs.For(logger, "main")

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("mysql connect failed")
	}
	defer db.Close()

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.WithError(err).Fatal("redis connect failed")
	}
	defer rdb.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := jobs.NewRunner(cfg.RabbitMQURL, obs.For(logger, "jobs"))
	runner.SetFinalizeMaxAttempts(cfg.FinalizationMaxAttempts)
	if err := runner.Connect(ctx); err != nil {
		log.WithError(err).Fatal("rabbitmq connect failed")
	}
	defer runner.Close()

	auctions := coldstore.NewAuctionRepo(db)
	bids := coldstore.NewBidRepo(db)
	hot := hotstore.New(rdb)
	bus := fanout.New(rdb, obs.For(logger, "fanout"))

	registerJobHandlers(runner, auctions, bids)

	coordinator := finalize.New(hot, auctions, runner, bus, 10*time.Second, obs.For(logger, "finalize"))
	if err := coordinator.Recover(ctx, cfg.Retention); err != nil {
		log.WithError(err).Error("finalize: recover pass failed")
	}
	go coordinator.Watch(ctx)
	go coordinator.Sweep(ctx)

	rateLimitWindow := time.Second
	if cfg.BidRateLimitPerSec > 1 {
		rateLimitWindow = time.Second / time.Duration(cfg.BidRateLimitPerSec)
	}
	admissionSvc := admission.New(hot, auctions, runner, bus, coordinator, admission.Config{
		RateLimitWindow: rateLimitWindow,
		Retention:       cfg.Retention,
		Policy:          extension.NewPolicy(cfg.ExtensionThreshold, cfg.ExtensionDuration),
	}, obs.For(logger, "admission"))

	hub := gateway.New(cfg.JWTSecret, admissionSvc, bus, obs.For(logger, "gateway"))
	go hub.Run(ctx)

	catalogueHandler := catalogue.NewHandler(auctions, hot, coordinator, cfg.Retention)
	catalogueLimiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	catalogueCache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	e := echo.New()
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/ws", hub.Handle)
	catalogue.Register(e, catalogueHandler, catalogueLimiter, catalogueCache)
	identity.Register(e, identity.NewHandler(identity.NewStore(), cfg.JWTSecret))

	go func() {
		if err := runner.Start(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("job runner stopped")
		}
	}()

	addr := ":" + cfg.Port
	go func() {
		log.WithField("addr", addr).Info("listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = e.Shutdown(shutdownCtx)
}

// registerJobHandlers wires the three C8 queues to the cold-store write-down
// each performs, mirroring the teacher's StartBookingConsumer handler
// (internal/queue/consumer.go) generalized across queues. Handlers are
// registered after Connect and before Start so RegisterHandler's queue-name
// map is complete by the time Start launches one consumer goroutine per queue.
func registerJobHandlers(runner *jobs.Runner, auctions *coldstore.AuctionRepo, bids *coldstore.BidRepo) {
	runner.RegisterHandler(jobs.QueuePersistBid, func(ctx context.Context, raw json.RawMessage) error {
		var p jobs.PersistBidPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		return bids.Insert(ctx, &model.Bid{
			BidID:       p.BidID,
			AuctionID:   p.AuctionID,
			BidderID:    p.BidderID,
			Amount:      p.Amount,
			BidTime:     p.ServerTime,
			PreviousBid: p.PreviousBid,
			IsWinning:   true,
			IPAddress:   p.IPAddress,
			UserAgent:   p.UserAgent,
		})
	})

	runner.RegisterHandler(jobs.QueueUpdateAuctionMirror, func(ctx context.Context, raw json.RawMessage) error {
		var p jobs.UpdateMirrorPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		return auctions.UpdateMirror(ctx, coldstore.MirrorInput{
			AuctionID:       p.AuctionID,
			CurrentBid:      p.CurrentBid,
			HighestBidderID: p.HighestBidderID,
			TotalBids:       p.TotalBids,
			EndTime:         p.EndTime,
		}, p.IsFinalize)
	})

	runner.RegisterHandler(jobs.QueueFinalizeAuction, func(ctx context.Context, raw json.RawMessage) error {
		var p jobs.FinalizePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		return auctions.UpdateMirror(ctx, coldstore.MirrorInput{
			AuctionID:       p.AuctionID,
			CurrentBid:      p.CurrentBid,
			HighestBidderID: p.HighestBidderID,
			TotalBids:       p.TotalBids,
		}, true)
	})
}
