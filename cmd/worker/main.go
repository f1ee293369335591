package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"app/internal/config"
	"app/internal/events"
	"app/internal/infra/db"
	"app/internal/infra/queue"
	infraRepo "app/internal/infra/repository"
	"app/internal/jobqueue"
	"app/internal/logging"
	"app/internal/usecase"
	"app/internal/worker"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// 遅延ジョブ（自動キャンセル・自動受取確認）を処理するワーカープロセス。
// APIと同じキューを見るので複数台動かしても二重処理しない。
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.New(cfg.LogLevel)

	gormDB, err := db.Connect(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to connect database")
	}

	rdb := queue.NewClient(cfg.RedisAddr)
	jobQueue := queue.NewRedisQueue(rdb)
	scheduler := jobqueue.NewScheduler(jobQueue)

	var pub events.Publisher = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.KafkaBrokers, log)
	}
	defer pub.Close()

	txManager := infraRepo.NewTxManagerGorm(gormDB)
	ledger := usecase.NewStockLedger()
	fulfillUC := usecase.NewFulfillmentUsecase(txManager, ledger, scheduler, pub, log, cfg.AutoConfirmAfter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.WorkerCount; i++ {
		w := worker.New(jobQueue, fulfillUC, log, cfg.WorkerPollInterval, cfg.JobMaxAttempts)
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	log.WithField("workers", cfg.WorkerCount).Info("job workers started")

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.WithError(err).Fatal("worker exited")
	}
}
