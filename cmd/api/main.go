package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/events"
	"app/internal/handler"
	"app/internal/idempotency"
	"app/internal/infra/db"
	"app/internal/infra/queue"
	infraRepo "app/internal/infra/repository"
	"app/internal/jobqueue"
	"app/internal/logging"
	"app/internal/server"
	"app/internal/usecase"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	//.envは任意（本番は環境変数で渡す）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.New(cfg.LogLevel)

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to connect database")
	}
	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.Address{},
		&model.Store{},
		&model.Product{},
		&model.StoreInventory{},
		&model.StockJournal{},
		&model.Voucher{},
		&model.Order{},
		&model.OrderItem{},
	); err != nil {
		log.WithError(err).Fatal("failed to migrate database")
	}

	//遅延ジョブキュー（Redis ZSET）
	rdb := queue.NewClient(cfg.RedisAddr)
	jobQueue := queue.NewRedisQueue(rdb)
	scheduler := jobqueue.NewScheduler(jobQueue)

	//注文イベント（ブローカー未設定なら何もしない）
	var pub events.Publisher = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.KafkaBrokers, log)
	}
	defer pub.Close()

	//Repository（GORM実装）生成
	txManager := infraRepo.NewTxManagerGorm(gormDB)
	storeRepo := infraRepo.NewStoreGormRepository(gormDB)
	addressRepo := infraRepo.NewAddressGormRepository(gormDB)

	//Usecase生成
	registry := idempotency.New(idempotency.DefaultTTL)
	resolver := usecase.NewNearestStoreResolver(storeRepo, addressRepo)
	ledger := usecase.NewStockLedger()

	checkoutUC := usecase.NewCheckoutUsecase(txManager, registry, resolver, ledger, scheduler, pub, log, cfg.PaymentDeadline)
	fulfillUC := usecase.NewFulfillmentUsecase(txManager, ledger, scheduler, pub, log, cfg.AutoConfirmAfter)
	queryUC := usecase.NewOrderQueryUsecase(txManager)
	paymentUC := usecase.NewPaymentUsecase(fulfillUC, cfg.PaymentServerKey, log)

	//Handler生成
	orderH := handler.NewOrderHandler(checkoutUC, queryUC, fulfillUC)
	adminH := handler.NewAdminOrderHandler(queryUC, fulfillUC)
	paymentH := handler.NewPaymentHandler(paymentUC)

	srv := server.New(cfg, orderH, adminH, paymentH)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("port", cfg.Port).Info("api server starting")
		if err := srv.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}
