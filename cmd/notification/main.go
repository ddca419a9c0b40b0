// 通知サービスのエントリポイント。
// ロール宛て・ユーザー宛ての通知を保存し、受信者ごとの一覧取得と既読管理を提供する。
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/nao1215/notifyhub/internal/config"
	"github.com/nao1215/notifyhub/internal/notification"
	"github.com/nao1215/notifyhub/internal/notification/cassandrastore"
	"github.com/nao1215/notifyhub/internal/notification/mongostore"
	"github.com/nao1215/notifyhub/pkg/httpclient"
	"github.com/nao1215/notifyhub/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("通知サービスの起動に失敗: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Service: "notification",
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		File:    cfg.LogFile,
	})
	if err != nil {
		return fmt.Errorf("ロガーの初期化に失敗: %w", err)
	}

	store, pinger, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var publisher notification.EventPublisher
	if cfg.EventStoreURL != "" {
		publisher = notification.NewEventStorePublisher(httpclient.New(cfg.EventStoreURL))
	} else {
		logger.Info("EVENTSTORE_URLが未設定のためイベントは送信しません")
	}

	service := notification.NewService(
		notification.NewJWTClaimsReader(cfg.JWTSecret),
		notification.NewBreakerStore(store, notification.BreakerSettings{
			Name:        cfg.StoreBackend + "-store",
			MaxFailures: cfg.BreakerMaxFailures,
			OpenTimeout: cfg.BreakerOpenTimeout,
		}, logger),
		notification.Options{
			Scope:                notification.Scope{TenantScoped: cfg.TenantScoped},
			EmptyListNotFound:    cfg.EmptyListNotFound,
			EnforceGetVisibility: cfg.EnforceGetVisibility,
			MaxCASAttempts:       cfg.MaxCASAttempts,
			Publisher:            publisher,
			Logger:               logger,
		},
	)

	server := notification.NewServer(notification.ServerConfig{
		Port:           cfg.Port,
		AllowedOrigins: cfg.AllowedOrigins,
		Pinger:         pinger,
	}, service, logger)
	return server.Run(ctx)
}

// openStore は設定されたバックエンドのストアを開く。
func openStore(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (notification.Store, notification.Pinger, func(), error) {
	logger = logger.WithField("backend", cfg.StoreBackend)

	switch cfg.StoreBackend {
	case config.BackendMongo:
		store, err := mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("MongoDBストアの初期化に失敗: %w", err)
		}
		return store, store, func() {
			if err := store.Close(context.WithoutCancel(ctx)); err != nil {
				logger.WithError(err).Warn("MongoDBの切断に失敗しました")
			}
		}, nil
	case config.BackendCassandra:
		store, err := cassandrastore.Open(ctx, cassandrastore.Config{
			Hosts:    cfg.CassandraHosts,
			Keyspace: cfg.CassandraKeyspace,
		}, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("Cassandraストアの初期化に失敗: %w", err)
		}
		return store, store, store.Close, nil
	default:
		store, err := notification.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("SQLiteストアの初期化に失敗: %w", err)
		}
		return store, store, func() {
			if err := store.Close(); err != nil {
				logger.WithError(err).Warn("SQLiteの切断に失敗しました")
			}
		}, nil
	}
}
