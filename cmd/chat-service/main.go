package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/sonyflake"
	"go.uber.org/zap"

	"github.com/vietbevis/clothes-shop-chat/internal/auth"
	"github.com/vietbevis/clothes-shop-chat/internal/broker"
	"github.com/vietbevis/clothes-shop-chat/internal/config"
	"github.com/vietbevis/clothes-shop-chat/internal/db"
	"github.com/vietbevis/clothes-shop-chat/internal/gateway"
	"github.com/vietbevis/clothes-shop-chat/internal/hub"
	"github.com/vietbevis/clothes-shop-chat/internal/metrics"
	"github.com/vietbevis/clothes-shop-chat/internal/repo"
	"github.com/vietbevis/clothes-shop-chat/internal/server"
	"github.com/vietbevis/clothes-shop-chat/internal/service"
	"github.com/vietbevis/clothes-shop-chat/internal/store"
)

var (
	// Version is injected via -ldflags "-X main.Version=..."
	Version = "dev"
)

func main() {
	var cfgPaths string
	flag.StringVar(&cfgPaths, "c", "./config.yml", "config file path (supports: a.yml,b.yml)")
	flag.Parse()

	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load(cfgPaths)
	if err != nil {
		log.Fatal("load config failed", zap.Error(err))
	}
	log.Info("chat-service starting", zap.String("version", Version), zap.String("addr", cfg.HTTP.Addr))

	metrics.Register()

	mysql, err := db.Open(db.Options{
		DSN:          cfg.MySQL.DSN,
		MaxOpenConns: cfg.MySQL.MaxOpenConns,
		MaxIdleConns: cfg.MySQL.MaxIdleConns,
		ConnMaxLife:  cfg.MySQL.ConnMaxLife.Std(),
		ConnMaxIdle:  cfg.MySQL.ConnMaxIdle.Std(),
	})
	if err != nil {
		log.Fatal("mysql init failed", zap.Error(err))
	}
	defer mysql.Close()

	schemaCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = repo.EnsureSchema(schemaCtx, mysql.DB)
	cancel()
	if err != nil {
		log.Fatal("schema bootstrap failed", zap.Error(err))
	}

	rds, err := store.New(store.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		Database: cfg.Redis.Database,
	})
	if err != nil {
		log.Fatal("redis init failed", zap.Error(err))
	}
	defer rds.Close()

	sessions := &auth.SessionStore{
		RedisPrefix: cfg.Auth.Token.RedisPrefix,
		TTLDays:     cfg.Auth.Token.TTLDays,
		Store:       rds,
	}
	verifier := &auth.Verifier{Secret: cfg.Auth.Token.Secret, Sessions: sessions}

	sf := sonyflake.NewSonyflake(sonyflake.Settings{})
	if sf == nil {
		log.Fatal("sonyflake init failed")
	}

	brokerCfg := broker.Settings{
		NameServer:     cfg.RocketMQ.NameServer,
		Topic:          cfg.RocketMQ.Topic,
		Tag:            cfg.RocketMQ.Tag,
		ProducerGroup:  cfg.RocketMQ.ProducerGroup,
		ConsumerGroup:  cfg.RocketMQ.ConsumerGroup,
		ConnectRetries: cfg.RocketMQ.ConnectRetries,
		ConnectBackoff: cfg.RocketMQ.ConnectBackoff.Std(),
	}
	prod, err := broker.NewProducer(brokerCfg, log)
	if err != nil {
		log.Fatal("rocketmq producer init failed", zap.Error(err))
	}
	defer prod.Close()

	msgRepo := repo.NewMessageRepo(mysql.DB)
	userRepo := repo.NewUserRepo(mysql.DB)
	chat := service.NewChatService(msgRepo, userRepo, prod, sf, cfg.Timeout.Std(), log)

	h := hub.New()
	gw := gateway.New(h, verifier, sf, gateway.Options{
		TokenHeader:       cfg.Auth.Token.Header,
		TokenBearerPrefix: cfg.Auth.Token.BearerPrefix,
		TokenQueryKey:     cfg.Auth.Token.QueryKey,
		WriteTimeout:      cfg.WS.WriteTimeout.Std(),
		PingInterval:      cfg.WS.PingInterval.Std(),
		OutQueue:          cfg.WS.OutQueue,
	}, log)

	cons, err := broker.NewConsumer(brokerCfg, gw, rds, cfg.Dedupe.TTL.Std(), log)
	if err != nil {
		log.Fatal("rocketmq consumer init failed", zap.Error(err))
	}
	if err := cons.Start(); err != nil {
		log.Fatal("rocketmq consumer start failed", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", gw.ServeWS)

	api := server.New(chat, server.PageDefaults{
		DefaultLimit: cfg.Page.DefaultLimit,
		MaxLimit:     cfg.Page.MaxLimit,
	}, log)
	api.Register(mux)

	handler := auth.Wrap(auth.Config{
		Header:       cfg.Auth.Token.Header,
		BearerPrefix: cfg.Auth.Token.BearerPrefix,
		QueryKey:     cfg.Auth.Token.QueryKey,
		PublicPaths:  cfg.Auth.PublicPaths,
	}, verifier, mux)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 2 * time.Second,
	}
	go func() {
		log.Info("chat-service listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	_ = srv.Shutdown(shutCtx)
	cancel()
	_ = cons.Shutdown()
	log.Info("chat-service stopped")
}
