package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/koopa0/system-design/14-party-relay/internal/config"
	"github.com/koopa0/system-design/14-party-relay/internal/limiter"
	"github.com/koopa0/system-design/14-party-relay/internal/metrics"
	"github.com/koopa0/system-design/14-party-relay/internal/relay"
	"github.com/koopa0/system-design/14-party-relay/internal/room"
	"github.com/koopa0/system-design/14-party-relay/pkg/clock"
	"github.com/koopa0/system-design/14-party-relay/pkg/logger"
)

func main() {
	// 解析命令行參數；非零值覆蓋設定檔
	var (
		configPath = flag.String("config", "", "設定檔路徑 (YAML)")
		port       = flag.Int("port", 0, "服務器端口")
		logLevel   = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// 日誌還沒建好，先用預設的
		logger.New(os.Stderr, "info", "text").Error("載入設定失敗", "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	log := logger.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	m := metrics.New()

	// 傳輸層
	hub := relay.NewHub(relay.HubConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ReadLimit:      cfg.Transport.ReadLimit,
		SendBuffer:     cfg.Transport.SendBuffer,
		WriteWait:      cfg.Transport.WriteWait,
		PongWait:       cfg.Transport.PongWait,
		PingPeriod:     cfg.Transport.PingPeriod,
		FrameRate:      cfg.Transport.FrameRate,
		FrameBurst:     cfg.Transport.FrameBurst,
		ReadBuffer:     cfg.Transport.ReadBuffer,
		WriteBuffer:    cfg.Transport.WriteBuffer,
	}, log, relay.WithConnObserver(m))

	// 房間目錄與回合引擎
	dir := room.NewDirectory(room.Config{
		MaxPlayers:    cfg.Rooms.MaxPlayers,
		IdleTTL:       cfg.Rooms.IdleTTL,
		SweepInterval: cfg.Rooms.SweepInterval,
		RevealDelay:   cfg.Rooms.RevealDelay,
		CodeAttempts:  cfg.Rooms.CodeAttempts,
	}, hub, log, room.WithObserver(m))
	rounds := room.NewRoundEngine(dir)

	limits := make(map[string]limiter.Rule, len(cfg.Limits))
	for action, l := range cfg.Limits {
		limits[action] = l.Rule()
	}
	relayer := relay.New(dir, rounds, limiter.New(clock.New()), limits, hub, log,
		relay.WithActionRecorder(m))
	hub.Attach(relayer)

	handler := relay.NewHandler(dir, hub, m.Handler(), cfg.Server.AllowedOrigins, log)

	// 背景回收閒置房間
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		dir.Run(sweepCtx)
	}()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("派對遊戲中繼服務器啟動",
			"addr", server.Addr,
			"log_level", cfg.Log.Level,
			"log_format", cfg.Log.Format,
			"max_players", cfg.Rooms.MaxPlayers)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("服務器啟動失敗", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("收到關閉信號，開始優雅關閉...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接受新的 HTTP 請求；已升級的 WebSocket 不受影響
	if err := server.Shutdown(ctx); err != nil {
		log.Error("服務器關閉失敗", "error", err)
	}

	// 先通知所有房間，再關閉連線
	relayer.Shutdown()

	stopSweep()
	<-sweepDone
	dir.Close()

	hub.Stop()

	log.Info("服務器已關閉")
}
