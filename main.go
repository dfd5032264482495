package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"arenasync/server"
)

// arenasync 服务端入口：加载配置，启动 WebSocket 接入与权威 Tick 循环
func main() {
	cfg, err := server.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	// 命令行参数优先于环境变量
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "server listen address, e.g. :9080")
	flag.IntVar(&cfg.TickHz, "tickrate", cfg.TickHz, "simulation ticks per second")
	flag.IntVar(&cfg.MaxClients, "max-clients", cfg.MaxClients, "maximum concurrent clients")
	flag.Uint64Var(&cfg.ProtocolID, "protocol", cfg.ProtocolID, "protocol identifier clients must present")
	flag.StringVar(&cfg.Log.File, "log-file", cfg.Log.File, "rolling log file path (empty disables)")
	flag.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level")
	moveSpeed := flag.Float64("movespeed", float64(cfg.MoveSpeed), "player movement speed (units/s)")
	flag.Parse()
	cfg.MoveSpeed = float32(*moveSpeed)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := server.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	// 优雅退出（Ctrl+C）
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(cfg, log)
	if err := srv.Run(ctx); err != nil {
		log.Errorw("server stopped", "err", err)
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("Shutting down...")
}
