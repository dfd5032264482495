package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"arenasync/client"
	"arenasync/protocol"
)

// 无界面客户端：按固定频率发送绕圈行走的输入，并定期打印名单
func main() {
	cfg, err := client.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	flag.StringVar(&cfg.ServerAddr, "server", cfg.ServerAddr, "server address host:port")
	flag.IntVar(&cfg.InputHz, "hz", cfg.InputHz, "input send rate")
	flag.Uint64Var(&cfg.ProtocolID, "protocol", cfg.ProtocolID, "protocol identifier")
	turnRate := flag.Float64("turn", 0.5, "yaw change per second (radians)")
	report := flag.Duration("report", 2*time.Second, "roster log interval")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.Sugar()
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	c, err := client.Dial(dialCtx, cfg, log)
	cancel()
	if err != nil {
		log.Fatalw("connect failed", "err", err)
	}
	defer c.Close()

	if err := run(ctx, c, cfg.InputHz, float32(*turnRate), *report, log); err != nil {
		log.Errorw("client stopped", "err", err)
	}
}

func run(ctx context.Context, c *client.Client, hz int, turnRate float32, report time.Duration, log *zap.SugaredLogger) error {
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()
	reportTicker := time.NewTicker(report)
	defer reportTicker.Stop()

	var yaw float32
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return c.Err()
		case <-reportTicker.C:
			logRoster(c, log)
		case now := <-ticker.C:
			yaw += turnRate * float32(now.Sub(last).Seconds())
			last = now
			if yaw > math.Pi {
				yaw -= 2 * math.Pi
			}
			c.Poll()
			in := protocol.PlayerInput{Forward: true, Camera: protocol.Orientation{Yaw: yaw}}
			if err := c.SendInput(ctx, in); err != nil {
				return err
			}
		}
	}
}

func logRoster(c *client.Client, log *zap.SugaredLogger) {
	r := c.Roster()
	for _, id := range r.IDs() {
		p, _ := r.Player(id)
		log.Infow("player", "client", id, "self", id == c.ID(), "pos", p.Position, "yaw", p.Orientation.Yaw, "tick", r.LastTick())
	}
}
