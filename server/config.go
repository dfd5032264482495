package server

import (
	"errors"
	"fmt"

	"arenasync/config"
	"arenasync/protocol"
)

// Config 服务端配置：默认值 ← 环境变量（含 .env）← 命令行参数
type Config struct {
	Addr            string    `json:"addr"`
	TickHz          int       `json:"tickHz"`
	MoveSpeed       float32   `json:"moveSpeed"`
	MaxClients      int       `json:"maxClients"`
	ProtocolID      uint64    `json:"protocolId"`
	CatchupMaxTicks int       `json:"catchupMaxTicks"`
	ReliableQueue   int       `json:"reliableQueue"`
	UnreliableQueue int       `json:"unreliableQueue"`
	Log             LogConfig `json:"log"`
}

func DefaultConfig() Config {
	return Config{
		Addr:            fmt.Sprintf(":%d", protocol.DefaultPort),
		TickHz:          protocol.DefaultTickHz,
		MoveSpeed:       protocol.PlayerMoveSpeed,
		MaxClients:      32,
		ProtocolID:      protocol.ProtocolID,
		CatchupMaxTicks: 4,
		ReliableQueue:   256,
		UnreliableQueue: 4,
		Log: LogConfig{
			File:    "arenasync.log",
			Level:   "info",
			Console: true,
		},
	}
}

// LoadConfig 读取 .env 与 ARENA_* 环境变量
func LoadConfig(envFiles ...string) (Config, error) {
	cfg := DefaultConfig()
	if err := config.LoadEnv(envFiles...); err != nil {
		return cfg, err
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error
	cfg.Addr = config.String("ARENA_ADDR", cfg.Addr)
	cfg.TickHz, err = config.Int("ARENA_TICK_HZ", cfg.TickHz)
	collect(err)
	cfg.MoveSpeed, err = config.Float32("ARENA_MOVE_SPEED", cfg.MoveSpeed)
	collect(err)
	cfg.MaxClients, err = config.Int("ARENA_MAX_CLIENTS", cfg.MaxClients)
	collect(err)
	cfg.ProtocolID, err = config.Uint64("ARENA_PROTOCOL_ID", cfg.ProtocolID)
	collect(err)
	cfg.CatchupMaxTicks, err = config.Int("ARENA_CATCHUP_TICKS", cfg.CatchupMaxTicks)
	collect(err)
	cfg.ReliableQueue, err = config.Int("ARENA_RELIABLE_QUEUE", cfg.ReliableQueue)
	collect(err)
	cfg.UnreliableQueue, err = config.Int("ARENA_UNRELIABLE_QUEUE", cfg.UnreliableQueue)
	collect(err)
	cfg.Log.File = config.String("ARENA_LOG_FILE", cfg.Log.File)
	cfg.Log.Level = config.String("ARENA_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Console, err = config.Bool("ARENA_LOG_CONSOLE", cfg.Log.Console)
	collect(err)

	if len(errs) > 0 {
		return cfg, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// Validate 启动前校验，失败即终止进程
func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("config: addr is empty")
	case c.TickHz <= 0:
		return fmt.Errorf("config: tick rate must be positive, got %d", c.TickHz)
	case c.MoveSpeed <= 0:
		return fmt.Errorf("config: move speed must be positive, got %v", c.MoveSpeed)
	case c.MaxClients <= 0:
		return fmt.Errorf("config: max clients must be positive, got %d", c.MaxClients)
	case c.CatchupMaxTicks <= 0:
		return fmt.Errorf("config: catch-up ticks must be positive, got %d", c.CatchupMaxTicks)
	case c.ReliableQueue <= 0 || c.UnreliableQueue <= 0:
		return errors.New("config: send queues must be positive")
	case c.ReliableQueue <= 2*c.MaxClients:
		// 新玩家在同一 Tick 内会收到名单补发加上其他玩家的连接广播
		return fmt.Errorf("config: reliable queue (%d) must exceed twice max clients (%d)", c.ReliableQueue, c.MaxClients)
	}
	return nil
}

// RoomConfig 从服务端配置派生房间参数
func (c Config) RoomConfig() RoomConfig {
	return RoomConfig{
		TickHz:          c.TickHz,
		MoveSpeed:       c.MoveSpeed,
		CatchupMaxTicks: c.CatchupMaxTicks,
	}
}
