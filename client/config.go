package client

import (
	"errors"
	"fmt"

	"arenasync/config"
	"arenasync/protocol"
)

// Config 客户端配置
type Config struct {
	ServerAddr string // host:port
	ProtocolID uint64
	InputHz    int
}

func DefaultConfig() Config {
	return Config{
		ServerAddr: fmt.Sprintf("127.0.0.1:%d", protocol.DefaultPort),
		ProtocolID: protocol.ProtocolID,
		InputHz:    60,
	}
}

// LoadConfig 读取 .env 中的 SERVER_ADDR 等变量
func LoadConfig(envFiles ...string) (Config, error) {
	cfg := DefaultConfig()
	if err := config.LoadEnv(envFiles...); err != nil {
		return cfg, err
	}
	var err error
	cfg.ServerAddr = config.String("SERVER_ADDR", cfg.ServerAddr)
	if cfg.ProtocolID, err = config.Uint64("ARENA_PROTOCOL_ID", cfg.ProtocolID); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if cfg.InputHz, err = config.Int("ARENA_INPUT_HZ", cfg.InputHz); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.ServerAddr == "" {
		return errors.New("config: SERVER_ADDR is empty")
	}
	if c.InputHz <= 0 {
		return fmt.Errorf("config: input rate must be positive, got %d", c.InputHz)
	}
	return nil
}

// URL WebSocket 接入地址，带上协议标识
func (c Config) URL() string {
	return fmt.Sprintf("ws://%s/ws?%s=%d", c.ServerAddr, protocol.ProtocolQueryParam, c.ProtocolID)
}
