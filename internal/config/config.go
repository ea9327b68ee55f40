// Package config 載入服務設定
//
// 來源優先順序（後者覆蓋前者）：Default() → YAML 檔案 → .env / 環境變數 → 命令列參數。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/koopa0/system-design/14-party-relay/internal/limiter"
)

// Config 服務設定
type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"` // 空或包含 "*" 表示不限制
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Rooms struct {
		MaxPlayers    int           `yaml:"max_players"`
		IdleTTL       time.Duration `yaml:"idle_ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
		RevealDelay   time.Duration `yaml:"reveal_delay"`
		CodeAttempts  int           `yaml:"code_attempts"`
	} `yaml:"rooms"`

	// Limits 每個動作的限流規則，鍵為事件名稱
	Limits map[string]Limit `yaml:"limits"`

	Transport struct {
		ReadLimit   int64         `yaml:"read_limit"`  // 單一訊息最大位元組數
		SendBuffer  int           `yaml:"send_buffer"` // 每個連線的送出佇列長度
		WriteWait   time.Duration `yaml:"write_wait"`
		PongWait    time.Duration `yaml:"pong_wait"`
		PingPeriod  time.Duration `yaml:"ping_period"`
		FrameRate   float64       `yaml:"frame_rate"` // 每秒允許的訊息數
		FrameBurst  int           `yaml:"frame_burst"`
		ReadBuffer  int           `yaml:"read_buffer"`
		WriteBuffer int           `yaml:"write_buffer"`
	} `yaml:"transport"`
}

// Limit 單一動作的限流規則
type Limit struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// Rule 轉成限流器使用的規則
func (l Limit) Rule() limiter.Rule {
	return limiter.Rule{Max: l.Max, Window: l.Window}
}

// Default 不需要任何檔案就能啟動的設定
func Default() *Config {
	cfg := &Config{}

	cfg.Server.Port = 3000
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second
	cfg.Server.AllowedOrigins = []string{"*"}

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	cfg.Rooms.MaxPlayers = 4
	cfg.Rooms.IdleTTL = 10 * time.Minute
	cfg.Rooms.SweepInterval = 5 * time.Minute
	cfg.Rooms.RevealDelay = 4 * time.Second
	cfg.Rooms.CodeAttempts = 16

	cfg.Limits = map[string]Limit{
		"createRoom":    {Max: 5, Window: 10 * time.Second},
		"joinRoom":      {Max: 10, Window: 10 * time.Second},
		"leaveRoom":     {Max: 5, Window: time.Second},
		"drawGameStart": {Max: 3, Window: 5 * time.Second},
		"setWord":       {Max: 3, Window: time.Second},
		"chatMsg":       {Max: 5, Window: 2 * time.Second},
		"drawLine":      {Max: 120, Window: time.Second},
		"clearCanvas":   {Max: 5, Window: time.Second},
		"snakeUpdate":   {Max: 30, Window: time.Second},
		"snakeStart":    {Max: 2, Window: time.Second},
		"pongMove":      {Max: 60, Window: time.Second},
		"pongBall":      {Max: 60, Window: time.Second},
		"pongScore":     {Max: 5, Window: time.Second},
	}

	cfg.Transport.ReadLimit = 8 * 1024
	cfg.Transport.SendBuffer = 256
	cfg.Transport.WriteWait = 10 * time.Second
	cfg.Transport.PongWait = 60 * time.Second
	cfg.Transport.PingPeriod = 54 * time.Second
	cfg.Transport.FrameRate = 200
	cfg.Transport.FrameBurst = 400
	cfg.Transport.ReadBuffer = 1024
	cfg.Transport.WriteBuffer = 1024

	return cfg
}

// Load 以 Default 為底，依序套用 YAML 檔案與環境變數
//
// path 為空時略過檔案；.env 不存在不視為錯誤。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - path 來自命令列參數
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv 套用環境變數覆蓋：PORT、LOG_LEVEL、LOG_FORMAT、ALLOWED_ORIGINS
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitCSV(v)
	}
	return nil
}

// Validate 檢查設定是否合理
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Rooms.MaxPlayers < 2 {
		errs = append(errs, fmt.Errorf("rooms.max_players must be at least 2, got %d", c.Rooms.MaxPlayers))
	}
	if c.Rooms.IdleTTL <= 0 || c.Rooms.SweepInterval <= 0 {
		errs = append(errs, errors.New("rooms.idle_ttl and rooms.sweep_interval must be positive"))
	}
	if c.Rooms.RevealDelay < 0 {
		errs = append(errs, errors.New("rooms.reveal_delay must not be negative"))
	}
	if c.Rooms.CodeAttempts <= 0 {
		errs = append(errs, errors.New("rooms.code_attempts must be positive"))
	}
	for action, l := range c.Limits {
		if l.Max > 0 && l.Window <= 0 {
			errs = append(errs, fmt.Errorf("limits.%s.window must be positive", action))
		}
	}
	if c.Transport.PingPeriod >= c.Transport.PongWait {
		errs = append(errs, errors.New("transport.ping_period must be shorter than transport.pong_wait"))
	}
	if c.Transport.SendBuffer <= 0 || c.Transport.ReadLimit <= 0 {
		errs = append(errs, errors.New("transport.send_buffer and transport.read_limit must be positive"))
	}
	if c.Transport.FrameRate <= 0 || c.Transport.FrameBurst <= 0 {
		errs = append(errs, errors.New("transport.frame_rate and transport.frame_burst must be positive"))
	}

	return errors.Join(errs...)
}

// Limit 取得動作的限流規則；未設定時不限流
func (c *Config) Limit(action string) limiter.Rule {
	return c.Limits[action].Rule()
}

// Addr HTTP 監聽位址
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// splitCSV 以逗號分隔並去掉空白項目
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
