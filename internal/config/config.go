package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"

	FormatText = "text"
	FormatJSON = "json"
)

type Config struct {
	NodeID        string     `yaml:"node_id"`        // пусто: взять сохраненный или создать новый
	ListenAddr    string     `yaml:"listen_addr"`    // адрес HTTP сервера
	AdvertiseAddr string     `yaml:"advertise_addr"` // адрес для других узлов
	Storage       Storage    `yaml:"storage"`
	ShortCode     ShortCode  `yaml:"short_code"`
	Sync          Sync       `yaml:"sync"`
	HTTP          HTTPServer `yaml:"http"`
	Log           Log        `yaml:"log"`
}

type Storage struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

var defaultStorage = Storage{
	Driver: DriverBolt,
	Path:   "linkmesh.db",
}

type ShortCode struct {
	Length     int `yaml:"length"`
	MaxRetries int `yaml:"max_retries"`
}

var defaultShortCode = ShortCode{
	Length:     6,
	MaxRetries: 5,
}

type Sync struct {
	BootstrapPeers   []string      `yaml:"bootstrap_peers"`
	PeersFile        string        `yaml:"peers_file"`
	ResyncInterval   time.Duration `yaml:"resync_interval"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BackoffMax       time.Duration `yaml:"backoff_max"`
	BatchSize        int           `yaml:"batch_size"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
}

var defaultSync = Sync{
	ResyncInterval:   time.Minute,
	BackoffBase:      500 * time.Millisecond,
	BackoffMax:       30 * time.Second,
	BatchSize:        500,
	SubscriberBuffer: 1024,
}

type HTTPServer struct {
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes"`
}

var defaultHTTPServer = HTTPServer{
	ReadTimeout:     5 * time.Second,
	WriteTimeout:    10 * time.Second,
	IdleTimeout:     time.Minute,
	ShutdownTimeout: 10 * time.Second,
	MaxHeaderBytes:  1 << 20,
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var defaultLog = Log{
	Level:  "info",
	Format: FormatText,
}

// Load читает конфигурацию из YAML файла поверх значений по умолчанию.
// Пустой path дает конфигурацию по умолчанию.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	var cfg Config
	setDefaults(&cfg)

	if path == "" {
		return &cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open config file: %w", op, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.ListenAddr = ":8080"
	cfg.Storage = defaultStorage
	cfg.ShortCode = defaultShortCode
	cfg.Sync = defaultSync
	cfg.HTTP = defaultHTTPServer
	cfg.Log = defaultLog
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	const op = "config.Validate"

	var errs []error

	if strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}

	switch c.Storage.Driver {
	case DriverBolt, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be %q or %q, got %q", DriverBolt, DriverSQLite, c.Storage.Driver))
	}
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required"))
	}

	if c.ShortCode.Length < 1 || c.ShortCode.Length > 64 {
		errs = append(errs, fmt.Errorf("short_code.length must be in 1..64, got %d", c.ShortCode.Length))
	}
	if c.ShortCode.MaxRetries < 0 {
		errs = append(errs, errors.New("short_code.max_retries must not be negative"))
	}

	if c.Sync.ResyncInterval < 0 {
		errs = append(errs, errors.New("sync.resync_interval must not be negative"))
	}
	if c.Sync.BackoffBase <= 0 || c.Sync.BackoffMax < c.Sync.BackoffBase {
		errs = append(errs, errors.New("sync.backoff_base must be positive and not exceed sync.backoff_max"))
	}
	if c.Sync.BatchSize < 1 {
		errs = append(errs, errors.New("sync.batch_size must be positive"))
	}
	if c.Sync.SubscriberBuffer < 1 {
		errs = append(errs, errors.New("sync.subscriber_buffer must be positive"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case FormatText, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format must be %q or %q, got %q", FormatText, FormatJSON, c.Log.Format))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SlogLevel переводит log.level в уровень slog
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q is invalid: %w", l.Level, err)
	}
	return level, nil
}
