// Package config resolves process settings from defaults, an optional .env
// file, PONG_* environment variables and finally command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/chilledoj/pongroom/protocol"
	"github.com/joho/godotenv"
)

const (
	DefaultPort     = 7777
	DefaultTickRate = 60
)

var ErrInvalid = errors.New("config: invalid value")

type Config struct {
	Addr          string
	TickRate      int
	Codec         string
	Seed          string
	LogLevel      slog.Level
	CleanupPeriod time.Duration

	// ServerURL is where a participant dials the host.
	ServerURL string
}

func Default() Config {
	return Config{
		Addr:          fmt.Sprintf(":%d", DefaultPort),
		TickRate:      DefaultTickRate,
		Codec:         protocol.CodecJSON,
		LogLevel:      slog.LevelInfo,
		CleanupPeriod: 30 * time.Second,
		ServerURL:     fmt.Sprintf("ws://127.0.0.1:%d/ws", DefaultPort),
	}
}

// Load applies envFiles (missing files are skipped) and the environment on
// top of the defaults. Variables already set in the environment win over
// the files.
func Load(envFiles ...string) (Config, error) {
	cfg := Default()
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("config: loading %s: %w", f, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PONG_ADDR"); ok && v != "" {
		c.Addr = v
	}
	if v, ok := lookup("PONG_TICK_RATE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PONG_TICK_RATE=%q: %w", ErrInvalid, v, err)
		}
		c.TickRate = n
	}
	if v, ok := lookup("PONG_CODEC"); ok && v != "" {
		c.Codec = v
	}
	if v, ok := lookup("PONG_SEED"); ok {
		c.Seed = v
	}
	if v, ok := lookup("PONG_LOG_LEVEL"); ok && v != "" {
		if err := c.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%w: PONG_LOG_LEVEL=%q: %w", ErrInvalid, v, err)
		}
	}
	if v, ok := lookup("PONG_CLEANUP_PERIOD"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: PONG_CLEANUP_PERIOD=%q: %w", ErrInvalid, v, err)
		}
		c.CleanupPeriod = d
	}
	if v, ok := lookup("PONG_SERVER_URL"); ok && v != "" {
		c.ServerURL = v
	}
	return nil
}

// RegisterFlags binds the settings to flags using the current values as
// defaults, so flags override everything loaded before.
func (c *Config) RegisterFlags(flags *flag.FlagSet) {
	flags.StringVar(&c.Addr, "addr", c.Addr, "address to listen on (e.g., 127.0.0.1:7777)")
	flags.IntVar(&c.TickRate, "tick-rate", c.TickRate, "simulation ticks per second")
	flags.StringVar(&c.Codec, "codec", c.Codec, "wire codec: json or msgpack")
	flags.StringVar(&c.Seed, "seed", c.Seed, "root seed for the ball simulation (empty seeds from the clock)")
	flags.TextVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn or error")
	flags.DurationVar(&c.CleanupPeriod, "cleanup-period", c.CleanupPeriod, "how long a disconnected player is remembered")
	flags.StringVar(&c.ServerURL, "server", c.ServerURL, "websocket url of the host")
}

func (c Config) Validate() error {
	var errs []error
	if c.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("%w: tick rate must be positive, got %d", ErrInvalid, c.TickRate))
	}
	if _, err := protocol.NewCodec(c.Codec); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}
	if c.CleanupPeriod <= 0 {
		errs = append(errs, fmt.Errorf("%w: cleanup period must be positive, got %s", ErrInvalid, c.CleanupPeriod))
	}
	if c.Addr == "" {
		errs = append(errs, fmt.Errorf("%w: addr is empty", ErrInvalid))
	}
	return errors.Join(errs...)
}

// TickPeriod is the duration of one simulation tick.
func (c Config) TickPeriod() time.Duration {
	if c.TickRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.TickRate)
}
