package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL,required=true"`
	Host     string `env:"HOST,required=true"`
	Port     int    `env:"PORT,required=true"`
	// 0 disables the inspector
	DebugPort int `env:"DEBUG_PORT"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS"`

	BufferSize      int           `env:"BUFFER_SIZE,required=true"`
	NumberOfWorkers int           `env:"NUMBER_OF_WORKERS,required=true"`
	SinkTimeout     time.Duration `env:"SINK_TIMEOUT,required=true"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,required=true"`
	CharReplacement string        `env:"CHARACTER_REPLACEMENT,required=true"`

	PageSize         int           `env:"PAGE_SIZE,required=true"`
	PresenceLeaseTTL time.Duration `env:"PRESENCE_LEASE_TTL,required=true"`
	JanitorInterval  time.Duration `env:"JANITOR_INTERVAL,required=true"`
	IdleMacroDelay   time.Duration `env:"IDLE_MACRO_DELAY,required=true"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

// Origins splits the comma-separated allow list; empty means any.
func (c Config) Origins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
