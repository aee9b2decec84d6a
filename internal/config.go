package internal

import (
	"fmt"
	"strings"
	"time"

	"team-chat/auth"

	"github.com/samber/lo"
)

type Config struct {
	Host                 string        `env:"HOST,default=0.0.0.0"`
	Port                 int           `env:"PORT,default=8080"`
	GrpcHealthPort       int           `env:"GRPC_HEALTH_PORT,default=8082"`
	DebugInspectorPort   int           `env:"DEBUG_INSPECTOR_PORT,default=8081"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH,required=true"`
	JwtSecret            string        `env:"JWT_SECRET,required=true"`
	JwtIssuer            string        `env:"JWT_ISSUER,default=team-chat"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	AuthPolicy           string        `env:"AUTH_POLICY,default=strict"`
	HistoryLimit         int           `env:"HISTORY_LIMIT,default=10"`
	MaxHistoryLimit      int           `env:"MAX_HISTORY_LIMIT,default=50"`
	MaxMessageLength     int           `env:"MAX_MESSAGE_LENGTH,default=5000"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	NumberOfWorkers      int           `env:"NUMBER_OF_WORKERS,default=2"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=30s"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	PongTimeout          time.Duration `env:"PONG_TIMEOUT,default=60s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	MaxFrameSize         int64         `env:"MAX_FRAME_SIZE,default=65536"`
	MessagesPerSecond    float64       `env:"MESSAGES_PER_SECOND,default=10"`
	MessageBurst         int           `env:"MESSAGE_BURST,default=20"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS"`
	ModerationEnabled    bool          `env:"MODERATION_ENABLED,default=false"`
	CensoredWords        string        `env:"CENSORED_WORDS"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
}

// Validate checks the values go-env cannot check on its own.
func (c Config) Validate() error {
	if c.HistoryLimit <= 0 || c.MaxHistoryLimit < c.HistoryLimit {
		return fmt.Errorf("HISTORY_LIMIT (%d) must be positive and at most MAX_HISTORY_LIMIT (%d)",
			c.HistoryLimit, c.MaxHistoryLimit)
	}
	if c.NumberOfWorkers <= 0 {
		return fmt.Errorf("NUMBER_OF_WORKERS must be positive, got %d", c.NumberOfWorkers)
	}
	if c.BufferSize <= 0 || c.ConnectionBufferSize <= 0 {
		return fmt.Errorf("BUFFER_SIZE and CONNECTION_BUFFER_SIZE must be positive")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength)
	}
	if _, err := auth.ParsePolicy(c.AuthPolicy); err != nil {
		return err
	}
	if c.ModerationEnabled && len(c.Words()) == 0 {
		return fmt.Errorf("MODERATION_ENABLED requires CENSORED_WORDS")
	}
	return nil
}

func (c Config) Policy() auth.Policy {
	policy, _ := auth.ParsePolicy(c.AuthPolicy)
	return policy
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	return SplitList(c.AllowedOrigins)
}

// Words splits CENSORED_WORDS on commas.
func (c Config) Words() []string {
	return SplitList(c.CensoredWords)
}

// SplitList splits a comma separated value, dropping blanks.
func SplitList(raw string) []string {
	return lo.Compact(lo.Map(strings.Split(raw, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	}))
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
