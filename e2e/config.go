package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

// Config tells the suites where the server under test listens.
// Suites are skipped while ServerURL or JwtSecret is empty.
type Config struct {
	ServerURL  string `envconfig:"E2E_SERVER_URL"`
	HealthAddr string `envconfig:"E2E_HEALTH_ADDR" default:"localhost:8082"`
	// Same value as the server JWT_SECRET, used to sign member tokens.
	JwtSecret string `envconfig:"E2E_JWT_SECRET"`
	JwtIssuer string `envconfig:"E2E_JWT_ISSUER" default:"team-chat"`
	Colours   bool   `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (cfg Config, err error) {
	err = envconfig.Process("", &cfg)
	return cfg, err
}
