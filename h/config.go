package h

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

func IsProduction(env string) bool {
	env = strings.ToLower(env)
	return env == "production" || env == "prod"
}

// LoadEnv loads environment variables from .env file (if not in production) and processes them into cfg.
// Returns an error if environment variable processing fails.
func LoadEnv(cfg any) error {
	if !IsProduction(os.Getenv("ENV")) {
		err := godotenv.Load(".env")
		if err != nil {
			log.Debugf("unable to load .env file: %v", err)
		}
	}
	return envconfig.Process("", cfg)
}
