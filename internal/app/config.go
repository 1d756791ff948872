package app

import (
	"strings"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/utils"
)

// Config carries the HTTP-facing knobs. Service tuning (confidence
// thresholds, turn limits, detector cadence) lives on the services
// themselves, read from env at construction.
type Config struct {
	Port         string
	AllowOrigins []string
}

func LoadConfig(log *logger.Logger) Config {
	port := utils.GetEnv("PORT", "8080", log)
	origins := utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173", log)

	return Config{
		Port:         port,
		AllowOrigins: splitCSV(origins),
	}
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
