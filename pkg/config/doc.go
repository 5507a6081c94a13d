// Package config loads typed configuration from environment variables.
//
// Structs describe their variables with `env` and `envDefault` tags
// understood by github.com/caarlos0/env/v11. Load caches one parsed value per
// struct type; Parse reads from an explicit map, which keeps tests independent
// of the process environment. Optional .env files are read with
// github.com/joho/godotenv.
//
//	type Config struct {
//		URL         string        `env:"PG_URL,required"`
//		MaxAttempts int           `env:"QUEUE_MAX_ATTEMPTS" envDefault:"3"`
//		Poll        time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
package config
