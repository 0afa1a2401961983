// The board binary is the waiting-room display consumer: it subscribes to
// the call-next channel and prints each called patient as it happens.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"clinicq/internal/config"
	"clinicq/internal/notify"
	"clinicq/internal/scheduler"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			logger.Fatal().Err(err).Msg("failed to load .env")
		}
	}

	cfg, err := config.Load(os.Getenv("CLINICQ_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Redis.Address == "" {
		logger.Fatal().Msg("set redis.address in config; the board consumes the redis channel")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("redis unreachable")
	}

	channel := cfg.Redis.Channel
	if channel == "" {
		channel = notify.DefaultChannel
	}
	sub := rdb.Subscribe(ctx, channel)
	defer sub.Close()

	logger.Info().Str("channel", channel).Msg("display board started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("display board stopped")
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var p scheduler.CalledPatient
			if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
				logger.Error().Err(err).Msg("malformed board message")
				continue
			}
			logger.Info().
				Int("token", p.TokenNumber).
				Str("visit_id", p.VisitID).
				Str("department", p.Department).
				Msg("now serving")
		}
	}
}
