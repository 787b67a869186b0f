package app

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// retryConfig задаёт экспоненциальную задержку между попытками.
type retryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// storageConnectRetry используется при подключении к Postgres и Mongo:
// в docker-compose база может подняться позже сервиса.
var storageConnectRetry = retryConfig{
	MaxAttempts:   5,
	InitialDelay:  500 * time.Millisecond,
	MaxDelay:      5 * time.Second,
	BackoffFactor: 2.0,
}

// withRetry вызывает fn до успеха, исчерпания попыток или отмены ctx.
// Возвращает последнюю ошибку fn.
func withRetry(ctx context.Context, cfg retryConfig, logger *log.Entry, operation string, fn func(context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				logger.WithFields(log.Fields{
					"operation": operation,
					"attempt":   attempt,
				}).Info("operation succeeded after retry")
			}
			return nil
		}
		if !shouldRetry(ctx, lastErr) || attempt == attempts {
			break
		}

		logger.WithError(lastErr).WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
			"delay":     delay,
		}).Warn("operation failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return lastErr
}

func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
