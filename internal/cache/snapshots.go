package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"okx-trading-bot/internal/confluence"
	"okx-trading-bot/internal/risk"
)

const (
	signalKeyPrefix     = "signal:latest:"
	riskStatusKey       = "risk:status"
	snapshotTTL         = time.Hour
	redisProbeInterval  = 30 * time.Second
	redisRequestTimeout = 2 * time.Second
)

// Snapshots caches the latest confluence result per symbol and the
// current risk status. Redis is the primary store; an in-memory map
// serves reads and writes while Redis is unavailable.
type Snapshots struct {
	client         *redis.Client
	logger         zerolog.Logger
	redisAvailable atomic.Bool

	mu       sync.RWMutex
	fallback map[string][]byte
}

// NewSnapshots creates the snapshot cache. A nil client means Redis is
// disabled and only the in-memory fallback is used.
func NewSnapshots(client *redis.Client, logger zerolog.Logger) *Snapshots {
	s := &Snapshots{
		client:   client,
		logger:   logger.With().Str("component", "cache").Logger(),
		fallback: make(map[string][]byte),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisRequestTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("redis unavailable, using in-memory fallback")
		} else {
			s.redisAvailable.Store(true)
		}
	}

	return s
}

// StartProbe periodically rechecks Redis availability until the context
// is cancelled.
func (s *Snapshots) StartProbe(ctx context.Context) {
	if s.client == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(redisProbeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, redisRequestTimeout)
				err := s.client.Ping(probeCtx).Err()
				cancel()

				was := s.redisAvailable.Load()
				now := err == nil
				if was != now {
					s.redisAvailable.Store(now)
					if now {
						s.logger.Info().Msg("redis connection restored")
					} else {
						s.logger.Warn().Err(err).Msg("redis connection lost")
					}
				}
			}
		}
	}()
}

// SetSignal caches the latest confluence result for a symbol
func (s *Snapshots) SetSignal(ctx context.Context, result *confluence.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	return s.set(ctx, signalKeyPrefix+result.Symbol, data)
}

// GetSignal returns the cached confluence result for a symbol, or nil
// when none is cached.
func (s *Snapshots) GetSignal(ctx context.Context, symbol string) (*confluence.Result, error) {
	data, err := s.get(ctx, signalKeyPrefix+symbol)
	if err != nil || data == nil {
		return nil, err
	}

	var result confluence.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal signal: %w", err)
	}
	return &result, nil
}

// SetRiskStatus caches the protection snapshot
func (s *Snapshots) SetRiskStatus(ctx context.Context, status risk.ProtectionStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal risk status: %w", err)
	}
	return s.set(ctx, riskStatusKey, data)
}

// GetRiskStatus returns the cached protection snapshot, or nil
func (s *Snapshots) GetRiskStatus(ctx context.Context) (*risk.ProtectionStatus, error) {
	data, err := s.get(ctx, riskStatusKey)
	if err != nil || data == nil {
		return nil, err
	}

	var status risk.ProtectionStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("unmarshal risk status: %w", err)
	}
	return &status, nil
}

func (s *Snapshots) set(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	s.fallback[key] = data
	s.mu.Unlock()

	if s.client == nil || !s.redisAvailable.Load() {
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, redisRequestTimeout)
	defer cancel()

	if err := s.client.Set(reqCtx, key, data, snapshotTTL).Err(); err != nil {
		s.redisAvailable.Store(false)
		s.logger.Warn().Err(err).Str("key", key).Msg("redis write failed, fallback only")
	}
	return nil
}

func (s *Snapshots) get(ctx context.Context, key string) ([]byte, error) {
	if s.client != nil && s.redisAvailable.Load() {
		reqCtx, cancel := context.WithTimeout(ctx, redisRequestTimeout)
		defer cancel()

		data, err := s.client.Get(reqCtx, key).Bytes()
		if err == nil {
			return data, nil
		}
		if err != redis.Nil {
			s.redisAvailable.Store(false)
			s.logger.Warn().Err(err).Str("key", key).Msg("redis read failed, fallback only")
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if data, ok := s.fallback[key]; ok {
		return data, nil
	}
	return nil, nil
}
