// Package snapshots persists execution snapshots in Redis so a monitoring
// session can be restored after a UI restart without refetching history.
package snapshots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/flowpulse/flowpulse/pkg/models"
)

// ErrSnapshotNotFound is returned when no snapshot exists for the key.
var ErrSnapshotNotFound = errors.New("execution snapshot not found")

// DefaultTTL is how long a snapshot outlives its last save.
const DefaultTTL = 24 * time.Hour

// Config holds the Redis connection settings for the snapshot store.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Store writes execution snapshots to Redis keyed by execution id, with a
// per-workflow pointer to the most recent execution.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewStore connects to Redis and verifies the connection with a ping.
func NewStore(ctx context.Context, config Config, logger *slog.Logger) (*Store, error) {
	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}

	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := &Store{
		client: client,
		ttl:    config.TTL,
		logger: logger.With("module", "snapshot_store", "addr", config.Addr),
	}

	store.logger.InfoContext(ctx, "Connected to Redis", "db", config.DB)

	return store, nil
}

func executionKey(executionID string) string {
	return "flowpulse:execution:" + executionID
}

func latestKey(workflowID string) string {
	return "flowpulse:workflow:" + workflowID + ":latest"
}

// Save stores one execution snapshot and refreshes the workflow's latest
// pointer. Both keys share the store TTL.
func (s *Store) Save(ctx context.Context, execution *models.Execution) error {
	payload, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to serialize execution %s: %w", execution.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, executionKey(execution.ID), payload, s.ttl)

	if execution.WorkflowID != "" {
		pipe.Set(ctx, latestKey(execution.WorkflowID), execution.ID, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save execution snapshot %s: %w", execution.ID, err)
	}

	return nil
}

// Load returns the snapshot for one execution.
func (s *Store) Load(ctx context.Context, executionID string) (*models.Execution, error) {
	payload, err := s.client.Get(ctx, executionKey(executionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}

		return nil, fmt.Errorf("failed to load execution snapshot %s: %w", executionID, err)
	}

	execution := &models.Execution{}
	if err := json.Unmarshal(payload, execution); err != nil {
		return nil, fmt.Errorf("failed to decode execution snapshot %s: %w", executionID, err)
	}

	return execution, nil
}

// LoadLatest returns the most recently saved snapshot for a workflow.
func (s *Store) LoadLatest(ctx context.Context, workflowID string) (*models.Execution, error) {
	executionID, err := s.client.Get(ctx, latestKey(workflowID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}

		return nil, fmt.Errorf("failed to resolve latest execution for workflow %s: %w", workflowID, err)
	}

	return s.Load(ctx, executionID)
}

// Delete removes one execution snapshot. Deleting a missing key is not an
// error.
func (s *Store) Delete(ctx context.Context, executionID string) error {
	if err := s.client.Del(ctx, executionKey(executionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete execution snapshot %s: %w", executionID, err)
	}

	return nil
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
