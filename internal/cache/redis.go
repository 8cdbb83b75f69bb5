package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rawblock/ring-engine/internal/heuristics"
	"github.com/rawblock/ring-engine/pkg/models"
)

// Report Cache
//
// Detection is a pure function of (ordered input, config), so a finished
// run can be replayed for an identical upload. The key is a SHA-256 over
// every transaction field in input order plus the detection config; input
// order matters because it decides first-seen account order and
// tie-breaking in the output.

const keyPrefix = "ringengine:report:"

type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReportCache connects to Redis and verifies the connection.
func NewReportCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*ReportCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	log.Printf("[Cache] Connected to Redis at %s (ttl %s)", addr, ttl)
	return &ReportCache{client: client, ttl: ttl}, nil
}

// Close releases the client.
func (c *ReportCache) Close() error {
	return c.client.Close()
}

// Get returns the cached run for a fingerprint. A miss is (nil, false, nil).
func (c *ReportCache) Get(ctx context.Context, fingerprint string) (*models.AnalysisRun, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var run models.AnalysisRun
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	return &run, true, nil
}

// Set stores a run under its fingerprint with the configured TTL.
func (c *ReportCache) Set(ctx context.Context, run *models.AnalysisRun) error {
	if run.Fingerprint == "" {
		return errors.New("cache set: run has no fingerprint")
	}
	raw, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+run.Fingerprint, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Fingerprint hashes the ordered batch and the config into a hex key.
func Fingerprint(txs []models.Transaction, cfg heuristics.DetectionConfig) string {
	h := sha256.New()
	for _, tx := range txs {
		h.Write([]byte(tx.ID))
		h.Write([]byte{0})
		h.Write([]byte(tx.SenderID))
		h.Write([]byte{0})
		h.Write([]byte(tx.ReceiverID))
		h.Write([]byte{0})
		h.Write([]byte(tx.Amount.String()))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(tx.Timestamp.UnixNano(), 10)))
		h.Write([]byte{'\n'})
	}
	cfgJSON, _ := json.Marshal(cfg)
	h.Write(cfgJSON)
	return hex.EncodeToString(h.Sum(nil))
}
