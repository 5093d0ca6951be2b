// Package reputation provides IP reputation scoring via an external
// threat-intelligence endpoint, with run-scoped memoization and a redis
// second-level cache.
package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/entraguard/entraguard/internal/common/resilience"
	"github.com/entraguard/entraguard/internal/metrics"
)

// ErrUnavailable marks an address whose reputation could not be resolved.
// A single failure is cached for the run; the affected indicator degrades
// to not-applicable instead of triggering a retry storm.
var ErrUnavailable = errors.New("reputation: score unavailable")

// Client looks up a 0-100 confidence score per address. Higher scores mean
// stronger abuse evidence.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
	redis    *redis.Client
	ttl      time.Duration
	breaker  *resilience.CircuitBreaker
	logger   *zap.Logger

	mu     sync.Mutex
	scores map[string]int
	failed map[string]struct{}
}

// NewClient creates a reputation client. endpoint may be empty, in which
// case every lookup resolves to unavailable. redisClient may be nil.
func NewClient(endpoint, apiKey string, timeout time.Duration, redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		redis:    redisClient,
		ttl:      ttl,
		breaker: resilience.New(resilience.Config{
			Name:         "reputation",
			Threshold:    5,
			ResetTimeout: 30 * time.Second,
			Logger:       logger,
		}),
		logger: logger.With(zap.String("component", "reputation")),
		scores: make(map[string]int),
		failed: make(map[string]struct{}),
	}
}

// Score resolves the reputation score for an address. Returns
// ErrUnavailable when the endpoint is not configured, the lookup failed
// earlier in this run, or the lookup fails now.
func (c *Client) Score(ctx context.Context, ip string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if score, ok := c.scores[ip]; ok {
		return score, nil
	}
	if _, ok := c.failed[ip]; ok {
		return 0, ErrUnavailable
	}

	if c.endpoint == "" {
		c.failed[ip] = struct{}{}
		c.logger.Info("Reputation endpoint not configured, scoring unavailable",
			zap.String("ip", ip))
		return 0, ErrUnavailable
	}

	if score, ok := c.fromRedis(ctx, ip); ok {
		c.scores[ip] = score
		metrics.RecordExternalLookup("reputation", "hit", 0)
		return score, nil
	}

	start := time.Now()
	var score int
	err := c.breaker.Execute(func() error {
		var fetchErr error
		score, fetchErr = c.fetch(ctx, ip)
		return fetchErr
	})
	if err != nil {
		c.failed[ip] = struct{}{}
		metrics.RecordExternalLookup("reputation", "unavailable", time.Since(start))
		c.logger.Warn("Reputation lookup failed, caching sentinel",
			zap.String("ip", ip),
			zap.Error(err),
		)
		return 0, ErrUnavailable
	}

	c.scores[ip] = score
	metrics.RecordExternalLookup("reputation", "miss", time.Since(start))
	c.toRedis(ctx, ip, score)

	return score, nil
}

// Reset discards the run-scoped memoization, including failure sentinels
func (c *Client) Reset() {
	c.mu.Lock()
	c.scores = make(map[string]int)
	c.failed = make(map[string]struct{})
	c.mu.Unlock()
}

func (c *Client) fetch(ctx context.Context, ip string) (int, error) {
	url := fmt.Sprintf("%s?ip=%s", c.endpoint, ip)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("reputation endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var apiResponse struct {
		IPAddress string `json:"ip_address"`
		Score     int    `json:"score"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return 0, err
	}

	if apiResponse.Score < 0 || apiResponse.Score > 100 {
		return 0, fmt.Errorf("reputation score %d out of range", apiResponse.Score)
	}

	return apiResponse.Score, nil
}

func (c *Client) fromRedis(ctx context.Context, ip string) (int, bool) {
	if c.redis == nil {
		return 0, false
	}
	cached, err := c.redis.Get(ctx, "reputation:"+ip).Result()
	if err != nil {
		return 0, false
	}
	score, err := strconv.Atoi(cached)
	if err != nil {
		return 0, false
	}
	return score, true
}

func (c *Client) toRedis(ctx context.Context, ip string, score int) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, "reputation:"+ip, strconv.Itoa(score), c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to write reputation cache to redis", zap.Error(err))
	}
}
