// Package orderlimit implements the sliding-window abuse guard for the
// checkout path.
//
// Attempts are tracked per (customer, session) pair. A customer moves from
// unrestricted to warned once the warning threshold is reached, to blocked
// when the hourly ceiling is hit (a temporary cooldown), and is denied
// outright at the daily ceiling. Failed order attempts count exactly like
// successful ones. Records mirror into the domain cache sessions category so
// another instance can pick them up and so a successful order can clear them
// by tag.
package orderlimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/velora/storefront-cache/pkg/domaincache"
	"github.com/velora/storefront-cache/pkg/logging"
)

var (
	orderChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storecache_order_checks_total",
		Help: "Total order limit checks by result",
	}, []string{"result"}) // "allowed", "blocked", "hourly", "daily"

	orderBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storecache_order_blocks_total",
		Help: "Total temporary blocks placed on checkout attempts",
	})
)

// Windows tracked by the limiter. Records older than the daily window are
// purged by Cleanup.
const (
	hourlyWindow = time.Hour
	dailyWindow  = 24 * time.Hour
)

// MirrorTag marks every mirrored attempt record in the domain cache.
const MirrorTag = "order-limits"

// CustomerTag returns the domain cache tag covering all of a customer's
// mirrored attempt records.
func CustomerTag(customerID string) string {
	return "customer:" + customerID
}

// Reason classifies a denial. Machine-readable, not an error.
type Reason string

const (
	ReasonBlocked Reason = "temporarily_blocked"
	ReasonHourly  Reason = "hourly_limit_exceeded"
	ReasonDaily   Reason = "daily_limit_exceeded"
)

// Config holds the limiter thresholds. All fields are runtime-reconfigurable
// via UpdateConfig.
type Config struct {
	MaxAttemptsPerHour int           `json:"max_attempts_per_hour"`
	MaxAttemptsPerDay  int           `json:"max_attempts_per_day"`
	BlockDuration      time.Duration `json:"block_duration"`
	WarningThreshold   int           `json:"warning_threshold"`
}

// DefaultConfig returns the storefront defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttemptsPerHour: 10,
		MaxAttemptsPerDay:  50,
		BlockDuration:      30 * time.Minute,
		WarningThreshold:   5,
	}
}

// ConfigPatch is a partial configuration update. Nil fields keep their
// current value.
type ConfigPatch struct {
	MaxAttemptsPerHour *int
	MaxAttemptsPerDay  *int
	BlockDuration      *time.Duration
	WarningThreshold   *int
}

// Result is the outcome of a limit check.
type Result struct {
	// Allowed reports whether the checkout attempt may proceed.
	Allowed bool `json:"allowed"`

	// Reason is set on denial.
	Reason Reason `json:"reason,omitempty"`

	// Remaining is the number of attempts left before the hourly ceiling.
	Remaining int `json:"remaining"`

	// Warning is set once the customer crosses the warning threshold while
	// still allowed.
	Warning bool `json:"warning,omitempty"`

	// BlockedUntil is when an active or freshly placed block expires.
	// Zero unless Reason is temporarily_blocked or hourly_limit_exceeded.
	BlockedUntil time.Time `json:"blocked_until"`
}

// record tracks attempts for one (customer, session) pair.
type record struct {
	CustomerID   string      `json:"customer_id"`
	SessionID    string      `json:"session_id"`
	FirstSeen    time.Time   `json:"first_seen"`
	Attempts     []time.Time `json:"attempts"`
	LastAttempt  time.Time   `json:"last_attempt"`
	BlockedUntil time.Time   `json:"blocked_until"`
}

func recordKey(customerID, sessionID string) string {
	return customerID + "|" + sessionID
}

// attemptsSince counts attempts after cutoff.
func (r *record) attemptsSince(cutoff time.Time) int {
	n := 0
	for _, at := range r.Attempts {
		if at.After(cutoff) {
			n++
		}
	}
	return n
}

// CustomerStats aggregates a customer's tracked state across sessions.
type CustomerStats struct {
	CustomerID       string    `json:"customer_id"`
	Sessions         int       `json:"sessions"`
	AttemptsLastHour int       `json:"attempts_last_hour"`
	AttemptsLastDay  int       `json:"attempts_last_day"`
	Blocked          bool      `json:"blocked"`
	BlockedUntil     time.Time `json:"blocked_until"`
}

// Stats is a snapshot of limiter counters.
type Stats struct {
	TrackedRecords int    `json:"tracked_records"`
	Checks         uint64 `json:"checks"`
	Allowed        uint64 `json:"allowed"`
	Denied         uint64 `json:"denied"`
	Blocks         uint64 `json:"blocks"`
}

// Limiter guards the checkout path. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	records map[string]*record
	domain  *domaincache.Cache
	logger  zerolog.Logger

	checks  uint64
	allowed uint64
	denied  uint64
	blocks  uint64

	// now is overridable for deterministic tests.
	now func() time.Time

	cleanupOnce sync.Once
	stop        chan struct{}
	stopped     sync.WaitGroup
}

// New creates an order attempt limiter. domain may be nil to disable
// cross-instance mirroring.
func New(cfg Config, domain *domaincache.Cache) *Limiter {
	return &Limiter{
		cfg:     cfg,
		records: make(map[string]*record),
		domain:  domain,
		logger:  logging.NewLogger("orderlimit"),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

// CheckOrderLimit decides whether a checkout attempt for (customer, session)
// may proceed. Checks run in order: active temporary block, trailing-hour
// ceiling across all the customer's sessions, trailing-day hard ceiling.
func (l *Limiter) CheckOrderLimit(ctx context.Context, customerID, sessionID string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checks++
	now := l.now()

	// 1. Active block short-circuits everything.
	rec := l.records[recordKey(customerID, sessionID)]
	if rec != nil && now.Before(rec.BlockedUntil) {
		l.denied++
		orderChecksTotal.WithLabelValues("blocked").Inc()
		return Result{
			Allowed:      false,
			Reason:       ReasonBlocked,
			BlockedUntil: rec.BlockedUntil,
		}
	}

	hourly := l.customerAttemptsLocked(customerID, now.Add(-hourlyWindow))

	// 2. Hourly ceiling places a temporary block on this session.
	if hourly > l.cfg.MaxAttemptsPerHour {
		if rec == nil {
			rec = &record{
				CustomerID: customerID,
				SessionID:  sessionID,
				FirstSeen:  now,
			}
			l.records[recordKey(customerID, sessionID)] = rec
		}
		rec.BlockedUntil = now.Add(l.cfg.BlockDuration)
		l.mirrorLocked(ctx, rec)

		l.denied++
		l.blocks++
		orderBlocksTotal.Inc()
		orderChecksTotal.WithLabelValues("hourly").Inc()
		l.logger.Error().
			Str("customer_id", customerID).
			Str("session_id", sessionID).
			Int("attempts_last_hour", hourly).
			Time("blocked_until", rec.BlockedUntil).
			Msg("customer blocked on checkout path")

		return Result{
			Allowed:      false,
			Reason:       ReasonHourly,
			BlockedUntil: rec.BlockedUntil,
		}
	}

	// 3. Daily ceiling is a hard stop, no cooldown timer.
	if l.customerAttemptsLocked(customerID, now.Add(-dailyWindow)) > l.cfg.MaxAttemptsPerDay {
		l.denied++
		orderChecksTotal.WithLabelValues("daily").Inc()
		return Result{
			Allowed: false,
			Reason:  ReasonDaily,
		}
	}

	remaining := l.cfg.MaxAttemptsPerHour - hourly
	if remaining < 0 {
		remaining = 0
	}

	result := Result{
		Allowed:   true,
		Remaining: remaining,
		Warning:   hourly >= l.cfg.WarningThreshold,
	}

	if result.Warning {
		l.logger.Warn().
			Str("customer_id", customerID).
			Int("attempts_last_hour", hourly).
			Int("remaining", remaining).
			Msg("customer approaching checkout attempt ceiling")
	}

	l.allowed++
	orderChecksTotal.WithLabelValues("allowed").Inc()
	return result
}

// RecordOrderAttempt registers a checkout attempt. Failed attempts count
// exactly like successful ones. The record is mirrored into the domain cache
// for cross-instance durability.
func (l *Limiter) RecordOrderAttempt(ctx context.Context, customerID, sessionID string, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := recordKey(customerID, sessionID)

	rec, ok := l.records[key]
	if !ok {
		rec = &record{
			CustomerID: customerID,
			SessionID:  sessionID,
			FirstSeen:  now,
		}
		l.records[key] = rec
	}

	rec.Attempts = append(rec.Attempts, now)
	rec.LastAttempt = now
	l.mirrorLocked(ctx, rec)

	l.logger.Debug().
		Str("customer_id", customerID).
		Str("session_id", sessionID).
		Bool("success", success).
		Int("attempts", len(rec.Attempts)).
		Msg("order attempt recorded")
}

// ResetCustomerAttempts clears every tracked session for the customer and
// invalidates the mirrored records. Called when an order completes.
func (l *Limiter) ResetCustomerAttempts(ctx context.Context, customerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, rec := range l.records {
		if rec.CustomerID == customerID {
			delete(l.records, key)
			removed++
		}
	}

	if l.domain != nil {
		l.domain.InvalidateByTag(CustomerTag(customerID))
	}

	l.logger.Debug().
		Str("customer_id", customerID).
		Int("sessions", removed).
		Msg("customer attempts reset")
}

// GetCustomerStats aggregates the customer's tracked state across sessions.
func (l *Limiter) GetCustomerStats(customerID string) CustomerStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	stats := CustomerStats{CustomerID: customerID}

	for _, rec := range l.records {
		if rec.CustomerID != customerID {
			continue
		}
		stats.Sessions++
		stats.AttemptsLastHour += rec.attemptsSince(now.Add(-hourlyWindow))
		stats.AttemptsLastDay += rec.attemptsSince(now.Add(-dailyWindow))
		if now.Before(rec.BlockedUntil) {
			stats.Blocked = true
			if rec.BlockedUntil.After(stats.BlockedUntil) {
				stats.BlockedUntil = rec.BlockedUntil
			}
		}
	}

	return stats
}

// UpdateConfig applies a partial configuration update at runtime.
func (l *Limiter) UpdateConfig(patch ConfigPatch) Config {
	l.mu.Lock()
	defer l.mu.Unlock()

	if patch.MaxAttemptsPerHour != nil {
		l.cfg.MaxAttemptsPerHour = *patch.MaxAttemptsPerHour
	}
	if patch.MaxAttemptsPerDay != nil {
		l.cfg.MaxAttemptsPerDay = *patch.MaxAttemptsPerDay
	}
	if patch.BlockDuration != nil {
		l.cfg.BlockDuration = *patch.BlockDuration
	}
	if patch.WarningThreshold != nil {
		l.cfg.WarningThreshold = *patch.WarningThreshold
	}

	l.logger.Info().
		Int("max_per_hour", l.cfg.MaxAttemptsPerHour).
		Int("max_per_day", l.cfg.MaxAttemptsPerDay).
		Dur("block_duration", l.cfg.BlockDuration).
		Msg("order limiter reconfigured")
	return l.cfg
}

// Config returns the current configuration.
func (l *Limiter) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// Stats returns a snapshot of limiter counters.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		TrackedRecords: len(l.records),
		Checks:         l.checks,
		Allowed:        l.allowed,
		Denied:         l.denied,
		Blocks:         l.blocks,
	}
}

// Cleanup purges records first seen before the daily window and returns the
// count removed.
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-dailyWindow)
	removed := 0
	for key, rec := range l.records {
		if rec.FirstSeen.Before(cutoff) {
			delete(l.records, key)
			removed++
		}
	}
	return removed
}

// StartCleanup launches the periodic record purge. The job is owned by this
// instance and stops on Close.
func (l *Limiter) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		return
	}
	l.cleanupOnce.Do(func() {
		l.stopped.Add(1)
		go func() {
			defer l.stopped.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					l.Cleanup()
				case <-l.stop:
					return
				}
			}
		}()
	})
}

// Close stops the cleanup job.
func (l *Limiter) Close() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
	l.stopped.Wait()
}

// customerAttemptsLocked counts the customer's attempts after cutoff across
// all sessions. Caller must hold l.mu.
func (l *Limiter) customerAttemptsLocked(customerID string, cutoff time.Time) int {
	n := 0
	for _, rec := range l.records {
		if rec.CustomerID == customerID {
			n += rec.attemptsSince(cutoff)
		}
	}
	return n
}

// mirrorLocked persists the record into the domain cache sessions category.
// Caller must hold l.mu.
func (l *Limiter) mirrorLocked(_ context.Context, rec *record) {
	if l.domain == nil {
		return
	}

	data, err := json.Marshal(rec)
	if err != nil {
		l.logger.Warn().Err(err).Msg("marshal attempt record failed")
		return
	}

	l.domain.Set(
		domaincache.CategorySessions,
		fmt.Sprintf("order-attempts:%s", rec.CustomerID),
		data,
		map[string]string{"session": rec.SessionID},
		[]string{MirrorTag, CustomerTag(rec.CustomerID)},
	)
}
