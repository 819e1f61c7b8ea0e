package security

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prayercircle/prayercircle/internal/audit"
	"github.com/prayercircle/prayercircle/internal/store"
)

// RateLimiter bounds authentication request creation. Two independent
// trailing-window counters (per user, per IP) are computed by database
// query; either one at the limit blocks. A tripped limit additionally
// writes a block entry to the cache store so subsequent attempts are
// refused without re-counting until the block expires.
//
// The limiter is a deterrent, not a hard security boundary: counting reads
// are not serialized against concurrent creations.
type RateLimiter struct {
	repo   Repository
	blocks store.Storage
	logger *Logger
	limit  int
	window time.Duration
	block  time.Duration
}

func userKey(userID uint) string {
	return "u:" + strconv.FormatUint(uint64(userID), 10)
}

func ipKey(ip string) string {
	return "ip:" + ip
}

func (l *RateLimiter) isBlocked(ctx context.Context, key string) bool {
	_, err := l.blocks.Get(ctx, key)
	if err == nil {
		return true
	}
	if err != store.ErrNotFound {
		slog.Warn("Could not read rate-limit block entry", "key", key, "error", err)
	}
	return false
}

// Check reports whether userID/ip may create another authentication
// request right now. A rejection always logs a rate_limit security event
// carrying both counts.
func (l *RateLimiter) Check(ctx context.Context, userID uint, username, ip, userAgent string) (bool, error) {
	if l.isBlocked(ctx, userKey(userID)) || l.isBlocked(ctx, ipKey(ip)) {
		return false, nil
	}

	since := time.Now().Add(-l.window)
	userCount, err := l.repo.CountRequestsByUser(ctx, userID, since)
	if err != nil {
		return false, err
	}
	ipCount, err := l.repo.CountRequestsByIP(ctx, ip, since)
	if err != nil {
		return false, err
	}
	if int(userCount) < l.limit && int(ipCount) < l.limit {
		return true, nil
	}

	for _, key := range []string{userKey(userID), ipKey(ip)} {
		if _, err := l.blocks.Incr(ctx, key, 1, l.block); err != nil {
			slog.Warn("Could not write rate-limit block entry", "key", key, "error", err)
		}
	}
	details := fmt.Sprintf("user_count=%d ip_count=%d limit=%d window=%s", userCount, ipCount, l.limit, l.window)
	l.logger.LogSecurityEvent(ctx, audit.EventTypeRateLimit, userID, username, ip, userAgent, details)
	return false, nil
}

func NewRateLimiter(repo Repository, blocks store.Storage, logger *Logger, limit int, window, block time.Duration) *RateLimiter {
	return &RateLimiter{
		repo:   repo,
		blocks: blocks,
		logger: logger,
		limit:  limit,
		window: window,
		block:  block,
	}
}
