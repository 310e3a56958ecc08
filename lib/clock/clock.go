// Package clock formats sample timestamps from an NTP-corrected wall clock.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/xerrors"

	"github.com/pbrmon/pbrmon/lib/history"
	"github.com/pbrmon/pbrmon/lib/logctx"
)

const DefaultServer = "pool.ntp.org"

// QueryFunc returns how far the local clock is behind the server.
type QueryFunc func(server string) (time.Duration, error)

type Config struct {
	// Server is the NTP host. Empty trusts the system clock as synchronized.
	Server string
	// UTCOffset fixes the zone timestamps are rendered in.
	UTCOffset time.Duration
	// MaxRetries bounds one Sync call. Zero means 5.
	MaxRetries uint64
	// RetryInterval is the first backoff delay. Zero means one second.
	RetryInterval time.Duration
	// GetTime returns the local time
	GetTime func() time.Time
	Query   QueryFunc
}

type Clock struct {
	cfg    Config
	loc    *time.Location
	mu     sync.RWMutex
	offset time.Duration
	synced bool
}

func New(cfg Config) *Clock {
	if cfg.GetTime == nil {
		cfg.GetTime = time.Now
	}
	if cfg.Query == nil {
		cfg.Query = QueryNTP
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = time.Second
	}
	return &Clock{
		cfg:    cfg,
		loc:    time.FixedZone("", int(cfg.UTCOffset.Seconds())),
		synced: cfg.Server == "",
	}
}

// QueryNTP asks server for the clock offset and rejects unusable answers.
func QueryNTP(server string) (time.Duration, error) {
	resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: 5 * time.Second})
	if err != nil {
		return 0, xerrors.Errorf("failed to query %s: %w", server, err)
	}
	if err := resp.Validate(); err != nil {
		return 0, xerrors.Errorf("invalid response from %s: %w", server, err)
	}
	return resp.ClockOffset, nil
}

// Sync queries the NTP server with exponential backoff. On failure the clock
// keeps its previous state.
func (c *Clock) Sync(ctx context.Context) error {
	if c.cfg.Server == "" {
		return nil
	}
	logger := logctx.From(ctx)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, c.cfg.MaxRetries), ctx)

	var offset time.Duration
	err := backoff.Retry(func() error {
		var err error
		offset, err = c.cfg.Query(c.cfg.Server)
		if err != nil {
			logger.Debug("NTP query failed", "server", c.cfg.Server, "error", err)
		}
		return err
	}, policy)
	if err != nil {
		return xerrors.Errorf("failed to sync clock: %w", err)
	}

	c.mu.Lock()
	c.offset = offset
	c.synced = true
	c.mu.Unlock()
	logger.Info("Time synchronized", "server", c.cfg.Server, "offset", offset, "now", c.Now())
	return nil
}

// StartSyncLoop syncs in the background right away and then resyncs every
// interval until ctx is done. A non-positive interval means one attempt only.
// Failures are logged and never reset an earlier successful sync.
func (c *Clock) StartSyncLoop(ctx context.Context, interval time.Duration) {
	if c.cfg.Server == "" {
		return
	}
	logger := logctx.From(ctx)
	go func() {
		if err := c.Sync(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("Clock is not synchronized, timestamps are N/A until it is", "server", c.cfg.Server, "error", err)
		}
		if interval <= 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Sync(ctx); err != nil && ctx.Err() == nil {
					logger.Warn("Clock resync failed", "error", err)
				}
			}
		}
	}()
}

func (c *Clock) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

// Time returns the corrected time, or false if the clock has never synced.
func (c *Clock) Time() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.synced {
		return time.Time{}, false
	}
	return c.cfg.GetTime().Add(c.offset).In(c.loc), true
}

// Now formats the corrected time, or "N/A" before the first sync.
func (c *Clock) Now() string {
	t, ok := c.Time()
	if !ok {
		return history.TimestampUnavailable
	}
	return t.Format(history.TimestampLayout)
}
