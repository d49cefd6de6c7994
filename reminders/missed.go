package reminders

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/carecircle/care-engine/care"
)

// DefaultMissedGrace is how long a pending occurrence waits for an action.
const DefaultMissedGrace = 2 * time.Hour

// MissedSweeper closes out occurrences nobody acted on.
type MissedSweeper struct {
	Store   care.Store
	Clock   care.Clock
	Logger  *zap.Logger
	Grace   time.Duration
	Enabled bool
}

func NewMissedSweeper(store care.Store, clock care.Clock, logger *zap.Logger, grace time.Duration, enabled bool) *MissedSweeper {
	if clock == nil {
		clock = care.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if grace <= 0 {
		grace = DefaultMissedGrace
	}
	return &MissedSweeper{Store: store, Clock: clock, Logger: logger, Grace: grace, Enabled: enabled}
}

// Run marks pending occurrences scheduled before now-Grace as missed and
// returns how many changed. A disabled sweeper does nothing.
func (m *MissedSweeper) Run(ctx context.Context) (int, error) {
	if !m.Enabled {
		return 0, nil
	}
	cutoff := m.Clock.Now().Add(-m.Grace)
	n, err := m.Store.MarkMissed(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to mark missed occurrences: %w", err)
	}
	if n > 0 {
		m.Logger.Info("occurrences marked missed", zap.Int("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}
