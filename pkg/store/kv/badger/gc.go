package badger

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/robfig/cron/v3"
)

// DefaultGCDiscardRatio is used when Config.GCDiscardRatio is zero.
const DefaultGCDiscardRatio = 0.5

// maxGCRounds bounds how many value-log files one scheduled run may rewrite.
const maxGCRounds = 16

func (s *Store) startGC() error {
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.GCSchedule, func() { s.RunGC() }); err != nil {
		return fmt.Errorf("badger: invalid gc schedule %q: %w", s.cfg.GCSchedule, err)
	}
	c.Start()
	s.cron = c
	s.log.Debug("badger: value log GC scheduled %q", s.cfg.GCSchedule)
	return nil
}

// RunGC reclaims value-log space until Badger reports nothing left to
// rewrite. It returns the number of files rewritten.
//
// Called by the cron schedule; exported so operators and tests can trigger
// a run directly.
func (s *Store) RunGC() int {
	ratio := s.cfg.GCDiscardRatio
	if ratio <= 0 {
		ratio = DefaultGCDiscardRatio
	}

	start := time.Now()
	rewritten := 0
	for rewritten < maxGCRounds {
		err := s.db.RunValueLogGC(ratio)
		if err == nil {
			rewritten++
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
			s.log.Warn("badger: value log GC failed: %v", err)
		}
		break
	}

	if rewritten > 0 {
		s.log.Info("badger: value log GC rewrote %d file(s) in %v", rewritten, time.Since(start))
	}
	return rewritten
}
