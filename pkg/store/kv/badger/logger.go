package badger

import (
	"strings"

	"github.com/marmos91/atlasfs/internal/logger"
)

// badgerLogger routes Badger's internal logging into the process logger.
type badgerLogger struct {
	l *logger.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.l.Error("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.l.Info("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.l.Debug("badger: "+strings.TrimSuffix(format, "\n"), args...)
}
