package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viresathorn804-oss/discord-bot5/internal/schedule"
	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

const defaultUnbanTimeout = 30 * time.Second

// Executor lifts expired temporary bans. It is the schedule's executor.
type Executor struct {
	platform Platform
	log      logx.Logger
	timeout  time.Duration
}

var _ schedule.Executor = (*Executor)(nil)

func NewExecutor(p Platform, log logx.Logger) *Executor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Executor{platform: p, log: log.With(logx.String("comp", "moderation.executor")), timeout: defaultUnbanTimeout}
}

func (e *Executor) Execute(ctx context.Context, scopeID, subjectID string, kind schedule.Kind) error {
	if kind != schedule.KindLiftRestriction {
		return fmt.Errorf("unsupported action kind %q", kind)
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	err := e.platform.Unban(ctx, scopeID, subjectID)
	switch {
	case err == nil:
		e.log.Info("temporary ban lifted",
			logx.String("platform", e.platform.Name()),
			logx.String("scope", scopeID),
			logx.String("subject", subjectID),
		)
		return nil
	case errors.Is(err, ErrTargetGone):
		e.log.Info("temporary ban already gone",
			logx.String("scope", scopeID),
			logx.String("subject", subjectID),
			logx.Err(err),
		)
	}
	return err
}
