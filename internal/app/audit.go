package app

import (
	"context"
	"time"

	"github.com/viresathorn804-oss/discord-bot5/internal/eventbus"
	"github.com/viresathorn804-oss/discord-bot5/internal/moderation"
	"github.com/viresathorn804-oss/discord-bot5/internal/schedule"
	"github.com/viresathorn804-oss/discord-bot5/internal/storage"
	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

// auditEntry maps a bus event to an audit record. Unknown events are skipped.
func auditEntry(ev eventbus.Event, platform string) (storage.AuditEntry, bool) {
	e := storage.AuditEntry{At: ev.Time, Event: ev.Type, Platform: platform}
	switch d := ev.Data.(type) {
	case schedule.EventData:
		e.ScopeID = d.Action.ScopeID
		e.SubjectID = d.Action.SubjectID
		e.DueAt = d.Action.DueAt
		e.OK = ev.Type != schedule.EventFailed
		e.Error = d.Err
	case moderation.EventData:
		e.Platform = d.Platform
		e.ScopeID = d.ScopeID
		e.SubjectID = d.SubjectID
		e.ActorID = d.ActorID
		e.DueAt = d.DueAt
		e.OK = d.OK
		e.Error = d.Err
	default:
		return storage.AuditEntry{}, false
	}
	return e, true
}

// runAudit copies schedule and moderation events from events into the audit
// store until ctx ends. Subscribe before anything publishes.
func runAudit(ctx context.Context, bus eventbus.Bus, events <-chan eventbus.Event, store storage.Store, platform string, log logx.Logger) {

	write := func(ev eventbus.Event) {
		e, ok := auditEntry(ev, platform)
		if !ok {
			return
		}
		wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := store.AppendAudit(wctx, e); err != nil {
			log.Warn("audit write failed", logx.String("event", ev.Type), logx.Err(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			// Drain what is already queued.
			for {
				select {
				case ev := <-events:
					write(ev)
				default:
					if n := bus.Dropped(); n > 0 {
						log.Warn("audit events dropped", logx.Int64("count", int64(n)))
					}
					return
				}
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			write(ev)
		}
	}
}
