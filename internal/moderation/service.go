package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viresathorn804-oss/discord-bot5/internal/eventbus"
	"github.com/viresathorn804-oss/discord-bot5/internal/schedule"
	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

// Scheduler is the part of the schedule service moderation needs.
type Scheduler interface {
	Enqueue(ctx context.Context, scopeID, subjectID string, dueAt time.Time) (schedule.ScheduledAction, error)
	Cancel(ctx context.Context, scopeID, subjectID string) (schedule.ScheduledAction, bool, error)
	ListScope(scopeID string) []schedule.ScheduledAction
}

// Actor identifies who issued a command.
type Actor struct {
	ID   string
	Name string
}

func (a Actor) label() string {
	if a.Name != "" {
		return a.Name
	}
	if a.ID != "" {
		return a.ID
	}
	return "unknown"
}

// Result is the outcome for one subject. Batches report one Result per input.
type Result struct {
	Input     string
	SubjectID string
	OK        bool
	Detail    string
	Err       error
}

// Line renders the result as one chat line.
func (r Result) Line() string {
	who := r.SubjectID
	if who == "" {
		who = r.Input
	}
	if r.OK {
		return "✅ " + who + ": " + r.Detail
	}
	msg := r.Detail
	if r.Err != nil {
		msg = strings.TrimPrefix(r.Err.Error(), ErrBadInput.Error()+": ")
	}
	return "⚠️ " + who + ": " + msg
}

// Lines joins the lines of a batch.
func Lines(results []Result) string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Line())
	}
	return strings.Join(out, "\n")
}

type Service struct {
	sched    Scheduler
	platform Platform
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time
}

type Options struct {
	Scheduler Scheduler
	Platform  Platform
	Bus       eventbus.Bus
	Logger    logx.Logger
	Now       func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.Scheduler == nil || opts.Platform == nil {
		return nil, errors.New("moderation: scheduler and platform are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger.IsZero() {
		opts.Logger = logx.Nop()
	}
	return &Service{
		sched:    opts.Scheduler,
		platform: opts.Platform,
		bus:      opts.Bus,
		log:      opts.Logger.With(logx.String("comp", "moderation")),
		now:      opts.Now,
	}, nil
}

// TempBan bans the subject now and schedules the lift. Nothing is scheduled
// when the ban itself fails.
func (s *Service) TempBan(ctx context.Context, scopeID, rawSubject string, d time.Duration, actor Actor) Result {
	res := Result{Input: rawSubject}
	subject, err := ParseSubjectID(rawSubject)
	if err != nil {
		res.Err = err
		return res
	}
	res.SubjectID = subject
	if _, err := checkDuration(d); err != nil {
		res.Err = err
		return res
	}

	reason := fmt.Sprintf("tempban by %s for %s", actor.label(), FormatDuration(d))
	if err := s.platform.Ban(ctx, scopeID, subject, reason); err != nil {
		res.Err = fmt.Errorf("ban failed: %w", err)
		s.emit(EventTempBan, scopeID, subject, actor, time.Time{}, res.Err)
		return res
	}

	due := s.now().Add(d)
	a, err := s.sched.Enqueue(ctx, scopeID, subject, due)
	var ioErr *schedule.IOError
	switch {
	case err == nil:
		res.OK = true
		res.Detail = fmt.Sprintf("banned for %s, lifted at %s", FormatDuration(d), a.DueAt.UTC().Format(time.RFC3339))
	case errors.As(err, &ioErr):
		// Armed in memory; only a crash before the next successful save loses it.
		res.OK = true
		res.Detail = fmt.Sprintf("banned for %s (lift scheduled, not yet saved to disk)", FormatDuration(d))
	default:
		res.Err = fmt.Errorf("banned, but the lift could not be scheduled (unban manually): %w", err)
	}
	s.emit(EventTempBan, scopeID, subject, actor, a.DueAt, res.Err)
	s.log.Info("temporary ban",
		logx.String("scope", scopeID),
		logx.String("subject", subject),
		logx.String("actor", actor.ID),
		logx.Duration("for", d),
		logx.Bool("ok", res.OK),
	)
	return res
}

// Ban bans every subject permanently and drops their pending lifts.
func (s *Service) Ban(ctx context.Context, scopeID string, rawSubjects []string, actor Actor) []Result {
	reason := "banned by " + actor.label()
	return s.each(rawSubjects, func(res *Result) {
		if err := s.platform.Ban(ctx, scopeID, res.SubjectID, reason); err != nil {
			res.Err = fmt.Errorf("ban failed: %w", err)
			s.emit(EventBan, scopeID, res.SubjectID, actor, time.Time{}, res.Err)
			return
		}
		res.OK = true
		res.Detail = "banned"
		had, err := s.dropLift(ctx, scopeID, res.SubjectID)
		var ioErr *schedule.IOError
		switch {
		case errors.As(err, &ioErr):
			res.Detail = "banned (pending lift cancelled, not yet saved to disk)"
		case err != nil:
			res.OK = false
			res.Err = fmt.Errorf("banned, but the pending lift is still scheduled and will unban later: %w", err)
		case had:
			res.Detail = "banned (pending lift cancelled)"
		}
		s.emit(EventBan, scopeID, res.SubjectID, actor, time.Time{}, res.Err)
	})
}

// Unban lifts bans now and drops pending lifts.
func (s *Service) Unban(ctx context.Context, scopeID string, rawSubjects []string, actor Actor) []Result {
	return s.each(rawSubjects, func(res *Result) {
		had, cancelErr := s.dropLift(ctx, scopeID, res.SubjectID)
		err := s.platform.Unban(ctx, scopeID, res.SubjectID)
		switch {
		case err == nil:
			res.OK = true
			res.Detail = "unbanned"
		case errors.Is(err, ErrTargetGone) && had:
			res.OK = true
			res.Detail = "pending lift cancelled (was not banned)"
		case errors.Is(err, ErrTargetGone):
			res.Err = errors.New("not banned")
		default:
			res.Err = fmt.Errorf("unban failed: %w", err)
		}
		var ioErr *schedule.IOError
		switch {
		case cancelErr == nil:
		case errors.As(cancelErr, &ioErr):
			res.Detail += " (lift cancellation not yet saved to disk)"
		case res.Err != nil:
			res.Err = fmt.Errorf("%w; pending lift could not be cancelled: %v", res.Err, cancelErr)
		default:
			res.Detail += " (pending lift could not be cancelled: " + cancelErr.Error() + ")"
		}
		s.emit(EventUnban, scopeID, res.SubjectID, actor, time.Time{}, res.Err)
	})
}

// dropLift cancels the subject's pending lift. The command deadline does not
// apply: once the platform call went through, the lift has to go with it.
// A *schedule.IOError means it is gone in memory but not yet on disk.
func (s *Service) dropLift(ctx context.Context, scopeID, subjectID string) (bool, error) {
	_, had, err := s.sched.Cancel(context.WithoutCancel(ctx), scopeID, subjectID)
	if err != nil {
		var ioErr *schedule.IOError
		if !errors.As(err, &ioErr) {
			s.log.Warn("pending lift not cancelled",
				logx.String("scope", scopeID),
				logx.String("subject", subjectID),
				logx.Err(err),
			)
		}
	}
	return had, err
}

// Pending lists the scope's scheduled lifts, earliest first.
func (s *Service) Pending(scopeID string) []schedule.ScheduledAction {
	return s.sched.ListScope(scopeID)
}

// FormatPending renders Pending for chat.
func (s *Service) FormatPending(scopeID string) string {
	pending := s.Pending(scopeID)
	if len(pending) == 0 {
		return "No temporary bans pending."
	}
	now := s.now()
	var b strings.Builder
	fmt.Fprintf(&b, "⏳ Pending lifts (%d):", len(pending))
	for _, a := range pending {
		left := a.DueAt.Sub(now)
		if left < 0 {
			left = 0
		}
		fmt.Fprintf(&b, "\n- %s at %s (in %s)", a.SubjectID, a.DueAt.UTC().Format(time.RFC3339), FormatDuration(left))
	}
	return b.String()
}

func (s *Service) each(raws []string, fn func(res *Result)) []Result {
	out := make([]Result, 0, len(raws))
	for _, raw := range raws {
		res := Result{Input: raw}
		id, err := ParseSubjectID(raw)
		if err != nil {
			res.Err = err
			out = append(out, res)
			continue
		}
		res.SubjectID = id
		fn(&res)
		out = append(out, res)
	}
	return out
}

func (s *Service) emit(typ, scopeID, subjectID string, actor Actor, due time.Time, err error) {
	if s.bus == nil {
		return
	}
	d := EventData{
		Platform:  s.platform.Name(),
		ScopeID:   scopeID,
		SubjectID: subjectID,
		ActorID:   actor.ID,
		DueAt:     due,
		OK:        err == nil,
	}
	if err != nil {
		d.Err = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: d})
}
