package moderation

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] is the outermost middleware.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd *Command) (string, error) {
			if d <= 0 {
				return next(ctx, cmd)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, cmd)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd *Command) (out string, err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered",
						logx.String("cmd", cmd.Name),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, cmd)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd *Command) (string, error) {
			start := time.Now()
			out, err := next(ctx, cmd)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("platform", cmd.Platform),
				logx.String("scope", cmd.ScopeID),
				logx.String("actor", cmd.Actor.ID),
				logx.String("cmd", cmd.Name),
				logx.Int("args", len(cmd.Args)),
				logx.Duration("dur", d),
			}
			switch {
			case err != nil:
				log.Warn("command failed", append(fields, logx.Err(err))...)
			case d >= 750*time.Millisecond:
				log.Info("command ok", fields...)
			default:
				log.Debug("command ok", fields...)
			}
			return out, err
		}
	}
}
