package router

import (
	"context"
	"fmt"
	"time"

	"nthweekday/pkg/logx"
)

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					req.Logger.Error("panic recovered", logx.Panic(r), logx.Stack())
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// MWRequestLog logs every request; quick successes go to debug.
func MWRequestLog() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)
			fields := []logx.Field{logx.String("cmd", req.Command), logx.Duration("dur", d)}
			switch {
			case err != nil:
				req.Logger.Warn("request failed", append(fields, logx.Err(err))...)
			case d >= 750*time.Millisecond:
				req.Logger.Info("request ok", fields...)
			default:
				req.Logger.Debug("request ok", fields...)
			}
			return err
		}
	}
}

// MWReplyError sends handler errors back to the chat.
func MWReplyError() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			err := next(ctx, req)
			if err != nil {
				_ = req.Reply(ctx, "error: "+err.Error())
			}
			return err
		}
	}
}
