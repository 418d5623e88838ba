package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"

	"github.com/zhouzirui/scene-studio/backend/pkg/sse"
)

// errStopped means the consumer of the event channel went away.
var errStopped = errors.New("agent: stream consumer gone")

// emitter sends the events of one request in order. Every send gives up once
// ctx is done so a disconnected client never blocks the pipeline.
type emitter struct {
	ctx       context.Context
	out       chan<- sse.Event
	sessionID string
}

func (e emitter) send(ev sse.Event) bool {
	if e.ctx.Err() != nil {
		return false
	}
	select {
	case e.out <- ev:
		return true
	case <-e.ctx.Done():
		return false
	}
}

func (e emitter) text(answer string) bool {
	return e.send(sse.Message(answer, e.sessionID))
}

// panicText is shown when an agent crashes mid-request.
const panicText = "服务器内部错误，请稍后重试。"

// guard runs one request pipeline and turns a panic into error + done so
// the transport can still close cleanly.
func guard(log zerolog.Logger, emit emitter, run func()) {
	var catcher panics.Catcher
	catcher.Try(run)
	if rec := catcher.Recovered(); rec != nil {
		log.Error().Err(rec.AsError()).Str("stack", string(rec.Stack)).Msg("agent panicked")
		if emit.send(sse.Error(panicText)) {
			emit.send(sse.Done())
		}
	}
}

type recvResult struct {
	msg *schema.Message
	err error
}

// consumeStream reads deltas until the stream ends and hands every non-empty
// one to fn. Receiving happens on a separate goroutine so that ctx bounds the
// wait even when the provider ignores cancellation. fn returning false stops
// the read with errStopped.
func consumeStream(ctx context.Context, stream *schema.StreamReader[*schema.Message], fn func(delta string) bool) error {
	defer stream.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan recvResult)
	go func() {
		defer close(results)
		for {
			msg, err := stream.Recv()
			select {
			case results <- recvResult{msg: msg, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-results:
			if !ok {
				return ctx.Err()
			}
			if errors.Is(res.err, io.EOF) {
				return nil
			}
			if res.err != nil {
				return res.err
			}
			if res.msg == nil || res.msg.Content == "" {
				continue
			}
			if !fn(res.msg.Content) {
				return errStopped
			}
		}
	}
}

// callWithContext runs fn and stops waiting for it once ctx is done. fn keeps
// ctx and may still finish in the background.
func callWithContext[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := fn(ctx)
		done <- result{val: val, err: err}
	}()

	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// withTimeout bounds ctx by d; d <= 0 means no limit.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// failureText turns an upstream error into the message shown to the user.
// Deadline errors from opCtx get a timeout text naming the operation.
func failureText(opCtx context.Context, op string, timeout time.Duration, err error, fallback string) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("请求超时：%s超过 %s 仍未完成，请稍后重试。", op, timeout)
	}
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}
