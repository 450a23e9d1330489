package send

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"webtexter/internal/carrier"
	"webtexter/internal/message"
	logx "webtexter/pkg/logx"
)

// worker owns one carrier session exclusively and drains recipient jobs
// from the queue, sending each recipient's chunks strictly in order.
type worker struct {
	orch    *Orchestrator
	sess    carrier.Session
	req     Request
	chunks  []message.Chunk
	limiter *rate.Limiter
	log     logx.Logger

	// dead is set after a second consecutive auth failure; every
	// remaining send on this session fails with it immediately.
	dead error
}

func (w *worker) run(ctx context.Context, queue <-chan job, results [][]Result) {
	for {
		// fast-exit so cancellation wins over queued work
		select {
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case j, ok := <-queue:
			if !ok {
				return
			}
			results[j.idx] = w.sendAll(ctx, j)
		}
	}
}

// sendAll delivers every chunk to one recipient. A failed chunk does not
// stop the remaining chunks; each gets its own attempt and its own result.
func (w *worker) sendAll(ctx context.Context, j job) []Result {
	row := make([]Result, 0, len(w.chunks))
	for _, chunk := range w.chunks {
		if ctx.Err() != nil {
			// Not-yet-started sends are abandoned without a result.
			break
		}
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				break
			}
		}

		start := time.Now()
		err := w.sendOne(ctx, j.number, chunk)
		res := Result{Recipient: j.number, Chunk: chunk, Err: err, Took: time.Since(start)}
		row = append(row, res)
		w.orch.record(ctx, w.req.Carrier, res)

		if err != nil {
			w.log.Warn("send failed",
				logx.String("number", j.number),
				logx.Int("part", chunk.Index),
				logx.Int("of", chunk.Total),
				logx.Err(err))
		} else {
			w.log.Debug("chunk sent",
				logx.String("number", j.number),
				logx.Int("part", chunk.Index),
				logx.Int("of", chunk.Total),
				logx.Duration("took", res.Took))
		}
	}
	return row
}

// sendOne performs one send with the single re-authenticate-and-retry the
// session contract allows on expiry. A second consecutive auth failure
// marks the session dead for everything that follows.
func (w *worker) sendOne(ctx context.Context, number string, chunk message.Chunk) error {
	if w.dead != nil {
		return w.dead
	}

	err := w.sess.Send(ctx, number, chunk)
	var ae *carrier.AuthError
	if !errors.As(err, &ae) || !ae.Expired {
		return err
	}

	w.log.Info("session expired, re-authenticating")
	if rerr := w.sess.Authenticate(ctx); rerr != nil {
		w.dead = rerr
		return rerr
	}
	err = w.sess.Send(ctx, number, chunk)
	if errors.As(err, &ae) {
		w.dead = err
	}
	return err
}
