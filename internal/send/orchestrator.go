// Package send fans one logical request out across resolved recipients and
// message chunks, and collects per-(number, chunk) outcomes.
package send

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"webtexter/internal/alias"
	"webtexter/internal/carrier"
	"webtexter/internal/history"
	"webtexter/internal/message"
	logx "webtexter/pkg/logx"
)

// Dialer builds a carrier session. Swappable in tests.
type Dialer func(kind carrier.Kind, creds carrier.Credentials) (carrier.Session, error)

type Orchestrator struct {
	cfg  Config
	log  logx.Logger
	hist history.Store
	dial Dialer
}

// New creates an orchestrator. hist may be nil when history is disabled.
func New(cfg Config, log logx.Logger, hist history.Store) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	o := &Orchestrator{cfg: cfg, log: log, hist: hist}
	o.dial = func(kind carrier.Kind, creds carrier.Credentials) (carrier.Session, error) {
		return carrier.New(kind, creds, carrier.Options{
			Timeout:    cfg.Timeout,
			CookiePath: cfg.CookiePath,
			Log:        log,
		})
	}
	return o
}

// NewWithDialer is New with a custom session factory (tests).
func NewWithDialer(cfg Config, log logx.Logger, hist history.Store, dial Dialer) *Orchestrator {
	o := New(cfg, log, hist)
	o.dial = dial
	return o
}

// Execute resolves, authenticates, splits and sends.
//
// Unknown recipients, authentication failure, a zero free-text balance and
// an over-length body with splitting disabled all abort the run before any
// send is attempted; those come back as a non-nil error with a nil Run.
// Individual send failures never abort the run: each lands in its own
// Result and the Run's Status reflects all/partial/none.
func (o *Orchestrator) Execute(ctx context.Context, req Request, table alias.Table) (*Run, error) {
	numbers, err := alias.ResolveAll(req.Recipients, table)
	if err != nil {
		return nil, err
	}
	if len(numbers) == 0 {
		return &Run{}, nil
	}

	creds := carrier.Credentials{Username: req.Username, Password: req.Password}
	primary, err := o.dial(req.Carrier, creds)
	if err != nil {
		return nil, err
	}
	if err := primary.Authenticate(ctx); err != nil {
		return nil, err
	}
	o.log.Info("logged in", logx.String("carrier", string(req.Carrier)))

	if err := o.checkQuota(ctx, primary); err != nil {
		return nil, err
	}

	chunks, err := message.Split(req.Body, primary.MaxMessageLength(), req.AllowSplit)
	if err != nil {
		return nil, err
	}
	if len(chunks) > 1 {
		o.log.Info("message will be split",
			logx.Int("chars", len([]rune(req.Body))),
			logx.Int("parts", len(chunks)),
			logx.Int("max", primary.MaxMessageLength()))
	}

	return o.fanOut(ctx, req, primary, creds, numbers, chunks), nil
}

// checkQuota scrapes the free-text balance when the session can report one.
// A positive zero aborts the run; an unknown balance only warns.
func (o *Orchestrator) checkQuota(ctx context.Context, sess carrier.Session) error {
	qr, ok := sess.(carrier.QuotaReporter)
	if !ok {
		return nil
	}
	n, err := qr.TextsRemaining(ctx)
	switch {
	case err != nil:
		o.log.Warn("could not fetch free-text balance", logx.Err(err))
	case n == 0:
		return carrier.ErrNoTextsRemaining
	case n < 0:
		o.log.Warn("could not determine free-text balance")
	default:
		o.log.Info("free texts remaining", logx.Int("count", n))
	}
	return nil
}

type job struct {
	idx    int
	number string
}

// fanOut sends every chunk to every number over a bounded worker pool.
// Each recipient's chunks go out strictly in order on one session; distinct
// recipients are independent. Worker 0 reuses the already-authenticated
// primary session; extra workers authenticate their own.
func (o *Orchestrator) fanOut(ctx context.Context, req Request, primary carrier.Session, creds carrier.Credentials, numbers []string, chunks []message.Chunk) *Run {
	results := make([][]Result, len(numbers))
	var jobs []job
	for i, raw := range numbers {
		n, err := primary.NormalizeNumber(raw)
		if err != nil {
			// No network call is worth making for a number the
			// carrier will refuse; fail every chunk up front.
			rejected := &carrier.SendError{Carrier: req.Carrier, Reason: carrier.ReasonRejectedNumber, Cause: err}
			row := make([]Result, len(chunks))
			for c, ch := range chunks {
				row[c] = Result{Recipient: raw, Chunk: ch, Err: rejected}
				o.record(ctx, req.Carrier, row[c])
			}
			results[i] = row
			o.log.Warn("recipient skipped", logx.String("number", raw), logx.Err(err))
			continue
		}
		jobs = append(jobs, job{idx: i, number: n})
	}

	if len(jobs) > 0 {
		var limiter *rate.Limiter
		if o.cfg.RatePerSec > 0 {
			limiter = rate.NewLimiter(rate.Limit(o.cfg.RatePerSec), o.cfg.RatePerSec)
		}

		workers := o.cfg.workers()
		if workers > len(jobs) {
			workers = len(jobs)
		}

		queue := make(chan job)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			sess := primary
			if i > 0 {
				extra, err := o.dial(req.Carrier, creds)
				if err != nil || extra.Authenticate(ctx) != nil {
					// Pool shrinks; worker 0 still drains everything.
					o.log.Warn("extra session unavailable", logx.Int("worker", i))
					continue
				}
				sess = extra
			}
			wg.Add(1)
			go func(idx int, sess carrier.Session) {
				defer wg.Done()
				w := &worker{orch: o, sess: sess, req: req, chunks: chunks, limiter: limiter, log: o.log.With(logx.Int("worker", idx))}
				w.run(ctx, queue, results)
			}(i, sess)
		}

		feed(ctx, queue, jobs)
		wg.Wait()
	}

	run := &Run{}
	for _, row := range results {
		for _, res := range row {
			if res.Recipient != "" {
				run.Results = append(run.Results, res)
			}
		}
	}
	return run
}

// feed pushes jobs until done or cancelled, then closes the queue.
func feed(ctx context.Context, queue chan<- job, jobs []job) {
	defer close(queue)
	for _, j := range jobs {
		select {
		case <-ctx.Done():
			return
		case queue <- j:
		}
	}
}

func (o *Orchestrator) record(ctx context.Context, kind carrier.Kind, res Result) {
	if o.hist == nil {
		return
	}
	rec := history.Record{
		Carrier:    string(kind),
		Recipient:  res.Recipient,
		ChunkIndex: res.Chunk.Index,
		ChunkTotal: res.Chunk.Total,
		OK:         res.OK(),
		TookMS:     res.Took.Milliseconds(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := o.hist.Append(ctx, rec); err != nil {
		o.log.Debug("history append failed", logx.Err(err))
	}
}
