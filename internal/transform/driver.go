package transform

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/simp-lee/epubtrans/internal/logging"
	"github.com/simp-lee/epubtrans/segment"
)

// Store is the subset of the progress store the driver needs.
type Store interface {
	Has(key segment.Key) (bool, error)
	Put(key segment.Key, text string) error
	MarkFailed(key segment.Key, cause error) error
}

// Options configures a Driver.
type Options struct {
	Genre          string
	TargetLanguage string

	// Concurrency is the number of segments in flight.
	Concurrency int

	// RequestsPerSecond paces calls to the service; 0 disables pacing.
	RequestsPerSecond float64

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// RetryDelay is the base of the exponential backoff between attempts.
	RetryDelay time.Duration

	// AbortOnFailure stops the run at the first segment that fails after
	// all retries. Otherwise the segment is recorded as failed and keeps its
	// original text at rebuild time.
	AbortOnFailure bool
}

// Stats summarises a driver run.
type Stats struct {
	Total   int // segments in the index
	Skipped int // already transformed by an earlier run
	Done    int
	Failed  int
}

// Driver transforms every pending segment of an index.
type Driver struct {
	t       Transformer
	store   Store
	log     *logrus.Logger
	opts    Options
	limiter *rate.Limiter
}

// NewDriver returns a driver. A nil log discards output.
func NewDriver(t Transformer, store Store, log *logrus.Logger, opts Options) *Driver {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if log == nil {
		log = logging.Discard()
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &Driver{
		t:       t,
		store:   store,
		log:     log,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Run transforms the segments of idx that the store does not have yet.
// Cancelling ctx stops scheduling and returns the context error; segments
// finished so far stay recorded.
func (d *Driver) Run(ctx context.Context, idx *segment.Index) (Stats, error) {
	st := Stats{Total: len(idx.Segments)}

	titles := make(map[string]string, len(idx.Chapters))
	for _, ch := range idx.Chapters {
		titles[ch.ID] = ch.Title
	}

	var pending []segment.Segment
	for _, s := range idx.Segments {
		ok, err := d.store.Has(s.Key())
		if err != nil {
			return st, err
		}
		if ok {
			st.Skipped++
			continue
		}
		pending = append(pending, s)
	}
	d.log.WithFields(logrus.Fields{
		"total":   st.Total,
		"skipped": st.Skipped,
		"pending": len(pending),
	}).Info("starting transformation")

	var done, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)

	for _, s := range pending {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			req := Request{
				Key:            s.Key(),
				Text:           s.Text,
				Genre:          d.opts.Genre,
				TargetLanguage: d.opts.TargetLanguage,
				ChapterTitle:   titles[s.ChapterID],
			}
			entry := d.log.WithFields(logrus.Fields{"chapter": s.ChapterID, "part": s.PartIndex})

			text, err := d.transformOne(gctx, req, entry)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				if markErr := d.store.MarkFailed(req.Key, err); markErr != nil {
					return markErr
				}
				entry.WithError(err).Warn("segment failed")
				if d.opts.AbortOnFailure {
					return fmt.Errorf("transform %s: %w", req.Key, err)
				}
				return nil
			}

			if err := d.store.Put(req.Key, text); err != nil {
				return err
			}
			n := done.Add(1)
			entry.WithFields(logrus.Fields{"done": n, "pending": len(pending)}).Debug("segment transformed")
			return nil
		})
	}

	err := g.Wait()
	st.Done = int(done.Load())
	st.Failed = int(failed.Load())
	if err == nil {
		err = ctx.Err()
	}
	return st, err
}

// transformOne calls the service for one segment with pacing and retries.
func (d *Driver) transformOne(ctx context.Context, req Request, entry *logrus.Entry) (string, error) {
	return retry.DoWithData(
		func() (string, error) {
			if err := d.limiter.Wait(ctx); err != nil {
				return "", retry.Unrecoverable(err)
			}
			out, err := d.t.Transform(ctx, req)
			if err != nil {
				return "", err
			}
			out = Clean(out)
			if out == "" {
				return "", ErrEmptyResult
			}
			return out, nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(d.opts.MaxRetries)+1),
		retry.Delay(d.opts.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) &&
				!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		retry.OnRetry(func(n uint, err error) {
			entry.WithError(err).WithField("attempt", n+1).Info("retrying segment")
		}),
	)
}
