package watcher

import (
	"context"
	"fmt"
)

// run is the worker loop. Each cycle waits at most PollInterval for records,
// sweeps expired moves whether or not anything arrived, then reads and
// dispatches the records in arrival order. It returns nil when ctx is done
// and the error otherwise.
func (w *Watcher) run(ctx context.Context, src Source, d *dispatcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		ready, err := src.Wait(w.opts.PollInterval)
		if err != nil {
			return fmt.Errorf("wait for records: %w", err)
		}

		d.Expire(w.opts.Clock.Now())

		if ready {
			records, err := src.Read()
			if err != nil {
				return fmt.Errorf("read records: %w", err)
			}
			for _, rec := range records {
				w.handleRecord(d, rec)
			}
		}

		w.publishPending(d, d.Pending())
	}
}

func (w *Watcher) handleRecord(d *dispatcher, rec Record) {
	switch rec.Kind {
	case RecordOverflow:
		d.metrics.Dropped(DropQueueOverflow, 1)
		if d.warn.Allow() {
			w.logger.Warn("inotify queue overflowed, records were lost")
		}
	case RecordIgnored:
		// The kernel dropped the watch, usually because its directory was deleted.
		if w.forget(rec.WatchID, d.metrics) {
			w.logger.Info("watch removed by kernel", "wd", rec.WatchID)
		}
	default:
		d.Dispatch(rec)
	}
}

func (w *Watcher) publishPending(d *dispatcher, n int) {
	if int64(n) == w.pending.Swap(int64(n)) {
		return
	}
	d.metrics.Pending(n)
}
