package dwarf

import (
	"context"
	"runtime"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ScanStats counts what a Scan decoded.
type ScanStats struct {
	Units   uint64
	Entries uint64
	Nulls   uint64
	Fields  uint64
}

type scanCounters struct {
	units, entries, nulls, fields atomic.Uint64
}

func (c *scanCounters) snapshot() ScanStats {
	return ScanStats{
		Units:   c.units.Load(),
		Entries: c.entries.Load(),
		Nulls:   c.nulls.Load(),
		Fields:  c.fields.Load(),
	}
}

// VisitFunc receives every entry of every unit, null entries included.
// During a Scan it is called from several goroutines at once.
type VisitFunc func(u *Unit, e *Entry) error

// Scan decodes all units of .debug_info on up to workers goroutines, each
// unit with its own cursor over its part of the section. Unit headers are
// read up front; the first error stops the scan.
//
// workers <= 0 means runtime.NumCPU().
func (d *Data) Scan(ctx context.Context, workers int, fn VisitFunc) (ScanStats, error) {
	var cnt scanCounters

	units, err := d.AllUnits()
	if err != nil {
		return cnt.snapshot(), err
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, u := range units {
		u := u
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			it := d.Entries(u)
			for {
				e, err := it.Next()
				if err != nil {
					return err
				}
				if e == nil {
					break
				}
				if e.IsNull() {
					cnt.nulls.Inc()
				} else {
					cnt.entries.Inc()
					cnt.fields.Add(uint64(len(e.Fields)))
				}
				if fn != nil {
					if err := fn(u, e); err != nil {
						return err
					}
				}
			}
			cnt.units.Inc()
			return nil
		})
	}
	err = g.Wait()

	stats := cnt.snapshot()
	d.log.Debug("scan done",
		zap.Int("workers", workers),
		zap.Uint64("units", stats.Units),
		zap.Uint64("entries", stats.Entries),
		zap.Uint64("abbrev_tables", d.abbrevs.Builds()),
		zap.Error(err))
	return stats, err
}
