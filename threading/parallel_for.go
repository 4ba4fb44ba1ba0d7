// Package threading provides the data-parallel loop abstraction shared by the
// branch annotator and the predictor runtime.
package threading

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/tarstars/tree_codegen/tcerr"
)

//ScheduleKind selects how loop indices are handed out to worker goroutines.
type ScheduleKind int

const (
	KindAuto ScheduleKind = iota
	KindDynamic
	KindStatic
	KindGuided
)

//Schedule is a schedule kind plus an optional chunk size.
type Schedule struct {
	Kind  ScheduleKind
	Chunk uint64
}

func Auto() Schedule { return Schedule{Kind: KindAuto} }

func Dynamic(chunk uint64) Schedule { return Schedule{Kind: KindDynamic, Chunk: chunk} }

func Static(chunk uint64) Schedule { return Schedule{Kind: KindStatic, Chunk: chunk} }

func Guided() Schedule { return Schedule{Kind: KindGuided} }

//ThreadConfig fixes the number of worker goroutines used by a parallel region.
type ThreadConfig struct {
	NThread int
}

//ConfigureThreadConfig validates a requested thread count. Zero or a negative
//value selects one worker per logical CPU.
func ConfigureThreadConfig(nthread int) ThreadConfig {
	if nthread <= 0 {
		return ThreadConfig{NThread: runtime.NumCPU()}
	}
	return ThreadConfig{NThread: nthread}
}

//Body is one loop iteration. It receives the loop index and the id of the
//worker executing it. A non-nil error cancels the remaining iterations of the
//same worker; the first error reported wins.
type Body func(i uint64, threadID int) error

//runBody executes one iteration, converting a panic into an error so a
//failing worker surfaces on the joining goroutine instead of crashing the
//process.
func runBody(body Body, i uint64, threadID int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = tcerr.Errorf(tcerr.KindConcurrency, "worker panicked: %v", r)
		}
	}()
	return body(i, threadID)
}

//ParallelFor runs body for every index in [begin, end) using the given thread
//configuration and schedule. It blocks until all workers have joined and
//returns the first error any worker produced.
func ParallelFor(begin, end uint64, config ThreadConfig, sched Schedule, body Body) error {
	if begin >= end {
		return nil
	}
	n := end - begin
	nthread := uint64(config.NThread)
	if nthread > n {
		nthread = n
	}
	if nthread <= 1 {
		for i := begin; i < end; i++ {
			if err := runBody(body, i, 0); err != nil {
				return tcerr.Wrap(tcerr.KindConcurrency, err, "worker failed")
			}
		}
		return nil
	}

	var g errgroup.Group
	switch sched.Kind {
	case KindStatic:
		if sched.Chunk == 0 {
			// Contiguous bands, one per worker.
			portion := n / nthread
			remainder := n % nthread
			lo := begin
			for tid := uint64(0); tid < nthread; tid++ {
				size := portion
				if tid < remainder {
					size++
				}
				rbegin, rend := lo, lo+size
				lo = rend
				id := int(tid)
				g.Go(func() error {
					for i := rbegin; i < rend; i++ {
						if err := runBody(body, i, id); err != nil {
							return err
						}
					}
					return nil
				})
			}
		} else {
			// Round-robin chunks of the requested size.
			chunk := sched.Chunk
			for tid := uint64(0); tid < nthread; tid++ {
				id := int(tid)
				g.Go(func() error {
					for base := begin + uint64(id)*chunk; base < end; base += nthread * chunk {
						hi := base + chunk
						if hi > end {
							hi = end
						}
						for i := base; i < hi; i++ {
							if err := runBody(body, i, id); err != nil {
								return err
							}
						}
					}
					return nil
				})
			}
		}
	case KindAuto, KindDynamic, KindGuided:
		chunk := sched.Chunk
		if chunk == 0 {
			chunk = 1
		}
		var next atomic.Uint64
		next.Store(begin)
		for tid := uint64(0); tid < nthread; tid++ {
			id := int(tid)
			g.Go(func() error {
				for {
					base := next.Add(chunk) - chunk
					if base >= end {
						return nil
					}
					hi := base + chunk
					if hi > end {
						hi = end
					}
					for i := base; i < hi; i++ {
						if err := runBody(body, i, id); err != nil {
							return err
						}
					}
				}
			})
		}
	}
	if err := g.Wait(); err != nil {
		return tcerr.Wrap(tcerr.KindConcurrency, err, "worker failed")
	}
	return nil
}
