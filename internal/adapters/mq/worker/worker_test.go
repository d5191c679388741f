package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/danielmerja/music-virality-rater/internal/adapters/mq/queue"
	"github.com/danielmerja/music-virality-rater/internal/adapters/mq/worker"
	"github.com/danielmerja/music-virality-rater/pkg/logger"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type recordingProcessor struct {
	mu        sync.Mutex
	processed []worker.Job
	fail      bool
	stallNext bool
	seen      chan worker.Job
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{seen: make(chan worker.Job, 64)}
}

func (p *recordingProcessor) Process(ctx context.Context, job worker.Job) error {
	p.mu.Lock()
	stall := p.stallNext
	p.stallNext = false
	p.mu.Unlock()
	if stall {
		<-ctx.Done()
		return ctx.Err()
	}
	p.mu.Lock()
	p.processed = append(p.processed, job)
	p.mu.Unlock()
	p.seen <- job
	if p.fail {
		return errors.New("generation failed")
	}
	return nil
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.processed)
}

func waitForJobs(t *testing.T, p *recordingProcessor, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-p.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for job %d of %d", i+1, n)
		}
	}
}

func TestWorkerPool(t *testing.T) {
	Convey("Given a worker pool over an in-memory queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		proc := newRecordingProcessor()

		Convey("When jobs are enqueued", func() {
			pool := worker.NewPool(4, q, proc)
			pool.Start(ctx)
			defer pool.Shutdown(context.Background())
			defer q.Close()

			for _, ms := range []int{5, 10, 20} {
				So(q.Enqueue(ctx, worker.Job{TrackID: "track-1", Milestone: ms}), ShouldBeTrue)
			}
			waitForJobs(t, proc, 3)

			Convey("Then every job is processed exactly once", func() {
				So(proc.count(), ShouldEqual, 3)
			})
		})

		Convey("When the processor fails", func() {
			proc.fail = true
			pool := worker.NewPool(1, q, proc)
			pool.Start(ctx)
			defer pool.Shutdown(context.Background())
			defer q.Close()

			So(q.Enqueue(ctx, worker.Job{TrackID: "track-1", Milestone: 5}), ShouldBeTrue)
			So(q.Enqueue(ctx, worker.Job{TrackID: "track-2", Milestone: 5}), ShouldBeTrue)
			waitForJobs(t, proc, 2)

			Convey("Then the worker keeps consuming later jobs", func() {
				So(proc.count(), ShouldEqual, 2)
			})
		})

		Convey("When a job outlives its timeout", func() {
			proc.stallNext = true
			w := worker.NewInMemoryWorker(q, proc, worker.WithJobTimeout(20*time.Millisecond))
			go w.Run(ctx)
			defer q.Close()

			So(q.Enqueue(ctx, worker.Job{TrackID: "track-1", Milestone: 5}), ShouldBeTrue)
			So(q.Enqueue(ctx, worker.Job{TrackID: "track-2", Milestone: 5}), ShouldBeTrue)

			Convey("Then the worker cancels it and moves on", func() {
				// The first job blocks until its context expires, so only
				// the second lands in the processed list.
				select {
				case job := <-proc.seen:
					So(job.TrackID, ShouldEqual, "track-2")
				case <-time.After(2 * time.Second):
					t.Fatal("worker did not recover from the stuck job")
				}
			})

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			So(w.Shutdown(shutdownCtx), ShouldBeNil)
		})

		Convey("When the pool shuts down", func() {
			pool := worker.NewPool(2, q, proc)
			pool.Start(ctx)

			So(q.Enqueue(ctx, worker.Job{TrackID: "track-1", Milestone: 5}), ShouldBeTrue)
			waitForJobs(t, proc, 1)

			So(q.Close(), ShouldBeNil)
			So(pool.Shutdown(context.Background()), ShouldBeNil)
		})
	})
}
