package queue_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/danielmerja/music-virality-rater/internal/adapters/mq/queue"
)

func TestInMemoryQueue(t *testing.T) {
	Convey("Given an in-memory job queue", t, func() {
		ctx := context.Background()

		Convey("When a job is enqueued and dequeued", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(4))
			defer q.Close()

			job := queue.Job{TrackID: "track-1", Milestone: 5}
			So(q.Enqueue(ctx, job), ShouldBeTrue)
			So(q.Len(ctx), ShouldEqual, 1)

			select {
			case got := <-q.Dequeue(ctx):
				So(got, ShouldResemble, job)
			case <-time.After(time.Second):
				t.Fatal("timed out waiting for job")
			}
		})

		Convey("When the queue is full", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(1))
			defer q.Close()

			So(q.Enqueue(ctx, queue.Job{TrackID: "track-1", Milestone: 5}), ShouldBeTrue)

			Convey("Then the next enqueue is dropped, not blocked", func() {
				So(q.Enqueue(ctx, queue.Job{TrackID: "track-2", Milestone: 5}), ShouldBeFalse)
				So(q.Len(ctx), ShouldEqual, 1)
			})
		})

		Convey("When the queue is closed", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(4))
			So(q.Enqueue(ctx, queue.Job{TrackID: "track-1", Milestone: 10}), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)

			Convey("Then enqueues are refused", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, queue.Job{TrackID: "track-2", Milestone: 10}), ShouldBeFalse)
			})

			Convey("Then buffered jobs drain before the channel closes", func() {
				ch := q.Dequeue(ctx)
				got, ok := <-ch
				So(ok, ShouldBeTrue)
				So(got.TrackID, ShouldEqual, "track-1")

				_, ok = <-ch
				So(ok, ShouldBeFalse)
			})

			Convey("Then a second close is a no-op", func() {
				So(q.Close(), ShouldBeNil)
			})
		})

		Convey("When the consumer context is cancelled", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(4))
			defer q.Close()

			cancelCtx, cancel := context.WithCancel(ctx)
			ch := q.Dequeue(cancelCtx)
			cancel()
			So(q.Enqueue(ctx, queue.Job{TrackID: "track-1", Milestone: 20}), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)

			Convey("Then the channel closes after delivering at most one job", func() {
				deadline := time.After(time.Second)
				delivered := 0
				for open := true; open; {
					select {
					case _, ok := <-ch:
						if !ok {
							open = false
							break
						}
						delivered++
					case <-deadline:
						t.Fatal("dequeue channel did not close after cancel")
					}
				}
				So(delivered, ShouldBeLessThanOrEqualTo, 1)
			})
		})
	})
}
