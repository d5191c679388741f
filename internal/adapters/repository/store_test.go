package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/danielmerja/music-virality-rater/internal/adapters/repository"
	"github.com/danielmerja/music-virality-rater/internal/domain/model"
)

func openStore(t *testing.T) *repository.Store {
	t.Helper()
	store, err := repository.Open(filepath.Join(t.TempDir(), "rater.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestTrackLifecycle(t *testing.T) {
	Convey("Given a store with an owner profile", t, func() {
		ctx := context.Background()
		store := openStore(t)
		_, err := store.EnsureProfile(ctx, "owner-1", "owner", 20)
		So(err, ShouldBeNil)

		track := &model.Track{
			OwnerID:         "owner-1",
			Title:           "Neon Skyline",
			GenreTags:       []string{"synthwave", "retro"},
			ProductionStage: "demo",
			ShareToken:      "abc123",
		}
		So(store.CreateTrack(ctx, track), ShouldBeNil)

		Convey("When the track is created", func() {
			got, err := store.GetTrack(ctx, track.ID)
			So(err, ShouldBeNil)

			Convey("Then it starts as a draft with zero votes", func() {
				So(got.Status, ShouldEqual, model.StatusDraft)
				So(got.VotesReceived, ShouldEqual, 0)
				So(got.GenreTags, ShouldResemble, []string{"synthwave", "retro"})
				So(got.OverallScore, ShouldBeNil)
				So(got.Percentile, ShouldBeNil)
			})

			Convey("And the owner's upload counter is bumped", func() {
				p, err := store.GetProfile(ctx, "owner-1")
				So(err, ShouldBeNil)
				So(p.TracksUploaded, ShouldEqual, 1)
			})
		})

		Convey("When the owner submits it for rating", func() {
			So(store.SubmitTrack(ctx, track.ID, "owner-1", 5), ShouldBeNil)
			got, err := store.GetTrack(ctx, track.ID)
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, model.StatusCollecting)
			So(got.VotesRequested, ShouldEqual, 5)

			Convey("Then a second submit is rejected", func() {
				So(errors.Is(store.SubmitTrack(ctx, track.ID, "owner-1", 5), repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When someone else tries to submit it", func() {
			err := store.SubmitTrack(ctx, track.ID, "intruder", 5)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the owner deletes the track", func() {
			So(store.SoftDeleteTrack(ctx, track.ID, "owner-1"), ShouldBeNil)
			_, err := store.GetTrack(ctx, track.ID)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestVoteCounter(t *testing.T) {
	Convey("Given a collecting track", t, func() {
		ctx := context.Background()
		store := openStore(t)
		_, err := store.EnsureProfile(ctx, "owner-1", "owner", 0)
		So(err, ShouldBeNil)
		track := &model.Track{OwnerID: "owner-1", Title: "Echoes"}
		So(store.CreateTrack(ctx, track), ShouldBeNil)
		So(store.SubmitTrack(ctx, track.ID, "owner-1", 3), ShouldBeNil)

		Convey("When votes are incremented sequentially", func() {
			vc1, err := store.IncrementVotes(ctx, track.ID)
			So(err, ShouldBeNil)
			vc2, err := store.IncrementVotes(ctx, track.ID)
			So(err, ShouldBeNil)

			Convey("Then each call observes its own post-increment value", func() {
				So(vc1.VotesReceived, ShouldEqual, 1)
				So(vc2.VotesReceived, ShouldEqual, 2)
				So(vc2.VotesRequested, ShouldEqual, 3)
			})
		})

		Convey("When K submissions race on the same track", func() {
			const k = 16
			var wg sync.WaitGroup
			errs := make(chan error, k)
			for i := 0; i < k; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := store.IncrementVotes(ctx, track.ID)
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)

			Convey("Then no update is lost", func() {
				for err := range errs {
					So(err, ShouldBeNil)
				}
				got, err := store.GetTrack(ctx, track.ID)
				So(err, ShouldBeNil)
				So(got.VotesReceived, ShouldEqual, k)
			})
		})

		Convey("When the track does not exist", func() {
			_, err := store.IncrementVotes(ctx, "missing")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestCompleteTrack(t *testing.T) {
	Convey("Given a collecting track", t, func() {
		ctx := context.Background()
		store := openStore(t)
		_, err := store.EnsureProfile(ctx, "owner-1", "owner", 0)
		So(err, ShouldBeNil)
		track := &model.Track{OwnerID: "owner-1", Title: "Undertow"}
		So(store.CreateTrack(ctx, track), ShouldBeNil)
		So(store.SubmitTrack(ctx, track.ID, "owner-1", 3), ShouldBeNil)

		Convey("When the track is completed", func() {
			did, err := store.CompleteTrack(ctx, track.ID, 2.0, 50)
			So(err, ShouldBeNil)
			So(did, ShouldBeTrue)

			got, err := store.GetTrack(ctx, track.ID)
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, model.StatusComplete)
			So(*got.OverallScore, ShouldEqual, 2.0)
			So(*got.Percentile, ShouldEqual, 50)

			Convey("Then a second completion attempt is a no-op", func() {
				did, err := store.CompleteTrack(ctx, track.ID, 3.0, 90)
				So(err, ShouldBeNil)
				So(did, ShouldBeFalse)

				got, err := store.GetTrack(ctx, track.ID)
				So(err, ShouldBeNil)
				So(*got.OverallScore, ShouldEqual, 2.0)
			})
		})

		Convey("When collecting the percentile population", func() {
			other := &model.Track{OwnerID: "owner-1", Title: "Other"}
			So(store.CreateTrack(ctx, other), ShouldBeNil)
			_, err := store.CompleteTrack(ctx, other.ID, 1.5, 50)
			So(err, ShouldBeNil)

			Convey("Then the subject track is excluded", func() {
				scores, err := store.CompletedScores(ctx, track.ID)
				So(err, ShouldBeNil)
				So(scores, ShouldResemble, []float64{1.5})
			})
		})
	})
}

func TestRaterProgressAndBonus(t *testing.T) {
	Convey("Given a rater profile", t, func() {
		ctx := context.Background()
		store := openStore(t)
		created, err := store.EnsureProfile(ctx, "rater-1", "rater", 20)
		So(err, ShouldBeNil)
		So(created, ShouldBeTrue)

		Convey("When the profile already exists", func() {
			created, err := store.EnsureProfile(ctx, "rater-1", "rater", 20)
			So(err, ShouldBeNil)
			So(created, ShouldBeFalse)

			Convey("Then the signup grant is not repeated", func() {
				sum, err := store.SumTransactions(ctx, "rater-1")
				So(err, ShouldBeNil)
				So(sum, ShouldEqual, 20)
			})
		})

		Convey("When progress is incremented to the cycle boundary", func() {
			var progress int
			for i := 0; i < model.RatingCycleLength; i++ {
				progress, err = store.IncrementRaterProgress(ctx, "rater-1")
				So(err, ShouldBeNil)
			}
			So(progress, ShouldEqual, model.RatingCycleLength)

			Convey("And the bonus is awarded on the observed value", func() {
				did, err := store.AwardCycleBonus(ctx, "rater-1", progress, "track-1")
				So(err, ShouldBeNil)
				So(did, ShouldBeTrue)

				p, err := store.GetProfile(ctx, "rater-1")
				So(err, ShouldBeNil)
				So(p.RatingProgress, ShouldEqual, 0)
				So(p.Credits, ShouldEqual, 21)
				So(p.TracksRated, ShouldEqual, model.RatingCycleLength)

				Convey("Then the ledger reconciles with the balance", func() {
					sum, err := store.SumTransactions(ctx, "rater-1")
					So(err, ShouldBeNil)
					So(sum, ShouldEqual, p.Credits)
				})

				Convey("And a replayed award on the stale value is a no-op", func() {
					did, err := store.AwardCycleBonus(ctx, "rater-1", progress, "track-1")
					So(err, ShouldBeNil)
					So(did, ShouldBeFalse)

					p, err := store.GetProfile(ctx, "rater-1")
					So(err, ShouldBeNil)
					So(p.Credits, ShouldEqual, 21)
				})
			})
		})
	})
}

func TestAdjustCredits(t *testing.T) {
	Convey("Given a rater with 5 credits", t, func() {
		ctx := context.Background()
		store := openStore(t)
		_, err := store.EnsureProfile(ctx, "rater-2", "rater", 5)
		So(err, ShouldBeNil)

		Convey("When spending within the balance", func() {
			So(store.AdjustCredits(ctx, "rater-2", -3, model.TxTrackSubmit, "track-9"), ShouldBeNil)

			p, err := store.GetProfile(ctx, "rater-2")
			So(err, ShouldBeNil)
			So(p.Credits, ShouldEqual, 2)

			Convey("Then the ledger row is written with the spend", func() {
				txs, err := store.TransactionsForRater(ctx, "rater-2")
				So(err, ShouldBeNil)
				So(len(txs), ShouldEqual, 2)

				var spend *model.CreditTransaction
				for i := range txs {
					if txs[i].Reason == model.TxTrackSubmit {
						spend = &txs[i]
					}
				}
				So(spend, ShouldNotBeNil)
				So(spend.Amount, ShouldEqual, -3)
				So(spend.ReferenceID, ShouldEqual, "track-9")
			})
		})

		Convey("When overdrawing the balance", func() {
			err := store.AdjustCredits(ctx, "rater-2", -9, model.TxTrackSubmit, "track-9")

			Convey("Then it fails with InsufficientCredits and no side effect", func() {
				So(errors.Is(err, repository.ErrInsufficientCredits), ShouldBeTrue)

				p, err := store.GetProfile(ctx, "rater-2")
				So(err, ShouldBeNil)
				So(p.Credits, ShouldEqual, 5)

				sum, err := store.SumTransactions(ctx, "rater-2")
				So(err, ShouldBeNil)
				So(sum, ShouldEqual, 5)
			})
		})

		Convey("When the profile does not exist", func() {
			err := store.AdjustCredits(ctx, "ghost", -1, model.TxTrackSubmit, "")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestInsightClaims(t *testing.T) {
	Convey("Given a track with no insight records", t, func() {
		ctx := context.Background()
		store := openStore(t)

		Convey("When the key is claimed for the first time", func() {
			claimed, err := store.ClaimInsight(ctx, "track-1", 5)
			So(err, ShouldBeNil)
			So(claimed, ShouldBeTrue)

			recs, err := store.InsightRecords(ctx, "track-1")
			So(err, ShouldBeNil)
			So(len(recs), ShouldEqual, 1)
			So(recs[0].Status, ShouldEqual, model.InsightPending)

			Convey("Then marking failed keeps the row re-claimable", func() {
				So(store.MarkInsightFailed(ctx, "track-1", 5), ShouldBeNil)

				claimed, err := store.ClaimInsight(ctx, "track-1", 5)
				So(err, ShouldBeNil)
				So(claimed, ShouldBeTrue)

				recs, err := store.InsightRecords(ctx, "track-1")
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 1)
				So(recs[0].Status, ShouldEqual, model.InsightPending)
			})

			Convey("Then completing the record is terminal", func() {
				insights := []model.Insight{{
					Icon: "🎯", Category: "TARGET AUDIENCE",
					Title: "Late-night playlists", Description: "Scores point to evening listeners.",
					Polarity: "success",
				}}
				So(store.MarkInsightComplete(ctx, "track-1", 5, insights), ShouldBeNil)

				Convey("And a later claim is refused", func() {
					claimed, err := store.ClaimInsight(ctx, "track-1", 5)
					So(err, ShouldBeNil)
					So(claimed, ShouldBeFalse)
				})

				Convey("And marking failed cannot downgrade it", func() {
					So(store.MarkInsightFailed(ctx, "track-1", 5), ShouldBeNil)
					recs, err := store.InsightRecords(ctx, "track-1")
					So(err, ShouldBeNil)
					So(recs[0].Status, ShouldEqual, model.InsightComplete)
					So(len(recs[0].Insights), ShouldEqual, 1)
				})

				Convey("And a losing second completion is a no-op success", func() {
					second := []model.Insight{{
						Icon: "⚠️", Category: "SUGGESTION",
						Title: "Different payload", Description: "From the racing worker.",
						Polarity: "warning",
					}}
					So(store.MarkInsightComplete(ctx, "track-1", 5, second), ShouldBeNil)

					recs, err := store.InsightRecords(ctx, "track-1")
					So(err, ShouldBeNil)
					So(recs[0].Status, ShouldEqual, model.InsightComplete)
					So(recs[0].Insights, ShouldResemble, insights)
				})
			})
		})

		Convey("When two claims race on the same key", func() {
			var wg sync.WaitGroup
			results := make(chan bool, 2)
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					claimed, err := store.ClaimInsight(ctx, "track-2", 10)
					if err == nil {
						results <- claimed
					}
				}()
			}
			wg.Wait()
			close(results)

			Convey("Then exactly one row exists", func() {
				recs, err := store.InsightRecords(ctx, "track-2")
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 1)
				So(recs[0].Status, ShouldEqual, model.InsightPending)
			})
		})

		Convey("When listing statuses for chosen milestones", func() {
			_, err := store.ClaimInsight(ctx, "track-3", 5)
			So(err, ShouldBeNil)
			So(store.MarkInsightComplete(ctx, "track-3", 5, []model.Insight{{Title: "t"}}), ShouldBeNil)
			_, err = store.ClaimInsight(ctx, "track-3", 10)
			So(err, ShouldBeNil)

			statuses, err := store.InsightStatuses(ctx, "track-3", []int{5, 10, 20})
			So(err, ShouldBeNil)

			Convey("Then only existing records are reported", func() {
				So(statuses[5], ShouldEqual, model.InsightComplete)
				So(statuses[10], ShouldEqual, model.InsightPending)
				_, exists := statuses[20]
				So(exists, ShouldBeFalse)
			})
		})
	})
}
