package ledger_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/roamly/xpledger/internal/adapters/docstore"
	"github.com/roamly/xpledger/internal/adapters/docstore/memstore"
	"github.com/roamly/xpledger/internal/domain/model"
	"github.com/roamly/xpledger/internal/ledger"
)

func TestPaths(t *testing.T) {
	Convey("Given the path helpers", t, func() {
		Convey("Then they follow the consumed store layout", func() {
			So(ledger.UserPath("u1"), ShouldEqual, "users/u1")
			So(ledger.EntryPath("2026-08", "u1"), ShouldEqual, "leaderboard/2026-08_u1")
		})
	})
}

func TestUserStateRoundTrip(t *testing.T) {
	ctx := context.Background()

	Convey("Given a ledger store over a memstore", t, func() {
		store := ledger.New(memstore.New())
		now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

		Convey("When reading an absent user", func() {
			st, rev, err := store.UserState(ctx, "u1")

			Convey("Then a zero state with revision 0 is returned", func() {
				So(err, ShouldBeNil)
				So(rev, ShouldEqual, 0)
				So(st.UserID, ShouldEqual, "u1")
				So(st.CurrentXP, ShouldEqual, 0)
				So(st.Level, ShouldEqual, 1)
				So(st.History, ShouldBeEmpty)
			})
		})

		Convey("When writing and reading back a populated state", func() {
			st := model.UserXPState{
				UserID:      "u1",
				DisplayName: "Ada",
				CurrentXP:   530,
				Level:       2,
				WeeklyXP:    50,
				LastUpdate:  now,
				History: []model.XPEvent{
					{ID: "e2", Kind: "visit", Amount: 50, Timestamp: now, SubjectRef: "place-9"},
					{ID: "e1", Kind: "review", Amount: 480, Timestamp: now.Add(-time.Hour)},
				},
			}
			So(store.PutUserState(ctx, st, 0), ShouldBeNil)
			got, rev, err := store.UserState(ctx, "u1")

			Convey("Then the state round-trips with its history order intact", func() {
				So(err, ShouldBeNil)
				So(rev, ShouldEqual, 1)
				So(got.DisplayName, ShouldEqual, "Ada")
				So(got.CurrentXP, ShouldEqual, 530)
				So(got.Level, ShouldEqual, 2)
				So(got.WeeklyXP, ShouldEqual, 50)
				So(len(got.History), ShouldEqual, 2)
				So(got.History[0].ID, ShouldEqual, "e2")
				So(got.History[0].SubjectRef, ShouldEqual, "place-9")
				So(got.History[1].ID, ShouldEqual, "e1")
			})
		})

		Convey("When a stale write races a fresh one", func() {
			So(store.PutUserState(ctx, model.UserXPState{UserID: "u1", CurrentXP: 10, Level: 1}, 0), ShouldBeNil)
			err := store.PutUserState(ctx, model.UserXPState{UserID: "u1", CurrentXP: 20, Level: 1}, 0)

			Convey("Then the stale write reports a revision mismatch", func() {
				So(err, ShouldEqual, docstore.ErrRevisionMismatch)
			})
		})
	})
}

func TestCorruptionRepair(t *testing.T) {
	ctx := context.Background()

	Convey("Given a persisted level inconsistent with the XP total", t, func() {
		docs := memstore.New()
		store := ledger.New(docs)
		So(docs.Set(ctx, "users/u1", map[string]any{
			"userId":    "u1",
			"currentXP": int64(1200),
			"level":     int64(1), // corrupt: should be 3
		}), ShouldBeNil)

		Convey("When reading the state", func() {
			st, _, err := store.UserState(ctx, "u1")

			Convey("Then the level is recomputed from XP", func() {
				So(err, ShouldBeNil)
				So(st.CurrentXP, ShouldEqual, 1200)
				So(st.Level, ShouldEqual, 3)
			})
		})
	})
}

func TestInitUserState(t *testing.T) {
	ctx := context.Background()

	Convey("Given two devices initializing the same absent user", t, func() {
		store := ledger.New(memstore.New())

		Convey("When both trigger zero-state initialization", func() {
			So(store.InitUserState(ctx, "u1"), ShouldBeNil)
			So(store.InitUserState(ctx, "u1"), ShouldBeNil) // loser of the race is fine

			Convey("Then exactly one zero document exists", func() {
				st, rev, err := store.UserState(ctx, "u1")
				So(err, ShouldBeNil)
				So(rev, ShouldEqual, 1)
				So(st.CurrentXP, ShouldEqual, 0)
			})
		})
	})
}

func TestEntries(t *testing.T) {
	ctx := context.Background()

	Convey("Given projections in one period", t, func() {
		store := ledger.New(memstore.New())
		now := time.Now().UTC()
		for _, e := range []model.LeaderboardEntry{
			{UserID: "a", CurrentXP: 900, Level: 2, PeriodKey: "2026-08", LastUpdated: now},
			{UserID: "b", CurrentXP: 1200, Level: 3, PeriodKey: "2026-08", LastUpdated: now},
			{UserID: "c", CurrentXP: 300, Level: 1, PeriodKey: "2026-08", LastUpdated: now},
			{UserID: "a", CurrentXP: 7000, Level: 15, PeriodKey: "2026-07", LastUpdated: now},
		} {
			So(store.UpsertEntry(ctx, e), ShouldBeNil)
		}

		Convey("When fetching the period", func() {
			entries, err := store.EntriesForPeriod(ctx, "2026-08", 0)

			Convey("Then entries are scoped and ordered by XP descending", func() {
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 3)
				So(entries[0].UserID, ShouldEqual, "b")
				So(entries[2].UserID, ShouldEqual, "c")
			})
		})

		Convey("When fetching an explicit id set", func() {
			entries, err := store.EntriesForUsers(ctx, "2026-08", []string{"a", "c", "ghost"})

			Convey("Then only existing members are returned", func() {
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 2)
			})
		})

		Convey("When the id set exceeds the membership arity", func() {
			ids := make([]string, docstore.MaxInArity+1)
			for i := range ids {
				ids[i] = "u"
			}
			_, err := store.EntriesForUsers(ctx, "2026-08", ids)

			Convey("Then the call is rejected", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When the id set is empty", func() {
			entries, err := store.EntriesForUsers(ctx, "2026-08", nil)

			Convey("Then no query is issued and the result is empty", func() {
				So(err, ShouldBeNil)
				So(entries, ShouldBeEmpty)
			})
		})
	})
}

func TestSubscribeUser(t *testing.T) {
	ctx := context.Background()

	Convey("Given a subscription on a user's ledger document", t, func() {
		docs := memstore.New()
		store := ledger.New(docs)

		type update struct {
			st     model.UserXPState
			exists bool
		}
		updates := make(chan update, 16)
		sub, err := store.SubscribeUser(ctx, "u1", func(st model.UserXPState, exists bool) {
			updates <- update{st, exists}
		})
		So(err, ShouldBeNil)
		defer sub.Close()

		Convey("When the document is absent", func() {
			first := <-updates

			Convey("Then the initial delivery reports non-existence", func() {
				So(first.exists, ShouldBeFalse)
			})
		})

		Convey("When the document is written", func() {
			<-updates // initial
			So(store.PutUserState(ctx, model.UserXPState{UserID: "u1", CurrentXP: 50, Level: 1}, 0), ShouldBeNil)

			select {
			case u := <-updates:
				Convey("Then the decoded state is delivered", func() {
					So(u.exists, ShouldBeTrue)
					So(u.st.CurrentXP, ShouldEqual, 50)
				})
			case <-time.After(time.Second):
				Convey("Then the change must arrive in time", func() {
					So(true, ShouldBeFalse)
				})
			}
		})
	})
}
