package livesync_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/roamly/xpledger/internal/adapters/docstore/memstore"
	"github.com/roamly/xpledger/internal/domain/model"
	"github.com/roamly/xpledger/internal/ledger"
	"github.com/roamly/xpledger/internal/livesync"
)

func nextUpdate(t *testing.T, ch <-chan model.UserXPState) (model.UserXPState, bool) {
	t.Helper()
	select {
	case st, ok := <-ch:
		return st, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a sync update")
		return model.UserXPState{}, false
	}
}

func TestSyncReplacesSnapshot(t *testing.T) {
	ctx := context.Background()

	Convey("Given a controller synced to an existing user", t, func() {
		store := ledger.New(memstore.New())
		now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
		So(store.PutUserState(ctx, model.UserXPState{
			UserID:    "u1",
			CurrentXP: 100,
			Level:     1,
			History:   []model.XPEvent{{ID: "e1", Amount: 100, Timestamp: now}},
		}, 0), ShouldBeNil)

		ctrl := livesync.New(store, "u1")
		So(ctrl.Start(ctx), ShouldBeNil)
		defer ctrl.Stop()

		first, ok := nextUpdate(t, ctrl.Updates())
		So(ok, ShouldBeTrue)
		So(first.CurrentXP, ShouldEqual, 100)

		Convey("When the remote document changes", func() {
			So(store.PutUserState(ctx, model.UserXPState{
				UserID:    "u1",
				CurrentXP: 250,
				Level:     1,
				History: []model.XPEvent{
					{ID: "e2", Amount: 150, Timestamp: now.Add(time.Minute)},
					{ID: "e1", Amount: 100, Timestamp: now},
				},
			}, 1), ShouldBeNil)

			Convey("Then the snapshot is replaced wholesale, not merged", func() {
				st, ok := nextUpdate(t, ctrl.Updates())
				So(ok, ShouldBeTrue)
				So(st.CurrentXP, ShouldEqual, 250)
				So(len(st.History), ShouldEqual, 2)
				So(st.History[0].ID, ShouldEqual, "e2")

				cur, ok := ctrl.Current()
				So(ok, ShouldBeTrue)
				So(cur.CurrentXP, ShouldEqual, 250)
			})
		})

		Convey("When starting again while running", func() {
			Convey("Then the second start is rejected", func() {
				So(ctrl.Start(ctx), ShouldEqual, livesync.ErrAlreadyStarted)
			})
		})
	})
}

func TestSyncZeroInit(t *testing.T) {
	ctx := context.Background()

	Convey("Given a controller for a user with no ledger document", t, func() {
		store := ledger.New(memstore.New())
		ctrl := livesync.New(store, "newbie")

		Convey("When sync starts", func() {
			So(ctrl.Start(ctx), ShouldBeNil)
			defer ctrl.Stop()

			Convey("Then a zero document is created exactly once and synced back", func() {
				st, ok := nextUpdate(t, ctrl.Updates())
				So(ok, ShouldBeTrue)
				So(st.UserID, ShouldEqual, "newbie")
				So(st.CurrentXP, ShouldEqual, 0)
				So(st.Level, ShouldEqual, 1)

				_, rev, err := store.UserState(ctx, "newbie")
				So(err, ShouldBeNil)
				So(rev, ShouldEqual, 1)
			})
		})
	})
}

func TestSyncStop(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running controller", t, func() {
		store := ledger.New(memstore.New())
		So(store.InitUserState(ctx, "u1"), ShouldBeNil)

		ctrl := livesync.New(store, "u1")
		So(ctrl.Start(ctx), ShouldBeNil)
		_, ok := nextUpdate(t, ctrl.Updates())
		So(ok, ShouldBeTrue)

		Convey("When the controller stops", func() {
			updates := ctrl.Updates()
			ctrl.Stop()

			Convey("Then the update stream ends and stop is idempotent", func() {
				_, open := <-updates
				So(open, ShouldBeFalse)
				ctrl.Stop()

				cur, ok := ctrl.Current()
				So(ok, ShouldBeTrue)
				So(cur.UserID, ShouldEqual, "u1")
			})
		})
	})
}
