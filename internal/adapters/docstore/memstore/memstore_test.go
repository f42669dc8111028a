package memstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/roamly/xpledger/internal/adapters/docstore"
	"github.com/roamly/xpledger/internal/adapters/docstore/memstore"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemStoreWrites(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		s := memstore.New()

		Convey("When getting a missing document", func() {
			_, err := s.Get(ctx, "users/u1")

			Convey("Then it reports not found", func() {
				So(err, ShouldEqual, docstore.ErrNotFound)
			})
		})

		Convey("When setting and reading back a document", func() {
			So(s.Set(ctx, "users/u1", map[string]any{"currentXP": int64(100)}), ShouldBeNil)
			doc, err := s.Get(ctx, "users/u1")

			Convey("Then the fields and revision round-trip", func() {
				So(err, ShouldBeNil)
				So(doc.Fields["currentXP"], ShouldEqual, int64(100))
				So(doc.Revision, ShouldEqual, 1)
			})

			Convey("And a second set bumps the revision", func() {
				So(s.Set(ctx, "users/u1", map[string]any{"currentXP": int64(150)}), ShouldBeNil)
				doc, err := s.Get(ctx, "users/u1")
				So(err, ShouldBeNil)
				So(doc.Revision, ShouldEqual, 2)
			})
		})

		Convey("When updating fields of a missing document", func() {
			err := s.UpdateFields(ctx, "users/nope", map[string]any{"a": 1})

			Convey("Then it reports not found", func() {
				So(err, ShouldEqual, docstore.ErrNotFound)
			})
		})

		Convey("When unioning into an array field", func() {
			So(s.Set(ctx, "users/u1", map[string]any{}), ShouldBeNil)
			So(s.ArrayUnion(ctx, "users/u1", "badges", "gold", "silver"), ShouldBeNil)
			So(s.ArrayUnion(ctx, "users/u1", "badges", "gold"), ShouldBeNil)
			doc, err := s.Get(ctx, "users/u1")

			Convey("Then duplicates are not appended", func() {
				So(err, ShouldBeNil)
				So(doc.Fields["badges"], ShouldResemble, []any{"gold", "silver"})
			})
		})
	})
}

func TestMemStoreConditionalWrites(t *testing.T) {
	ctx := context.Background()

	Convey("Given a store with one document", t, func() {
		s := memstore.New()
		So(s.SetWithRevision(ctx, "users/u1", map[string]any{"currentXP": int64(0)}, 0), ShouldBeNil)

		Convey("When creating a document that already exists", func() {
			err := s.SetWithRevision(ctx, "users/u1", map[string]any{}, 0)

			Convey("Then the create-only write conflicts", func() {
				So(err, ShouldEqual, docstore.ErrRevisionMismatch)
			})
		})

		Convey("When writing with the current revision", func() {
			doc, _ := s.Get(ctx, "users/u1")
			err := s.SetWithRevision(ctx, "users/u1", map[string]any{"currentXP": int64(50)}, doc.Revision)

			Convey("Then the write succeeds and the revision advances", func() {
				So(err, ShouldBeNil)
				after, _ := s.Get(ctx, "users/u1")
				So(after.Revision, ShouldEqual, doc.Revision+1)
			})
		})

		Convey("When two writers race on the same revision", func() {
			doc, _ := s.Get(ctx, "users/u1")
			err1 := s.SetWithRevision(ctx, "users/u1", map[string]any{"currentXP": int64(10)}, doc.Revision)
			err2 := s.SetWithRevision(ctx, "users/u1", map[string]any{"currentXP": int64(20)}, doc.Revision)

			Convey("Then exactly one write wins", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldEqual, docstore.ErrRevisionMismatch)
			})
		})
	})
}

func TestMemStoreQuery(t *testing.T) {
	ctx := context.Background()

	Convey("Given leaderboard entries across two periods", t, func() {
		s := memstore.New()
		put := func(uid string, xp int64, period string) {
			So(s.Set(ctx, "leaderboard/"+period+"_"+uid, map[string]any{
				"userId":    uid,
				"currentXP": xp,
				"periodKey": period,
			}), ShouldBeNil)
		}
		put("a", 900, "2026-08")
		put("b", 1200, "2026-08")
		put("c", 300, "2026-08")
		put("a", 5000, "2026-07")

		Convey("When querying the current period ordered by XP", func() {
			docs, err := s.Query(ctx, "leaderboard",
				[]docstore.Filter{{Field: "periodKey", Op: docstore.OpEqual, Value: "2026-08"}},
				&docstore.Order{Field: "currentXP", Descending: true}, 0)

			Convey("Then only that period's entries come back, sorted", func() {
				So(err, ShouldBeNil)
				So(len(docs), ShouldEqual, 3)
				So(docs[0].Fields["userId"], ShouldEqual, "b")
				So(docs[1].Fields["userId"], ShouldEqual, "a")
				So(docs[2].Fields["userId"], ShouldEqual, "c")
			})
		})

		Convey("When limiting the result", func() {
			docs, err := s.Query(ctx, "leaderboard",
				[]docstore.Filter{{Field: "periodKey", Op: docstore.OpEqual, Value: "2026-08"}},
				&docstore.Order{Field: "currentXP", Descending: true}, 2)

			Convey("Then only the top entries are returned", func() {
				So(err, ShouldBeNil)
				So(len(docs), ShouldEqual, 2)
				So(docs[0].Fields["userId"], ShouldEqual, "b")
			})
		})

		Convey("When querying by membership", func() {
			docs, err := s.Query(ctx, "leaderboard", []docstore.Filter{
				{Field: "periodKey", Op: docstore.OpEqual, Value: "2026-08"},
				{Field: "userId", Op: docstore.OpIn, Value: []string{"a", "c"}},
			}, nil, 0)

			Convey("Then only the named users match", func() {
				So(err, ShouldBeNil)
				So(len(docs), ShouldEqual, 2)
			})
		})

		Convey("When a membership filter exceeds the arity bound", func() {
			ids := make([]string, docstore.MaxInArity+1)
			for i := range ids {
				ids[i] = "u"
			}
			_, err := s.Query(ctx, "leaderboard", []docstore.Filter{
				{Field: "userId", Op: docstore.OpIn, Value: ids},
			}, nil, 0)

			Convey("Then the query is rejected", func() {
				So(err, ShouldEqual, docstore.ErrInvalidQuery)
			})
		})
	})
}

func TestMemStoreSubscribe(t *testing.T) {
	ctx := context.Background()

	Convey("Given a subscription on a document", t, func() {
		s := memstore.New()

		var mu sync.Mutex
		var changes []docstore.Change
		record := func(c docstore.Change) {
			mu.Lock()
			changes = append(changes, c)
			mu.Unlock()
		}
		snapshot := func() []docstore.Change {
			mu.Lock()
			defer mu.Unlock()
			out := make([]docstore.Change, len(changes))
			copy(out, changes)
			return out
		}

		sub, err := s.Subscribe(ctx, "users/u1", record)
		So(err, ShouldBeNil)
		defer sub.Close()

		Convey("When the document does not exist yet", func() {
			waitFor(func() bool { return len(snapshot()) >= 1 })

			Convey("Then the initial delivery carries a nil doc", func() {
				got := snapshot()
				So(len(got), ShouldBeGreaterThanOrEqualTo, 1)
				So(got[0].Doc, ShouldBeNil)
			})
		})

		Convey("When the document is written", func() {
			So(s.Set(ctx, "users/u1", map[string]any{"currentXP": int64(42)}), ShouldBeNil)
			waitFor(func() bool { return len(snapshot()) >= 2 })

			Convey("Then the change carries the new document", func() {
				got := snapshot()
				last := got[len(got)-1]
				So(last.Doc, ShouldNotBeNil)
				So(last.Doc.Fields["currentXP"], ShouldEqual, int64(42))
			})
		})

		Convey("When the subscription is closed", func() {
			sub.Close()
			before := len(snapshot())
			So(s.Set(ctx, "users/u1", map[string]any{"currentXP": int64(99)}), ShouldBeNil)
			time.Sleep(20 * time.Millisecond)

			Convey("Then no further changes are delivered", func() {
				So(len(snapshot()), ShouldEqual, before)
			})
		})
	})
}

// waitFor polls cond for up to a second.
func waitFor(cond func() bool) {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}
