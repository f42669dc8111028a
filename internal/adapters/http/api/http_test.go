package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/roamly/xpledger/internal/adapters/http/api"
	"github.com/roamly/xpledger/internal/app"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.Service) {
	t.Helper()
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	svc := app.New(
		app.WithClock(func() time.Time { return now }),
		app.WithMaxLeaderboardLimit(50),
	)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc, 50).Register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, svc
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	return resp, decoded
}

func getJSON(t *testing.T, url string, into any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestAwardsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	Convey("Given the awards endpoint", t, func() {
		Convey("When posting a valid award", func() {
			resp, body := postJSON(t, ts.URL+"/awards",
				`{"user_id":"ada","amount":530,"kind":"visit","subject_ref":"place-9","event_id":"evt-1"}`)

			Convey("Then the committed totals come back", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusCreated)
				So(body["event_id"], ShouldEqual, "evt-1")
				So(body["new_xp"], ShouldEqual, 530)
				So(body["new_level"], ShouldEqual, 2)
				So(body["leveled_up"], ShouldBeTrue)
				So(body["duplicate"], ShouldBeFalse)
			})

			Convey("Then replaying the event id is answered from the receipt", func() {
				resp, body := postJSON(t, ts.URL+"/awards",
					`{"user_id":"ada","amount":530,"kind":"visit","event_id":"evt-1"}`)
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body["duplicate"], ShouldBeTrue)
				So(body["new_xp"], ShouldEqual, 530)
			})
		})

		Convey("When posting an invalid award", func() {
			for body, want := range map[string]string{
				`{"user_id":"ada","amount":0,"kind":"visit"}`:  "amount",
				`{"user_id":"ada","amount":-5,"kind":"visit"}`: "amount",
				`{"amount":10,"kind":"visit"}`:                 "user_id",
				`{"user_id":"ada","amount":10}`:                "kind",
				`{not json`: "invalid",
			} {
				resp, decoded := postJSON(t, ts.URL+"/awards", body)

				Convey("Then "+want+" is rejected with 400 for "+body, func() {
					So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
					So(decoded["code"], ShouldEqual, "bad_request")
				})
			}
		})

		Convey("When using the wrong method", func() {
			resp, err := http.Get(ts.URL + "/awards")
			So(err, ShouldBeNil)
			resp.Body.Close()

			Convey("Then the route does not exist", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestStateEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	Convey("Given a user with awarded XP", t, func() {
		resp, _ := postJSON(t, ts.URL+"/awards", `{"user_id":"ada","amount":530,"kind":"visit"}`)
		So(resp.StatusCode, ShouldEqual, http.StatusCreated)

		Convey("When reading the user's state", func() {
			var st map[string]any
			resp := getJSON(t, ts.URL+"/state/ada", &st)

			Convey("Then totals and derived progress are reported", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(st["user_id"], ShouldEqual, "ada")
				So(st["current_xp"], ShouldEqual, 530)
				So(st["level"], ShouldEqual, 2)
				So(st["xp_to_next"], ShouldEqual, 470)
				So(st["weekly_xp"], ShouldEqual, 530)
				So(len(st["history"].([]any)), ShouldEqual, 1)
			})
		})

		Convey("When the user id is missing from the path", func() {
			var body map[string]any
			resp := getJSON(t, ts.URL+"/state/", &body)

			Convey("Then the request is rejected", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestLeaderboardEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	Convey("Given a few ranked users", t, func() {
		for _, body := range []string{
			`{"user_id":"ada","amount":900,"kind":"visit"}`,
			`{"user_id":"bob","amount":1200,"kind":"visit"}`,
			`{"user_id":"cyd","amount":300,"kind":"visit"}`,
		} {
			resp, _ := postJSON(t, ts.URL+"/awards", body)
			So(resp.StatusCode, ShouldEqual, http.StatusCreated)
		}

		Convey("When fetching the global leaderboard", func() {
			var entries []map[string]any
			resp := getJSON(t, ts.URL+"/leaderboard?period=2026-08", &entries)

			Convey("Then entries come back ranked from 1", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(len(entries), ShouldEqual, 3)
				So(entries[0]["user_id"], ShouldEqual, "bob")
				So(entries[0]["rank"], ShouldEqual, 1)
				So(entries[2]["user_id"], ShouldEqual, "cyd")
			})
		})

		Convey("When fetching without parameters", func() {
			var entries []map[string]any
			resp := getJSON(t, ts.URL+"/leaderboard", &entries)

			Convey("Then the current month is served", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(len(entries), ShouldEqual, 3)
			})
		})

		Convey("When the parameters are invalid", func() {
			var body map[string]any
			So(getJSON(t, ts.URL+"/leaderboard?period=2026-13", &body).StatusCode, ShouldEqual, http.StatusBadRequest)
			So(getJSON(t, ts.URL+"/leaderboard?limit=0", &body).StatusCode, ShouldEqual, http.StatusBadRequest)
			So(getJSON(t, ts.URL+"/leaderboard?limit=9999", &body).StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When fetching a friends leaderboard", func() {
			var entries []map[string]any
			resp := getJSON(t, ts.URL+"/leaderboard/friends?ids=ada,cyd,ghost", &entries)

			Convey("Then only the friend set is ranked", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(len(entries), ShouldEqual, 2)
				So(entries[0]["user_id"], ShouldEqual, "ada")
				So(entries[0]["rank"], ShouldEqual, 1)
			})
		})

		Convey("When the friend set is empty", func() {
			var entries []map[string]any
			resp := getJSON(t, ts.URL+"/leaderboard/friends", &entries)

			Convey("Then an empty list is served, not an error", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(entries, ShouldBeEmpty)
			})
		})
	})
}

func TestStatsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	Convey("Given the stats endpoint", t, func() {
		Convey("When fetching engine stats", func() {
			var stats map[string]any
			resp := getJSON(t, ts.URL+"/stats", &stats)

			Convey("Then the gauges are exposed", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(stats, ShouldContainKey, "dedupe_receipts")
				So(stats, ShouldContainKey, "reconcile_queue_size")
				So(stats, ShouldContainKey, "current_period")
			})
		})
	})
}
