package window_test

import (
	"testing"
	"time"

	"github.com/roamly/xpledger/internal/domain/model"
	"github.com/roamly/xpledger/internal/domain/window"
	. "github.com/smartystreets/goconvey/convey"
)

func TestWeeklySum(t *testing.T) {
	Convey("Given a history straddling the seven-day boundary", t, func() {
		now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
		history := []model.XPEvent{
			{ID: "e1", Amount: 10, Timestamp: now},
			{ID: "e2", Amount: 20, Timestamp: now.Add(-6*24*time.Hour - 23*time.Hour - 59*time.Minute)},
			{ID: "e3", Amount: 40, Timestamp: now.Add(-7 * 24 * time.Hour)}, // exactly 7 days old
			{ID: "e4", Amount: 80, Timestamp: now.Add(-8 * 24 * time.Hour)},
		}

		Convey("When summing the trailing window", func() {
			sum := window.WeeklySum(history, now)

			Convey("Then the boundary event is excluded and the 6d23h59m event included", func() {
				So(sum, ShouldEqual, 30)
			})
		})

		Convey("When the history is empty", func() {
			Convey("Then the sum is zero", func() {
				So(window.WeeklySum(nil, now), ShouldEqual, 0)
			})
		})

		Convey("When every event is inside the window", func() {
			recent := []model.XPEvent{
				{Amount: 5, Timestamp: now.Add(-time.Hour)},
				{Amount: 7, Timestamp: now.Add(-3 * 24 * time.Hour)},
			}

			Convey("Then all amounts count", func() {
				So(window.WeeklySum(recent, now), ShouldEqual, 12)
			})
		})
	})
}

func TestPeriodKey(t *testing.T) {
	Convey("Given instants around a month boundary", t, func() {
		Convey("When formatting a mid-month instant", func() {
			So(window.PeriodKey(time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)), ShouldEqual, "2026-08")
		})

		Convey("When the local calendar disagrees with UTC", func() {
			// 23:30 on Aug 31 in UTC-5 is already September in UTC.
			loc := time.FixedZone("UTC-5", -5*3600)
			instant := time.Date(2026, 8, 31, 23, 30, 0, 0, loc)

			Convey("Then the key follows UTC", func() {
				So(window.PeriodKey(instant), ShouldEqual, "2026-09")
			})
		})

		Convey("When crossing a year boundary", func() {
			So(window.PeriodKey(time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC)), ShouldEqual, "2026-12")
			So(window.PeriodKey(time.Date(2027, 1, 1, 0, 0, 1, 0, time.UTC)), ShouldEqual, "2027-01")
		})
	})
}
