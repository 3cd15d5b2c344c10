// Licensed under the MIT License. See LICENSE file in the project root for details.

package metrics

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDurationRingBufferStats(t *testing.T) {
	Convey("Given a ring buffer of capacity 4", t, func() {
		rb := NewDurationRingBuffer(4)

		Convey("When empty", func() {
			So(rb.GetStats().Count, ShouldEqual, 0)
			So(rb.GetAverage(), ShouldEqual, 0)
		})

		Convey("When pushed more values than capacity", func() {
			for i := 1; i <= 6; i++ {
				rb.Push(time.Duration(i) * time.Millisecond)
			}

			Convey("Then only the most recent 4 are retained", func() {
				stats := rb.GetStats()
				So(stats.Count, ShouldEqual, 4)
				So(stats.Min, ShouldEqual, 3*time.Millisecond)
				So(stats.Max, ShouldEqual, 6*time.Millisecond)
			})
		})
	})
}

func TestMetricsRecordWorkerOp(t *testing.T) {
	Convey("Given a metrics instance", t, func() {
		m := NewMetrics()
		defer m.Close()

		Convey("When recording set/get/del operations", func() {
			m.RecordWorkerOp("set", 5*time.Millisecond)
			m.RecordWorkerOp("get", 1*time.Millisecond)
			m.RecordWorkerOp("del", 2*time.Millisecond)

			Convey("Then the counts eventually reflect the recorded operations", func() {
				So(waitForCount(m, func() uint64 { return m.GetStats().Operations.Set }, 1), ShouldBeTrue)
				So(waitForCount(m, func() uint64 { return m.GetStats().Operations.Get }, 1), ShouldBeTrue)
				So(waitForCount(m, func() uint64 { return m.GetStats().Operations.Del }, 1), ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecordValidationMismatch(t *testing.T) {
	Convey("Given a metrics instance", t, func() {
		m := NewMetrics()
		defer m.Close()

		Convey("When a validation mismatch is recorded", func() {
			m.RecordValidation(3*time.Millisecond, true)

			Convey("Then ValidationMismatches increments", func() {
				So(waitForCount(m, func() uint64 { return m.GetStats().Engine.ValidationMismatches }, 1), ShouldBeTrue)
			})
		})
	})
}

func TestMetricsExport(t *testing.T) {
	Convey("Given a metrics instance with some data", t, func() {
		m := NewMetrics()
		defer m.Close()
		m.RecordWorkerOp("set", time.Millisecond)
		waitForCount(m, func() uint64 { return m.GetStats().Operations.Set }, 1)

		Convey("ExportPrometheus produces non-empty text containing scee_operations_total", func() {
			out := m.ExportPrometheus()
			So(out, ShouldContainSubstring, "scee_operations_total")
		})

		Convey("ExportJSON produces valid, non-empty JSON", func() {
			out := m.ExportJSON()
			So(len(out), ShouldBeGreaterThan, 0)
		})
	})
}

func waitForCount(_ *Metrics, get func() uint64, want uint64) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if get() >= want {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return get() >= want
}
