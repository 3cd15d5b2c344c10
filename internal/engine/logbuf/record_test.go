// Licensed under the MIT License. See LICENSE file in the project root for details.

package logbuf

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"pgregory.net/rapid"
)

type testArgs struct {
	A int64
	B int64
}

func TestAppendFetchRoundTrip(t *testing.T) {
	Convey("Given a fresh allocator and a new record", t, func() {
		global := NewGlobalAllocator()
		alloc := NewAllocator(global)
		rec := alloc.Allocate(1, 0)

		Convey("When a tag and args are appended and the record committed", func() {
			AppendTyped(rec, uint8(7))
			AppendTyped(rec, testArgs{A: 42, B: -1})
			AppendTyped(rec, int64(99))
			alloc.Commit(rec, nil)

			Convey("Then a reader fetches back the same positional values", func() {
				rd := OpenReader(rec)
				So(FetchTyped[uint8](rd), ShouldEqual, 7)
				So(FetchTyped[testArgs](rd), ShouldResemble, testArgs{A: 42, B: -1})
				So(CmpTyped(rd, int64(99)), ShouldBeTrue)
			})

			Convey("And Close succeeds and reclaims the record", func() {
				rd := OpenReader(rec)
				FetchTyped[uint8](rd)
				FetchTyped[testArgs](rd)
				FetchTyped[int64](rd)
				err := rd.Close(global, nil)
				So(err, ShouldBeNil)
			})
		})
	})
}

type bigChunk [100 * 1024]byte

func TestBufferReturnsToFreeListOnlyWhenFullyReclaimed(t *testing.T) {
	Convey("Given an allocator that exhausts one buffer with large records", t, func() {
		global := NewGlobalAllocator()
		alloc := NewAllocator(global)

		var records []*Record
		var chunk bigChunk
		for i := 0; i < 5; i++ {
			r := alloc.Allocate(uint64(i+1), 0)
			AppendTyped(r, chunk)
			alloc.Commit(r, nil)
			records = append(records, r)
		}

		Convey("The exhausted buffer stays off the free list while its records are live", func() {
			So(global.FreeCount(), ShouldEqual, 0)
		})

		Convey("Reclaiming all but one leaves the exhausted buffer off the free list", func() {
			for _, r := range records[:len(records)-1] {
				rd := OpenReader(r)
				FetchTyped[bigChunk](rd)
				So(rd.Close(global, nil), ShouldBeNil)
			}
			So(global.FreeCount(), ShouldEqual, 0)

			Convey("Reclaiming the last one returns it to the free list", func() {
				last := records[len(records)-1]
				rd := OpenReader(last)
				FetchTyped[bigChunk](rd)
				So(rd.Close(global, nil), ShouldBeNil)
				So(global.FreeCount(), ShouldEqual, 1)
			})
		})
	})
}

func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		global := NewGlobalAllocator()
		alloc := NewAllocator(global)
		rec := alloc.Allocate(1, 0)

		values := rapid.SliceOfN(rapid.Int64(), 1, 32).Draw(t, "values")
		for _, v := range values {
			AppendTyped(rec, v)
		}
		alloc.Commit(rec, nil)

		rd := OpenReader(rec)
		for _, want := range values {
			if !CmpTyped(rd, want) {
				t.Fatalf("round trip mismatch, want %d", want)
			}
		}
	})
}
