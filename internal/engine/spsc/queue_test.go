// Licensed under the MIT License. See LICENSE file in the project root for details.

package spsc

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"pgregory.net/rapid"
)

func TestQueueRequiresPowerOfTwoCapacity(t *testing.T) {
	Convey("Creating a queue with a non-power-of-two capacity panics", t, func() {
		So(func() { NewQueue[int](3) }, ShouldPanic)
	})
}

func TestQueueBasicFIFO(t *testing.T) {
	Convey("Given a queue of capacity 4", t, func() {
		q := NewQueue[int](4)
		So(q.Empty(), ShouldBeTrue)

		Convey("Pushing and popping preserves FIFO order", func() {
			So(q.Push(1), ShouldBeTrue)
			So(q.Push(2), ShouldBeTrue)
			So(q.Push(3), ShouldBeTrue)

			v, ok := q.Pop()
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 1)

			v, ok = q.Pop()
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 2)
		})

		Convey("Pushing past capacity fails without corrupting state", func() {
			So(q.Push(1), ShouldBeTrue)
			So(q.Push(2), ShouldBeTrue)
			So(q.Push(3), ShouldBeTrue)
			So(q.Push(4), ShouldBeTrue)
			So(q.Push(5), ShouldBeFalse)
		})

		Convey("Popping an empty queue reports false", func() {
			_, ok := q.Pop()
			So(ok, ShouldBeFalse)
		})
	})
}

func TestQueueConcurrentProducerConsumerNoLossNoDuplication(t *testing.T) {
	Convey("Given one producer and one consumer racing on a small queue", t, func() {
		const n = 100000
		q := NewQueue[int](256)

		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			for i := 0; i < n; i++ {
				for !q.Push(i) {
				}
			}
		}()

		received := make([]int, 0, n)
		go func() {
			defer wg.Done()
			for len(received) < n {
				if v, ok := q.Pop(); ok {
					received = append(received, v)
				}
			}
		}()

		wg.Wait()

		Convey("Every value arrives exactly once, in order", func() {
			So(len(received), ShouldEqual, n)
			for i, v := range received {
				So(v, ShouldEqual, i)
			}
		})
	})
}

func TestQueueNoLossProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(1, 500).Draw(t, "count")
		q := NewQueue[int](64)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < count; i++ {
				for !q.Push(i) {
				}
			}
		}()

		got := make([]int, 0, count)
		go func() {
			defer wg.Done()
			for len(got) < count {
				if v, ok := q.Pop(); ok {
					got = append(got, v)
				}
			}
		}()
		wg.Wait()

		if len(got) != count {
			t.Fatalf("got %d values, want %d", len(got), count)
		}
		for i, v := range got {
			if v != i {
				t.Fatalf("out of order at %d: got %d", i, v)
			}
		}
	})
}
