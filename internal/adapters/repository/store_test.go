package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/pkg/logger"
)

func measurement(id string, rtt int, confidence float64) model.TurnMeasurement {
	return model.TurnMeasurement{RecordingID: id, RTTMS: rtt, Confidence: confidence, Quality: 0.5}
}

func TestMemoryStore(t *testing.T) {
	_ = logger.Init()
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		s := NewMemoryStore(WithCapacity(8))

		Convey("When appending a measurement inside the retention bounds", func() {
			ok, err := s.Append(ctx, measurement("RE1", 400, 0.5))

			Convey("Then it is kept", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(s.Len(), ShouldEqual, 1)
			})
		})

		Convey("When appending measurements outside the retention bounds", func() {
			cases := []model.TurnMeasurement{
				measurement("short", 49, 0.9),
				measurement("long", 5001, 0.9),
				measurement("weak", 400, 0.3),
			}
			for _, m := range cases {
				ok, err := s.Append(ctx, m)
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			}

			Convey("Then none are stored and they are counted as discarded", func() {
				So(s.Len(), ShouldEqual, 0)
				So(s.Freeze(ctx).Discarded, ShouldEqual, 3)
			})
		})

		Convey("When the bounds are hit exactly", func() {
			ok50, _ := s.Append(ctx, measurement("lo", 50, 0.31))
			ok5000, _ := s.Append(ctx, measurement("hi", 5000, 0.31))

			So(ok50, ShouldBeTrue)
			So(ok5000, ShouldBeTrue)
		})

		Convey("When reading the snapshot before freezing", func() {
			_, err := s.Snapshot()

			So(errors.Is(err, ErrNotFrozen), ShouldBeTrue)
		})
	})

	Convey("Given a frozen store", t, func() {
		s := NewMemoryStore()
		_, _ = s.Append(ctx, measurement("RE1", 300, 0.8))
		first := s.Freeze(ctx)

		Convey("When appending again", func() {
			ok, err := s.Append(ctx, measurement("RE2", 300, 0.8))

			Convey("Then the append is rejected", func() {
				So(ok, ShouldBeFalse)
				So(errors.Is(err, ErrFrozen), ShouldBeTrue)
				So(s.Len(), ShouldEqual, 1)
			})
		})

		Convey("When freezing again", func() {
			second := s.Freeze(ctx)
			snap, err := s.Snapshot()

			Convey("Then the same snapshot is returned", func() {
				So(err, ShouldBeNil)
				So(second, ShouldPointTo, first)
				So(snap, ShouldPointTo, first)
				So(snap.Measurements, ShouldHaveLength, 1)
			})
		})
	})

	Convey("Given many concurrent writers", t, func() {
		s := NewMemoryStore()
		const writers, perWriter = 8, 250

		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					_, _ = s.Append(ctx, measurement(fmt.Sprintf("RE%d-%d", w, i), 100+i, 0.9))
				}
			}(w)
		}
		wg.Wait()

		Convey("Then every append is retained exactly once", func() {
			snap := s.Freeze(ctx)
			So(snap.Measurements, ShouldHaveLength, writers*perWriter)

			seen := make(map[string]bool, writers*perWriter)
			for _, m := range snap.Measurements {
				seen[m.RecordingID] = true
			}
			So(len(seen), ShouldEqual, writers*perWriter)
		})
	})
}
