package export_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/turnlat/internal/adapters/export"
	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/internal/domain/report"
	"github.com/okian/turnlat/pkg/logger"
)

var stamp = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func sample() []model.TurnMeasurement {
	return []model.TurnMeasurement{
		{RecordingID: "RE1", CallID: "CA1", Timestamp: stamp, UserOnsetMS: 0, AgentOnsetMS: 420, RTTMS: 420, Confidence: 0.5, Quality: 0.01},
		{RecordingID: "RE2", CallID: "CA2", Timestamp: stamp.Add(time.Hour), UserOnsetMS: 1500, AgentOnsetMS: 2100, RTTMS: 600, Confidence: 0.75, Quality: 0.02},
	}
}

func TestCSV(t *testing.T) {
	Convey("Given retained measurements", t, func() {
		var buf bytes.Buffer

		Convey("When written as CSV", func() {
			So(export.WriteCSV(&buf, sample()), ShouldBeNil)
			rows, err := csv.NewReader(&buf).ReadAll()
			So(err, ShouldBeNil)

			Convey("Then there is a header and one row per measurement", func() {
				So(rows, ShouldHaveLength, 3)
				So(rows[0], ShouldResemble, export.CSVHeader)
				So(rows[1], ShouldResemble, []string{
					"RE1", "CA1", "2024-03-01T14:30:00Z", "0", "420", "420", "0.5000", "0.0100",
				})
				So(rows[2][5], ShouldEqual, "600")
			})
		})

		Convey("When written to a nested file path", func() {
			path := filepath.Join(t.TempDir(), "out", "measurements.csv")
			So(export.WriteCSVFile(path, sample()), ShouldBeNil)

			raw, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(strings.Count(string(raw), "\n"), ShouldEqual, 3)
		})

		Convey("When the path is empty", func() {
			So(errors.Is(export.WriteCSVFile("", sample()), export.ErrEmptyPath), ShouldBeTrue)
		})
	})
}

func TestReportJSON(t *testing.T) {
	Convey("Given a generated report", t, func() {
		r := report.NewGenerator().Generate(sample(), report.Meta{RunID: "run-1", GeneratedAt: stamp})

		Convey("When written as JSON", func() {
			path := filepath.Join(t.TempDir(), "report.json")
			So(export.WriteReportFile(path, r), ShouldBeNil)

			raw, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			var decoded map[string]any
			So(json.Unmarshal(raw, &decoded), ShouldBeNil)

			Convey("Then the document carries status, latency and verdict", func() {
				So(decoded["run_id"], ShouldEqual, "run-1")
				So(decoded["status"], ShouldEqual, report.StatusOK)
				latency := decoded["latency"].(map[string]any)
				So(latency["count"], ShouldEqual, 2.0)
				compliance := decoded["compliance"].(map[string]any)
				So(compliance["verdict"], ShouldEqual, string(r.Compliance.Verdict))
				So(decoded, ShouldNotContainKey, "high_quality")
			})
		})

		Convey("When the report is nil", func() {
			So(errors.Is(export.WriteReport(&bytes.Buffer{}, nil), export.ErrNilReport), ShouldBeTrue)
		})
	})
}

func TestSQLiteSink(t *testing.T) {
	_ = logger.Init()
	ctx := context.Background()

	Convey("Given a fresh SQLite sink", t, func() {
		sink, err := export.OpenSQLite(filepath.Join(t.TempDir(), "turnlat.db"))
		So(err, ShouldBeNil)
		defer func() { _ = sink.Close() }()

		r := report.NewGenerator().Generate(sample(), report.Meta{RunID: "run-1", GeneratedAt: stamp})

		Convey("When a run is saved", func() {
			So(sink.Save(ctx, r, sample()), ShouldBeNil)

			Convey("Then the run summary and its measurements are stored", func() {
				runs, err := sink.Runs(ctx)
				So(err, ShouldBeNil)
				So(runs, ShouldHaveLength, 1)
				So(runs[0].RunID, ShouldEqual, "run-1")
				So(runs[0].Count, ShouldEqual, 2)
				So(runs[0].Verdict, ShouldEqual, string(r.Compliance.Verdict))

				rows, err := sink.Measurements(ctx, "run-1")
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
				So(rows[0].RecordingID, ShouldEqual, "RE1")
				So(rows[1].RTTMS, ShouldEqual, 600)
				So(rows[0].Timestamp.Equal(stamp), ShouldBeTrue)
			})

			Convey("Then saving the same run again replaces it", func() {
				So(sink.Save(ctx, r, sample()[:1]), ShouldBeNil)

				runs, _ := sink.Runs(ctx)
				rows, _ := sink.Measurements(ctx, "run-1")
				So(runs, ShouldHaveLength, 1)
				So(rows, ShouldHaveLength, 1)
			})
		})

		Convey("When an empty run is saved", func() {
			empty := report.NewGenerator().Generate(nil, report.Meta{RunID: "run-2", GeneratedAt: stamp})
			So(sink.Save(ctx, empty, nil), ShouldBeNil)

			runs, err := sink.Runs(ctx)
			So(err, ShouldBeNil)
			So(runs, ShouldHaveLength, 1)
			So(runs[0].Status, ShouldEqual, report.StatusNoData)
		})

		Convey("When the sink is closed", func() {
			So(sink.Close(), ShouldBeNil)
			So(sink.Close(), ShouldBeNil)

			So(errors.Is(sink.Save(ctx, r, sample()), export.ErrSinkClosed), ShouldBeTrue)
			_, err := sink.Runs(ctx)
			So(errors.Is(err, export.ErrSinkClosed), ShouldBeTrue)
		})
	})

	Convey("Given no database path", t, func() {
		_, err := export.OpenSQLite("")
		So(errors.Is(err, export.ErrEmptyPath), ShouldBeTrue)
	})
}
