package api_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/turnlat/internal/adapters/http/api"
	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/internal/domain/report"
	"github.com/okian/turnlat/pkg/logger"
)

// mockProvider serves a fixed latest run.
type mockProvider struct {
	report   *report.Report
	registry *prometheus.Registry
	runs     int
	err      error
}

func (m *mockProvider) Latest() (*report.Report, prometheus.Gatherer) {
	if m.report == nil {
		return nil, nil
	}
	return m.report, m.registry
}

func (m *mockProvider) Runs() int        { return m.runs }
func (m *mockProvider) LastError() error { return m.err }

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatusServer(t *testing.T) {
	_ = logger.Init()
	generated := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	Convey("Given a status server before the first run", t, func() {
		p := &mockProvider{}
		h := api.NewServer(p).Handler()

		Convey("When /healthz is requested", func() {
			rec := get(h, "/healthz")

			Convey("Then it reports liveness without a run", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				var body map[string]any
				So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
				So(body["status"], ShouldEqual, "ok")
				So(body, ShouldNotContainKey, "last_run_id")
			})
		})

		Convey("When /report is requested", func() {
			rec := get(h, "/report")

			Convey("Then it is not found", func() {
				So(rec.Code, ShouldEqual, http.StatusNotFound)
				So(rec.Body.String(), ShouldContainSubstring, api.ErrNoReport.Error())
			})
		})

		Convey("When /metrics is requested", func() {
			rec := get(h, "/metrics")

			So(rec.Code, ShouldEqual, http.StatusOK)
		})
	})

	Convey("Given a status server after a run", t, func() {
		reg := prometheus.NewRegistry()
		counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "turnlat_test_runs_total", Help: "test"})
		reg.MustRegister(counter)
		counter.Inc()

		rep := report.NewGenerator().Generate([]model.TurnMeasurement{
			{RecordingID: "RE1", Timestamp: generated, RTTMS: 400, Confidence: 0.5, Quality: 0.1},
		}, report.Meta{RunID: "run-9", GeneratedAt: generated})
		p := &mockProvider{report: rep, registry: reg, runs: 3, err: errors.New("source down")}
		h := api.NewServer(p).Handler()

		Convey("When /healthz is requested", func() {
			get(h, "/report")
			rec := get(h, "/healthz")

			Convey("Then it describes the latest run", func() {
				var body map[string]any
				So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
				So(body["last_run_id"], ShouldEqual, "run-9")
				So(body["verdict"], ShouldEqual, string(report.VerdictPass))
				So(body["runs"], ShouldEqual, 3.0)
				So(body["requests"], ShouldEqual, 1.0)
				So(body["last_error"], ShouldEqual, "source down")
			})
		})

		Convey("When /report is requested", func() {
			rec := get(h, "/report")

			Convey("Then the latest report is returned as JSON", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Header().Get("Content-Type"), ShouldStartWith, "application/json")
				var body report.Report
				So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
				So(body.RunID, ShouldEqual, "run-9")
				So(body.Latency.Count, ShouldEqual, 1)
			})
		})

		Convey("When /metrics is requested", func() {
			rec := get(h, "/metrics")

			Convey("Then the run's registry is exposed", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, "turnlat_test_runs_total 1")
			})
		})

		Convey("When a write method is used", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/report", nil))

			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}
