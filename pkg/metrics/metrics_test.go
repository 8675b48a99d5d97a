package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "pitwall")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("test_prefix"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(true),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.mergeDecisions.WithLabelValues("rich").Inc()

			Convey("Then metric names carry namespace, subsystem and prefix", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_test_prefix_merge_decisions_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording merge decisions", func() {
			before := testutil.ToFloat64(globalManager.mergeDecisions.WithLabelValues("dropped"))
			RecordMergeDecision("dropped")
			RecordMergeDecision("dropped")

			Convey("Then the labelled counter increases", func() {
				after := testutil.ToFloat64(globalManager.mergeDecisions.WithLabelValues("dropped"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When updating gauges", func() {
			UpdateRosterSize(22)
			UpdateQueueSize(3)

			Convey("Then the gauges hold the last value", func() {
				So(testutil.ToFloat64(globalManager.rosterSize), ShouldEqual, 22)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
			})
		})

		Convey("When recording the remaining helpers", func() {
			So(func() {
				RecordObservationProcessed()
				RecordObservationDuplicate()
				RecordObservationRejected("invalid")
				RecordMergeWithNewEvents()
				RecordCompetitorSeeded()
				RecordThresholdComputation("ok")
				RecordThresholdSearchSteps(1003)
				RecordSnapshotSave(1.5)
				RecordSnapshotLoad(0.5)
				RecordSnapshotError("save")
				UpdateQueueCapacity(10)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerCount(4)
				RecordWorkerProcessingLatency(2)
				RecordWorkerError()
				RecordHTTPRequest("report", "GET", "200")
				RecordHTTPRequestDuration("report", "GET", "200", 3)
				RecordErrorByComponent("worker", "merge_error")
			}, ShouldNotPanic)
		})

		Convey("The exposed registry serves pitwall metrics", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			var names []string
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(strings.Join(names, ","), ShouldContainSubstring, "pitwall_engine_merge_decisions_total")
		})
	})
}
