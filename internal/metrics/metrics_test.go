package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRecorder(t *testing.T) {
	Convey("Given a recorder on a private registry", t, func() {
		reg := prometheus.NewRegistry()
		r := New(WithRegistry(reg), WithNamespace("test"))

		Convey("Session counters move with their events", func() {
			r.SessionStarted()
			r.SessionFinished("timeout")
			r.SessionFinished("timeout")
			r.SessionFinished("manual")
			So(testutil.ToFloat64(r.sessionsStarted), ShouldEqual, 1)
			So(testutil.ToFloat64(r.sessionsFinished.WithLabelValues("timeout")), ShouldEqual, 2)
			So(testutil.ToFloat64(r.sessionsFinished.WithLabelValues("manual")), ShouldEqual, 1)
		})

		Convey("Backend requests without a response are labelled error", func() {
			r.BackendRequest("competition.get", 0)
			r.BackendRequest("competition.get", 200)
			So(testutil.ToFloat64(r.backendRequests.WithLabelValues("competition.get", "error")), ShouldEqual, 1)
			So(testutil.ToFloat64(r.backendRequests.WithLabelValues("competition.get", "200")), ShouldEqual, 1)
		})
	})

	Convey("A nil recorder is safe to use", t, func() {
		var r *Recorder
		So(func() {
			r.SessionStarted()
			r.TokenRefresh(true)
			r.BackendRequest("x", 500)
		}, ShouldNotPanic)
	})
}
