package prometheus

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/vtex/go-oneshot/event"
)

func TestClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	InitClient()

	Convey("Tracks channel outcomes", t, func() {
		ch := event.NewChannel[event.Event]("metrics_test", event.WithTracker(GetClient()))
		ch.Emit(event.Exit{})
		ch.Attach(event.AlwaysActive, func(*event.Delivery[event.Event]) {})

		router := gin.New()
		router.GET("/metrics", Handler())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		So(rec.Code, ShouldEqual, http.StatusOK)
		body := rec.Body.String()
		So(body, ShouldContainSubstring, `oneshot_events_total{channel="metrics_test",outcome="delivered"} 1`)
		So(body, ShouldContainSubstring, `oneshot_events_pending{channel="metrics_test"} 0`)
	})

	Convey("Refuses to be initialized twice", t, func() {
		So(InitClient, ShouldPanic)
	})
}
