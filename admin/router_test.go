package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/vtex/go-oneshot/event"
	"github.com/vtex/go-oneshot/prefs"
	"github.com/vtex/go-oneshot/worker"
)

func TestRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	do := func(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}

	Convey("Given an admin router", t, func() {
		pool := event.NewPool(nil)
		router := NewRouter(pool, nil, nil)

		Convey("It emits posted events", func() {
			rec := do(router, http.MethodPost, "/channels/orders/events", `{"channel":"orders","kind":"show_message","message":42,"args":["Jane"]}`)
			So(rec.Code, ShouldEqual, http.StatusAccepted)

			var got []event.Event
			pool.Attach(context.Background(), "orders", event.AlwaysActive, func(d *event.Delivery[event.Event]) {
				got = append(got, d.Event)
			})
			So(len(got), ShouldEqual, 1)
			So(got[0].(event.ShowMessage).Equal(event.ShowMessage{Message: 42, Args: []string{"Jane"}}), ShouldBeTrue)
		})

		Convey("It rejects malformed events", func() {
			rec := do(router, http.MethodPost, "/channels/orders/events", `{"channel":"orders","kind":"teleport"}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(pool.Snapshot(), ShouldBeEmpty)
		})

		Convey("It rejects events addressed to another channel", func() {
			rec := do(router, http.MethodPost, "/channels/orders/events", `{"channel":"payments","kind":"exit"}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("It lists and resets channels", func() {
			do(router, http.MethodPost, "/channels/orders/events", `{"channel":"orders","kind":"exit"}`)

			rec := do(router, http.MethodGet, "/channels", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			var statuses []event.Status
			So(json.Unmarshal(rec.Body.Bytes(), &statuses), ShouldBeNil)
			So(statuses, ShouldResemble, []event.Status{{Name: "orders", State: "pending"}})

			rec = do(router, http.MethodPost, "/channels/orders/reset", "")
			So(rec.Code, ShouldEqual, http.StatusAccepted)
			So(pool.Snapshot(), ShouldBeEmpty)
		})

		Convey("It needs a gate for once events", func() {
			rec := do(router, http.MethodPost, "/channels/tips/events?once=welcome", `{"channel":"tips","kind":"exit"}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("It reports health", func() {
			So(do(router, http.MethodGet, "/healthcheck", "").Code, ShouldEqual, http.StatusOK)

			failing := NewRouter(pool, nil, nil, func() error { return errors.New("redis down") })
			So(do(failing, http.MethodGet, "/healthcheck", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})

	Convey("Given a router with a once-gate", t, func() {
		pool := event.NewPool(nil)
		router := NewRouter(pool, nil, prefs.NewGate(prefs.NewMemory(), "pos"))
		body := `{"channel":"tips","kind":"custom","custom_kind":"welcome_tip"}`

		var got []event.Event
		pool.Attach(context.Background(), "tips", event.AlwaysActive, func(d *event.Delivery[event.Event]) {
			got = append(got, d.Event)
		})

		So(do(router, http.MethodPost, "/channels/tips/events?once=welcome", body).Code, ShouldEqual, http.StatusAccepted)
		So(do(router, http.MethodPost, "/channels/tips/events?once=welcome", body).Code, ShouldEqual, http.StatusAccepted)
		So(len(got), ShouldEqual, 1)
		So(got[0].(event.Custom).Kind, ShouldEqual, "welcome_tip")
	})

	Convey("Given a router on a stopped loop", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		loop := worker.StartLoop(ctx, 1)
		cancel()
		<-loop.Done()

		router := NewRouter(event.NewPool(nil), loop, nil)
		rec := do(router, http.MethodPost, "/channels/orders/events", `{"channel":"orders","kind":"exit"}`)
		So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
	})
}
