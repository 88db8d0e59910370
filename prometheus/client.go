package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vtex/go-oneshot/event"
)

var (
	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oneshot_events_total",
		Help: "The total number of one-shot event outcomes, by channel.",
	}, []string{"channel", "outcome"})

	eventsPending = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oneshot_events_pending",
		Help: "Whether the channel holds an event not yet accepted by a subscriber.",
	}, []string{"channel"})
)

var client PrometheusClient

// PrometheusClient is an event.Tracker feeding the default registry.
type PrometheusClient interface {
	event.Tracker
}

type prometheusClient struct {
}

func (p *prometheusClient) Track(channel string, outcome event.Outcome) {
	eventsTotal.With(prometheus.Labels{"channel": channel, "outcome": string(outcome)}).Inc()
}

func (p *prometheusClient) SetPending(channel string, pending bool) {
	value := 0.0
	if pending {
		value = 1
	}
	eventsPending.With(prometheus.Labels{"channel": channel}).Set(value)
}

func InitClient() {
	if client != nil {
		panic("The client has already been initialized.")
	}

	prometheus.MustRegister(eventsTotal)
	prometheus.MustRegister(eventsPending)

	client = &prometheusClient{}
}

func GetClient() PrometheusClient {
	if client == nil {
		panic("Init the prometheus client before access it")
	}
	return client
}
