package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Total messages accepted by the write path.",
	})
	EventsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_events_published_total",
		Help: "Total lifecycle events published to the broker.",
	})
	PublishFail = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_events_publish_fail_total",
		Help: "Total broker publish failures (surfaced as request failures).",
	})

	Consumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_events_consumed_total",
		Help: "Total broker events consumed.",
	})
	EventDecodeFail = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_event_decode_fail_total",
		Help: "Total event decode failures (logged and dropped).",
	})
	Duplicates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_event_duplicates_total",
		Help: "Total duplicate events dropped by event-id dedupe.",
	})

	OnlineConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_online_conns",
		Help: "Current open websocket sessions.",
	})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_online_users",
		Help: "Current users with at least one open session.",
	})
	WSPushOK = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_push_ok_total",
		Help: "Total ws frames queued successfully.",
	})
	WSPushBackpressure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_backpressure_total",
		Help: "Total frames dropped because a session outbound queue was full.",
	})
	WSPushOffline = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_offline_total",
		Help: "Total events dropped because the target user had no open session.",
	})
)

func Register() {
	prometheus.MustRegister(
		MessagesSent, EventsPublished, PublishFail,
		Consumed, EventDecodeFail, Duplicates,
		OnlineConns, OnlineUsers,
		WSPushOK, WSPushBackpressure, WSPushOffline,
	)
}
