package metrics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	eventsReceived  = prometheus.NewCounter(prometheus.CounterOpts{Name: "tacotip_events_received_total", Help: "Slack events received"})
	duplicateEvents = prometheus.NewCounter(prometheus.CounterOpts{Name: "tacotip_duplicate_events_total", Help: "Duplicate Slack events dropped"})
	tipsSubmitted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "tacotip_tips_submitted_total", Help: "Tip batches submitted to the relay"})
	callbacks       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "tacotip_engine_callbacks_total", Help: "Relay callbacks by status"}, []string{"status"})
	notifyFailures  = prometheus.NewCounter(prometheus.CounterOpts{Name: "tacotip_notification_failures_total", Help: "Slack notification delivery failures"})
)

func init() {
	prometheus.MustRegister(eventsReceived, duplicateEvents, tipsSubmitted, callbacks, notifyFailures)
}

// Start runs a Prometheus handler on the given listen addr. Empty addr
// disables metrics.
func Start(ctx context.Context, listen string, log *slog.Logger) {
	if listen == "" {
		return
	}
	srv := &http.Server{Addr: listen, Handler: promhttp.Handler()}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", slog.String("err", err.Error()))
		}
	}()
}

func IncEventReceived() { eventsReceived.Inc() }

func IncDuplicateEvent() { duplicateEvents.Inc() }

func IncTipSubmitted() { tipsSubmitted.Inc() }

func IncCallback(status string) { callbacks.WithLabelValues(status).Inc() }

func IncNotificationFailure() { notifyFailures.Inc() }
