package api

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/stay"
)

// Command outcomes used as the "outcome" label.
const (
	OutcomeOK         = "ok"
	OutcomeValidation = "validation"
	OutcomeConflict   = "conflict"
	OutcomeTransition = "transition"
	OutcomeNotFound   = "not_found"
	OutcomeError      = "error"
)

// Metrics implements stay.Observer on a private prometheus registry.
type Metrics struct {
	registry      *prometheus.Registry
	commands      *prometheus.CounterVec
	payments      *prometheus.CounterVec
	roomConflicts prometheus.Counter
}

var _ stay.Observer = (*Metrics)(nil)

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stay_commands_total",
			Help: "Reservation commands by command and outcome.",
		}, []string{"command", "outcome"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stay_payments_amount_total",
			Help: "Sum of payments recorded, by payment method.",
		}, []string{"method"}),
		roomConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stay_room_conflicts_total",
			Help: "Room claims refused because another reservation holds a night.",
		}),
	}
	m.registry.MustRegister(
		m.commands,
		m.payments,
		m.roomConflicts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) CommandCompleted(cmd stay.Command, err error) {
	m.commands.WithLabelValues(string(cmd), Classify(err)).Inc()
}

func (m *Metrics) PaymentRecorded(method billing.PaymentMethod, amount billing.Money) {
	if method == "" {
		method = "unspecified"
	}
	value, _ := amount.Value.Float64()
	m.payments.WithLabelValues(string(method)).Add(value)
}

func (m *Metrics) RoomConflict() {
	m.roomConflicts.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Classify maps a command error onto an outcome label.
func Classify(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case stay.IsNotFound(err):
		return OutcomeNotFound
	case stay.IsValidation(err):
		return OutcomeValidation
	case stay.IsConflict(err):
		return OutcomeConflict
	case stay.IsTransition(err):
		return OutcomeTransition
	case errors.Is(err, stay.ErrDuplicateIdempotencyKey):
		return OutcomeConflict
	}
	return OutcomeError
}
