package secheaders

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSent     = "sent"
	resultDisabled = "disabled"
	resultFailed   = "failed"
)

// Metrics counts header emissions and minted nonces.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	emissions *prometheus.CounterVec
	nonces    prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg.
// Counters already registered by an earlier call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		emissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secheaders",
			Name:      "emissions_total",
			Help:      "Header emission attempts, by result.",
		}, []string{"result"}),
		nonces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "secheaders",
			Name:      "nonces_minted_total",
			Help:      "Nonces minted and added to a policy.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	if err := reg.Register(m.emissions); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("emissions collector already registered as %T", are.ExistingCollector)
		}
		m.emissions = existing
	}
	if err := reg.Register(m.nonces); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, fmt.Errorf("nonce collector already registered as %T", are.ExistingCollector)
		}
		m.nonces = existing
	}
	return m, nil
}

func (m *Metrics) emission(result string) {
	if m == nil {
		return
	}
	m.emissions.WithLabelValues(result).Inc()
}

func (m *Metrics) nonceMinted() {
	if m == nil {
		return
	}
	m.nonces.Inc()
}
