package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Login outcomes reported by Metrics.
const (
	LoginOutcomeSuccess  = "success"
	LoginOutcomeInvalid  = "invalid_credentials"
	LoginOutcomeInactive = "inactive"
	LoginOutcomeLocked   = "locked"
	LoginOutcomeError    = "error"
)

// Metrics holds the prometheus collectors of the auth core. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	loginAttempts *prometheus.CounterVec
	lockouts      prometheus.Counter
	revocations   prometheus.Counter
	ledgerEntries prometheus.GaugeFunc
}

// NewMetrics registers the collectors on reg. ledger may be nil.
func NewMetrics(reg prometheus.Registerer, ledger *RevocationLedger) (*Metrics, error) {
	m := &Metrics{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_lockouts_total",
			Help: "Accounts locked by repeated login failures.",
		}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_revocations_total",
			Help: "Tokens revoked at logout.",
		}),
	}

	collectors := []prometheus.Collector{m.loginAttempts, m.lockouts, m.revocations}
	if ledger != nil {
		m.ledgerEntries = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "auth_revocation_ledger_entries",
			Help: "Entries held by the revocation ledger.",
		}, func() float64 {
			return float64(ledger.Len())
		})
		collectors = append(collectors, m.ledgerEntries)
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) loginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) lockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

func (m *Metrics) revocation() {
	if m == nil {
		return
	}
	m.revocations.Inc()
}
