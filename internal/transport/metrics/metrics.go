package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"epiabm.ai/internal/sim/abm"
)

// StepMetrics exposes the latest compartments and the cumulative event
// counters of a run. It is a step sink and owns its registry.
type StepMetrics struct {
	reg *prometheus.Registry

	step         prometheus.Gauge
	simTime      prometheus.Gauge
	compartments *prometheus.GaugeVec
	events       *prometheus.CounterVec
}

func New(runID string) *StepMetrics {
	labels := prometheus.Labels{"run_id": runID}
	m := &StepMetrics{
		reg: prometheus.NewRegistry(),
		step: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "epiabm_step",
			Help:        "Last completed simulation step.",
			ConstLabels: labels,
		}),
		simTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "epiabm_sim_time_days",
			Help:        "Simulated time of the last completed step.",
			ConstLabels: labels,
		}),
		compartments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "epiabm_agents",
			Help:        "Agents per compartment after the last step.",
			ConstLabels: labels,
		}, []string{"compartment"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "epiabm_events_total",
			Help:        "Transition, testing and vaccination events.",
			ConstLabels: labels,
		}, []string{"event"}),
	}
	m.reg.MustRegister(m.step, m.simTime, m.compartments, m.events)
	return m
}

// RegisterGaugeFunc exposes a value sampled at scrape time, such as an index queue depth.
func (m *StepMetrics) RegisterGaugeFunc(name, help string, fn func() float64) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

func (m *StepMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *StepMetrics) WriteStep(e abm.StepLogEntry) error {
	m.step.Set(float64(e.Step))
	m.simTime.Set(e.Time)

	c := e.Compartments
	for name, v := range map[string]int{
		"susceptible":  c.Susceptible,
		"exposed":      c.Exposed,
		"symptomatic":  c.Symptomatic,
		"recovered":    c.Recovered,
		"dead":         c.Dead,
		"hospitalized": c.Hospitalized,
		"icu":          c.ICU,
		"isolated":     c.Isolated,
		"flu":          c.Flu,
		"vaccinated":   c.Vaccinated,
	} {
		m.compartments.WithLabelValues(name).Set(float64(v))
	}

	n := e.New
	for name, v := range map[string]int{
		"infected":          n.Infected,
		"recovered":         n.Recovered,
		"recovered_exposed": n.RecoveredExposed,
		"hospitalized":      n.Hospitalized,
		"died":              n.Died,
		"tested":            n.Tested,
		"positive":          n.Positive,
		"negative":          n.Negative,
		"false_positive":    n.FalsePositive,
		"false_negative":    n.FalseNegative,
		"flu_resolved":      n.FluResolved,
		"vaccinated":        n.Vaccinated,
	} {
		if v > 0 {
			m.events.WithLabelValues(name).Add(float64(v))
		}
	}
	return nil
}
