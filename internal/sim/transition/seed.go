package transition

import (
	"math"

	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/simctx"
)

// SeedActive infects a as an initial active case caught at a random point of
// its disease course. Agents who will stay asymptomatic get a shortened latency
// and recovery; the rest start symptomatic now.
func SeedActive(e *simctx.Env, a *model.Agent) {
	t := e.Time
	cfg := e.Params
	e.Flu.RemoveSusceptible(a.ID)
	a.ExposureTime = t
	a.Variability = e.Inf.Variability() * a.Correction(model.TransmissionCorrection, t)

	if e.Inf.WillBeAsymptomatic(a.Age, a.Correction(model.AsymptomaticCorrection, t)) {
		latency := e.Inf.Latency() * e.Inf.Uniform()
		rec := cfg.Disease.RecoveryTime * e.Inf.Uniform()
		a.State = model.Exposed
		a.RecoveringExposed = true
		a.InfectiousStart = t + math.Min(cfg.Disease.ExposedToInfectious, latency)
		a.LatencyDuration = latency + rec
		return
	}
	a.InfectiousStart = t
	onset(e, a)
}
