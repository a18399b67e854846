package abm

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/site"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Digest is the state digest after the last completed step.
func (s *Sim) Digest() string { return s.stateDigest() }

func (s *Sim) stateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, s.step)
	digestWriteF64(h, &tmp, s.cfg.Leisure.Fraction)
	digestWriteI64(h, &tmp, int64(s.capCount))
	digestWriteI64(h, &tmp, int64(s.env.Testing.Index()))
	if rng, err := s.env.Inf.State(); err == nil {
		h.Write(rng)
	}
	s.digestAgents(h, &tmp)
	s.digestSites(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func (s *Sim) digestAgents(h hashWriter, tmp *[8]byte) {
	for i := range s.env.Agents {
		a := &s.env.Agents[i]
		h.Write([]byte{
			byte(a.State), byte(a.Test), byte(a.Leisure), byte(a.Dose),
			boolByte(a.HomeIsolated), boolByte(a.Hospitalized), boolByte(a.ICU),
			boolByte(a.ContactTraced), boolByte(a.FluSymptomatic), boolByte(a.Vaccinated),
		})
		digestWriteI64(h, tmp, int64(a.LeisureID))
		digestWriteI64(h, tmp, int64(a.HospitalID))
		digestWriteF64(h, tmp, a.ExposureTime)
		digestWriteF64(h, tmp, a.Variability)
		digestWriteF64(h, tmp, a.QuarantineEnd)
		digestWriteF64(h, tmp, a.BenefitAt(model.Effectiveness, s.Time()))
	}
}

func (s *Sim) digestSites(h hashWriter, tmp *[8]byte) {
	s.env.Town.Each(func(st *site.Site) {
		h.Write([]byte{byte(st.Kind)})
		digestWriteI64(h, tmp, int64(st.NumAgents()))
		digestWriteF64(h, tmp, st.Beta)
		digestWriteF64(h, tmp, st.OutsideLambda)
	})
}
