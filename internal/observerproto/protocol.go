package observerproto

import "epiabm.ai/internal/sim/abm"

// Version is the observer protocol version.
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Every forwards one step out of Every. Zero means every step.
	Every int `json:"every,omitempty"`
}

// HTTP response for GET /v1/observe/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string    `json:"protocol_version"`
	RunID           string    `json:"run_id"`
	Step            uint64    `json:"step"`
	RunParams       RunParams `json:"run_params"`
}

type RunParams struct {
	Mode         string  `json:"mode"`
	Dt           float64 `json:"dt"`
	Steps        int     `json:"steps"`
	StepRateHz   int     `json:"step_rate_hz"`
	Seed         uint64  `json:"seed"`
	Agents       int     `json:"agents"`
	ParamsDigest string  `json:"params_digest"`
}

// Server -> Client. Sent for each forwarded step.
type StepMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Step            uint64  `json:"step"`
	Time            float64 `json:"time"`
	Day             int     `json:"day"`

	Compartments abm.Compartments `json:"compartments"`
	New          abm.Totals       `json:"new"`
	Totals       abm.Totals       `json:"totals"`
	Digest       string           `json:"digest"`
}

// Server -> Client. Sent once when the run reaches its final step.
type DoneMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Step            uint64 `json:"step"`
	Status          string `json:"status"`
}

func NewStepMsg(e abm.StepLogEntry) StepMsg {
	return StepMsg{
		Type:            "STEP",
		ProtocolVersion: Version,
		Step:            e.Step,
		Time:            e.Time,
		Day:             e.Day,
		Compartments:    e.Compartments,
		New:             e.New,
		Totals:          e.Totals,
		Digest:          e.Digest,
	}
}
