package abm

import "fmt"

// Mode selects which scheduled changes run at the start of every step.
type Mode uint8

const (
	// ModeEvents plays the fixed schedule: testing, school closure, lockdown, reopening phases.
	ModeEvents Mode = iota
	// ModeVaccination starts with testing on and vaccinates daily.
	ModeVaccination
	// ModeReopening is ModeVaccination plus a linear reopening of leisure.
	ModeReopening
)

var modeNames = [...]string{
	ModeEvents:      "events",
	ModeVaccination: "vaccination",
	ModeReopening:   "reopening",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

func ParseMode(s string) (Mode, error) {
	for i, n := range modeNames {
		if n == s {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q (want events, vaccination or reopening)", s)
}
