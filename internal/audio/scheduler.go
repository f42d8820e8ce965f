package audio

import "math"

// SchedulerState names the three states of the predictive beat scheduler
// (§4.2 stage 4).
type SchedulerState int

const (
	// Unlocked: no tempo estimate has been trusted for long enough yet;
	// the scheduler free-runs on the raw onset detector only.
	Unlocked SchedulerState = iota
	// Locked: the phase accumulator is predicting beats on its own and
	// onsets are arriving close to the predicted phase.
	Locked
	// Corrected: an onset arrived far enough from the predicted phase
	// that the scheduler nudged its phase toward the onset this frame.
	Corrected
)

const (
	// lockConfidenceFrames is the ceiling of the scheduler's confidence
	// counter: each update with confidence at or above
	// lockConfidenceThreshold raises the counter by one, each update below
	// it lowers the counter by one, and the scheduler trusts its own phase
	// prediction over raw onsets while the counter is at this ceiling.
	lockConfidenceFrames    = 20
	lockConfidenceThreshold = 0.35

	// correctionWindow is how close (in phase units) an onset has to
	// land to the predicted beat to be folded in as confirmation rather
	// than a correction.
	correctionWindow = 0.12
	// correctionGain is how strongly a mistimed onset pulls the phase
	// toward itself; 1.0 would snap instantly, which would make the
	// visual beat jittery on every syncopated hit.
	correctionGain = 0.35

	// beatDecayPerSecond is the exponential decay rate of the Beat pulse
	// envelope once triggered, tuned so a pulse is visually gone well
	// before the next beat at club tempos (~120-140 BPM).
	beatDecayPerSecond = 6.0
)

// BeatScheduler predicts beat times from a filtered BPM and a running
// phase accumulator, correcting phase against live onsets without
// letting every off-grid onset yank the beat around.
type BeatScheduler struct {
	state SchedulerState
	phase float64 // [0,1)

	confidentFrames int

	beatEnvelope     float64
	strengthEnvelope float64
}

// NewBeatScheduler creates a scheduler starting in the Unlocked state.
func NewBeatScheduler() *BeatScheduler {
	return &BeatScheduler{state: Unlocked}
}

// Advance steps the scheduler by dt seconds given the current filtered
// bpm and this frame's onset detector output, and returns the Beat,
// BeatPhase, and BeatStrength feature values.
func (s *BeatScheduler) Advance(dt, bpm float64, onsetDetected bool, onsetStrength, tempoConfidence float64) (beat, beatPhase, beatStrength float64) {
	if bpm <= 0 {
		bpm = tempoPriorBPM
	}

	if tempoConfidence >= lockConfidenceThreshold {
		if s.confidentFrames < lockConfidenceFrames {
			s.confidentFrames++
		}
	} else if s.confidentFrames > 0 {
		s.confidentFrames--
	}

	beatsPerSecond := bpm / 60.0
	s.phase += beatsPerSecond * dt

	triggered := false
	for s.phase >= 1.0 {
		s.phase -= 1.0
		triggered = true
	}

	locked := s.confidentFrames >= lockConfidenceFrames
	if locked {
		s.state = Locked
	} else {
		s.state = Unlocked
	}

	if onsetDetected {
		dist := phaseDistance(s.phase)
		switch {
		case !locked:
			// Without a trustworthy tempo yet, onsets directly drive the
			// beat pulse.
			triggered = true
			s.phase = 0
		case dist <= correctionWindow:
			// Onset confirms the prediction; no correction needed.
		default:
			s.phase = correctPhase(s.phase, correctionGain)
			s.state = Corrected
		}
	}

	if triggered {
		s.beatEnvelope = 1.0
		// beat_strength is the Kalman confidence in the current tempo
		// lock, not the raw onset amplitude that triggered this pulse.
		s.strengthEnvelope = clamp01(tempoConfidence)
	} else {
		decay := math.Exp(-beatDecayPerSecond * dt)
		s.beatEnvelope *= decay
		s.strengthEnvelope *= decay
	}

	return clamp01(s.beatEnvelope), s.phase, clamp01(s.strengthEnvelope)
}

// State returns the scheduler's current state for diagnostics/overlays.
func (s *BeatScheduler) State() SchedulerState {
	return s.state
}

// phaseDistance returns the distance from phase to the nearest beat
// boundary (0 or 1), always in [0, 0.5].
func phaseDistance(phase float64) float64 {
	d := phase
	if d > 0.5 {
		d = 1 - d
	}
	return d
}

// correctPhase nudges phase toward the nearest beat boundary by gain.
func correctPhase(phase, gain float64) float64 {
	if phase > 0.5 {
		return phase + (1-phase)*gain
	}
	return phase - phase*gain
}
