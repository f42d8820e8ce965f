package audio

import "math"

// Kalman constants (§4.2 stage 3). The filter tracks log2(BPM) rather
// than BPM directly so that octave errors (BPM doubling/halving) show up
// as a fixed-size jump of exactly 1.0 in state space, which is what
// makes octave-snap detection a simple threshold test.
const (
	kalmanBaseQ = 0.0008 // process noise floor
	kalmanBaseR = 0.02   // measurement noise floor

	// kalmanDivergenceInnovation is the innovation magnitude (in log2-BPM
	// units) past which the filter distrusts its own state and re-inits
	// from the raw measurement instead of slowly converging to it.
	kalmanDivergenceInnovation = 0.75

	// kalmanOctaveSnapBand is how close to exactly +/-1.0 octave an
	// innovation has to land to be treated as an octave error rather than
	// a genuine tempo change: log2(1.05), i.e. a measurement within 5% of
	// double or half the filtered tempo.
	kalmanOctaveSnapBand = 0.0704

	// kalmanSnapEscapeFrames is how many consecutive frames a
	// newly-snapped state is protected from being immediately snapped
	// back, which would otherwise let the filter oscillate between two
	// octaves every frame when the tempo estimator is ambivalent.
	kalmanSnapEscapeFrames = 50
)

// KalmanBPM is a scalar Kalman filter over log2(BPM) with adaptive
// process/measurement noise (scaled by the tempo estimator's
// confidence), divergence re-initialization, and octave-snap correction.
type KalmanBPM struct {
	initialized bool
	state       float64 // log2(BPM)
	variance    float64

	snapEscapeRemaining int
}

// NewKalmanBPM creates an uninitialized filter; the first Update call
// seeds the state directly from the measurement.
func NewKalmanBPM() *KalmanBPM {
	return &KalmanBPM{}
}

// Update folds one (bpm, confidence) measurement into the filter and
// returns the filtered BPM. confidence in [0,1] scales the measurement
// noise: a low-confidence tempo estimate is trusted less.
func (k *KalmanBPM) Update(measuredBPM, confidence float64) float64 {
	measured := math.Log2(clampBPM(measuredBPM))

	if !k.initialized {
		k.state = measured
		k.variance = kalmanBaseQ * 10
		k.initialized = true
		return bpmFromLog2(k.state)
	}

	confidence = clamp01(confidence)
	// Low confidence inflates both noise terms: Q grows because we trust
	// the existing trajectory less, R grows because we trust the new
	// measurement less.
	q := kalmanBaseQ * (1 + 4*(1-confidence))
	r := kalmanBaseR * (1 + 9*(1-confidence))

	predicted := k.state
	predictedVariance := k.variance + q

	innovation := measured - predicted

	if math.Abs(innovation) >= kalmanOctaveSnapBand &&
		math.Abs(math.Abs(innovation)-1.0) <= kalmanOctaveSnapBand &&
		k.snapEscapeRemaining == 0 {
		// The measurement disagrees with the filter by almost exactly one
		// octave: treat it as an octave error in the measurement and fold
		// it back onto the filter's octave instead of snapping the state.
		if innovation > 0 {
			measured -= 1.0
		} else {
			measured += 1.0
		}
		innovation = measured - predicted
		k.snapEscapeRemaining = kalmanSnapEscapeFrames
	} else if math.Abs(innovation) > kalmanDivergenceInnovation {
		// Innovation too large to be sensor noise and not an octave
		// error either: the filter has diverged (e.g. after a track
		// change). Re-init from the measurement.
		k.state = measured
		k.variance = kalmanBaseQ * 10
		if k.snapEscapeRemaining > 0 {
			k.snapEscapeRemaining--
		}
		return bpmFromLog2(k.state)
	}

	gain := predictedVariance / (predictedVariance + r)
	k.state = predicted + gain*innovation
	k.variance = (1 - gain) * predictedVariance

	if k.snapEscapeRemaining > 0 {
		k.snapEscapeRemaining--
	}

	return bpmFromLog2(k.state)
}

// BPM returns the filter's current estimate without updating it.
func (k *KalmanBPM) BPM() float64 {
	if !k.initialized {
		return 0
	}
	return bpmFromLog2(k.state)
}

func clampBPM(bpm float64) float64 {
	if bpm < tempoMinBPM {
		return tempoMinBPM
	}
	if bpm > tempoMaxBPM {
		return tempoMaxBPM
	}
	return bpm
}

func bpmFromLog2(x float64) float64 {
	return math.Exp2(x)
}
