package audio

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// tempoWindowFrames is the number of onset-strength frames folded into
// the autocorrelation window, roughly an 8s lookback at a 10ms hop
// (§4.2 stage 2).
const tempoWindowFrames = 800

const (
	tempoMinBPM = 60.0
	tempoMaxBPM = 220.0

	// tempoPriorBPM and tempoPriorSigmaOct parametrize a log-Gaussian
	// prior over tempo in octaves (log2 BPM space), biasing candidate
	// selection toward the most common dance/club tempo region without
	// ruling out the rest of the range.
	tempoPriorBPM       = 150.0
	tempoPriorSigmaOct  = 1.5
	tempoFFTPaddedSize  = 1024
	tempoOctaveBonusWgt = 0.35
)

// TempoEstimator recovers a BPM estimate from a history of onset-strength
// samples via autocorrelation (computed through the power spectrum per
// the Wiener-Khinchin theorem, rather than a direct O(n^2) sum) combined
// with a tempo prior and octave-ratio scoring to suppress half/double
// tempo errors.
type TempoEstimator struct {
	hopSeconds float64

	buf    []float64
	pos    int
	filled bool

	fft *fourier.FFT
}

// NewTempoEstimator creates a tempo estimator for onset frames arriving
// every hopSeconds.
func NewTempoEstimator(hopSeconds float64) *TempoEstimator {
	return &TempoEstimator{
		hopSeconds: hopSeconds,
		buf:        make([]float64, tempoWindowFrames),
		fft:        fourier.NewFFT(tempoFFTPaddedSize),
	}
}

// Push appends one onset-strength sample to the sliding window.
func (t *TempoEstimator) Push(onsetStrength float64) {
	t.buf[t.pos] = onsetStrength
	t.pos = (t.pos + 1) % len(t.buf)
	if t.pos == 0 {
		t.filled = true
	}
}

// Estimate returns the most likely BPM and a [0,1] confidence derived
// from the normalized autocorrelation peak. It returns ok=false until
// enough history has accumulated.
func (t *TempoEstimator) Estimate() (bpm, confidence float64, ok bool) {
	n := len(t.buf)
	if !t.filled {
		n = t.pos
	}
	if n < 64 {
		return 0, 0, false
	}

	ordered := t.ordered(n)
	mean := 0.0
	for _, v := range ordered {
		mean += v
	}
	mean /= float64(len(ordered))

	padded := make([]float64, tempoFFTPaddedSize)
	for i, v := range ordered {
		padded[i] = v - mean
	}

	coeffs := t.fft.Coefficients(nil, padded)
	power := make([]complex128, len(coeffs))
	for i, c := range coeffs {
		m := cmplx.Abs(c)
		power[i] = complex(m*m, 0)
	}
	autocorr := t.fft.Sequence(nil, power)
	if autocorr[0] <= 1e-12 {
		return 0, 0, false
	}
	norm := autocorr[0]
	for i := range autocorr {
		autocorr[i] /= norm
	}

	minLag := int(60.0 / (tempoMaxBPM * t.hopSeconds))
	maxLag := int(60.0 / (tempoMinBPM * t.hopSeconds))
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(autocorr)/2 {
		maxLag = len(autocorr)/2 - 1
	}
	if maxLag <= minLag {
		return 0, 0, false
	}

	bestLag := minLag
	bestScore := -math.MaxFloat64
	for lag := minLag; lag <= maxLag; lag++ {
		candidateBPM := 60.0 / (float64(lag) * t.hopSeconds)
		score := autocorr[lag] * tempoPrior(candidateBPM)
		score += tempoOctaveBonusWgt * octaveEvidence(autocorr, lag)
		if score > bestScore {
			bestScore = score
			bestLag = lag
		}
	}

	bpm = 60.0 / (float64(bestLag) * t.hopSeconds)
	confidence = clamp01(autocorr[bestLag])
	return bpm, confidence, true
}

func (t *TempoEstimator) ordered(n int) []float64 {
	out := make([]float64, n)
	if !t.filled {
		copy(out, t.buf[:n])
		return out
	}
	copy(out, t.buf[t.pos:])
	copy(out[len(t.buf)-t.pos:], t.buf[:t.pos])
	return out
}

// tempoPrior weights a candidate BPM by a Gaussian in log2-BPM space
// centered on tempoPriorBPM, gently discouraging implausible tempos
// without excluding them outright.
func tempoPrior(bpm float64) float64 {
	d := (math.Log2(bpm) - math.Log2(tempoPriorBPM)) / tempoPriorSigmaOct
	return math.Exp(-0.5 * d * d)
}

// octaveEvidence rewards a candidate lag whose double (half-tempo) also
// shows strong autocorrelation, which is the signature of a true
// periodic beat rather than a sub-harmonic artifact.
func octaveEvidence(autocorr []float64, lag int) float64 {
	double := lag * 2
	if double >= len(autocorr) {
		return 0
	}
	return autocorr[double]
}

