package audio

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/phosphor-vj/phosphor/internal/ring"
)

// Window sizes for the three FFT resolutions (§4.1): the large window
// gives the sub-bass/bass bands enough frequency resolution to separate
// from low-mid, the medium window feeds the spectral-shape features and
// the flux the onset detector runs on, and the small window gives RMS and
// zero-crossing rate low latency.
const (
	windowLarge  = 4096
	windowMedium = 1024
	windowSmall  = 512
)

// band is a [loHz, hiHz] frequency range summed into one of the seven
// perceptual energy features; bandEnergies includes both edge bins.
type band struct {
	lo, hi float64
}

var bandRanges = [7]band{
	{20, 60},      // sub_bass
	{60, 250},     // bass
	{250, 500},    // low_mid
	{500, 2000},   // mid
	{2000, 4000},  // upper_mid
	{4000, 6000},  // presence
	{6000, 20000}, // brilliance
}

// Extractor computes raw (unnormalized) spectral and temporal features
// from a stream of mono float32 samples at a fixed sample rate, using
// three concurrently-maintained analysis windows (§4.1).
type Extractor struct {
	sampleRate int

	large  *ring.Buffer
	medium *ring.Buffer
	small  *ring.Buffer

	fftLarge  *fourier.FFT
	fftMedium *fourier.FFT
	fftSmall  *fourier.FFT

	winLarge  []float64
	winMedium []float64
	winSmall  []float64

	scratchLarge  []float32
	scratchMedium []float32
	scratchSmall  []float32

	bufLarge  []float64
	bufMedium []float64
	bufSmall  []float64

	prevMagMedium []float64

	sampleCount uint64
}

// NewExtractor builds an Extractor for the given sample rate. Each
// window's backing ring buffer holds twice that window's size in samples.
func NewExtractor(sampleRate int) *Extractor {
	e := &Extractor{
		sampleRate: sampleRate,
		large:      ring.NewBuffer(windowLarge * 2),
		medium:     ring.NewBuffer(windowMedium * 2),
		small:      ring.NewBuffer(windowSmall * 2),

		fftLarge:  fourier.NewFFT(windowLarge),
		fftMedium: fourier.NewFFT(windowMedium),
		fftSmall:  fourier.NewFFT(windowSmall),

		winLarge:  hann(windowLarge),
		winMedium: hann(windowMedium),
		winSmall:  hann(windowSmall),

		scratchLarge:  make([]float32, windowLarge),
		scratchMedium: make([]float32, windowMedium),
		scratchSmall:  make([]float32, windowSmall),

		bufLarge:  make([]float64, windowLarge),
		bufMedium: make([]float64, windowMedium),
		bufSmall:  make([]float64, windowSmall),

		prevMagMedium: make([]float64, windowMedium/2+1),
	}
	return e
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// Push feeds newly captured samples into all three analysis windows.
func (e *Extractor) Push(samples []float32) {
	e.large.Write(samples)
	e.medium.Write(samples)
	e.small.Write(samples)
	e.sampleCount += uint64(len(samples))
}

// Ready reports whether enough samples have accumulated to run Extract.
func (e *Extractor) Ready() bool {
	return e.sampleCount >= uint64(windowLarge)
}

// raw holds the unnormalized, pre-clamp scalar features produced by one
// Extract call, in the channel order used by normalizer.
type raw struct {
	values  [normalizerFieldCount]float64
	onset   float64
	zcrTime float64
}

// Extract runs the FFT pipeline over the most recent samples of each
// window and returns the raw features for the normalizer. Each of the
// three FFTs allocates its windowed input and magnitude spectrum per call
// (see magnitude).
func (e *Extractor) Extract() raw {
	var out raw

	e.large.Peek(e.scratchLarge)
	for i, v := range e.scratchLarge {
		e.bufLarge[i] = float64(v)
	}
	magLarge := e.magnitude(e.fftLarge, e.bufLarge, e.winLarge)
	bands := bandEnergies(magLarge, e.sampleRate, windowLarge)
	out.values[fieldSubBass] = bands[0]
	out.values[fieldBass] = bands[1]
	out.values[fieldLowMid] = bands[2]
	out.values[fieldMid] = bands[3]
	out.values[fieldUpperMid] = bands[4]
	out.values[fieldPresence] = bands[5]
	out.values[fieldBrilliance] = bands[6]
	out.values[fieldKick] = kickEnvelope(magLarge, e.sampleRate, windowLarge)

	e.medium.Peek(e.scratchMedium)
	for i, v := range e.scratchMedium {
		e.bufMedium[i] = float64(v)
	}
	magMedium := e.magnitude(e.fftMedium, e.bufMedium, e.winMedium)
	out.values[fieldCentroid] = spectralCentroid(magMedium, e.sampleRate, windowMedium)
	out.values[fieldFlatness] = spectralFlatness(magMedium)
	out.values[fieldRolloff] = spectralRolloff(magMedium, e.sampleRate, windowMedium, 0.85)
	out.values[fieldBandwidth] = spectralBandwidth(magMedium, e.sampleRate, windowMedium, out.values[fieldCentroid])
	out.values[fieldFlux] = spectralFlux(magMedium, e.prevMagMedium)
	copy(e.prevMagMedium, magMedium)
	out.onset = out.values[fieldFlux]

	e.small.Peek(e.scratchSmall)
	for i, v := range e.scratchSmall {
		e.bufSmall[i] = float64(v)
	}
	out.values[fieldRMS] = rms(e.bufSmall)
	out.zcrTime = zeroCrossingRate(e.bufSmall)
	out.values[fieldZCR] = out.zcrTime

	return out
}

// magnitude windows raw into a newly allocated buffer, runs the forward
// real FFT, and returns a newly allocated magnitude spectrum (length
// n/2+1).
func (e *Extractor) magnitude(fft *fourier.FFT, raw []float64, window []float64) []float64 {
	n := len(raw)
	windowed := make([]float64, n)
	for i := range raw {
		windowed[i] = raw[i] * window[i]
	}
	coeffs := fft.Coefficients(nil, windowed)
	mag := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mag[i] = cmplx.Abs(c)
	}
	return mag
}

func binHz(sampleRate, n int) float64 {
	return float64(sampleRate) / float64(n)
}

func bandEnergies(mag []float64, sampleRate, n int) [7]float64 {
	hz := binHz(sampleRate, n)
	var out [7]float64
	for bi, b := range bandRanges {
		loBin := int(b.lo / hz)
		hiBin := int(b.hi / hz)
		if hiBin >= len(mag) {
			hiBin = len(mag) - 1
		}
		sum := 0.0
		count := 0
		for i := loBin; i <= hiBin && i < len(mag); i++ {
			sum += mag[i]
			count++
		}
		if count > 0 {
			out[bi] = sum / float64(count)
		}
	}
	return out
}

// kickEnvelope isolates transient energy in the sub-bass/bass crossover
// (roughly 40-120Hz), the band a four-on-the-floor kick drum occupies.
func kickEnvelope(mag []float64, sampleRate, n int) float64 {
	hz := binHz(sampleRate, n)
	lo := int(40 / hz)
	hi := int(120 / hz)
	if hi >= len(mag) {
		hi = len(mag) - 1
	}
	sum := 0.0
	count := 0
	for i := lo; i <= hi && i < len(mag); i++ {
		sum += mag[i] * mag[i]
		count++
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}

func spectralCentroid(mag []float64, sampleRate, n int) float64 {
	hz := binHz(sampleRate, n)
	num, den := 0.0, 0.0
	for i, m := range mag {
		f := float64(i) * hz
		num += f * m
		den += m
	}
	if den < 1e-12 {
		return 0
	}
	return num / den
}

func spectralBandwidth(mag []float64, sampleRate, n int, centroid float64) float64 {
	hz := binHz(sampleRate, n)
	num, den := 0.0, 0.0
	for i, m := range mag {
		f := float64(i) * hz
		d := f - centroid
		num += d * d * m
		den += m
	}
	if den < 1e-12 {
		return 0
	}
	return math.Sqrt(num / den)
}

func spectralFlatness(mag []float64) float64 {
	const eps = 1e-12
	logSum := 0.0
	sum := 0.0
	n := 0
	for _, m := range mag {
		v := m + eps
		logSum += math.Log(v)
		sum += v
		n++
	}
	if n == 0 || sum <= 0 {
		return 0
	}
	geoMean := math.Exp(logSum / float64(n))
	arithMean := sum / float64(n)
	if arithMean < 1e-12 {
		return 0
	}
	return geoMean / arithMean
}

func spectralRolloff(mag []float64, sampleRate, n int, fraction float64) float64 {
	total := 0.0
	for _, m := range mag {
		total += m
	}
	if total <= 0 {
		return 0
	}
	threshold := total * fraction
	cum := 0.0
	hz := binHz(sampleRate, n)
	for i, m := range mag {
		cum += m
		if cum >= threshold {
			return float64(i) * hz
		}
	}
	return float64(len(mag)-1) * hz
}

func spectralFlux(mag, prev []float64) float64 {
	flux := 0.0
	for i, m := range mag {
		if i >= len(prev) {
			break
		}
		d := m - prev[i]
		if d > 0 {
			flux += d
		}
	}
	return flux
}

func rms(samples []float64) float64 {
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	if len(samples) == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func zeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}
