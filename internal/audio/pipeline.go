package audio

// Pipeline wires the extractor, adaptive normalizer, and three-stage
// beat detector into the single per-hop Step call the Front drives from
// the analysis goroutine (§4.1 + §4.2 end to end).
type Pipeline struct {
	extractor  *Extractor
	normalizer *normalizer
	onset      *OnsetDetector
	tempo      *TempoEstimator
	kalman     *KalmanBPM
	scheduler  *BeatScheduler

	hopSeconds float64
	lastBPM    float64
}

// NewPipeline builds a Pipeline for the given sample rate and hop size
// (samples consumed per analysis step).
func NewPipeline(sampleRate, hopSamples int) *Pipeline {
	hopSeconds := float64(hopSamples) / float64(sampleRate)
	return &Pipeline{
		extractor:  NewExtractor(sampleRate),
		normalizer: newNormalizer(),
		onset:      NewOnsetDetector(),
		tempo:      NewTempoEstimator(hopSeconds),
		kalman:     NewKalmanBPM(),
		scheduler:  NewBeatScheduler(),
		hopSeconds: hopSeconds,
		lastBPM:    tempoPriorBPM,
	}
}

// Push feeds newly captured samples into the analysis window.
func (p *Pipeline) Push(samples []float32) {
	p.extractor.Push(samples)
}

// Ready reports whether enough audio has accumulated to Step.
func (p *Pipeline) Ready() bool {
	return p.extractor.Ready()
}

// Step runs one full analysis frame and returns the resulting,
// already-clamped Features snapshot.
func (p *Pipeline) Step() Features {
	r := p.extractor.Extract()
	norm := p.normalizer.apply(r.values)

	onsetStrength, isOnset := p.onset.Push(r.onset)
	p.tempo.Push(onsetStrength)

	confidence := 0.0
	if bpm, conf, ok := p.tempo.Estimate(); ok {
		p.lastBPM = p.kalman.Update(bpm, conf)
		confidence = conf
	}

	beat, beatPhase, beatStrength := p.scheduler.Advance(p.hopSeconds, p.lastBPM, isOnset, onsetStrength, confidence)

	bpmNorm := p.lastBPM / 300.0

	f := Features{
		SubBass:      norm[fieldSubBass],
		Bass:         norm[fieldBass],
		LowMid:       norm[fieldLowMid],
		Mid:          norm[fieldMid],
		UpperMid:     norm[fieldUpperMid],
		Presence:     norm[fieldPresence],
		Brilliance:   norm[fieldBrilliance],
		RMS:          norm[fieldRMS],
		Kick:         norm[fieldKick],
		Centroid:     norm[fieldCentroid],
		Flux:         norm[fieldFlux],
		Flatness:     norm[fieldFlatness],
		Rolloff:      norm[fieldRolloff],
		Bandwidth:    norm[fieldBandwidth],
		ZCR:          norm[fieldZCR],
		Onset:        onsetStrength,
		Beat:         beat,
		BeatPhase:    beatPhase,
		BPM:          bpmNorm,
		BeatStrength: beatStrength,
	}
	f.Clamp()
	return f
}

// BPM returns the filter's current unnormalized tempo estimate in beats
// per minute, for diagnostics and the --audio-test CLI mode.
func (p *Pipeline) BPM() float64 {
	return p.lastBPM
}
