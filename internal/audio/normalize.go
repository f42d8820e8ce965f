package audio

// normAlpha is the exponential decay rate applied each analysis frame to
// the running min/max bounds used for adaptive normalization.
const normAlpha = 0.005

// channel tracks an adaptively decaying [min,max] envelope for one raw
// feature and maps new raw values into [0,1] against it. The bounds creep
// toward the most recent observation every frame so the engine adapts to
// a track's loudness and spectral balance without a fixed calibration step.
type channel struct {
	min, max float64
	seen     bool
}

func (c *channel) normalize(raw float64) float64 {
	if !c.seen {
		// First observation seeds both bounds so early frames don't divide
		// by a zero-width range.
		c.min, c.max = raw, raw+1e-6
		c.seen = true
	}

	if raw < c.min {
		c.min = raw
	} else {
		c.min += (raw - c.min) * normAlpha
	}
	if raw > c.max {
		c.max = raw
	} else {
		c.max += (raw - c.max) * normAlpha
	}

	span := c.max - c.min
	if span < 1e-9 {
		return 0
	}
	return clamp01((raw - c.min) / span)
}

// normalizerFieldCount is the number of independently-normalized raw
// channels the extractor feeds through the normalizer each frame.
const normalizerFieldCount = 15

// fieldIdx names the channel slots; order is internal bookkeeping only
// and does not need to match gpu.AudioFeatureOrder.
const (
	fieldSubBass = iota
	fieldBass
	fieldLowMid
	fieldMid
	fieldUpperMid
	fieldPresence
	fieldBrilliance
	fieldRMS
	fieldKick
	fieldCentroid
	fieldFlux
	fieldFlatness
	fieldRolloff
	fieldBandwidth
	fieldZCR
)

// normalizer owns one adaptive channel per raw scalar feature. RMS, flux,
// and kick additionally pass through a channel since their raw magnitudes
// vary enormously between sources; the others are naturally bounded
// ratios but are still normalized so quiet and bright-but-soft mixes both
// reach the full visual range.
type normalizer struct {
	channels [normalizerFieldCount]channel
}

func newNormalizer() *normalizer {
	return &normalizer{}
}

func (n *normalizer) apply(raw [normalizerFieldCount]float64) [normalizerFieldCount]float64 {
	var out [normalizerFieldCount]float64
	for i, v := range raw {
		out[i] = n.channels[i].normalize(v)
	}
	return out
}
