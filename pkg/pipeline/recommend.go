package pipeline

// Recommendation thresholds. Volume figures are normalized RMS/peak
// levels in [0, 1], SNR is in dB.
const (
	lowLanguageConfidence = 0.5
	highNoiseLevel        = 0.1
	lowSNR                = 10.0
	clippingPeak          = 0.99
	lowVolume             = 0.005

	trendWindow        = 5
	lowTrendConfidence = 0.6
)

// recommend derives human-readable tuning hints from the current result,
// the supplied frame's peak level (0 when no frame was given), and the
// recent history. Called before res is appended to the history.
func (o *Orchestrator) recommend(res Result, peak float64) []string {
	var recs []string

	if res.Detection != nil && res.LanguageConfidence < lowLanguageConfidence {
		recs = append(recs, "Language detection confidence is low; try repeating the phrase more clearly.")
	}

	if res.Noise != nil {
		if res.Noise.NoiseLevel > highNoiseLevel {
			recs = append(recs, "High background noise detected; enable noise cancellation or move to a quieter environment.")
		}
		if res.Noise.SNR != 0 && res.Noise.SNR < lowSNR {
			recs = append(recs, "Low signal-to-noise ratio; move closer to the microphone.")
		}
	}

	if peak > clippingPeak {
		recs = append(recs, "Input signal is clipping; lower the microphone gain.")
	}
	if res.Voice != nil && res.Voice.Volume < lowVolume {
		recs = append(recs, "Input volume is very low; raise the microphone gain or speak louder.")
	}

	if trend, ok := o.confidenceTrend(res); ok && trend < lowTrendConfidence {
		recs = append(recs, "Recognition confidence has been trending low; consider recalibrating your voice profile.")
	}

	return recs
}

// confidenceTrend averages the language confidence over the last
// trendWindow results including the current one. ok is false until the
// window is full.
func (o *Orchestrator) confidenceTrend(res Result) (float64, bool) {
	if res.Detection == nil {
		return 0, false
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	sum := res.LanguageConfidence
	count := 1
	for i := len(o.history) - 1; i >= 0 && count < trendWindow; i-- {
		if o.history[i].Detection == nil {
			continue
		}
		sum += o.history[i].LanguageConfidence
		count++
	}
	if count < trendWindow {
		return 0, false
	}
	return sum / float64(count), true
}
