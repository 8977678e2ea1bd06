package player

import "math"

// driftCorrector keeps an exponentially decaying average of the audio to
// master clock difference and decides how much to stretch or shrink the next
// audio chunk
type driftCorrector struct {
	cum       float64
	count     int
	coef      float64
	threshold float64
}

func newDriftCorrector(sampleRate int) driftCorrector {
	d := driftCorrector{
		coef: math.Exp(math.Log(0.01) / AudioDiffAvgNB),
	}
	if sampleRate > 0 {
		d.threshold = 2.0 * AudioBufferSize / float64(sampleRate)
	}
	return d
}

// reset discards the accumulated statistics
func (d *driftCorrector) reset() {
	d.cum = 0
	d.count = 0
}

// wantedSize returns the corrected size of a chunk of size bytes made of
// frames of frameSize bytes, given the current difference diff in seconds
func (d *driftCorrector) wantedSize(diff float64, size, frameSize, sampleRate int) int {
	if math.Abs(diff) >= NoSyncThreshold {
		// discontinuity (seek, stall): start over
		d.reset()
		return size
	}

	d.cum = diff + d.coef*d.cum
	if d.count < AudioDiffAvgNB {
		d.count++
		return size
	}

	avg := d.cum * (1.0 - d.coef)
	if math.Abs(avg) < d.threshold {
		return size
	}

	wanted := size + int(math.Round(diff*float64(sampleRate)))*frameSize
	minSize := size * (100 - SampleCorrectionPercentMax) / 100
	maxSize := size * (100 + SampleCorrectionPercentMax) / 100
	wanted = min(max(wanted, minSize), maxSize)

	// whole sample frames only, staying inside the bounds
	wanted -= wanted % frameSize
	if wanted < minSize {
		wanted += frameSize
	}
	return wanted
}

// applySize truncates chunk or pads it by repeating its last sample frame
func applySize(chunk []byte, wanted, frameSize int) []byte {
	switch {
	case wanted <= 0 || frameSize <= 0 || len(chunk) < frameSize:
		return chunk
	case wanted < len(chunk):
		return chunk[:wanted]
	case wanted > len(chunk):
		last := chunk[len(chunk)-frameSize:]
		out := make([]byte, len(chunk), wanted)
		copy(out, chunk)
		for len(out) < wanted {
			out = append(out, last...)
		}
		return out[:wanted]
	}
	return chunk
}
