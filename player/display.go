package player

import (
	"math"
	"time"
)

// display is the display goroutine. It polls the picture queue instead of
// waiting on it, so presentation latency is bounded by the poll interval.
func (p *pipeline) display() error {
	for !p.quit.Load() {
		if p.s.paused.Load() || p.s.vpaused.Load() {
			p.pacer.reset()
			if !p.sleep(pollInterval) {
				return nil
			}
			continue
		}

		qp, ok := p.pq.Peek()
		if !ok {
			if !p.sleep(pollInterval) {
				return nil
			}
			continue
		}

		// decoded before the last seek
		if qp.Serial != p.videoQ.Serial() {
			p.pq.Pop()
			continue
		}

		if p.opts.Pacing == PacingPTS {
			var master func() float64
			if p.clocks.master != SyncVideo {
				master = p.clocks.Master
			}
			wait := p.pacer.delay(qp.PTS, qp.Serial, now(), master)
			if !p.sleep(seconds(wait)) {
				return nil
			}
			if qp.Serial != p.videoQ.Serial() {
				continue
			}
		}

		if err := p.opts.VideoSink.Present(qp.Pic); err != nil {
			p.log.Debug("failed to present picture", "index", qp.Index, "error", err)
		}
		p.clocks.video.Set(qp.PTS)
		p.pq.Pop()

		if p.opts.Pacing == PacingFixed {
			if !p.sleep(p.opts.FrameInterval) {
				return nil
			}
		}
	}
	return nil
}

// framePacer schedules pictures from their timestamps. The delay between two
// pictures is their pts difference, shortened or lengthened when video runs
// behind or ahead of the master clock.
type framePacer struct {
	started   bool
	serial    int
	timer     float64
	lastPTS   float64
	lastDelay float64
}

// reset restarts pacing from the next picture
func (f *framePacer) reset() {
	f.started = false
}

// delay returns the seconds to wait before presenting a picture. master is
// nil when video is the master clock.
func (f *framePacer) delay(pts float64, serial int, now float64, master func() float64) float64 {
	if !f.started || serial != f.serial {
		*f = framePacer{
			started:   true,
			serial:    serial,
			timer:     now,
			lastPTS:   pts,
			lastDelay: initialLastDelay,
		}
		return 0
	}

	delay := pts - f.lastPTS
	if delay <= 0 || delay >= 1.0 {
		// bad timestamp, keep the previous rhythm
		delay = f.lastDelay
	}
	f.lastDelay = delay
	f.lastPTS = pts

	if master != nil {
		diff := pts - master()
		threshold := max(delay, SyncThreshold)
		if math.Abs(diff) < NoSyncThreshold {
			switch {
			case diff <= -threshold:
				delay = 0
			case diff >= threshold:
				delay = 2 * delay
			}
		}
	}

	f.timer += delay
	return max(f.timer-now, minFrameDelay)
}

func now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
