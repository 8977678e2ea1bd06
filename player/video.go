package player

import "errors"

// decodeVideo is the video decode goroutine. It exits once the video packet
// queue is aborted.
func (p *pipeline) decodeVideo() error {
	for {
		pkt, err := p.videoQ.Get(true)
		if err != nil {
			return nil
		}

		err = p.decodeVideoPacket(pkt)
		p.videoPending.Add(-1)
		if err != nil {
			if isStopped(err) {
				return nil
			}
			return err
		}
	}
}

func (p *pipeline) decodeVideoPacket(pkt *Packet) error {
	switch {
	case pkt.IsFlush():
		p.vdec.Flush()
		p.inflight.Store(0)
		return nil
	case pkt.IsEmpty():
		return p.drainVideo(pkt)
	}

	frame, complete, err := p.vdec.Decode(pkt)
	switch {
	case errors.Is(err, ErrDrained):
		p.inflight.Store(0)
		return nil
	case err != nil:
		p.log.Debug("skipping malformed video packet", "index", pkt.Index, "error", err)
		return nil
	case !complete:
		if !p.eof.Load() {
			p.inflight.Add(1)
		}
		return nil
	}

	return p.queueFrame(frame, pkt)
}

// drainVideo pulls every frame the decoder is still holding at end of stream
func (p *pipeline) drainVideo(pkt *Packet) error {
	defer func() {
		p.inflight.Store(0)
		p.drained.Store(true)
	}()

	for {
		frame, complete, err := p.vdec.Decode(pkt)
		if err != nil {
			if !errors.Is(err, ErrDrained) {
				p.log.Debug("video drain failed", "error", err)
			}
			return nil
		}
		if !complete {
			return nil
		}
		if err := p.queueFrame(frame, pkt); err != nil {
			return err
		}
	}
}

func (p *pipeline) queueFrame(frame *VideoFrame, pkt *Packet) error {
	pts := p.synchronizeVideo(frame, pkt)
	if err := p.pq.Queue(frame, pkt.Index, pkt.Serial(), pts); err != nil {
		return err
	}
	if p.eof.Load() && p.inflight.Load() > 0 {
		p.inflight.Add(-1)
	}
	return nil
}

// synchronizeVideo returns the presentation time of a frame and advances the
// decode side video clock past it. Frames without a timestamp take the clock.
func (p *pipeline) synchronizeVideo(frame *VideoFrame, pkt *Packet) float64 {
	pts := frame.PTS
	if pts < 0 && pkt.HasPTS() {
		pts = float64(pkt.PTS) * p.videoSt.TimeBase.Float64()
	}

	if pts >= 0 {
		p.videoClock = pts
	} else {
		pts = p.videoClock
	}

	delay := p.frameDuration()
	// repeated fields extend the frame by half a period each
	delay += float64(frame.RepeatPict) * delay * 0.5
	p.videoClock += delay
	return pts
}

// frameDuration returns the nominal duration of one video frame in seconds
func (p *pipeline) frameDuration() float64 {
	if fr := p.videoSt.FrameRate; fr.Num > 0 && fr.Den > 0 {
		return float64(fr.Den) / float64(fr.Num)
	}
	return initialLastDelay
}
