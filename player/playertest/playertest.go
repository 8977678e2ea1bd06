// Package playertest provides in-memory demuxers, decoders and sinks for
// testing code built on the player package
package playertest

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/njyeung/avplayer/player"
)

// Corrupt is a packet payload the fake decoders reject
var Corrupt = []byte("corrupt")

const (
	// VideoIndex and AudioIndex are the stream indexes of generated media
	VideoIndex = 0
	AudioIndex = 1

	// SampleRate of generated audio, mono s16
	SampleRate = 8000

	// AudioPacketSamples is the number of samples per generated audio packet
	AudioPacketSamples = 800
)

// MediaSpec describes generated media
type MediaSpec struct {
	Duration time.Duration
	FPS      int
	Width    int
	Height   int
	Video    bool
	Audio    bool

	// VideoPacketSize is the payload size of each video packet
	VideoPacketSize int

	// CorruptVideo lists video packet numbers whose payload is Corrupt
	CorruptVideo []int
}

// Media is a generated, interleaved packet sequence
type Media struct {
	Streams  []player.StreamInfo
	Packets  []*player.Packet
	Duration time.Duration

	// StallAfter makes sources report ErrNoData forever once that many
	// packets were read, like a stalled network stream. Zero never stalls.
	StallAfter int
}

// NewMedia generates media. Video timestamps are in milliseconds; audio
// timestamps are in samples.
func NewMedia(spec MediaSpec) *Media {
	if spec.FPS <= 0 {
		spec.FPS = 25
	}
	if spec.Width == 0 || spec.Height == 0 {
		spec.Width, spec.Height = 16, 8
	}
	if spec.VideoPacketSize <= 0 {
		spec.VideoPacketSize = 64
	}

	m := &Media{Duration: spec.Duration}
	if spec.Video {
		m.Streams = append(m.Streams, player.StreamInfo{
			Index:     VideoIndex,
			Type:      player.MediaTypeVideo,
			Width:     spec.Width,
			Height:    spec.Height,
			TimeBase:  player.Rational{Num: 1, Den: 1000},
			FrameRate: player.Rational{Num: spec.FPS, Den: 1},
			Duration:  spec.Duration,
		})
	}
	if spec.Audio {
		m.Streams = append(m.Streams, player.StreamInfo{
			Index:      AudioIndex,
			Type:       player.MediaTypeAudio,
			Channels:   1,
			SampleRate: SampleRate,
			TimeBase:   player.Rational{Num: 1, Den: SampleRate},
			Duration:   spec.Duration,
		})
	}

	corrupt := make(map[int]bool)
	for _, n := range spec.CorruptVideo {
		corrupt[n] = true
	}

	frameMs := int64(1000 / spec.FPS)
	audioMs := int64(AudioPacketSamples * 1000 / SampleRate)
	end := spec.Duration.Milliseconds()

	var vt, at int64
	frame := 0
	for (spec.Video && vt < end) || (spec.Audio && at < end) {
		if spec.Video && vt < end && (!spec.Audio || at >= end || vt <= at) {
			data := bytes.Repeat([]byte{byte(frame)}, spec.VideoPacketSize)
			if corrupt[frame] {
				data = append([]byte(nil), Corrupt...)
			}
			m.Packets = append(m.Packets, &player.Packet{
				Data:        data,
				StreamIndex: VideoIndex,
				PTS:         vt,
				DTS:         vt,
				Duration:    frameMs,
			})
			vt += frameMs
			frame++
			continue
		}

		samples := at * SampleRate / 1000
		m.Packets = append(m.Packets, &player.Packet{
			Data:        make([]byte, AudioPacketSamples*2),
			StreamIndex: AudioIndex,
			PTS:         samples,
			DTS:         samples,
			Duration:    AudioPacketSamples,
		})
		at += audioMs
	}
	return m
}

// Demuxer opens generated media
type Demuxer struct {
	// Media returns the media to play for a data source
	Media func(src player.DataSource) (*Media, error)

	opened atomic.Int32

	mu      sync.Mutex
	sources []*Source
}

// NewDemuxer returns a demuxer that plays m for every data source
func NewDemuxer(m *Media) *Demuxer {
	return &Demuxer{Media: func(player.DataSource) (*Media, error) { return m, nil }}
}

// Open implements player.Demuxer
func (d *Demuxer) Open(ctx context.Context, src player.DataSource) (player.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := d.Media(src)
	if err != nil {
		return nil, err
	}
	d.opened.Add(1)

	s := &Source{media: m}
	d.mu.Lock()
	d.sources = append(d.sources, s)
	d.mu.Unlock()
	return s, nil
}

// Opened returns how many sources were opened
func (d *Demuxer) Opened() int {
	return int(d.opened.Load())
}

// Sources returns every source opened so far
func (d *Demuxer) Sources() []*Source {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Source(nil), d.sources...)
}

// Source reads a Media's packets in order
type Source struct {
	media *Media

	mu     sync.Mutex
	pos    int
	seeks  []int64
	paused bool
	closed bool
}

func (s *Source) Streams() []player.StreamInfo {
	return s.media.Streams
}

func (s *Source) ReadPacket() (*player.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, player.ErrStopped
	}
	if s.media.StallAfter > 0 && s.pos >= s.media.StallAfter {
		return nil, player.ErrNoData
	}
	if s.pos >= len(s.media.Packets) {
		return nil, player.ErrEndOfStream
	}
	src := s.media.Packets[s.pos]
	s.pos++

	pkt := *src
	return &pkt, nil
}

// SeekFile positions the source on the first packet at or after target
func (s *Source) SeekFile(target, lo, hi int64, flags player.SeekFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seeks = append(s.seeks, target)
	s.pos = len(s.media.Packets)
	for i, pkt := range s.media.Packets {
		if s.micros(pkt) >= target {
			s.pos = i
			break
		}
	}
	return nil
}

func (s *Source) micros(pkt *player.Packet) int64 {
	for _, st := range s.media.Streams {
		if st.Index == pkt.StreamIndex {
			return pkt.PTS * int64(st.TimeBase.Num) * 1000000 / int64(st.TimeBase.Den)
		}
	}
	return 0
}

// Seeks returns the seek targets requested so far, in microseconds
func (s *Source) Seeks() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.seeks...)
}

func (s *Source) SetPaused(paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
	return nil
}

func (s *Source) Duration() time.Duration {
	return s.media.Duration
}

func (s *Source) OpenAudioDecoder(index int) (player.AudioDecoder, error) {
	st, err := s.stream(index, player.MediaTypeAudio)
	if err != nil {
		return nil, err
	}
	return &AudioDecoder{stream: st}, nil
}

func (s *Source) OpenVideoDecoder(index int) (player.VideoDecoder, error) {
	st, err := s.stream(index, player.MediaTypeVideo)
	if err != nil {
		return nil, err
	}
	return &VideoDecoder{stream: st}, nil
}

func (s *Source) stream(index int, typ player.MediaType) (player.StreamInfo, error) {
	for _, st := range s.media.Streams {
		if st.Index == index && st.Type == typ {
			return st, nil
		}
	}
	return player.StreamInfo{}, errors.New("no such stream")
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether the source was closed
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// AudioDecoder passes s16 payloads through as frames
type AudioDecoder struct {
	stream  player.StreamInfo
	flushes atomic.Int32
}

func (d *AudioDecoder) Decode(pkt *player.Packet) ([]player.AudioFrame, error) {
	if bytes.Equal(pkt.Data, Corrupt) {
		return nil, errors.New("corrupt audio packet")
	}
	return []player.AudioFrame{{
		Format:     player.SampleFormatS16,
		Channels:   d.stream.Channels,
		SampleRate: d.stream.SampleRate,
		NbSamples:  len(pkt.Data) / (2 * d.stream.Channels),
		Data:       pkt.Data,
	}}, nil
}

func (d *AudioDecoder) Flush() {
	d.flushes.Add(1)
}

func (d *AudioDecoder) Close() {}

// VideoDecoder turns every packet into one frame without delay
type VideoDecoder struct {
	stream  player.StreamInfo
	flushes atomic.Int32
}

func (d *VideoDecoder) Decode(pkt *player.Packet) (*player.VideoFrame, bool, error) {
	if pkt.IsEmpty() {
		return nil, false, player.ErrDrained
	}
	if bytes.Equal(pkt.Data, Corrupt) {
		return nil, false, errors.New("corrupt video packet")
	}
	return &player.VideoFrame{
		Width:  d.stream.Width,
		Height: d.stream.Height,
		RGB:    make([]byte, d.stream.Width*d.stream.Height*3),
		PTS:    float64(pkt.PTS) * d.stream.TimeBase.Float64(),
	}, true, nil
}

func (d *VideoDecoder) Flush() {
	d.flushes.Add(1)
}

func (d *VideoDecoder) Close() {}

// AudioSink opens outputs that pull PCM in real time from a goroutine.
// Like a device mixer, one lock is held while any output pulls and while
// an output is paused or its volume changes.
type AudioSink struct {
	// Period is how often outputs pull; 10ms when zero
	Period time.Duration

	mixer sync.Mutex

	mu      sync.Mutex
	outputs []*AudioOutput
}

// Open implements player.AudioSink
func (k *AudioSink) Open(format player.AudioFormat, src player.PCMSource) (player.AudioOutput, error) {
	period := k.Period
	if period <= 0 {
		period = 10 * time.Millisecond
	}

	o := &AudioOutput{
		mixer:  &k.mixer,
		src:    src,
		chunk:  format.SampleRate * format.Channels * 2 * int(period/time.Millisecond) / 1000,
		period: period,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		volume: 1,
	}
	o.paused.Store(true)

	k.mu.Lock()
	k.outputs = append(k.outputs, o)
	k.mu.Unlock()

	go o.run()
	return o, nil
}

// Outputs returns every output opened so far
func (k *AudioSink) Outputs() []*AudioOutput {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]*AudioOutput(nil), k.outputs...)
}

// AudioOutput is a fake device stream
type AudioOutput struct {
	mixer  *sync.Mutex
	src    player.PCMSource
	chunk  int
	period time.Duration

	paused atomic.Bool
	pulled atomic.Int64

	mu     sync.Mutex
	volume float64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (o *AudioOutput) run() {
	defer close(o.done)

	ticker := time.NewTicker(o.period)
	defer ticker.Stop()

	buf := make([]byte, o.chunk)
	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
		}
		o.mixer.Lock()
		if !o.paused.Load() {
			o.src.Fill(buf)
			o.pulled.Add(int64(len(buf)))
		}
		o.mixer.Unlock()
	}
}

func (o *AudioOutput) SetPaused(paused bool) {
	o.mixer.Lock()
	defer o.mixer.Unlock()
	o.paused.Store(paused)
}

func (o *AudioOutput) SetVolume(volume float64) {
	o.mixer.Lock()
	defer o.mixer.Unlock()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = volume
}

// Volume returns the last volume set
func (o *AudioOutput) Volume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// Paused reports whether the output is paused
func (o *AudioOutput) Paused() bool {
	return o.paused.Load()
}

// Pulled returns the number of bytes pulled so far
func (o *AudioOutput) Pulled() int64 {
	return o.pulled.Load()
}

// Close stops pulling and waits for the pull goroutine to exit
func (o *AudioOutput) Close() {
	o.closeOnce.Do(func() { close(o.stop) })
	<-o.done
}

// Closed reports whether the output was closed
func (o *AudioOutput) Closed() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// Picture is a fake sink picture
type Picture struct {
	Width  int
	Height int
	PTS    float64
}

// VideoSink records what it is asked to present
type VideoSink struct {
	mu        sync.Mutex
	surface   player.Surface
	created   int
	destroyed int
	presented []float64
}

func (k *VideoSink) SetSurface(s player.Surface) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.surface = s
	return nil
}

func (k *VideoSink) CreatePicture(width, height int) (player.Picture, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.created++
	return &Picture{Width: width, Height: height}, nil
}

func (k *VideoSink) UpdatePicture(p player.Picture, frame *player.VideoFrame) error {
	p.(*Picture).PTS = frame.PTS
	return nil
}

func (k *VideoSink) Present(p player.Picture) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.presented = append(k.presented, p.(*Picture).PTS)
	return nil
}

func (k *VideoSink) DestroyPicture(p player.Picture) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.destroyed++
}

// Presented returns the timestamps of the presented pictures in order
func (k *VideoSink) Presented() []float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]float64(nil), k.presented...)
}

// Surface returns the current surface
func (k *VideoSink) Surface() player.Surface {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.surface
}

// Balanced reports whether every created picture was destroyed
func (k *VideoSink) Balanced() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.created == k.destroyed
}

// Notification is one recorded listener call
type Notification struct {
	Msg        player.Message
	Ext1       int
	Ext2       int
	FromThread bool
}

// Recorder is a listener that records notifications
type Recorder struct {
	mu    sync.Mutex
	notes []Notification
}

// Notify implements player.Listener
func (r *Recorder) Notify(msg player.Message, ext1, ext2 int, fromThread bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, Notification{Msg: msg, Ext1: ext1, Ext2: ext2, FromThread: fromThread})
}

// All returns every notification so far
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

// Count returns how many notifications of msg were received
func (r *Recorder) Count(msg player.Message) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, note := range r.notes {
		if note.Msg == msg {
			n++
		}
	}
	return n
}

// Has reports whether msg was received
func (r *Recorder) Has(msg player.Message) bool {
	return r.Count(msg) > 0
}
