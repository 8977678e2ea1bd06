// Package ffmpeg implements the player's demuxer and decoders with FFmpeg
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
	"golang.org/x/sys/unix"

	"github.com/njyeung/avplayer/player"
)

// DefaultUserAgent is sent to network sources
const DefaultUserAgent = "avplayer/1.0"

// Demuxer opens media with libavformat
type Demuxer struct {
	// UserAgent is sent to http based sources
	UserAgent string

	// Width and Height bound the size decoded pictures are scaled to. Zero
	// keeps the source size.
	Width  int
	Height int

	Logger *slog.Logger
}

// SetLogLevel routes FFmpeg's own logging: quiet unless debug is set
func SetLogLevel(debug bool) {
	if debug {
		astiav.SetLogLevel(astiav.LogLevelError)
		return
	}
	astiav.SetLogLevel(astiav.LogLevelQuiet)
}

// Open opens and probes a data source
func (d *Demuxer) Open(ctx context.Context, src player.DataSource) (player.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Source{
		log:    log.With("component", "demuxer"),
		width:  d.Width,
		height: d.Height,
		pipeFD: -1,
	}

	// Allocate format context
	s.formatCtx = astiav.AllocFormatContext()
	if s.formatCtx == nil {
		return nil, fmt.Errorf("failed to allocate format context")
	}

	opts := astiav.NewDictionary()
	defer opts.Free()

	flags := astiav.NewDictionaryFlags()
	ua := d.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	opts.Set("user-agent", ua, flags)
	opts.Set("icy", "1", flags)
	if src.Headers != "" {
		headers := src.Headers
		if !strings.HasSuffix(headers, "\r\n") {
			headers += "\r\n"
		}
		opts.Set("headers", headers, flags)
	}
	if src.Offset > 0 {
		opts.Set("skip_initial_bytes", strconv.FormatInt(src.Offset, 10), flags)
	}
	if fd, ok := strings.CutPrefix(src.URL, "pipe:"); ok {
		if n, err := strconv.Atoi(fd); err == nil {
			s.pipeFD = n
		}
	}

	// Open input
	if err := s.formatCtx.OpenInput(src.URL, nil, opts); err != nil {
		s.formatCtx.Free()
		s.formatCtx = nil
		s.closePipe()
		return nil, fmt.Errorf("failed to open input: %w", err)
	}

	// an open cancelled meanwhile is not worth probing
	if err := ctx.Err(); err != nil {
		s.Close()
		return nil, err
	}

	// Find stream info
	if err := s.formatCtx.FindStreamInfo(nil); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to find stream info: %w", err)
	}

	for _, stream := range s.formatCtx.Streams() {
		s.streams = append(s.streams, streamInfo(stream))
	}
	return s, nil
}

// streamInfo describes an astiav stream in player terms
func streamInfo(stream *astiav.Stream) player.StreamInfo {
	params := stream.CodecParameters()
	tb := stream.TimeBase()

	info := player.StreamInfo{
		Index:    stream.Index(),
		TimeBase: player.Rational{Num: tb.Num(), Den: tb.Den()},
	}
	if d := stream.Duration(); d > 0 {
		info.Duration = time.Duration(float64(d) * info.TimeBase.Float64() * float64(time.Second))
	}

	switch params.MediaType() {
	case astiav.MediaTypeVideo:
		fr := stream.AvgFrameRate()
		info.Type = player.MediaTypeVideo
		info.Width = params.Width()
		info.Height = params.Height()
		info.FrameRate = player.Rational{Num: fr.Num(), Den: fr.Den()}
	case astiav.MediaTypeAudio:
		info.Type = player.MediaTypeAudio
		info.SampleRate = params.SampleRate()
		info.Channels = outputChannels(params.ChannelLayout().Channels())
	}
	return info
}

// Source is an open libavformat input
type Source struct {
	log    *slog.Logger
	width  int
	height int
	pipeFD int

	mu        sync.Mutex
	formatCtx *astiav.FormatContext
	streams   []player.StreamInfo
	paused    bool
	closed    bool
}

// Streams returns the probed streams
func (s *Source) Streams() []player.StreamInfo {
	return s.streams
}

// Duration returns the container duration
func (s *Source) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0
	}
	d := s.formatCtx.Duration()
	if d <= 0 {
		return 0
	}
	return time.Duration(d) * time.Microsecond
}

// ReadPacket reads the next packet, copying its payload out of FFmpeg
func (s *Source) ReadPacket() (*player.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, player.ErrEndOfStream
	}

	pkt := astiav.AllocPacket()
	if pkt == nil {
		return nil, fmt.Errorf("failed to allocate packet")
	}
	defer pkt.Free()

	if err := s.formatCtx.ReadFrame(pkt); err != nil {
		return nil, mapError(err)
	}

	data := make([]byte, len(pkt.Data()))
	copy(data, pkt.Data())

	// AV_NOPTS_VALUE and player.NoPTS are both the minimum int64
	return &player.Packet{
		Data:        data,
		StreamIndex: pkt.StreamIndex(),
		PTS:         pkt.Pts(),
		DTS:         pkt.Dts(),
		Duration:    pkt.Duration(),
	}, nil
}

// SeekFile seeks the whole file to target microseconds within [min, max]
func (s *Source) SeekFile(target, min, max int64, flags player.SeekFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return player.ErrStopped
	}

	var fs []astiav.SeekFlag
	if flags&player.SeekFlagBackward != 0 {
		fs = append(fs, astiav.SeekFlagBackward)
	}
	if flags&player.SeekFlagByte != 0 {
		fs = append(fs, astiav.SeekFlagByte)
	}
	if flags&player.SeekFlagAny != 0 {
		fs = append(fs, astiav.SeekFlagAny)
	}

	if err := s.formatCtx.SeekFile(-1, min, target, max, astiav.NewSeekFlags(fs...)); err != nil {
		return fmt.Errorf("failed to seek to %d: %w", target, err)
	}
	return nil
}

// SetPaused records the pause state. Local inputs need nothing more; network
// inputs simply stop being read while the session is paused.
func (s *Source) SetPaused(paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paused = paused
	return nil
}

// OpenAudioDecoder opens a decoder converting to interleaved s16
func (s *Source) OpenAudioDecoder(index int) (player.AudioDecoder, error) {
	params, err := s.codecParameters(index)
	if err != nil {
		return nil, err
	}
	return newAudioDecoder(params)
}

// OpenVideoDecoder opens a decoder converting to RGB24 within the size bounds
func (s *Source) OpenVideoDecoder(index int) (player.VideoDecoder, error) {
	params, err := s.codecParameters(index)
	if err != nil {
		return nil, err
	}
	st := s.streams[index]
	w, h := fitSize(params.Width(), params.Height(), s.width, s.height)
	return newVideoDecoder(params, astiav.NewRational(st.TimeBase.Num, st.TimeBase.Den), w, h)
}

func (s *Source) codecParameters(index int) (*astiav.CodecParameters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, player.ErrStopped
	}
	streams := s.formatCtx.Streams()
	if index < 0 || index >= len(streams) {
		return nil, fmt.Errorf("no stream %d", index)
	}
	return streams[index].CodecParameters(), nil
}

// Close releases all resources
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.formatCtx != nil {
		s.formatCtx.CloseInput()
		s.formatCtx.Free()
		s.formatCtx = nil
	}
	return s.closePipe()
}

// closePipe closes the duplicated descriptor of a pipe: source
func (s *Source) closePipe() error {
	if s.pipeFD < 0 {
		return nil
	}
	fd := s.pipeFD
	s.pipeFD = -1
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("failed to close descriptor %d: %w", fd, err)
	}
	return nil
}

// mapError translates FFmpeg errors into player errors
func mapError(err error) error {
	switch {
	case errors.Is(err, astiav.ErrEof):
		return player.ErrEndOfStream
	case errors.Is(err, astiav.ErrEagain):
		return player.ErrNoData
	}
	return err
}

// fitSize computes aspect-correct dimensions to fit in the target area.
// Sizes are kept even for the scaler.
func fitSize(srcW, srcH, maxW, maxH int) (int, int) {
	if maxW == 0 || maxH == 0 || srcW == 0 || srcH == 0 {
		return srcW, srcH
	}

	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(maxW) / float64(maxH)

	w, h := maxW, maxH
	if srcAspect > dstAspect {
		h = int(float64(maxW) / srcAspect)
	} else {
		w = int(float64(maxH) * srcAspect)
	}
	return max(w&^1, 2), max(h&^1, 2)
}
