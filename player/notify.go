package player

// Message is the kind of a listener notification
type Message int

const (
	MediaNop              Message = 0
	MediaPrepared         Message = 1
	MediaPlaybackComplete Message = 2
	MediaBufferingUpdate  Message = 3
	MediaSeekComplete     Message = 4
	MediaError            Message = 100
	MediaInfo             Message = 200
)

// Extras carried in ext1 of a MediaInfo notification
const (
	// MediaInfoStartedAsNext is sent by a chained session when the previous
	// session hands playback over to it
	MediaInfoStartedAsNext = 2

	// MediaInfoNotSeekable is sent instead of MediaSeekComplete when the
	// source refuses a seek
	MediaInfoNotSeekable = 801
)

// Extras carried in ext1/ext2 of a MediaError notification
const (
	MediaErrorUnknown     = 1
	MediaErrorIO          = -1004
	MediaErrorUnsupported = -1010
)

func (m Message) String() string {
	switch m {
	case MediaNop:
		return "nop"
	case MediaPrepared:
		return "prepared"
	case MediaPlaybackComplete:
		return "playback complete"
	case MediaBufferingUpdate:
		return "buffering update"
	case MediaSeekComplete:
		return "seek complete"
	case MediaError:
		return "error"
	case MediaInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Listener receives session notifications. fromThread is true when the
// notification is delivered from one of the session's goroutines rather than
// from the caller of a lifecycle method.
type Listener interface {
	Notify(msg Message, ext1, ext2 int, fromThread bool)
}

// ListenerFunc adapts a function to a Listener
type ListenerFunc func(msg Message, ext1, ext2 int, fromThread bool)

func (f ListenerFunc) Notify(msg Message, ext1, ext2 int, fromThread bool) {
	f(msg, ext1, ext2, fromThread)
}

// notify delivers a notification to the current listener, if any
func (s *Session) notify(msg Message, ext1, ext2 int, fromThread bool) {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()

	s.log.Debug("notify", "msg", msg, "ext1", ext1, "ext2", ext2)
	if l != nil {
		l.Notify(msg, ext1, ext2, fromThread)
	}
}
