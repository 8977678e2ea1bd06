// Package sink implements the player's audio and video outputs
package sink

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"github.com/njyeung/avplayer/player"
)

// VideoImageID is the Kitty image id pictures are transmitted under
const VideoImageID = 1

// picture is a Kitty sink picture buffer
type picture struct {
	rgb    []byte
	width  int
	height int
}

// KittyRenderer presents pictures using Kitty's graphics protocol. The
// surface it draws on is any io.Writer connected to the terminal.
type KittyRenderer struct {
	mu sync.Mutex

	out     io.Writer
	imageID int
	lastW   int
	lastH   int
	useShm  bool
	shmSeq  int

	// Cell position for placement (1-indexed row/col)
	cellRow int
	cellCol int

	// Terminal dimensions in cells and pixels
	termCols     int
	termRows     int
	termWidthPx  int
	termHeightPx int
}

// NewKittyRenderer creates a new Kitty graphics renderer
func NewKittyRenderer(out io.Writer) *KittyRenderer {
	if out == nil {
		out = io.Discard
	}
	return &KittyRenderer{
		out:     out,
		imageID: VideoImageID,
	}
}

// SetSurface changes the writer pictures are drawn to. A nil surface
// discards output.
func (r *KittyRenderer) SetSurface(s player.Surface) error {
	var w io.Writer = io.Discard
	if s != nil {
		var ok bool
		if w, ok = s.(io.Writer); !ok {
			return fmt.Errorf("surface %T is not a writer", s)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = w
	return nil
}

// SetUseShm switches picture transmission to shared memory
func (r *KittyRenderer) SetUseShm(use bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.useShm = use
}

// SetTerminalSize sets the terminal dimensions (cells and pixels)
func (r *KittyRenderer) SetTerminalSize(cols, rows, widthPx, heightPx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.termCols = cols
	r.termRows = rows
	r.termWidthPx = widthPx
	r.termHeightPx = heightPx
}

// SetCellPosition sets the cell position for video placement (1-indexed)
func (r *KittyRenderer) SetCellPosition(row, col int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cellRow = row
	r.cellCol = col
}

// centerVideo sets the cell position to center a picture of the given
// pixel dimensions. Callers hold r.mu.
func (r *KittyRenderer) centerVideo(videoWidth, videoHeight int) {
	if r.termCols <= 0 || r.termRows <= 0 || r.termWidthPx <= 0 || r.termHeightPx <= 0 {
		return
	}

	// Calculate cell size in pixels
	cellW := max(r.termWidthPx/r.termCols, 1)
	cellH := max(r.termHeightPx/r.termRows, 1)

	// Calculate video size in cells
	videoCols := (videoWidth + cellW - 1) / cellW
	videoRows := (videoHeight + cellH - 1) / cellH

	// Center position (1-indexed for ANSI escape)
	r.cellCol = max((r.termCols-videoCols)/2+1, 1)
	r.cellRow = max((r.termRows-videoRows)/2+1, 1)
}

// CreatePicture allocates an RGB24 picture buffer
func (r *KittyRenderer) CreatePicture(width, height int) (player.Picture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid picture size %dx%d", width, height)
	}
	return &picture{
		rgb:    make([]byte, width*height*3),
		width:  width,
		height: height,
	}, nil
}

// UpdatePicture copies a decoded frame into a picture buffer
func (r *KittyRenderer) UpdatePicture(p player.Picture, frame *player.VideoFrame) error {
	pic, ok := p.(*picture)
	if !ok {
		return fmt.Errorf("foreign picture %T", p)
	}
	if frame.Width != pic.width || frame.Height != pic.height {
		return fmt.Errorf("frame %dx%d does not fit picture %dx%d", frame.Width, frame.Height, pic.width, pic.height)
	}
	copy(pic.rgb, frame.RGB)
	return nil
}

// Present draws a picture centered in the terminal
func (r *KittyRenderer) Present(p player.Picture) error {
	pic, ok := p.(*picture)
	if !ok {
		return fmt.Errorf("foreign picture %T", p)
	}
	return r.RenderFrame(pic.rgb, pic.width, pic.height)
}

// DestroyPicture releases a picture buffer
func (r *KittyRenderer) DestroyPicture(p player.Picture) {
	if pic, ok := p.(*picture); ok {
		pic.rgb = nil
	}
}

// RenderFrame renders an RGB frame using Kitty graphics protocol
func (r *KittyRenderer) RenderFrame(rgb []byte, width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if width != r.lastW || height != r.lastH {
		r.centerVideo(width, height)
	}

	// Buffer the entire frame to write atomically
	var buf bytes.Buffer

	// Begin synchronized update
	buf.WriteString("\x1b[?2026h")

	// Save cursor position
	buf.WriteString("\x1b7")

	// Delete previous image first
	if r.lastW > 0 {
		fmt.Fprintf(&buf, "\x1b_Ga=d,d=i,i=%d,q=2\x1b\\", r.imageID)
	}

	// Move cursor to target cell position for image placement
	if r.cellRow > 0 && r.cellCol > 0 {
		fmt.Fprintf(&buf, "\x1b[%d;%dH", r.cellRow, r.cellCol)
	} else {
		// Default to top-left
		buf.WriteString("\x1b[H")
	}

	if !r.useShm || !r.writeShm(&buf, rgb, width, height) {
		r.writeDirect(&buf, rgb, width, height)
	}

	r.lastW = width
	r.lastH = height

	// Restore cursor position
	buf.WriteString("\x1b8")

	// End synchronized update
	buf.WriteString("\x1b[?2026l")

	// Write entire frame atomically
	_, err := r.out.Write(buf.Bytes())
	return err
}

// writeDirect transmits the pixels inline as base64 chunks.
//
// Kitty graphics protocol:
// ESC_G<key>=<value>,...;<base64 data>ESC\
//
// Keys:
//
//	a=T - action: transmit and display
//	f=24 - format: 24-bit RGB
//	s=W - width in pixels
//	v=H - height in pixels
//	i=ID - image ID for updates
//	q=2 - quiet mode (suppress responses)
func (r *KittyRenderer) writeDirect(buf *bytes.Buffer, rgb []byte, width, height int) {
	encoded := base64.StdEncoding.EncodeToString(rgb)

	// Split data into chunks (max 4096 bytes per chunk)
	const chunkSize = 4096
	first := true

	for len(encoded) > 0 {
		chunk := encoded
		more := 0

		if len(chunk) > chunkSize {
			chunk = encoded[:chunkSize]
			encoded = encoded[chunkSize:]
			more = 1
		} else {
			encoded = ""
		}

		if first {
			// m=1 means more chunks follow, m=0 means last chunk
			fmt.Fprintf(buf, "\x1b_Ga=T,f=24,s=%d,v=%d,i=%d,q=2,m=%d;%s\x1b\\",
				width, height, r.imageID, more, chunk)
			first = false
		} else {
			fmt.Fprintf(buf, "\x1b_Gm=%d;%s\x1b\\", more, chunk)
		}
	}
}

// Clear deletes the picture from the terminal
func (r *KittyRenderer) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastW == 0 {
		return nil
	}
	r.lastW, r.lastH = 0, 0
	_, err := fmt.Fprintf(r.out, "\x1b_Ga=d,d=i,i=%d,q=2\x1b\\", r.imageID)
	return err
}

var _ player.VideoSink = (*KittyRenderer)(nil)
