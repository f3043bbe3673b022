// Package render is the presentation boundary. Guests upload single-channel
// textures and record draw commands into a Surface; Swap hands the finished
// frame to whatever Presenter is attached.
package render

import (
	"maps"
	"slices"
	"sync"

	"github.com/ededitor/edhost/errors"
	"go.uber.org/zap"
)

// Texture is a single-channel image stored row-major.
type Texture struct {
	Pix    []byte
	Width  int
	Height int
}

// At returns the intensity at (x, y), or 0 outside the image.
func (t Texture) At(x, y int) byte {
	if x < 0 || y < 0 || x >= t.Width || y >= t.Height {
		return 0
	}
	return t.Pix[y*t.Width+x]
}

func (t Texture) clone() Texture {
	t.Pix = slices.Clone(t.Pix)
	return t
}

// CommandKind identifies a draw command.
type CommandKind int

const (
	DrawImage CommandKind = iota
	DrawValue
	DrawText
)

func (k CommandKind) String() string {
	switch k {
	case DrawImage:
		return "image"
	case DrawValue:
		return "value"
	case DrawText:
		return "text"
	}
	return "unknown"
}

// Command is one entry of a frame's draw list.
type Command struct {
	Text    string
	Kind    CommandKind
	Texture int32
	Value   int32
}

// Frame is a completed draw list. Textures holds a snapshot of every texture
// the frame draws, so a frame stays valid after later uploads.
type Frame struct {
	Textures map[int32]Texture
	Commands []Command
	Seq      uint64
}

// Images returns the textures drawn by the frame in draw order.
func (f Frame) Images() []Texture {
	var out []Texture
	for _, c := range f.Commands {
		if c.Kind == DrawImage {
			out = append(out, f.Textures[c.Texture])
		}
	}
	return out
}

// Presenter receives frames as they are swapped.
type Presenter interface {
	Present(Frame) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(Frame) error

func (f PresenterFunc) Present(fr Frame) error { return f(fr) }

// Surface stores textures and the draw list of the frame being built.
// Surface is safe for concurrent use.
type Surface struct {
	textures map[int32]Texture
	commands []Command
	next     int32
	frames   uint64
	mu       sync.Mutex
}

// NewSurface creates an empty surface. Texture ids start at 1.
func NewSurface() *Surface {
	return &Surface{textures: make(map[int32]Texture), next: 1}
}

// Alloc reserves a new texture id with an empty image.
func (s *Surface) Alloc() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.textures[id] = Texture{}
	Logger().Debug("texture allocated", zap.Int32("id", id))
	return id
}

// Upload replaces the image of texture id.
func (s *Surface) Upload(id int32, t Texture) error {
	if len(t.Pix) != t.Width*t.Height {
		return errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Value(id).
			Detail("texture %d: %d bytes for a %dx%d image", id, len(t.Pix), t.Width, t.Height).
			Build()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.textures[id]; !ok {
		return s.unknown(id)
	}
	s.textures[id] = t.clone()
	return nil
}

// Texture returns a copy of texture id.
func (s *Surface) Texture(id int32) (Texture, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.textures[id]
	return t.clone(), ok
}

// Len returns the number of allocated textures.
func (s *Surface) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.textures)
}

// DrawImage appends texture id to the current frame.
func (s *Surface) DrawImage(id int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.textures[id]; !ok {
		return s.unknown(id)
	}
	s.commands = append(s.commands, Command{Kind: DrawImage, Texture: id})
	return nil
}

// DrawValue appends a numeric value to the current frame.
func (s *Surface) DrawValue(v int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, Command{Kind: DrawValue, Value: v})
}

// DrawText appends a line of text to the current frame.
func (s *Surface) DrawText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, Command{Kind: DrawText, Text: text})
}

// Swap completes the current frame and starts an empty one.
func (s *Surface) Swap() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	f := Frame{
		Seq:      s.frames,
		Commands: s.commands,
		Textures: make(map[int32]Texture),
	}
	for _, c := range f.Commands {
		if c.Kind == DrawImage {
			f.Textures[c.Texture] = s.textures[c.Texture].clone()
		}
	}
	s.commands = nil
	return f
}

// Frames returns the number of completed frames.
func (s *Surface) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// IDs returns the allocated texture ids in ascending order.
func (s *Surface) IDs() []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.textures))
}

func (s *Surface) unknown(id int32) error {
	return errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
		Value(id).
		Detail("texture %d was not allocated", id).
		Build()
}
