package render

import (
	"context"
	stderrors "errors"
	"math"
	"sync"
	"testing"

	"github.com/ededitor/edhost/capability"
	"github.com/ededitor/edhost/errors"
	wb "github.com/ededitor/edhost/internal/wasmbuild"
	"github.com/ededitor/edhost/unit"
	"github.com/tetratelabs/wazero/api"
)

var (
	i32  = api.ValueTypeI32
	f32  = api.ValueTypeF32
	none []api.ValueType
	one  = []api.ValueType{i32}
)

const textAt = 512

// canvasWasm draws a 16x16 gradient the way a canvas guest does.
func canvasWasm() []byte {
	m := wb.New()
	alloc := m.Import("render", "allocImage", none, one)
	update := m.Import("render", "updateImage", []api.ValueType{i32, i32, i32}, none)
	drawImage := m.Import("render", "drawImage", one, none)
	draw := m.Import("render", "draw", one, none)
	sinFn := m.Import("render", "sin", []api.ValueType{f32}, []api.ValueType{f32})
	drawText := m.Import("render", "drawText", one, none)

	img := m.Global(i32, true, 0)
	m.Memory(1, 1).ExportMemory("memory")

	pix := make([]byte, 256)
	for i := range pix {
		pix[i] = byte(i)
	}
	m.Data(0, pix)
	m.Data(textAt, []byte("score\x00garbage"))

	initFn := m.Func(none, none,
		wb.Call(alloc), wb.GlobalSet(img),
		wb.GlobalGet(img), wb.I32Const(0), wb.I32Const(256), wb.Call(update))
	frame := m.Func(none, none,
		wb.GlobalGet(img), wb.Call(drawImage),
		wb.I32Const(42), wb.Call(draw),
		wb.I32Const(textAt), wb.Call(drawText))
	sinOf := m.Func([]api.ValueType{f32}, []api.ValueType{f32}, wb.LocalGet(0), wb.Call(sinFn))
	badDraw := m.Func(none, none, wb.I32Const(99), wb.Call(drawImage))
	badUpload := m.Func(none, none,
		wb.GlobalGet(img), wb.I32Const(65530), wb.I32Const(256), wb.Call(update))

	m.Export("init", initFn).Export("update", frame).Export("sinOf", sinOf).
		Export("badDraw", badDraw).Export("badUpload", badUpload)
	return m.Build()
}

func newCanvas(t *testing.T, opts ...Option) (*unit.Unit, *Surface) {
	t.Helper()
	ctx := context.Background()
	c, err := unit.NewContext(ctx, &unit.Config{Name: t.Name()})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() { c.Close(ctx) })

	s := NewSurface()
	u := unit.New(c, "canvas")
	reg := capability.NewRegistry()
	reg.Add(NamespaceName, Namespace(u, s, opts...))
	if err := u.Initialize(ctx, unit.Bytes("canvas", canvasWasm()), reg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return u, s
}

func call(t *testing.T, u *unit.Unit, name string, args ...uint64) ([]uint64, error) {
	t.Helper()
	fn, err := u.Export(name)
	if err != nil {
		t.Fatalf("Export(%s): %v", name, err)
	}
	return fn.Call(context.Background(), args...)
}

func TestSurfaceAllocUpload(t *testing.T) {
	s := NewSurface()
	a, b := s.Alloc(), s.Alloc()
	if a != 1 || b != 2 {
		t.Fatalf("Alloc ids = %d, %d, want 1, 2", a, b)
	}

	pix := []byte{1, 2, 3, 4}
	if err := s.Upload(a, Texture{Pix: pix, Width: 2, Height: 2}); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	pix[0] = 99

	tex, ok := s.Texture(a)
	if !ok {
		t.Fatal("texture missing")
	}
	if tex.At(0, 0) != 1 || tex.At(1, 1) != 4 || tex.At(2, 0) != 0 {
		t.Errorf("unexpected pixels %v", tex.Pix)
	}

	if err := s.Upload(7, Texture{}); err == nil {
		t.Error("expected error for unallocated texture")
	}
	if err := s.Upload(a, Texture{Pix: []byte{1}, Width: 2, Height: 2}); err == nil {
		t.Error("expected error for short pixel buffer")
	}
	if got := s.IDs(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("IDs = %v", got)
	}
}

func TestSurfaceSwap(t *testing.T) {
	s := NewSurface()
	id := s.Alloc()
	if err := s.Upload(id, Texture{Pix: []byte{5}, Width: 1, Height: 1}); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := s.DrawImage(id); err != nil {
		t.Fatalf("DrawImage: %v", err)
	}
	s.DrawValue(3)
	s.DrawText("hi")

	f := s.Swap()
	if f.Seq != 1 || len(f.Commands) != 3 {
		t.Fatalf("frame = %+v", f)
	}
	if f.Commands[1].Kind != DrawValue || f.Commands[1].Value != 3 {
		t.Errorf("command 1 = %+v", f.Commands[1])
	}
	if f.Commands[2].Text != "hi" {
		t.Errorf("command 2 = %+v", f.Commands[2])
	}

	// Later uploads do not change a swapped frame.
	if err := s.Upload(id, Texture{Pix: []byte{9}, Width: 1, Height: 1}); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if imgs := f.Images(); len(imgs) != 1 || imgs[0].Pix[0] != 5 {
		t.Errorf("frame images = %+v", imgs)
	}

	next := s.Swap()
	if next.Seq != 2 || len(next.Commands) != 0 {
		t.Errorf("second frame = %+v", next)
	}
	if s.Frames() != 2 {
		t.Errorf("Frames = %d", s.Frames())
	}
	if err := s.DrawImage(42); err == nil {
		t.Error("expected error drawing unallocated texture")
	}
}

func TestSurfaceConcurrent(t *testing.T) {
	s := NewSurface()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				s.DrawImage(s.Alloc())
				s.DrawValue(1)
			}
		}()
	}
	wg.Wait()
	if s.Len() != 400 {
		t.Errorf("Len = %d, want 400", s.Len())
	}
	if f := s.Swap(); len(f.Commands) != 800 {
		t.Errorf("commands = %d, want 800", len(f.Commands))
	}
}

func TestNamespaceDraws(t *testing.T) {
	u, s := newCanvas(t)

	if _, err := call(t, u, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := call(t, u, "update"); err != nil {
		t.Fatalf("update: %v", err)
	}

	f := s.Swap()
	if len(f.Commands) != 3 {
		t.Fatalf("commands = %+v", f.Commands)
	}
	if f.Commands[0].Kind != DrawImage || f.Commands[0].Texture != 1 {
		t.Errorf("command 0 = %+v", f.Commands[0])
	}
	if f.Commands[1].Value != 42 {
		t.Errorf("command 1 = %+v", f.Commands[1])
	}
	if f.Commands[2].Text != "score" {
		t.Errorf("command 2 = %+v", f.Commands[2])
	}

	tex := f.Textures[1]
	if tex.Width != 16 || tex.Height != 16 {
		t.Fatalf("texture size %dx%d", tex.Width, tex.Height)
	}
	if tex.At(3, 2) != 35 {
		t.Errorf("pixel (3,2) = %d, want 35", tex.At(3, 2))
	}
}

func TestNamespaceImageSize(t *testing.T) {
	u, s := newCanvas(t, WithImageSize(8, 4))
	if _, err := call(t, u, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	tex, _ := s.Texture(1)
	if tex.Width != 8 || tex.Height != 4 || len(tex.Pix) != 32 {
		t.Errorf("texture = %dx%d (%d bytes)", tex.Width, tex.Height, len(tex.Pix))
	}
}

func TestNamespaceSin(t *testing.T) {
	u, _ := newCanvas(t)
	res, err := call(t, u, "sinOf", api.EncodeF32(math.Pi/2))
	if err != nil {
		t.Fatalf("sinOf: %v", err)
	}
	if got := api.DecodeF32(res[0]); math.Abs(float64(got)-1) > 1e-6 {
		t.Errorf("sin(pi/2) = %v", got)
	}
}

func TestNamespaceFailures(t *testing.T) {
	u, _ := newCanvas(t)
	if _, err := call(t, u, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}

	_, err := call(t, u, "badUpload")
	if !stderrors.Is(err, errors.ErrOutOfBounds) {
		t.Errorf("badUpload: expected out_of_bounds, got %v", err)
	}

	_, err = call(t, u, "badDraw")
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindInvalidInput {
		t.Errorf("badDraw: expected invalid_input, got %v", err)
	}
}
