package render

import (
	"context"
	"math"

	"github.com/ededitor/edhost"
	"github.com/ededitor/edhost/capability"
	"github.com/ededitor/edhost/errors"
	"github.com/ededitor/edhost/marshal"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"
)

// NamespaceName is the import namespace guests use for rendering.
const NamespaceName = "render"

const (
	defaultImageWidth  = 16
	defaultImageHeight = 16
)

var (
	allocSig  = capability.MustSignatureOf(nil, []wit.Type{wit.S32{}})
	updateSig = capability.MustSignatureOf([]wit.Type{wit.S32{}, wit.S32{}, wit.S32{}}, nil)
	unarySig  = capability.MustSignatureOf([]wit.Type{wit.S32{}}, nil)
	sinSig    = capability.MustSignatureOf([]wit.Type{wit.F32{}}, []wit.Type{wit.F32{}})
)

type options struct {
	width     int
	height    int
	textLimit uint32
}

// Option configures Namespace.
type Option func(*options)

// WithImageSize sets the dimensions updateImage assumes for uploaded pixels.
func WithImageSize(width, height int) Option {
	return func(o *options) {
		o.width = width
		o.height = height
	}
}

// WithTextLimit bounds the strings drawText reads.
func WithTextLimit(n uint32) Option {
	return func(o *options) {
		o.textLimit = n
	}
}

// Namespace returns the render capabilities of one unit. Pixel data and text
// are read from src, which is normally the importing unit itself.
//
//	allocImage() -> s32
//	updateImage(id, ptr, size s32)
//	drawImage(id s32)
//	draw(value s32)
//	sin(f32) -> f32
//	drawText(ptr s32)
//
// Failures panic inside the guest call and surface from its outermost call.
func Namespace(src edhost.MemoryReader, s *Surface, opts ...Option) *capability.Module {
	o := options{
		width:     defaultImageWidth,
		height:    defaultImageHeight,
		textLimit: marshal.MaxString,
	}
	for _, opt := range opts {
		opt(&o)
	}

	n := &namespace{src: src, surface: s, opts: o}
	return capability.NewModule().
		Define("allocImage", capability.Func(allocSig, n.allocImage)).
		Define("updateImage", capability.Func(updateSig, n.updateImage)).
		Define("drawImage", capability.Func(unarySig, n.drawImage)).
		Define("draw", capability.Func(unarySig, n.draw)).
		Define("sin", capability.Func(sinSig, sin)).
		Define("drawText", capability.Func(unarySig, n.drawText))
}

type namespace struct {
	src     edhost.MemoryReader
	surface *Surface
	opts    options
}

func (n *namespace) allocImage(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = api.EncodeI32(n.surface.Alloc())
}

// updateImage uploads size bytes at ptr as a width x height image. Short
// uploads are zero-filled, extra bytes are ignored.
func (n *namespace) updateImage(_ context.Context, _ api.Module, stack []uint64) {
	id := api.DecodeI32(stack[0])
	ptr := api.DecodeI32(stack[1])
	size := api.DecodeI32(stack[2])
	if ptr < 0 || size < 0 {
		panic(errors.New(errors.PhaseMemory, errors.KindInvalidInput).
			Import(NamespaceName, "updateImage").
			Detail("negative range ptr=%d size=%d", ptr, size).
			Build())
	}

	data, err := n.src.ReadMemory(uint32(ptr), uint32(size))
	if err != nil {
		panic(err)
	}
	pix := make([]byte, n.opts.width*n.opts.height)
	copy(pix, data)

	if err := n.surface.Upload(id, Texture{Pix: pix, Width: n.opts.width, Height: n.opts.height}); err != nil {
		panic(err)
	}
	Logger().Debug("texture updated", zap.Int32("id", id), zap.Int32("bytes", size))
}

func (n *namespace) drawImage(_ context.Context, _ api.Module, stack []uint64) {
	if err := n.surface.DrawImage(api.DecodeI32(stack[0])); err != nil {
		panic(err)
	}
}

func (n *namespace) draw(_ context.Context, _ api.Module, stack []uint64) {
	n.surface.DrawValue(api.DecodeI32(stack[0]))
}

func (n *namespace) drawText(_ context.Context, _ api.Module, stack []uint64) {
	text, err := marshal.ReadString(n.src, api.DecodeU32(stack[0]), n.opts.textLimit)
	if err != nil {
		panic(err)
	}
	n.surface.DrawText(text)
}

func sin(_ context.Context, _ api.Module, stack []uint64) {
	x := api.DecodeF32(stack[0])
	stack[0] = api.EncodeF32(float32(math.Sin(float64(x))))
}
