// Package demo generates the guest modules of the demo scene.
package demo

import (
	"math"

	wb "github.com/ededitor/edhost/internal/wasmbuild"
	"github.com/tetratelabs/wazero/api"
)

var (
	i32   = api.ValueTypeI32
	f32   = api.ValueTypeF32
	none  []api.ValueType
	one   = []api.ValueType{i32}
	two   = []api.ValueType{i32, i32}
	three = []api.ValueType{i32, i32, i32}
	four  = []api.ValueType{i32, i32, i32, i32}
)

// Canvas geometry shared by the canvas module and the demo scene.
const (
	CanvasWidth  = 400
	CanvasHeight = 300
	ImageSide    = 16
)

// NotesText is the address of the notes module's text buffer.
const NotesText = 1024

// Modules returns every demo module keyed by file name.
func Modules() map[string][]byte {
	return map[string][]byte{
		"canvas.wasm":   Canvas(),
		"input.wasm":    Input(),
		"notes.wasm":    Notes(),
		"wave.wasm":     Wave(),
		"texture.wasm":  Texture(),
		"painter.wasm":  Painter(),
		"fizzbuzz.wasm": FizzBuzz(),
		"hello.wasm":    Hello(),
	}
}

// Canvas paints a 16x16 gradient that can be drawn over with the mouse.
// Painting fades while the button stays down.
//
//	import render { allocImage, drawImage, updateImage }
//	export init(), update(), mouseEvent(kind, x, y)
func Canvas() []byte {
	m := wb.New()
	alloc := m.Import("render", "allocImage", none, one)
	draw := m.Import("render", "drawImage", one, none)
	upload := m.Import("render", "updateImage", three, none)

	img := m.Global(i32, true, 0)
	paint := m.Global(i32, true, 0xff)
	down := m.Global(i32, true, 0)

	m.Memory(1, 1).ExportMemory("memory")
	m.Data(0, Gradient())

	push := cat(wb.GlobalGet(img), wb.I32Const(0), wb.I32Const(ImageSide*ImageSide), wb.Call(upload))

	initFn := m.Func(none, none, wb.Call(alloc), wb.GlobalSet(img), push)

	update := m.Func(none, none,
		wb.GlobalGet(paint), wb.I32Const(5), wb.I32LtS(), wb.If(),
		wb.I32Const(0), wb.GlobalSet(paint),
		wb.Else(),
		wb.GlobalGet(paint), wb.I32Const(5), wb.I32Sub(), wb.GlobalSet(paint),
		wb.End(),
		wb.GlobalGet(img), wb.Call(draw))

	const kind, x, y, idx = 0, 1, 2, 3
	mouse := m.FuncWithLocals(three, none, one,
		wb.LocalGet(kind), wb.I32Const(1), wb.I32Eq(), wb.If(),
		wb.I32Const(1), wb.GlobalSet(down), wb.I32Const(0xff), wb.GlobalSet(paint),
		wb.End(),
		wb.LocalGet(kind), wb.I32Const(2), wb.I32Eq(), wb.If(),
		wb.I32Const(0), wb.GlobalSet(down),
		wb.End(),
		wb.LocalGet(kind), wb.I32Eqz(), wb.GlobalGet(down), wb.I32And(), wb.If(),
		wb.LocalGet(x), wb.I32Const(ImageSide), wb.I32Mul(), wb.I32Const(CanvasWidth), wb.I32DivS(),
		wb.LocalGet(y), wb.I32Const(ImageSide), wb.I32Mul(), wb.I32Const(CanvasHeight), wb.I32DivS(),
		wb.I32Const(ImageSide), wb.I32Mul(), wb.I32Add(), wb.LocalSet(idx),
		wb.LocalGet(idx), wb.I32Const(0), wb.I32GeS(),
		wb.LocalGet(idx), wb.I32Const(ImageSide*ImageSide), wb.I32LtS(), wb.I32And(), wb.If(),
		wb.LocalGet(idx), wb.GlobalGet(paint), wb.I32Store8(0),
		push,
		wb.End(),
		wb.End())

	m.Export("init", initFn).Export("update", update).Export("mouseEvent", mouse)
	return m.Build()
}

// Gradient returns the canvas module's initial image.
func Gradient() []byte {
	pix := make([]byte, ImageSide*ImageSide)
	for x := range ImageSide {
		for y := range ImageSide {
			pix[x+y*ImageSide] = byte((x*x + y*y) / (2 * ImageSide))
		}
	}
	return pix
}

// Input turns input events into a polling API for other units. update
// latches the edges seen since the previous tick.
//
//	export update(), onMouseEvent(kind, x, y), keyEvent(code)
//	export mouseIsDown, mouseWentDown, mouseWentUp, mouseX, mouseY () -> i32
//	export keyWentDown(code) -> i32
func Input() []byte {
	m := wb.New()
	isDown := m.Global(i32, true, 0)
	wasDown := m.Global(i32, true, 0)
	wentDown := m.Global(i32, true, 0)
	wentUp := m.Global(i32, true, 0)
	posX := m.Global(i32, true, 0)
	posY := m.Global(i32, true, 0)
	pending := m.Global(i32, true, -1)
	key := m.Global(i32, true, -1)

	update := m.Func(none, none,
		wb.GlobalGet(isDown), wb.GlobalGet(wasDown), wb.I32Eqz(), wb.I32And(), wb.GlobalSet(wentDown),
		wb.GlobalGet(isDown), wb.I32Eqz(), wb.GlobalGet(wasDown), wb.I32And(), wb.GlobalSet(wentUp),
		wb.GlobalGet(isDown), wb.GlobalSet(wasDown),
		wb.GlobalGet(pending), wb.GlobalSet(key),
		wb.I32Const(-1), wb.GlobalSet(pending))

	mouse := m.Func(three, none,
		wb.LocalGet(1), wb.GlobalSet(posX),
		wb.LocalGet(2), wb.GlobalSet(posY),
		wb.LocalGet(0), wb.I32Const(1), wb.I32Eq(), wb.If(),
		wb.I32Const(1), wb.GlobalSet(isDown),
		wb.End(),
		wb.LocalGet(0), wb.I32Const(2), wb.I32Eq(), wb.If(),
		wb.I32Const(0), wb.GlobalSet(isDown),
		wb.End())

	keyEvent := m.Func(one, none, wb.LocalGet(0), wb.GlobalSet(pending))
	keyWentDown := m.Func(one, one, wb.GlobalGet(key), wb.LocalGet(0), wb.I32Eq())

	getter := func(g uint32) uint32 { return m.Func(none, one, wb.GlobalGet(g)) }

	m.Export("update", update).
		Export("onMouseEvent", mouse).
		Export("keyEvent", keyEvent).
		Export("mouseIsDown", getter(isDown)).
		Export("mouseWentDown", getter(wentDown)).
		Export("mouseWentUp", getter(wentUp)).
		Export("mouseX", getter(posX)).
		Export("mouseY", getter(posY)).
		Export("keyWentDown", keyWentDown)
	return m.Build()
}

// Notes appends every lower-case key that went down to a line of text and
// draws it each tick.
//
//	import render { drawText }
//	import input { keyWentDown }
//	export update()
func Notes() []byte {
	m := wb.New()
	drawText := m.Import("render", "drawText", one, none)
	keyWentDown := m.Import("input", "keyWentDown", one, one)
	length := m.Global(i32, true, 0)
	m.Memory(1, 1).ExportMemory("memory")

	const c = 0
	update := m.FuncWithLocals(none, none, one,
		wb.I32Const('a'), wb.LocalSet(c),
		wb.Block(), wb.Loop(),
		wb.LocalGet(c), wb.I32Const('z'), wb.I32GtS(), wb.BrIf(1),
		wb.LocalGet(c), wb.Call(keyWentDown),
		wb.GlobalGet(length), wb.I32Const(255), wb.I32LtS(), wb.I32And(), wb.If(),
		wb.GlobalGet(length), wb.LocalGet(c), wb.I32Store8(NotesText),
		wb.GlobalGet(length), wb.I32Const(1), wb.I32Add(), wb.GlobalSet(length),
		wb.GlobalGet(length), wb.I32Const(0), wb.I32Store8(NotesText),
		wb.End(),
		wb.LocalGet(c), wb.I32Const(1), wb.I32Add(), wb.LocalSet(c),
		wb.Br(0),
		wb.End(), wb.End(),
		wb.I32Const(NotesText), wb.Call(drawText))

	m.Export("update", update)
	return m.Build()
}

// Wave draws 100*sin(t*pi/60)+200 once per tick.
//
//	import render { draw, sin }
//	export update(), frame()
func Wave() []byte {
	m := wb.New()
	draw := m.Import("render", "draw", one, none)
	sin := m.Import("render", "sin", []api.ValueType{f32}, []api.ValueType{f32})
	t := m.Global(i32, true, 0)

	frame := m.Func(none, none,
		wb.GlobalGet(t), wb.I32Const(1), wb.I32Add(), wb.GlobalSet(t),
		wb.GlobalGet(t), wb.F32ConvertI32S(), wb.F32Const(math.Pi/60), wb.F32Mul(), wb.Call(sin),
		wb.F32Const(100), wb.F32Mul(), wb.F32Const(200), wb.F32Add(),
		wb.I32TruncF32S(), wb.Call(draw))

	m.Export("update", frame).Export("frame", frame)
	return m.Build()
}

// Texture is a pixel buffer created through a handle proxy. Pixels are
// 32-bit colors stored row-major at address 0.
//
//	import render { allocImage }
//	export init(w, h), getPixel(x, y) -> i32, setPixel(x, y, color), image() -> i32
func Texture() []byte {
	m := wb.New()
	alloc := m.Import("render", "allocImage", none, one)
	w := m.Global(i32, true, 0)
	h := m.Global(i32, true, 0)
	img := m.Global(i32, true, 0)
	m.Memory(1, 1).ExportMemory("memory")

	addr := cat(
		wb.LocalGet(0), wb.GlobalGet(w), wb.LocalGet(1), wb.I32Mul(), wb.I32Add(),
		wb.I32Const(4), wb.I32Mul())

	initFn := m.Func(two, none,
		wb.LocalGet(0), wb.GlobalSet(w),
		wb.LocalGet(1), wb.GlobalSet(h),
		wb.Call(alloc), wb.GlobalSet(img))
	get := m.Func(two, one, addr, wb.I32Load(0))
	set := m.Func(three, none, addr, wb.LocalGet(2), wb.I32Store(0))
	image := m.Func(none, one, wb.GlobalGet(img))

	m.Export("init", initFn).Export("getPixel", get).Export("setPixel", set).Export("image", image)
	return m.Build()
}

// TextureOps are the operations Painter reaches through its proxy.
var TextureOps = []struct {
	Name    string
	Args    int
	Returns bool
}{
	{"init", 2, false},
	{"getPixel", 2, true},
	{"setPixel", 3, false},
	{"image", 0, true},
}

// Painter creates a texture through the textures proxy, paints one pixel and
// logs it back.
//
//	import textures { construct, invoke_init, invoke_setPixel, invoke_getPixel }
//	import env { logInt }
//	export init()
func Painter() []byte {
	m := wb.New()
	construct := m.Import("textures", "construct", none, one)
	initTex := m.Import("textures", "invoke_init", three, none)
	setPixel := m.Import("textures", "invoke_setPixel", four, none)
	getPixel := m.Import("textures", "invoke_getPixel", three, one)
	logInt := m.Import("env", "logInt", one, none)
	tex := m.Global(i32, true, 0)

	initFn := m.Func(none, none,
		wb.Call(construct), wb.GlobalSet(tex),
		wb.GlobalGet(tex), wb.I32Const(ImageSide), wb.I32Const(ImageSide), wb.Call(initTex),
		wb.GlobalGet(tex), wb.I32Const(3), wb.I32Const(4), wb.I32Const(0x7f), wb.Call(setPixel),
		wb.GlobalGet(tex), wb.I32Const(3), wb.I32Const(4), wb.Call(getPixel), wb.Call(logInt))

	m.Export("init", initFn)
	return m.Build()
}

// FizzBuzz logs the fizzbuzz sequence up to n.
//
//	import env { log, logInt }
//	export fizzbuzz(n), init()
func FizzBuzz() []byte {
	m := wb.New()
	log := m.Import("env", "log", one, none)
	logInt := m.Import("env", "logInt", one, none)
	m.Memory(1, 1).ExportMemory("memory")

	const (
		fizzbuzz = 16
		fizz     = 32
		buzz     = 48
	)
	m.Data(fizzbuzz, []byte("FizzBuzz\x00"))
	m.Data(fizz, []byte("fizz\x00"))
	m.Data(buzz, []byte("buzz\x00"))

	divisible := func(d int32) []byte {
		return cat(wb.LocalGet(1), wb.I32Const(d), wb.I32RemS(), wb.I32Eqz())
	}

	const n, i = 0, 1
	run := m.FuncWithLocals(one, none, one,
		wb.I32Const(1), wb.LocalSet(i),
		wb.Block(), wb.Loop(),
		wb.LocalGet(i), wb.LocalGet(n), wb.I32GtS(), wb.BrIf(1),
		divisible(15), wb.If(),
		wb.I32Const(fizzbuzz), wb.Call(log),
		wb.Else(), divisible(3), wb.If(),
		wb.I32Const(fizz), wb.Call(log),
		wb.Else(), divisible(5), wb.If(),
		wb.I32Const(buzz), wb.Call(log),
		wb.Else(),
		wb.LocalGet(i), wb.Call(logInt),
		wb.End(), wb.End(), wb.End(),
		wb.LocalGet(i), wb.I32Const(1), wb.I32Add(), wb.LocalSet(i),
		wb.Br(0),
		wb.End(), wb.End())
	initFn := m.Func(none, none, wb.I32Const(15), wb.Call(run))

	m.Export("fizzbuzz", run).Export("init", initFn)
	return m.Build()
}

// Hello prints 1, 2 and its argument from prog. Its _start prints 3 and is
// never run by the host.
//
//	import env { print }
//	export prog(x), _start()
func Hello() []byte {
	m := wb.New()
	printFn := m.Import("env", "print", one, none)
	prog := m.Func(one, none,
		wb.I32Const(1), wb.Call(printFn),
		wb.I32Const(2), wb.Call(printFn),
		wb.LocalGet(0), wb.Call(printFn))
	start := m.Func(none, none, wb.I32Const(3), wb.Call(printFn))
	m.Export("prog", prog).Export("_start", start)
	return m.Build()
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
