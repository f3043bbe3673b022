package scene

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ededitor/edhost/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sceneYAML = `
name: sample
main: canvas
tick: 30
units:
  - name: input
    source: input.wasm
  - name: canvas
    source: modules/canvas.wasm
    imports:
      render: host:render
      input: unit:input
  - name: textures
    handles:
      source: /abs/texture.wasm
      imports:
        render: host:render
      ops:
        - name: getPixel
          args: 2
          returns: true
  - name: painter
    source: painter.wasm
    imports:
      textures: handles:textures
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "scene.yaml", sceneYAML)
	dir := filepath.Dir(path)

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sample", s.Name)
	assert.Equal(t, 30, s.Tick)
	assert.Equal(t, 0, s.Ticks)
	assert.Equal(t, DefaultLogLevel, s.Log.Level)
	assert.Equal(t, Size{Width: DefaultScreenWidth, Height: DefaultScreenHeight}, s.Screen)
	assert.Equal(t, DefaultImageSide, s.Render.ImageWidth)
	require.Len(t, s.Units, 4)

	canvas, ok := s.Unit("canvas")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "modules", "canvas.wasm"), canvas.Source)
	assert.Equal(t, Host(HostRender), canvas.Imports["render"])
	assert.Equal(t, Unit("input"), canvas.Imports["input"])

	textures, ok := s.Unit("textures")
	require.True(t, ok)
	require.True(t, textures.IsProxy())
	assert.Equal(t, "/abs/texture.wasm", textures.Handles.Source)
	assert.Equal(t, []OpSpec{{Name: "getPixel", Args: 2, Returns: true}}, textures.Handles.Ops)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeFile(t, "scene.yaml", sceneYAML)
	t.Setenv("EDHOST_TICKS", "12")
	t.Setenv("EDHOST_LOG_LEVEL", "debug")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, s.Ticks)
	assert.Equal(t, "debug", s.Log.Level)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "scene.json", `{"name":"j","main":"a","units":[{"name":"a","source":"a.wasm"}]}`)
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "j", s.Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, errors.PhaseConfig, e.Phase)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Scene)
	}{
		{"missing name", func(s *Scene) { s.Name = "" }},
		{"no units", func(s *Scene) { s.Units = nil }},
		{"unknown main", func(s *Scene) { s.Main = "ghost" }},
		{"proxy as main", func(s *Scene) { s.Main = "textures" }},
		{"duplicate unit", func(s *Scene) { s.Units = append(s.Units, UnitSpec{Name: "input", Source: "x.wasm"}) }},
		{"bad tick", func(s *Scene) { s.Tick = 0 }},
		{"bad log level", func(s *Scene) { s.Log.Level = "loud" }},
		{"malformed binding", func(s *Scene) { s.Units[1].Imports["render"] = "render" }},
		{"unknown host", func(s *Scene) { s.Units[1].Imports["render"] = Host("gpu") }},
		{"forward reference", func(s *Scene) { s.Units[1].Imports["x"] = Unit("notes") }},
		{"unit bound as handles", func(s *Scene) { s.Units[1].Imports["x"] = Handles("input") }},
		{"proxy bound as unit", func(s *Scene) { s.Units[6].Imports["textures"] = Unit("textures") }},
		{"source and handles", func(s *Scene) { s.Units[5].Source = "both.wasm" }},
		{"no source", func(s *Scene) { s.Units[0].Source = "" }},
		{"no ops", func(s *Scene) { s.Units[5].Handles.Ops = nil }},
		{"hash in name", func(s *Scene) { s.Units[0].Name = "a#1"; s.Units[2].Imports["input"] = Unit("a#1") }},
	}

	require.NoError(t, Validate(Example()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Example()
			tt.mutate(s)
			err := Validate(s)
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput}), "got %v", err)
		})
	}
}

func TestBindingParse(t *testing.T) {
	tests := []struct {
		in     Binding
		kind   BindingKind
		target string
		ok     bool
	}{
		{"host:render", BindHost, "render", true},
		{"host:env", BindHost, "env", true},
		{"unit:canvas", BindUnit, "canvas", true},
		{"handles:textures", BindHandles, "textures", true},
		{"host:", "", "", false},
		{"canvas", "", "", false},
		{"plugin:x", "", "", false},
	}
	for _, tt := range tests {
		kind, target, err := tt.in.Parse()
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.kind, kind)
		assert.Equal(t, tt.target, target)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "scene.yaml")
	require.NoError(t, Write(path, Example()))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", s.Name)
	assert.Equal(t, "canvas", s.Main)
	assert.Equal(t, Canvas{X: 200, Y: 150, Width: 400, Height: 300}, s.Canvas)
	require.Len(t, s.Units, len(Example().Units))
	assert.Equal(t, filepath.Join(filepath.Dir(path), "texture.wasm"), s.Units[5].Handles.Source)
}

func TestSchema(t *testing.T) {
	data, err := Schema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "edhost scene", doc["title"])

	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"name", "main", "units", "canvas", "tick"} {
		assert.Contains(t, props, key)
	}
}

func TestLoadKeepsImportCase(t *testing.T) {
	const mixed = `
name: mixed
main: app
units:
  - name: lib
    source: lib.wasm
  - name: pool
    handles:
      source: sub.wasm
      imports:
        hostRender: host:render
      ops:
        - name: run
  - name: app
    source: app.wasm
    imports:
      myNS: unit:lib
      Env: host:env
      subUnits: handles:pool
`
	for _, name := range []string{"scene.yaml", "scene.json"} {
		t.Run(name, func(t *testing.T) {
			content := mixed
			if name == "scene.json" {
				content = `{"name": "mixed", "main": "app", "units": [
  {"name": "lib", "source": "lib.wasm"},
  {"name": "pool", "handles": {"source": "sub.wasm", "imports": {"hostRender": "host:render"}, "ops": [{"name": "run"}]}},
  {"name": "app", "source": "app.wasm", "imports": {"myNS": "unit:lib", "Env": "host:env", "subUnits": "handles:pool"}}
]}`
			}
			s, err := Load(writeFile(t, name, content))
			require.NoError(t, err)

			app, ok := s.Unit("app")
			require.True(t, ok)
			assert.Equal(t, map[string]Binding{
				"myNS":     Unit("lib"),
				"Env":      Host(HostEnv),
				"subUnits": Handles("pool"),
			}, app.Imports)

			pool, ok := s.Unit("pool")
			require.True(t, ok)
			assert.Equal(t, map[string]Binding{"hostRender": Host(HostRender)}, pool.Handles.Imports)
		})
	}
}
