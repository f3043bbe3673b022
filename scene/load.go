package scene

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ededitor/edhost/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. EDHOST_TICKS=100.
const EnvPrefix = "EDHOST"

// Defaults applied before the scene file is read.
const (
	DefaultTick         = 60
	DefaultScreenWidth  = 800
	DefaultScreenHeight = 600
	DefaultImageSide    = 16
	DefaultTextLimit    = 4096
	DefaultLogLevel     = "info"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("tick", DefaultTick)
	v.SetDefault("ticks", 0)
	v.SetDefault("memory", 0)
	v.SetDefault("screen.width", DefaultScreenWidth)
	v.SetDefault("screen.height", DefaultScreenHeight)
	v.SetDefault("canvas.x", 0)
	v.SetDefault("canvas.y", 0)
	v.SetDefault("canvas.width", DefaultScreenWidth)
	v.SetDefault("canvas.height", DefaultScreenHeight)
	v.SetDefault("render.image_width", DefaultImageSide)
	v.SetDefault("render.image_height", DefaultImageSide)
	v.SetDefault("render.text_limit", DefaultTextLimit)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", "")
}

// Load reads a scene file (YAML, TOML or JSON by extension), applies
// defaults and EDHOST_ environment overrides, resolves relative paths
// against the file's directory and validates the result.
//
// Import namespace keys keep their case in YAML and JSON files. TOML keys
// are read in lower case.
func Load(path string) (*Scene, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("read scene %s", path), err)
	}

	var s Scene
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("decode scene %s", path), err)
	}
	if err := restoreImportKeys(path, &s); err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve scene directory: %w", err)
	}
	s.Resolve(dir)

	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// importsOnly mirrors the import maps of a scene file.
type importsOnly struct {
	Units []struct {
		Imports map[string]Binding `yaml:"imports"`
		Handles *struct {
			Imports map[string]Binding `yaml:"imports"`
		} `yaml:"handles"`
	} `yaml:"units"`
}

// restoreImportKeys replaces the import maps decoded by viper, whose keys are
// lower-cased, with the maps as written in YAML or JSON files. Namespace
// names are matched against module imports case-sensitively.
func restoreImportKeys(path string, s *Scene) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.InvalidInput(fmt.Sprintf("read scene %s", path), err)
	}
	var raw importsOnly
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return errors.InvalidInput(fmt.Sprintf("decode scene %s", path), err)
	}
	for i := range min(len(raw.Units), len(s.Units)) {
		r, u := raw.Units[i], &s.Units[i]
		if r.Imports != nil {
			u.Imports = r.Imports
		}
		if r.Handles != nil && r.Handles.Imports != nil && u.Handles != nil {
			u.Handles.Imports = r.Handles.Imports
		}
	}
	return nil
}

// Write stores s as YAML, creating the parent directory.
func Write(path string, s *Scene) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode scene: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create scene directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write scene: %w", err)
	}
	return nil
}

// Default returns a scene carrying only default settings.
func Default() *Scene {
	return &Scene{
		Tick:   DefaultTick,
		Screen: Size{Width: DefaultScreenWidth, Height: DefaultScreenHeight},
		Canvas: Canvas{Width: DefaultScreenWidth, Height: DefaultScreenHeight},
		Render: Render{ImageWidth: DefaultImageSide, ImageHeight: DefaultImageSide, TextLimit: DefaultTextLimit},
		Log:    LogConfig{Level: DefaultLogLevel},
	}
}

// Example returns the demo scene. Sources are relative to the scene file.
func Example() *Scene {
	s := Default()
	s.Name = "demo"
	s.Main = "canvas"
	s.Canvas = Canvas{X: 200, Y: 150, Width: 400, Height: 300}
	s.Units = []UnitSpec{
		{Name: "input", Source: "input.wasm"},
		{
			Name:    "canvas",
			Source:  "canvas.wasm",
			Imports: map[string]Binding{"render": Host(HostRender)},
		},
		{
			Name:   "notes",
			Source: "notes.wasm",
			Imports: map[string]Binding{
				"render": Host(HostRender),
				"input":  Unit("input"),
			},
		},
		{
			Name:    "wave",
			Source:  "wave.wasm",
			Imports: map[string]Binding{"render": Host(HostRender)},
		},
		{
			Name:    "fizzbuzz",
			Source:  "fizzbuzz.wasm",
			Imports: map[string]Binding{"env": Host(HostEnv)},
		},
		{
			Name: "textures",
			Handles: &HandleSpec{
				Source:  "texture.wasm",
				Imports: map[string]Binding{"render": Host(HostRender)},
				Ops: []OpSpec{
					{Name: "init", Args: 2},
					{Name: "getPixel", Args: 2, Returns: true},
					{Name: "setPixel", Args: 3},
					{Name: "image", Returns: true},
				},
			},
		},
		{
			Name:   "painter",
			Source: "painter.wasm",
			Imports: map[string]Binding{
				"textures": Handles("textures"),
				"env":      Host(HostEnv),
			},
		},
	}
	return s
}
