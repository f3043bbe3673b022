// Package scene describes which units a driver hosts and how their imports
// are bound.
//
// A scene file lists units in dependency order. Each unit names the module
// source it is compiled from and binds every imported namespace to one of:
//
//	host:render      the render namespace of the unit itself
//	host:env         the env (log) namespace of the unit itself
//	unit:<name>      every export of an earlier unit
//	handles:<name>   the construct/invoke_<op> module of an earlier proxy
//
// An entry with a handles section declares a proxy instead of a unit. Its
// sub-units are compiled from the handles source and created on demand by
// the guests that import it.
package scene

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Scene is the top-level scene file.
type Scene struct {
	Name     string     `mapstructure:"name" yaml:"name" json:"name" validate:"required" jsonschema:"required"`
	Main     string     `mapstructure:"main" yaml:"main" json:"main" validate:"required" jsonschema:"required,description=Unit whose init/update/mouseEvent drive the scene"`
	CacheDir string     `mapstructure:"cache_dir" yaml:"cache_dir,omitempty" json:"cache_dir,omitempty" jsonschema:"description=Directory for the compilation cache"`
	Log      LogConfig  `mapstructure:"log" yaml:"log" json:"log"`
	Units    []UnitSpec `mapstructure:"units" yaml:"units" json:"units" validate:"required,min=1,unique=Name,dive" jsonschema:"required"`
	Canvas   Canvas     `mapstructure:"canvas" yaml:"canvas" json:"canvas"`
	Screen   Size       `mapstructure:"screen" yaml:"screen" json:"screen"`
	Render   Render     `mapstructure:"render" yaml:"render" json:"render"`
	Tick     int        `mapstructure:"tick" yaml:"tick" json:"tick" validate:"min=1,max=1000" jsonschema:"description=Ticks per second"`
	Ticks    int        `mapstructure:"ticks" yaml:"ticks" json:"ticks" validate:"min=0" jsonschema:"description=Stop after this many ticks; 0 runs until interrupted"`
	Memory   uint32     `mapstructure:"memory" yaml:"memory" json:"memory" validate:"max=65536" jsonschema:"description=Memory limit per unit in 64KiB pages; 0 uses the engine default"`
}

// UnitSpec declares one unit, or a handle proxy when Handles is set.
type UnitSpec struct {
	Imports map[string]Binding `mapstructure:"imports" yaml:"imports,omitempty" json:"imports,omitempty" validate:"excluded_with=Handles,dive,keys,required,endkeys,binding"`
	Handles *HandleSpec        `mapstructure:"handles" yaml:"handles,omitempty" json:"handles,omitempty"`
	Name    string             `mapstructure:"name" yaml:"name" json:"name" validate:"required,excludes=#" jsonschema:"required"`
	Source  string             `mapstructure:"source" yaml:"source,omitempty" json:"source,omitempty" validate:"required_without=Handles,excluded_with=Handles"`
}

// IsProxy reports whether the entry declares a handle proxy.
func (u UnitSpec) IsProxy() bool {
	return u.Handles != nil
}

// HandleSpec declares the sub-units of a proxy.
type HandleSpec struct {
	Imports map[string]Binding `mapstructure:"imports" yaml:"imports,omitempty" json:"imports,omitempty" validate:"dive,keys,required,endkeys,binding"`
	Source  string             `mapstructure:"source" yaml:"source" json:"source" validate:"required" jsonschema:"required"`
	Ops     []OpSpec           `mapstructure:"ops" yaml:"ops" json:"ops" validate:"required,min=1,unique=Name,dive" jsonschema:"required"`
}

// OpSpec declares one operation forwarded as invoke_<name>.
type OpSpec struct {
	Name    string `mapstructure:"name" yaml:"name" json:"name" validate:"required" jsonschema:"required"`
	Args    int    `mapstructure:"args" yaml:"args" json:"args" validate:"min=0,max=15"`
	Returns bool   `mapstructure:"returns" yaml:"returns" json:"returns"`
}

// Canvas places the main unit's drawing area on the screen.
type Canvas struct {
	X      int32 `mapstructure:"x" yaml:"x" json:"x"`
	Y      int32 `mapstructure:"y" yaml:"y" json:"y"`
	Width  int32 `mapstructure:"width" yaml:"width" json:"width" validate:"min=1"`
	Height int32 `mapstructure:"height" yaml:"height" json:"height" validate:"min=1"`
}

// Size is a width and height in pixels.
type Size struct {
	Width  int32 `mapstructure:"width" yaml:"width" json:"width" validate:"min=1"`
	Height int32 `mapstructure:"height" yaml:"height" json:"height" validate:"min=1"`
}

// Render configures the render namespace.
type Render struct {
	ImageWidth  int    `mapstructure:"image_width" yaml:"image_width" json:"image_width" validate:"min=1"`
	ImageHeight int    `mapstructure:"image_height" yaml:"image_height" json:"image_height" validate:"min=1"`
	TextLimit   uint32 `mapstructure:"text_limit" yaml:"text_limit" json:"text_limit" validate:"min=1"`
}

// LogConfig configures the driver's logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" json:"level" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	File  string `mapstructure:"file" yaml:"file,omitempty" json:"file,omitempty"`
}

// Unit returns the entry called name.
func (s *Scene) Unit(name string) (UnitSpec, bool) {
	for _, u := range s.Units {
		if u.Name == name {
			return u, true
		}
	}
	return UnitSpec{}, false
}

// Resolve makes relative sources and the cache directory relative to dir.
func (s *Scene) Resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	s.CacheDir = abs(s.CacheDir)
	for i := range s.Units {
		u := &s.Units[i]
		u.Source = abs(u.Source)
		if u.Handles != nil {
			u.Handles.Source = abs(u.Handles.Source)
		}
	}
}

// BindingKind is the kind of provider a binding refers to.
type BindingKind string

const (
	BindHost    BindingKind = "host"
	BindUnit    BindingKind = "unit"
	BindHandles BindingKind = "handles"
)

// Host namespaces a binding may name.
const (
	HostRender = "render"
	HostEnv    = "env"
)

// Binding selects the provider of an imported namespace, "<kind>:<target>".
type Binding string

// Parse splits the binding into its kind and target.
func (b Binding) Parse() (BindingKind, string, error) {
	kind, target, ok := strings.Cut(string(b), ":")
	if !ok || target == "" {
		return "", "", fmt.Errorf("binding %q: want <kind>:<target>", b)
	}
	switch k := BindingKind(kind); k {
	case BindHost:
		if target != HostRender && target != HostEnv {
			return "", "", fmt.Errorf("binding %q: unknown host namespace %q", b, target)
		}
		return k, target, nil
	case BindUnit, BindHandles:
		return k, target, nil
	}
	return "", "", fmt.Errorf("binding %q: unknown kind %q", b, kind)
}

// Host returns a host binding.
func Host(name string) Binding { return Binding(string(BindHost) + ":" + name) }

// Unit returns a binding to the exports of unit name.
func Unit(name string) Binding { return Binding(string(BindUnit) + ":" + name) }

// Handles returns a binding to the proxy name.
func Handles(name string) Binding { return Binding(string(BindHandles) + ":" + name) }
