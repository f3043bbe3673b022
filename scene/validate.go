package scene

import (
	"fmt"

	"github.com/ededitor/edhost/errors"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("binding", func(fl validator.FieldLevel) bool {
		_, _, err := Binding(fl.Field().String()).Parse()
		return err == nil
	})
	return v
}

// Validate checks field constraints and the references between entries:
// the main unit exists and is not a proxy, and every unit or handles
// binding names an earlier entry of the matching kind.
func Validate(s *Scene) error {
	if err := validate.Struct(s); err != nil {
		return errors.InvalidInput("scene validation failed", err)
	}

	seen := make(map[string]UnitSpec, len(s.Units))
	for _, u := range s.Units {
		if err := checkBindings(u.Name, u.Imports, seen); err != nil {
			return err
		}
		if u.Handles != nil {
			if err := checkBindings(u.Name, u.Handles.Imports, seen); err != nil {
				return err
			}
		}
		seen[u.Name] = u
	}

	main, ok := seen[s.Main]
	switch {
	case !ok:
		return errors.InvalidInput(fmt.Sprintf("main unit %q is not declared", s.Main), nil)
	case main.IsProxy():
		return errors.InvalidInput(fmt.Sprintf("main unit %q is a handle proxy", s.Main), nil)
	}
	return nil
}

func checkBindings(owner string, imports map[string]Binding, earlier map[string]UnitSpec) error {
	for ns, b := range imports {
		kind, target, err := b.Parse()
		if err != nil {
			return errors.InvalidInput(fmt.Sprintf("unit %q import %q", owner, ns), err)
		}
		if kind == BindHost {
			continue
		}
		dep, ok := earlier[target]
		if !ok {
			return errors.InvalidInput(fmt.Sprintf("unit %q import %q: %q must be declared earlier", owner, ns, target), nil)
		}
		if kind == BindUnit && dep.IsProxy() {
			return errors.InvalidInput(fmt.Sprintf("unit %q import %q: %q is a handle proxy, bind it with handles:", owner, ns, target), nil)
		}
		if kind == BindHandles && !dep.IsProxy() {
			return errors.InvalidInput(fmt.Sprintf("unit %q import %q: %q is not a handle proxy", owner, ns, target), nil)
		}
	}
	return nil
}
