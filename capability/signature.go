package capability

import (
	"slices"
	"strings"

	"github.com/ededitor/edhost/errors"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
)

// Signature is the core-wasm shape of a callable: ordered parameter and
// result value types.
type Signature struct {
	Params  []api.ValueType
	Results []api.ValueType
}

// NewSignature copies params and results into a Signature.
func NewSignature(params, results []api.ValueType) Signature {
	return Signature{
		Params:  slices.Clone(params),
		Results: slices.Clone(results),
	}
}

// SignatureOf builds a Signature from WIT primitive types. Each type must
// flatten to exactly one core value.
func SignatureOf(params, results []wit.Type) (Signature, error) {
	var sig Signature
	for _, p := range params {
		vt, err := flatten(p)
		if err != nil {
			return Signature{}, err
		}
		sig.Params = append(sig.Params, vt)
	}
	for _, r := range results {
		vt, err := flatten(r)
		if err != nil {
			return Signature{}, err
		}
		sig.Results = append(sig.Results, vt)
	}
	return sig, nil
}

// MustSignatureOf is SignatureOf for package-level declarations.
func MustSignatureOf(params, results []wit.Type) Signature {
	sig, err := SignatureOf(params, results)
	if err != nil {
		panic(err)
	}
	return sig
}

// SignatureFromDefinition reads the signature of a wazero function definition.
func SignatureFromDefinition(def api.FunctionDefinition) Signature {
	return NewSignature(def.ParamTypes(), def.ResultTypes())
}

func flatten(t wit.Type) (api.ValueType, error) {
	switch t.(type) {
	case wit.Bool, wit.S8, wit.U8, wit.S16, wit.U16, wit.S32, wit.U32, wit.Char:
		return api.ValueTypeI32, nil
	case wit.S64, wit.U64:
		return api.ValueTypeI64, nil
	case wit.F32:
		return api.ValueTypeF32, nil
	case wit.F64:
		return api.ValueTypeF64, nil
	}
	return 0, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Value(t).
		Detail("WIT type %T does not flatten to a single core value", t).
		Build()
}

// Equal reports whether both signatures have identical params and results.
func (s Signature) Equal(o Signature) bool {
	return slices.Equal(s.Params, o.Params) && slices.Equal(s.Results, o.Results)
}

// String formats the signature as "(i32, i32) -> (i32)".
func (s Signature) String() string {
	var b strings.Builder
	writeTypes(&b, s.Params)
	b.WriteString(" -> ")
	writeTypes(&b, s.Results)
	return b.String()
}

func writeTypes(b *strings.Builder, types []api.ValueType) {
	b.WriteByte('(')
	for i, t := range types {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(t))
	}
	b.WriteByte(')')
}
