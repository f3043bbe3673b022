package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ededitor/edhost/driver"
	"github.com/ededitor/edhost/errors"
	"github.com/tetratelabs/wazero/api"
)

// callExport runs a console line of the form "unit.export arg...". Arguments
// are parsed by the export's parameter types.
func callExport(ctx context.Context, d *driver.Driver, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	unitName, export, ok := strings.Cut(fields[0], ".")
	if !ok {
		return "", errors.InvalidInput(fmt.Sprintf("%q: want unit.export", fields[0]), nil)
	}
	u, ok := d.Unit(unitName)
	if !ok {
		return "", errors.InvalidInput(fmt.Sprintf("no unit %q", unitName), nil)
	}
	fn, err := u.Export(export)
	if err != nil {
		return "", err
	}

	params := fn.Signature().Params
	if len(fields)-1 != len(params) {
		return "", errors.InvalidInput(fmt.Sprintf("%s takes %d arguments, got %d", fields[0], len(params), len(fields)-1), nil)
	}
	args := make([]uint64, len(params))
	for i, t := range params {
		if args[i], err = convertArg(fields[i+1], t); err != nil {
			return "", errors.InvalidInput(fmt.Sprintf("argument %d", i), err)
		}
	}

	res, err := fn.Call(ctx, args...)
	if err != nil {
		return "", err
	}
	results := fn.Signature().Results
	out := make([]string, len(res))
	for i, v := range res {
		out[i] = formatResult(v, results[i])
	}
	return strings.Join(out, " "), nil
}

func convertArg(value string, t api.ValueType) (uint64, error) {
	switch t {
	case api.ValueTypeI32:
		v, err := strconv.ParseInt(value, 0, 32)
		return api.EncodeI32(int32(v)), err
	case api.ValueTypeI64:
		v, err := strconv.ParseInt(value, 0, 64)
		return api.EncodeI64(v), err
	case api.ValueTypeF32:
		v, err := strconv.ParseFloat(value, 32)
		return api.EncodeF32(float32(v)), err
	case api.ValueTypeF64:
		v, err := strconv.ParseFloat(value, 64)
		return api.EncodeF64(v), err
	}
	return 0, fmt.Errorf("unsupported parameter type %s", api.ValueTypeName(t))
}

func formatResult(v uint64, t api.ValueType) string {
	switch t {
	case api.ValueTypeI32:
		return strconv.FormatInt(int64(api.DecodeI32(v)), 10)
	case api.ValueTypeF32:
		return strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32)
	case api.ValueTypeF64:
		return strconv.FormatFloat(api.DecodeF64(v), 'g', -1, 64)
	}
	return strconv.FormatInt(int64(v), 10)
}
