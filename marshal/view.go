package marshal

import (
	"github.com/tetratelabs/wazero/api"
)

// View is a read-only window over a range of guest memory. It is valid only
// for the duration of the host call that produced it and must not be stored.
type View struct {
	data []byte
}

// NewView checks the range and returns a view over it.
func NewView(mem api.Memory, offset, length uint32) (View, error) {
	if err := check(mem, offset, length); err != nil {
		return View{}, err
	}
	data, _ := mem.Read(offset, length)
	return View{data: data}, nil
}

// Len returns the number of bytes in the view.
func (v View) Len() int { return len(v.data) }

// Bytes returns an owned copy of the viewed bytes.
func (v View) Bytes() []byte {
	buf := make([]byte, len(v.data))
	copy(buf, v.data)
	return buf
}

// CopyTo copies the view into dst and returns the number of bytes copied.
func (v View) CopyTo(dst []byte) int {
	return copy(dst, v.data)
}

// At returns the byte at index i of the view.
func (v View) At(i int) byte { return v.data[i] }
