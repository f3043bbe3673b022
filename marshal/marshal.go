// Package marshal copies byte ranges out of guest linear memory.
//
// Every read is bounds-checked against the memory's current size using 64-bit
// arithmetic, so offset+length can never wrap. Returned slices are always
// owned by the caller: guest memory may grow or be reused by the guest after
// the host call returns.
package marshal

import (
	"bytes"

	"github.com/ededitor/edhost/errors"
	"github.com/tetratelabs/wazero/api"
)

// Copy returns a copy of [offset, offset+length) of mem.
func Copy(mem api.Memory, offset, length uint32) ([]byte, error) {
	if err := check(mem, offset, length); err != nil {
		return nil, err
	}
	data, ok := mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(offset, length, uint64(mem.Size()))
	}
	buf := make([]byte, length)
	copy(buf, data)
	return buf, nil
}

// CString reads a NUL-terminated string starting at offset, scanning at most
// limit bytes. The range is clipped to the end of memory. A string with no
// terminator inside the window is returned whole.
func CString(mem api.Memory, offset, limit uint32) (string, error) {
	size := uint64(mem.Size())
	if uint64(offset) > size {
		return "", errors.OutOfBounds(offset, 0, size)
	}
	if rest := size - uint64(offset); uint64(limit) > rest {
		limit = uint32(rest)
	}
	data, ok := mem.Read(offset, limit)
	if !ok {
		return "", errors.OutOfBounds(offset, limit, size)
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return string(data), nil
}

func check(mem api.Memory, offset, length uint32) error {
	size := uint64(mem.Size())
	if uint64(offset)+uint64(length) > size {
		return errors.OutOfBounds(offset, length, size)
	}
	return nil
}
