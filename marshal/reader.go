package marshal

import (
	"bytes"

	"github.com/ededitor/edhost"
	"github.com/ededitor/edhost/errors"
)

// MaxString bounds C strings read on behalf of host capabilities.
const MaxString = 4096

// ReadString reads a NUL-terminated string of at most limit bytes through r.
// Readers that implement edhost.StringReader read the string themselves.
// Readers that implement edhost.MemorySizer are clipped at the end of
// memory; other readers must have limit bytes available at offset.
func ReadString(r edhost.MemoryReader, offset, limit uint32) (string, error) {
	if sr, ok := r.(edhost.StringReader); ok {
		return sr.ReadString(offset, limit)
	}
	if ms, ok := r.(edhost.MemorySizer); ok {
		size, err := ms.MemorySize()
		if err != nil {
			return "", err
		}
		if offset >= size {
			return "", errors.OutOfBounds(offset, limit, uint64(size))
		}
		limit = min(limit, size-offset)
	}
	data, err := r.ReadMemory(offset, limit)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return string(data), nil
}
