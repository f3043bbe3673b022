package edhost

// MemoryReader reads a copy of a range of a live unit's linear memory.
// The returned slice is owned by the caller.
type MemoryReader interface {
	ReadMemory(offset, length uint32) ([]byte, error)
}

// MemorySizer provides the current size of a unit's linear memory in bytes.
type MemorySizer interface {
	MemorySize() (uint32, error)
}

// StringReader reads a NUL-terminated string of at most limit bytes.
type StringReader interface {
	ReadString(offset, limit uint32) (string, error)
}
