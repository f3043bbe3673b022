// Package hostlog provides the env namespace guests use to print diagnostics.
package hostlog

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/ededitor/edhost"
	"github.com/ededitor/edhost/capability"
	"github.com/ededitor/edhost/marshal"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"
)

// NamespaceName is the import namespace of the log capabilities.
const NamespaceName = "env"

var intSig = capability.MustSignatureOf([]wit.Type{wit.S32{}}, nil)

// Namespace returns the env capabilities of one unit:
//
//	log(ptr s32)    prints the C string at ptr
//	logInt(v s32)   prints v
//	print(v s32)    prints v
//
// Every line is written to w and logged at debug level. src supplies the
// unit's memory for log.
func Namespace(src edhost.MemoryReader, log *zap.Logger, w io.Writer) *capability.Module {
	if log == nil {
		log = zap.NewNop()
	}
	if w == nil {
		w = io.Discard
	}
	s := &sink{src: src, log: log, w: w}
	return capability.NewModule().
		Define("log", capability.Func(intSig, s.logString)).
		Define("logInt", capability.Func(intSig, s.logInt)).
		Define("print", capability.Func(intSig, s.logInt))
}

type sink struct {
	src edhost.MemoryReader
	log *zap.Logger
	w   io.Writer
	mu  sync.Mutex
}

func (s *sink) logString(_ context.Context, _ api.Module, stack []uint64) {
	text, err := marshal.ReadString(s.src, api.DecodeU32(stack[0]), marshal.MaxString)
	if err != nil {
		panic(err)
	}
	s.line(text)
}

func (s *sink) logInt(_ context.Context, _ api.Module, stack []uint64) {
	s.line(fmt.Sprint(api.DecodeI32(stack[0])))
}

func (s *sink) line(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Debug("guest output", zap.String("text", text))
	if _, err := fmt.Fprintln(s.w, text); err != nil {
		s.log.Warn("write guest output", zap.Error(err))
	}
}
