package unit

import (
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLoggerConcurrent(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				SetLogger(zap.NewNop())
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				Logger().Debug("concurrent")
			}
		}()
	}
	wg.Wait()
}

func TestSetLogger(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	mustInit(t, newContext(t), "math", mathWasm(), nil)

	if n := logs.FilterMessage("unit initialized").Len(); n != 1 {
		t.Errorf("logged %d initializations, want 1", n)
	}

	SetLogger(nil)
	if Logger() == nil {
		t.Fatal("nil logger must fall back to a no-op logger")
	}
}
