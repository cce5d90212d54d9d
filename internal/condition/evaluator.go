package condition

import (
	"sync"
	"time"

	"autotrader/pkg/logger"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
)

const retryDelay = 100 * time.Millisecond

// Evaluator runs user-supplied boolean expressions against OHLC inputs
// inside a goja sandbox. Only open/close/high/low are visible to the
// expression; a wall-clock interrupt and a call-stack cap keep
// pathological expressions from hanging or crashing the process. There
// is no separate statement budget: goja.Interrupt is checked between
// statements, so any statement-count runaway trips the wall-clock
// limit.
//
// One interpreter is shared by all callers: VM construction is expensive
// and the runtime is not reentrant, so every run goes through mu.
type Evaluator struct {
	mu      sync.Mutex
	vm      *goja.Runtime
	timeout time.Duration
}

func NewEvaluator(timeout time.Duration, maxCallDepth int) *Evaluator {
	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallDepth)
	return &Evaluator{
		vm:      vm,
		timeout: timeout,
	}
}

// Validate compiles the expression and dry-runs it against a zero candle.
// Returns ok=false with a user-facing message for malformed expressions;
// meant to be called at watcher creation, before any loop ever sees the
// expression.
func (e *Evaluator) Validate(expression string) (bool, string) {
	if _, err := goja.Compile("condition", expression, false); err != nil {
		return false, err.Error()
	}
	if _, err := e.run(expression, 0, 0, 0, 0); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// Evaluate returns whether the condition holds for the given candle.
// Unexpected interpreter failures are retried once after a short delay;
// a still-failing evaluation is logged and reported as "not triggered",
// never as an error.
func (e *Evaluator) Evaluate(expression string, open, close, high, low float64) bool {
	result, err := e.run(expression, open, close, high, low)
	if err != nil {
		time.Sleep(retryDelay)
		result, err = e.run(expression, open, close, high, low)
	}
	if err != nil {
		logger.Error("[condition] evaluation failed: %q: %v", expression, err)
		return false
	}
	return result
}

func (e *Evaluator) run(expression string, open, close, high, low float64) (result bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("interpreter panic: %v", p)
		}
	}()

	if err := e.vm.Set("open", open); err != nil {
		return false, err
	}
	if err := e.vm.Set("close", close); err != nil {
		return false, err
	}
	if err := e.vm.Set("high", high); err != nil {
		return false, err
	}
	if err := e.vm.Set("low", low); err != nil {
		return false, err
	}

	timer := time.AfterFunc(e.timeout, func() {
		e.vm.Interrupt("evaluation timed out")
	})
	defer func() {
		timer.Stop()
		e.vm.ClearInterrupt()
	}()

	value, err := e.vm.RunString(expression)
	if err != nil {
		return false, err
	}
	return value.ToBoolean(), nil
}
