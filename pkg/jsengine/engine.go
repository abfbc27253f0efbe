// Package jsengine evaluates the ${...} expressions used in feature files
// and test data, e.g. "user_${randomString(6)}".
package jsengine

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devicelab-dev/parabank-e2e/pkg/textutil"
)

// Engine wraps a goja runtime with the suite's helper functions.
// It is safe for concurrent use; evaluations are serialized.
type Engine struct {
	runtime   *goja.Runtime
	variables map[string]interface{}
	log       *zap.Logger
	mu        sync.Mutex
}

// New creates a new JS engine instance
func New(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		runtime:   goja.New(),
		variables: make(map[string]interface{}),
		log:       log,
	}

	e.setupBuiltins()
	return e
}

// setupBuiltins registers all built-in functions and objects
func (e *Engine) setupBuiltins() {
	e.setupConsole()

	e.runtime.Set("json", e.jsonFunc())
	e.runtime.Set("randomString", func(n int) string { return textutil.RandomString(n) })
	e.runtime.Set("randomNumber", func(n int) string { return textutil.RandomNumber(n) })
	e.runtime.Set("uuid", func() string { return uuid.NewString() })
	e.runtime.Set("env", func(name string) string { return os.Getenv(name) })

	// hash(message[, secret])
	e.runtime.Set("hash", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("hash requires a message"))
		}
		secret := ""
		if len(call.Arguments) > 1 {
			secret = call.Arguments[1].String()
		}
		return e.runtime.ToValue(textutil.HMACSHA256(secret, call.Arguments[0].String()))
	})
}

// setupConsole routes console.log, console.error and console.warn to the logger.
func (e *Engine) setupConsole() {
	makeConsoleFunc := func(write func(string, ...zap.Field)) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = fmt.Sprint(arg.Export())
			}
			write(strings.Join(parts, " "), zap.String("source", "js"))
			return goja.Undefined()
		}
	}

	console := e.runtime.NewObject()
	_ = console.Set("log", makeConsoleFunc(e.log.Info))
	_ = console.Set("error", makeConsoleFunc(e.log.Error))
	_ = console.Set("warn", makeConsoleFunc(e.log.Warn))
	e.runtime.Set("console", console)
}

// jsonFunc returns the json() helper function
func (e *Engine) jsonFunc() func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("json requires 1 argument"))
		}

		str := call.Arguments[0].String()

		result, err := e.runtime.RunString(fmt.Sprintf("JSON.parse(%q)", str))
		if err != nil {
			panic(e.runtime.NewTypeError(fmt.Sprintf("invalid JSON: %v", err)))
		}

		return result
	}
}

// SetVariable sets a variable accessible in JS as a global
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.variables[name] = value
	e.runtime.Set(name, value)
}

// SetVariables sets multiple variables
func (e *Engine) SetVariables(vars map[string]interface{}) {
	for k, v := range vars {
		e.SetVariable(k, v)
	}
}

// Variable returns a value set with SetVariable.
func (e *Engine) Variable(name string) (interface{}, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.variables[name]
	return v, ok
}

// ImportEnv exposes ALL_CAPS environment variables as JS globals,
// without overriding variables already set.
func (e *Engine) ImportEnv(environ []string) {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !isEnvName(name) {
			continue
		}
		if _, exists := e.Variable(name); exists {
			continue
		}
		e.SetVariable(name, value)
	}
}

func isEnvName(s string) bool {
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		return false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}

// Eval evaluates a JavaScript expression and returns the result
func (e *Engine) Eval(script string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.runtime.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("JS eval error: %w", err)
	}

	return result.Export(), nil
}

// EvalString evaluates a JavaScript expression and returns string result
func (e *Engine) EvalString(script string) (string, error) {
	result, err := e.Eval(script)
	if err != nil {
		return "", err
	}

	if result == nil {
		return "", nil
	}

	return fmt.Sprintf("%v", result), nil
}

// ExpandVariables expands ${...} expressions in a string using JS evaluation.
// Expressions that fail to evaluate are left as-is and reported in the
// returned error; the rest of the text is still expanded.
func (e *Engine) ExpandVariables(text string) (string, error) {
	result := text
	start := 0
	var failed []string

	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			break
		}
		idx += start

		// Find matching }
		depth := 1
		end := idx + 2
		for end < len(result) && depth > 0 {
			if result[end] == '{' {
				depth++
			} else if result[end] == '}' {
				depth--
			}
			end++
		}

		if depth != 0 {
			// Unmatched brace, skip
			start = idx + 2
			continue
		}

		expr := result[idx+2 : end-1]

		value, err := e.EvalString(expr)
		if err != nil {
			e.log.Debug("expression left unexpanded", zap.String("expr", expr), zap.Error(err))
			failed = append(failed, expr)
			start = end
			continue
		}

		result = result[:idx] + value + result[end:]
		start = idx + len(value)
	}

	if len(failed) > 0 {
		return result, fmt.Errorf("could not evaluate %s", strings.Join(failed, ", "))
	}
	return result, nil
}
