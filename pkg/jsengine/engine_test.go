package jsengine

import (
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/devicelab-dev/parabank-e2e/pkg/textutil"
)

func TestNew(t *testing.T) {
	engine := New(nil)

	if engine == nil {
		t.Fatal("expected engine to be created")
	}
	if engine.runtime == nil {
		t.Fatal("expected runtime to be initialized")
	}
}

func TestEval(t *testing.T) {
	engine := New(nil)

	tests := []struct {
		name     string
		script   string
		expected interface{}
	}{
		{"simple number", "1 + 2", int64(3)},
		{"string concat", "'hello' + ' ' + 'world'", "hello world"},
		{"boolean", "true && false", false},
		{"null coalescing", "null ?? 'default'", "default"},
		{"array length", "[1, 2, 3].length", int64(3)},
		{"object property", "({name: 'test'}).name", "test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Eval(tt.script)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %v (%T), got %v (%T)", tt.expected, tt.expected, result, result)
			}
		})
	}
}

func TestSetVariable(t *testing.T) {
	engine := New(nil)

	engine.SetVariable("username", "john")
	engine.SetVariable("count", 42)

	result, err := engine.EvalString("username")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "john" {
		t.Errorf("expected 'john', got %q", result)
	}

	result, err = engine.EvalString("count")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "42" {
		t.Errorf("expected '42', got %q", result)
	}

	if v, ok := engine.Variable("username"); !ok || v != "john" {
		t.Errorf("Variable(username) = %v, %v", v, ok)
	}
}

func TestExpandVariables(t *testing.T) {
	engine := New(nil)

	engine.SetVariable("name", "John")
	engine.SetVariable("age", 30)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple var", "Hello ${name}", "Hello John"},
		{"expression", "Age: ${age + 5}", "Age: 35"},
		{"multiple vars", "${name} is ${age}", "John is 30"},
		{"no vars", "plain text", "plain text"},
		{"string concat", "${name + ' Doe'}", "John Doe"},
		{"nested braces", "${({a: 1}).a}", "1"},
		{"unmatched brace", "${name", "${name"},
		{"hash default secret", "${hash('admin')}", textutil.HMACSHA256("", "admin")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.ExpandVariables(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	engine := New(nil)

	tests := []struct {
		expr    string
		pattern string
	}{
		{"${randomString(8)}", `^[a-z]{8}$`},
		{"${randomNumber(4)}", `^[0-9]{4}$`},
		{"user_${randomString(3)}${randomNumber(2)}", `^user_[a-z]{3}[0-9]{2}$`},
		{"${uuid()}", `^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`},
		{"${hash('admin', 'k')}", `^[0-9a-f]{64}$`},
	}
	for _, tt := range tests {
		got, err := engine.ExpandVariables(tt.expr)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.expr, err)
		}
		if !regexp.MustCompile(tt.pattern).MatchString(got) {
			t.Errorf("%s expanded to %q, want match for %s", tt.expr, got, tt.pattern)
		}
	}
}

func TestEnv(t *testing.T) {
	t.Setenv("PARABANK_TEST_USER", "jdoe")
	engine := New(nil)

	got, err := engine.ExpandVariables("${env('PARABANK_TEST_USER')}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "jdoe" {
		t.Errorf("expected 'jdoe', got %q", got)
	}
}

func TestImportEnv(t *testing.T) {
	engine := New(nil)
	engine.SetVariable("USER", "kept")

	engine.ImportEnv([]string{"USER=overridden", "API_KEY=abc", "lower=skip", "1BAD=skip", "NOVALUE"})

	if v, _ := engine.EvalString("USER"); v != "kept" {
		t.Errorf("existing variable overridden: %q", v)
	}
	if v, _ := engine.EvalString("API_KEY"); v != "abc" {
		t.Errorf("expected API_KEY imported, got %q", v)
	}
	if _, ok := engine.Variable("lower"); ok {
		t.Error("lowercase names must not be imported")
	}
	if _, ok := engine.Variable("1BAD"); ok {
		t.Error("names starting with a digit must not be imported")
	}
}

func TestConsoleLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	engine := New(zap.New(core))

	_, err := engine.Eval(`
		console.log("test", "message");
		console.error("error message");
		console.warn("warning message");
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(entries))
	}
	if entries[0].Message != "test message" || entries[0].Level != zapcore.InfoLevel {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Level != zapcore.ErrorLevel || entries[2].Level != zapcore.WarnLevel {
		t.Errorf("unexpected levels: %v, %v", entries[1].Level, entries[2].Level)
	}
}

func TestJSON(t *testing.T) {
	engine := New(nil)

	name, err := engine.EvalString(`json('{"name": "test", "value": 123}').name`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "test" {
		t.Errorf("expected 'test', got %q", name)
	}

	value, _ := engine.EvalString(`json('{"name": "test", "value": 123}').value`)
	if value != "123" {
		t.Errorf("expected '123', got %q", value)
	}
}

func TestArrowFunctions(t *testing.T) {
	engine := New(nil)

	result, err := engine.Eval(`
		const add = (a, b) => a + b;
		add(2, 3);
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != int64(5) {
		t.Errorf("expected 5, got %v", result)
	}
}

func TestTemplateLiterals(t *testing.T) {
	engine := New(nil)

	engine.SetVariable("name", "World")

	result, err := engine.EvalString("`Hello, ${name}!`")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Hello, World!" {
		t.Errorf("expected 'Hello, World!', got %q", result)
	}
}

func TestEvalError(t *testing.T) {
	engine := New(nil)

	_, err := engine.Eval("undefinedVariable.property")
	if err == nil {
		t.Error("expected error for undefined variable")
	}
}

func TestExpandVariablesWithError(t *testing.T) {
	engine := New(nil)
	engine.SetVariable("name", "John")

	result, err := engine.ExpandVariables("Value: ${undefinedVar} ${name}")
	if err == nil {
		t.Fatal("expected error for undefined variable")
	}
	if !strings.Contains(err.Error(), "undefinedVar") {
		t.Errorf("error should name the expression, got %v", err)
	}
	// the failing expression is kept, the rest still expands
	if result != "Value: ${undefinedVar} John" {
		t.Errorf("unexpected result %q", result)
	}
}
