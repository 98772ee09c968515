package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcreteScenarios exercises the six end-to-end programs spec §8 calls
// out by name, each checked against its literal expected output.
func TestConcreteScenarios(t *testing.T) {
	t.Run("fibonacci recursion", func(t *testing.T) {
		var stdout bytes.Buffer
		v := New(Options{Stdout: &stdout, Stderr: &stdout})
		src := `func fib(n) { if n < 2 { return n; } return fib(n-1) + fib(n-2); } print fib(10);`
		result, err := v.Interpret(src)
		require.NoError(t, err)
		assert.Equal(t, Ok, result)
		assert.Equal(t, "55\n", stdout.String())
	})

	t.Run("closure capture", func(t *testing.T) {
		var stdout bytes.Buffer
		v := New(Options{Stdout: &stdout, Stderr: &stdout})
		src := `func make() { var i = 0; func inc() { i = i + 1; return i; } return inc; }
var f = make();
print f();
print f();
print f();`
		result, err := v.Interpret(src)
		require.NoError(t, err)
		assert.Equal(t, Ok, result)
		assert.Equal(t, "1\n2\n3\n", stdout.String())
	})

	t.Run("class with init and super", func(t *testing.T) {
		var stdout bytes.Buffer
		v := New(Options{Stdout: &stdout, Stderr: &stdout})
		src := `class A { init(x) { this.x = x; } who() { return "A"; } }
class B < A { who() { return super.who() + "B"; } }
print B(7).who();`
		result, err := v.Interpret(src)
		require.NoError(t, err)
		assert.Equal(t, Ok, result)
		assert.Equal(t, "AB\n", stdout.String())
	})

	t.Run("list and for-in", func(t *testing.T) {
		var stdout bytes.Buffer
		v := New(Options{Stdout: &stdout, Stderr: &stdout})
		src := `var s = 0; for x in [1,2,3,4] { s = s + x; } print s;`
		result, err := v.Interpret(src)
		require.NoError(t, err)
		assert.Equal(t, Ok, result)
		assert.Equal(t, "10\n", stdout.String())
	})

	t.Run("dict round-trip", func(t *testing.T) {
		var stdout bytes.Buffer
		v := New(Options{Stdout: &stdout, Stderr: &stdout})
		src := `var d = dict { "a" => 1, "b" => 2 }; d["c"] = 3; print d["a"] + d["c"];`
		result, err := v.Interpret(src)
		require.NoError(t, err)
		assert.Equal(t, Ok, result)
		assert.Equal(t, "4\n", stdout.String())
	})

	t.Run("unwrapping none is a runtime error", func(t *testing.T) {
		var stdout bytes.Buffer
		v := New(Options{Stdout: &stdout, Stderr: &stdout})
		result, err := v.Interpret(`none.unwrap();`)
		assert.Equal(t, RuntimeErrorResult, result)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Attempted to unwrap `none`")
	})
}
