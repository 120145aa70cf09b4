package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// run compiles and interprets source, returning whatever it wrote to
// stdout and the error (if any) Interpret returned.
func run(t *testing.T, source string) (string, error) {
	t.Helper()
	v := New(zap.NewNop().Sugar())
	var out bytes.Buffer
	v.Stdout = &out
	err := v.Interpret(source, "test")
	return out.String(), err
}

func TestArithmeticPrecedence(t *testing.T) {
	out, err := run(t, `print(2 + 3 * 4);`)
	require.NoError(t, err)
	assert.Equal(t, "14\n", out)
}

func TestClosuresCaptureByReference(t *testing.T) {
	out, err := run(t, `
		def make() { var i = 0; return def() { i = i + 1; return i; }; }
		var c = make(); print(c()); print(c()); print(c());
	`)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestInheritanceAndSuper(t *testing.T) {
	out, err := run(t, `
		class A { greet() { return "A"; } }
		class B < A { greet() { return super.greet() + "B"; } }
		print(B().greet());
	`)
	require.NoError(t, err)
	assert.Equal(t, "AB\n", out)
}

func TestStringInterningEquality(t *testing.T) {
	out, err := run(t, `print("hel" + "lo" == "hello");`)
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)
}

func TestUndefinedVariableIsRuntimeError(t *testing.T) {
	out, err := run(t, `print(missing);`)
	assert.Empty(t, out)
	require.Error(t, err)
	rerr, ok := err.(*RuntimeError)
	require.True(t, ok, "expected *RuntimeError, got %T", err)
	assert.True(t, strings.Contains(rerr.Error(), "Undefined variable 'missing'"))
}

func TestFiberRoundTrip(t *testing.T) {
	out, err := run(t, `
		var f = Fiber.new(def(x) { var y = Fiber.yield(x + 1); return y * 2; });
		print(f.call(10)); print(f.call(5));
	`)
	require.NoError(t, err)
	assert.Equal(t, "11\n10\n", out)
}

func TestStackBalanceAfterTopLevelStatement(t *testing.T) {
	v := New(zap.NewNop().Sugar())
	var out bytes.Buffer
	v.Stdout = &out
	err := v.Interpret(`var x = 1; var y = 2; print(x + y);`, "test")
	require.NoError(t, err)
	assert.Equal(t, 0, v.main.StackTop)
}

func TestDivideByZeroIsRuntimeError(t *testing.T) {
	_, err := run(t, `var x = 10; var y = 0; print(x / y);`)
	require.Error(t, err)
	_, ok := err.(*RuntimeError)
	assert.True(t, ok)
}

func TestListAndDictLiterals(t *testing.T) {
	out, err := run(t, `
		var xs = [1, 2, 3];
		print(xs[1]);
		var d = {"a": 1, "b": 2};
		print(d["b"]);
	`)
	require.NoError(t, err)
	assert.Equal(t, "2\n2\n", out)
}

func TestTraitMixin(t *testing.T) {
	out, err := run(t, `
		trait Greeter { hello() { return "hi"; } }
		class Person { use Greeter; }
		print(Person().hello());
	`)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out)
}

func TestTraitCannotBeInstantiated(t *testing.T) {
	_, err := run(t, `
		trait Greeter { hello() { return "hi"; } }
		Greeter();
	`)
	require.Error(t, err)
	rerr, ok := err.(*RuntimeError)
	require.True(t, ok, "expected *RuntimeError, got %T", err)
	assert.Contains(t, rerr.Error(), "Cannot instantiate trait 'Greeter'")
}

func TestAbstractClassCannotBeInstantiated(t *testing.T) {
	_, err := run(t, `
		abstract class Shape {
			abstract area();
		}
		Shape();
	`)
	require.Error(t, err)
	rerr, ok := err.(*RuntimeError)
	require.True(t, ok, "expected *RuntimeError, got %T", err)
	assert.Contains(t, rerr.Error(), "Cannot instantiate abstract class 'Shape'")
}

func TestConcreteSubclassMustOverrideAbstractMethod(t *testing.T) {
	_, err := run(t, `
		abstract class Shape {
			abstract area();
		}
		class Square < Shape {
			init(side) { this.side = side; }
		}
		Square(2);
	`)
	require.Error(t, err)
	rerr, ok := err.(*RuntimeError)
	require.True(t, ok, "expected *RuntimeError, got %T", err)
	assert.Contains(t, rerr.Error(), "does not implement abstract method 'area'")
}

func TestConcreteSubclassOverridingAbstractMethodWorks(t *testing.T) {
	out, err := run(t, `
		abstract class Shape {
			abstract area();
		}
		class Square < Shape {
			init(side) { this.side = side; }
			area() { return this.side * this.side; }
		}
		print(Square(3).area());
	`)
	require.NoError(t, err)
	assert.Equal(t, "9\n", out)
}

func TestClassConstant(t *testing.T) {
	out, err := run(t, `
		class Circle {
			const PI = 3;
			init(r) { this.r = r; }
		}
		print(Circle(2).r);
	`)
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestResultOkUnwrapAndSuccess(t *testing.T) {
	out, err := run(t, `
		var r = Result.Ok(42);
		print(r.success());
		print(r.unwrap());
	`)
	require.NoError(t, err)
	assert.Equal(t, "true\n42\n", out)
}

func TestResultErrorUnwrapIsRuntimeError(t *testing.T) {
	_, err := run(t, `
		var r = Result.Error("boom");
		r.unwrap();
	`)
	require.Error(t, err)
	rerr, ok := err.(*RuntimeError)
	require.True(t, ok, "expected *RuntimeError, got %T", err)
	assert.Contains(t, rerr.Error(), "boom")
}

func TestResultMatchDispatchesToTheRightBranch(t *testing.T) {
	out, err := run(t, `
		def describe(r) {
			return r.match(def(v) { return "ok:" + v; }, def(e) { return "err:" + e; });
		}
		print(describe(Result.Ok("good")));
		print(describe(Result.Error("bad")));
	`)
	require.NoError(t, err)
	assert.Equal(t, "ok:good\nerr:bad\n", out)
}
