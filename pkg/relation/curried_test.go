package relation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relmap/relmap/pkg/tuple"
)

func sumOp(name string, arity int) *Curried {
	return NewCurried(name, arity, func(_ context.Context, args []any) (*Loaded, error) {
		var sum int64
		for _, a := range args {
			sum += a.(int64)
		}
		return NewLoaded(name, []tuple.Tuple{{"sum": sum}}), nil
	})
}

func TestCurriedBindAccumulates(t *testing.T) {
	op := sumOp("sum", 3)
	require.Equal(t, 3, op.Arity())
	require.Equal(t, 3, op.Remaining())
	require.False(t, op.Saturated())

	bound, err := op.Bind(int64(1), int64(2))
	require.NoError(t, err)
	require.Equal(t, 1, bound.Remaining())
	require.Equal(t, []any{int64(1), int64(2)}, bound.Bound())

	require.Equal(t, 3, op.Remaining(), "binding must not mutate the receiver")
}

func TestCurriedCallReturnsPartialUntilSaturated(t *testing.T) {
	op := sumOp("sum", 2)

	partial, err := op.Call(t.Context(), int64(40))
	require.NoError(t, err)
	curried, ok := partial.(*Curried)
	require.True(t, ok)

	result, err := curried.Call(t.Context(), int64(2))
	require.NoError(t, err)
	loaded := result.(*Loaded)
	require.Equal(t, int64(42), loaded.Tuples()[0]["sum"])
}

func TestCurriedZeroArityExecutesImmediately(t *testing.T) {
	op := sumOp("none", 0)

	result, err := op.Call(t.Context())
	require.NoError(t, err)
	require.IsType(t, &Loaded{}, result)
}

func TestCurriedOverApplication(t *testing.T) {
	op := sumOp("sum", 1)

	_, err := op.Call(t.Context(), int64(1), int64(2))
	require.ErrorContains(t, err, "takes 1 argument(s), got 2")
}

func TestCurriedPartialsAreIndependent(t *testing.T) {
	op := sumOp("sum", 2)
	base, err := op.Bind(int64(10))
	require.NoError(t, err)

	a, err := base.Load(t.Context(), int64(1))
	require.NoError(t, err)
	b, err := base.Load(t.Context(), int64(2))
	require.NoError(t, err)

	require.Equal(t, int64(11), a.Tuples()[0]["sum"])
	require.Equal(t, int64(12), b.Tuples()[0]["sum"])
}

func TestCurriedLoadRequiresSaturation(t *testing.T) {
	op := sumOp("sum", 2)

	_, err := op.Load(t.Context(), int64(1))
	require.ErrorContains(t, err, "still awaits 1 argument(s)")
}
