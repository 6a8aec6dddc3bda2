package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCoerce_IntWidthsNormalizeToInt64(t *testing.T) {
	tcs := []struct {
		name string
		in   any
		want int64
	}{
		{"int", int(42), 42},
		{"int8", int8(-7), -7},
		{"int16", int16(1024), 1024},
		{"int32", int32(70000), 70000},
		{"int64", int64(1 << 40), 1 << 40},
		{"uint", uint(9), 9},
		{"uint8", uint8(255), 255},
		{"uint16", uint16(65535), 65535},
		{"uint32", uint32(1 << 20), 1 << 20},
		{"uint64", uint64(12), 12},
		{"whole float64", float64(3), 3},
		{"whole float32", float32(8), 8},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Int.Coerce(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCoerce_IntRejections(t *testing.T) {
	tcs := []struct {
		name string
		in   any
	}{
		{"fractional float", 3.5},
		{"string", "42"},
		{"bool", true},
		{"uint64 overflow", uint64(1) << 63},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Int.Coerce(tc.in)
			require.Error(t, err)

			var coercionErr CoercionError
			require.ErrorAs(t, err, &coercionErr)
			require.Equal(t, PrimitiveInt, coercionErr.Primitive())
		})
	}
}

func TestCoerce_Float(t *testing.T) {
	got, err := Float.Coerce(float32(1.5))
	require.NoError(t, err)
	require.Equal(t, float64(1.5), got)

	got, err = Float.Coerce(int64(2))
	require.NoError(t, err)
	require.Equal(t, float64(2), got)
}

func TestCoerce_TimeFromRFC3339(t *testing.T) {
	got, err := Time.Coerce("2024-05-01T10:30:00Z")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC), got)

	_, err = Time.Coerce("yesterday")
	var coercionErr CoercionError
	require.ErrorAs(t, err, &coercionErr)
	require.Equal(t, PrimitiveTime, coercionErr.Primitive())
	require.Equal(t, "yesterday", coercionErr.Value())
}

func TestCoerce_NilRequiresOptional(t *testing.T) {
	_, err := String.Coerce(nil)
	require.Error(t, err)

	got, err := String.Optional().Coerce(nil)
	require.NoError(t, err)
	require.Nil(t, got)

	// Any always accepts nil.
	got, err = Any.Coerce(nil)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCoerce_StringAndBytes(t *testing.T) {
	got, err := String.Coerce([]byte("raw"))
	require.NoError(t, err)
	require.Equal(t, "raw", got)

	got, err = Bytes.Coerce("raw")
	require.NoError(t, err)
	require.Equal(t, []byte("raw"), got)
}

func TestOptionalDoesNotMutateBase(t *testing.T) {
	opt := Int.Optional()
	require.True(t, opt.IsOptional())
	require.False(t, Int.IsOptional())
	require.Equal(t, Int.Primitive(), opt.Primitive())
}

func TestDefinitionRoundTrip(t *testing.T) {
	for _, typ := range []Type{Any, Bool, Int, Float, String, Time, Bytes, Int.Optional()} {
		parsed, err := typeFromDefinition(typ.Definition())
		require.NoError(t, err)
		require.Equal(t, typ, parsed)
	}
}

func TestCoercionErrorIsDetectable(t *testing.T) {
	_, err := Bool.Coerce("yes")
	require.True(t, errors.As(err, &CoercionError{}))
}
