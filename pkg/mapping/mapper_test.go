package mapping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relmap/relmap/pkg/tuple"
)

type account struct {
	ID        int64
	FullName  string `rel:"name"`
	Age       int
	Secret    string `rel:"-"`
	CreatedAt time.Time
	hidden    string
}

func TestStructMapperBindsTagsAndSnakeCase(t *testing.T) {
	m, err := NewStructMapper(account{})
	require.NoError(t, err)

	out, err := m.Call([]any{tuple.Tuple{
		"id":         int64(7),
		"name":       "Jane",
		"age":        int64(40),
		"secret":     "no",
		"created_at": time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}})
	require.NoError(t, err)
	require.Len(t, out, 1)

	got := out[0].(account)
	require.Equal(t, int64(7), got.ID)
	require.Equal(t, "Jane", got.FullName)
	require.Equal(t, 40, got.Age, "numeric widths convert to the field type")
	require.Empty(t, got.Secret, `rel:"-" skips the field`)
	require.Equal(t, 2024, got.CreatedAt.Year())
	require.Empty(t, got.hidden)
}

func TestStructMapperPointerModel(t *testing.T) {
	m, err := NewStructMapper(&account{})
	require.NoError(t, err)

	out, err := m.Call([]any{tuple.Tuple{"id": int64(1)}})
	require.NoError(t, err)
	require.IsType(t, &account{}, out[0])
	require.Equal(t, int64(1), out[0].(*account).ID)
}

func TestStructMapperOptionalPointerField(t *testing.T) {
	type row struct {
		ID   int64
		Note *string
	}
	m, err := NewStructMapper(row{})
	require.NoError(t, err)

	out, err := m.Call([]any{
		tuple.Tuple{"id": int64(1), "note": "hi"},
		tuple.Tuple{"id": int64(2), "note": nil},
		tuple.Tuple{"id": int64(3)},
	})
	require.NoError(t, err)

	require.NotNil(t, out[0].(row).Note)
	require.Equal(t, "hi", *out[0].(row).Note)
	require.Nil(t, out[1].(row).Note, "nil values leave the field zero")
	require.Nil(t, out[2].(row).Note, "absent keys leave the field zero")
}

func TestStructMapperRejectsStringNumericConversion(t *testing.T) {
	type row struct{ ID int64 }
	m, err := NewStructMapper(row{})
	require.NoError(t, err)

	_, err = m.Call([]any{tuple.Tuple{"id": "7"}})
	require.ErrorContains(t, err, "cannot assign")
}

func TestStructMapperRejectsNonTuples(t *testing.T) {
	m, err := NewStructMapper(account{})
	require.NoError(t, err)

	_, err = m.Call([]any{42})
	require.ErrorContains(t, err, "expects tuples")
}

type pet struct {
	Name string
}

type owner struct {
	Name    string
	Pet     pet
	Buddy   *pet
	Pets    []pet
	PtrPets []*pet `rel:"pets"`
}

func TestStructMapperNestedBindings(t *testing.T) {
	m, err := NewStructMapper(owner{})
	require.NoError(t, err)

	out, err := m.Call([]any{tuple.Tuple{
		"name":  "Jane",
		"pet":   tuple.Tuple{"name": "Rex"},
		"buddy": tuple.Tuple{"name": "Fido"},
		"pets":  []tuple.Tuple{{"name": "Rex"}, {"name": "Fido"}},
	}})
	require.NoError(t, err)

	got := out[0].(owner)
	require.Equal(t, "Rex", got.Pet.Name)
	require.NotNil(t, got.Buddy)
	require.Equal(t, "Fido", got.Buddy.Name)
	require.Equal(t, []pet{{Name: "Rex"}, {Name: "Fido"}}, got.Pets)
	require.Len(t, got.PtrPets, 2)
	require.Equal(t, "Fido", got.PtrPets[1].Name)
}

func TestStructMapperNestedRejectsScalar(t *testing.T) {
	m, err := NewStructMapper(owner{})
	require.NoError(t, err)

	_, err = m.Call([]any{tuple.Tuple{"pet": "Rex"}})
	require.ErrorContains(t, err, "field Pet")
}

func TestStructMapperRejectsNonStructModels(t *testing.T) {
	_, err := NewStructMapper(42)
	require.ErrorContains(t, err, "must be a struct")

	_, err = NewStructMapper(nil)
	require.ErrorContains(t, err, "must not be nil")
}

func TestFuncAdapter(t *testing.T) {
	double := Func(func(values []any) ([]any, error) {
		out := make([]any, len(values))
		for i, v := range values {
			out[i] = v.(int) * 2
		}
		return out, nil
	})

	out, err := double.Call([]any{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, []any{2, 4, 6}, out)
}

func TestToSnake(t *testing.T) {
	tcs := []struct {
		in   string
		want string
	}{
		{"ID", "id"},
		{"FullName", "full_name"},
		{"CreatedAt", "created_at"},
		{"UserID", "user_id"},
		{"URLPath", "url_path"},
		{"A", "a"},
	}
	for _, tc := range tcs {
		require.Equal(t, tc.want, toSnake(tc.in), "toSnake(%q)", tc.in)
	}
}

func TestExportedName(t *testing.T) {
	tcs := []struct {
		in   string
		want string
	}{
		{"id", "ID"},
		{"full_name", "FullName"},
		{"user_id", "UserID"},
		{"api_url", "APIURL"},
		{"name", "Name"},
	}
	for _, tc := range tcs {
		require.Equal(t, tc.want, exportedName(tc.in), "exportedName(%q)", tc.in)
	}
}
