package relation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relmap/relmap/pkg/dataset"
	"github.com/relmap/relmap/pkg/mapping"
	"github.com/relmap/relmap/pkg/tuple"
)

func pluckNames(values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v.(tuple.Tuple)["name"]
	}
	return out, nil
}

func upcase(values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = strings.ToUpper(v.(string))
	}
	return out, nil
}

func TestMapWithAppliesStagesInOrder(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.registry.Register("names", mapping.Func(pluckNames)))
	require.NoError(t, env.registry.Register("upcase", mapping.Func(upcase)))

	values, err := env.rel(t, "users").MapWith("names", "upcase").All(t.Context())
	require.NoError(t, err)
	require.Equal(t, []any{"JANE", "JOE", "JADE"}, values)
}

func TestMapWithChains(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.registry.Register("names", mapping.Func(pluckNames)))
	require.NoError(t, env.registry.Register("upcase", mapping.Func(upcase)))

	pipeline := env.rel(t, "users").MapWith("names").MapWith("upcase")
	require.Equal(t, []string{"names", "upcase"}, pipeline.Stages())

	values, err := pipeline.All(t.Context())
	require.NoError(t, err)
	require.Equal(t, []any{"JANE", "JOE", "JADE"}, values)
}

func TestMapWithMissingMapperFailsAtCall(t *testing.T) {
	env := newTestEnv(t)

	pipeline := env.rel(t, "users").MapWith("ghost")
	_, err := pipeline.Call(t.Context())
	target := mapping.MapperNotFoundError{}
	require.ErrorAs(t, err, &target)
	require.Equal(t, "ghost", target.NotFoundMapperName())
}

func TestMapWithLeavesSourceUntouched(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.registry.Register("names", mapping.Func(pluckNames)))
	users := env.rel(t, "users")

	_, err := users.MapWith("names").All(t.Context())
	require.NoError(t, err)

	plain, err := users.All(t.Context())
	require.NoError(t, err)
	require.IsType(t, tuple.Tuple{}, plain[0])
}

func TestPipeQueuesInlineMapper(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.registry.Register("names", mapping.Func(pluckNames)))

	pipeline := env.rel(t, "users").MapWith("names").Pipe(mapping.Func(upcase))
	require.Equal(t, []string{"names", "-"}, pipeline.Stages())

	values, err := pipeline.All(t.Context())
	require.NoError(t, err)
	require.Equal(t, []any{"JANE", "JOE", "JADE"}, values)
}

func TestCompositeOverGraph(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.registry.Register("task_counts", mapping.Func(func(values []any) ([]any, error) {
		out := make([]any, len(values))
		for i, v := range values {
			out[i] = len(v.(tuple.Tuple)["tasks"].([]tuple.Tuple))
		}
		return out, nil
	})))

	graph, err := env.rel(t, "users").Combine("tasks")
	require.NoError(t, err)

	values, err := graph.MapWith("task_counts").All(t.Context())
	require.NoError(t, err)
	require.Equal(t, []any{2, 0, 1}, values)
}

func TestCompositeKeepsTuplesAlongsideValues(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.registry.Register("names", mapping.Func(pluckNames)))

	loaded, err := env.rel(t, "users").MapWith("names").Call(t.Context())
	require.NoError(t, err)
	require.Equal(t, 3, loaded.Len())
	require.Equal(t, []any{"Jane", "Joe", "Jade"}, loaded.Collection())
	require.Equal(t, "Jane", loaded.Tuples()[0]["name"], "the pre-pipeline tuples stay reachable")
}

func keepActive(values []any) ([]any, error) {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if row, ok := v.(tuple.Tuple); ok && row["status"] == "active" {
			out = append(out, row)
		}
	}
	return out, nil
}

func TestCompositeMapperMayFilterEverything(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.registry.Register("actives", mapping.Func(keepActive)))

	retired := env.rel(t, "users").Restrict(dataset.Criteria{"status": "retired"})
	loaded, err := retired.MapWith("actives").Call(t.Context())
	require.NoError(t, err)

	require.Equal(t, 1, loaded.Len(), "the retired row still loads")
	require.Empty(t, loaded.Collection())
	require.True(t, loaded.Empty())
	require.Nil(t, loaded.First())

	_, err = loaded.One()
	require.ErrorContains(t, err, "loaded 0 values")
}

func TestCompositeNilMapperOutputWins(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.registry.Register("none", mapping.Func(func([]any) ([]any, error) {
		return nil, nil
	})))

	loaded, err := env.rel(t, "users").MapWith("none").Call(t.Context())
	require.NoError(t, err)
	require.Equal(t, 3, loaded.Len())
	require.Empty(t, loaded.Collection(), "a nil mapper result empties the collection, never falls back to tuples")
	require.True(t, loaded.Empty())
}

func TestCompositeEach(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.registry.Register("names", mapping.Func(pluckNames)))

	var names []any
	for v, err := range env.rel(t, "users").MapWith("names").Each(t.Context()) {
		require.NoError(t, err)
		names = append(names, v)
	}
	require.Equal(t, []any{"Jane", "Joe", "Jade"}, names)
}
