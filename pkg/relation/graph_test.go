package relation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relmap/relmap/pkg/dataset"
	"github.com/relmap/relmap/pkg/schema"
	"github.com/relmap/relmap/pkg/tuple"
)

func tasksOf(t *testing.T, row tuple.Tuple) []tuple.Tuple {
	t.Helper()
	nested, ok := row["tasks"].([]tuple.Tuple)
	require.True(t, ok, "expected merged tasks on %v", row)
	return nested
}

func TestCombineHasMany(t *testing.T) {
	env := newTestEnv(t)
	graph, err := env.rel(t, "users").Combine("tasks")
	require.NoError(t, err)

	loaded, err := graph.Call(t.Context())
	require.NoError(t, err)
	require.Equal(t, 3, loaded.Len())

	jane, joe, jade := loaded.Tuples()[0], loaded.Tuples()[1], loaded.Tuples()[2]
	require.Equal(t,
		[]any{"write docs", "review changes"},
		tuple.Pluck(tasksOf(t, jane), "title"),
	)
	require.Empty(t, tasksOf(t, joe))
	require.NotNil(t, joe["tasks"], "childless parents get an empty group, not nil")
	require.Equal(t, []any{"fix bug"}, tuple.Pluck(tasksOf(t, jade), "title"))
}

func TestCombineBelongsTo(t *testing.T) {
	env := newTestEnv(t)
	graph, err := env.rel(t, "users").Combine("team")
	require.NoError(t, err)

	loaded, err := graph.Call(t.Context())
	require.NoError(t, err)

	jane := loaded.Tuples()[0]
	team, ok := jane["team"].(tuple.Tuple)
	require.True(t, ok)
	require.Equal(t, "core", team["title"])

	joe := loaded.Tuples()[1]
	require.Contains(t, joe, "team")
	require.Nil(t, joe["team"], "a missing parent row merges as nil")
}

func TestCombineHasOne(t *testing.T) {
	env := newTestEnv(t)
	graph, err := env.rel(t, "users").Combine("profile")
	require.NoError(t, err)

	loaded, err := graph.Call(t.Context())
	require.NoError(t, err)

	jane := loaded.Tuples()[0]
	profile, ok := jane["profile"].(tuple.Tuple)
	require.True(t, ok)
	require.Equal(t, "gopher", profile["bio"])
	require.Nil(t, loaded.Tuples()[1]["profile"])
	require.Equal(t, "rubyist", loaded.Tuples()[2]["profile"].(tuple.Tuple)["bio"])
}

func TestCombineManyToMany(t *testing.T) {
	env := newTestEnv(t)
	graph, err := env.rel(t, "tasks").Combine("tags")
	require.NoError(t, err)

	loaded, err := graph.Call(t.Context())
	require.NoError(t, err)

	rows := loaded.Tuples()
	first := rows[0]["tags"].([]tuple.Tuple)
	require.Equal(t, []any{"urgent", "later"}, tuple.Pluck(first, "label"))

	second := rows[1]["tags"].([]tuple.Tuple)
	require.Equal(t, []any{"urgent"}, tuple.Pluck(second, "label"))

	third := rows[2]["tags"].([]tuple.Tuple)
	require.Empty(t, third)
	require.NotNil(t, rows[2]["tags"])
}

func TestCombineNestedTree(t *testing.T) {
	env := newTestEnv(t)
	graph, err := env.rel(t, "users").Combine(Nested{Name: "tasks", Children: []any{"tags"}})
	require.NoError(t, err)

	loaded, err := graph.Call(t.Context())
	require.NoError(t, err)

	janeTasks := tasksOf(t, loaded.Tuples()[0])
	require.Len(t, janeTasks, 2)
	require.Equal(t,
		[]any{"urgent", "later"},
		tuple.Pluck(janeTasks[0]["tags"].([]tuple.Tuple), "label"),
	)
	require.Empty(t, janeTasks[1]["tags"].([]tuple.Tuple))

	jadeTasks := tasksOf(t, loaded.Tuples()[2])
	require.Equal(t,
		[]any{"urgent"},
		tuple.Pluck(jadeTasks[0]["tags"].([]tuple.Tuple), "label"),
	)
}

func TestCombineMapArgument(t *testing.T) {
	env := newTestEnv(t)

	graph, err := env.rel(t, "users").Combine(map[string]any{"tasks": "tags"})
	require.NoError(t, err)

	loaded, err := graph.Call(t.Context())
	require.NoError(t, err)
	janeTasks := tasksOf(t, loaded.Tuples()[0])
	require.Len(t, janeTasks[0]["tags"].([]tuple.Tuple), 2)
}

func TestCombineMapKeysIterateSorted(t *testing.T) {
	env := newTestEnv(t)

	graph, err := env.rel(t, "users").Combine(map[string]any{"team": nil, "profile": nil})
	require.NoError(t, err)
	require.Equal(t, []string{"profile", "team"}, graph.Nodes())
}

func TestCombineSequenceFlattens(t *testing.T) {
	env := newTestEnv(t)
	users := env.rel(t, "users")

	graph, err := users.Combine([]any{"team", Nested{Name: "tasks"}})
	require.NoError(t, err)
	require.Equal(t, []string{"team", "tasks"}, graph.Nodes())

	graph, err = users.Combine([]string{"profile", "team"})
	require.NoError(t, err)
	require.Equal(t, []string{"profile", "team"}, graph.Nodes())
}

func TestCombineArgumentOrderPreserved(t *testing.T) {
	env := newTestEnv(t)

	graph, err := env.rel(t, "users").Combine("team", "tasks", "profile")
	require.NoError(t, err)
	require.Equal(t, []string{"team", "tasks", "profile"}, graph.Nodes())
}

func TestCombineExtendsWithoutMutation(t *testing.T) {
	env := newTestEnv(t)

	base, err := env.rel(t, "users").Combine("team")
	require.NoError(t, err)
	extended, err := base.Combine("tasks")
	require.NoError(t, err)

	require.Equal(t, []string{"team"}, base.Nodes())
	require.Equal(t, []string{"team", "tasks"}, extended.Nodes())
}

func TestCombineUnsupportedArgument(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.rel(t, "users").Combine(42)
	target := UnsupportedCombineArgumentError{}
	require.ErrorAs(t, err, &target)
	require.Equal(t, "int", target.ArgumentType())
}

func TestCombineUnknownAssociation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.rel(t, "users").Combine("nope")
	require.ErrorAs(t, err, &schema.AssociationNotFoundError{})
}

func TestCombineUnregisteredTargetFailsBeforeLoading(t *testing.T) {
	env := newTestEnv(t)
	lonely := staticResolver{}
	users := New(env.gateway.Dataset("users"), usersSchema(), WithResolver(lonely))
	lonely["users"] = users

	_, err := users.Combine("tasks")
	require.ErrorContains(t, err, "not registered")
}

func TestCombineRequiresFinalizedSchema(t *testing.T) {
	env := newTestEnv(t)
	unfinalized := schema.MustDefine("users",
		[]schema.Attribute{
			schema.NewAttribute("id", schema.Int, schema.PrimaryKey()),
			schema.NewAttribute("name", schema.String),
		},
		schema.WithAssociations(schema.HasMany("tasks")),
	)
	users := New(env.gateway.Dataset("users"), unfinalized, WithResolver(env.resolver))

	_, err := users.Combine("tasks")
	require.ErrorAs(t, err, &schema.SchemaNotFinalizedError{})
}

func TestGraphFromResolvedAssociations(t *testing.T) {
	env := newTestEnv(t)
	users := env.rel(t, "users")

	tasks, err := users.Schema().Associations().Get("tasks")
	require.NoError(t, err)
	team, err := users.Schema().Associations().Get("team")
	require.NoError(t, err)

	graph, err := users.Graph(tasks, team)
	require.NoError(t, err)
	require.Equal(t, []string{"tasks", "team"}, graph.Nodes())

	loaded, err := graph.Call(t.Context())
	require.NoError(t, err)

	combined, err := users.Combine("tasks", "team")
	require.NoError(t, err)
	viaCombine, err := combined.Call(t.Context())
	require.NoError(t, err)
	require.Equal(t, viaCombine.Tuples(), loaded.Tuples())
}

func TestGraphRestrictNarrowsChildLoads(t *testing.T) {
	env := newTestEnv(t)
	graph, err := env.rel(t, "users").Combine("tasks")
	require.NoError(t, err)

	loaded, err := graph.Restrict(dataset.Criteria{"id": int64(3)}).Call(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())
	require.Equal(t, []any{"fix bug"}, tuple.Pluck(tasksOf(t, loaded.Tuples()[0]), "title"))
}

func TestGraphOrder(t *testing.T) {
	env := newTestEnv(t)
	graph, err := env.rel(t, "users").Combine("team")
	require.NoError(t, err)

	loaded, err := graph.Order("name").Call(t.Context())
	require.NoError(t, err)
	require.Equal(t, []any{"Jade", "Jane", "Joe"}, loaded.Pluck("name"))
}

func TestGraphEach(t *testing.T) {
	env := newTestEnv(t)
	graph, err := env.rel(t, "users").Combine("tasks")
	require.NoError(t, err)

	var counts []int
	for v, err := range graph.Each(t.Context()) {
		require.NoError(t, err)
		counts = append(counts, len(v.(tuple.Tuple)["tasks"].([]tuple.Tuple)))
	}
	require.Equal(t, []int{2, 0, 1}, counts)
}

type taggedTask struct {
	ID    int64
	Title string
	Tags  []struct {
		ID    int64
		Label string
	}
}

type teamModel struct {
	ID    int64
	Title string
}

type userGraph struct {
	ID    int64
	Name  string
	Tasks []taggedTask
	Team  *teamModel
}

func TestGraphMapToNestedModels(t *testing.T) {
	env := newTestEnv(t)
	graph, err := env.rel(t, "users").Combine(
		Nested{Name: "tasks", Children: []any{"tags"}},
		"team",
	)
	require.NoError(t, err)

	values, err := graph.MapTo(userGraph{}).All(t.Context())
	require.NoError(t, err)
	require.Len(t, values, 3)

	jane := values[0].(userGraph)
	require.Equal(t, "Jane", jane.Name)
	require.Len(t, jane.Tasks, 2)
	require.Equal(t, "write docs", jane.Tasks[0].Title)
	require.Len(t, jane.Tasks[0].Tags, 2)
	require.Equal(t, "urgent", jane.Tasks[0].Tags[0].Label)
	require.NotNil(t, jane.Team)
	require.Equal(t, "core", jane.Team.Title)

	joe := values[1].(userGraph)
	require.Nil(t, joe.Team)
	require.Empty(t, joe.Tasks)
}

func TestCombineOverrideDispatchesToPreloader(t *testing.T) {
	env := newTestEnv(t)
	overridden := schema.MustDefine("users",
		[]schema.Attribute{
			schema.NewAttribute("id", schema.Int, schema.PrimaryKey()),
			schema.NewAttribute("name", schema.String),
			schema.NewAttribute("team_id", schema.Int.Optional(), schema.ForeignKey()),
		},
		schema.WithAssociations(
			schema.BelongsTo("team", schema.WithTarget("teams"), schema.WithOverride()),
		),
	).Finalize()

	var calls int
	teams := env.rel(t, "teams").With(WithPreloader(
		func(ctx context.Context, target *Relation, assoc schema.Association, parent *Loaded) (*Loaded, error) {
			calls++
			loaded, err := target.Restrict(dataset.Criteria{"id": parent.Pluck("team_id")}).Call(ctx)
			if err != nil {
				return nil, err
			}
			marked := make([]tuple.Tuple, 0, loaded.Len())
			for _, row := range loaded.Tuples() {
				m := row.Clone()
				m["loaded_by"] = "custom"
				marked = append(marked, m)
			}
			return NewLoaded(target.Name(), marked), nil
		},
	))
	resolver := staticResolver{"teams": teams}
	users := New(env.gateway.Dataset("users"), overridden, WithResolver(resolver))

	graph, err := users.Combine("team")
	require.NoError(t, err)
	loaded, err := graph.Call(t.Context())
	require.NoError(t, err)

	require.Equal(t, 1, calls)
	jane := loaded.Tuples()[0]
	require.Equal(t, "custom", jane["team"].(tuple.Tuple)["loaded_by"])
	require.Nil(t, loaded.Tuples()[1]["team"], "rows the strategy did not produce merge as nil")
}

func TestCombineOverrideWithoutPreloader(t *testing.T) {
	env := newTestEnv(t)
	overridden := schema.MustDefine("users",
		[]schema.Attribute{
			schema.NewAttribute("id", schema.Int, schema.PrimaryKey()),
			schema.NewAttribute("team_id", schema.Int.Optional(), schema.ForeignKey()),
		},
		schema.WithAssociations(
			schema.BelongsTo("team", schema.WithTarget("teams"), schema.WithOverride()),
		),
	).Finalize()
	users := New(env.gateway.Dataset("users"), overridden, WithResolver(env.resolver))

	_, err := users.Combine("team")
	require.ErrorAs(t, err, &NoPreloaderError{}, "the missing strategy must surface before any loading")
}

func TestCombineOverrideRejectsNestedCombines(t *testing.T) {
	env := newTestEnv(t)
	overridden := schema.MustDefine("users",
		[]schema.Attribute{
			schema.NewAttribute("id", schema.Int, schema.PrimaryKey()),
			schema.NewAttribute("team_id", schema.Int.Optional(), schema.ForeignKey()),
		},
		schema.WithAssociations(
			schema.BelongsTo("team", schema.WithTarget("teams"), schema.WithOverride()),
		),
	).Finalize()
	users := New(env.gateway.Dataset("users"), overridden, WithResolver(env.resolver))

	_, err := users.Combine(Nested{Name: "team", Children: []any{"members"}})
	target := NestedOverrideError{}
	require.ErrorAs(t, err, &target)
	require.Equal(t, "team", target.AssociationName())
	require.ErrorContains(t, err, "does not take nested combines")
}

func TestEagerLoadReturnsCurriedLoader(t *testing.T) {
	env := newTestEnv(t)
	users := env.rel(t, "users")
	assoc, err := users.Schema().Associations().Get("tasks")
	require.NoError(t, err)

	loader, err := users.EagerLoad(assoc)
	require.NoError(t, err)
	require.Equal(t, 1, loader.Remaining())

	parent, err := users.Call(t.Context())
	require.NoError(t, err)
	children, err := loader.Load(t.Context(), parent)
	require.NoError(t, err)
	require.Equal(t, 3, children.Len())
}
