package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConstraints = []UniqueConstraint{
	{Label: "notion", Property: "caption"},
	{Label: "verse", Property: "caption"},
	{Label: "verse", Property: "id"},
}

// engineFactories lets every contract test run against each embedded engine.
func engineFactories() map[string]func(t *testing.T) Engine {
	return map[string]func(t *testing.T) Engine{
		"memory": func(t *testing.T) Engine {
			e := NewMemoryEngine(testConstraints...)
			t.Cleanup(func() { e.Close() })
			return e
		},
		"badger": func(t *testing.T) Engine {
			e, err := NewBadgerEngineInMemory(testConstraints...)
			require.NoError(t, err)
			t.Cleanup(func() { e.Close() })
			return e
		},
	}
}

func forEachEngine(t *testing.T, fn func(t *testing.T, e Engine)) {
	for name, factory := range engineFactories() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func mustCreate(t *testing.T, e Engine, label string, props map[string]any) PropertyMap {
	t.Helper()
	v, err := e.CreateVertex(context.Background(), label, props)
	require.NoError(t, err)
	return v
}

func TestEngine_CreateAndGetVertex(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		v := mustCreate(t, e, "notion", map[string]any{"caption": "Grace", "description": "unmerited favour"})

		assert.NotNil(t, v.ID())
		assert.Equal(t, "notion", v.Label())
		assert.Equal(t, []any{"Grace"}, v["caption"])

		got, err := e.GetVertex(ctx, v.ID())
		require.NoError(t, err)
		assert.Equal(t, v, got)

		_, err = e.GetVertex(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestEngine_NumbersSurviveRoundTrip(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		v := mustCreate(t, e, "verse", map[string]any{"caption": "Gen 1:1", "id": 1001, "chapter": 1.0})

		got, err := e.GetVertex(ctx, v.ID())
		require.NoError(t, err)
		id, _ := got.Value("id")
		chapter, _ := got.Value("chapter")
		assert.Equal(t, int64(1001), id)
		assert.Equal(t, int64(1), chapter)

		matches, err := e.FindVertices(ctx, Filter{Equals: map[string]any{"id": 1001.0}}, Page{})
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})
}

func TestEngine_RejectsUnsupportedValues(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		_, err := e.CreateVertex(context.Background(), "notion", map[string]any{"caption": []string{"a"}})
		assert.ErrorIs(t, err, ErrInvalidData)

		_, err = e.CreateVertex(context.Background(), "notion", map[string]any{"caption": "a", "weight": 0.5})
		assert.ErrorIs(t, err, ErrInvalidData)

		_, err = e.CreateVertex(context.Background(), "", map[string]any{"caption": "a"})
		assert.ErrorIs(t, err, ErrInvalidData)
	})
}

func TestEngine_UniqueConstraints(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		a := mustCreate(t, e, "notion", map[string]any{"caption": "Faith"})

		_, err := e.CreateVertex(ctx, "notion", map[string]any{"caption": "Faith"})
		assert.ErrorIs(t, err, ErrAlreadyExists)

		// Constraints are per label.
		mustCreate(t, e, "person", map[string]any{"caption": "Faith"})

		b := mustCreate(t, e, "notion", map[string]any{"caption": "Hope"})
		err = e.SetProperties(ctx, b.ID(), map[string]any{"caption": "Faith"})
		assert.ErrorIs(t, err, ErrAlreadyExists)

		// Re-setting a vertex's own value is not a conflict.
		require.NoError(t, e.SetProperties(ctx, a.ID(), map[string]any{"caption": "Faith"}))

		// Renaming releases the old value.
		require.NoError(t, e.SetProperties(ctx, a.ID(), map[string]any{"caption": "Trust"}))
		mustCreate(t, e, "notion", map[string]any{"caption": "Faith"})

		// Deleting releases values too.
		_, err = e.DeleteVertex(ctx, b.ID())
		require.NoError(t, err)
		mustCreate(t, e, "notion", map[string]any{"caption": "Hope"})
	})
}

func TestEngine_ConcurrentUniqueCreates(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		const workers = 8

		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = e.CreateVertex(ctx, "notion", map[string]any{"caption": "Race"})
			}(i)
		}
		wg.Wait()

		matches, err := e.FindVertices(ctx, Filter{
			Labels: []string{"notion"},
			Equals: map[string]any{"caption": "Race"},
		}, Page{})
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})
}

func TestEngine_SetAndRemoveProperties(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		v := mustCreate(t, e, "notion", map[string]any{"caption": "Love", "description": "old"})

		require.NoError(t, e.SetProperties(ctx, v.ID(), map[string]any{"description": "new", "quotation": "1 Cor 13"}))
		require.NoError(t, e.RemoveProperties(ctx, v.ID(), []string{"quotation", "absent"}))

		got, err := e.GetVertex(ctx, v.ID())
		require.NoError(t, err)
		assert.Equal(t, []any{"new"}, got["description"])
		_, has := got["quotation"]
		assert.False(t, has)

		assert.ErrorIs(t, e.SetProperties(ctx, "missing", map[string]any{"a": 1}), ErrNotFound)
		assert.ErrorIs(t, e.RemoveProperties(ctx, "missing", []string{"a"}), ErrNotFound)
	})
}

func TestEngine_FindVertices(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		for _, c := range []string{"Grace", "Graceful", "Mercy", "Disgrace"} {
			mustCreate(t, e, "notion", map[string]any{"caption": c})
		}
		mustCreate(t, e, "person", map[string]any{"caption": "Grace Hopper"})

		tests := []struct {
			name   string
			filter Filter
			page   Page
			want   []string
		}{
			{
				name:   "by label in insertion order",
				filter: Filter{Labels: []string{"notion"}},
				want:   []string{"Grace", "Graceful", "Mercy", "Disgrace"},
			},
			{
				name:   "contains is case sensitive",
				filter: Filter{Contains: map[string]string{"caption": "Grace"}},
				want:   []string{"Grace", "Graceful", "Grace Hopper"},
			},
			{
				name:   "within",
				filter: Filter{Within: map[string][]any{"caption": {"Mercy", "Grace", "Nope"}}},
				want:   []string{"Grace", "Mercy"},
			},
			{
				name:   "label and equals",
				filter: Filter{Labels: []string{"person"}, Equals: map[string]any{"caption": "Grace Hopper"}},
				want:   []string{"Grace Hopper"},
			},
			{
				name:   "paged",
				filter: Filter{Labels: []string{"notion"}},
				page:   Page{Offset: 1, Limit: 2},
				want:   []string{"Graceful", "Mercy"},
			},
			{
				name:   "repeated label",
				filter: Filter{Labels: []string{"notion", "notion"}, Contains: map[string]string{"caption": "race"}},
				want:   []string{"Grace", "Graceful", "Disgrace"},
			},
			{
				name:   "offset past end",
				filter: Filter{Labels: []string{"notion"}},
				page:   Page{Offset: 10},
				want:   nil,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := e.FindVertices(ctx, tt.filter, tt.page)
				require.NoError(t, err)
				var captions []string
				for _, v := range got {
					c, _ := v.Value("caption")
					captions = append(captions, c.(string))
				}
				assert.Equal(t, tt.want, captions)
			})
		}
	})
}

func TestEngine_Edges(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		a := mustCreate(t, e, "notion", map[string]any{"caption": "A"})
		b := mustCreate(t, e, "notion", map[string]any{"caption": "B"})
		c := mustCreate(t, e, "notion", map[string]any{"caption": "C"})

		_, err := e.CreateEdge(ctx, "refersTo", a.ID(), b.ID())
		require.NoError(t, err)
		_, err = e.CreateEdge(ctx, "refersTo", a.ID(), b.ID())
		require.NoError(t, err)
		_, err = e.CreateEdge(ctx, "supports", a.ID(), c.ID())
		require.NoError(t, err)
		_, err = e.CreateEdge(ctx, "refersTo", c.ID(), a.ID())
		require.NoError(t, err)

		_, err = e.CreateEdge(ctx, "refersTo", a.ID(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		n, err := e.CountEdges(ctx, "refersTo", a.ID(), b.ID())
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		out, err := e.Neighbors(ctx, a.ID(), Outgoing)
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, "refersTo", out[0].EdgeLabel)
		assert.Equal(t, b.ID(), out[0].Vertex.ID())
		assert.Equal(t, "supports", out[2].EdgeLabel)
		assert.Equal(t, c.ID(), out[2].Vertex.ID())

		in, err := e.Neighbors(ctx, a.ID(), Incoming)
		require.NoError(t, err)
		require.Len(t, in, 1)
		assert.Equal(t, c.ID(), in[0].Vertex.ID())

		n, err = e.DeleteEdges(ctx, "refersTo", a.ID(), b.ID())
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = e.DeleteEdges(ctx, "refersTo", a.ID(), b.ID())
		require.NoError(t, err)
		assert.Zero(t, n)

		_, err = e.Neighbors(ctx, "missing", Outgoing)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestEngine_DeleteVertexCascades(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		a := mustCreate(t, e, "notion", map[string]any{"caption": "A"})
		b := mustCreate(t, e, "notion", map[string]any{"caption": "B"})

		for _, pair := range [][2]any{{a.ID(), b.ID()}, {b.ID(), a.ID()}, {a.ID(), a.ID()}} {
			_, err := e.CreateEdge(ctx, "refersTo", pair[0], pair[1])
			require.NoError(t, err)
		}

		removed, err := e.DeleteVertex(ctx, a.ID())
		require.NoError(t, err)
		assert.Equal(t, 3, removed)

		in, err := e.Neighbors(ctx, b.ID(), Incoming)
		require.NoError(t, err)
		assert.Empty(t, in)

		_, err = e.DeleteVertex(ctx, a.ID())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestEngine_Closed(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		require.NoError(t, e.Close())
		_, err := e.FindVertices(context.Background(), Filter{}, Page{})
		assert.ErrorIs(t, err, ErrStorageClosed)
	})
}

func TestEngine_InvalidIDs(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		_, err := e.GetVertex(context.Background(), nil)
		assert.ErrorIs(t, err, ErrInvalidID)
		_, err = e.GetVertex(context.Background(), 42)
		assert.ErrorIs(t, err, ErrInvalidID)
	})
}

func TestBadgerEngine_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	e, err := NewBadgerEngine(dir, testConstraints...)
	require.NoError(t, err)
	a := mustCreate(t, e, "notion", map[string]any{"caption": "Peace"})
	b := mustCreate(t, e, "notion", map[string]any{"caption": "Joy"})
	_, err = e.CreateEdge(ctx, "contains", a.ID(), b.ID())
	require.NoError(t, err)
	require.NoError(t, e.Close())

	reopened, err := NewBadgerEngine(dir, testConstraints...)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetVertex(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, []any{"Peace"}, got["caption"])

	out, err := reopened.Neighbors(ctx, a.ID(), Outgoing)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, b.ID(), out[0].Vertex.ID())

	// Unique index keys persist with the data.
	_, err = reopened.CreateVertex(ctx, "notion", map[string]any{"caption": "Peace"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// New vertices sort after the old ones.
	mustCreate(t, reopened, "notion", map[string]any{"caption": "Patience"})
	all, err := reopened.FindVertices(ctx, Filter{Labels: []string{"notion"}}, Page{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	last, _ := all[2].Value("caption")
	assert.Equal(t, "Patience", last)
}

func TestMemoryEngine_Counts(t *testing.T) {
	e := NewMemoryEngine()
	defer e.Close()
	ctx := context.Background()

	a := mustCreate(t, e, "notion", map[string]any{"caption": "A"})
	b := mustCreate(t, e, "notion", map[string]any{"caption": "B"})
	_, err := e.CreateEdge(ctx, "next", a.ID(), b.ID())
	require.NoError(t, err)

	assert.Equal(t, 2, e.VertexCount())
	assert.Equal(t, 1, e.EdgeCount())

	// No constraints were declared, so duplicate captions are stored.
	mustCreate(t, e, "notion", map[string]any{"caption": "A"})
	assert.Equal(t, 3, e.VertexCount())
}
