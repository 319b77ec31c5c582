package flatten_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew-w-ross/vscode-test-pool/internal/envelope/flatten"
)

func TestRoundTrip_Scalars(t *testing.T) {
	for _, v := range []any{"hello", true, float64(42), nil} {
		data, err := flatten.Marshal(v)
		require.NoError(t, err)

		got, err := flatten.Unmarshal(data)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestRoundTrip_NestedMapAndSlice(t *testing.T) {
	v := map[string]any{
		"name":  "alpha",
		"items": []any{float64(1), float64(2), "three"},
		"nested": map[string]any{
			"ok": true,
		},
	}

	data, err := flatten.Marshal(v)
	require.NoError(t, err)

	got, err := flatten.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestRoundTrip_SelfReferencingMapPreservesIdentity(t *testing.T) {
	m := map[string]any{"name": "node"}
	m["self"] = m // cycle

	data, err := flatten.Marshal(m)
	require.NoError(t, err)

	got, err := flatten.Unmarshal(data)
	require.NoError(t, err)

	gotMap, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "node", gotMap["name"])

	// identity preserved: the "self" value is the exact same map instance.
	selfMap, ok := gotMap["self"].(map[string]any)
	require.True(t, ok)
	assert.Same(t, &gotMap, &gotMap) // sanity
	selfMap["name"] = "mutated"
	assert.Equal(t, "mutated", gotMap["name"])
}

func TestRoundTrip_PointerCyclePreservesBackReference(t *testing.T) {
	type node struct {
		Name string
		Next *node
	}

	a := &node{Name: "a"}
	b := &node{Name: "b"}
	a.Next = b
	b.Next = a

	data, err := flatten.Marshal(a)
	require.NoError(t, err)

	got, err := flatten.Unmarshal(data)
	require.NoError(t, err)

	gotA := got.(map[string]any)
	assert.Equal(t, "a", gotA["Name"])

	gotB, ok := gotA["Next"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "b", gotB["Name"])

	// the cycle closes: B's Next must be the same map instance as A, not nil.
	backToA, ok := gotB["Next"].(map[string]any)
	require.True(t, ok, "pointer-mediated cycle must resolve back to A, not nil")
	assert.Equal(t, "a", backToA["Name"])
}

func TestRoundTrip_SharedReferenceAppearsOnce(t *testing.T) {
	shared := map[string]any{"v": float64(1)}
	graph := map[string]any{
		"a": shared,
		"b": shared,
	}

	data, err := flatten.Marshal(graph)
	require.NoError(t, err)

	got, err := flatten.Unmarshal(data)
	require.NoError(t, err)

	gotGraph := got.(map[string]any)
	a := gotGraph["a"].(map[string]any)
	b := gotGraph["b"].(map[string]any)

	a["v"] = float64(99)
	assert.Equal(t, float64(99), b["v"], "a and b must be the same underlying map")
}
