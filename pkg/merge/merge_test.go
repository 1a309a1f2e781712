package merge_test

import (
	"testing"

	"github.com/arthur-debert/jin/pkg/merge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertValue(t *testing.T, want, got merge.Value) {
	t.Helper()
	assert.True(t, merge.Equal(want, got), "want %s\n got %s", want, got)
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name    string
		base    merge.Value
		overlay merge.Value
		want    merge.Value
	}{
		{
			name:    "null_base_returns_overlay",
			base:    merge.Null(),
			overlay: merge.Obj("a", 1),
			want:    merge.Obj("a", 1),
		},
		{
			name:    "null_overlay_deletes_top_level",
			base:    merge.Obj("a", 1),
			overlay: merge.Null(),
			want:    merge.Null(),
		},
		{
			name:    "null_deletes_key",
			base:    merge.Obj("a", 1, "b", 2),
			overlay: merge.Obj("a", nil),
			want:    merge.Obj("b", 2),
		},
		{
			name:    "null_for_missing_key_is_noop",
			base:    merge.Obj("a", 1),
			overlay: merge.Obj("z", nil),
			want:    merge.Obj("a", 1),
		},
		{
			name:    "arrays_replace",
			base:    merge.Array(merge.Int(1), merge.Int(2)),
			overlay: merge.Array(merge.Int(3), merge.Int(4)),
			want:    merge.Array(merge.Int(3), merge.Int(4)),
		},
		{
			name:    "nested_arrays_replace",
			base:    merge.Obj("list", []interface{}{1, 2, 3}),
			overlay: merge.Obj("list", []interface{}{9}),
			want:    merge.Obj("list", []interface{}{9}),
		},
		{
			name:    "deep_object_merge",
			base:    merge.Obj("a", merge.Obj("x", 1)),
			overlay: merge.Obj("a", merge.Obj("y", 2)),
			want:    merge.Obj("a", merge.Obj("x", 1, "y", 2)),
		},
		{
			name:    "nested_null_deletes_nested_key",
			base:    merge.Obj("a", merge.Obj("x", 1, "y", 2)),
			overlay: merge.Obj("a", merge.Obj("x", nil)),
			want:    merge.Obj("a", merge.Obj("y", 2)),
		},
		{
			name:    "scalar_overlay_wins",
			base:    merge.Obj("a", "low"),
			overlay: merge.Obj("a", "high"),
			want:    merge.Obj("a", "high"),
		},
		{
			name:    "type_mismatch_overlay_wins",
			base:    merge.Obj("a", merge.Obj("x", 1)),
			overlay: merge.Obj("a", []interface{}{"x"}),
			want:    merge.Obj("a", []interface{}{"x"}),
		},
		{
			name:    "scalar_replaced_by_object",
			base:    merge.Obj("a", 1),
			overlay: merge.Obj("a", merge.Obj("b", true)),
			want:    merge.Obj("a", merge.Obj("b", true)),
		},
		{
			name:    "top_level_scalars",
			base:    merge.String("x"),
			overlay: merge.Float(1.5),
			want:    merge.Float(1.5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertValue(t, tt.want, merge.Merge(tt.base, tt.overlay))
		})
	}
}

func TestMergeKeyOrder(t *testing.T) {
	base := merge.Obj("b", 1, "a", 2, "c", 3)
	overlay := merge.Obj("z", 1, "a", 20, "y", 2)

	got := merge.Merge(base, overlay)

	obj, ok := got.AsObject()
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a", "c", "z", "y"}, obj.Keys())

	a, _ := obj.Get("a")
	assertValue(t, merge.Int(20), a)
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	base := merge.Obj("a", merge.Obj("x", 1))
	overlay := merge.Obj("a", merge.Obj("y", 2), "b", nil)

	baseBefore := base.Clone()
	overlayBefore := overlay.Clone()

	_ = merge.Merge(base, overlay)

	assertValue(t, baseBefore, base)
	assertValue(t, overlayBefore, overlay)
}

func TestFold(t *testing.T) {
	t.Run("empty_fold_is_null", func(t *testing.T) {
		assert.True(t, merge.Fold().IsNull())
	})

	t.Run("single_value_passes_through", func(t *testing.T) {
		v := merge.Obj("a", nil, "b", []interface{}{1})
		assertValue(t, v, merge.Fold(v))
	})

	t.Run("identity", func(t *testing.T) {
		values := []merge.Value{
			merge.Null(),
			merge.Bool(true),
			merge.Int(7),
			merge.String("s"),
			merge.Array(merge.Int(1)),
			merge.Obj("k", merge.Obj("n", 1)),
		}
		for _, v := range values {
			assertValue(t, v, merge.Merge(merge.Null(), v))
		}
	})

	t.Run("associativity_as_used", func(t *testing.T) {
		l1 := merge.Obj("a", merge.Obj("x", 1, "y", 1), "keep", true, "list", []interface{}{1})
		l2 := merge.Obj("a", merge.Obj("y", nil, "z", 2), "list", []interface{}{2, 3}, "new", "two")
		l3 := merge.Obj("a", merge.Obj("x", 3), "keep", nil, "last", 3.5)

		assertValue(t, merge.Fold(l1, l2, l3), merge.Fold(merge.Merge(l1, l2), l3))
	})

	t.Run("mode_and_project_example", func(t *testing.T) {
		mode := merge.Obj("common", merge.Obj("a", 1), "mode", true)
		project := merge.Obj("common", merge.Obj("a", 1, "b", 2), "project", false)

		want := merge.Obj("common", merge.Obj("a", 1, "b", 2), "mode", true, "project", false)
		assertValue(t, want, merge.Fold(mode, project))
	})
}

func TestValueHelpers(t *testing.T) {
	t.Run("equal_checks_key_order", func(t *testing.T) {
		assert.False(t, merge.Equal(merge.Obj("a", 1, "b", 2), merge.Obj("b", 2, "a", 1)))
		assert.True(t, merge.Equal(merge.Obj("a", 1, "b", 2), merge.Obj("a", 1, "b", 2)))
	})

	t.Run("integer_and_float_differ", func(t *testing.T) {
		assert.False(t, merge.Equal(merge.Int(1), merge.Float(1)))
	})

	t.Run("string_rendering", func(t *testing.T) {
		v := merge.Obj("a", []interface{}{1, "two", nil}, "b", merge.Obj("c", false))
		assert.Equal(t, `{"a":[1,"two",null],"b":{"c":false}}`, v.String())
	})

	t.Run("from_sorts_plain_maps", func(t *testing.T) {
		v := merge.From(map[string]interface{}{"b": 1, "a": 2})
		obj, ok := v.AsObject()
		require.True(t, ok)
		assert.Equal(t, []string{"a", "b"}, obj.Keys())
	})

	t.Run("interface_round_trip", func(t *testing.T) {
		v := merge.Obj("a", []interface{}{int64(1), "x"}, "b", merge.Obj("c", 1.5))
		assert.Equal(t, map[string]interface{}{
			"a": []interface{}{int64(1), "x"},
			"b": map[string]interface{}{"c": 1.5},
		}, v.Interface())
	})
}
