package merge

import "sort"

// Merge combines base with a higher precedence overlay:
//
//   - a null overlay deletes (inside objects the key is removed; at the top
//     level the result is null)
//   - two objects deep merge, base keys keep their position and new overlay
//     keys append in overlay order
//   - two arrays: the overlay replaces the base wholesale
//   - anything else: the overlay wins
//
// Neither argument is modified.
func Merge(base, overlay Value) Value {
	if overlay.IsNull() {
		return Null()
	}
	if base.IsObject() && overlay.IsObject() {
		return ObjectValue(mergeObjects(base.obj, overlay.obj))
	}
	return overlay.Clone()
}

func mergeObjects(base, overlay *Object) *Object {
	out := base.Clone()
	overlay.Range(func(key string, ov Value) bool {
		if ov.IsNull() {
			out.Delete(key)
			return true
		}
		if bv, ok := out.Get(key); ok && bv.IsObject() && ov.IsObject() {
			out.Set(key, ObjectValue(mergeObjects(bv.obj, ov.obj)))
			return true
		}
		out.Set(key, ov.Clone())
		return true
	})
	return out
}

// Fold merges values left to right starting from null, lowest precedence
// first. Folding a single value returns it unchanged.
func Fold(values ...Value) Value {
	acc := Null()
	for _, v := range values {
		acc = Merge(acc, v)
	}
	return acc
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
