package merge

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind identifies which variant a Value holds
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInteger
	KindFloat
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is the format independent representation of a structured
// configuration value. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	arr  []Value
	obj  *Object
}

// Null returns the null value
func Null() Value { return Value{} }

// Bool wraps a boolean
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer
func Int(i int64) Value { return Value{kind: KindInteger, i: i} }

// Float wraps a float
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array wraps a list of values
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}

// ObjectValue wraps an object. A nil object becomes an empty one.
func ObjectValue(o *Object) Value {
	if o == nil {
		o = NewObject()
	}
	return Value{kind: KindObject, obj: o}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) IsObject() bool { return v.kind == KindObject }
func (v Value) IsArray() bool  { return v.kind == KindArray }

// AsBool returns the boolean payload and whether v is a Bool
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer payload and whether v is an Integer
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInteger }

// AsFloat returns the float payload and whether v is a Float
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsString returns the string payload and whether v is a String
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsArray returns the items and whether v is an Array. The slice must not be modified.
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

// AsObject returns the object and whether v is an Object
func (v Value) AsObject() (*Object, bool) { return v.obj, v.kind == KindObject }

// Clone returns a deep copy of v
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		items := make([]Value, len(v.arr))
		for i, item := range v.arr {
			items[i] = item.Clone()
		}
		return Value{kind: KindArray, arr: items}
	case KindObject:
		return Value{kind: KindObject, obj: v.obj.Clone()}
	}
	return v
}

// Equal reports deep equality, including object key order.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInteger:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f || (math.IsNaN(a.f) && math.IsNaN(b.f))
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return a.obj.Equal(b.obj)
	}
	return false
}

// String renders v in a compact JSON-like notation, for logs and test failures.
func (v Value) String() string {
	var sb strings.Builder
	v.writeTo(&sb)
	return sb.String()
}

func (v Value) writeTo(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindInteger:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		sb.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		sb.WriteString(strconv.Quote(v.s))
	case KindArray:
		sb.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				sb.WriteByte(',')
			}
			item.writeTo(sb)
		}
		sb.WriteByte(']')
	case KindObject:
		sb.WriteByte('{')
		first := true
		v.obj.Range(func(key string, val Value) bool {
			if !first {
				sb.WriteByte(',')
			}
			first = false
			sb.WriteString(strconv.Quote(key))
			sb.WriteByte(':')
			val.writeTo(sb)
			return true
		})
		sb.WriteByte('}')
	}
}

// Object is an insertion ordered string keyed map of values.
// Overwriting an existing key keeps its position; new keys append.
type Object struct {
	entries *orderedmap.OrderedMap[string, Value]
}

// NewObject returns an empty object
func NewObject() *Object {
	return &Object{entries: orderedmap.New[string, Value]()}
}

// Set inserts or overwrites key
func (o *Object) Set(key string, v Value) {
	o.entries.Set(key, v)
}

// Get returns the value stored at key
func (o *Object) Get(key string) (Value, bool) {
	return o.entries.Get(key)
}

// Delete removes key, reporting whether it was present
func (o *Object) Delete(key string) bool {
	_, ok := o.entries.Delete(key)
	return ok
}

// Len returns the number of keys
func (o *Object) Len() int {
	return o.entries.Len()
}

// Keys returns the keys in order
func (o *Object) Keys() []string {
	keys := make([]string, 0, o.entries.Len())
	for pair := o.entries.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Range calls fn for each entry in order until fn returns false
func (o *Object) Range(fn func(key string, v Value) bool) {
	for pair := o.entries.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// Clone returns a deep copy of o
func (o *Object) Clone() *Object {
	out := NewObject()
	o.Range(func(key string, v Value) bool {
		out.Set(key, v.Clone())
		return true
	})
	return out
}

// Equal compares two objects including key order
func (o *Object) Equal(other *Object) bool {
	if o.Len() != other.Len() {
		return false
	}
	a, b := o.entries.Oldest(), other.entries.Oldest()
	for a != nil && b != nil {
		if a.Key != b.Key || !Equal(a.Value, b.Value) {
			return false
		}
		a, b = a.Next(), b.Next()
	}
	return a == nil && b == nil
}

// Obj builds an object value from alternating key, value arguments.
// It panics on malformed input and is meant for literals in code and tests.
func Obj(kv ...interface{}) Value {
	if len(kv)%2 != 0 {
		panic("merge.Obj: odd number of arguments")
	}
	o := NewObject()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("merge.Obj: key %v is not a string", kv[i]))
		}
		o.Set(key, From(kv[i+1]))
	}
	return ObjectValue(o)
}

// From converts plain Go values into a Value. Supported inputs are nil,
// bool, the integer and float kinds, string, []interface{},
// map[string]interface{} (keys sorted, since Go maps carry no order) and Value.
func From(x interface{}) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint:
		return Int(int64(t))
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case uint64:
		if t > math.MaxInt64 {
			return Float(float64(t))
		}
		return Int(int64(t))
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case string:
		return String(t)
	case []Value:
		return Array(t...)
	case []interface{}:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = From(item)
		}
		return Array(items...)
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = String(item)
		}
		return Array(items...)
	case map[string]interface{}:
		o := NewObject()
		for _, key := range sortedKeys(t) {
			o.Set(key, From(t[key]))
		}
		return ObjectValue(o)
	}
	panic(fmt.Sprintf("merge.From: unsupported type %T", x))
}

// Interface converts v back into plain Go values; objects lose their order.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindArray:
		out := make([]interface{}, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, v.obj.Len())
		v.obj.Range(func(key string, val Value) bool {
			out[key] = val.Interface()
			return true
		})
		return out
	}
	return nil
}
