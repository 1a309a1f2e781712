package formats

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/arthur-debert/jin/pkg/merge"
	"github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"
)

var bareTOMLKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ParseTOML decodes a TOML document. Tables keep their document order and
// dates, times and datetimes become ISO 8601 strings.
func ParseTOML(content []byte) (merge.Value, error) {
	var raw map[string]interface{}
	if err := toml.Unmarshal(content, &raw); err != nil {
		return merge.Null(), tomlParseError(err)
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	return tomlToValue(raw, nil, tomlKeyOrder(content)), nil
}

func tomlParseError(err error) *ParseError {
	var derr *toml.DecodeError
	if errors.As(err, &derr) {
		row, col := derr.Position()
		return &ParseError{Format: TOML, Message: derr.Error(), Line: row, Column: col}
	}
	return &ParseError{Format: TOML, Message: err.Error()}
}

// keyOrder records, per table path, the order in which child keys first
// appear in the document. Elements of an array share their array's path.
type keyOrder map[string][]string

func pathKey(path []string) string {
	return strings.Join(path, "\x1f")
}

func (o keyOrder) add(parent []string, key string) {
	p := pathKey(parent)
	for _, k := range o[p] {
		if k == key {
			return
		}
	}
	o[p] = append(o[p], key)
}

func (o keyOrder) addPath(prefix, keys []string) {
	for i, k := range keys {
		o.add(joinPath(prefix, keys[:i]), k)
	}
}

func joinPath(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// tomlKeyOrder walks the document with go-toml's expression parser. The
// document has already been validated by Unmarshal, so parse errors here
// only leave the order incomplete; missing keys fall back to sorted order.
func tomlKeyOrder(content []byte) keyOrder {
	order := keyOrder{}
	p := unstable.Parser{}
	p.Reset(content)

	var table []string
	for p.NextExpression() {
		expr := p.Expression()
		switch expr.Kind {
		case unstable.Table, unstable.ArrayTable:
			table = tomlKeyParts(expr.Key())
			order.addPath(nil, table)
		case unstable.KeyValue:
			order.keyValue(table, expr)
		}
	}
	return order
}

func (o keyOrder) keyValue(prefix []string, kv *unstable.Node) {
	keys := tomlKeyParts(kv.Key())
	o.addPath(prefix, keys)
	o.value(joinPath(prefix, keys), kv.Value())
}

func (o keyOrder) value(path []string, v *unstable.Node) {
	if v == nil {
		return
	}
	switch v.Kind {
	case unstable.InlineTable:
		it := v.Children()
		for it.Next() {
			if child := it.Node(); child.Kind == unstable.KeyValue {
				o.keyValue(path, child)
			}
		}
	case unstable.Array:
		it := v.Children()
		for it.Next() {
			o.value(path, it.Node())
		}
	}
}

func tomlKeyParts(it unstable.Iterator) []string {
	var parts []string
	for it.Next() {
		parts = append(parts, string(it.Node().Data))
	}
	return parts
}

func tomlToValue(x interface{}, path []string, order keyOrder) merge.Value {
	switch t := x.(type) {
	case map[string]interface{}:
		obj := merge.NewObject()
		for _, k := range order[pathKey(path)] {
			if v, ok := t[k]; ok {
				obj.Set(k, tomlToValue(v, joinPath(path, []string{k}), order))
			}
		}
		rest := make([]string, 0, len(t))
		for k := range t {
			if _, done := obj.Get(k); !done {
				rest = append(rest, k)
			}
		}
		sort.Strings(rest)
		for _, k := range rest {
			obj.Set(k, tomlToValue(t[k], joinPath(path, []string{k}), order))
		}
		return merge.ObjectValue(obj)
	case []interface{}:
		items := make([]merge.Value, len(t))
		for i, item := range t {
			items[i] = tomlToValue(item, path, order)
		}
		return merge.Array(items...)
	case time.Time:
		return merge.String(t.Format(time.RFC3339Nano))
	case toml.LocalDate:
		return merge.String(t.String())
	case toml.LocalTime:
		return merge.String(t.String())
	case toml.LocalDateTime:
		return merge.String(t.String())
	case string, bool, int64, float64:
		return merge.From(t)
	}
	return merge.String(fmt.Sprint(x))
}

// SerializeTOML encodes an object as a TOML document. Nulls are omitted,
// nested objects become tables and arrays of objects become arrays of tables.
func SerializeTOML(v merge.Value) ([]byte, error) {
	if v.IsNull() {
		return []byte{}, nil
	}
	obj, ok := v.AsObject()
	if !ok {
		return nil, fmt.Errorf("TOML document root must be a table, got %s", v.Kind())
	}
	var buf bytes.Buffer
	if err := writeTOMLTable(&buf, nil, obj); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeTOMLTable(buf *bytes.Buffer, path []string, obj *merge.Object) error {
	var tables, arrayTables []string
	var err error

	obj.Range(func(key string, val merge.Value) bool {
		switch {
		case val.IsNull():
		case val.IsObject():
			tables = append(tables, key)
		case isArrayOfTables(val):
			arrayTables = append(arrayTables, key)
		default:
			var line []byte
			line, err = tomlKeyValue(key, val)
			if err != nil {
				return false
			}
			buf.Write(line)
		}
		return true
	})
	if err != nil {
		return err
	}

	for _, key := range tables {
		sub, _ := obj.Get(key)
		subObj, _ := sub.AsObject()
		subPath := joinPath(path, []string{key})
		writeTOMLHeader(buf, "["+tomlHeader(subPath)+"]")
		if err := writeTOMLTable(buf, subPath, subObj); err != nil {
			return err
		}
	}

	for _, key := range arrayTables {
		arr, _ := obj.Get(key)
		items, _ := arr.AsArray()
		subPath := joinPath(path, []string{key})
		for _, item := range items {
			itemObj, _ := item.AsObject()
			writeTOMLHeader(buf, "[["+tomlHeader(subPath)+"]]")
			if err := writeTOMLTable(buf, subPath, itemObj); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeTOMLHeader(buf *bytes.Buffer, header string) {
	if buf.Len() > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteString(header)
	buf.WriteByte('\n')
}

func isArrayOfTables(v merge.Value) bool {
	items, ok := v.AsArray()
	if !ok || len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !item.IsObject() {
			return false
		}
	}
	return true
}

// tomlKeyValue lets go-toml render a single "key = value" line so quoting
// and escaping follow the TOML spec.
func tomlKeyValue(key string, v merge.Value) ([]byte, error) {
	out, err := toml.Marshal(map[string]interface{}{key: tomlPlain(v)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode TOML key %q: %w", key, err)
	}
	return out, nil
}

// tomlPlain converts v into plain Go values, dropping nulls TOML cannot hold
func tomlPlain(v merge.Value) interface{} {
	switch v.Kind() {
	case merge.KindArray:
		items, _ := v.AsArray()
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			if !item.IsNull() {
				out = append(out, tomlPlain(item))
			}
		}
		return out
	case merge.KindObject:
		obj, _ := v.AsObject()
		out := make(map[string]interface{}, obj.Len())
		obj.Range(func(key string, val merge.Value) bool {
			if !val.IsNull() {
				out[key] = tomlPlain(val)
			}
			return true
		})
		return out
	}
	return v.Interface()
}

func tomlHeader(path []string) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = tomlKey(p)
	}
	return strings.Join(parts, ".")
}

func tomlKey(k string) string {
	if bareTOMLKey.MatchString(k) {
		return k
	}
	return quoteJSON(k)
}
