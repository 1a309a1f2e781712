package formats

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/arthur-debert/jin/pkg/merge"
	"github.com/go-ini/ini"
)

var iniLoadOptions = ini.LoadOptions{
	AllowBooleanKeys:    true,
	IgnoreInlineComment: true,
}

// ParseINI decodes an INI file into an object of sections, each a flat
// object of string values. Keys before the first section header live in
// the DEFAULT section, which is omitted when empty. Values are never split:
// "a,b" stays one string.
func ParseINI(content []byte) (merge.Value, error) {
	cfg, err := ini.LoadSources(iniLoadOptions, content)
	if err != nil {
		return merge.Null(), &ParseError{Format: INI, Message: err.Error()}
	}

	obj := merge.NewObject()
	for _, sec := range cfg.Sections() {
		keys := sec.Keys()
		if sec.Name() == ini.DefaultSection && len(keys) == 0 {
			continue
		}
		secObj := merge.NewObject()
		for _, key := range keys {
			secObj.Set(key.Name(), merge.String(key.Value()))
		}
		obj.Set(sec.Name(), merge.ObjectValue(secObj))
	}
	return merge.ObjectValue(obj), nil
}

// SerializeINI encodes an object of sections. Top level scalars are written
// to the DEFAULT section; values deeper than one level are flattened into
// their compact textual form.
func SerializeINI(v merge.Value) ([]byte, error) {
	if v.IsNull() {
		return []byte{}, nil
	}
	obj, ok := v.AsObject()
	if !ok {
		return nil, fmt.Errorf("INI document root must be an object of sections, got %s", v.Kind())
	}

	cfg := ini.Empty(iniLoadOptions)
	var err error

	obj.Range(func(name string, val merge.Value) bool {
		if val.IsNull() || val.IsObject() {
			return true
		}
		_, err = cfg.Section(ini.DefaultSection).NewKey(name, iniString(val))
		return err == nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode INI default key: %w", err)
	}

	obj.Range(func(name string, val merge.Value) bool {
		secObj, isObj := val.AsObject()
		if !isObj {
			return true
		}
		sec := cfg.Section(name)
		secObj.Range(func(key string, kv merge.Value) bool {
			if kv.IsNull() {
				return true
			}
			_, err = sec.NewKey(key, iniString(kv))
			return err == nil
		})
		return err == nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode INI section: %w", err)
	}

	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write INI: %w", err)
	}
	return buf.Bytes(), nil
}

func iniString(v merge.Value) string {
	switch v.Kind() {
	case merge.KindString:
		s, _ := v.AsString()
		return s
	case merge.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	case merge.KindInteger:
		i, _ := v.AsInt()
		return strconv.FormatInt(i, 10)
	case merge.KindFloat:
		f, _ := v.AsFloat()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case merge.KindArray:
		items, _ := v.AsArray()
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = iniString(item)
		}
		return strings.Join(parts, ",")
	}
	return v.String()
}
