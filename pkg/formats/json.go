package formats

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/arthur-debert/jin/pkg/merge"
)

// ParseJSON decodes a JSON document, keeping object key order. Numbers
// written as integers that fit in int64 become Integer, all others Float.
func ParseJSON(content []byte) (merge.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()

	v, err := decodeJSONValue(dec)
	if err != nil {
		return merge.Null(), jsonParseError(content, dec, err)
	}

	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected data after top-level value")
		}
		return merge.Null(), jsonParseError(content, dec, err)
	}

	return v, nil
}

func decodeJSONValue(dec *json.Decoder) (merge.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return merge.Null(), err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeJSONObject(dec)
		case '[':
			return decodeJSONArray(dec)
		}
		return merge.Null(), fmt.Errorf("unexpected %q", t.String())
	case string:
		return merge.String(t), nil
	case json.Number:
		return jsonNumber(t)
	case bool:
		return merge.Bool(t), nil
	case nil:
		return merge.Null(), nil
	}
	return merge.Null(), fmt.Errorf("unexpected token %v", tok)
}

func decodeJSONObject(dec *json.Decoder) (merge.Value, error) {
	obj := merge.NewObject()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return merge.Null(), err
		}
		key, ok := tok.(string)
		if !ok {
			return merge.Null(), fmt.Errorf("object key must be a string, got %v", tok)
		}
		val, err := decodeJSONValue(dec)
		if err != nil {
			return merge.Null(), err
		}
		obj.Set(key, val)
	}
	// closing brace
	if _, err := dec.Token(); err != nil {
		return merge.Null(), err
	}
	return merge.ObjectValue(obj), nil
}

func decodeJSONArray(dec *json.Decoder) (merge.Value, error) {
	items := []merge.Value{}
	for dec.More() {
		val, err := decodeJSONValue(dec)
		if err != nil {
			return merge.Null(), err
		}
		items = append(items, val)
	}
	if _, err := dec.Token(); err != nil {
		return merge.Null(), err
	}
	return merge.Array(items...), nil
}

func jsonNumber(n json.Number) (merge.Value, error) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return merge.Int(i), nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return merge.Null(), fmt.Errorf("invalid number %q", n.String())
	}
	return merge.Float(f), nil
}

func jsonParseError(content []byte, dec *json.Decoder, err error) *ParseError {
	offset := dec.InputOffset()
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		offset = syntaxErr.Offset
	}
	msg := err.Error()
	if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
		msg = "unexpected end of JSON input"
	}
	line, col := lineCol(content, offset)
	return &ParseError{Format: JSON, Message: msg, Line: line, Column: col}
}

// SerializeJSON encodes v as indented JSON with a trailing newline
func SerializeJSON(v merge.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v, 0); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v merge.Value, depth int) error {
	switch v.Kind() {
	case merge.KindNull:
		buf.WriteString("null")
	case merge.KindBool:
		b, _ := v.AsBool()
		buf.WriteString(strconv.FormatBool(b))
	case merge.KindInteger:
		i, _ := v.AsInt()
		buf.WriteString(strconv.FormatInt(i, 10))
	case merge.KindFloat:
		f, _ := v.AsFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("cannot encode %v as JSON", f)
		}
		buf.WriteString(formatFloat(f))
	case merge.KindString:
		s, _ := v.AsString()
		buf.WriteString(quoteJSON(s))
	case merge.KindArray:
		items, _ := v.AsArray()
		if len(items) == 0 {
			buf.WriteString("[]")
			return nil
		}
		buf.WriteString("[\n")
		for i, item := range items {
			writeIndent(buf, depth+1)
			if err := writeJSON(buf, item, depth+1); err != nil {
				return err
			}
			if i < len(items)-1 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		writeIndent(buf, depth)
		buf.WriteByte(']')
	case merge.KindObject:
		obj, _ := v.AsObject()
		if obj.Len() == 0 {
			buf.WriteString("{}")
			return nil
		}
		buf.WriteString("{\n")
		n := 0
		var err error
		obj.Range(func(key string, val merge.Value) bool {
			writeIndent(buf, depth+1)
			buf.WriteString(quoteJSON(key))
			buf.WriteString(": ")
			if err = writeJSON(buf, val, depth+1); err != nil {
				return false
			}
			n++
			if n < obj.Len() {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
			return true
		})
		if err != nil {
			return err
		}
		writeIndent(buf, depth)
		buf.WriteByte('}')
	}
	return nil
}

func writeIndent(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteString("  ")
	}
}

func quoteJSON(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding a string cannot fail
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// formatFloat renders f so that it reads back as a float, never an integer
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}
