package typedjson

import (
	"bytes"
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	timeType          = reflect.TypeOf(time.Time{})
	numberType        = reflect.TypeOf(json.Number(""))
	marshalerType     = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// Encode converts v into an Envelope, following encoding/json field naming rules.
func Encode(v any) (Envelope, error) {
	e := &encoder{values: map[string][]string{}}
	tree, err := e.walk(reflect.ValueOf(v), nil)
	if err != nil {
		return Envelope{}, err
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode json: %w", err)
	}

	env := Envelope{JSON: raw}
	if len(e.values) > 0 {
		env.Meta = &Meta{Values: e.values}
	}
	return env, nil
}

type encoder struct {
	values map[string][]string
}

func (e *encoder) annotate(path []string, typ string) {
	e.values[joinPath(path)] = []string{typ}
}

func (e *encoder) walk(v reflect.Value, path []string) (any, error) {
	for {
		if !v.IsValid() {
			return nil, nil
		}
		if v.Kind() != reflect.Interface && v.Kind() != reflect.Pointer {
			break
		}
		if v.IsNil() {
			return nil, nil
		}
		if v.Kind() == reflect.Pointer && v.Type().Elem() != timeType && v.Type().Implements(marshalerType) {
			return e.marshaler(v.Interface().(json.Marshaler))
		}
		v = v.Elem()
	}

	switch {
	case v.Type() == timeType:
		e.annotate(path, TypeDate)
		return v.Interface().(time.Time).UTC().Format(dateLayout), nil
	case v.Type() == numberType:
		return v.Interface(), nil
	case v.Type().Implements(marshalerType):
		return e.marshaler(v.Interface().(json.Marshaler))
	case v.CanAddr() && reflect.PointerTo(v.Type()).Implements(marshalerType):
		return e.marshaler(v.Addr().Interface().(json.Marshaler))
	case v.Type().Implements(textMarshalerType):
		text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return nil, err
		}
		return string(text), nil
	}

	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := v.Int()
		if n > MaxSafeInteger || n < -MaxSafeInteger {
			e.annotate(path, TypeBigInt)
			return strconv.FormatInt(n, 10), nil
		}
		return n, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := v.Uint()
		if n > MaxSafeInteger {
			e.annotate(path, TypeBigInt)
			return strconv.FormatUint(n, 10), nil
		}
		return n, nil
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("unsupported float value %v at %q", f, joinPath(path))
		}
		return f, nil
	case reflect.String:
		return v.String(), nil
	case reflect.Struct:
		out := make(map[string]any, v.NumField())
		if err := e.walkStruct(v, path, out, false); err != nil {
			return nil, err
		}
		return out, nil
	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key, err := mapKey(iter.Key())
			if err != nil {
				return nil, err
			}
			val, err := e.walk(iter.Value(), childPath(path, key))
			if err != nil {
				return nil, err
			}
			out[key] = val
		}
		return out, nil
	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return base64.StdEncoding.EncodeToString(v.Bytes()), nil
		}
		return e.walkList(v, path)
	case reflect.Array:
		return e.walkList(v, path)
	default:
		return nil, fmt.Errorf("unsupported type %s at %q", v.Type(), joinPath(path))
	}
}

func (e *encoder) walkList(v reflect.Value, path []string) (any, error) {
	out := make([]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		val, err := e.walk(v.Index(i), childPath(path, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

// walkStruct writes the fields of v into out. Promoted fields of embedded structs never
// replace fields declared on the outer struct.
func (e *encoder) walkStruct(v reflect.Value, path []string, out map[string]any, embedded bool) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")

		if sf.Anonymous && name == "" {
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct && ft != timeType {
				fv := v.Field(i)
				if fv.Kind() == reflect.Pointer {
					if fv.IsNil() {
						continue
					}
					fv = fv.Elem()
				}
				if err := e.walkStruct(fv, path, out, true); err != nil {
					return err
				}
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if embedded {
			if _, exists := out[name]; exists {
				continue
			}
		}

		fv := v.Field(i)
		if hasOption(opts, "omitempty") && isEmptyValue(fv) {
			continue
		}
		if hasOption(opts, "omitzero") && fv.IsZero() {
			continue
		}

		val, err := e.walk(fv, childPath(path, name))
		if err != nil {
			return err
		}
		out[name] = val
	}
	return nil
}

func (e *encoder) marshaler(m json.Marshaler) (any, error) {
	raw, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode marshaler output: %w", err)
	}
	return tree, nil
}

func mapKey(k reflect.Value) (string, error) {
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	if k.Type().Implements(textMarshalerType) {
		text, err := k.Interface().(encoding.TextMarshaler).MarshalText()
		return string(text), err
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10), nil
	}
	return "", fmt.Errorf("unsupported map key type %s", k.Type())
}

func childPath(path []string, key string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, escapeKey(key))
}

func hasOption(opts, want string) bool {
	for opts != "" {
		var opt string
		opt, opts, _ = strings.Cut(opts, ",")
		if opt == want {
			return true
		}
	}
	return false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Pointer:
		return v.IsNil()
	}
	return false
}
