package responsecache

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	json "github.com/goccy/go-json"
)

// ValueKind discriminates the variants of Value.
type ValueKind int

// Value kinds. ValueUnrepresentable holds something JSON cannot express.
const (
	ValueNull ValueKind = iota
	ValueBool
	ValueNumber
	ValueString
	ValueArray
	ValueObject
	ValueUnrepresentable
)

func (k ValueKind) String() string {
	switch k {
	case ValueNull:
		return "null"
	case ValueBool:
		return "bool"
	case ValueNumber:
		return "number"
	case ValueString:
		return "string"
	case ValueArray:
		return "array"
	case ValueObject:
		return "object"
	case ValueUnrepresentable:
		return "unrepresentable"
	}
	return "unknown"
}

// Unrepresentable records a value that has no JSON form: its Go type and
// its string rendering.
type Unrepresentable struct {
	TypeTag    string
	StringRepr string
}

// Value is a JSON-shaped tool response or argument set. The zero Value is null.
type Value struct {
	kind  ValueKind
	b     bool
	num   json.Number
	str   string
	arr   []Value
	obj   map[string]Value
	unrep Unrepresentable
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: ValueBool, b: b} }

// String returns a string value.
func String(s string) Value { return Value{kind: ValueString, str: s} }

// Number returns a number value from its JSON text.
func Number(n json.Number) Value { return Value{kind: ValueNumber, num: n} }

// Int returns an integer number value.
func Int(n int64) Value { return Number(json.Number(strconv.FormatInt(n, 10))) }

// Float returns a number value. NaN and infinities are unrepresentable.
func Float(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{kind: ValueUnrepresentable, unrep: Unrepresentable{
			TypeTag:    "float64",
			StringRepr: strconv.FormatFloat(f, 'g', -1, 64),
		}}
	}
	return Number(json.Number(strconv.FormatFloat(f, 'g', -1, 64)))
}

// Array returns an array value.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: ValueArray, arr: items}
}

// Object returns an object value.
func Object(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: ValueObject, obj: fields}
}

// NewUnrepresentable returns a fallback value for typeTag rendered as repr.
func NewUnrepresentable(typeTag, repr string) Value {
	return Value{kind: ValueUnrepresentable, unrep: Unrepresentable{TypeTag: typeTag, StringRepr: repr}}
}

// Kind returns the variant.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == ValueNull }

// AsBool returns the boolean and whether v is a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == ValueBool }

// AsString returns the string and whether v is a string.
func (v Value) AsString() (string, bool) { return v.str, v.kind == ValueString }

// AsNumber returns the number as float64 and whether v is a number.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != ValueNumber {
		return 0, false
	}
	f, err := v.num.Float64()
	return f, err == nil
}

// NumberText returns the number's JSON text.
func (v Value) NumberText() string { return string(v.num) }

// Items returns the elements of an array, or nil.
func (v Value) Items() []Value { return v.arr }

// Len returns the number of array elements or object fields.
func (v Value) Len() int {
	switch v.kind {
	case ValueArray:
		return len(v.arr)
	case ValueObject:
		return len(v.obj)
	}
	return 0
}

// Field returns an object field.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != ValueObject {
		return Value{}, false
	}
	f, ok := v.obj[key]
	return f, ok
}

// Keys returns an object's keys in sorted order.
func (v Value) Keys() []string {
	if v.kind != ValueObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Unrepresentable returns the fallback details and whether v is unrepresentable.
func (v Value) Unrepresentable() (Unrepresentable, bool) {
	return v.unrep, v.kind == ValueUnrepresentable
}

// TypeTag returns the type tag of the first unrepresentable value found in
// v, depth first with object keys in sorted order, or "" if there is none.
func (v Value) TypeTag() string {
	switch v.kind {
	case ValueUnrepresentable:
		return v.unrep.TypeTag
	case ValueArray:
		for _, item := range v.arr {
			if tag := item.TypeTag(); tag != "" {
				return tag
			}
		}
	case ValueObject:
		for _, k := range v.Keys() {
			if tag := v.obj[k].TypeTag(); tag != "" {
				return tag
			}
		}
	}
	return ""
}

// Equal reports semantic equality. Numbers compare by value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueNull:
		return true
	case ValueBool:
		return v.b == o.b
	case ValueNumber:
		if v.num == o.num {
			return true
		}
		a, okA := v.AsNumber()
		b, okB := o.AsNumber()
		return okA && okB && a == b
	case ValueString:
		return v.str == o.str
	case ValueArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case ValueObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, fv := range v.obj {
			ov, ok := o.obj[k]
			if !ok || !fv.Equal(ov) {
				return false
			}
		}
		return true
	case ValueUnrepresentable:
		return v.unrep == o.unrep
	}
	return false
}

// MarshalJSON encodes v. Unrepresentable values encode as their string form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueNull:
		return []byte("null"), nil
	case ValueBool:
		return strconv.AppendBool(nil, v.b), nil
	case ValueNumber:
		if v.num == "" {
			return []byte("0"), nil
		}
		return []byte(v.num), nil
	case ValueString:
		return json.Marshal(v.str)
	case ValueArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case ValueObject:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			b, err := v.obj[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case ValueUnrepresentable:
		return json.Marshal(v.unrep.StringRepr)
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

// UnmarshalJSON decodes JSON into v, keeping numbers as their exact text.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseJSON decodes a JSON document into a Value.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	if dec.More() {
		return Value{}, fmt.Errorf("unexpected data after JSON value")
	}
	return FromAny(raw), nil
}

// FromAny converts a Go value into a Value. Anything JSON cannot express
// (channels, functions, complex numbers, NaN, values whose marshaling fails)
// becomes an Unrepresentable carrying its type and fmt rendering.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case json.Number:
		return Number(t)
	case float64:
		return Float(t)
	case float32:
		return Float(float64(t))
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
		return Number(json.Number(strconv.FormatUint(uint64(t), 10)))
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case uint64:
		return Number(json.Number(strconv.FormatUint(t, 10)))
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return Array(items...)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = FromAny(item)
		}
		return Object(fields)
	case []Value:
		return Array(t...)
	case map[string]Value:
		return Object(t)
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return unrepresentable(x)
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return Null()
		}
	}

	// Structs, typed maps and slices go through their JSON form.
	data, err := json.Marshal(x)
	if err != nil {
		return unrepresentable(x)
	}
	v, err := ParseJSON(data)
	if err != nil {
		return unrepresentable(x)
	}
	return v
}

func unrepresentable(x any) Value {
	return NewUnrepresentable(fmt.Sprintf("%T", x), fmt.Sprintf("%v", x))
}

// wrapperKeys are peeled off, in this order, by Unwrap.
var wrapperKeys = []string{"result", "data", "response", "content", "payload"}

// MaxUnwrapDepth bounds how many wrapper objects Unwrap removes.
const MaxUnwrapDepth = 3

// Unwrap removes up to MaxUnwrapDepth levels of single-key wrapper objects
// such as {"result": {"data": [...]}}. Objects with more than one key, or a
// key outside the wrapper table, are returned unchanged.
func Unwrap(v Value) Value {
	for depth := 0; depth < MaxUnwrapDepth; depth++ {
		if v.kind != ValueObject || len(v.obj) != 1 {
			return v
		}
		peeled := false
		for _, key := range wrapperKeys {
			if inner, ok := v.obj[key]; ok {
				v = inner
				peeled = true
				break
			}
		}
		if !peeled {
			return v
		}
	}
	return v
}
