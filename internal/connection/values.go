package connection

// Value is one live form field value: a string, a boolean, an option, or
// null. Null is distinct from the empty string; it tells the save endpoint
// to clear the stored field.
type Value struct {
	kind valueKind
	str  string
	b    bool
	opt  Option
}

type valueKind int

const (
	kindNull valueKind = iota
	kindString
	kindBool
	kindOption
)

// Null returns the explicit "clear this field" value. The zero Value is
// null as well.
func Null() Value { return Value{} }

// String wraps a plain string value.
func String(s string) Value { return Value{kind: kindString, str: s} }

// Bool wraps a boolean value.
func Bool(b bool) Value { return Value{kind: kindBool, b: b} }

// OptionOf wraps a selected option.
func OptionOf(o Option) Value { return Value{kind: kindOption, opt: o} }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == kindNull }

// Str returns the string content and whether the value is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == kindString }

// Bool returns the boolean content and whether the value is a boolean.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == kindBool }

// Option returns the option content and whether the value is an option.
func (v Value) Option() (Option, bool) { return v.opt, v.kind == kindOption }

// Key unwraps the value to its wire form: an option's key, a string as-is,
// and "" for anything else.
func (v Value) Key() string {
	switch v.kind {
	case kindOption:
		return v.opt.Key
	case kindString:
		return v.str
	default:
		return ""
	}
}

// Values is the live, user-editable projection of a configuration, keyed by
// wire field names. Every registered field is present; unset fields hold
// null.
type Values map[FieldName]Value

// Clone returns an independent copy of the values map.
func (vs Values) Clone() Values {
	out := make(Values, len(vs))
	for name, v := range vs {
		out[name] = v
	}
	return out
}
