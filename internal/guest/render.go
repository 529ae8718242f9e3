package guest

import (
	"strconv"
	"unicode/utf8"

	"github.com/dop251/goja"
)

// Render returns the short human-readable form of a completion value.
// Undefined renders as the empty string.
func (r *Runtime) Render(val goja.Value) string {
	if val == nil || goja.IsUndefined(val) {
		return ""
	}
	return Shorten(r.inspect(val), r.config.MaxReprChars)
}

// inspect formats a value for display: strings quoted, errors as
// "Name: message", functions by name, other objects as JSON.
func (r *Runtime) inspect(val goja.Value) string {
	if val == nil || goja.IsUndefined(val) {
		return "undefined"
	}
	if goja.IsNull(val) {
		return "null"
	}

	obj, isObject := val.(*goja.Object)
	if !isObject {
		if s, ok := val.Export().(string); ok {
			return strconv.Quote(s)
		}
		return val.String()
	}

	if _, isFunc := goja.AssertFunction(obj); isFunc {
		name := obj.Get("name")
		if name == nil || name.String() == "" {
			return "[Function (anonymous)]"
		}
		return "[Function: " + name.String() + "]"
	}
	if obj.ClassName() == "Error" {
		return obj.String()
	}
	if s, ok := r.stringify(obj); ok {
		return s
	}
	return obj.String()
}

// stringify renders obj with the guest's own JSON.stringify. Values that
// JSON cannot represent (cycles, BigInt) report false.
func (r *Runtime) stringify(obj *goja.Object) (s string, ok bool) {
	defer func() {
		if recover() != nil {
			s, ok = "", false
		}
	}()
	json := r.vm.Get("JSON").ToObject(r.vm)
	fn, isFunc := goja.AssertFunction(json.Get("stringify"))
	if !isFunc {
		return "", false
	}
	out, err := fn(json, obj)
	if err != nil || out == nil || goja.IsUndefined(out) {
		return "", false
	}
	return out.String(), true
}

// Shorten elides the middle of s when it is longer than limit runes,
// keeping limit/2 runes from each end.
func Shorten(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	split := limit / 2
	return string(runes[:split]) + "..." + string(runes[len(runes)-split:])
}
