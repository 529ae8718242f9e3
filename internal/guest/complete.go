package guest

import (
	"reflect"
	"slices"
	"strings"

	"github.com/dop251/goja"
)

// maxProtoDepth bounds the prototype walk when listing members.
const maxProtoDepth = 8

// Complete returns completion candidates for the identifier path at the end
// of line, e.g. "Math.fl" or "conso". Each candidate is the whole line with
// the trailing identifier completed.
//
// No guest code runs: the path is followed through data properties only,
// and accessors and proxies end the walk.
func (r *Runtime) Complete(line string) []string {
	start := len(line)
	for start > 0 && (isIdentByte(line[start-1]) || line[start-1] == '.') {
		start--
	}
	path := line[start:]
	head := line[:start]

	var base goja.Value = r.vm.GlobalObject()
	partial := path
	if dot := strings.LastIndexByte(path, '.'); dot >= 0 {
		partial = path[dot+1:]
		for _, seg := range strings.Split(path[:dot], ".") {
			if seg == "" {
				return nil
			}
			next, ok := r.dataProperty(base, seg)
			if !ok {
				return nil
			}
			base = next
		}
		head += path[:dot+1]
	}

	obj := r.toObject(base)
	seen := make(map[string]bool)
	var out []string
	for depth := 0; obj != nil && depth < maxProtoDepth && !isProxy(obj); depth++ {
		for _, name := range obj.GetOwnPropertyNames() {
			if seen[name] || !strings.HasPrefix(name, partial) || !isIdent(name) {
				continue
			}
			seen[name] = true
			out = append(out, head+name)
		}
		obj = obj.Prototype()
	}
	slices.Sort(out)
	return out
}

// dataProperty looks name up on base and its prototypes without invoking
// getters or proxy traps. ok is false when the property is missing, is an
// accessor, or holds null or undefined.
func (r *Runtime) dataProperty(base goja.Value, name string) (goja.Value, bool) {
	obj := r.toObject(base)
	for depth := 0; obj != nil && depth < maxProtoDepth; depth++ {
		if isProxy(obj) {
			return nil, false
		}
		desc, err := r.ownDescriptor(goja.Undefined(), obj, r.vm.ToValue(name))
		if err != nil {
			return nil, false
		}
		if goja.IsUndefined(desc) {
			obj = obj.Prototype()
			continue
		}
		d := desc.ToObject(r.vm)
		if !slices.Contains(d.Keys(), "value") {
			return nil, false
		}
		v := d.Get("value")
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return nil, false
		}
		return v, true
	}
	return nil, false
}

// toObject boxes primitives. It returns nil for null and undefined.
func (r *Runtime) toObject(v goja.Value) *goja.Object {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if obj, ok := v.(*goja.Object); ok {
		return obj
	}
	return v.ToObject(r.vm)
}

var proxyType = reflect.TypeOf(goja.Proxy{})

func isProxy(obj *goja.Object) bool {
	return obj.ExportType() == proxyType
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' ||
		'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}

func isIdent(name string) bool {
	if name == "" || '0' <= name[0] && name[0] <= '9' {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isIdentByte(name[i]) {
			return false
		}
	}
	return true
}
