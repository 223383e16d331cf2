// Package template implements the tiny `{key}` substitution language used in configuration values.
package template

import (
	"fmt"
	"io"
	"reflect"
	"regexp"
	"strings"

	"github.com/valyala/fasttemplate"
)

var keyPattern = regexp.MustCompile(`^[$\w.-]+$`)

// Stringer values are rendered through String(), everything else through fmt.
type Stringer interface {
	String() string
}

// Render replaces every `{key}` token in tmpl with the matching value from data. Dotted keys
// (`{env.HOME}`) walk nested maps and struct fields. Tokens without a value are left as they are.
// Substituted values are not rendered again.
func Render(tmpl string, data map[string]interface{}) string {
	return fasttemplate.ExecuteFuncString(tmpl, "{", "}", func(w io.Writer, tag string) (int, error) {
		prefix := ""
		// "{{key}" keeps the outer brace and substitutes the inner token
		if idx := strings.LastIndexByte(tag, '{'); idx >= 0 {
			prefix = "{" + tag[:idx]
			tag = tag[idx+1:]
		}

		if keyPattern.MatchString(tag) {
			if value, ok := Lookup(data, tag); ok {
				return io.WriteString(w, prefix+toString(value))
			}
		}

		return io.WriteString(w, prefix+"{"+tag+"}")
	})
}

// Lookup resolves a dotted key against data
func Lookup(data map[string]interface{}, key string) (interface{}, bool) {
	var node interface{} = data
	for _, part := range strings.Split(key, ".") {
		var ok bool
		node, ok = child(node, part)
		if !ok || node == nil {
			return nil, false
		}
	}

	return node, true
}

func child(node interface{}, key string) (interface{}, bool) {
	switch value := node.(type) {
	case map[string]interface{}:
		v, ok := value[key]
		return v, ok
	case map[string]string:
		v, ok := value[key]
		return v, ok
	}

	ref := reflect.ValueOf(node)
	for ref.Kind() == reflect.Ptr {
		if ref.IsNil() {
			return nil, false
		}
		ref = ref.Elem()
	}

	switch ref.Kind() {
	case reflect.Map:
		if ref.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := ref.MapIndex(reflect.ValueOf(key).Convert(ref.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Struct:
		field := ref.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, key)
		})
		if !field.IsValid() || !field.CanInterface() {
			return nil, false
		}
		return field.Interface(), true
	}

	return nil, false
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case Stringer:
		return v.String()
	}

	return fmt.Sprint(value)
}

// Merge combines several data maps into a new one. Later maps win on key collisions.
func Merge(maps ...map[string]interface{}) map[string]interface{} {
	size := 0
	for _, m := range maps {
		size += len(m)
	}

	result := make(map[string]interface{}, size)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}
