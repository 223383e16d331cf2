package plugin

import (
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

func interfaceToStarlark(value interface{}) (starlark.Value, error) {
	// handle a few simple and common cases first
	switch value := value.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return value, nil
	case string:
		return starlark.String(value), nil
	case int:
		return starlark.MakeInt(value), nil
	case int64:
		return starlark.MakeInt64(value), nil
	case bool:
		return starlark.Bool(value), nil
	case float32:
		return starlark.Float(value), nil
	case float64:
		return starlark.Float(value), nil
	case []string:
		items := make([]starlark.Value, len(value))
		for idx, raw := range value {
			items[idx] = starlark.String(raw)
		}

		return starlark.NewList(items), nil
	case map[string]string:
		dict := starlark.NewDict(len(value))
		for k, v := range value {
			err := dict.SetKey(starlark.String(k), starlark.String(v))
			if err != nil {
				return nil, err
			}
		}

		return dict, nil
	}

	refValue := reflect.ValueOf(value)
	switch refValue.Kind() {
	case reflect.Ptr, reflect.Interface:
		if refValue.IsNil() {
			return starlark.None, nil
		}
		return interfaceToStarlark(refValue.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return starlark.MakeInt64(refValue.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return starlark.MakeUint64(refValue.Uint()), nil
	case reflect.String:
		return starlark.String(refValue.String()), nil
	case reflect.Slice, reflect.Array:
		if refValue.Kind() == reflect.Slice && refValue.IsNil() {
			return starlark.NewList(nil), nil
		}

		items := make([]starlark.Value, refValue.Len())
		for idx := 0; idx < refValue.Len(); idx++ {
			var err error
			items[idx], err = interfaceToStarlark(refValue.Index(idx).Interface())
			if err != nil {
				return nil, err
			}
		}

		return starlark.NewList(items), nil
	case reflect.Map:
		dict := starlark.NewDict(refValue.Len())
		iter := refValue.MapRange()
		for iter.Next() {
			key, err := interfaceToStarlark(iter.Key().Interface())
			if err != nil {
				return nil, err
			}

			value, err := interfaceToStarlark(iter.Value().Interface())
			if err != nil {
				return nil, err
			}

			err = dict.SetKey(key, value)
			if err != nil {
				return nil, err
			}
		}

		return dict, nil
	case reflect.Struct:
		// exported fields become dict entries with a lower case first letter (Commit.Short -> "short")
		refType := refValue.Type()
		dict := starlark.NewDict(refType.NumField())
		for idx := 0; idx < refType.NumField(); idx++ {
			field := refType.Field(idx)
			if field.PkgPath != "" {
				continue
			}

			value, err := interfaceToStarlark(refValue.Field(idx).Interface())
			if err != nil {
				return nil, err
			}

			err = dict.SetKey(starlark.String(lowerFirst(field.Name)), value)
			if err != nil {
				return nil, err
			}
		}

		return dict, nil
	}

	return nil, eris.Errorf("encountered unsupported type %v", refValue.Kind())
}

func lowerFirst(name string) string {
	first, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToLower(first)) + name[size:]
}

func starlarkToInterface(value starlark.Value) (interface{}, error) {
	switch value := value.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.String:
		return value.GoString(), nil
	case starlark.Bool:
		return bool(value), nil
	case starlark.Int:
		num, ok := value.Int64()
		if !ok {
			return nil, eris.Errorf("integer %s is too large", value.String())
		}
		return int(num), nil
	case starlark.Float:
		return float64(value), nil
	case *starlark.List:
		return iterableToInterface(value)
	case starlark.Tuple:
		return iterableToInterface(value)
	case *starlark.Dict:
		result := make(map[string]interface{}, value.Len())
		for _, item := range value.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, eris.Errorf("expected string keys but found %s", item[0].Type())
			}

			converted, err := starlarkToInterface(item[1])
			if err != nil {
				return nil, eris.Wrapf(err, "failed to convert %s", key.GoString())
			}

			result[key.GoString()] = converted
		}

		return result, nil
	}

	return nil, eris.Errorf("encountered unsupported type %s", value.Type())
}

type starlarkIterable interface {
	Len() int
	Iterate() starlark.Iterator
}

func iterableToInterface(input starlarkIterable) ([]interface{}, error) {
	result := make([]interface{}, 0, input.Len())
	iter := input.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		converted, err := starlarkToInterface(item)
		if err != nil {
			return nil, err
		}
		result = append(result, converted)
	}
	return result, nil
}

func stringField(dict map[string]interface{}, key string) (string, error) {
	raw, ok := dict[key]
	if !ok || raw == nil {
		return "", nil
	}

	value, ok := raw.(string)
	if !ok {
		return "", eris.Errorf("expected %s to be a string but found %T", key, raw)
	}
	return strings.TrimSpace(value), nil
}
