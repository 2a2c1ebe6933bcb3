package optconfig

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Set reads every field of the struct pointed to by structPtr from getter,
// using each field's `config:"..."` tag (or its snake_case name when the
// tag is absent) as the lookup key, and assigns any value found. Fields
// with no corresponding entry in getter are left at their current value —
// this is how a caller pre-populates defaults before calling Set.
//
// Mirrors the behavior fs/config/configstruct.Set documents: only string,
// bool, and integer-kinded fields are supported. Fields with no matching
// key (e.g. ConnectTimeout, HostKeyAlgorithms) are left untouched, so an
// Options struct can carry fields the overlay never populates.
func Set(getter Getter, structPtr any) error {
	v := reflect.ValueOf(structPtr)
	if v.Kind() != reflect.Ptr {
		return fmt.Errorf("optconfig: argument must be a pointer")
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("optconfig: argument must be a pointer to a struct")
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Tag.Get("config")
		if name == "" {
			name = ToSnakeCase(field.Name)
		}
		value, ok := getter.Get(name)
		if !ok || value == "" {
			continue
		}
		if err := setField(v.Field(i), value); err != nil {
			return fmt.Errorf("optconfig: field %q: %w", field.Name, err)
		}
	}
	return nil
}

func setField(f reflect.Value, value string) error {
	switch f.Kind() {
	case reflect.String:
		f.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		f.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		f.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		f.SetUint(n)
	default:
		return fmt.Errorf("unsupported field kind %s", f.Kind())
	}
	return nil
}

// ToSnakeCase converts a CamelCase identifier to snake_case, the
// convention struct fields map to config keys under when no explicit
// `config:"..."` tag is given.
func ToSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
				nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
				if prevLower || (nextLower && i > 0) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToTitleCase converts a snake_case or lower-case option name to the
// TitleCase form the scheme option assembler uses to build
// "<prefix><TitleCase(opt)>" configuration keys, e.g. "key_file" ->
// "KeyFile", "host" -> "Host".
func ToTitleCase(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
