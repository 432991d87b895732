// Package validate turns struct validation failures into the human-readable
// problem strings reported by extension configuration checks and the
// application config loader.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// New creates a validator that names fields after their configuration keys
// rather than their Go identifiers.
func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"mapstructure", "yaml", "json"} {
			tag := fld.Tag.Get(key)
			if tag == "" || tag == "-" {
				continue
			}
			if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
				return name
			}
		}
		return strings.ToLower(fld.Name)
	})
	return v
}

// The shared instance carries no state beyond its rules and is safe for
// concurrent use.
var shared = New()

// Problems validates s and returns one message per failing field. A nil
// return means s is valid.
func Problems(s any) []string {
	err := shared.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, message(fe.Field(), fe.Tag(), fe.Param()))
	}
	return out
}

// Struct validates s and returns every problem joined into a single error.
func Struct(s any) error {
	problems := Problems(s)
	if len(problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(problems, "; "))
}

// message maps a validation tag to a readable sentence.
func message(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a host:port address", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
