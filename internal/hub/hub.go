// Package hub implements the three real-time channels on top of package ws:
// chat, notifications and posts. Each type satisfies ws.Channel.
package hub

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/christopherjohns/socialhub/internal/apperr"
	"github.com/christopherjohns/socialhub/internal/router"
	"github.com/christopherjohns/socialhub/internal/ws"
)

// Router delivers domain events produced by the channels.
type Router interface {
	Route(ctx context.Context, ev router.Event) router.Result
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode unmarshals a command payload into v and validates it.
func decode(env ws.Envelope, v any) error {
	if err := env.Decode(v); err != nil {
		return apperr.Invalid("invalid %s payload", env.Type)
	}
	if err := validate.Struct(v); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			f := fields[0]
			if f.Tag() == "required" {
				return apperr.Invalid("%s is required", f.Field())
			}
			return apperr.Invalid("%s is invalid", f.Field())
		}
		return apperr.Invalid("invalid %s payload", env.Type)
	}
	return nil
}

func unknownCommand(env ws.Envelope) error {
	return apperr.Invalid("unknown command %q", env.Type)
}
