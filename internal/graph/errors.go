package graph

import (
	"context"
	"errors"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	liberrors "github.com/listenupapp/library-server/internal/errors"
)

// Extension keys.
const (
	extCode          = "code"
	extKind          = "kind"
	extCause         = "cause"
	extInvalidArgs   = "invalidArgs"
	extInvalidFields = "invalidFields"
)

// fieldLister is implemented by error details that name offending arguments.
type fieldLister interface {
	Fields() []string
}

// toGraphQLError converts a resolver error. Structured errors keep their
// message and codes; anything else is reported as an internal error with a
// generic message.
func toGraphQLError(err error, path ast.Path, field *ast.Field) *gqlerror.Error {
	out := &gqlerror.Error{
		Path:       path,
		Extensions: map[string]any{},
	}
	if field != nil && field.Position != nil {
		out.Locations = []gqlerror.Location{{Line: field.Position.Line, Column: field.Position.Column}}
	}

	var e *liberrors.Error
	switch {
	case errors.As(err, &e):
		out.Message = e.Message
		out.Extensions[extCode] = string(e.Code)
		out.Extensions[extKind] = string(e.Kind)
		if cause := e.Cause(); cause != nil && e.Kind != liberrors.KindInternal {
			out.Extensions[extCause] = cause.Error()
		}
		if e.InvalidArgs != nil {
			out.Extensions[extInvalidArgs] = e.InvalidArgs
		}
		if fl, ok := e.Details.(fieldLister); ok {
			if fields := fl.Fields(); len(fields) > 0 {
				out.Extensions[extInvalidFields] = fields
			}
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		out.Message = "request cancelled"
		out.Extensions[extCode] = string(liberrors.CodeInternalServerError)
		out.Extensions[extKind] = string(liberrors.KindInternal)
	default:
		out.Message = "internal server error"
		out.Extensions[extCode] = string(liberrors.CodeInternalServerError)
		out.Extensions[extKind] = string(liberrors.KindInternal)
	}
	return out
}

// RequestError builds an error that stops the whole request.
func RequestError(code liberrors.Code, msg string) *gqlerror.Error {
	return &gqlerror.Error{
		Message:    msg,
		Extensions: map[string]any{extCode: string(code)},
	}
}

// tag stamps code onto parser and validator errors.
func tag(list gqlerror.List, code liberrors.Code) gqlerror.List {
	for _, e := range list {
		if e.Extensions == nil {
			e.Extensions = map[string]any{}
		}
		if _, ok := e.Extensions[extCode]; !ok {
			e.Extensions[extCode] = string(code)
		}
	}
	return list
}
