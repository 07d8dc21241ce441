package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	liberrors "github.com/listenupapp/library-server/internal/errors"
	"github.com/listenupapp/library-server/internal/telemetry"
)

// FieldResolver produces the value of one field. source is the parent
// object's value, nil at the root. The result may be a Thunk.
type FieldResolver func(ctx context.Context, source any, args map[string]any) (any, error)

// StreamResolver opens the event sequence of a subscription field. The
// sequence ends when ctx is done.
type StreamResolver func(ctx context.Context, args map[string]any) (iter.Seq[any], error)

// Thunk is a value that becomes available later, typically a batched load.
type Thunk interface {
	ResolveValue(ctx context.Context) (any, error)
}

// Resolvers binds schema fields to code. Fields is keyed by object type
// name, then field name. Streams is keyed by subscription field name.
type Resolvers struct {
	Fields  map[string]map[string]FieldResolver
	Streams map[string]StreamResolver
}

// Request is a GraphQL request as sent over HTTP.
type Request struct {
	Query         string         `json:"query" doc:"GraphQL document"`
	OperationName string         `json:"operationName,omitempty" doc:"Operation to run when the document holds several"`
	Variables     map[string]any `json:"variables,omitempty" doc:"Variable values"`
	Extensions    map[string]any `json:"extensions,omitempty" doc:"Protocol extensions, ignored"`
}

// Response is a GraphQL result. Data is absent when the request failed
// before execution and null when a non-null root field failed.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors gqlerror.List   `json:"errors,omitempty"`
}

// ErrorResponse wraps request-level errors.
func ErrorResponse(errs ...*gqlerror.Error) *Response {
	return &Response{Errors: errs}
}

// Operation is a parsed, validated operation ready to run.
type Operation struct {
	def  *ast.OperationDefinition
	vars map[string]any
}

// Type returns query, mutation or subscription.
func (o *Operation) Type() ast.Operation { return o.def.Operation }

// Name returns the operation name, possibly empty.
func (o *Operation) Name() string { return o.def.Name }

// Executor runs operations against a schema.
type Executor struct {
	schema    *ast.Schema
	resolvers Resolvers
	logger    *slog.Logger
	eventCtx  func(context.Context) context.Context
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEventContext sets a hook run before each subscription event is
// resolved, used to attach fresh per-pass state such as loaders.
func WithEventContext(fn func(context.Context) context.Context) Option {
	return func(e *Executor) { e.eventCtx = fn }
}

// New creates an Executor.
func New(schema *ast.Schema, resolvers Resolvers, opts ...Option) *Executor {
	e := &Executor{
		schema:    schema,
		resolvers: resolvers,
		logger:    slog.New(slog.DiscardHandler),
		eventCtx:  func(ctx context.Context) context.Context { return ctx },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the executor's schema.
func (e *Executor) Schema() *ast.Schema { return e.schema }

// Prepare parses and validates req and coerces its variables.
func (e *Executor) Prepare(req Request) (*Operation, gqlerror.List) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, gqlerror.List{RequestError(liberrors.CodeValidationFailed, "must provide a query string")}
	}

	doc, errs := gqlparser.LoadQuery(e.schema, req.Query)
	if len(errs) > 0 {
		return nil, tag(errs, liberrors.CodeValidationFailed)
	}

	def := doc.Operations.ForName(req.OperationName)
	if def == nil {
		msg := "must provide operation name if the query contains multiple operations"
		if req.OperationName != "" {
			msg = fmt.Sprintf("unknown operation named %q", req.OperationName)
		}
		return nil, gqlerror.List{RequestError(liberrors.CodeValidationFailed, msg)}
	}

	for _, sel := range def.SelectionSet {
		if f, ok := sel.(*ast.Field); ok && (f.Name == "__schema" || f.Name == "__type") {
			return nil, gqlerror.List{RequestError(liberrors.CodeValidationFailed, "introspection is not supported")}
		}
	}

	vars, err := validator.VariableValues(e.schema, def, req.Variables)
	if err != nil {
		var gerr *gqlerror.Error
		if !errors.As(err, &gerr) {
			gerr = gqlerror.Wrap(err)
		}
		return nil, tag(gqlerror.List{gerr}, liberrors.CodeBadUserInput)
	}

	return &Operation{def: def, vars: vars}, nil
}

// Execute prepares and runs a query or mutation.
func (e *Executor) Execute(ctx context.Context, req Request) *Response {
	op, errs := e.Prepare(req)
	if errs != nil {
		return &Response{Errors: errs}
	}
	if op.Type() == ast.Subscription {
		return ErrorResponse(RequestError(liberrors.CodeValidationFailed, "subscriptions require the streaming endpoint"))
	}
	return e.Run(ctx, op)
}

// Run executes a query or mutation. Mutation root fields run one after
// another; everything else runs breadth first.
func (e *Executor) Run(ctx context.Context, op *Operation) *Response {
	root := e.rootType(op.Type())
	if root == nil || op.Type() == ast.Subscription {
		return ErrorResponse(RequestError(liberrors.CodeValidationFailed, fmt.Sprintf("%s operations are not supported here", op.Type())))
	}

	ctx, span := e.startSpan(ctx, op)
	defer span.End()

	p := &pass{exec: e, ctx: ctx, vars: op.vars}
	data := newNode(&ast.Type{NamedType: root.Name})
	p.expandObject(data, root, nil, op.def.SelectionSet, nil)
	tasks := p.takeNext()

	if op.Type() == ast.Mutation {
		for _, t := range tasks {
			p.run([]*task{t})
		}
	} else {
		p.run(tasks)
	}

	resp := p.response(data)
	if len(resp.Errors) > 0 {
		span.SetStatus(codes.Error, resp.Errors[0].Message)
		span.SetAttributes(attribute.Int("graphql.errors", len(resp.Errors)))
	}
	return resp
}

// Subscribe opens a subscription. It returns either a result channel, closed
// when the subscription ends, or a request-level error response.
func (e *Executor) Subscribe(ctx context.Context, op *Operation) (<-chan *Response, *Response) {
	if op.Type() != ast.Subscription || e.schema.Subscription == nil {
		return nil, ErrorResponse(RequestError(liberrors.CodeValidationFailed, "the streaming endpoint only serves subscriptions"))
	}
	root := e.schema.Subscription

	fields := collectFields(root, op.def.SelectionSet, op.vars)
	if len(fields) != 1 {
		return nil, ErrorResponse(RequestError(liberrors.CodeValidationFailed, "a subscription must select exactly one root field"))
	}
	cf := fields[0]
	first := cf.fields[0]

	open := e.resolvers.Streams[cf.name()]
	if open == nil {
		return nil, ErrorResponse(RequestError(liberrors.CodeInternalServerError, "no stream for Subscription."+cf.name()))
	}
	events, err := open(ctx, first.ArgumentMap(op.vars))
	if err != nil {
		return nil, ErrorResponse(toGraphQLError(err, ast.Path{ast.PathName(cf.key)}, first))
	}

	out := make(chan *Response)
	go func() {
		defer close(out)
		for payload := range events {
			resp := e.resolveEvent(e.eventCtx(ctx), op, root, cf, payload)
			select {
			case out <- resp:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// resolveEvent runs the selection of the subscription field on one payload.
func (e *Executor) resolveEvent(ctx context.Context, op *Operation, root *ast.Definition, cf *collectedField, payload any) *Response {
	ctx, span := e.startSpan(ctx, op)
	defer span.End()

	p := &pass{exec: e, ctx: ctx, vars: op.vars}
	data := newNode(&ast.Type{NamedType: root.Name})
	data.setObject()
	def := cf.fields[0].Definition
	child := newNode(def.Type)
	data.addField(cf.key, child)

	p.complete(child, def.Type, payload, cf, ast.Path{ast.PathName(cf.key)}, root.Name+"."+def.Name)
	p.run(p.takeNext())
	return p.response(data)
}

func (e *Executor) rootType(op ast.Operation) *ast.Definition {
	switch op {
	case ast.Query:
		return e.schema.Query
	case ast.Mutation:
		return e.schema.Mutation
	case ast.Subscription:
		return e.schema.Subscription
	}
	return nil
}

func (e *Executor) startSpan(ctx context.Context, op *Operation) (context.Context, trace.Span) {
	return telemetry.Tracer().Start(ctx, "graphql."+string(op.Type()), trace.WithAttributes(
		attribute.String("graphql.operation.type", string(op.Type())),
		attribute.String("graphql.operation.name", op.Name()),
	))
}

// task resolves one field of one object into out.
type task struct {
	parent *ast.Definition
	source any
	field  *collectedField
	path   ast.Path
	out    *node
}

// pass is one execution of an operation.
type pass struct {
	exec *Executor
	ctx  context.Context
	vars map[string]any
	errs gqlerror.List
	next []*task
}

func (p *pass) takeNext() []*task {
	t := p.next
	p.next = nil
	return t
}

// run resolves tasks depth by depth. Within a depth every resolver runs
// before any thunk is awaited.
func (p *pass) run(tasks []*task) {
	type waiting struct {
		t     *task
		thunk Thunk
	}

	for len(tasks) > 0 {
		var pending []waiting
		for _, t := range tasks {
			v, err := p.resolve(t)
			if err != nil {
				p.fail(t, err)
				continue
			}
			if th, ok := v.(Thunk); ok {
				pending = append(pending, waiting{t, th})
				continue
			}
			p.completeTask(t, v)
		}

		for _, w := range pending {
			v, err := w.thunk.ResolveValue(p.ctx)
			if err != nil {
				p.fail(w.t, err)
				continue
			}
			p.completeTask(w.t, v)
		}

		tasks = p.takeNext()
	}
}

func (p *pass) resolve(t *task) (v any, err error) {
	name := t.field.name()
	fn := p.exec.resolvers.Fields[t.parent.Name][name]
	if fn == nil {
		return nil, liberrors.Internal(fmt.Sprintf("no resolver for %s.%s", t.parent.Name, name))
	}

	defer func() {
		if r := recover(); r != nil {
			p.exec.logger.ErrorContext(p.ctx, "resolver panicked",
				"field", t.parent.Name+"."+name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = liberrors.Internal(fmt.Sprintf("resolver %s.%s panicked", t.parent.Name, name))
		}
	}()
	return fn(p.ctx, t.source, t.field.fields[0].ArgumentMap(p.vars))
}

func (p *pass) fail(t *task, err error) {
	gerr := toGraphQLError(err, t.path, t.field.fields[0])
	p.errs = append(p.errs, gerr)

	level := slog.LevelWarn
	if liberrors.KindOf(err) == liberrors.KindInternal {
		level = slog.LevelError
	}
	p.exec.logger.Log(p.ctx, level, "field resolution failed",
		"field", t.parent.Name+"."+t.field.name(),
		"path", t.path.String(),
		"code", gerr.Extensions[extCode],
		"error", err,
	)
}

func (p *pass) completeTask(t *task, v any) {
	def := t.field.fields[0].Definition
	p.complete(t.out, def.Type, v, t.field, t.path, t.parent.Name+"."+def.Name)
}

// complete converts v to the shape of typ, queueing sub-field tasks for
// objects on the next depth.
func (p *pass) complete(out *node, typ *ast.Type, v any, cf *collectedField, path ast.Path, coord string) {
	if typ.Elem != nil {
		items, ok := listItems(v)
		if !ok {
			p.nullOrError(out, typ, v, cf, path, coord)
			return
		}
		out.setList(len(items))
		for i, it := range items {
			child := newNode(typ.Elem)
			out.items = append(out.items, child)
			p.complete(child, typ.Elem, it, cf, appendPath(path, ast.PathIndex(i)), coord)
		}
		return
	}

	if isNil(v) {
		p.nullOrError(out, typ, v, cf, path, coord)
		return
	}

	def := p.exec.schema.Types[typ.NamedType]
	if def == nil {
		p.errs = append(p.errs, toGraphQLError(liberrors.Internal("unknown type "+typ.NamedType), path, cf.fields[0]))
		return
	}

	switch def.Kind {
	case ast.Object:
		p.expandObject(out, def, v, cf.selectionSet(), path)
	case ast.Scalar, ast.Enum:
		leaf, err := serializeLeaf(def.Name, v)
		if err != nil {
			p.errs = append(p.errs, toGraphQLError(liberrors.Internal(err.Error()), path, cf.fields[0]))
			return
		}
		out.setLeaf(leaf)
	default:
		p.errs = append(p.errs, toGraphQLError(liberrors.Internal("unsupported type kind "+string(def.Kind)), path, cf.fields[0]))
	}
}

// nullOrError leaves out null, reporting an error when typ forbids it.
func (p *pass) nullOrError(out *node, typ *ast.Type, v any, cf *collectedField, path ast.Path, coord string) {
	out.kind = kindNull
	if !isNil(v) {
		p.errs = append(p.errs, toGraphQLError(liberrors.Internal(fmt.Sprintf("expected a list for %s, got %T", coord, v)), path, cf.fields[0]))
		return
	}
	if typ.NonNull {
		p.errs = append(p.errs, &gqlerror.Error{
			Message:    fmt.Sprintf("Cannot return null for non-nullable field %s.", coord),
			Path:       path,
			Extensions: map[string]any{extCode: string(liberrors.CodeInternalServerError)},
		})
	}
}

// expandObject fills out with the selected fields of an object value.
// __typename is answered directly; every other field becomes a task.
func (p *pass) expandObject(out *node, def *ast.Definition, source any, set ast.SelectionSet, path ast.Path) {
	out.setObject()
	for _, cf := range collectFields(def, set, p.vars) {
		if cf.name() == "__typename" {
			child := newNode(ast.NonNullNamedType("String", nil))
			child.setLeaf(def.Name)
			out.addField(cf.key, child)
			continue
		}
		child := newNode(cf.fields[0].Definition.Type)
		out.addField(cf.key, child)
		p.next = append(p.next, &task{
			parent: def,
			source: source,
			field:  cf,
			path:   appendPath(path, ast.PathName(cf.key)),
			out:    child,
		})
	}
}

func (p *pass) response(data *node) *Response {
	raw, err := data.marshal()
	if err != nil {
		p.exec.logger.ErrorContext(p.ctx, "encoding result failed", "error", err)
		return ErrorResponse(RequestError(liberrors.CodeInternalServerError, "internal server error"))
	}
	return &Response{Data: raw, Errors: p.errs}
}

func appendPath(path ast.Path, el ast.PathElement) ast.Path {
	out := make(ast.Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, el)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

// listItems treats a typed nil slice as empty; only untyped nil and nil
// pointers are null lists.
func listItems(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func serializeLeaf(scalar string, v any) (any, error) {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		v = rv.Elem().Interface()
	}
	switch scalar {
	case "Int":
		switch n := v.(type) {
		case int:
			return n, nil
		case int32:
			return int(n), nil
		case int64:
			return n, nil
		}
	case "Float":
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		}
	case "String", "ID":
		switch s := v.(type) {
		case string:
			return s, nil
		case fmt.Stringer:
			return s.String(), nil
		}
	case "Boolean":
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("cannot serialize %T as %s", v, scalar)
}
