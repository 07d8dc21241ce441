package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/vektah/gqlparser/v2/ast"

	liberrors "github.com/listenupapp/library-server/internal/errors"
	"github.com/listenupapp/library-server/internal/graph"
	"github.com/listenupapp/library-server/internal/logger"
)

func (s *Server) registerGraphQLRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "graphqlPost",
		Method:      http.MethodPost,
		Path:        "/graphql",
		Summary:     "Execute a GraphQL query or mutation",
		Description: "Request-level failures such as parse or validation errors are reported " +
			"in the errors array with HTTP 200.",
		Tags:     []string{"GraphQL"},
		Security: []map[string][]string{{"bearer": {}}},
	}, s.handleGraphQLPost)

	huma.Register(s.api, huma.Operation{
		OperationID: "graphqlGet",
		Method:      http.MethodGet,
		Path:        "/graphql",
		Summary:     "Execute a GraphQL query",
		Description: "Mutations are rejected; use POST.",
		Tags:        []string{"GraphQL"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGraphQLGet)
}

// GraphQLRequest is the standard GraphQL-over-HTTP request body.
type GraphQLRequest struct {
	Query         string         `json:"query" doc:"GraphQL document"`
	OperationName string         `json:"operationName,omitempty" doc:"Operation to run when the document holds several"`
	Variables     map[string]any `json:"variables,omitempty" doc:"Variable values"`
	Extensions    map[string]any `json:"extensions,omitempty" doc:"Protocol extensions, ignored"`
}

// GraphQLPostInput carries the parsed body for documentation and the raw
// bytes so variables keep their exact numeric form.
type GraphQLPostInput struct {
	Body    GraphQLRequest
	RawBody []byte
}

// GraphQLGetInput carries a query in URL parameters.
type GraphQLGetInput struct {
	Query         string `query:"query" doc:"GraphQL document"`
	OperationName string `query:"operationName" doc:"Operation to run when the document holds several"`
	Variables     string `query:"variables" doc:"JSON-encoded variable values"`
}

// GraphQLOutput is a serialized graph.Response.
type GraphQLOutput struct {
	Body json.RawMessage `doc:"GraphQL response with data and errors"`
}

func (s *Server) handleGraphQLPost(ctx context.Context, input *GraphQLPostInput) (*GraphQLOutput, error) {
	var raw struct {
		Variables json.RawMessage `json:"variables"`
	}
	if err := json.Unmarshal(input.RawBody, &raw); err != nil {
		return nil, huma.Error400BadRequest("request body is not valid JSON", err)
	}
	vars, err := decodeVariables(raw.Variables)
	if err != nil {
		return nil, huma.Error400BadRequest("variables must be a JSON object", err)
	}

	return s.execute(ctx, graph.Request{
		Query:         input.Body.Query,
		OperationName: input.Body.OperationName,
		Variables:     vars,
		Extensions:    input.Body.Extensions,
	}, true)
}

func (s *Server) handleGraphQLGet(ctx context.Context, input *GraphQLGetInput) (*GraphQLOutput, error) {
	vars, err := decodeVariables([]byte(input.Variables))
	if err != nil {
		return nil, huma.Error400BadRequest("variables must be a JSON object", err)
	}

	return s.execute(ctx, graph.Request{
		Query:         input.Query,
		OperationName: input.OperationName,
		Variables:     vars,
	}, false)
}

// execute prepares and runs req. Everything the executor reports, including
// request-level failures, is an HTTP 200 GraphQL response.
func (s *Server) execute(ctx context.Context, req graph.Request, allowMutations bool) (*GraphQLOutput, error) {
	log := logger.FromContext(ctx, s.logger)

	var resp *graph.Response
	op, errs := s.exec.Prepare(req)
	switch {
	case errs != nil:
		resp = &graph.Response{Errors: errs}
	case op.Type() == ast.Subscription:
		resp = graph.ErrorResponse(graph.RequestError(liberrors.CodeValidationFailed,
			"subscriptions require the streaming endpoint"))
	case op.Type() == ast.Mutation && !allowMutations:
		resp = graph.ErrorResponse(graph.RequestError(liberrors.CodeValidationFailed,
			"mutations must be sent with POST"))
	default:
		resp = s.exec.Run(ctx, op)
	}

	if resp.Data == nil && len(resp.Errors) > 0 {
		log.WarnContext(ctx, "graphql request rejected",
			slog.String("operation", req.OperationName),
			slog.String("error", resp.Errors[0].Message))
	}

	body, err := json.Marshal(resp)
	if err != nil {
		log.ErrorContext(ctx, "failed to encode graphql response", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("failed to encode response")
	}
	return &GraphQLOutput{Body: body}, nil
}

// decodeVariables parses a variables object keeping numbers as json.Number,
// so large or integral values are not forced through float64.
func decodeVariables(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var vars map[string]any
	if err := dec.Decode(&vars); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after variables")
	}
	return vars, nil
}

// streamRequest reads a subscription request from the query string (GET)
// or a JSON body (POST).
func streamRequest(w http.ResponseWriter, r *http.Request) (graph.Request, error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		vars, err := decodeVariables([]byte(q.Get("variables")))
		if err != nil {
			return graph.Request{}, fmt.Errorf("variables must be a JSON object: %w", err)
		}
		return graph.Request{
			Query:         q.Get("query"),
			OperationName: q.Get("operationName"),
			Variables:     vars,
		}, nil
	}

	var body struct {
		Query         string          `json:"query"`
		OperationName string          `json:"operationName"`
		Variables     json.RawMessage `json:"variables"`
		Extensions    map[string]any  `json:"extensions"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStreamBody))
	if err := dec.Decode(&body); err != nil {
		return graph.Request{}, fmt.Errorf("request body is not valid JSON: %w", err)
	}
	vars, err := decodeVariables(body.Variables)
	if err != nil {
		return graph.Request{}, fmt.Errorf("variables must be a JSON object: %w", err)
	}
	return graph.Request{
		Query:         body.Query,
		OperationName: body.OperationName,
		Variables:     vars,
		Extensions:    body.Extensions,
	}, nil
}
