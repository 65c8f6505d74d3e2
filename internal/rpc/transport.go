package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"account-portal/internal/rpc/typedjson"
)

const (
	DefaultMaxBatchSize   = 20
	DefaultMaxConcurrency = 8
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxBodyBytes   = 8 << 20
)

// TransportConfig bounds the work a single HTTP request may trigger.
type TransportConfig struct {
	MaxBatchSize   int
	MaxConcurrency int
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Logger         logrus.FieldLogger
}

// Transport serves a Router over HTTP with optional batching. A request names one or more
// comma separated procedures in its path; with ?batch=1 their inputs arrive keyed by index.
type Transport struct {
	router   *Router
	contexts *ContextBuilder
	cfg      TransportConfig
	logger   logrus.FieldLogger
}

func NewTransport(router *Router, contexts *ContextBuilder, cfg TransportConfig) *Transport {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Transport{router: router, contexts: contexts, cfg: cfg, logger: logger}
}

// Register mounts the transport under prefix, e.g. "/api/trpc".
func (t *Transport) Register(group gin.IRoutes, prefix string) {
	group.GET(prefix+"/*path", t.Handle)
	group.POST(prefix+"/*path", t.Handle)
}

type response struct {
	Result *resultBody `json:"result,omitempty"`
	Error  *errorBody  `json:"error,omitempty"`
}

type resultBody struct {
	Data typedjson.Envelope `json:"data"`
}

type errorBody struct {
	JSON errorShape `json:"json"`
}

type errorShape struct {
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Data    errorData `json:"data"`
}

type errorData struct {
	Code        Kind         `json:"code"`
	HTTPStatus  int          `json:"httpStatus"`
	Path        string       `json:"path,omitempty"`
	FieldErrors []FieldError `json:"fieldErrors,omitempty"`
}

type outcome struct {
	body   response
	status int
}

// Handle serves one HTTP request. Calls of a batch run concurrently and their results are
// written in request order.
func (t *Transport) Handle(c *gin.Context) {
	paths := splitPaths(c.Param("path"))
	batch := isBatch(c.Query("batch"))
	if len(paths) == 0 {
		paths = []string{""}
	}
	results := make([]outcome, len(paths))

	typ, ok := procedureTypeFor(c.Request.Method)
	switch {
	case !ok:
		t.failAll(results, paths, Errorf(KindMethodNotSupported, "method %s is not supported", c.Request.Method))
	case !batch && len(paths) > 1:
		t.failAll(results, paths, NewError(KindValidation, "batching is not enabled for this request"))
	case len(paths) > t.cfg.MaxBatchSize:
		t.failAll(results, paths, Errorf(KindPayloadTooLarge, "batch of %d calls exceeds the limit of %d", len(paths), t.cfg.MaxBatchSize))
	default:
		t.serve(c, typ, paths, batch, results)
	}

	t.write(c, batch, results)
}

func (t *Transport) serve(c *gin.Context, typ ProcedureType, paths []string, batch bool, results []outcome) {
	inputs, err := t.readInputs(c, batch, len(paths))
	if err != nil {
		t.failAll(results, paths, AsError(err))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), t.cfg.RequestTimeout)
	defer cancel()

	rc, err := t.contexts.Build(ctx, c.Request)
	if err != nil {
		t.failAll(results, paths, AsError(err))
		return
	}

	sem := make(chan struct{}, t.cfg.MaxConcurrency)
	var wg sync.WaitGroup
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = t.failure(paths[i], ctx.Err())
				return
			}
			defer func() { <-sem }()
			results[i] = t.invoke(ctx, typ, paths[i], inputs[i], rc)
		}(i)
	}
	wg.Wait()
}

// invoke runs a single call. A panicking handler only fails its own call.
func (t *Transport) invoke(ctx context.Context, typ ProcedureType, path string, input *typedjson.Envelope, rc *Context) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.WithFields(logrus.Fields{
				"path":  path,
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("rpc handler panicked")
			out = t.failure(path, NewError(KindInternal, "internal server error"))
		}
	}()

	proc, ok := t.router.Lookup(path)
	if !ok {
		return t.failure(path, Errorf(KindNotFound, "no procedure found on path %q", path))
	}
	if proc.Type() != typ {
		return t.failure(path, Errorf(KindMethodNotSupported, "%s procedures are not served over this method", proc.Type()))
	}

	raw, err := typedjson.Decode(input)
	if err != nil {
		return t.failure(path, ValidationFailed([]FieldError{{Message: err.Error()}}))
	}

	result, err := proc.Call(ctx, path, raw, rc)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return t.failure(path, ctxErr)
	}
	if err != nil {
		return t.failure(path, err)
	}

	env, err := typedjson.Encode(result)
	if err != nil {
		return t.failure(path, WrapError(KindInternal, "internal server error", fmt.Errorf("encode result: %w", err)))
	}
	return outcome{body: response{Result: &resultBody{Data: env}}, status: http.StatusOK}
}

func (t *Transport) failure(path string, err error) outcome {
	rpcErr := AsError(err)
	if rpcErr.Kind == KindInternal || rpcErr.Kind == KindUpstream {
		entry := t.logger.WithField("path", path)
		if rpcErr.Cause != nil {
			entry = entry.WithError(rpcErr.Cause)
		}
		entry.Error(rpcErr.Message)
	}

	status := rpcErr.Kind.HTTPStatus()
	return outcome{
		status: status,
		body: response{Error: &errorBody{JSON: errorShape{
			Message: rpcErr.Message,
			Code:    rpcErr.Kind.JSONRPCCode(),
			Data: errorData{
				Code:        rpcErr.Kind,
				HTTPStatus:  status,
				Path:        path,
				FieldErrors: rpcErr.Fields,
			},
		}}},
	}
}

func (t *Transport) failAll(results []outcome, paths []string, err error) {
	for i := range results {
		results[i] = t.failure(paths[i], err)
	}
}

func (t *Transport) write(c *gin.Context, batch bool, results []outcome) {
	if !batch {
		c.JSON(results[0].status, results[0].body)
		return
	}

	status := results[0].status
	bodies := make([]response, len(results))
	for i, r := range results {
		bodies[i] = r.body
		if r.status != status {
			status = http.StatusMultiStatus
		}
	}
	c.JSON(status, bodies)
}

// readInputs returns one envelope per call; calls without input get nil.
func (t *Transport) readInputs(c *gin.Context, batch bool, n int) ([]*typedjson.Envelope, error) {
	var raw []byte
	if c.Request.Method == http.MethodGet {
		raw = []byte(c.Query("input"))
	} else if c.Request.Body != nil {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, t.cfg.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, Errorf(KindPayloadTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
			}
			return nil, WrapError(KindValidation, "failed to read request body", err)
		}
		raw = body
	}

	inputs := make([]*typedjson.Envelope, n)
	if len(bytes.TrimSpace(raw)) == 0 {
		return inputs, nil
	}

	if !batch {
		var env typedjson.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, NewError(KindValidation, "input is not valid JSON")
		}
		inputs[0] = &env
		return inputs, nil
	}

	var byIndex map[string]typedjson.Envelope
	if err := json.Unmarshal(raw, &byIndex); err != nil {
		return nil, NewError(KindValidation, "batch input must be an object keyed by call index")
	}
	for key, env := range byIndex {
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= n {
			return nil, Errorf(KindValidation, "unexpected batch input key %q", key)
		}
		inputs[i] = &env
	}
	return inputs, nil
}

func procedureTypeFor(method string) (ProcedureType, bool) {
	switch method {
	case http.MethodGet:
		return TypeQuery, true
	case http.MethodPost:
		return TypeMutation, true
	}
	return "", false
}

func isBatch(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func splitPaths(param string) []string {
	param = strings.Trim(param, "/")
	if param == "" {
		return nil
	}
	return strings.Split(param, ",")
}
