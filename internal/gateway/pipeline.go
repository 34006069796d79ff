// Package gateway wires the Token Validator, Authorization Filter, SIWE
// Session Service, and upstream Forwarder into a single HTTP JSON-RPC
// handler.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"siwegateway/internal/authn"
	"siwegateway/internal/forwarder"
	"siwegateway/internal/gatewaylog"
	"siwegateway/internal/gatewaymetrics"
	"siwegateway/internal/policy"
	"siwegateway/internal/rpcerr"
	"siwegateway/internal/siwe"
)

// maxRequestBytes bounds the size of an inbound HTTP body.
const maxRequestBytes = 1 << 20

// SIWEService is the subset of the SIWE Session Service the pipeline
// depends on.
type SIWEService interface {
	GetNonce() (string, error)
	SignIn(ctx context.Context, message string, signature string) (string, error)
}

// Forwarder is the subset of the upstream Forwarder the pipeline depends
// on.
type Forwarder interface {
	Forward(ctx context.Context, body []byte) ([]byte, error)
}

var _ Forwarder = (*forwarder.Forwarder)(nil)
var _ SIWEService = (*siwe.Service)(nil)

// Pipeline is the HTTP handler for the single JSON-RPC endpoint.
type Pipeline struct {
	validator *authn.TokenValidator
	siwe      SIWEService
	forwarder Forwarder
	logger    *slog.Logger
	metrics   *gatewaymetrics.Metrics
	nowFn     func() time.Time
}

// NewPipeline builds a Pipeline over its dependencies.
func NewPipeline(validator *authn.TokenValidator, siweService SIWEService, fwd Forwarder, logger *slog.Logger, metrics *gatewaymetrics.Metrics) *Pipeline {
	return &Pipeline{
		validator: validator,
		siwe:      siweService,
		forwarder: fwd,
		logger:    logger,
		metrics:   metrics,
		nowFn:     time.Now,
	}
}

// ServeHTTP implements §4.8: extract identity, dispatch siwe_ methods
// locally, otherwise consult the Authorization Filter and forward allowed
// calls upstream verbatim. Batch requests are processed element-wise.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := gatewaylog.NewRequestID()
	ctx := gatewaylog.WithRequestID(r.Context(), requestID)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		p.writeSingle(w, nil, rpcerr.ParseError(err), true)
		return
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		p.writeSingle(w, nil, rpcerr.ParseError(errors.New("empty body")), true)
		return
	}

	identity := p.validator.Resolve(r.Header.Get("Authorization"), p.nowFn())

	w.Header().Set("Content-Type", "application/json")

	if trimmed[0] == '[' {
		var rawItems []json.RawMessage
		if err := json.Unmarshal(trimmed, &rawItems); err != nil {
			p.writeSingle(w, nil, rpcerr.ParseError(err), true)
			return
		}
		if len(rawItems) == 0 {
			p.writeSingle(w, nil, rpcerr.MalformedRequest(errors.New("empty batch")), true)
			return
		}
		results := make([]json.RawMessage, len(rawItems))
		for i, item := range rawItems {
			results[i] = p.handleOne(ctx, identity, item)
		}
		out, err := json.Marshal(results)
		if err != nil {
			p.writeSingle(w, nil, rpcerr.New(rpcerr.KindUpstreamUnreachable, "internal error", err), true)
			return
		}
		_, _ = w.Write(out)
		return
	}

	result := p.handleOne(ctx, identity, trimmed)
	_, _ = w.Write(result)
}

func (p *Pipeline) handleOne(ctx context.Context, identity authn.Identity, raw json.RawMessage) json.RawMessage {
	start := p.nowFn()
	logger := gatewaylog.FromContext(ctx, p.logger)

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return p.render(nil, rpcerr.ParseError(err), true)
	}
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		return p.render(req.ID, rpcerr.MalformedRequest(errors.New("invalid envelope")), identity.IsAnonymous())
	}

	if strings.HasPrefix(req.Method, "siwe_") {
		resp := p.dispatchSIWE(ctx, req)
		p.record(req.Method, gatewaymetrics.OutcomeSIWEHandled, start)
		return resp
	}

	verdict := policy.Evaluate(identity, req.Method)
	if verdict == policy.Deny {
		code, message := rpcerr.CodeAndMessage(rpcerr.KindUnauthorized, identity.IsAnonymous())
		logger.Info("request denied", slog.String("method", req.Method), slog.Bool("anonymous", identity.IsAnonymous()))
		p.record(req.Method, gatewaymetrics.OutcomeDenied, start)
		return mustMarshal(errorResponse(req.ID, code, message))
	}

	respBytes, err := p.forwarder.Forward(ctx, raw)
	if err != nil {
		logger.Warn("upstream forward failed", slog.String("method", req.Method), slog.String("error", err.Error()))
		p.record(req.Method, gatewaymetrics.OutcomeError, start)
		return p.render(req.ID, rpcerr.UpstreamUnreachable(err), false)
	}
	p.record(req.Method, gatewaymetrics.OutcomeAllowed, start)
	return json.RawMessage(respBytes)
}

func (p *Pipeline) dispatchSIWE(ctx context.Context, req Request) json.RawMessage {
	switch req.Method {
	case "siwe_getNonce":
		nonce, err := p.siwe.GetNonce()
		if err != nil {
			return p.render(req.ID, err, false)
		}
		return mustMarshal(resultResponse(req.ID, nonce))

	case "siwe_signIn":
		var params []string
		if err := json.Unmarshal(req.Params, &params); err != nil || len(params) != 2 {
			return p.render(req.ID, rpcerr.InvalidCredentials(errors.New("malformed params")), false)
		}
		token, err := p.siwe.SignIn(ctx, params[0], params[1])
		if err != nil {
			return p.render(req.ID, err, false)
		}
		return mustMarshal(resultResponse(req.ID, token))

	default:
		return mustMarshal(errorResponse(req.ID, rpcerr.CodeMethodNotFound, "Method not found"))
	}
}

func (p *Pipeline) render(id json.RawMessage, err error, anonymous bool) json.RawMessage {
	gwErr, ok := rpcerr.As(err)
	if !ok {
		gwErr = rpcerr.New(rpcerr.KindUpstreamUnreachable, "internal error", err)
	}
	code, message := rpcerr.CodeAndMessage(gwErr.Kind, anonymous)
	return mustMarshal(errorResponse(id, code, message))
}

func (p *Pipeline) writeSingle(w http.ResponseWriter, id json.RawMessage, err error, anonymous bool) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(p.render(id, err, anonymous))
}

func (p *Pipeline) record(method string, outcome gatewaymetrics.Outcome, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.Observe(method, outcome, p.nowFn().Sub(start))
}

func mustMarshal(resp *Response) json.RawMessage {
	raw, err := json.Marshal(resp)
	if err != nil {
		return json.RawMessage(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal error"}}`)
	}
	return raw
}
