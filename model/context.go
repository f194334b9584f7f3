package model

import (
	"context"
	"errors"
	"fmt"
)

// RequestContext carries the identity and tenancy information threaded
// through every backend call: the bearer token and the active company that
// scope the request, plus tracing identifiers. It is immutable after
// construction and safe for concurrent reads. It replaces the ambient
// mutable header globals of earlier console generations.
type RequestContext struct {
	SubjectID     string
	Email         string
	CompanyID     string
	Token         string
	CorrelationID string
	TraceID       string
	Locale        string
}

// Validate checks that the fields every authenticated backend call needs
// are present. Token and CompanyID must be non-empty.
func (rc *RequestContext) Validate() error {
	var errs []error
	if rc.Token == "" {
		errs = append(errs, fmt.Errorf("Token is required"))
	}
	if rc.CompanyID == "" {
		errs = append(errs, fmt.Errorf("CompanyID is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or
// returns nil if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}

// MustRequestContext extracts the RequestContext from the context,
// panicking if it is not present. Safe to call in handlers guaranteed to
// run behind the authentication middleware.
func MustRequestContext(ctx context.Context) *RequestContext {
	rctx := RequestContextFrom(ctx)
	if rctx == nil {
		panic("model: RequestContext not found in context")
	}
	return rctx
}
