package server

import (
	"github.com/tidwall/gjson"

	"github.com/modelbridge/rtcore/rterrors"
	"github.com/modelbridge/rtcore/schema"
)

// NewModeledError builds the taxonomy error for a modeled error shape:
// fault from the error trait, status from httpError, and retry hints from
// the retryable trait. Handlers return these to surface typed failures.
func NewModeledError(s *schema.Schema, message string) *rterrors.Error {
	e := &rterrors.Error{
		Kind:      rterrors.KindCallModeled,
		Fault:     rterrors.FaultClient,
		RetrySafe: rterrors.RetrySafeNo,
		Message:   message,
		SchemaID:  string(s.ID()),
	}
	if raw, ok := s.GetTrait(schema.TraitError); ok {
		if gjson.ParseBytes(raw).String() == "server" {
			e.Fault = rterrors.FaultServer
		}
	}
	if raw, ok := s.GetTrait(schema.TraitHTTPError); ok {
		if code := gjson.ParseBytes(raw).Int(); code > 0 {
			e.HTTPStatus = int(code)
		}
	}
	if raw, ok := s.GetTrait(schema.TraitRetryable); ok {
		e.RetrySafe = rterrors.RetrySafeYes
		if gjson.GetBytes(raw, "throttling").Bool() {
			e.Throttle = true
		}
	}
	return e
}
