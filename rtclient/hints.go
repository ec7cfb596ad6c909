package rtclient

import (
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/modelbridge/rtcore/rterrors"
	"github.com/modelbridge/rtcore/schema"
)

// injectIdempotencyTokens assigns a fresh UUIDv4 to every input member
// annotated as an idempotency token that is nil or empty.
func injectIdempotencyTokens(op *schema.Schema, input any) {
	if op == nil || op.InputSchema() == nil {
		return
	}
	fields, ok := input.(map[string]any)
	if !ok {
		return
	}
	for _, m := range op.InputSchema().Members() {
		if !m.HasDirectTrait(schema.TraitIdempotencyToken) {
			continue
		}
		if v, set := fields[m.Name]; set {
			if s, isStr := v.(string); !isStr || s != "" {
				continue
			}
		}
		fields[m.Name] = uuid.NewString()
	}
}

// applyOperationHints folds model-derived retry hints into err: the
// modeled error shape's retryable trait, then the operation's
// readonly/idempotent traits for errors whose safety is still undecided.
func applyOperationHints(call *Call, err *rterrors.Error) {
	if call == nil || call.Op == nil || err == nil {
		return
	}
	if err.Kind == rterrors.KindCallModeled && err.SchemaID != "" {
		// Modeled errors default to terminal unless their shape opts in.
		if raw, ok := errorShapeTrait(call, err.SchemaID, schema.TraitRetryable); ok {
			err.RetrySafe = rterrors.RetrySafeYes
			if gjson.GetBytes(raw, "throttling").Bool() {
				err.Throttle = true
			}
		}
	}
	if err.RetrySafe == rterrors.RetrySafeMaybe {
		if call.Op.HasTrait(schema.TraitReadonly) || call.Op.HasTrait(schema.TraitIdempotent) {
			err.RetrySafe = rterrors.RetrySafeYes
		}
	}
}

// errorShapeTrait resolves a trait on the modeled error's schema through
// the call's operation-scoped error index when one is attached.
func errorShapeTrait(call *Call, schemaID string, trait string) ([]byte, bool) {
	for _, errSchema := range call.Errors {
		if string(errSchema.ID()) == schemaID {
			raw, ok := errSchema.GetTrait(trait)
			return raw, ok
		}
	}
	return nil, false
}
