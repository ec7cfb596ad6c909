package rtclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/modelbridge/rtcore/rtcontext"
	"github.com/modelbridge/rtcore/rterrors"
	"github.com/modelbridge/rtcore/schema"
)

// Endpoint is the resolved destination of one call: a base URI, headers to
// merge into the request, and a typed property bag for scheme-specific
// hints.
type Endpoint struct {
	URI        *url.URL
	Headers    http.Header
	Properties *rtcontext.Context
}

// EndpointResolver produces the Endpoint for one operation call. Input is
// the call's typed input, supplied so resolvers can expand hostLabel
// members into an endpoint trait's hostPrefix template.
type EndpointResolver interface {
	ResolveEndpoint(ctx context.Context, op *schema.Schema, input any) (*Endpoint, error)
}

// StaticEndpointResolver resolves every call to one base URI, applying the
// operation's endpoint-trait hostPrefix template when present.
type StaticEndpointResolver struct {
	BaseURL *url.URL
}

// NewStaticEndpointResolver parses rawURL into a StaticEndpointResolver.
func NewStaticEndpointResolver(rawURL string) (*StaticEndpointResolver, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, rterrors.Wrap(rterrors.KindCallValidation, rterrors.FaultClient, err, "rtclient: parse endpoint %q", rawURL)
	}
	return &StaticEndpointResolver{BaseURL: u}, nil
}

// ResolveEndpoint implements EndpointResolver.
func (r *StaticEndpointResolver) ResolveEndpoint(ctx context.Context, op *schema.Schema, input any) (*Endpoint, error) {
	u := *r.BaseURL
	prefix, err := hostPrefix(op, input)
	if err != nil {
		return nil, err
	}
	if prefix != "" {
		u.Host = prefix + u.Host
	}
	return &Endpoint{URI: &u, Headers: http.Header{}, Properties: rtcontext.New()}, nil
}

// hostPrefix expands the operation's endpoint trait template, substituting
// {member} references with the input's hostLabel member values.
func hostPrefix(op *schema.Schema, input any) (string, error) {
	if op == nil {
		return "", nil
	}
	raw, ok := op.GetTrait(schema.TraitEndpoint)
	if !ok {
		return "", nil
	}
	template := gjson.GetBytes(raw, "hostPrefix").String()
	if template == "" {
		return "", nil
	}

	fields, _ := input.(map[string]any)
	var b strings.Builder
	for i := 0; i < len(template); {
		if template[i] != '{' {
			b.WriteByte(template[i])
			i++
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			return "", rterrors.New(rterrors.KindCallValidation, rterrors.FaultClient,
				"rtclient: unterminated label in hostPrefix template %q", template)
		}
		name := template[i+1 : i+end]
		v, _ := fields[name].(string)
		if v == "" {
			return "", rterrors.New(rterrors.KindCallValidation, rterrors.FaultClient,
				"rtclient: hostPrefix label %q has no input value", name)
		}
		b.WriteString(v)
		i += end + 1
	}
	return b.String(), nil
}
