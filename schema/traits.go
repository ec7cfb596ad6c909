package schema

// Trait identifiers the runtime inspects. Trait values remain opaque
// JSON; these constants only name the keys.
const (
	TraitHTTP              = "smithy.api#http"
	TraitHTTPLabel         = "smithy.api#httpLabel"
	TraitHTTPHeader        = "smithy.api#httpHeader"
	TraitHTTPQuery         = "smithy.api#httpQuery"
	TraitHTTPPayload       = "smithy.api#httpPayload"
	TraitHTTPPrefixHeaders = "smithy.api#httpPrefixHeaders"
	TraitHTTPQueryParams   = "smithy.api#httpQueryParams"
	TraitJSONName          = "smithy.api#jsonName"
	TraitTimestampFormat   = "smithy.api#timestampFormat"
	TraitRequired          = "smithy.api#required"
	TraitDefault           = "smithy.api#default"
	TraitEndpoint          = "smithy.api#endpoint"
	TraitHostLabel         = "smithy.api#hostLabel"
	TraitError             = "smithy.api#error"
	TraitHTTPError         = "smithy.api#httpError"
	TraitRetryable         = "smithy.api#retryable"
	TraitIdempotent        = "smithy.api#idempotent"
	TraitReadonly          = "smithy.api#readonly"
	TraitIdempotencyToken  = "smithy.api#idempotencyToken"
	TraitStreaming         = "smithy.api#streaming"
	TraitPaginated         = "smithy.api#paginated"
	TraitAuth              = "smithy.api#auth"
	TraitSigV4             = "aws.auth#sigv4"
	TraitHTTPAPIKey        = "smithy.api#httpApiKeyAuth"
	TraitHTTPBearer        = "smithy.api#httpBearerAuth"
	TraitHTTPDigest        = "smithy.api#httpDigestAuth"
	TraitHTTPBasic         = "smithy.api#httpBasicAuth"
	TraitEventStream       = "smithy.api#eventStream"

	TraitHTTPChecksumRequired = "smithy.api#httpChecksumRequired"
)
