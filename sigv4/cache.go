package sigv4

import (
	"sync"
	"time"
)

// cacheKey identifies one signing-key cache entry.
type cacheKey struct {
	secretKey string
	region    string
	service   string
}

type cacheEntry struct {
	signingKey []byte
	date       string // yyyymmdd the key was derived for
}

// Cache is a bounded FIFO cache of derived signing keys. Capacity is
// enforced by evicting the oldest-inserted entry, never the
// least-recently-used one.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	entries  map[cacheKey]*cacheEntry
	order    []cacheKey // insertion order, oldest first
}

// NewCache returns an empty Cache bounded to capacity entries.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{capacity: capacity, entries: make(map[cacheKey]*cacheEntry)}
}

// Get returns the cached signing key for (secret, region, service) if one
// exists and was derived for today's UTC date; otherwise it reports a
// miss so the caller derives and stores a fresh key via Put.
func (c *Cache) Get(secret, region, service string, now time.Time) ([]byte, bool) {
	key := cacheKey{secretKey: secret, region: region, service: service}
	today := now.UTC().Format("20060102")

	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || entry.date != today {
		return nil, false
	}
	return entry.signingKey, true
}

// Put stores signingKey for (secret, region, service, date), evicting the
// oldest inserted entry first if the cache is at capacity. Derived keys
// are never stored past the day they were derived: an existing entry for
// the same key is simply overwritten with the new date, never retained
// alongside a stale one.
func (c *Cache) Put(secret, region, service, date string, signingKey []byte) {
	key := cacheKey{secretKey: secret, region: region, service: service}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		if len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = &cacheEntry{signingKey: signingKey, date: date}
}

// SignCached behaves like Sign but consults cache for the derived signing
// key, populating it on a miss: a stored key whose date equals today's
// UTC date is reused, anything else is recomputed.
func SignCached(cache *Cache, req *Request, p Params) string {
	date := p.SigningTime.UTC().Format("20060102")

	signingKey, ok := cache.Get(p.SecretKey, p.Region, p.Service, p.SigningTime)
	if !ok {
		signingKey = DeriveKey(p.SecretKey, date, p.Region, p.Service)
		cache.Put(p.SecretKey, p.Region, p.Service, date, signingKey)
	}

	isoDateTime := p.SigningTime.UTC().Format("20060102T150405Z")
	payloadHash := UnsignedPayload
	if !p.Unsigned {
		payloadHash = hexSHA256(p.Body)
	}

	canonicalHeaders, signedHeaders := canonicalizeHeaders(req.Headers)
	canonicalRequest := joinLines(
		req.Method,
		canonicalPath(req.Path),
		canonicalQuery(req.RawQuery),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	)
	credentialScope := date + "/" + p.Region + "/" + p.Service + "/aws4_request"
	stringToSign := joinLines(
		"AWS4-HMAC-SHA256",
		isoDateTime,
		credentialScope,
		hexSHA256([]byte(canonicalRequest)),
	)
	signature := hexHMAC(signingKey, stringToSign)

	return "AWS4-HMAC-SHA256 Credential=" + p.AccessKey + "/" + credentialScope +
		", SignedHeaders=" + signedHeaders + ", Signature=" + signature
}
