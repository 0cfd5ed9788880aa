package ecommerce

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// oauth1Signer signs requests with OAuth 1.0a using HMAC-SHA256.
// Only query parameters take part in the signature; JSON bodies do not.
type oauth1Signer struct {
	consumerKey    string
	consumerSecret string
	token          string
	tokenSecret    string
	now            func() time.Time
	nonce          func() string
}

func newOAuth1Signer(cfg *CommerceConfig) *oauth1Signer {
	return &oauth1Signer{
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		token:          cfg.AccessToken,
		tokenSecret:    cfg.AccessTokenSecret,
		now:            time.Now,
		nonce:          randomNonce,
	}
}

// Authorization returns the Authorization header value for a request
func (s *oauth1Signer) Authorization(method string, u *url.URL) string {
	oauthParams := map[string]string{
		"oauth_consumer_key":     s.consumerKey,
		"oauth_nonce":            s.nonce(),
		"oauth_signature_method": "HMAC-SHA256",
		"oauth_timestamp":        strconv.FormatInt(s.now().Unix(), 10),
		"oauth_token":            s.token,
		"oauth_version":          "1.0",
	}
	oauthParams["oauth_signature"] = s.sign(method, u, oauthParams)

	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = percentEncode(k) + `="` + percentEncode(oauthParams[k]) + `"`
	}
	return "OAuth " + strings.Join(parts, ", ")
}

func (s *oauth1Signer) sign(method string, u *url.URL, oauthParams map[string]string) string {
	type pair struct{ k, v string }
	var pairs []pair
	for k, vs := range u.Query() {
		for _, v := range vs {
			pairs = append(pairs, pair{percentEncode(k), percentEncode(v)})
		}
	}
	for k, v := range oauthParams {
		pairs = append(pairs, pair{percentEncode(k), percentEncode(v)})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	encoded := make([]string, len(pairs))
	for i, p := range pairs {
		encoded[i] = p.k + "=" + p.v
	}

	baseURL := *u
	baseURL.RawQuery = ""
	baseURL.Fragment = ""
	base := strings.ToUpper(method) + "&" + percentEncode(baseURL.String()) + "&" + percentEncode(strings.Join(encoded, "&"))

	key := percentEncode(s.consumerSecret) + "&" + percentEncode(s.tokenSecret)
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// percentEncode escapes everything except the RFC 3986 unreserved set
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
			continue
		}
		b.WriteString("%" + strings.ToUpper(hex.EncodeToString([]byte{c})))
	}
	return b.String()
}

func randomNonce() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
