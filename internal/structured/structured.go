// Package structured decodes the text payload carried by a QR or similar 2D
// code on a label. Self-describing payloads (JSON objects, URLs with query
// parameters) yield product fields directly; anything else is treated as an
// opaque code to look up.
package structured

import (
	"encoding/json"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/labelscan/internal/extract"
	"github.com/MeKo-Tech/labelscan/internal/normalize"
)

// Kind names the grammar a payload was decoded with.
type Kind string

const (
	KindEmpty    Kind = "empty"
	KindJSON     Kind = "json"
	KindURL      Kind = "url"
	KindPrefixed Kind = "prefixed"
	KindOpaque   Kind = "opaque"
)

// Payload is a decoded structured code. Batch is normalized; Expiry is the
// parsed date (zero when absent or unparseable) and ExpiryRaw keeps the text.
type Payload struct {
	Kind      Kind           `json:"kind"`
	Raw       string         `json:"raw"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Batch     string         `json:"batch,omitempty"`
	ExpiryRaw string         `json:"expiry_raw,omitempty"`
	Expiry    normalize.Date `json:"expiry,omitzero"`
	Prefix    string         `json:"prefix,omitempty"`
	Code      string         `json:"code,omitempty"`
}

var (
	batchKeys     = []string{"batch", "batchCode"}
	jsonExpiryKey = []string{"expiry", "expiryDate"}
	urlExpiryKeys = []string{"exp", "expiry", "expiryDate"}
)

// Decode tries, in order: a JSON object, an absolute URL, a PREFIX:VALUE pair,
// and finally the trimmed payload as an opaque code.
func Decode(raw string) Payload {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Payload{Kind: KindEmpty, Raw: raw}
	}

	if p, ok := decodeJSON(trimmed); ok {
		p.Raw = raw
		return p
	}
	if p, ok := decodeURL(trimmed); ok {
		p.Raw = raw
		return p
	}
	if prefix, value, ok := strings.Cut(trimmed, ":"); ok && strings.TrimSpace(value) != "" {
		return Payload{
			Kind:   KindPrefixed,
			Raw:    raw,
			Prefix: strings.TrimSpace(prefix),
			Code:   strings.TrimSpace(value),
		}
	}
	return Payload{Kind: KindOpaque, Raw: raw, Code: trimmed}
}

func decodeJSON(s string) (Payload, bool) {
	if !strings.HasPrefix(s, "{") {
		return Payload{}, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return Payload{}, false
	}
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := scalarString(obj[k]); v != "" {
				return v
			}
		}
		return ""
	}
	p := Payload{Kind: KindJSON, ID: get("id"), Name: get("name")}
	p.setBatch(get(batchKeys...))
	p.setExpiry(get(jsonExpiryKey...))
	return p, true
}

func decodeURL(s string) (Payload, bool) {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Payload{}, false
	}
	q := u.Query()
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(q.Get(k)); v != "" {
				return v
			}
		}
		return ""
	}
	p := Payload{Kind: KindURL, ID: get("id"), Name: get("name")}
	p.setBatch(get(batchKeys...))
	p.setExpiry(get(urlExpiryKeys...))
	if !p.hasFields() {
		// A bare product link: the last path segment is the code.
		if seg := path.Base(strings.TrimRight(u.Path, "/")); seg != "." && seg != "/" && seg != "" {
			p.Code = seg
		}
	}
	return p, true
}

func (p *Payload) setBatch(v string) {
	if v != "" {
		p.Batch = normalize.BatchCode(v)
	}
}

func (p *Payload) setExpiry(v string) {
	if v == "" {
		return
	}
	p.ExpiryRaw = v
	if d, ok := normalize.ParseDate(v); ok {
		p.Expiry = d
	}
}

func (p Payload) hasFields() bool {
	return p.ID != "" || p.Name != "" || p.Batch != "" || p.ExpiryRaw != ""
}

// IsSelfDescribing reports whether the payload carried named product fields
// rather than only an opaque code.
func (p Payload) IsSelfDescribing() bool {
	return (p.Kind == KindJSON || p.Kind == KindURL) && p.hasFields()
}

// IsEmpty reports whether the payload was blank.
func (p Payload) IsEmpty() bool { return p.Kind == KindEmpty }

// Codes lists the values worth comparing against catalog ids, most specific
// first, without duplicates.
func (p Payload) Codes() []string {
	codes := make([]string, 0, 3)
	seen := make(map[string]struct{}, 3)
	for _, c := range []string{p.ID, p.Code, p.Batch} {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		key := strings.ToUpper(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		codes = append(codes, c)
	}
	return codes
}

// Fields presents the payload as extracted label fields.
func (p Payload) Fields() extract.Fields {
	return extract.Fields{
		BatchCode:  p.Batch,
		ExpiryDate: p.ExpiryRaw,
		NameGuess:  p.Name,
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
