package dataprocessor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/chromedp/cdproto/network"
)

// volatileSecurityDetailFields are stripped before hashing because they can
// vary between otherwise-identical certificates depending on the browser's
// negotiated TLS session (spec §4.5 "Certificate hashing").
var volatileSecurityDetailFields = []string{
	"protocol",
	"certificateId",
	"keyExchange",
	"cipher",
	"keyExchangeGroup",
	"mac",
	"serverSignatureAlgorithm",
	"encryptedClientHello",
}

// certificateHashAndCanonical computes the spec §4.5 certificate hash:
// marshal securityDetails to a JSON object, strip the browser-volatile
// fields, re-marshal with keys in sorted order (encoding/json sorts
// map[string]any keys lexicographically on Marshal, which is exactly the
// canonicalisation the spec calls for), and SHA-256 the resulting UTF-8
// bytes. The returned canonical is the exact byte form persisted in the
// certificate collection's securityDetails field, so ContentStore.PutCertificate
// never needs to recompute it.
//
// Returns ("", nil) when details is nil — callers only invoke this when a
// certificate was actually observed.
func certificateHashAndCanonical(details *network.SecurityDetails) (hash string, canonical json.RawMessage) {
	if details == nil {
		return "", nil
	}

	raw, err := json.Marshal(details)
	if err != nil {
		return "", nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", nil
	}
	for _, f := range volatileSecurityDetailFields {
		delete(fields, f)
	}

	canonical, err = json.Marshal(fields)
	if err != nil {
		return "", nil
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), canonical
}
