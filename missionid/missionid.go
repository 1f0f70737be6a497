// Package missionid canonicalizes mission identifiers so prefix resolution
// and blacklist membership checks always operate on the same string form
// (§4.4: "generated and compared as lower-case, hyphenated, canonical-form
// UUIDs"), grounded in the teacher pack's use of github.com/google/uuid for
// identifier generation and parsing.
package missionid

import "github.com/google/uuid"

// Canonicalize rewrites raw to its lower-case, hyphenated UUID string form
// when it parses as a UUID (accepting the producer's own casing or brace
// style), and returns raw unchanged otherwise. A submap producer is expected
// to always send valid UUIDs; the fallback exists so a malformed or
// test-fixture id still round-trips through prefix matching rather than
// being silently dropped.
func Canonicalize(raw string) string {
	id, err := uuid.Parse(raw)
	if err != nil {
		return raw
	}
	return id.String()
}
