// Package yline reports stimulus blocks whose first event after the start
// handshake carries the Y line-type code, a known protocol fault.
package yline

import "github.com/banshee-data/mea-sync/internal/handshake"

// Finding identifies one affected handshake pair. HandshakeID is 1-based.
type Finding struct {
	HandshakeID         int
	StartRange          handshake.Range
	FirstPostStartIndex int
}

// Check inspects lineTypes at Start.End+1 for every pair. It never alters
// its inputs.
func Check(lineTypes []int, pairs []handshake.Pair, yCode int) []Finding {
	var findings []Finding
	for k, p := range pairs {
		i := p.Start.End + 1
		if i < 0 || i >= len(lineTypes) {
			continue
		}
		if lineTypes[i] == yCode {
			findings = append(findings, Finding{
				HandshakeID:         k + 1,
				StartRange:          p.Start,
				FirstPostStartIndex: i,
			})
		}
	}
	return findings
}
