package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const hashLen = 16

// NormalizeText applies NFKC, case folding and whitespace collapsing so that
// cosmetic differences do not produce distinct candidates.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// ContentHash fingerprints a candidate's normalized content.
func ContentHash(business, pain string) string {
	sum := sha256.Sum256([]byte(NormalizeText(business) + "\x1f" + NormalizeText(pain)))
	return hex.EncodeToString(sum[:])[:hashLen]
}
