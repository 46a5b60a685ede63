package detection

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/weppos/publicsuffix-go/publicsuffix"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Runs of anything that is not a letter, digit or underscore
var nonWordRun = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// Private suffixes count, and names without a listed suffix are left alone
var suffixOptions = &publicsuffix.FindOptions{IgnorePrivate: false, DefaultRule: nil}

// inspectedName strips the public suffix from a domain, returning subdomain + "." + label.
// A domain without subdomain yields ".label". Unparseable input is returned unchanged.
func inspectedName(name string) string {
	dn, err := publicsuffix.ParseFromListWithOptions(publicsuffix.DefaultList, name, suffixOptions)
	if err != nil {
		return name
	}
	return dn.TRD + "." + dn.SLD
}

// shannonEntropy returns the entropy of the bytes of s normalized to [0, 1]
func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}

	entropy := 0.0
	total := float64(len(s))
	for _, count := range counts {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}

	// 8 bits per byte is the maximum
	return entropy / 8
}

// unconfuse maps visually confusable characters to their Latin equivalent.
// ASCII input is returned untouched.
func unconfuse(s string) string {
	if isASCII(s) {
		return s
	}

	var b strings.Builder
	for _, r := range s {
		if latin, ok := lookalikes[r]; ok {
			b.WriteString(latin)
			continue
		}
		b.WriteRune(r)
	}

	// Compatibility decomposition folds fullwidth, mathematical and circled letters;
	// dropping nonspacing marks turns "é" into "e"
	folder := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, b.String())
	if err != nil {
		return b.String()
	}
	return strings.ToLower(folded)
}

// splitWords splits a domain on runs of non-word characters.
// Leading or trailing separators produce empty words.
func splitWords(s string) []string {
	return nonWordRun.Split(s, -1)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// contains checks if list contains word
func contains(list []string, word string) bool {
	for _, item := range list {
		if item == word {
			return true
		}
	}
	return false
}
