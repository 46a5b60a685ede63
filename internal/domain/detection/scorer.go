package detection

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/stoik/phish-catcher/internal/domain"
)

// Signal types emitted by the scorer, in evaluation order
const (
	SignalSuspiciousTLD   = "SUSPICIOUS_TLD"
	SignalEntropy         = "HIGH_ENTROPY"
	SignalFakeTLDWildcard = "WILDCARD_FAKE_TLD"
	SignalKeyword         = "SUSPICIOUS_KEYWORD"
	SignalTyposquatting   = "KEYWORD_TYPOSQUATTING"
	SignalManyHyphens     = "MANY_HYPHENS"
	SignalDeepSubdomains  = "DEEP_SUBDOMAINS"
)

const (
	tldPoints        = 20
	entropyFactor    = 50
	fakeTLDPoints    = 10
	typoPoints       = 70
	strongKeyword    = 70 // Keywords at or above this weight are checked for one-character typos
	minHyphens       = 4
	pointsPerHyphen  = 3
	minDots          = 3
	pointsPerDot     = 3
	punycodeMarker   = "xn--"
	wildcardPrefix   = "*."
	typoEditDistance = 1
)

var (
	// Inner labels that look like a TLD when a certificate wildcards a fake one (ie. *.com-account-management.info)
	fakeTLDLabels = []string{"com", "net", "org"}
	// Too generic to be compared with brand keywords (ie. mail.domain.com)
	genericLabels = []string{"email", "mail", "cloud"}
)

type keyword struct {
	word   string
	weight int
}

// Scorer assigns a phishing-likelihood score to domain names.
//
// The score is purely additive: every heuristic contributes a fixed number of
// points and the weights are tuned constants. Higher means more probably a
// phishing site; AlertThreshold separates alerts from noise.
//
// A Scorer holds no mutable state after construction and is safe for
// concurrent use by any number of workers.
type Scorer struct {
	tlds     []string
	keywords []keyword
}

// NewScorer creates a scorer for the given context. The context is copied, so later
// changes to the caller's maps are not observed.
func NewScorer(ctx domain.ScoringContext) *Scorer {
	tlds := make([]string, 0, len(ctx.TLDs))
	for tld := range ctx.TLDs {
		tlds = append(tlds, tld)
	}
	sort.Strings(tlds)

	keywords := make([]keyword, 0, len(ctx.Keywords))
	for word, weight := range ctx.Keywords {
		keywords = append(keywords, keyword{word: word, weight: weight})
	}
	sort.Slice(keywords, func(i, j int) bool { return keywords[i].word < keywords[j].word })

	return &Scorer{tlds: tlds, keywords: keywords}
}

// Score returns the score of a lowercased domain
func Score(name string, ctx domain.ScoringContext) int {
	return NewScorer(ctx).Score(name)
}

// Score returns the score of a lowercased domain
func (s *Scorer) Score(name string) int {
	return s.Analyze(name).Score
}

// Analyze scores a lowercased domain and reports every contributing signal.
// Malformed input never fails, it just scores whatever heuristics still apply.
func (s *Scorer) Analyze(name string) domain.ScoreResult {
	result := domain.ScoreResult{Domain: name, Signals: make([]domain.Signal, 0)}
	add := func(signalType string, points int, evidence string) {
		result.Score += points
		result.Signals = append(result.Signals, domain.Signal{
			Type:     signalType,
			Points:   points,
			Evidence: evidence,
		})
	}

	// Matching suffixes each count, ".gq" and "gq" both hit "login.gq"
	for _, tld := range s.tlds {
		if strings.HasSuffix(name, tld) {
			add(SignalSuspiciousTLD, tldPoints, fmt.Sprintf("Ends with suspicious TLD '%s'", tld))
		}
	}

	// Leading wildcard label would pollute the entropy and structure measurements
	name = strings.TrimPrefix(name, wildcardPrefix)

	// Drop the registered suffix so a brand used as an inner TLD (paypal.com.attacker.net) is inspected
	name = inspectedName(name)

	if points := int(math.RoundToEven(shannonEntropy(name) * entropyFactor)); points != 0 {
		add(SignalEntropy, points, fmt.Sprintf("Character entropy of '%s'", name))
	}

	name = unconfuse(name)
	words := splitWords(name)

	if strings.HasPrefix(name, wildcardPrefix) {
		name = name[len(wildcardPrefix):]
		if contains(fakeTLDLabels, words[0]) {
			add(SignalFakeTLDWildcard, fakeTLDPoints, fmt.Sprintf("Wildcard over fake TLD label '%s'", words[0]))
		}
	}

	for _, kw := range s.keywords {
		if strings.Contains(name, kw.word) {
			add(SignalKeyword, kw.weight, fmt.Sprintf("Contains keyword '%s'", kw.word))
		}
	}

	for _, kw := range s.keywords {
		if kw.weight < strongKeyword {
			continue
		}
		for _, word := range words {
			if contains(genericLabels, word) {
				continue
			}
			if levenshtein.ComputeDistance(word, kw.word) == typoEditDistance {
				add(SignalTyposquatting, typoPoints, fmt.Sprintf("Label '%s' is one edit away from '%s'", word, kw.word))
			}
		}
	}

	// Punycode labels legitimately carry hyphens
	if hyphens := strings.Count(name, "-"); !strings.Contains(name, punycodeMarker) && hyphens >= minHyphens {
		add(SignalManyHyphens, hyphens*pointsPerHyphen, fmt.Sprintf("%d hyphens", hyphens))
	}

	if dots := strings.Count(name, "."); dots >= minDots {
		add(SignalDeepSubdomains, dots*pointsPerDot, fmt.Sprintf("%d nested labels", dots))
	}

	result.Level = domain.RiskLevel(result.Score)
	return result
}
