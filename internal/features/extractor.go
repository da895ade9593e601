package features

import (
	"regexp"
	"strings"
	"unicode"
)

// Canonical feature names. The weight vector is keyed by these, so renames
// are schema changes.
const (
	FeatureSpanLength           = "span_length"
	FeatureKeywordDensity       = "keyword_density"
	FeatureLegalTermDensity     = "legal_term_density"
	FeatureModalVerbCount       = "modal_verb_count"
	FeatureDefinitionIndicators = "definition_indicators"
	FeatureCrossReferences      = "cross_references"
	FeatureSentenceCount        = "sentence_count"
	FeatureParagraphCount       = "paragraph_count"
	FeatureReadability          = "readability"
	FeatureDocPosition          = "doc_position"
	FeatureNumberedLists        = "numbered_lists"
	FeatureSentiment            = "sentiment"
)

// Vector is a sparse feature vector keyed by canonical feature name.
// All values are scaled to roughly [0,1] so a single learning rate works
// across features.
type Vector map[string]float64

var (
	legalTerms = []string{
		"hereinafter", "whereas", "notwithstanding", "pursuant", "herein",
		"thereof", "hereunder", "indemnify", "warranty", "liability",
		"confidential", "termination", "jurisdiction", "arbitration",
		"severability", "assignment", "covenant", "remedies",
	}
	modalVerbs = []string{"shall", "must", "may", "will", "should", "might"}

	crossRefPattern      = regexp.MustCompile(`(?i)(section|clause|article|exhibit|schedule|paragraph)\s+[\divxlc]+(\.\d+)*`)
	numberedListPattern  = regexp.MustCompile(`(?m)^\s*(\(?[a-z\d]+[.)]|\d+\.\d+)\s+`)
	definitionIndicators = []string{"means", "shall mean", "is defined as", "refers to", `("`}
)

// ExtractorSpan carries the position context needed for document-relative
// features.
type ExtractorSpan struct {
	Text string

	// Start and DocLength locate the span within the source document, in
	// bytes. Both zero means position is unknown and doc_position is 0.5.
	Start     int
	DocLength int
}

// Extract computes the full feature vector for a text span. Extraction is
// pure and deterministic; the same span always produces the same vector.
func Extract(span ExtractorSpan) Vector {
	text := span.Text
	lower := strings.ToLower(text)
	words := strings.Fields(lower)
	wordCount := len(words)

	v := make(Vector, 12)

	v[FeatureSpanLength] = scale(float64(wordCount), 400)

	kwHits := 0
	for _, w := range words {
		trimmed := strings.TrimFunc(w, unicode.IsPunct)
		for _, term := range legalTerms {
			if trimmed == term {
				kwHits++
				break
			}
		}
	}
	v[FeatureLegalTermDensity] = density(kwHits, wordCount)
	v[FeatureKeywordDensity] = density(kwHits, wordCount)

	modalHits := 0
	for _, w := range words {
		trimmed := strings.TrimFunc(w, unicode.IsPunct)
		for _, mv := range modalVerbs {
			if trimmed == mv {
				modalHits++
				break
			}
		}
	}
	v[FeatureModalVerbCount] = scale(float64(modalHits), 10)

	defHits := 0
	for _, ind := range definitionIndicators {
		defHits += strings.Count(lower, ind)
	}
	v[FeatureDefinitionIndicators] = scale(float64(defHits), 5)

	v[FeatureCrossReferences] = scale(float64(len(crossRefPattern.FindAllString(text, -1))), 5)

	sentences := countSentences(text)
	v[FeatureSentenceCount] = scale(float64(sentences), 20)
	v[FeatureParagraphCount] = scale(float64(countParagraphs(text)), 10)
	v[FeatureReadability] = readability(wordCount, sentences)

	if span.DocLength > 0 && span.Start >= 0 {
		v[FeatureDocPosition] = clamp01(float64(span.Start) / float64(span.DocLength))
	} else {
		v[FeatureDocPosition] = 0.5
	}

	v[FeatureNumberedLists] = scale(float64(len(numberedListPattern.FindAllString(text, -1))), 8)

	return v
}

// Sentiment scores obligation language relative to a rule's own sentiment
// terms, returned in [-1,1]. Positive means the span leans toward the
// rule's expected language; negative means hedged or permissive language
// dominates.
func Sentiment(text string, ruleTerms []string) float64 {
	lower := strings.ToLower(text)

	positive := 0
	for _, term := range ruleTerms {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			positive++
		}
	}

	hedges := []string{"may", "reasonable efforts", "endeavor", "to the extent", "where practicable", "subject to"}
	negative := 0
	for _, h := range hedges {
		negative += strings.Count(lower, h)
	}

	total := positive + negative
	if total == 0 {
		return 0
	}
	return float64(positive-negative) / float64(total)
}

func countSentences(text string) int {
	n := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' || r == ';' {
			n++
		}
	}
	if n == 0 && strings.TrimSpace(text) != "" {
		return 1
	}
	return n
}

func countParagraphs(text string) int {
	parts := strings.Split(text, "\n\n")
	n := 0
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}

// readability is a rough inverse of average sentence length: short
// sentences read easier and score closer to 1.
func readability(words, sentences int) float64 {
	if sentences == 0 || words == 0 {
		return 0
	}
	avg := float64(words) / float64(sentences)
	return clamp01(1 - avg/50)
}

func density(hits, words int) float64 {
	if words == 0 {
		return 0
	}
	return clamp01(float64(hits) / float64(words) * 10)
}

func scale(v, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return clamp01(v / max)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
