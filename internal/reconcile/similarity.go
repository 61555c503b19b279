package reconcile

import (
	"regexp"
	"strings"

	"github.com/mdbridge/mdbridge/internal/block"
	"github.com/mdbridge/mdbridge/internal/markdown"
	"github.com/mdbridge/mdbridge/pkg/text"
)

// Heuristic scoring values. Reverse-engineered from observed conversion
// behavior, not derived from a formal model; tune against real documents
// before trusting them blindly.
const (
	// AcceptThreshold is the minimum score to accept a match.
	AcceptThreshold = 0.5
	// listKindBase is the type base for list items: list content changes
	// more often than its structural role, and losing list ordering is a
	// worse failure than losing text-match precision.
	listKindBase = 0.6
	// sameKindBase is the type base for other same-kind matches.
	sameKindBase = 0.4
	// quoteCalloutBase covers callouts rendered as generic quote blocks.
	quoteCalloutBase = 0.35
	// contentWeight is the weight of content similarity on type matches.
	contentWeight = 0.6
	// crossKindWeight reduces a content-only score when kinds disagree.
	crossKindWeight = 0.5
	// crossKindMinSimilarity gates content-only matches.
	crossKindMinSimilarity = 0.8
)

var (
	regexEmphasis   = regexp.MustCompile(`(\*\*|__|\*|_|~~)`)
	regexInlineCode = regexp.MustCompile("`+")
)

// CleanContent normalizes a text for comparison: emphasis markers and
// inline code fences dropped, whitespace collapsed, lowercased, and
// truncated to the structural preview length.
func CleanContent(raw string) string {
	cleaned := regexEmphasis.ReplaceAllString(raw, "")
	cleaned = regexInlineCode.ReplaceAllString(cleaned, "")
	cleaned = strings.ToLower(text.NormalizeSpaces(cleaned))
	return text.Truncate(cleaned, markdown.PreviewMaxRunes)
}

// ContentSimilarity scores how close two cleaned texts are, in [0,1].
// It uses the overlap ratio of multi-character words, falling back to a
// normalized edit-distance similarity when no such words exist.
func ContentSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	wordsA := text.Words(a, 2)
	wordsB := text.Words(b, 2)
	if len(wordsA) > 0 && len(wordsB) > 0 {
		return wordOverlap(wordsA, wordsB)
	}

	return editSimilarity(a, b)
}

func wordOverlap(a, b []string) float64 {
	seen := make(map[string]bool, len(a))
	for _, word := range a {
		seen[word] = true
	}
	common := 0
	counted := make(map[string]bool, len(b))
	for _, word := range b {
		if seen[word] && !counted[word] {
			common++
			counted[word] = true
		}
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	return float64(common) / float64(longest)
}

func editSimilarity(a, b string) float64 {
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	distance := text.LevenshteinDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}

// elementKind folds a block kind into the semantic category produced by the
// structure parser, or "" when the kind has no structural counterpart.
func elementKind(k block.Kind) markdown.ElementKind {
	switch k {
	case block.KindText:
		return markdown.ElementText
	case block.KindHeading1:
		return markdown.ElementHeading1
	case block.KindHeading2:
		return markdown.ElementHeading2
	case block.KindHeading3, block.KindHeading4, block.KindHeading5, block.KindHeading6:
		return markdown.ElementHeading3
	case block.KindBullet, block.KindTodo:
		return markdown.ElementBullet
	case block.KindOrdered:
		return markdown.ElementOrdered
	case block.KindQuote, block.KindCallout:
		return markdown.ElementQuote
	case block.KindCode:
		return markdown.ElementCode
	case block.KindImage:
		return markdown.ElementImage
	default:
		return ""
	}
}

// kindBase returns the type-match base score between a structural element
// kind and a block kind.
func kindBase(elem markdown.ElementKind, k block.Kind) float64 {
	folded := elementKind(k)
	if folded == "" {
		return 0
	}
	if folded == elem {
		if k.List() {
			return listKindBase
		}
		if elem == markdown.ElementQuote && k == block.KindCallout {
			// A callout can render as a generic quote block
			return quoteCalloutBase
		}
		return sameKindBase
	}
	return 0
}

// Score computes the match score between a structural element and a block.
func Score(elem markdown.StructuralElement, b *block.Block) float64 {
	elemContent := CleanContent(elem.Preview)
	if elemContent == "" {
		// An element with no comparable content never reaches the
		// acceptance threshold; its block lands in the trailing append.
		return 0
	}
	blockContent := CleanContent(b.FlattenText())

	if elemContent == blockContent {
		return 1
	}

	similarity := ContentSimilarity(elemContent, blockContent)

	base := kindBase(elem.Kind, b.Kind)
	if base > 0 {
		score := base + contentWeight*similarity
		if score > 1 {
			return 1
		}
		return score
	}

	if similarity > crossKindMinSimilarity {
		return similarity * crossKindWeight
	}
	return 0
}
