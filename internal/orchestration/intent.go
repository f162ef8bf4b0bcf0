package orchestration

import "strings"

// Intent classification is deliberately simple keyword matching, not a
// learned model: each category carries a fixed keyword list, the category
// with the most case-insensitive substring hits wins, and ties go to the
// category declared first. Confidence grows with match count but never
// implies semantic understanding.

type intentCategory struct {
	name       string
	capability string
	keywords   []string
}

// intentTable order is significant: earlier entries win ties.
var intentTable = []intentCategory{
	{
		name:       "content_creation",
		capability: "blog_writer",
		keywords:   []string{"write", "blog", "article", "content", "draft", "post"},
	},
	{
		name:       "seo",
		capability: "seo_optimizer",
		keywords:   []string{"seo", "keyword", "search ranking", "optimize", "serp", "meta description"},
	},
	{
		name:       "social_media",
		capability: "social_media_manager",
		keywords:   []string{"social", "twitter", "instagram", "facebook", "linkedin", "tweet"},
	},
	{
		name:       "email_marketing",
		capability: "email_marketer",
		keywords:   []string{"email", "newsletter", "campaign", "subject line", "drip"},
	},
	{
		name:       "analytics",
		capability: "data_analyst",
		keywords:   []string{"analytics", "report", "metrics", "data", "performance", "conversion"},
	},
	{
		name:       "branding",
		capability: "brand_strategist",
		keywords:   []string{"brand", "logo", "identity", "voice", "positioning"},
	},
	{
		name:       "support",
		capability: "support_assistant",
		keywords:   []string{"help", "support", "question", "issue", "problem"},
	},
}

// defaultCapability answers when no category keyword matches at all.
const defaultCapability = "default_assistant"

// fallbackConfidence is reported when classification falls through to the
// default capability.
const fallbackConfidence = 0.5

// AnalyzeIntent classifies input text against the keyword table. Zero
// matches across all categories yields the default capability at 0.5.
func AnalyzeIntent(input string) IntentResult {
	lowered := strings.ToLower(input)

	bestIdx := -1
	bestCount := 0
	var bestMatched []string
	var supporting []string

	for i, cat := range intentTable {
		count := 0
		var matched []string
		for _, kw := range cat.keywords {
			if strings.Contains(lowered, kw) {
				count++
				matched = append(matched, kw)
			}
		}
		if count == 0 {
			continue
		}
		if count > bestCount {
			if bestIdx >= 0 {
				supporting = append(supporting, intentTable[bestIdx].capability)
			}
			bestIdx = i
			bestCount = count
			bestMatched = matched
		} else {
			supporting = append(supporting, cat.capability)
		}
	}

	if bestIdx < 0 {
		return IntentResult{
			PrimaryCapability: defaultCapability,
			Confidence:        fallbackConfidence,
		}
	}

	confidence := 0.5 + 0.1*float64(bestCount)
	if confidence > 0.9 {
		confidence = 0.9
	}
	if len(supporting) > 2 {
		supporting = supporting[:2]
	}
	return IntentResult{
		PrimaryCapability:      intentTable[bestIdx].capability,
		SupportingCapabilities: supporting,
		Confidence:             confidence,
		MatchedKeywords:        bestMatched,
	}
}
