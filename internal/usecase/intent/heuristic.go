package intent

import (
	"strings"

	domintent "github.com/kailas-cloud/kindred/internal/domain/intent"
	"github.com/kailas-cloud/kindred/internal/domain/text"
)

var questionWords = set(
	"what", "which", "who", "whom", "whose", "how", "where", "when", "why",
	"does", "do", "did", "is", "are", "was", "can", "could", "has", "have", "tell", "describe",
)

// references to profiles already in view
var pronouns = set(
	"she", "he", "they", "her", "him", "his", "hers", "them", "their", "theirs",
	"this", "that", "these", "those", "candidate", "candidates", "profile", "person",
)

var discoveryVerbs = set(
	"find", "search", "looking", "look", "seeking", "seek", "need", "needs", "hire", "hiring",
	"recruit", "show", "recommend", "suggest", "match", "want", "wanted", "discover",
)

var criteriaNouns = set(
	"engineer", "engineers", "developer", "developers", "designer", "designers", "manager",
	"founder", "cofounder", "scientist", "analyst", "architect", "consultant", "mentor",
	"partner", "freelancer", "contractor", "backend", "frontend", "fullstack", "devops",
	"remote", "senior", "junior", "skills", "experience", "based", "near", "located",
)

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func countIn(words []string, vocab map[string]struct{}) int {
	n := 0
	for _, w := range words {
		if _, ok := vocab[w]; ok {
			n++
		}
	}
	return n
}

// Heuristic classifies q by keyword rules: a question that points back at
// referenced profiles is an inquiry, discovery verbs or role criteria mean
// search, anything else is chat. Short or empty messages get low confidence.
func Heuristic(q domintent.Query) domintent.Decision {
	raw := strings.TrimSpace(q.Text)
	words := text.Words(raw)

	questionLike := strings.Contains(raw, "?") ||
		(len(words) > 0 && countIn(words[:1], questionWords) == 1)
	hasRefs := len(q.ReferencedIDs) > 0
	refersBack := hasRefs && (countIn(words, pronouns) > 0 || mentionsAny(raw, q.ReferencedIDs))

	if refersBack && questionLike {
		return decision(domintent.Inquiry, 0.85, "question about referenced profiles")
	}

	verbs, criteria := countIn(words, discoveryVerbs), countIn(words, criteriaNouns)
	switch {
	case verbs > 0 && criteria > 0:
		return decision(domintent.Search, 0.85, "discovery verb with role or skill criteria")
	case verbs > 0 || criteria > 0:
		return decision(domintent.Search, 0.65, "discovery verb or role criteria")
	}

	// a bare question or a pointer with profiles in view: inquiry, but unsure
	if refersBack || (hasRefs && questionLike) {
		return decision(domintent.Inquiry, 0.55, "may concern profiles in view")
	}

	conf := 0.6
	if len(words) <= 2 {
		conf = 0.4
	}
	return decision(domintent.Chat, conf, "no discovery or inquiry cues")
}

// mentionsAny reports whether any referenced id occurs in s, case-insensitively.
func mentionsAny(s string, ids []string) bool {
	lower := strings.ToLower(s)
	for _, id := range ids {
		if id = strings.ToLower(strings.TrimSpace(id)); len(id) > 1 && strings.Contains(lower, id) {
			return true
		}
	}
	return false
}

func decision(in domintent.Intent, conf float64, why string) domintent.Decision {
	return domintent.Decision{
		Intent:     in,
		Confidence: conf,
		Rationale:  why,
		Source:     domintent.SourceHeuristic,
	}
}
