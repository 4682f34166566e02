package router

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// followUpThreshold is the Jaro-Winkler similarity above which two
// consecutive utterances are treated as the same thread, alongside the
// referential-phrase check below. No example or original_source value
// anchors this number; it's a deliberate choice, recorded in DESIGN.md.
const followUpThreshold = 0.82

// referentialLeads are short phrases that typically open a follow-up
// rather than a new topic ("the last one", "that one", "do it again").
var referentialLeads = []string{
	"the last one", "that one", "the same", "again", "do it again",
	"what about", "and the", "also do", "one more", "another one",
}

// looksLikeFollowUp is the lightweight textual heuristic spec.md §4.5
// calls for: high lexical similarity to the prior utterance, or an
// opening referential phrase, suggests the user is continuing the same
// thread rather than starting a new one.
func looksLikeFollowUp(prev, current string) bool {
	prevNorm := strings.ToLower(strings.TrimSpace(prev))
	curNorm := strings.ToLower(strings.TrimSpace(current))
	if prevNorm == "" || curNorm == "" {
		return false
	}

	for _, lead := range referentialLeads {
		if strings.HasPrefix(curNorm, lead) {
			return true
		}
	}

	return matchr.JaroWinkler(prevNorm, curNorm, true) >= followUpThreshold
}
