package engine

import "strings"

// isMergeConflictClass reports whether a forge's "not mergeable" message
// describes an actual merge conflict (stale branch, real conflict)
// rather than a branch-protection policy rejection. Branch-protection
// phrases are excluded first and checked for last, since they're
// reported by the same forges using overlapping vocabulary
// ("conflicting" vs "conflicting requirements", etc).
//
// The phrase sets are pinned from observed gh/glab CLI output, not
// derived heuristically: changing them changes which errors trigger
// --fast auto-recovery.
func isMergeConflictClass(message string) bool {
	msg := strings.ToLower(message)

	for _, phrase := range branchProtectionPhrases {
		if strings.Contains(msg, phrase) {
			return false
		}
	}

	for _, phrase := range mergeConflictPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// branchProtectionPhrases, found in a not-mergeable message, mean the
// rejection is a branch-protection policy and must never be auto-retried.
var branchProtectionPhrases = []string{
	"branch protection",
	"base branch policy",
	"protected branch",
	"required status",
	"review",
	"approval",
}

// mergeConflictPhrases, found in a not-mergeable message (and none of
// branchProtectionPhrases matched), mean the rejection is an actual
// merge conflict eligible for --fast auto-recovery.
var mergeConflictPhrases = []string{
	"not mergeable",
	"cannot be cleanly created",
	"cannot be merged",
	"has conflicts",
	"merge conflict",
	"conflicting",
}
