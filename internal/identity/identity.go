// Package identity derives stable subject and conversation identifiers.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DigestWidth is the number of hex characters of the origin digest kept in a
// conversation id.
const DigestWidth = 12

// Source records which rule produced a conversation id.
type Source string

const (
	SourceOverride Source = "override"
	SourceOrigin   Source = "origin"
	SourceSubject  Source = "subject"
)

// Resolution is the result of Resolve.
type Resolution struct {
	ConversationID string
	Source         Source
}

// SubjectScoped reports whether the id fell back to the subject alone. Memory
// from unrelated working contexts merges into one conversation in that case.
func (r Resolution) SubjectScoped() bool {
	return r.Source == SourceSubject
}

// Resolve derives the conversation id. It is a pure function of its inputs.
//
// An explicit override always wins. Without an origin path the id is scoped to
// the subject alone. Otherwise the id combines the subject with a truncated
// SHA-256 digest of the origin path, so returning to the same working context
// reattaches to the same conversation.
func Resolve(override, subjectID, originPath string) Resolution {
	if override = strings.TrimSpace(override); override != "" {
		return Resolution{ConversationID: override, Source: SourceOverride}
	}
	if originPath == "" {
		return Resolution{ConversationID: subjectID + "-default", Source: SourceSubject}
	}
	return Resolution{
		ConversationID: subjectID + "-" + Digest(originPath),
		Source:         SourceOrigin,
	}
}

// Digest returns the fixed-width hex prefix of the SHA-256 of s.
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:DigestWidth]
}
