// Package safeguard gates every handler invocation against runaway loops:
// a hard call ceiling per session, and a duplicate guard that rejects an
// exact repeat of (handler, input fingerprint).
package safeguard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	statex "github.com/polaris-nbfc/loan-agent/agent/state"
)

// ErrBreach is the single signal reported to the orchestrator; the tracker
// never decides workflow outcomes itself.
var ErrBreach = errors.New("safeguard breach")

const DefaultMaxHandlerCalls = 6

type Config struct {
	MaxHandlerCalls int `envconfig:"MAX_HANDLER_CALLS" split_words:"true" default:"6"`
}

type Tracker struct {
	maxCalls int
}

func NewTracker(maxCalls int) *Tracker {
	if maxCalls <= 0 {
		maxCalls = DefaultMaxHandlerCalls
	}
	return &Tracker{maxCalls: maxCalls}
}

// Check evaluates both guards in order: call ceiling first, then the
// duplicate guard. A nil return means the invocation may proceed.
func (t *Tracker) Check(st *statex.SessionState, handler, fingerprint string) error {
	if st == nil {
		return errors.New("nil session state")
	}
	if len(st.Calls) >= t.maxCalls {
		return fmt.Errorf("%w: call ceiling %d reached", ErrBreach, t.maxCalls)
	}
	if st.HasCall(handler, fingerprint) {
		return fmt.Errorf("%w: duplicate call handler=%s fingerprint=%s", ErrBreach, handler, fingerprint)
	}
	return nil
}

// Fingerprint digests a handler invocation's identity-relevant inputs.
// String values are normalized (trimmed, lowercased) before hashing so that
// incidental formatting differences do not defeat the duplicate guard; map
// keys are serialized in sorted order by encoding/json.
func Fingerprint(handler string, fields map[string]any) string {
	normalized := make(map[string]any, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok {
			normalized[k] = strings.ToLower(strings.Join(strings.Fields(s), " "))
			continue
		}
		normalized[k] = v
	}
	payload, err := json.Marshal(normalized)
	if err != nil {
		payload = []byte(fmt.Sprintf("%v", normalized))
	}
	sum := sha256.Sum256(append([]byte(handler+"|"), payload...))
	return hex.EncodeToString(sum[:])[:16]
}
