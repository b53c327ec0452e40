package invoke

import (
	"aura/pkg/agent/llm"
	"aura/pkg/config"
)

// PolicyFromSnapshot returns the derivation policy configured in snap.
func PolicyFromSnapshot(snap *config.Snapshot) Policy {
	return Policy{StableFallback: snap.StableFallback(), Deprecated: snap.DeprecatedModels()}
}

// NewRequest builds a request for messages from one settings snapshot: derived model
// candidates, the provider's credentials in order, and the output token cap. Clients
// for the request are built from the same snapshot.
func NewRequest(snap *config.Snapshot, messages []llm.CompletionMessage) Request {
	return Request{
		Provider:    snap.Provider(),
		Models:      DeriveModelCandidates(snap.ActiveModel(), PolicyFromSnapshot(snap)),
		Credentials: snap.Credentials(),
		Messages:    messages,
		MaxTokens:   snap.MaxTokens(),
		Snapshot:    snap,
	}
}
