package state

import "maps"

// Patch is the partial update a step returns. Zero fields leave the state unchanged.
type Patch struct {
	Messages     []Message
	AuditLog     []AuditEntry
	Next         Route
	TaskContext  map[string]any
	ProposedPlan map[string]any
}

// SetsNext reports whether the patch carries a routing decision.
func (p *Patch) SetsNext() bool {
	return p.Next != RouteUnset
}

// AppendMessages returns dst followed by src. dst's backing array is never shared
// with a previously returned slice, so earlier snapshots stay unchanged.
func AppendMessages(dst, src []Message) []Message {
	if len(src) == 0 {
		return dst
	}
	out := make([]Message, 0, len(dst)+len(src))
	out = append(out, dst...)
	return append(out, src...)
}

// AppendAudit returns dst followed by src, copying like AppendMessages.
func AppendAudit(dst, src []AuditEntry) []AuditEntry {
	if len(src) == 0 {
		return dst
	}
	out := make([]AuditEntry, 0, len(dst)+len(src))
	out = append(out, dst...)
	return append(out, src...)
}

// ReplaceNext returns next when it is set and cur otherwise.
func ReplaceNext(cur, next Route) Route {
	if next == RouteUnset {
		return cur
	}
	return next
}

// MergeContext returns a copy of dst with every key of src written over it.
func MergeContext(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	out := maps.Clone(dst)
	if out == nil {
		out = make(map[string]any, len(src))
	}
	maps.Copy(out, src)
	return out
}
