package models

// PendingTimer is the one in-flight effect of a chat: a scheduled,
// cancellable consequence of an ability activation. A chat holds at most one
// of these at a time.
type PendingTimer struct {
	EffectID    string `json:"effect_id"`
	InitiatorID string `json:"initiator_id"`
	// TargetID is empty for area effects.
	TargetID  string `json:"target_id,omitempty"`
	ChatID    string `json:"chat_id"`
	ExpiresAt int64  `json:"expires_at"`

	CancelPhrase     string `json:"cancel_phrase,omitempty"`
	AffectsAllOthers bool   `json:"affects_all_others,omitempty"`
	Unavoidable      bool   `json:"unavoidable,omitempty"`

	// Environment-effect reversal metadata: which members were elevated
	// and which chat settings were changed, so expiry can undo exactly
	// what was done. SoftMode marks a forward mutation that failed
	// entirely, in which case the reversal step is skipped.
	ElevatedMembers []string `json:"elevated_members,omitempty"`
	AppliedSettings []string `json:"applied_settings,omitempty"`
	SoftMode        bool     `json:"soft_mode,omitempty"`
}

// Area reports whether the timer is an area effect.
func (t *PendingTimer) Area() bool {
	return t.TargetID == ""
}

// Expired reports whether the timer is due at the given time.
func (t *PendingTimer) Expired(nowMillis int64) bool {
	return nowMillis >= t.ExpiresAt
}
