package models

// DailyDiscountState is the per-ability daily discount: at most one ability
// is discounted at a time, rolled at most once per civil day.
type DailyDiscountState struct {
	// LastRollDate is the civil date (YYYY-MM-DD, reference timezone) on
	// which the discount was last rolled.
	LastRollDate string `json:"last_roll_date,omitempty"`
	AbilityID    string `json:"ability_id,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// Active reports whether the discount applies to the given ability at the
// given time.
func (d *DailyDiscountState) Active(abilityID string, nowMillis int64) bool {
	return d.AbilityID != "" && d.AbilityID == abilityID && nowMillis < d.ExpiresAt
}

// UserToggles holds per-user notification switches.
type UserToggles struct {
	MutePayouts bool `json:"mute_payouts,omitempty"`
}

// Settings is the settings document: the daily discount plus per-user
// toggles.
type Settings struct {
	SchemaVersion int                    `json:"schema_version"`
	DailyDiscount DailyDiscountState     `json:"daily_discount"`
	UserToggles   map[string]UserToggles `json:"user_toggles,omitempty"`
}

// PayoutsMuted reports whether the user silenced payout notifications.
func (s *Settings) PayoutsMuted(userID string) bool {
	if s.UserToggles == nil {
		return false
	}
	return s.UserToggles[userID].MutePayouts
}

// SetPayoutsMuted flips the payout notification toggle for a user.
func (s *Settings) SetPayoutsMuted(userID string, muted bool) {
	if s.UserToggles == nil {
		s.UserToggles = make(map[string]UserToggles)
	}
	t := s.UserToggles[userID]
	t.MutePayouts = muted
	s.UserToggles[userID] = t
}
