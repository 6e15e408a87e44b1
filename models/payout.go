package models

// PayoutSchedule maps userID -> itemID -> next payout time (epoch millis).
// An entry exists only while the user owns the item; the engine re-arms the
// entry before crediting income.
type PayoutSchedule map[string]map[string]int64

// Due returns the item IDs for a user whose payout time has passed.
func (p PayoutSchedule) Due(userID string, nowMillis int64) []string {
	var due []string
	for itemID, at := range p[userID] {
		if at <= nowMillis {
			due = append(due, itemID)
		}
	}
	return due
}

// Arm sets the next payout time for a user's item.
func (p PayoutSchedule) Arm(userID, itemID string, at int64) {
	m := p[userID]
	if m == nil {
		m = make(map[string]int64)
		p[userID] = m
	}
	m[itemID] = at
}

// Remove drops the schedule entry for a user's item.
func (p PayoutSchedule) Remove(userID, itemID string) {
	if m := p[userID]; m != nil {
		delete(m, itemID)
		if len(m) == 0 {
			delete(p, userID)
		}
	}
}
