package engine

// claimRecord remembers one optimistic route claim so an authoritative
// rejection can revert the exact prior state.
type claimRecord struct {
	RouteID string
	Amount  float64
}

// Journal tracks optimistic applies awaiting authoritative confirmation.
// Only the engine goroutine touches it.
type Journal struct {
	claims map[string]claimRecord
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{claims: make(map[string]claimRecord)}
}

// RecordClaim notes an optimistic claim and the amount debited for it.
func (j *Journal) RecordClaim(routeID string, amount float64) {
	j.claims[routeID] = claimRecord{RouteID: routeID, Amount: amount}
}

// Confirm drops a claim that the authority echoed back as ours.
func (j *Journal) Confirm(routeID string) {
	delete(j.claims, routeID)
}

// Has reports whether a claim on the route is still awaiting a verdict.
func (j *Journal) Has(routeID string) bool {
	_, ok := j.claims[routeID]
	return ok
}

// Take removes and returns the pending claim for a route, if any.
func (j *Journal) Take(routeID string) (claimRecord, bool) {
	rec, ok := j.claims[routeID]
	if ok {
		delete(j.claims, routeID)
	}
	return rec, ok
}

// PendingClaims returns the route IDs still awaiting confirmation.
func (j *Journal) PendingClaims() []string {
	out := make([]string, 0, len(j.claims))
	for id := range j.claims {
		out = append(out, id)
	}
	return out
}
