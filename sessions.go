package guidelines

// CreateSession starts a session seeded with initial context.
func (a *Agent) CreateSession(initial map[string]any) SessionResult {
	id := a.sessions.Create(initial)
	return SessionResult{Status: ok(), SessionID: id, Created: true}
}

// SessionInfo returns a session with its context and history.
func (a *Agent) SessionInfo(id string) SessionInfoResult {
	sess, err := a.sessions.Get(id)
	if err != nil {
		return SessionInfoResult{Status: failed(err)}
	}
	return SessionInfoResult{Status: ok(), Session: sess}
}

// SessionHistory returns the last limit turns, oldest first. limit <= 0
// returns all of them.
func (a *Agent) SessionHistory(id string, limit int) HistoryResult {
	turns, err := a.sessions.History(id, limit)
	if err != nil {
		return HistoryResult{Status: failed(err), SessionID: id}
	}
	return HistoryResult{Status: ok(), SessionID: id, Interactions: turns}
}

// UpdateSessionContext merges update into the session context.
func (a *Agent) UpdateSessionContext(id string, update map[string]any) ContextResult {
	merged, err := a.sessions.UpdateContext(id, update)
	if err != nil {
		return ContextResult{Status: failed(err)}
	}
	return ContextResult{Status: ok(), Context: merged}
}

// DeleteSession removes a session.
func (a *Agent) DeleteSession(id string) Status {
	if err := a.sessions.Delete(id); err != nil {
		return failed(err)
	}
	return ok()
}

// SessionStats describes the session store.
func (a *Agent) SessionStats() SessionStatsResult {
	return SessionStatsResult{Status: ok(), Stats: a.sessions.Stats()}
}
