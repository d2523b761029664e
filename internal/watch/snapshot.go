package watch

import "time"

// State is the watcher's position in its run.
type State string

const (
	StateIdle             State = "idle"
	StateWaitingForPeriod State = "waiting_for_first_period"
	StatePolling          State = "polling"
	StateAdvancing        State = "advancing_period"
	StateBackoff          State = "fetcher_backoff"
	StateFinished         State = "finished"
)

// LinkStatus is the per-link view exposed on /status.
type LinkStatus struct {
	Period      int       `json:"period"`
	Index       int       `json:"index"`
	Name        string    `json:"name"`
	Enabled     bool      `json:"enabled"`
	Done        bool      `json:"done"`
	Polls       int       `json:"polls"`
	LastVerdict string    `json:"last_verdict,omitempty"`
	LastPollAt  time.Time `json:"last_poll_at,omitempty"`
}

// Snapshot is a point-in-time copy of the watcher state.
type Snapshot struct {
	RunID     string       `json:"run_id"`
	State     State        `json:"state"`
	Period    int          `json:"period,omitempty"`
	StartedAt time.Time    `json:"started_at"`
	Polls     int          `json:"polls"`
	Links     []LinkStatus `json:"links"`
}

// Snapshot is safe to call from any goroutine.
func (w *Watcher) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Snapshot{
		RunID:     w.cfg.RunID,
		State:     w.state,
		StartedAt: w.startedAt,
		Polls:     w.polls,
	}
	if w.cur >= 0 && w.cur < len(w.sched.Periods) {
		s.Period = w.sched.Periods[w.cur].Key
	}
	for p, links := range w.sched.Links {
		for i, l := range links {
			st := w.status[p][i]
			s.Links = append(s.Links, LinkStatus{
				Period:      w.sched.Periods[p].Key,
				Index:       i,
				Name:        l.Name,
				Enabled:     l.Enabled,
				Done:        w.done[p][i],
				Polls:       st.polls,
				LastVerdict: st.verdict,
				LastPollAt:  st.at,
			})
		}
	}
	return s
}
