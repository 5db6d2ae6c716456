package session

import "time"

// Summary describes a finished session.
type Summary struct {
	SessionID string
	StartedAt time.Time
	EndedAt   time.Time
	PeakRisk  float64
	Alerts    int
	Err       error
}

func (s Summary) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

// Observer is notified of session events. Calls happen on the controller's
// goroutines and must not block or call back into the controller.
type Observer interface {
	SessionStarted(id string)
	SessionEnded(s Summary)
	PollCompleted(kind FailureKind, latency time.Duration)
	TickDropped()
	RiskObserved(risk float64)
	AlertFired(risk float64, label string)
	AlertFailed(err error)
}

// NopObserver can be embedded to implement only some of Observer.
type NopObserver struct{}

func (NopObserver) SessionStarted(string)                   {}
func (NopObserver) SessionEnded(Summary)                    {}
func (NopObserver) PollCompleted(FailureKind, time.Duration) {}
func (NopObserver) TickDropped()                            {}
func (NopObserver) RiskObserved(float64)                    {}
func (NopObserver) AlertFired(float64, string)              {}
func (NopObserver) AlertFailed(error)                       {}

type multiObserver []Observer

// MultiObserver fans events out to every non-nil observer.
func MultiObserver(observers ...Observer) Observer {
	var m multiObserver
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) SessionStarted(id string) {
	for _, o := range m {
		o.SessionStarted(id)
	}
}

func (m multiObserver) SessionEnded(s Summary) {
	for _, o := range m {
		o.SessionEnded(s)
	}
}

func (m multiObserver) PollCompleted(kind FailureKind, latency time.Duration) {
	for _, o := range m {
		o.PollCompleted(kind, latency)
	}
}

func (m multiObserver) TickDropped() {
	for _, o := range m {
		o.TickDropped()
	}
}

func (m multiObserver) RiskObserved(risk float64) {
	for _, o := range m {
		o.RiskObserved(risk)
	}
}

func (m multiObserver) AlertFired(risk float64, label string) {
	for _, o := range m {
		o.AlertFired(risk, label)
	}
}

func (m multiObserver) AlertFailed(err error) {
	for _, o := range m {
		o.AlertFailed(err)
	}
}
