// Package view tracks which screen of the UI is shown.
package view

import (
	"fmt"
	"sync"

	"github.com/onfert/analyst/internal/errors"
	"github.com/onfert/analyst/internal/models"
)

// View is one screen of the application.
type View string

const (
	Form   View = "form"
	Result View = "result"
	Live   View = "live"
	Report View = "report"
)

// Tab is a header navigation entry.
type Tab string

const (
	TabAnalysis Tab = "analysis"
	TabLive     Tab = "live"
	TabReport   Tab = "report"
)

// Parse converts a view name.
func Parse(s string) (View, error) {
	switch v := View(s); v {
	case Form, Result, Live, Report:
		return v, nil
	}
	return "", errors.Validation("view.parse", fmt.Sprintf("tela desconhecida: %q", s))
}

// Tab returns the header entry highlighted for v. The form and the result
// share the analysis tab.
func (v View) Tab() Tab {
	switch v {
	case Live:
		return TabLive
	case Report:
		return TabReport
	default:
		return TabAnalysis
	}
}

// Snapshot is the navigation state sent to the UI.
type Snapshot struct {
	View     View                  `json:"view"`
	Tab      Tab                   `json:"tab"`
	Loading  bool                  `json:"loading"`
	Error    string                `json:"error,omitempty"`
	Analysis *models.SavedAnalysis `json:"analysis,omitempty"`
}

// Navigator is the view state machine of one UI client.
type Navigator struct {
	mu       sync.Mutex
	current  View
	loading  bool
	errMsg   string
	analysis *models.SavedAnalysis
}

// NewNavigator starts on the analysis form.
func NewNavigator() *Navigator {
	return &Navigator{current: Form}
}

// Current returns the shown view.
func (n *Navigator) Current() View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Snapshot returns the full navigation state.
func (n *Navigator) Snapshot() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Snapshot{
		View:     n.current,
		Tab:      n.current.Tab(),
		Loading:  n.loading,
		Error:    n.errMsg,
		Analysis: n.analysis,
	}
}

// Navigate switches to v and returns the previous view. The result view is
// only reachable while there is a current analysis.
func (n *Navigator) Navigate(v View) (View, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	prev := n.current
	if v == Result && n.analysis == nil {
		return prev, errors.Validation("view.navigate", "Nenhuma análise para exibir.")
	}
	n.current = v
	return prev, nil
}

// BeginAnalysis marks a submission in flight and clears the last error.
func (n *Navigator) BeginAnalysis() {
	n.mu.Lock()
	n.loading = true
	n.errMsg = ""
	n.mu.Unlock()
}

// AnalysisCompleted shows the result of a.
func (n *Navigator) AnalysisCompleted(a *models.SavedAnalysis) {
	n.mu.Lock()
	n.loading = false
	n.analysis = a
	n.current = Result
	n.mu.Unlock()
}

// AnalysisFailed keeps the form on screen with msg as the error banner.
func (n *Navigator) AnalysisFailed(msg string) {
	n.mu.Lock()
	n.loading = false
	n.errMsg = msg
	n.current = Form
	n.mu.Unlock()
}

// Back returns from the result to the form.
func (n *Navigator) Back() {
	n.mu.Lock()
	n.current = Form
	n.mu.Unlock()
}

// Saved shows the company report after the current analysis was saved.
func (n *Navigator) Saved() {
	n.mu.Lock()
	n.current = Report
	n.mu.Unlock()
}

// CurrentAnalysis returns the analysis shown on the result view.
func (n *Navigator) CurrentAnalysis() *models.SavedAnalysis {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.analysis
}
