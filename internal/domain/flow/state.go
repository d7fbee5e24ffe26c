package flow

import "strings"

// Stage is one automated workflow phase. Labels mark its lifecycle on the
// issue: running while an agent holds it, failed after an unsuccessful run,
// done once the stage output landed.
type Stage struct {
	Name         string
	RunningLabel string
	FailedLabel  string
	DoneLabel    string
}

const (
	StageResearch  = "research"
	StagePlan      = "plan"
	StageImplement = "implement"
)

// Stages lists the workflow phases in execution order.
var Stages = []Stage{
	{Name: StageResearch, RunningLabel: "researching", FailedLabel: "research-failed", DoneLabel: "research-done"},
	{Name: StagePlan, RunningLabel: "planning", FailedLabel: "plan-failed", DoneLabel: "plan-done"},
	{Name: StageImplement, RunningLabel: "implementing", FailedLabel: "implement-failed", DoneLabel: "implement-done"},
}

// StageByName returns the stage with the given name.
func StageByName(name string) (Stage, bool) {
	for _, stage := range Stages {
		if stage.Name == name {
			return stage, true
		}
	}
	return Stage{}, false
}

// AutomationLabels returns every label the daemon needs present on a
// repository before it can drive issues through the workflow.
func AutomationLabels() []string {
	labels := make([]string, 0, len(Stages)*3)
	for _, stage := range Stages {
		labels = append(labels, stage.RunningLabel, stage.FailedLabel, stage.DoneLabel)
	}
	return labels
}

// Classify maps an item's labels and board column to one canonical state.
//
// Precedence, highest first: a running-stage label wins outright, then a
// stage-failed label, then a stage-done label, then the lower-cased board
// status. Only the first matching category is consulted even when labels
// from several categories are present at once.
func Classify(labels []string, boardStatus string) string {
	has := make(map[string]bool, len(labels))
	for _, label := range labels {
		has[label] = true
	}

	for _, stage := range Stages {
		if has[stage.RunningLabel] {
			return stage.RunningLabel
		}
	}
	for _, stage := range Stages {
		if has[stage.FailedLabel] {
			return stage.FailedLabel
		}
	}
	for _, stage := range Stages {
		if has[stage.DoneLabel] {
			return stage.DoneLabel
		}
	}

	return strings.ToLower(strings.TrimSpace(boardStatus))
}

// TargetStage returns the stage to dispatch for a classified state, or false
// when the state does not call for automation (running, failed, terminal).
func TargetStage(state string, triggerStatuses []string) (Stage, bool) {
	switch state {
	case "research-done":
		return Stages[1], true
	case "plan-done":
		return Stages[2], true
	}

	for _, status := range triggerStatuses {
		if state == strings.ToLower(strings.TrimSpace(status)) {
			return Stages[0], true
		}
	}
	return Stage{}, false
}
