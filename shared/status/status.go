package status

import "strings"

const (
	IssueStatusNew          = "new"
	IssueStatusAcknowledged = "acknowledged"
	IssueStatusInProgress   = "in_progress"
	IssueStatusResolved     = "resolved"
	IssueStatusClosed       = "closed"
)

const (
	IssueEventOpened       = "issue_opened"
	IssueEventAcknowledged = "issue_acknowledged"
	IssueEventStarted      = "issue_work_started"
	IssueEventResolved     = "issue_resolved"
	IssueEventClosed       = "issue_closed"
	IssueEventReopened     = "issue_reopened"
)

const (
	AlertEventOpened = "alert_opened"
	AlertEventClosed = "alert_closed"
)

var issueTransitions = map[string]map[string]string{
	IssueStatusNew: {
		IssueStatusAcknowledged: IssueEventAcknowledged,
		IssueStatusInProgress:   IssueEventStarted,
		IssueStatusClosed:       IssueEventClosed,
	},
	IssueStatusAcknowledged: {
		IssueStatusNew:        IssueEventReopened,
		IssueStatusInProgress: IssueEventStarted,
		IssueStatusClosed:     IssueEventClosed,
	},
	IssueStatusInProgress: {
		IssueStatusResolved: IssueEventResolved,
		IssueStatusClosed:   IssueEventClosed,
	},
	IssueStatusResolved: {
		IssueStatusNew:    IssueEventReopened,
		IssueStatusClosed: IssueEventClosed,
	},
}

func NormalizeIssueStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

func CanTransition(fromStatus string, toStatus string) bool {
	fromStatus = NormalizeIssueStatus(fromStatus)
	toStatus = NormalizeIssueStatus(toStatus)
	if fromStatus == toStatus {
		return true
	}
	next := issueTransitions[fromStatus]
	if next == nil {
		return false
	}
	_, ok := next[toStatus]
	return ok
}

func EventTypeForTransition(fromStatus string, toStatus string) string {
	fromStatus = NormalizeIssueStatus(fromStatus)
	toStatus = NormalizeIssueStatus(toStatus)
	if fromStatus == toStatus {
		return ""
	}
	next := issueTransitions[fromStatus]
	if next == nil {
		return ""
	}
	return next[toStatus]
}

func AllIssueStatuses() []string {
	return []string{
		IssueStatusNew,
		IssueStatusAcknowledged,
		IssueStatusInProgress,
		IssueStatusResolved,
		IssueStatusClosed,
	}
}
