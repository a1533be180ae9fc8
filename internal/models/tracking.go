package models

import "time"

// IssueStatus is the lifecycle state of a tracked issue.
type IssueStatus string

const (
	StatusInProgress  IssueStatus = "in_progress"
	StatusPRSubmitted IssueStatus = "pr_submitted"
	StatusVerified    IssueStatus = "verified"
	StatusExpired     IssueStatus = "expired"
	StatusAbandoned   IssueStatus = "abandoned"
)

// TrackedIssue records an issue a user has claimed and is working on.
type TrackedIssue struct {
	ID          string      `bson:"_id" json:"id"`
	UserID      string      `bson:"user_id" json:"user_id"`
	IssueURL    string      `bson:"issue_url" json:"issue_url"`
	RepoOwner   string      `bson:"repo_owner" json:"repo_owner"`
	RepoName    string      `bson:"repo_name" json:"repo_name"`
	IssueNumber int         `bson:"issue_number" json:"issue_number"`
	IssueTitle  string      `bson:"issue_title,omitempty" json:"issue_title,omitempty"`
	Status      IssueStatus `bson:"status" json:"status"`
	StartedAt   time.Time   `bson:"started_at" json:"started_at"`
	PRURL       string      `bson:"pr_url,omitempty" json:"pr_url,omitempty"`
	VerifiedAt  *time.Time  `bson:"verified_at,omitempty" json:"verified_at,omitempty"`
	CheckCount  int         `bson:"check_count" json:"check_count"`
}

// VerifiedContribution records a merged PR that closed a tracked issue.
type VerifiedContribution struct {
	ID           string    `bson:"_id" json:"id"`
	UserID       string    `bson:"user_id" json:"user_id"`
	IssueURL     string    `bson:"issue_url" json:"issue_url"`
	PRURL        string    `bson:"pr_url" json:"pr_url"`
	RepoOwner    string    `bson:"repo_owner" json:"repo_owner"`
	RepoName     string    `bson:"repo_name" json:"repo_name"`
	MergedAt     time.Time `bson:"merged_at" json:"merged_at"`
	LinesAdded   int       `bson:"lines_added" json:"lines_added"`
	LinesRemoved int       `bson:"lines_removed" json:"lines_removed"`
}
