package models

import (
	"fmt"
	"time"
)

// IssueMetadata is the metadata stored alongside each issue embedding in the
// vector index. Fields map one-to-one onto the index document so Atlas
// Vector Search can filter on them directly.
type IssueMetadata struct {
	// Issue fields
	IssueID       int64    `bson:"issue_id" json:"issue_id"`
	IssueNumber   int      `bson:"issue_number" json:"issue_number"`
	Title         string   `bson:"title" json:"title"`
	Body          string   `bson:"body,omitempty" json:"body,omitempty"`
	Labels        []string `bson:"labels" json:"labels"`
	CreatedAt     string   `bson:"created_at" json:"created_at"` // ISO-8601
	UpdatedAt     string   `bson:"updated_at" json:"updated_at"` // ISO-8601
	CommentsCount int      `bson:"comments_count" json:"comments_count"`
	IssueURL      string   `bson:"issue_url" json:"issue_url"`
	State         string   `bson:"state" json:"state"`

	// Unix mirrors of the ISO timestamps, used only for numeric range
	// filtering inside the index. Recomputed by Normalize on every write.
	CreatedAtTS int64 `bson:"created_at_ts" json:"-"`
	UpdatedAtTS int64 `bson:"updated_at_ts" json:"-"`

	// Assignment
	IsAssigned     bool     `bson:"is_assigned" json:"is_assigned"`
	AssigneesCount int      `bson:"assignees_count" json:"assignees_count"`
	Assignees      []string `bson:"assignees,omitempty" json:"assignees,omitempty"`

	// Repo fields
	RepoName     string `bson:"repo_name" json:"repo_name"`
	RepoFullName string `bson:"repo_full_name" json:"repo_full_name"`
	RepoStars    int    `bson:"repo_stars" json:"repo_stars"`
	RepoForks    int    `bson:"repo_forks" json:"repo_forks"`
	RepoURL      string `bson:"repo_url" json:"repo_url"`
	Language     string `bson:"language,omitempty" json:"language,omitempty"`

	RepoDescription     string   `bson:"repo_description,omitempty" json:"repo_description,omitempty"`
	RepoTopics          []string `bson:"repo_topics,omitempty" json:"repo_topics,omitempty"`
	RepoLicense         string   `bson:"repo_license,omitempty" json:"repo_license,omitempty"`
	RepoOpenIssuesCount int      `bson:"repo_open_issues_count" json:"repo_open_issues_count"`

	// Convenience flags derived from label membership (case-insensitive).
	IsGoodFirstIssue bool `bson:"is_good_first_issue" json:"is_good_first_issue"`
	IsHelpWanted     bool `bson:"is_help_wanted" json:"is_help_wanted"`

	// Unix epoch of the last index write.
	IngestedAt int64 `bson:"ingested_at" json:"-"`
}

// Normalize recomputes the Unix-epoch mirrors from the ISO strings. Every
// index write path must call this: a record whose ISO strings move without
// the mirrors silently breaks all recency filtering and sorting.
func (m *IssueMetadata) Normalize() {
	m.CreatedAtTS = parseISO(m.CreatedAt)
	m.UpdatedAtTS = parseISO(m.UpdatedAt)
}

func parseISO(s string) int64 {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.Unix()
}

// IssueVector pairs an issue's metadata with its embedding for storage. The
// metadata is inlined so its fields sit at the top level of the document,
// where the vector index's filter expressions can reach them.
type IssueVector struct {
	ID        string        `bson:"_id"`
	Embedding []float32     `bson:"embedding"`
	Metadata  IssueMetadata `bson:",inline"`
}

// VectorID builds the canonical index key for an issue.
func VectorID(repoFullName string, issueNumber int) string {
	return fmt.Sprintf("%s#%d", repoFullName, issueNumber)
}
