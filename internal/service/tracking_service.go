package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/dhruv0206/opensource-issues-finder/internal/github"
	"github.com/dhruv0206/opensource-issues-finder/internal/models"
)

// A pr_submitted claim that survives this many verification sweeps without
// resolution is expired rather than checked forever.
const maxVerifyChecks = 30

var (
	// ErrInvalidIssueURL rejects claims whose URL is not a GitHub issue.
	ErrInvalidIssueURL = errors.New("invalid GitHub issue URL")
	// ErrInvalidPRURL rejects submissions whose URL is not a GitHub PR.
	ErrInvalidPRURL = errors.New("invalid GitHub pull request URL")
)

// TrackingStore is the persistence surface the claim lifecycle needs.
type TrackingStore interface {
	StartTracking(ctx context.Context, issue models.TrackedIssue) (models.TrackedIssue, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.TrackedIssue, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	ListByStatus(ctx context.Context, status models.IssueStatus) ([]models.TrackedIssue, error)
	SubmitPR(ctx context.Context, id, prURL string) (models.TrackedIssue, error)
	MarkVerified(ctx context.Context, id string, mergedAt time.Time) (models.TrackedIssue, error)
	SetStatus(ctx context.Context, id string, status models.IssueStatus) (models.TrackedIssue, error)
	IncrementCheck(ctx context.Context, id string) (models.TrackedIssue, error)
	Delete(ctx context.Context, id string) error
	InsertContribution(ctx context.Context, c models.VerifiedContribution) error
	ListContributions(ctx context.Context, userID string) ([]models.VerifiedContribution, error)
}

// IssueAPI is the slice of the GitHub client that claiming and verification
// use.
type IssueAPI interface {
	GetIssue(ctx context.Context, owner, repo string, number int) (github.Issue, error)
	GetPullRequest(ctx context.Context, owner, repo string, number int) (github.PullRequest, error)
}

// TrackingService owns the claimed-issue lifecycle: claim, PR submission,
// verification against GitHub, and abandonment.
type TrackingService struct {
	repo   TrackingStore
	github IssueAPI
}

// NewTrackingService wires the store and the GitHub client.
func NewTrackingService(repo TrackingStore, gh IssueAPI) *TrackingService {
	return &TrackingService{repo: repo, github: gh}
}

// StartTracking claims an issue for a user. The owner, repo and number are
// derived from the issue URL.
func (s *TrackingService) StartTracking(ctx context.Context, userID, issueURL, title string) (models.TrackedIssue, error) {
	owner, repo, number, ok := parseIssueURL(issueURL)
	if !ok {
		return models.TrackedIssue{}, ErrInvalidIssueURL
	}

	// Fill in the title from GitHub when the caller did not supply one.
	// Best effort: a lookup failure never blocks the claim.
	if title == "" {
		if issue, err := s.github.GetIssue(ctx, owner, repo, number); err == nil {
			title = issue.Title
		} else {
			log.Printf("issue title lookup failed for %s: %v", issueURL, err)
		}
	}

	return s.repo.StartTracking(ctx, models.TrackedIssue{
		UserID:      userID,
		IssueURL:    issueURL,
		RepoOwner:   owner,
		RepoName:    repo,
		IssueNumber: number,
		IssueTitle:  title,
	})
}

// ListUserIssues returns one page of a user's claims plus the overall count.
func (s *TrackingService) ListUserIssues(ctx context.Context, userID string, page, limit int) ([]models.TrackedIssue, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	total, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	issues, err := s.repo.ListByUser(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	return issues, total, nil
}

// SubmitPR attaches a pull request to a claim and queues it for
// verification.
func (s *TrackingService) SubmitPR(ctx context.Context, issueID, prURL string) (models.TrackedIssue, error) {
	if _, _, _, ok := github.ParsePullURL(prURL); !ok {
		return models.TrackedIssue{}, ErrInvalidPRURL
	}
	return s.repo.SubmitPR(ctx, issueID, prURL)
}

// Abandon drops a claim.
func (s *TrackingService) Abandon(ctx context.Context, issueID string) error {
	return s.repo.Delete(ctx, issueID)
}

// Contributions lists a user's verified merged PRs.
func (s *TrackingService) Contributions(ctx context.Context, userID string) ([]models.VerifiedContribution, error) {
	return s.repo.ListContributions(ctx, userID)
}

// VerifyReport summarises one verification sweep.
type VerifyReport struct {
	Checked   int `json:"checked"`
	Verified  int `json:"verified"`
	Expired   int `json:"expired"`
	Abandoned int `json:"abandoned"`
}

// VerifyPending sweeps every pr_submitted claim against GitHub. Merged PRs
// move the claim to verified and record a contribution; PRs closed without a
// merge move it to abandoned; open PRs just bump the check counter until the
// claim expires. A failed lookup for one claim never aborts the sweep.
func (s *TrackingService) VerifyPending(ctx context.Context) (VerifyReport, error) {
	pending, err := s.repo.ListByStatus(ctx, models.StatusPRSubmitted)
	if err != nil {
		return VerifyReport{}, fmt.Errorf("list pending claims: %w", err)
	}
	log.Printf("verifying %d pending PRs", len(pending))

	var report VerifyReport
	for _, claim := range pending {
		report.Checked++

		owner, repo, number, ok := github.ParsePullURL(claim.PRURL)
		if !ok {
			log.Printf("claim %s has malformed PR URL %q, skipping", claim.ID, claim.PRURL)
			continue
		}

		pr, err := s.github.GetPullRequest(ctx, owner, repo, number)
		if err != nil {
			log.Printf("PR lookup failed for %s: %v", claim.PRURL, err)
			if _, err := s.repo.IncrementCheck(ctx, claim.ID); err != nil {
				log.Printf("failed to bump check count for %s: %v", claim.ID, err)
			}
			continue
		}

		switch {
		case pr.Merged:
			mergedAt, err := time.Parse(time.RFC3339, pr.MergedAt)
			if err != nil {
				mergedAt = time.Now().UTC()
			}
			if _, err := s.repo.MarkVerified(ctx, claim.ID, mergedAt); err != nil {
				log.Printf("failed to verify claim %s: %v", claim.ID, err)
				continue
			}
			if err := s.repo.InsertContribution(ctx, models.VerifiedContribution{
				UserID:       claim.UserID,
				IssueURL:     claim.IssueURL,
				PRURL:        claim.PRURL,
				RepoOwner:    claim.RepoOwner,
				RepoName:     claim.RepoName,
				MergedAt:     mergedAt,
				LinesAdded:   pr.Additions,
				LinesRemoved: pr.Deletions,
			}); err != nil {
				log.Printf("failed to record contribution for %s: %v", claim.ID, err)
			}
			report.Verified++

		case pr.State == "closed":
			// Closed without a merge: this PR can never verify the claim.
			if _, err := s.repo.SetStatus(ctx, claim.ID, models.StatusAbandoned); err != nil {
				log.Printf("failed to abandon claim %s: %v", claim.ID, err)
				continue
			}
			report.Abandoned++

		case claim.CheckCount+1 >= maxVerifyChecks:
			if _, err := s.repo.SetStatus(ctx, claim.ID, models.StatusExpired); err != nil {
				log.Printf("failed to expire claim %s: %v", claim.ID, err)
				continue
			}
			report.Expired++

		default:
			if _, err := s.repo.IncrementCheck(ctx, claim.ID); err != nil {
				log.Printf("failed to bump check count for %s: %v", claim.ID, err)
			}
		}
	}

	log.Printf("verification sweep: %d checked, %d verified, %d expired, %d abandoned",
		report.Checked, report.Verified, report.Expired, report.Abandoned)
	return report, nil
}

// parseIssueURL splits "https://github.com/owner/repo/issues/123".
func parseIssueURL(issueURL string) (owner, repo string, number int, ok bool) {
	trimmed := strings.TrimPrefix(issueURL, "https://github.com/")
	if trimmed == issueURL {
		return "", "", 0, false
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) < 4 || parts[2] != "issues" {
		return "", "", 0, false
	}
	number, err := strconv.Atoi(parts[3])
	if err != nil {
		return "", "", 0, false
	}
	return parts[0], parts[1], number, true
}
