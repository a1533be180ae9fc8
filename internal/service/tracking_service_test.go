package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruv0206/opensource-issues-finder/internal/github"
	"github.com/dhruv0206/opensource-issues-finder/internal/models"
	"github.com/dhruv0206/opensource-issues-finder/internal/repository"
)

// ---- Test doubles ----------------------------------------------------------

type fakeTrackingStore struct {
	claims        map[string]models.TrackedIssue
	contributions []models.VerifiedContribution
	nextID        int
}

func newFakeTrackingStore() *fakeTrackingStore {
	return &fakeTrackingStore{claims: make(map[string]models.TrackedIssue)}
}

func (f *fakeTrackingStore) StartTracking(_ context.Context, issue models.TrackedIssue) (models.TrackedIssue, error) {
	for _, c := range f.claims {
		if c.UserID == issue.UserID && c.IssueURL == issue.IssueURL {
			return models.TrackedIssue{}, repository.ErrAlreadyTracked
		}
	}
	f.nextID++
	issue.ID = fmt.Sprintf("claim-%d", f.nextID)
	issue.Status = models.StatusInProgress
	issue.StartedAt = time.Now().UTC()
	f.claims[issue.ID] = issue
	return issue, nil
}

func (f *fakeTrackingStore) ListByUser(_ context.Context, userID string, _, _ int) ([]models.TrackedIssue, error) {
	var out []models.TrackedIssue
	for _, c := range f.claims {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeTrackingStore) CountByUser(_ context.Context, userID string) (int, error) {
	n := 0
	for _, c := range f.claims {
		if c.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeTrackingStore) ListByStatus(_ context.Context, status models.IssueStatus) ([]models.TrackedIssue, error) {
	var out []models.TrackedIssue
	for _, c := range f.claims {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeTrackingStore) SubmitPR(_ context.Context, id, prURL string) (models.TrackedIssue, error) {
	c, ok := f.claims[id]
	if !ok {
		return models.TrackedIssue{}, repository.ErrNotFound
	}
	c.PRURL = prURL
	c.Status = models.StatusPRSubmitted
	f.claims[id] = c
	return c, nil
}

func (f *fakeTrackingStore) MarkVerified(_ context.Context, id string, mergedAt time.Time) (models.TrackedIssue, error) {
	c, ok := f.claims[id]
	if !ok {
		return models.TrackedIssue{}, repository.ErrNotFound
	}
	c.Status = models.StatusVerified
	c.VerifiedAt = &mergedAt
	c.CheckCount++
	f.claims[id] = c
	return c, nil
}

func (f *fakeTrackingStore) SetStatus(_ context.Context, id string, status models.IssueStatus) (models.TrackedIssue, error) {
	c, ok := f.claims[id]
	if !ok {
		return models.TrackedIssue{}, repository.ErrNotFound
	}
	c.Status = status
	c.CheckCount++
	f.claims[id] = c
	return c, nil
}

func (f *fakeTrackingStore) IncrementCheck(_ context.Context, id string) (models.TrackedIssue, error) {
	c, ok := f.claims[id]
	if !ok {
		return models.TrackedIssue{}, repository.ErrNotFound
	}
	c.CheckCount++
	f.claims[id] = c
	return c, nil
}

func (f *fakeTrackingStore) Delete(_ context.Context, id string) error {
	if _, ok := f.claims[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.claims, id)
	return nil
}

func (f *fakeTrackingStore) InsertContribution(_ context.Context, c models.VerifiedContribution) error {
	f.contributions = append(f.contributions, c)
	return nil
}

func (f *fakeTrackingStore) ListContributions(_ context.Context, userID string) ([]models.VerifiedContribution, error) {
	var out []models.VerifiedContribution
	for _, c := range f.contributions {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeIssueAPI struct {
	issues map[string]github.Issue
	prs    map[string]github.PullRequest
	err    error
}

func ghKey(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s#%d", owner, repo, number)
}

func (f *fakeIssueAPI) GetIssue(_ context.Context, owner, repo string, number int) (github.Issue, error) {
	if f.err != nil {
		return github.Issue{}, f.err
	}
	issue, ok := f.issues[ghKey(owner, repo, number)]
	if !ok {
		return github.Issue{}, errors.New("issue not found")
	}
	return issue, nil
}

func (f *fakeIssueAPI) GetPullRequest(_ context.Context, owner, repo string, number int) (github.PullRequest, error) {
	if f.err != nil {
		return github.PullRequest{}, f.err
	}
	pr, ok := f.prs[ghKey(owner, repo, number)]
	if !ok {
		return github.PullRequest{}, errors.New("pull request not found")
	}
	return pr, nil
}

func submittedClaim(t *testing.T, store *fakeTrackingStore, svc *TrackingService, user, prURL string) models.TrackedIssue {
	t.Helper()
	claim, err := svc.StartTracking(context.Background(), user,
		"https://github.com/octo/demo/issues/42", "Fix config errors")
	require.NoError(t, err)
	claim, err = svc.SubmitPR(context.Background(), claim.ID, prURL)
	require.NoError(t, err)
	require.Equal(t, models.StatusPRSubmitted, claim.Status)
	return claim
}

// ---- Claiming --------------------------------------------------------------

func TestStartTrackingRejectsBadURL(t *testing.T) {
	svc := NewTrackingService(newFakeTrackingStore(), &fakeIssueAPI{})

	_, err := svc.StartTracking(context.Background(), "alice",
		"https://github.com/octo/demo/pull/5", "")
	assert.ErrorIs(t, err, ErrInvalidIssueURL)
}

func TestStartTrackingFillsMissingTitle(t *testing.T) {
	gh := &fakeIssueAPI{issues: map[string]github.Issue{
		ghKey("octo", "demo", 42): {Number: 42, Title: "Improve error messages"},
	}}
	svc := NewTrackingService(newFakeTrackingStore(), gh)

	claim, err := svc.StartTracking(context.Background(), "alice",
		"https://github.com/octo/demo/issues/42", "")
	require.NoError(t, err)
	assert.Equal(t, "Improve error messages", claim.IssueTitle)
	assert.Equal(t, models.StatusInProgress, claim.Status)
}

func TestStartTrackingSurvivesTitleLookupFailure(t *testing.T) {
	svc := NewTrackingService(newFakeTrackingStore(), &fakeIssueAPI{err: errors.New("rate limited")})

	claim, err := svc.StartTracking(context.Background(), "alice",
		"https://github.com/octo/demo/issues/42", "")
	require.NoError(t, err)
	assert.Empty(t, claim.IssueTitle)
}

func TestStartTrackingDuplicateClaim(t *testing.T) {
	svc := NewTrackingService(newFakeTrackingStore(), &fakeIssueAPI{})

	_, err := svc.StartTracking(context.Background(), "alice",
		"https://github.com/octo/demo/issues/42", "t")
	require.NoError(t, err)

	_, err = svc.StartTracking(context.Background(), "alice",
		"https://github.com/octo/demo/issues/42", "t")
	assert.ErrorIs(t, err, repository.ErrAlreadyTracked)
}

func TestSubmitPRRejectsBadURL(t *testing.T) {
	svc := NewTrackingService(newFakeTrackingStore(), &fakeIssueAPI{})

	_, err := svc.SubmitPR(context.Background(), "claim-1",
		"https://github.com/octo/demo/issues/7")
	assert.ErrorIs(t, err, ErrInvalidPRURL)
}

// ---- Verification sweep ----------------------------------------------------

func TestVerifyPendingMergedPR(t *testing.T) {
	store := newFakeTrackingStore()
	gh := &fakeIssueAPI{prs: map[string]github.PullRequest{
		ghKey("octo", "demo", 7): {
			Number:    7,
			State:     "closed",
			Merged:    true,
			MergedAt:  "2026-02-01T12:00:00Z",
			Additions: 120,
			Deletions: 15,
		},
	}}
	svc := NewTrackingService(store, gh)
	claim := submittedClaim(t, store, svc, "alice", "https://github.com/octo/demo/pull/7")

	report, err := svc.VerifyPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, VerifyReport{Checked: 1, Verified: 1}, report)

	got := store.claims[claim.ID]
	assert.Equal(t, models.StatusVerified, got.Status)
	require.NotNil(t, got.VerifiedAt)
	assert.Equal(t, "2026-02-01T12:00:00Z", got.VerifiedAt.UTC().Format(time.RFC3339))

	contribs, err := svc.Contributions(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, contribs, 1)
	assert.Equal(t, 120, contribs[0].LinesAdded)
	assert.Equal(t, 15, contribs[0].LinesRemoved)
}

func TestVerifyPendingClosedUnmergedPR(t *testing.T) {
	store := newFakeTrackingStore()
	gh := &fakeIssueAPI{prs: map[string]github.PullRequest{
		ghKey("octo", "demo", 7): {Number: 7, State: "closed", Merged: false},
	}}
	svc := NewTrackingService(store, gh)
	claim := submittedClaim(t, store, svc, "alice", "https://github.com/octo/demo/pull/7")

	report, err := svc.VerifyPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, VerifyReport{Checked: 1, Abandoned: 1}, report)

	// A dead PR must not be re-checked on later sweeps.
	assert.Equal(t, models.StatusAbandoned, store.claims[claim.ID].Status)

	contribs, err := svc.Contributions(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, contribs)
}

func TestVerifyPendingOpenPRIncrementsCheck(t *testing.T) {
	store := newFakeTrackingStore()
	gh := &fakeIssueAPI{prs: map[string]github.PullRequest{
		ghKey("octo", "demo", 7): {Number: 7, State: "open"},
	}}
	svc := NewTrackingService(store, gh)
	claim := submittedClaim(t, store, svc, "alice", "https://github.com/octo/demo/pull/7")

	report, err := svc.VerifyPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, VerifyReport{Checked: 1}, report)

	got := store.claims[claim.ID]
	assert.Equal(t, models.StatusPRSubmitted, got.Status)
	assert.Equal(t, 1, got.CheckCount)
}

func TestVerifyPendingExpiresStaleClaims(t *testing.T) {
	store := newFakeTrackingStore()
	gh := &fakeIssueAPI{prs: map[string]github.PullRequest{
		ghKey("octo", "demo", 7): {Number: 7, State: "open"},
	}}
	svc := NewTrackingService(store, gh)
	claim := submittedClaim(t, store, svc, "alice", "https://github.com/octo/demo/pull/7")

	c := store.claims[claim.ID]
	c.CheckCount = maxVerifyChecks - 1
	store.claims[claim.ID] = c

	report, err := svc.VerifyPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, VerifyReport{Checked: 1, Expired: 1}, report)
	assert.Equal(t, models.StatusExpired, store.claims[claim.ID].Status)
}

func TestVerifyPendingLookupFailureDoesNotAbort(t *testing.T) {
	store := newFakeTrackingStore()
	gh := &fakeIssueAPI{err: errors.New("connection reset")}
	svc := NewTrackingService(store, gh)
	claim, err := store.StartTracking(context.Background(), models.TrackedIssue{
		UserID:   "alice",
		IssueURL: "https://github.com/octo/demo/issues/42",
	})
	require.NoError(t, err)
	_, err = store.SubmitPR(context.Background(), claim.ID, "https://github.com/octo/demo/pull/7")
	require.NoError(t, err)

	report, err := svc.VerifyPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, VerifyReport{Checked: 1}, report)

	// The failed lookup still counts toward expiry.
	assert.Equal(t, 1, store.claims[claim.ID].CheckCount)
}

// ---- URL parsing -----------------------------------------------------------

func TestParseIssueURL(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantOwner  string
		wantRepo   string
		wantNumber int
		wantOK     bool
	}{
		{
			name:       "canonical issue url",
			url:        "https://github.com/octo/demo/issues/42",
			wantOwner:  "octo",
			wantRepo:   "demo",
			wantNumber: 42,
			wantOK:     true,
		},
		{name: "pull url is not an issue", url: "https://github.com/octo/demo/pull/42"},
		{name: "non-numeric number", url: "https://github.com/octo/demo/issues/latest"},
		{name: "wrong host", url: "https://example.com/octo/demo/issues/42"},
		{name: "empty", url: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, number, ok := parseIssueURL(tt.url)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
			assert.Equal(t, tt.wantNumber, number)
		})
	}
}
