package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dhruv0206/opensource-issues-finder/internal/models"
)

// ErrAlreadyTracked is returned when a user claims an issue twice.
var ErrAlreadyTracked = errors.New("repository: issue already tracked by user")

// TrackingMongo persists tracked issues and verified contributions.
type TrackingMongo struct {
	issues        *mongo.Collection
	contributions *mongo.Collection
}

// NewTrackingRepository wires the collections.
func NewTrackingRepository(db *mongo.Database) *TrackingMongo {
	return &TrackingMongo{
		issues:        db.Collection("tracked_issues"),
		contributions: db.Collection("verified_contributions"),
	}
}

// StartTracking creates a tracked issue in the in_progress state. Claiming
// the same issue URL twice for one user is rejected.
func (r *TrackingMongo) StartTracking(ctx context.Context, issue models.TrackedIssue) (models.TrackedIssue, error) {
	err := r.issues.FindOne(ctx, bson.M{
		"user_id":   issue.UserID,
		"issue_url": issue.IssueURL,
	}).Err()
	if err == nil {
		return models.TrackedIssue{}, ErrAlreadyTracked
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.TrackedIssue{}, fmt.Errorf("check existing claim: %w", err)
	}

	issue.ID = uuid.NewString()
	issue.Status = models.StatusInProgress
	issue.StartedAt = time.Now().UTC()
	issue.CheckCount = 0

	if _, err := r.issues.InsertOne(ctx, issue); err != nil {
		return models.TrackedIssue{}, fmt.Errorf("insert tracked issue: %w", err)
	}
	return issue, nil
}

// ListByUser returns a user's tracked issues, newest claims first.
func (r *TrackingMongo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.TrackedIssue, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cur, err := r.issues.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list tracked issues: %w", err)
	}
	defer cur.Close(ctx)

	var issues []models.TrackedIssue
	if err := cur.All(ctx, &issues); err != nil {
		return nil, fmt.Errorf("decode tracked issues: %w", err)
	}
	return issues, nil
}

// CountByUser returns the number of issues a user has ever claimed.
func (r *TrackingMongo) CountByUser(ctx context.Context, userID string) (int, error) {
	n, err := r.issues.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("count tracked issues: %w", err)
	}
	return int(n), nil
}

// FindByID fetches a tracked issue by its ID.
func (r *TrackingMongo) FindByID(ctx context.Context, id string) (models.TrackedIssue, error) {
	var issue models.TrackedIssue
	err := r.issues.FindOne(ctx, bson.M{"_id": id}).Decode(&issue)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.TrackedIssue{}, ErrNotFound
	}
	if err != nil {
		return models.TrackedIssue{}, fmt.Errorf("find tracked issue %s: %w", id, err)
	}
	return issue, nil
}

// ListByStatus returns every tracked issue in the given state.
func (r *TrackingMongo) ListByStatus(ctx context.Context, status models.IssueStatus) ([]models.TrackedIssue, error) {
	cur, err := r.issues.Find(ctx, bson.M{"status": status})
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	defer cur.Close(ctx)

	var issues []models.TrackedIssue
	if err := cur.All(ctx, &issues); err != nil {
		return nil, fmt.Errorf("decode tracked issues: %w", err)
	}
	return issues, nil
}

// SubmitPR attaches a PR URL to a claim and moves it to pr_submitted.
func (r *TrackingMongo) SubmitPR(ctx context.Context, id, prURL string) (models.TrackedIssue, error) {
	return r.update(ctx, id, bson.M{"$set": bson.M{
		"pr_url": prURL,
		"status": models.StatusPRSubmitted,
	}})
}

// MarkVerified moves a claim to verified with the PR's merge time.
func (r *TrackingMongo) MarkVerified(ctx context.Context, id string, mergedAt time.Time) (models.TrackedIssue, error) {
	return r.update(ctx, id, bson.M{
		"$set": bson.M{
			"status":      models.StatusVerified,
			"verified_at": mergedAt,
		},
		"$inc": bson.M{"check_count": 1},
	})
}

// SetStatus moves a claim to the given state and bumps its check counter.
func (r *TrackingMongo) SetStatus(ctx context.Context, id string, status models.IssueStatus) (models.TrackedIssue, error) {
	return r.update(ctx, id, bson.M{
		"$set": bson.M{"status": status},
		"$inc": bson.M{"check_count": 1},
	})
}

// IncrementCheck bumps the verification attempt counter.
func (r *TrackingMongo) IncrementCheck(ctx context.Context, id string) (models.TrackedIssue, error) {
	return r.update(ctx, id, bson.M{"$inc": bson.M{"check_count": 1}})
}

func (r *TrackingMongo) update(ctx context.Context, id string, update bson.M) (models.TrackedIssue, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var issue models.TrackedIssue
	err := r.issues.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&issue)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.TrackedIssue{}, ErrNotFound
	}
	if err != nil {
		return models.TrackedIssue{}, fmt.Errorf("update tracked issue %s: %w", id, err)
	}
	return issue, nil
}

// Delete removes a claim entirely (the "abandon" operation).
func (r *TrackingMongo) Delete(ctx context.Context, id string) error {
	res, err := r.issues.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete tracked issue %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertContribution records a merged PR. Duplicate PR URLs for the same
// user are ignored so repeated verification sweeps stay idempotent.
func (r *TrackingMongo) InsertContribution(ctx context.Context, c models.VerifiedContribution) error {
	err := r.contributions.FindOne(ctx, bson.M{
		"user_id": c.UserID,
		"pr_url":  c.PRURL,
	}).Err()
	if err == nil {
		return nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("check existing contribution: %w", err)
	}

	c.ID = uuid.NewString()
	if _, err := r.contributions.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("insert contribution: %w", err)
	}
	return nil
}

// ListContributions returns a user's merged PRs, newest first.
func (r *TrackingMongo) ListContributions(ctx context.Context, userID string) ([]models.VerifiedContribution, error) {
	opts := options.Find().SetSort(bson.D{{Key: "merged_at", Value: -1}})
	cur, err := r.contributions.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.VerifiedContribution
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode contributions: %w", err)
	}
	return out, nil
}
