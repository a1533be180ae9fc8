package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dhruv0206/opensource-issues-finder/internal/models"
	"github.com/dhruv0206/opensource-issues-finder/internal/search"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("repository: not found")

// IssueMongo stores issue embeddings and their metadata in one collection
// searched through an Atlas Vector Search index (cosine metric, path
// "embedding").
//
// Expected schema:
//
//	issues
//	  { _id: "owner/repo#42", embedding: []float32, <IssueMetadata fields inline> }
type IssueMongo struct {
	col       *mongo.Collection
	vectorIdx string
}

// NewIssueRepository wires the collection.
func NewIssueRepository(db *mongo.Database) *IssueMongo {
	return &IssueMongo{
		col:       db.Collection("issues"),
		vectorIdx: "issue_embedding_index",
	}
}

const upsertBatchSize = 100

// UpsertIssues writes vectors in batches, replacing any previous document
// for the same issue. Timestamp mirrors are recomputed on every write so
// they can never go stale relative to the ISO strings.
func (r *IssueMongo) UpsertIssues(ctx context.Context, issues []models.IssueVector) (int, error) {
	total := 0
	for start := 0; start < len(issues); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(issues) {
			end = len(issues)
		}
		batch := issues[start:end]

		ops := make([]mongo.WriteModel, 0, len(batch))
		for i := range batch {
			batch[i].Metadata.Normalize()
			batch[i].Metadata.IngestedAt = time.Now().Unix()
			ops = append(ops, mongo.NewReplaceOneModel().
				SetFilter(bson.M{"_id": batch[i].ID}).
				SetReplacement(batch[i]).
				SetUpsert(true))
		}

		if _, err := r.col.BulkWrite(ctx, ops); err != nil {
			return total, fmt.Errorf("bulk upsert: %w", err)
		}
		total += len(batch)
		log.Printf("upserted batch of %d issues (total %d)", len(batch), total)
	}
	return total, nil
}

// issueMatch decodes a $vectorSearch result row: the metadata fields sit at
// the top level of the document next to the injected score.
type issueMatch struct {
	ID       string               `bson:"_id"`
	Score    float64              `bson:"score"`
	Metadata models.IssueMetadata `bson:",inline"`
}

// Query performs a K-NN search over issue embeddings with an optional
// metadata filter. Each match carries the index's native similarity score;
// callers re-rank, so the returned order carries no contract.
func (r *IssueMongo) Query(ctx context.Context, vector []float32, topK int, filter search.Predicate) ([]search.Match, error) {
	searchStage := bson.D{
		{Key: "index", Value: r.vectorIdx},
		{Key: "queryVector", Value: vector},
		{Key: "path", Value: "embedding"},
		{Key: "numCandidates", Value: topK * 10},
		{Key: "limit", Value: topK},
	}
	if len(filter) > 0 {
		searchStage = append(searchStage, bson.E{Key: "filter", Value: filter})
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: searchStage}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "embedding", Value: 0}, // omit heavy field
		}}},
	}

	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search aggregate: %w", err)
	}
	defer cur.Close(ctx)

	var rows []issueMatch
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode matches: %w", err)
	}

	matches := make([]search.Match, len(rows))
	for i, row := range rows {
		matches[i] = search.Match{ID: row.ID, Score: row.Score, Metadata: row.Metadata}
	}
	return matches, nil
}

// FindByID fetches a stored issue by its "{repo_full_name}#{number}" key.
func (r *IssueMongo) FindByID(ctx context.Context, id string) (models.IssueMetadata, error) {
	var row issueMatch
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.IssueMetadata{}, ErrNotFound
	}
	if err != nil {
		return models.IssueMetadata{}, fmt.Errorf("find issue %s: %w", id, err)
	}
	return row.Metadata, nil
}

// Delete removes a single issue from the index.
func (r *IssueMongo) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete issue %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll clears the index.
func (r *IssueMongo) DeleteAll(ctx context.Context) error {
	if _, err := r.col.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("delete all issues: %w", err)
	}
	return nil
}

// ListIDs returns the key of every stored issue.
func (r *IssueMongo) ListIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode ids: %w", err)
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}

// IndexStats summarises the vector index.
type IndexStats struct {
	TotalVectors int64 `json:"total_vectors"`
}

// Stats reports aggregate index statistics.
func (r *IssueMongo) Stats(ctx context.Context) (IndexStats, error) {
	n, err := r.col.EstimatedDocumentCount(ctx)
	if err != nil {
		return IndexStats{}, fmt.Errorf("count issues: %w", err)
	}
	return IndexStats{TotalVectors: n}, nil
}

// LastIngested returns the most recent index write time, or ok=false when
// the index is empty.
func (r *IssueMongo) LastIngested(ctx context.Context) (time.Time, bool, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "ingested_at", Value: -1}}).
		SetProjection(bson.M{"ingested_at": 1})

	var row struct {
		IngestedAt int64 `bson:"ingested_at"`
	}
	err := r.col.FindOne(ctx, bson.M{"ingested_at": bson.M{"$gt": 0}}, opts).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("find last ingested: %w", err)
	}
	return time.Unix(row.IngestedAt, 0).UTC(), true, nil
}
