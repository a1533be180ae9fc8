package service

import (
	"context"
	"fmt"
	"os"
	"time"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"
)

// Embedding task types understood by the Vertex text-embedding models.
const (
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// Transient prediction failures are retried with exponential backoff; the
// provider is rate-limited and occasionally sheds load.
const (
	embedAttempts  = 3
	embedBaseDelay = 2 * time.Second
	embedMaxDelay  = 30 * time.Second
)

// VertexEmbedder generates 768-dimensional embeddings with Google's
// text-embedding-004 model.
type VertexEmbedder struct {
	client    *aiplatform.PredictionClient
	modelName string
}

// NewVertexEmbedder creates the prediction client. Credentials come from
// GOOGLE_APPLICATION_CREDENTIALS when set, otherwise ambient ADC.
func NewVertexEmbedder(ctx context.Context, projectID, location string) (*VertexEmbedder, error) {
	if location == "" {
		location = "us-central1"
	}

	// Prediction requests must go to the regional endpoint.
	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", location)),
	}
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}

	client, err := aiplatform.NewPredictionClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}
	modelName := fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/text-embedding-004", projectID, location)

	return &VertexEmbedder{
		client:    client,
		modelName: modelName,
	}, nil
}

// EmbedQuery embeds search text with the query task type so it aligns with
// the stored document embeddings.
func (v *VertexEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := v.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds documents in a single prediction request.
func (v *VertexEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return v.embed(ctx, texts, taskRetrievalDocument)
}

func (v *VertexEmbedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	instances := make([]*structpb.Value, 0, len(texts))
	for _, text := range texts {
		instance, err := structpb.NewStruct(map[string]interface{}{
			"content":   text,
			"task_type": taskType,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create instance: %w", err)
		}
		instances = append(instances, structpb.NewStructValue(instance))
	}

	req := &aiplatformpb.PredictRequest{
		Endpoint:  v.modelName,
		Instances: instances,
	}

	resp, err := v.predictWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Predictions) < len(texts) {
		return nil, fmt.Errorf("expected %d predictions, got %d", len(texts), len(resp.Predictions))
	}

	out := make([][]float32, len(texts))
	for i := range texts {
		prediction := resp.Predictions[i].GetStructValue()
		embeddings := prediction.GetFields()["embeddings"].GetStructValue()
		values := embeddings.GetFields()["values"].GetListValue().GetValues()

		vec := make([]float32, len(values))
		for j, val := range values {
			vec[j] = float32(val.GetNumberValue())
		}
		out[i] = vec
	}
	return out, nil
}

func (v *VertexEmbedder) predictWithRetry(ctx context.Context, req *aiplatformpb.PredictRequest) (*aiplatformpb.PredictResponse, error) {
	delay := embedBaseDelay
	var lastErr error
	for attempt := 0; attempt < embedAttempts; attempt++ {
		resp, err := v.client.Predict(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == embedAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > embedMaxDelay {
			delay = embedMaxDelay
		}
	}
	return nil, fmt.Errorf("failed to get prediction: %w", lastErr)
}

// Close releases the Vertex AI client resources.
func (v *VertexEmbedder) Close() error {
	return v.client.Close()
}
