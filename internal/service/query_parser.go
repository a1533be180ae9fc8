package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"

	"github.com/dhruv0206/opensource-issues-finder/internal/models"
)

const parserPrompt = `You are a query parser for a GitHub Contribution Finder - a search system that helps developers find open source contribution opportunities including repositories, issues, and projects to contribute to.

Parse the user's natural language query into structured filters.

You must respond with a JSON object containing these fields:
- semantic_query: string - The main search terms for semantic similarity (what the user is looking for)
- language: string or null - Programming language filter (Python, JavaScript, TypeScript, Go, Rust, Java, C++, etc.)
- min_stars: integer or null - Minimum repository stars (e.g., "popular" = 1000, "very popular" = 5000, "trending" = 500)
- max_stars: integer or null - Maximum repository stars (rarely used)
- labels: array of strings or null - Issue labels to filter by (good first issue, help wanted, bug, documentation, enhancement, etc.)
- difficulty: "beginner", "intermediate", "advanced", or null
- sort_by: "stars", "recency", or "relevance" (default: relevance)
- days_ago: integer or null - Filter by recent activity within X days (e.g., "recent" = 7, "this week" = 7, "this month" = 30, "latest" = 3)
- unassigned_only: boolean - True if user wants only unassigned/unclaimed issues (default: false)
- topics: array of strings or null - GitHub repo topics/categories (e.g., "machine-learning", "web", "cli", "api", "blockchain")

User intent keywords to recognize:
- "recent", "latest", "new", "fresh" -> days_ago: 7
- "popular", "trending", "famous" -> min_stars: 1000+
- "beginner", "easy", "starter", "first contribution" -> difficulty: beginner, labels: ["good first issue"]
- "unassigned", "unclaimed", "nobody working on" -> unassigned_only: true
- "help wanted", "needs help" -> labels: ["help wanted"]

Examples:
User: "beginner-friendly issues in popular Python repos"
Response: {"semantic_query": "beginner friendly contributions", "language": "Python", "min_stars": 1000, "labels": ["good first issue"], "difficulty": "beginner", "sort_by": "relevance", "days_ago": null, "unassigned_only": false, "topics": null}

User: "unassigned issues in machine learning projects"
Response: {"semantic_query": "machine learning AI", "language": null, "min_stars": null, "labels": null, "difficulty": null, "sort_by": "relevance", "days_ago": null, "unassigned_only": true, "topics": ["machine-learning", "deep-learning", "ai"]}

User: "recent repos needing contributors"
Response: {"semantic_query": "open source contributions", "language": null, "min_stars": null, "labels": ["help wanted"], "difficulty": null, "sort_by": "recency", "days_ago": 7, "unassigned_only": false, "topics": null}

User: "latest open beginner issues"
Response: {"semantic_query": "beginner contributions", "language": null, "min_stars": null, "labels": ["good first issue"], "difficulty": "beginner", "sort_by": "recency", "days_ago": 7, "unassigned_only": false, "topics": null}

User: "easy documentation issues nobody has claimed"
Response: {"semantic_query": "documentation docs", "language": null, "min_stars": null, "labels": ["documentation"], "difficulty": "beginner", "sort_by": "relevance", "days_ago": null, "unassigned_only": true, "topics": null}

User: "trending TypeScript projects"
Response: {"semantic_query": "TypeScript projects", "language": "TypeScript", "min_stars": 500, "labels": null, "difficulty": null, "sort_by": "stars", "days_ago": 30, "unassigned_only": false, "topics": null}

User: "CLI tools needing contributions"
Response: {"semantic_query": "CLI command line tool", "language": null, "min_stars": null, "labels": ["help wanted"], "difficulty": null, "sort_by": "relevance", "days_ago": null, "unassigned_only": false, "topics": ["cli", "command-line", "terminal"]}

Respond ONLY with valid JSON, no markdown or explanation.`

// GeminiQueryParser turns natural-language search text into structured
// filters using a Gemini model on Vertex AI. It never returns an error:
// any failure degrades to a filter-free query whose semantic text is the
// raw input, which the engine accepts as valid.
type GeminiQueryParser struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiQueryParser creates the Vertex AI client and configures the model
// for deterministic, bounded output.
func NewGeminiQueryParser(ctx context.Context, projectID, location string) (*GeminiQueryParser, error) {
	var opts []option.ClientOption
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}

	client, err := genai.NewClient(ctx, projectID, location, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	model := client.GenerativeModel("gemini-2.0-flash")
	model.SetTemperature(0)
	model.SetMaxOutputTokens(500)

	return &GeminiQueryParser{
		client: client,
		model:  model,
	}, nil
}

// Parse extracts structured filters from a free-text query.
func (p *GeminiQueryParser) Parse(ctx context.Context, query string) models.ParsedQuery {
	fallback := models.ParsedQuery{
		SemanticQuery: query,
		SortBy:        models.SortRelevance,
	}

	resp, err := p.model.GenerateContent(ctx, genai.Text(parserPrompt+"\n\nUser query: "+query))
	if err != nil {
		log.Printf("query parse failed, falling back to raw text: %v", err)
		return fallback
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		log.Printf("query parse returned no candidates, falling back to raw text")
		return fallback
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		log.Printf("query parse returned non-text part, falling back to raw text")
		return fallback
	}

	var parsed models.ParsedQuery
	if err := json.Unmarshal([]byte(stripCodeFence(string(text))), &parsed); err != nil {
		log.Printf("query parse returned malformed JSON, falling back to raw text: %v", err)
		return fallback
	}

	if parsed.SemanticQuery == "" {
		parsed.SemanticQuery = query
	}
	if parsed.SortBy == "" {
		parsed.SortBy = models.SortRelevance
	}
	return parsed
}

// stripCodeFence removes a surrounding markdown code block, which the model
// sometimes emits despite the prompt.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if parts := strings.SplitN(s, "```", 3); len(parts) >= 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
	}
	return strings.TrimSpace(s)
}

// Close releases the Vertex AI client.
func (p *GeminiQueryParser) Close() error {
	return p.client.Close()
}
