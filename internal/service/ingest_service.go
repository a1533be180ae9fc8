package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dhruv0206/opensource-issues-finder/internal/github"
	"github.com/dhruv0206/opensource-issues-finder/internal/models"
)

// Issue bodies are stored as bounded previews; full text lives on GitHub.
const (
	bodyPreviewLen        = 2000
	descriptionPreviewLen = 500
	embedBodyPreviewLen   = 1000
)

// Embedding requests are grouped into batches; embedWorkers bounds how many
// batches are in flight per repo.
const (
	embedWorkers   = 4
	embedBatchSize = 25
)

// Job lifecycle states. A job only ever moves forward.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// IngestJob is one ingestion run's status snapshot.
type IngestJob struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	Message       string     `json:"message"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	IssuesIndexed int        `json:"issues_indexed"`
}

// jobStore keeps ingestion runs keyed by job ID so status is queried per
// job rather than through process-wide mutable state.
type jobStore struct {
	mu   sync.RWMutex
	jobs map[string]IngestJob
}

func (s *jobStore) put(job IngestJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *jobStore) get(id string) (IngestJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok
}

// tryStart inserts the job unless another run is active. Check and insert
// share one critical section so concurrent starts cannot both pass the guard.
func (s *jobStore) tryStart(job IngestJob) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.Status == JobRunning {
			return false
		}
	}
	s.jobs[job.ID] = job
	return true
}

// IssueIndex is the slice of the index store ingestion writes to.
type IssueIndex interface {
	UpsertIssues(ctx context.Context, issues []models.IssueVector) (int, error)
}

// IngestOptions tunes a single ingestion run.
type IngestOptions struct {
	Languages        []string `json:"languages,omitempty"`
	ReposPerLanguage int      `json:"repos_per_language"`
	MaxIssuesPerRepo int      `json:"max_issues_per_repo"`
}

// IngestService pulls contribution-friendly issues from GitHub, embeds
// them, and upserts them into the vector index.
type IngestService struct {
	github   *github.Client
	embedder EmbeddingClient
	index    IssueIndex

	languages          []string
	contributionLabels []string
	embedDim           int
	jobs               jobStore
}

// NewIngestService wires the collaborators. defaultLanguages,
// contributionLabels and embeddingDim come from configuration; embeddingDim 0
// disables the dimension check.
func NewIngestService(gh *github.Client, embedder EmbeddingClient, index IssueIndex, defaultLanguages, contributionLabels []string, embeddingDim int) *IngestService {
	return &IngestService{
		github:             gh,
		embedder:           embedder,
		index:              index,
		languages:          defaultLanguages,
		contributionLabels: contributionLabels,
		embedDim:           embeddingDim,
		jobs:               jobStore{jobs: make(map[string]IngestJob)},
	}
}

// ErrIngestRunning rejects overlapping runs; ingestion is not reentrant.
var ErrIngestRunning = fmt.Errorf("ingestion already in progress")

// Start launches an ingestion run in the background and returns its job
// handle immediately. Only one run may be active at a time.
func (s *IngestService) Start(opts IngestOptions) (IngestJob, error) {
	if len(opts.Languages) == 0 {
		opts.Languages = s.languages
	}
	if opts.ReposPerLanguage <= 0 {
		opts.ReposPerLanguage = 10
	}
	if opts.MaxIssuesPerRepo <= 0 {
		opts.MaxIssuesPerRepo = 20
	}

	job := IngestJob{
		ID:        uuid.NewString(),
		Status:    JobRunning,
		Message:   fmt.Sprintf("ingestion started for languages: %s", strings.Join(opts.Languages, ", ")),
		StartedAt: time.Now().UTC(),
	}
	if !s.jobs.tryStart(job) {
		return IngestJob{}, ErrIngestRunning
	}

	go s.run(job, opts)

	return job, nil
}

// Status returns the snapshot of a previously started job.
func (s *IngestService) Status(id string) (IngestJob, bool) {
	return s.jobs.get(id)
}

func (s *IngestService) run(job IngestJob, opts IngestOptions) {
	// The run outlives the HTTP request that started it, so it carries its
	// own deadline rather than the request's.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	total := 0
	for _, lang := range opts.Languages {
		job.Message = fmt.Sprintf("fetching %s repositories", lang)
		s.jobs.put(job)

		repos, err := s.github.SearchRepositories(ctx, lang, 100, opts.ReposPerLanguage, 1)
		if err != nil {
			s.fail(job, fmt.Errorf("search %s repositories: %w", lang, err))
			return
		}

		for _, repo := range repos {
			job.Message = fmt.Sprintf("processing %s", repo.FullName)
			s.jobs.put(job)

			n, err := s.ingestRepo(ctx, repo, opts.MaxIssuesPerRepo)
			if err != nil {
				s.fail(job, fmt.Errorf("ingest %s: %w", repo.FullName, err))
				return
			}
			total += n
			job.IssuesIndexed = total
		}
	}

	now := time.Now().UTC()
	job.Status = JobCompleted
	job.Message = fmt.Sprintf("completed: ingested %d issues", total)
	job.IssuesIndexed = total
	job.FinishedAt = &now
	s.jobs.put(job)
	log.Printf("ingestion %s completed with %d issues", job.ID, total)
}

func (s *IngestService) fail(job IngestJob, err error) {
	now := time.Now().UTC()
	job.Status = JobFailed
	job.Message = err.Error()
	job.FinishedAt = &now
	s.jobs.put(job)
	log.Printf("ingestion %s failed: %v", job.ID, err)
}

// ingestRepo fetches a repo's recently active contribution issues, embeds
// them concurrently, and upserts the batch.
func (s *IngestService) ingestRepo(ctx context.Context, repo github.Repository, maxIssues int) (int, error) {
	since := time.Now().AddDate(0, 0, -90)
	issues, err := s.github.ListRepoIssues(ctx, repo.Owner.Login, repo.Name, "open", since, 100)
	if err != nil {
		return 0, fmt.Errorf("list issues: %w", err)
	}

	var metas []models.IssueMetadata
	for _, issue := range issues {
		if issue.PullRequest != nil {
			continue // PRs share the issues API
		}
		if !s.hasContributionLabel(issue.Labels) {
			continue
		}
		metas = append(metas, issueToMetadata(issue, repo))
		if len(metas) >= maxIssues {
			break
		}
	}
	if len(metas) == 0 {
		return 0, nil
	}

	texts := make([]string, len(metas))
	for i, m := range metas {
		texts[i] = issueEmbeddingText(m)
	}

	vectors := make([]models.IssueVector, len(metas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedWorkers)
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := s.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch for %s: %w", repo.FullName, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed batch for %s: got %d vectors for %d texts", repo.FullName, len(vecs), end-start)
			}
			for i, vec := range vecs {
				m := metas[start+i]
				if err := validateDimension(vec, s.embedDim); err != nil {
					return fmt.Errorf("embed issue %s#%d: %w", m.RepoFullName, m.IssueNumber, err)
				}
				vectors[start+i] = models.IssueVector{
					ID:        models.VectorID(m.RepoFullName, m.IssueNumber),
					Embedding: vec,
					Metadata:  m,
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	n, err := s.index.UpsertIssues(ctx, vectors)
	if err != nil {
		return 0, fmt.Errorf("upsert issues: %w", err)
	}
	log.Printf("ingested %d issues from %s", n, repo.FullName)
	return n, nil
}

func (s *IngestService) hasContributionLabel(labels []github.Label) bool {
	for _, l := range labels {
		for _, want := range s.contributionLabels {
			if strings.EqualFold(l.Name, want) {
				return true
			}
		}
	}
	return false
}

// issueToMetadata converts a GitHub issue plus its repo into the index's
// metadata document.
func issueToMetadata(issue github.Issue, repo github.Repository) models.IssueMetadata {
	labels := make([]string, len(issue.Labels))
	for i, l := range issue.Labels {
		labels[i] = l.Name
	}

	assignees := make([]string, len(issue.Assignees))
	for i, a := range issue.Assignees {
		assignees[i] = a.Login
	}

	license := ""
	if repo.License != nil {
		license = repo.License.Name
	}

	m := models.IssueMetadata{
		IssueID:       issue.ID,
		IssueNumber:   issue.Number,
		Title:         issue.Title,
		Body:          truncate(issue.Body, bodyPreviewLen),
		Labels:        labels,
		CreatedAt:     issue.CreatedAt,
		UpdatedAt:     issue.UpdatedAt,
		CommentsCount: issue.Comments,
		IssueURL:      issue.HTMLURL,
		State:         issue.State,

		IsAssigned:     len(assignees) > 0,
		AssigneesCount: len(assignees),
		Assignees:      assignees,

		RepoName:     repo.Name,
		RepoFullName: repo.FullName,
		RepoStars:    repo.StargazersCount,
		RepoForks:    repo.ForksCount,
		RepoURL:      repo.HTMLURL,
		Language:     repo.Language,

		RepoDescription:     truncate(repo.Description, descriptionPreviewLen),
		RepoTopics:          repo.Topics,
		RepoLicense:         license,
		RepoOpenIssuesCount: repo.OpenIssuesCount,

		IsGoodFirstIssue: containsFold(labels, "good first issue"),
		IsHelpWanted:     containsFold(labels, "help wanted"),
	}
	m.Normalize()
	return m
}

// issueEmbeddingText builds the document the embedder sees for an issue.
func issueEmbeddingText(m models.IssueMetadata) string {
	parts := []string{
		"Repository: " + m.RepoFullName,
		"Language: " + orUnknown(m.Language),
		fmt.Sprintf("Stars: %d", m.RepoStars),
		"Title: " + m.Title,
	}
	if len(m.Labels) > 0 {
		parts = append(parts, "Labels: "+strings.Join(m.Labels, ", "))
	}
	if m.Body != "" {
		parts = append(parts, "Description: "+truncate(m.Body, embedBodyPreviewLen))
	}
	return strings.Join(parts, "\n")
}

// validateDimension rejects vectors whose width does not match the index. A
// wrong-width vector usually means a swapped embedding model and would poison
// every query against the collection.
func validateDimension(vec []float32, want int) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("embedding has %d dimensions, index expects %d", len(vec), want)
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}

// truncate cuts s to at most n bytes, stepping back to a rune boundary so a
// preview can never hold invalid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
