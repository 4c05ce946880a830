package impl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/snipara/rlm/engine/tokens"
	"github.com/snipara/rlm/models"
)

const (
	// chunkTargetTokens is the window size for embedding chunks;
	// chunkOverlapTokens is carried between adjacent windows so boundary
	// sentences stay searchable.
	chunkTargetTokens  = 1000
	chunkOverlapTokens = 200

	embedBatchSize = 32
	workerPollEvery = 3 * time.Second
)

// IndexJobs enqueues and serves background chunk-and-embed jobs.
type IndexJobs struct {
	db *gorm.DB
}

func NewIndexJobs(db *gorm.DB) *IndexJobs {
	return &IndexJobs{db: db}
}

// Enqueue creates a job unless the project already has one pending, in
// which case that job is returned with alreadyExists set.
func (j *IndexJobs) Enqueue(ctx context.Context, projectID, mode string) (*models.IndexJob, bool, error) {
	pid, err := uuid.Parse(projectID)
	if err != nil {
		return nil, false, fmt.Errorf("invalid project id: %w", err)
	}
	if mode == "" {
		mode = "incremental"
	}

	var existing models.IndexJob
	err = j.db.WithContext(ctx).
		Where("project_id = ? AND status = ?", projectID, models.JobPending).
		First(&existing).Error
	if err == nil {
		return &existing, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to check pending jobs: %w", err)
	}

	job := models.IndexJob{ProjectID: pid, Mode: mode, Status: models.JobPending}
	if err := j.db.WithContext(ctx).Create(&job).Error; err != nil {
		return nil, false, fmt.Errorf("failed to enqueue index job: %w", err)
	}
	return &job, false, nil
}

func (j *IndexJobs) Get(ctx context.Context, projectID string, jobID uuid.UUID) (*models.IndexJob, error) {
	var job models.IndexJob
	err := j.db.WithContext(ctx).
		Where("id = ? AND project_id = ?", jobID, projectID).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("index job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load index job: %w", err)
	}
	return &job, nil
}

// IndexWorker drains the job queue: for each job it rebuilds the project's
// chunks and their embeddings.
type IndexWorker struct {
	db       *gorm.DB
	embedder Embedder
	workerID string
	log      *zap.Logger
}

func NewIndexWorker(db *gorm.DB, embedder Embedder, log *zap.Logger) *IndexWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &IndexWorker{
		db:       db,
		embedder: embedder,
		workerID: "worker-" + uuid.NewString()[:8],
		log:      log,
	}
}

// Run polls for pending jobs until the context is cancelled.
func (w *IndexWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(workerPollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, ok := w.claim(ctx)
			if !ok {
				continue
			}
			w.process(ctx, job)
		}
	}
}

// claim flips the oldest PENDING job to RUNNING. The conditional update
// keeps multiple workers from taking the same job.
func (w *IndexWorker) claim(ctx context.Context) (*models.IndexJob, bool) {
	var job models.IndexJob
	err := w.db.WithContext(ctx).
		Where("status = ?", models.JobPending).
		Order("created_at ASC").
		First(&job).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			w.log.Error("failed to poll index jobs", zap.Error(err))
		}
		return nil, false
	}

	now := time.Now()
	res := w.db.WithContext(ctx).Model(&models.IndexJob{}).
		Where("id = ? AND status = ?", job.ID, models.JobPending).
		Updates(map[string]interface{}{
			"status":     models.JobRunning,
			"worker_id":  w.workerID,
			"started_at": now,
		})
	if res.Error != nil || res.RowsAffected == 0 {
		return nil, false
	}
	job.Status = models.JobRunning
	job.WorkerID = w.workerID
	job.StartedAt = &now
	return &job, true
}

func (w *IndexWorker) process(ctx context.Context, job *models.IndexJob) {
	w.log.Info("index job started",
		zap.String("job_id", job.ID.String()),
		zap.String("project_id", job.ProjectID.String()),
		zap.String("mode", job.Mode))

	err := w.reindex(ctx, job)
	if err == nil {
		now := time.Now()
		w.db.WithContext(ctx).Model(job).Updates(map[string]interface{}{
			"status":       models.JobCompleted,
			"progress":     100,
			"completed_at": now,
			"error":        "",
		})
		w.log.Info("index job completed",
			zap.String("job_id", job.ID.String()),
			zap.Int("documents", job.DocumentsProcessed),
			zap.Int("chunks", job.ChunksCreated))
		return
	}

	w.log.Error("index job failed", zap.String("job_id", job.ID.String()), zap.Error(err))
	updates := map[string]interface{}{
		"error":       err.Error(),
		"retry_count": job.RetryCount + 1,
	}
	if job.RetryCount+1 >= job.MaxRetries {
		now := time.Now()
		updates["status"] = models.JobFailed
		updates["completed_at"] = now
	} else {
		// Back to the queue for another worker pass.
		updates["status"] = models.JobPending
		updates["worker_id"] = ""
	}
	w.db.WithContext(ctx).Model(job).Updates(updates)
}

func (w *IndexWorker) reindex(ctx context.Context, job *models.IndexJob) error {
	var docs []models.Document
	err := w.db.WithContext(ctx).
		Where("project_id = ?", job.ProjectID).
		Order("path ASC").
		Find(&docs).Error
	if err != nil {
		return fmt.Errorf("failed to load documents: %w", err)
	}

	// Full rebuild: drop the project's chunks, then chunk and embed each
	// document. Incremental mode skips documents that already have chunks.
	if job.Mode != "incremental" {
		err = w.db.WithContext(ctx).
			Where("project_id = ?", job.ProjectID).
			Delete(&models.DocumentChunk{}).Error
		if err != nil {
			return fmt.Errorf("failed to clear chunks: %w", err)
		}
	}

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if job.Mode == "incremental" {
			var n int64
			w.db.WithContext(ctx).Model(&models.DocumentChunk{}).
				Where("document_id = ?", doc.ID).Count(&n)
			if n > 0 {
				continue
			}
		}

		created, err := w.chunkDocument(ctx, &doc)
		if err != nil {
			return fmt.Errorf("document %s: %w", doc.Path, err)
		}

		job.DocumentsProcessed = i + 1
		job.ChunksCreated += created
		w.db.WithContext(ctx).Model(job).Updates(map[string]interface{}{
			"progress":            (i + 1) * 100 / max(len(docs), 1),
			"documents_processed": job.DocumentsProcessed,
			"chunks_created":      job.ChunksCreated,
		})
	}
	return nil
}

func (w *IndexWorker) chunkDocument(ctx context.Context, doc *models.Document) (int, error) {
	windows := chunkLines(doc.Content)
	if len(windows) == 0 {
		return 0, nil
	}

	created := 0
	for start := 0; start < len(windows); start += embedBatchSize {
		end := min(start+embedBatchSize, len(windows))
		batch := windows[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.content
		}
		vecs, err := w.embedder.CreateEmbedding(ctx, texts)
		if err != nil {
			return created, fmt.Errorf("failed to embed chunks: %w", err)
		}

		rows := make([]models.DocumentChunk, len(batch))
		for i, c := range batch {
			rows[i] = models.DocumentChunk{
				ProjectID:  doc.ProjectID,
				DocumentID: doc.ID,
				StartLine:  c.startLine,
				EndLine:    c.endLine,
				Content:    c.content,
				TokenCount: c.tokenCount,
				Embedding:  pgvector.NewVector(vecs[i]),
			}
		}
		if err := w.db.WithContext(ctx).Create(&rows).Error; err != nil {
			return created, fmt.Errorf("failed to store chunks: %w", err)
		}
		created += len(rows)
	}
	return created, nil
}

type chunkWindow struct {
	startLine  int
	endLine    int
	content    string
	tokenCount int
}

// chunkLines splits content into line-aligned windows of roughly
// chunkTargetTokens, each carrying chunkOverlapTokens from its
// predecessor. Line ranges are [start, end).
func chunkLines(content string) []chunkWindow {
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil
	}

	lineTokens := make([]int, len(lines))
	for i, line := range lines {
		lineTokens[i] = tokens.Estimate(line) + 1
	}

	var out []chunkWindow
	start := 0
	for start < len(lines) {
		total := 0
		end := start
		for end < len(lines) && (total == 0 || total+lineTokens[end] <= chunkTargetTokens) {
			total += lineTokens[end]
			end++
		}

		out = append(out, chunkWindow{
			startLine:  start,
			endLine:    end,
			content:    strings.Join(lines[start:end], "\n"),
			tokenCount: total,
		})
		if end >= len(lines) {
			break
		}

		// Back up to carry the overlap into the next window.
		overlap := 0
		next := end
		for next > start+1 && overlap < chunkOverlapTokens {
			next--
			overlap += lineTokens[next]
		}
		start = next
	}
	return out
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}
