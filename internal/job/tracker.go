// Package job tracks one upload job per document type through the server
// pipeline. The backend is the single source of truth; the tracker mirrors
// it by polling, caches the last known snapshot locally, and runs side
// effects when the mirrored state advances.
package job

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cierreops/cierre-cli/internal/model"
	"github.com/cierreops/cierre-cli/internal/poller"
	"github.com/cierreops/cierre-cli/internal/resilience"
	"github.com/cierreops/cierre-cli/internal/upload"
	"github.com/cierreops/cierre-cli/pkg/cierre"
)

// Snapshots is the slice of the local store the tracker persists through.
type Snapshots interface {
	SaveJob(ctx context.Context, job *model.Job) error
	DeleteJob(ctx context.Context, docType model.DocumentType) error
}

// TypeConfig describes one trackable document type. Hooks are optional;
// they run inline on the poll goroutine, so consecutive polls never race
// a hook.
type TypeConfig struct {
	DocumentType model.DocumentType

	// PollInterval and FinalDelay override the poller defaults when set.
	PollInterval time.Duration
	FinalDelay   time.Duration

	// OnHeaders fires when the server finishes header analysis.
	OnHeaders func(ctx context.Context, sets *model.HeaderSets)
	// OnRecords fires with the reloaded account collection once the job
	// reaches its processed state.
	OnRecords func(ctx context.Context, records []model.Record)
	// OnFailure fires when the server reports a terminal error. The
	// job snapshot carries the server's message verbatim.
	OnFailure func(job *model.Job)
}

// Tracker drives a single document type's job lifecycle: upload, poll,
// trigger processing, delete. One tracker per document type; trackers are
// independent of each other.
type Tracker struct {
	api      cierre.Client
	store    Snapshots
	cfg      TypeConfig
	clientID string
	log      *zap.Logger

	mu   sync.Mutex
	job  *model.Job
	poll *poller.Poller[*model.JobStatus]
}

// NewTracker creates a tracker for cfg's document type. clientID scopes
// the record reload that follows successful processing.
func NewTracker(api cierre.Client, store Snapshots, clientID string, cfg TypeConfig) *Tracker {
	return &Tracker{
		api:      api,
		store:    store,
		cfg:      cfg,
		clientID: clientID,
		log: zap.L().With(
			zap.String("component", "job.tracker"),
			zap.String("document_type", string(cfg.DocumentType)),
		),
	}
}

// Upload validates the file locally, submits it, caches the resulting job
// and starts polling under ctx. Validation failures and synchronous
// rejections leave no job behind. ctx bounds the whole poll loop, not just
// the upload request.
func (t *Tracker) Upload(ctx context.Context, path string) (*model.Job, error) {
	info, err := upload.ParseFilename(filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if info.DocumentType != t.cfg.DocumentType {
		return nil, eris.Errorf("job: file is for document type %q, tracker handles %q",
			info.DocumentType, t.cfg.DocumentType)
	}
	if _, err := upload.PreviewHeaders(path); err != nil {
		return nil, err
	}

	result, err := t.api.UploadFile(ctx, t.cfg.DocumentType, path)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:           result.JobID,
		DocumentType: t.cfg.DocumentType,
		State:        result.State,
		FileLabel:    filepath.Base(path),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	t.mu.Lock()
	t.job = job
	t.mu.Unlock()
	t.persist(ctx, job)

	if !job.State.Terminal() {
		t.startPolling(ctx)
	}
	return job.Clone(), nil
}

// Track caches a job snapshot without starting polling.
func (t *Tracker) Track(job *model.Job) {
	t.mu.Lock()
	t.job = job.Clone()
	t.mu.Unlock()
}

// Resume restores a cached job and, if it is still in flight, picks the
// poll loop back up under ctx.
func (t *Tracker) Resume(ctx context.Context, job *model.Job) {
	t.Track(job)
	if !job.State.Terminal() {
		t.startPolling(ctx)
	}
}

// Process asks the server to run final processing. On acceptance the
// cached state moves to the processing state optimistically; the next poll
// overwrites it with whatever the server says. A synchronous rejection
// mutates nothing.
func (t *Tracker) Process(ctx context.Context) error {
	t.mu.Lock()
	job := t.job
	t.mu.Unlock()
	if job == nil {
		return eris.New("job: nothing uploaded")
	}
	if !job.State.CanTransition(model.JobStateProcessing) {
		return eris.Errorf("job: cannot process from state %q", job.State)
	}

	if err := t.api.TriggerProcessing(ctx, job.ID); err != nil {
		return err
	}

	t.mu.Lock()
	t.job.State = model.JobStateProcessing
	t.job.UpdatedAt = time.Now().UTC()
	snapshot := t.job.Clone()
	t.mu.Unlock()
	t.persist(ctx, snapshot)

	t.startPolling(ctx)
	return nil
}

// Delete stops polling, deletes the job server-side and drops the local
// snapshot. The tracker is reusable afterwards.
func (t *Tracker) Delete(ctx context.Context) error {
	t.Stop()

	t.mu.Lock()
	job := t.job
	t.mu.Unlock()
	if job == nil {
		return eris.New("job: nothing to delete")
	}

	if err := t.api.DeleteJob(ctx, job.ID); err != nil {
		return err
	}
	if err := t.store.DeleteJob(ctx, t.cfg.DocumentType); err != nil {
		t.log.Warn("dropping local snapshot failed", zap.Error(err))
	}

	t.mu.Lock()
	t.job = nil
	t.poll = nil
	t.mu.Unlock()
	return nil
}

// Job returns a copy of the cached snapshot, or nil before any upload.
func (t *Tracker) Job() *model.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.Clone()
}

// Stop halts polling synchronously. The cached snapshot is retained.
func (t *Tracker) Stop() {
	t.mu.Lock()
	p := t.poll
	t.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}

// Done reports when the current poll loop has exited. Returns nil if no
// loop was ever started.
func (t *Tracker) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.poll == nil {
		return nil
	}
	return t.poll.Done()
}

// Halted reports whether polling stopped because the consecutive-failure
// budget ran out. Such a tracker keeps its last known snapshot and waits
// for an explicit Resume.
func (t *Tracker) Halted() bool {
	t.mu.Lock()
	p := t.poll
	t.mu.Unlock()
	if p == nil {
		return false
	}
	select {
	case <-p.Done():
		return p.Reason() == poller.StopBudgetExhausted
	default:
		return false
	}
}

func (t *Tracker) startPolling(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job == nil {
		return
	}
	if t.poll != nil {
		select {
		case <-t.poll.Done():
			// Previous loop finished; replace it.
		default:
			return
		}
	}

	jobID := t.job.ID
	p := poller.New(
		poller.Config{Interval: t.cfg.PollInterval, FinalDelay: t.cfg.FinalDelay},
		func(ctx context.Context) (*model.JobStatus, error) {
			return t.api.GetJobStatus(ctx, jobID)
		},
		func(status *model.JobStatus) bool {
			return !status.State.Terminal()
		},
		func(status *model.JobStatus) {
			t.applyStatus(ctx, status)
		},
	)
	t.poll = p
	p.Start(ctx)
}

// applyStatus merges one polled status into the cached snapshot and runs
// entry side effects when the state actually changed.
func (t *Tracker) applyStatus(ctx context.Context, status *model.JobStatus) {
	t.mu.Lock()
	if t.job == nil {
		t.mu.Unlock()
		return
	}
	prev := t.job.State
	t.job.State = status.State
	t.job.ErrorDetail = status.ErrorDetail
	if status.Counts != nil {
		t.job.Counts = status.Counts
	}
	t.job.UpdatedAt = time.Now().UTC()
	snapshot := t.job.Clone()
	t.mu.Unlock()

	t.persist(ctx, snapshot)
	if prev == status.State {
		return
	}

	t.log.Info("job state changed",
		zap.String("from", string(prev)),
		zap.String("to", string(status.State)),
	)

	switch status.State {
	case model.JobStateHdrsAnalyzed:
		t.fetchHeaders(ctx)
	case model.JobStateProcessed:
		t.reloadRecords(ctx)
	case model.JobStateFailed:
		t.log.Warn("server reported processing failure",
			zap.String("detail", snapshot.ErrorDetail))
		if t.cfg.OnFailure != nil {
			t.cfg.OnFailure(snapshot)
		}
	}
}

func (t *Tracker) fetchHeaders(ctx context.Context) {
	if t.cfg.OnHeaders == nil {
		return
	}
	t.mu.Lock()
	jobID := t.job.ID
	t.mu.Unlock()

	sets, err := t.api.GetHeaders(ctx, jobID)
	if err != nil {
		t.log.Warn("header fetch failed", zap.Error(err))
		return
	}
	t.cfg.OnHeaders(ctx, sets)
}

// reloadRecords refreshes the derived account collection. The read is
// retried on transient trouble; it is a pure read, so retrying is safe.
func (t *Tracker) reloadRecords(ctx context.Context) {
	if t.cfg.OnRecords == nil {
		return
	}
	records, err := resilience.DoVal(ctx, resilience.RetryConfig{
		ShouldRetry: resilience.IsTransient,
		OnRetry:     resilience.RetryLogger("reload records"),
	}, func(ctx context.Context) ([]model.Record, error) {
		return t.api.ListRecords(ctx, t.clientID)
	})
	if err != nil {
		t.log.Warn("record reload failed", zap.Error(err))
		return
	}
	t.cfg.OnRecords(ctx, records)
}

func (t *Tracker) persist(ctx context.Context, job *model.Job) {
	if t.store == nil {
		return
	}
	if err := t.store.SaveJob(ctx, job); err != nil {
		t.log.Warn("persisting job snapshot failed", zap.Error(err))
	}
}
