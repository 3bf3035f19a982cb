package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/cierreops/cierre-cli/internal/model"
	"github.com/cierreops/cierre-cli/pkg/cierre"
)

// fakeClient implements cierre.Client with overridable behaviors.
type fakeClient struct {
	cierre.Client

	mu       sync.Mutex
	statuses []model.JobStatus
	statusAt int
	fetchErr error

	uploadResult *cierre.UploadResult
	uploadErr    error
	processErr   error
	deleteErr    error

	headers *model.HeaderSets
	records []model.Record

	uploads   int
	processes int
	deletes   int
}

func (f *fakeClient) UploadFile(context.Context, model.DocumentType, string) (*cierre.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.uploadResult, nil
}

func (f *fakeClient) GetJobStatus(context.Context, string) (*model.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	status := f.statuses[f.statusAt]
	if f.statusAt < len(f.statuses)-1 {
		f.statusAt++
	}
	return &status, nil
}

func (f *fakeClient) TriggerProcessing(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processes++
	return f.processErr
}

func (f *fakeClient) DeleteJob(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return f.deleteErr
}

func (f *fakeClient) GetHeaders(context.Context, string) (*model.HeaderSets, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers, nil
}

func (f *fakeClient) ListRecords(context.Context, string) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records, nil
}

// fakeStore records snapshot writes.
type fakeStore struct {
	mu      sync.Mutex
	saved   []model.Job
	deleted []model.DocumentType
}

func (s *fakeStore) SaveJob(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, *job)
	return nil
}

func (s *fakeStore) DeleteJob(_ context.Context, docType model.DocumentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, docType)
	return nil
}

func (s *fakeStore) savedStates() []model.JobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.JobState, len(s.saved))
	for i, j := range s.saved {
		out[i] = j.State
	}
	return out
}

// writeUpload creates a workbook named per the upload contract.
func writeUpload(t *testing.T, name string) string {
	t.Helper()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Hoja1")
	require.NoError(t, err)
	row := sheet.AddRow()
	for _, h := range []string{"Rut", "Nombre", "Sueldo Base"} {
		row.AddCell().SetString(h)
	}

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.Save(path))
	return path
}

func fastConfig(docType model.DocumentType) TypeConfig {
	return TypeConfig{
		DocumentType: docType,
		PollInterval: 5 * time.Millisecond,
		FinalDelay:   time.Millisecond,
	}
}

func TestUpload_PollsToProcessedWithSideEffects(t *testing.T) {
	api := &fakeClient{
		uploadResult: &cierre.UploadResult{JobID: "j1", State: model.JobStatePending},
		statuses: []model.JobStatus{
			{State: model.JobStatePending},
			{State: model.JobStateAnalyzingHdrs},
			{State: model.JobStateHdrsAnalyzed},
			{State: model.JobStateProcessing},
			{State: model.JobStateProcessed, Counts: map[string]int{"filas": 12}},
		},
		headers: &model.HeaderSets{Unclassified: []string{"Sueldo Base"}},
		records: []model.Record{{AccountCode: "1101", Name: "Caja"}},
	}
	store := &fakeStore{}

	var (
		mu          sync.Mutex
		gotHeaders  *model.HeaderSets
		headerCalls int
		gotRecords  []model.Record
	)
	cfg := fastConfig(model.DocTypeIngresos)
	cfg.OnHeaders = func(_ context.Context, sets *model.HeaderSets) {
		mu.Lock()
		gotHeaders = sets
		headerCalls++
		mu.Unlock()
	}
	cfg.OnRecords = func(_ context.Context, records []model.Record) {
		mu.Lock()
		gotRecords = records
		mu.Unlock()
	}

	tracker := NewTracker(api, store, "client-1", cfg)
	path := writeUpload(t, "202501_ingresos_76123456-0.xlsx")

	job, err := tracker.Upload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, model.JobStatePending, job.State)
	assert.Equal(t, "202501_ingresos_76123456-0.xlsx", job.FileLabel)

	select {
	case <-tracker.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not finish")
	}

	final := tracker.Job()
	require.NotNil(t, final)
	assert.Equal(t, model.JobStateProcessed, final.State)
	assert.Equal(t, 12, final.Counts["filas"])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, headerCalls, "header fetch fires once, on state entry")
	require.NotNil(t, gotHeaders)
	assert.Equal(t, []string{"Sueldo Base"}, gotHeaders.Unclassified)
	require.Len(t, gotRecords, 1)
	assert.Equal(t, "1101", gotRecords[0].AccountCode)

	// Every observed state landed in the local store, in order.
	states := store.savedStates()
	assert.Equal(t, model.JobStatePending, states[0])
	assert.Equal(t, model.JobStateProcessed, states[len(states)-1])
}

func TestUpload_WrongDocumentTypeIsLocalError(t *testing.T) {
	api := &fakeClient{}
	tracker := NewTracker(api, &fakeStore{}, "client-1", fastConfig(model.DocTypeFiniquitos))

	path := writeUpload(t, "202501_ingresos_76123456-0.xlsx")
	_, err := tracker.Upload(context.Background(), path)

	require.Error(t, err)
	assert.Zero(t, api.uploads, "validation failures never reach the network")
	assert.Nil(t, tracker.Job())
}

func TestUpload_BlankHeaderRowIsLocalError(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Hoja1")
	require.NoError(t, err)
	sheet.AddRow()
	path := filepath.Join(t.TempDir(), "202501_ingresos_76123456-0.xlsx")
	require.NoError(t, f.Save(path))
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)

	api := &fakeClient{}
	tracker := NewTracker(api, &fakeStore{}, "client-1", fastConfig(model.DocTypeIngresos))

	_, err = tracker.Upload(context.Background(), path)
	require.Error(t, err)
	assert.Zero(t, api.uploads)
}

func TestUpload_RejectionLeavesNoJob(t *testing.T) {
	api := &fakeClient{uploadErr: cierre.ErrRejected}
	store := &fakeStore{}
	tracker := NewTracker(api, store, "client-1", fastConfig(model.DocTypeIngresos))

	path := writeUpload(t, "202501_ingresos_76123456-0.xlsx")
	_, err := tracker.Upload(context.Background(), path)

	require.ErrorIs(t, err, cierre.ErrRejected)
	assert.Nil(t, tracker.Job())
	assert.Empty(t, store.savedStates())
}

func TestPolling_ServerFailureIsTerminalAndVerbatim(t *testing.T) {
	detail := "fila 3: RUT inválido"
	api := &fakeClient{
		statuses: []model.JobStatus{
			{State: model.JobStateAnalyzingHdrs},
			{State: model.JobStateFailed, ErrorDetail: detail},
		},
	}

	var (
		mu     sync.Mutex
		failed *model.Job
	)
	cfg := fastConfig(model.DocTypeNovedades)
	cfg.OnFailure = func(job *model.Job) {
		mu.Lock()
		failed = job
		mu.Unlock()
	}

	tracker := NewTracker(api, &fakeStore{}, "client-1", cfg)
	tracker.Resume(context.Background(), &model.Job{
		ID: "j2", DocumentType: model.DocTypeNovedades, State: model.JobStateAnalyzingHdrs,
	})

	select {
	case <-tracker.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, failed)
	assert.Equal(t, detail, failed.ErrorDetail, "server message kept verbatim")
	assert.Equal(t, model.JobStateFailed, tracker.Job().State)
	assert.False(t, tracker.Halted(), "a server-reported failure is not a poll halt")
}

func TestPolling_HaltsAfterFailureBudget(t *testing.T) {
	api := &fakeClient{fetchErr: errors.New("gateway timeout")}
	tracker := NewTracker(api, &fakeStore{}, "client-1", fastConfig(model.DocTypeIngresos))

	tracker.Resume(context.Background(), &model.Job{
		ID: "j3", DocumentType: model.DocTypeIngresos, State: model.JobStateProcessing,
	})

	select {
	case <-tracker.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not finish")
	}

	assert.True(t, tracker.Halted())
	// The last known state survives the halt.
	assert.Equal(t, model.JobStateProcessing, tracker.Job().State)
}

func TestResume_TerminalJobDoesNotPoll(t *testing.T) {
	api := &fakeClient{}
	tracker := NewTracker(api, &fakeStore{}, "client-1", fastConfig(model.DocTypeIngresos))

	tracker.Resume(context.Background(), &model.Job{
		ID: "j4", DocumentType: model.DocTypeIngresos, State: model.JobStateProcessed,
	})

	assert.Nil(t, tracker.Done())
	assert.Equal(t, model.JobStateProcessed, tracker.Job().State)
}

func TestProcess_OptimisticTransition(t *testing.T) {
	api := &fakeClient{
		statuses: []model.JobStatus{{State: model.JobStateProcessed}},
	}
	store := &fakeStore{}
	tracker := NewTracker(api, store, "client-1", fastConfig(model.DocTypeIngresos))

	tracker.mu.Lock()
	tracker.job = &model.Job{ID: "j5", DocumentType: model.DocTypeIngresos, State: model.JobStateClassified}
	tracker.mu.Unlock()

	require.NoError(t, tracker.Process(context.Background()))
	assert.Equal(t, 1, api.processes)

	select {
	case <-tracker.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not finish")
	}
	assert.Equal(t, model.JobStateProcessed, tracker.Job().State)

	// The optimistic processing state was cached before the first poll.
	states := store.savedStates()
	require.NotEmpty(t, states)
	assert.Equal(t, model.JobStateProcessing, states[0])
}

func TestProcess_RejectionMutatesNothing(t *testing.T) {
	api := &fakeClient{processErr: errors.New("faltan encabezados por clasificar")}
	store := &fakeStore{}
	tracker := NewTracker(api, store, "client-1", fastConfig(model.DocTypeIngresos))

	tracker.mu.Lock()
	tracker.job = &model.Job{ID: "j6", DocumentType: model.DocTypeIngresos, State: model.JobStateClassified}
	tracker.mu.Unlock()

	err := tracker.Process(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.JobStateClassified, tracker.Job().State)
	assert.Empty(t, store.savedStates())
}

func TestProcess_InvalidFromState(t *testing.T) {
	api := &fakeClient{}
	tracker := NewTracker(api, &fakeStore{}, "client-1", fastConfig(model.DocTypeIngresos))

	tracker.mu.Lock()
	tracker.job = &model.Job{ID: "j7", DocumentType: model.DocTypeIngresos, State: model.JobStatePending}
	tracker.mu.Unlock()

	require.Error(t, tracker.Process(context.Background()))
	assert.Zero(t, api.processes)
}

func TestDelete_StopsPollingAndDropsSnapshot(t *testing.T) {
	api := &fakeClient{
		statuses: []model.JobStatus{{State: model.JobStateAnalyzingHdrs}},
	}
	store := &fakeStore{}
	tracker := NewTracker(api, store, "client-1", fastConfig(model.DocTypeIngresos))

	tracker.Resume(context.Background(), &model.Job{
		ID: "j8", DocumentType: model.DocTypeIngresos, State: model.JobStateAnalyzingHdrs,
	})

	require.NoError(t, tracker.Delete(context.Background()))
	assert.Equal(t, 1, api.deletes)
	assert.Equal(t, []model.DocumentType{model.DocTypeIngresos}, store.deleted)
	assert.Nil(t, tracker.Job())
}

func TestStop_IsSynchronousAndRetainsSnapshot(t *testing.T) {
	api := &fakeClient{
		statuses: []model.JobStatus{{State: model.JobStateAnalyzingHdrs}},
	}
	tracker := NewTracker(api, &fakeStore{}, "client-1", fastConfig(model.DocTypeIngresos))

	tracker.Resume(context.Background(), &model.Job{
		ID: "j9", DocumentType: model.DocTypeIngresos, State: model.JobStateAnalyzingHdrs,
	})
	tracker.Stop()

	select {
	case <-tracker.Done():
	default:
		t.Fatal("Stop returned before the loop exited")
	}
	assert.Equal(t, model.JobStateAnalyzingHdrs, tracker.Job().State)
}
