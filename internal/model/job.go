package model

import "time"

// DocumentType identifies one of the spreadsheet kinds a payroll close accepts.
type DocumentType string

const (
	DocTypeDocumento     DocumentType = "tipoDocumento"
	DocTypeFiniquitos    DocumentType = "finiquitos"
	DocTypeIncidencias   DocumentType = "incidencias"
	DocTypeIngresos      DocumentType = "ingresos"
	DocTypeNovedades     DocumentType = "novedades"
	DocTypeGastosMasivos DocumentType = "gastosMasivos"
)

// AllDocumentTypes lists every document type in display order.
var AllDocumentTypes = []DocumentType{
	DocTypeDocumento,
	DocTypeFiniquitos,
	DocTypeIncidencias,
	DocTypeIngresos,
	DocTypeNovedades,
	DocTypeGastosMasivos,
}

// ParseDocumentType maps a wire value to a DocumentType.
func ParseDocumentType(s string) (DocumentType, bool) {
	for _, dt := range AllDocumentTypes {
		if string(dt) == s {
			return dt, true
		}
	}
	return "", false
}

// JobState represents the server-reported state of a processing job.
// The client never invents states; the one exception is the optimistic
// switch to JobStateProcessing right after triggering final processing,
// which the next poll overwrites.
type JobState string

const (
	JobStateNotUploaded     JobState = "no_subido"
	JobStatePending         JobState = "pendiente"
	JobStateAnalyzingHdrs   JobState = "analizando_hdrs"
	JobStateHdrsAnalyzed    JobState = "hdrs_analizados"
	JobStateClassifPending  JobState = "clasif_pendiente"
	JobStateClassified      JobState = "clasificado"
	JobStateProcessing      JobState = "procesando"
	JobStateProcessed       JobState = "procesado"
	JobStateFailed          JobState = "con_error"
)

// Terminal reports whether the job instance is finished for good.
// A new upload starts a new job.
func (s JobState) Terminal() bool {
	return s == JobStateProcessed || s == JobStateFailed
}

// validTransitions records the server pipeline's legal state changes.
// con_error is reachable from every non-terminal state; procesado only
// through procesando.
var validTransitions = map[JobState][]JobState{
	JobStateNotUploaded:    {JobStatePending, JobStateFailed},
	JobStatePending:        {JobStateAnalyzingHdrs, JobStateFailed},
	JobStateAnalyzingHdrs:  {JobStateHdrsAnalyzed, JobStateFailed},
	JobStateHdrsAnalyzed:   {JobStateClassifPending, JobStateClassified, JobStateFailed},
	JobStateClassifPending: {JobStateClassified, JobStateFailed},
	JobStateClassified:     {JobStateClassifPending, JobStateProcessing, JobStateFailed},
	JobStateProcessing:     {JobStateProcessed, JobStateFailed},
	JobStateProcessed:      {},
	JobStateFailed:         {},
}

// CanTransition reports whether the server may legally move a job from one
// state to another. Self-transitions are always allowed (a poll that
// observes no change).
func (s JobState) CanTransition(to JobState) bool {
	if s == to {
		return true
	}
	for _, next := range validTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Job is the client-side cache of one uploaded file's lifecycle. The
// authoritative record lives server-side; this snapshot holds the last
// state observed through polling.
type Job struct {
	ID           string         `json:"id"`
	DocumentType DocumentType   `json:"document_type"`
	State        JobState       `json:"state"`
	FileLabel    string         `json:"file_label"`
	ErrorDetail  string         `json:"error_detail,omitempty"`
	Counts       map[string]int `json:"counts,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// JobStatus is one polled observation of a job.
type JobStatus struct {
	State       JobState       `json:"state"`
	ErrorDetail string         `json:"error_detail,omitempty"`
	Counts      map[string]int `json:"counts,omitempty"`
}

// Clone returns a deep copy, or nil for a nil receiver.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.Counts != nil {
		out.Counts = make(map[string]int, len(j.Counts))
		for k, v := range j.Counts {
			out.Counts[k] = v
		}
	}
	return &out
}
