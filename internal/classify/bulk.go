package classify

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/cierreops/cierre-cli/internal/model"
	"github.com/cierreops/cierre-cli/pkg/cierre"
)

// RecordWriter is the slice of the backend client the bulk engine needs.
type RecordWriter interface {
	UpsertRecord(ctx context.Context, accountCode string, payload cierre.RecordPayload) (*model.Record, error)
}

// MatchResult reports the outcome of a paste-matching pass. Unmatched
// lines are always returned to the caller, never silently dropped.
type MatchResult struct {
	Matched   []string
	Unmatched []string
}

// RecordError is one failed update within a bulk apply.
type RecordError struct {
	AccountCode string `json:"account_code"`
	Message     string `json:"message"`
}

// ApplySummary aggregates per-record outcomes of one bulk apply. Errors
// follow selection iteration order (the order codes entered the
// selection), which is stable but not necessarily the visible list order.
type ApplySummary struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Errors    []RecordError `json:"errors,omitempty"`
}

// FullSuccess reports whether every selected record was updated.
func (s ApplySummary) FullSuccess() bool {
	return s.Failed == 0
}

// BulkEngine manages the transient selection of records targeted by a
// bulk classification. Two feeding modes, paste matching and manual
// toggling, union into the same selection.
type BulkEngine struct {
	order    []string
	selected map[string]struct{}
	log      *zap.Logger
}

// NewBulk creates an empty selection.
func NewBulk() *BulkEngine {
	return &BulkEngine{
		selected: make(map[string]struct{}),
		log:      zap.L().With(zap.String("component", "classify.bulk")),
	}
}

// MatchPaste matches newline-separated account identifiers against the
// visible records. A line matches on exact code equality or case-
// insensitive substring containment in either direction. Matches join the
// selection; the discrepancy list carries every line that matched nothing.
func (b *BulkEngine) MatchPaste(input string, visible []model.Record) MatchResult {
	var result MatchResult
	for _, raw := range strings.Split(input, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		matched := false
		for _, r := range visible {
			if r.AccountCode == line ||
				foldContains(r.AccountCode, line) ||
				foldContains(line, r.AccountCode) {
				if b.add(r.AccountCode) {
					result.Matched = append(result.Matched, r.AccountCode)
				}
				matched = true
			}
		}
		if !matched {
			result.Unmatched = append(result.Unmatched, line)
		}
	}
	return result
}

// Toggle flips one record's membership and reports the new state.
func (b *BulkEngine) Toggle(accountCode string) bool {
	if _, ok := b.selected[accountCode]; ok {
		b.remove(accountCode)
		return false
	}
	b.add(accountCode)
	return true
}

// SelectAll adds every visible record to the selection.
func (b *BulkEngine) SelectAll(visible []model.Record) {
	for _, r := range visible {
		b.add(r.AccountCode)
	}
}

// Clear empties the selection.
func (b *BulkEngine) Clear() {
	b.order = nil
	b.selected = make(map[string]struct{})
}

// Selected returns the selection in insertion order.
func (b *BulkEngine) Selected() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Has reports membership.
func (b *BulkEngine) Has(accountCode string) bool {
	_, ok := b.selected[accountCode]
	return ok
}

// Count returns the selection size.
func (b *BulkEngine) Count() int {
	return len(b.order)
}

// ApplyRequest describes one bulk classification.
type ApplyRequest struct {
	Set    string
	Option string

	// Records is the collection the selection was built over, used to
	// resolve each selected code to its current classification state.
	Records []model.Record

	// Reload refreshes the record collection after the apply. Called on
	// partial failure too; its error is logged, never returned.
	Reload func(ctx context.Context) error
}

// Apply merges (Set → Option) into every selected record, one update per
// record, sequentially in selection order. Last write wins per set, so
// re-applying the same option is idempotent and still counts as a
// success. A record's failure never aborts the rest; there is no
// rollback. On full success the selection is cleared; on partial failure
// it is kept so the user can retry the failed remainder.
func (b *BulkEngine) Apply(ctx context.Context, writer RecordWriter, req ApplyRequest) ApplySummary {
	byCode := make(map[string]model.Record, len(req.Records))
	for _, r := range req.Records {
		byCode[r.AccountCode] = r
	}

	var summary ApplySummary
	for _, code := range b.order {
		record, ok := byCode[code]
		if !ok {
			summary.Failed++
			summary.Errors = append(summary.Errors, RecordError{
				AccountCode: code,
				Message:     "record no longer present in collection",
			})
			continue
		}

		classifications := record.CloneClassifications()
		classifications[req.Set] = req.Option

		_, err := writer.UpsertRecord(ctx, code, cierre.RecordPayload{
			Name:            record.Name,
			NameEN:          record.NameEN,
			Classifications: classifications,
		})
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, RecordError{
				AccountCode: code,
				Message:     err.Error(),
			})
			b.log.Warn("bulk update failed",
				zap.String("account_code", code),
				zap.String("set", req.Set),
				zap.Error(err),
			)
			continue
		}
		summary.Succeeded++
	}

	if req.Reload != nil {
		if err := req.Reload(ctx); err != nil {
			b.log.Warn("record reload after bulk apply failed", zap.Error(err))
		}
	}

	if summary.FullSuccess() {
		b.Clear()
	}
	return summary
}

func (b *BulkEngine) add(accountCode string) bool {
	if _, ok := b.selected[accountCode]; ok {
		return false
	}
	b.selected[accountCode] = struct{}{}
	b.order = append(b.order, accountCode)
	return true
}

func (b *BulkEngine) remove(accountCode string) {
	delete(b.selected, accountCode)
	for i, c := range b.order {
		if c == accountCode {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}
