package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobState_Terminal(t *testing.T) {
	assert.True(t, JobStateProcessed.Terminal())
	assert.True(t, JobStateFailed.Terminal())
	assert.False(t, JobStateNotUploaded.Terminal())
	assert.False(t, JobStateProcessing.Terminal())
}

func TestJobState_FailedReachableFromEveryNonTerminal(t *testing.T) {
	for state := range validTransitions {
		if state.Terminal() {
			continue
		}
		assert.True(t, state.CanTransition(JobStateFailed), "con_error unreachable from %s", state)
	}
}

func TestJobState_ProcessedOnlyFromProcessing(t *testing.T) {
	for state := range validTransitions {
		if state == JobStateProcessing || state == JobStateProcessed {
			continue
		}
		assert.False(t, state.CanTransition(JobStateProcessed), "procesado reachable from %s", state)
	}
	assert.True(t, JobStateProcessing.CanTransition(JobStateProcessed))
}

func TestJobState_TerminalStatesHaveNoOutgoing(t *testing.T) {
	assert.Empty(t, validTransitions[JobStateProcessed])
	assert.Empty(t, validTransitions[JobStateFailed])
}

func TestJobState_SelfTransitionAllowed(t *testing.T) {
	assert.True(t, JobStatePending.CanTransition(JobStatePending))
}

func TestParseDocumentType(t *testing.T) {
	dt, ok := ParseDocumentType("novedades")
	assert.True(t, ok)
	assert.Equal(t, DocTypeNovedades, dt)

	_, ok = ParseDocumentType("desconocido")
	assert.False(t, ok)
}
