package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecord_Classified(t *testing.T) {
	assert.False(t, Record{AccountCode: "102"}.Classified())
	assert.False(t, Record{AccountCode: "102", Classifications: map[string]string{}}.Classified())
	assert.True(t, Record{AccountCode: "101", Classifications: map[string]string{"SetA": "X"}}.Classified())
}

func TestRecord_CloneClassifications(t *testing.T) {
	r := Record{Classifications: map[string]string{"SetA": "X"}}

	clone := r.CloneClassifications()
	clone["SetB"] = "Y"

	assert.Len(t, r.Classifications, 1)
	assert.Len(t, clone, 2)

	// Nil map clones to an empty, writable map.
	empty := Record{}.CloneClassifications()
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
