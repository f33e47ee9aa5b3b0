package onion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// INNER STATUS CODE EXTRACTION
// ============================================================================

func TestInnerStatusCode_V4ExtractsArrayStatus(t *testing.T) {
	assert.Equal(t, 421, innerStatusCode([]byte(`[421, {"snodes":[]}]`), V4))
}

func TestInnerStatusCode_V4FallsBackOnMalformedFrame(t *testing.T) {
	assert.Equal(t, 200, innerStatusCode([]byte(`not json`), V4))
}

func TestInnerStatusCode_V3ExtractsInlineStatusField(t *testing.T) {
	assert.Equal(t, 406, innerStatusCode([]byte(`{"status":406,"t":123}`), V3))
}

func TestInnerStatusCode_V3DefaultsTo200WhenStatusAbsent(t *testing.T) {
	assert.Equal(t, 200, innerStatusCode([]byte(`{"t":123}`), V3))
}

func TestInnerStatusCode_V3DefaultsTo200OnMalformedBody(t *testing.T) {
	assert.Equal(t, 200, innerStatusCode([]byte(`not json`), V3))
}
