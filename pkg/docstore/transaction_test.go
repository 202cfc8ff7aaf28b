package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtractDeletedAt_Absent(t *testing.T) {
	assert.Nil(t, extractDeletedAt(Document{}))
}

func TestExtractDeletedAt_NilValue(t *testing.T) {
	assert.Nil(t, extractDeletedAt(Document{"deletedAt": nil}))
}

func TestExtractDeletedAt_TimeValue(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got := extractDeletedAt(Document{"deletedAt": ts})
	require := assert.New(t)
	require.NotNil(got)
	require.Equal(ts, *got)
}

func TestCloneDocument_IsIndependentCopy(t *testing.T) {
	orig := Document{"a": 1}
	clone := cloneDocument(orig)
	clone["a"] = 2

	assert.Equal(t, 1, orig["a"])
	assert.Equal(t, 2, clone["a"])
}

func TestCollection_ShadowPath_RewritesLeafOnly(t *testing.T) {
	c := Collection{Path: "organizations/org1/accounts"}
	assert.Equal(t, "organizations/org1/accounts$deleted", c.shadowPath())
}

func TestSoftDelete_TTLField_DefaultsWhenEmpty(t *testing.T) {
	sd := &SoftDelete{}
	assert.Equal(t, DefaultTTLField, sd.ttlField())
}

func TestSoftDelete_TTLField_Override(t *testing.T) {
	sd := &SoftDelete{TTLField: "expireAt"}
	assert.Equal(t, "expireAt", sd.ttlField())
}
