package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"landdev/internal/domain"
)

func TestDedupeKey(t *testing.T) {
	s := func(v string) *string { return &v }

	assert.Equal(t, domain.DedupeKey("Oakwood", s(" John Smith ")), domain.DedupeKey(" oakwood ", s("john\t  SMITH")))
	assert.NotEqual(t, domain.DedupeKey("Oakwood", s("John Smith")), domain.DedupeKey("Oakwood", nil))
	assert.Equal(t, domain.DedupeKey("Oakwood", nil), domain.DedupeKey("Oakwood", s("   ")))
	assert.NotEqual(t, domain.DedupeKey("Oak wood", nil), domain.DedupeKey("Oakwood", nil))
}
