package uid

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	id := New()
	assert.True(t, IsValid(id))
	assert.NotEqual(t, id, New())
	assert.False(t, IsValid("not-a-uuid"))
}

func TestOrderID(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	id := OrderID(now)

	assert.Regexp(t, regexp.MustCompile(`^ORD20240309140507[0-9A-F]{4}$`), id)
}
