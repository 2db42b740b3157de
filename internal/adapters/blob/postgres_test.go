package blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLikePrefix(t *testing.T) {
	assert.Equal(t, "scheduler-data%", likePrefix("scheduler-data"))
	assert.Equal(t, `a\_b\%c\\%`, likePrefix(`a_b%c\`))
	assert.Equal(t, "%", likePrefix(""))
}
