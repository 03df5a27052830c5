package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrom(t *testing.T) {
	assert := assert.New(t)

	SetLanguage("en-US")
	defer SetLanguage()

	assert.Equal("line 7 bad", From("line %d %v", 7, "bad"))
	assert.Equal("plain", From("plain"))
}
