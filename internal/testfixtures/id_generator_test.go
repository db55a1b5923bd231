package testfixtures

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("meeting")

	assert.Equal(t, "meeting-0001", gen.Next())
	assert.Equal(t, "meeting-0002", gen.Next())
}

func TestIDGeneratorReset(t *testing.T) {
	gen := NewIDGenerator("")
	_ = gen.Next()
	gen.Reset()

	assert.Equal(t, "id-0001", gen.Next())
}

func TestNilIDGeneratorFuncReturnsEmpty(t *testing.T) {
	var gen *IDGenerator
	assert.Equal(t, "", gen.NextFunc()())
}
