package natslog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentfabric/agentfabric/bus"
)

var _ bus.Sink = (*Sink)(nil)

func TestWithSubjectPrefix(t *testing.T) {
	s := New(nil, WithSubjectPrefix("fabric.dev"))
	assert.Equal(t, "fabric.dev", s.prefix)
}
