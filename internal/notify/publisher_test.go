package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisherRequiresURL(t *testing.T) {
	pub, err := NewPublisher("", "releases.events")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "URL")
	assert.Nil(t, pub)
}

func TestNewPublisherRequiresSubject(t *testing.T) {
	pub, err := NewPublisher("nats://localhost:4222", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subject")
	assert.Nil(t, pub)
}
