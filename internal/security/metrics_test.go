package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetricsLabels_Empty(t *testing.T) {
	labels, err := ParseMetricsLabels("")
	require.NoError(t, err)
	assert.Nil(t, labels)
}

func TestParseMetricsLabels_Pairs(t *testing.T) {
	labels, err := ParseMetricsLabels("service=chat-service,env=dev")
	require.NoError(t, err)
	assert.Equal(t, "chat-service", labels["service"])
	assert.Equal(t, "dev", labels["env"])
}

func TestParseMetricsLabels_EnvExpansion(t *testing.T) {
	t.Setenv("CHAT_TEST_REGION", "eu-west-1")
	labels, err := ParseMetricsLabels("region=${CHAT_TEST_REGION}")
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", labels["region"])
}

func TestParseMetricsLabels_Invalid(t *testing.T) {
	_, err := ParseMetricsLabels("noequals")
	require.Error(t, err)

	_, err = ParseMetricsLabels("9bad=value")
	require.Error(t, err)
}
