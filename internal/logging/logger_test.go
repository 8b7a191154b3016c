package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, New("debug", "text").GetLevel())
	assert.Equal(t, logrus.WarnLevel, New("warn", "text").GetLevel())
	assert.Equal(t, logrus.InfoLevel, New("chatty", "text").GetLevel())
}

func TestNewWithOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput(&buf, "info", "json")
	logger.WithField("epoch", 3).Info("Epoch completed")
	logger.Debug("dropped")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Epoch completed", entry["msg"])
	assert.Equal(t, float64(3), entry["epoch"])
	assert.NotContains(t, buf.String(), "dropped")
}

func TestNewWithOutputText(t *testing.T) {
	var buf bytes.Buffer
	NewWithOutput(&buf, "info", "text").Info("Starting training")
	assert.Contains(t, buf.String(), `msg="Starting training"`)
}
