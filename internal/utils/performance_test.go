package utils

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestTimer_StopLogsOperation(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	timer := NewTimer("monte_carlo_run", log)
	duration := timer.Stop()

	assert.GreaterOrEqual(t, int64(duration), int64(0))
	assert.Contains(t, buf.String(), "monte_carlo_run")
	assert.Contains(t, buf.String(), "Performance measurement")
}

func TestOperationTimer(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	func() {
		defer OperationTimer("import_csv", log)()
	}()

	assert.Contains(t, buf.String(), "import_csv")
}
