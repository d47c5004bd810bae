package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	binclfErrors "github.com/YuminosukeSato/binclf/pkg/errors"
)

func TestTestLoggerLevels(t *testing.T) {
	logger, buffer := NewTestLogger(LevelInfo)

	logger.Debug("hidden")
	logger.Info("fit started", OperationKey, OperationFit, SamplesKey, 100)
	logger.Warn("no convergence", IterationKey, 100)
	logger.Error("fit failed", "error", fmt.Errorf("singular matrix"))

	assert.NotEmpty(t, buffer.String())
	assert.False(t, logger.ContainsMessage("hidden"))
	assert.True(t, logger.ContainsField(OperationKey, OperationFit))
	assert.True(t, logger.ContainsField(SamplesKey, 100.0))
	assert.True(t, logger.ContainsField("error", "singular matrix"))

	ctx := context.Background()
	assert.True(t, logger.Enabled(ctx, LevelWarn))
	assert.False(t, logger.Enabled(ctx, LevelDebug))
}

func TestTestLoggerWith(t *testing.T) {
	logger, _ := NewTestLogger(LevelDebug)
	child := logger.With(ModelNameKey, "SVC", EstimatorIDKey, "svc-1")
	child.Debug("decision function", OperationKey, OperationDecisionFunction)

	entries, err := logger.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "SVC", entries[0][ModelNameKey])
	assert.Equal(t, "svc-1", entries[0][EstimatorIDKey])
	assert.Equal(t, "DEBUG", entries[0]["level"])
}

func TestTestLoggerConcurrent(t *testing.T) {
	logger, _ := NewTestLogger(LevelInfo)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				logger.Info("chain step", ChainKey, id, IterationKey, i)
			}
		}(g)
	}
	wg.Wait()

	entries, err := logger.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo)

	logger.Debug("dropped")
	logger.With(ModelNameKey, "LogisticGAM").Info("fit done", AccuracyKey, 0.95)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "fit done", entry["message"])
	assert.Equal(t, "LogisticGAM", entry[ModelNameKey])
	assert.Equal(t, 0.95, entry[AccuracyKey])

	assert.True(t, logger.Enabled(context.Background(), LevelError))
	assert.False(t, logger.Enabled(context.Background(), LevelDebug))
}

func TestProviderAndWarnings(t *testing.T) {
	var buf bytes.Buffer
	SetProvider(NewZerologProvider(&buf, LevelDebug))
	t.Cleanup(func() { SetProvider(NewZerologProvider(nopWriter{}, LevelWarn)) })

	GetLoggerWithName("svm").Debug("kernel matrix ready")
	assert.Contains(t, buf.String(), `"ml.component":"svm"`)

	binclfErrors.Warn(binclfErrors.NewConvergenceWarning("SMO", 50, "max_iter reached"))
	out := buf.String()
	assert.Contains(t, out, `"algorithm":"SMO"`)
	assert.Contains(t, out, `"type":"ConvergenceWarning"`)

	SetLevel(LevelError)
	buf.Reset()
	GetLogger().Info("quiet")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: "INFO", want: LevelInfo},
		{in: "warning", want: LevelWarn},
		{in: "error", want: LevelError},
		{in: "verbose", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func BenchmarkZerologLogger(b *testing.B) {
	logger := NewZerologLogger(nopWriter{}, LevelInfo).With(ModelNameKey, "SVC")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("predict", OperationKey, OperationPredict, SamplesKey, 1000)
	}
}
