package logger

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw     string
		want    Level
		wantErr bool
	}{
		{raw: "trace", want: LevelTrace},
		{raw: "DEBUG", want: LevelDebug},
		{raw: "", want: LevelInfo},
		{raw: "warning", want: LevelWarn},
		{raw: "error", want: LevelError},
		{raw: "loud", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.raw)
		if tt.wantErr {
			require.Error(t, err)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}
}

func TestLevelThreshold(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFlags(0)
	SetLevel(LevelWarn)
	defer func() {
		SetLevel(LevelInfo)
		log.SetOutput(log.Writer())
	}()

	Debugf("hidden %d", 1)
	Infof("hidden %d", 2)
	Warnf("shown %d", 3)
	Errorf("shown %d", 4)

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "[WARN] shown 3")
	require.Contains(t, out, "[ERROR] shown 4")
}
