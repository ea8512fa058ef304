package runner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   OutputMarkers
	}{
		{
			name:   "empty",
			output: "",
			want:   OutputMarkers{},
		},
		{
			name:   "status only",
			output: "loading\nRETURN STATUS: 0\n",
			want:   OutputMarkers{Token: "0", TokenFound: true},
		},
		{
			name:   "failure with keywords",
			output: "Performance ok\nAccuracy bad\nFAIL ERROR: off by 0.1\nRETURN STATUS: 2\n",
			want:   OutputMarkers{Token: "2", TokenFound: true, Detail: "off by 0.1", Accuracy: true, Performance: true},
		},
		{
			name:   "detail runs to the end without status",
			output: "FAIL ERROR: line one\nline two\n",
			want:   OutputMarkers{Detail: "line one\nline two"},
		},
		{
			name:   "last markers win",
			output: "FAIL ERROR: first\nRETURN STATUS: 2\nFAIL ERROR: second\nRETURN STATUS: 0 \r\ntrailing",
			want:   OutputMarkers{Token: "0", TokenFound: true, Detail: "second"},
		},
		{
			name:   "fail marker on the status line",
			output: "RETURN STATUS: 2 FAIL ERROR: late",
			want:   OutputMarkers{Token: "2 FAIL ERROR: late", TokenFound: true, Detail: "late"},
		},
		{
			name:   "marker without newline at the end",
			output: "RETURN STATUS: 1",
			want:   OutputMarkers{Token: "1", TokenFound: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScanOutput(tt.output))
		})
	}
}

func TestMarkerScannerSplitWrites(t *testing.T) {
	output := "Accuracy check started\nFAIL ERROR: \x1b[31mmismatch\x1b[0m at layer 3\nRETURN STATUS: 2\n"
	want := ScanOutput(output)
	require.True(t, want.Accuracy)
	require.Equal(t, "2", want.Token)
	require.Equal(t, "mismatch at layer 3", want.Detail)

	for _, size := range []int{1, 2, 3, 7, 13} {
		s := newMarkerScanner()
		for i := 0; i < len(output); i += size {
			end := min(i+size, len(output))
			n, err := s.Write([]byte(output[i:end]))
			require.NoError(t, err)
			require.Equal(t, end-i, n)
		}
		assert.Equal(t, want, s.Markers(), "chunk size %d", size)
	}
}

func TestMarkerScannerKeywordBeforeLongOutput(t *testing.T) {
	s := newMarkerScanner()
	_, _ = s.Write([]byte("Perfor"))
	_, _ = s.Write([]byte("mance dropped\n"))
	filler := []byte(strings.Repeat("x", 64*1024) + "\n")
	for range 100 {
		_, _ = s.Write(filler)
	}
	_, _ = s.Write([]byte("FAIL ERROR: too slow\nRETURN STA"))
	_, _ = s.Write([]byte("TUS: 2\n"))

	markers := s.Markers()
	assert.True(t, markers.Performance)
	assert.False(t, markers.Accuracy)
	assert.Equal(t, "too slow", markers.Detail)
	assert.Equal(t, "2", markers.Token)
	assert.True(t, markers.TokenFound)
}

func TestMarkerScannerCapsCapturedText(t *testing.T) {
	long := strings.Repeat("y", maxFailureDetailBytes+10)
	markers := ScanOutput("RETURN STATUS: " + strings.Repeat("z", maxStatusTokenBytes+10) + "\nFAIL ERROR: " + long)
	assert.Len(t, markers.Token, maxStatusTokenBytes)
	assert.Len(t, markers.Detail, maxFailureDetailBytes)
}
