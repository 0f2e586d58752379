package progress

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_ReportsAtInterval(t *testing.T) {
	data := make([]byte, 100)

	var reports [][2]int64

	pr := NewReader(bytes.NewReader(data), 100, 30, func(written, total int64) {
		reports = append(reports, [2]int64{written, total})
	})

	// Read in fixed 10-byte steps so the interval crossings are predictable.
	buf := make([]byte, 10)

	for {
		if _, err := pr.Read(buf); err == io.EOF {
			break
		} else {
			require.NoError(t, err)
		}
	}

	// Crossings at 30, 60, 90 plus the final report at 100.
	assert.Equal(t, [][2]int64{{30, 100}, {60, 100}, {90, 100}, {100, 100}}, reports)
	assert.Equal(t, int64(100), pr.Written())
}

func TestReader_FinalReportOnExactTotal(t *testing.T) {
	data := make([]byte, 50)

	var last int64

	pr := NewReader(bytes.NewReader(data), 50, 1<<20, func(written, total int64) {
		last = written
	})

	_, err := io.Copy(io.Discard, pr)
	require.NoError(t, err)

	// The interval is never crossed, but completion must still be reported.
	assert.Equal(t, int64(50), last)
}

func TestReader_UnknownTotal(t *testing.T) {
	data := make([]byte, 64)

	var reports []int64

	pr := NewReader(bytes.NewReader(data), -1, 16, func(written, total int64) {
		assert.Equal(t, int64(-1), total)

		reports = append(reports, written)
	})

	_, err := io.Copy(io.Discard, pr)
	require.NoError(t, err)

	assert.NotEmpty(t, reports)
	assert.Equal(t, int64(64), pr.Written())
}
