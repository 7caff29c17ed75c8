package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMeta(t *testing.T) {
	raw := []byte("time:0.012\ntime-wall:0.031\nmax-rss:4096\nexitcode:0\ncsw-voluntary:3\ncsw-forced:1\n")
	meta := ParseMeta(raw)

	assert.Equal(t, StatusOK, meta.Status)
	assert.InDelta(t, 0.012, meta.Time, 1e-9)
	assert.InDelta(t, 0.031, meta.TimeWall, 1e-9)
	assert.EqualValues(t, 4096, meta.MaxRSS)
	assert.EqualValues(t, 0, meta.ExitCode)
	assert.EqualValues(t, 3, meta.CswVoluntary)
	assert.EqualValues(t, 1, meta.CswForced)
}

func TestParseMetaStatusMapping(t *testing.T) {
	cases := map[string]Status{
		"status:RE\n": StatusRuntimeError,
		"status:SG\n": StatusSignaled,
		"status:TO\n": StatusTimedOut,
		"status:XX\n": StatusInternalError,
	}
	for raw, want := range cases {
		meta := ParseMeta([]byte(raw))
		assert.Equal(t, want, meta.Status, raw)
	}
}

func TestParseMetaUnrecognizedStatus(t *testing.T) {
	meta := ParseMeta([]byte("status:WAT\n"))
	require.Equal(t, StatusInternalError, meta.Status)
	assert.Contains(t, meta.Message, "WAT")
}

func TestShortCircuitMetaIsZeroValued(t *testing.T) {
	meta := ShortCircuitMeta()
	assert.Equal(t, StatusShortCircuit, meta.Status)
	assert.EqualValues(t, 0, meta.ExitCode)
	assert.EqualValues(t, 0, meta.MaxRSS)
	assert.Empty(t, meta.Stdout)
	assert.Empty(t, meta.Stderr)
}
