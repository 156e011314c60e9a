package market

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleRecord = "2023-01-01 00:00:00,1672531200000,100.5,101.25,99.75,100.9,1234.5"

func TestParseRecord(t *testing.T) {
	bar, err := ParseRecord(sampleRecord)
	require.NoError(t, err)
	require.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), bar.Ts)
	require.Equal(t, int64(1672531200000), bar.Key())
	require.Equal(t, 100.5, bar.Open)
	require.Equal(t, 101.25, bar.High)
	require.Equal(t, 99.75, bar.Low)
	require.Equal(t, 100.9, bar.Close)
	require.Equal(t, 1234.5, bar.Volume)
}

func TestParseRecordIdempotent(t *testing.T) {
	first, err := ParseRecord(sampleRecord)
	require.NoError(t, err)
	second, err := ParseRecord(sampleRecord)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestParseRecordScientificTimestampAndCRLF(t *testing.T) {
	bar, err := ParseRecord("x,1.6725312e12, 1,2,0.5,1.5,10\r\n")
	require.NoError(t, err)
	require.Equal(t, int64(1672531200000), bar.Key())
	require.Equal(t, 1.0, bar.Open)
	require.Equal(t, 10.0, bar.Volume)
}

func TestParseRecordShort(t *testing.T) {
	_, err := ParseRecord("x,1672531200000,1,2,3")
	require.ErrorIs(t, err, ErrShortRecord)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, 5, perr.Fields)
	require.Equal(t, "short", perr.Reason())
}

func TestParseRecordMalformed(t *testing.T) {
	cases := map[string]string{
		"x,notanumber,1,2,3,4,5":      "timestamp",
		"x,1,1,2,abc,4,5":             "low",
		"x,1,1,2,3,4,":                "volume",
		"x,1,NaN,2,3,4,5":             "open",
		"x,1e300,1,2,3,4,5":           "timestamp",
		"x,-1e300,1,2,3,4,5":          "timestamp",
		"x,9.3e18,1,2,3,4,5":          "timestamp",
		"x,1672531200000.5,1,2,3,4,5": "timestamp",
	}
	for line, field := range cases {
		_, err := ParseRecord(line)
		require.ErrorIs(t, err, ErrMalformed, line)
		var perr *ParseError
		require.True(t, errors.As(err, &perr))
		require.Equal(t, field, perr.Field, line)
		require.Equal(t, "malformed", perr.Reason())
	}
}
