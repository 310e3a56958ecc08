package datalog_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbrmon/pbrmon/lib/datalog"
	"github.com/pbrmon/pbrmon/lib/history"
)

func TestOpen_CreatesHeader(t *testing.T) {
	fs := afero.NewMemMapFs()
	l, err := datalog.Open(fs, "/data/sensor_data.csv")
	require.NoError(t, err)
	assert.Equal(t, "/data/sensor_data.csv", l.Path())

	contents, err := afero.ReadFile(fs, "/data/sensor_data.csv")
	require.NoError(t, err)
	assert.Equal(t, datalog.Header+"\n", string(contents))

	samples, err := l.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestOpen_KeepsExistingLog(t *testing.T) {
	fs := afero.NewMemMapFs()
	existing := datalog.Header + "\n2024-01-01 10:00:00,21.5,60.0\n"
	require.NoError(t, afero.WriteFile(fs, "/sensor_data.csv", []byte(existing), 0o644))

	l, err := datalog.Open(fs, "/sensor_data.csv")
	require.NoError(t, err)
	samples, err := l.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []history.Sample{
		{Timestamp: "2024-01-01 10:00:00", Temperature: 21.5, Humidity: 60.0},
	}, samples)
}

func TestAppendAndReadAll(t *testing.T) {
	fs := afero.NewMemMapFs()
	l, err := datalog.Open(fs, "/sensor_data.csv")
	require.NoError(t, err)

	require.NoError(t, l.Append(history.Sample{Timestamp: "2024-01-01 10:00:00", Temperature: 21.54, Humidity: 60.01}))
	require.NoError(t, l.Append(history.Sample{Timestamp: history.TimestampUnavailable, Temperature: 22, Humidity: 59.96}))

	contents, err := afero.ReadFile(fs, "/sensor_data.csv")
	require.NoError(t, err)
	assert.Equal(t, datalog.Header+"\n"+
		"2024-01-01 10:00:00,21.5,60.0\n"+
		"N/A,22.0,60.0\n", string(contents))

	samples, err := l.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []history.Sample{
		{Timestamp: "2024-01-01 10:00:00", Temperature: 21.5, Humidity: 60.0},
		{Timestamp: "N/A", Temperature: 22.0, Humidity: 60.0},
	}, samples)
}

func TestReadAll_SkipsMalformedLines(t *testing.T) {
	fs := afero.NewMemMapFs()
	contents := datalog.Header + "\n" +
		"2024-01-01 10:00:00,21.5,60.0\n" +
		"garbage\n" +
		"2024-01-01 10:01:00,21.6,60.1\n"
	require.NoError(t, afero.WriteFile(fs, "/sensor_data.csv", []byte(contents), 0o644))

	l, err := datalog.Open(fs, "/sensor_data.csv")
	require.NoError(t, err)
	samples, err := l.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []history.Sample{
		{Timestamp: "2024-01-01 10:00:00", Temperature: 21.5, Humidity: 60.0},
		{Timestamp: "2024-01-01 10:01:00", Temperature: 21.6, Humidity: 60.1},
	}, samples)
}

func TestRead_SkipsOverlongLines(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{
			name: "corrupted line in the middle",
			contents: datalog.Header + "\n" +
				"2024-01-01 10:00:00,21.5,60.0\n" +
				strings.Repeat("\x00", 70*1024) + "\n" +
				"2024-01-01 10:01:00,21.6,60.1\n",
		},
		{
			name: "long line that still looks like a record",
			contents: datalog.Header + "\n" +
				"2024-01-01 10:00:00,21.5,60.0\n" +
				"2024-01-01 09:59:00,21.0," + strings.Repeat("9", datalog.MaxRecordLen) + "\n" +
				"2024-01-01 10:01:00,21.6,60.1\n",
		},
		{
			name: "corrupted tail without newline",
			contents: datalog.Header + "\n" +
				"2024-01-01 10:00:00,21.5,60.0\n" +
				"2024-01-01 10:01:00,21.6,60.1\n" +
				strings.Repeat("\xff", 3*datalog.MaxRecordLen),
		},
	}
	expected := []history.Sample{
		{Timestamp: "2024-01-01 10:00:00", Temperature: 21.5, Humidity: 60.0},
		{Timestamp: "2024-01-01 10:01:00", Temperature: 21.6, Humidity: 60.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/sensor_data.csv", []byte(tt.contents), 0o644))
			l, err := datalog.Open(fs, "/sensor_data.csv")
			require.NoError(t, err)

			tail, err := l.ReadTail(100)
			require.NoError(t, err)
			assert.Equal(t, expected, tail)

			all, err := l.ReadAll()
			require.NoError(t, err)
			assert.Equal(t, expected, all)
		})
	}
}

func TestReadAll_MissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	l, err := datalog.Open(fs, "/sensor_data.csv")
	require.NoError(t, err)
	require.NoError(t, fs.Remove("/sensor_data.csv"))

	samples, err := l.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestReadTail(t *testing.T) {
	fs := afero.NewMemMapFs()
	l, err := datalog.Open(fs, "/sensor_data.csv")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Append(history.Sample{
			Timestamp:   fmt.Sprintf("2024-01-01 10:%02d:00", i),
			Temperature: float64(20 + i),
			Humidity:    50,
		}))
	}

	tail, err := l.ReadTail(3)
	require.NoError(t, err)
	require.Len(t, tail, 3)
	assert.Equal(t, "2024-01-01 10:07:00", tail[0].Timestamp)
	assert.Equal(t, "2024-01-01 10:09:00", tail[2].Timestamp)

	all, err := l.ReadTail(100)
	require.NoError(t, err)
	assert.Len(t, all, 10)

	none, err := l.ReadTail(0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		line string
		want history.Sample
		ok   bool
	}{
		{"2024-01-01 10:00:00,21.5,60.0", history.Sample{Timestamp: "2024-01-01 10:00:00", Temperature: 21.5, Humidity: 60}, true},
		{"2024-01-01 10:00:00,21.5,60.0\r", history.Sample{Timestamp: "2024-01-01 10:00:00", Temperature: 21.5, Humidity: 60}, true},
		{"N/A,-3.0,99.9", history.Sample{Timestamp: "N/A", Temperature: -3, Humidity: 99.9}, true},
		{datalog.Header, history.Sample{}, false},
		{"", history.Sample{}, false},
		{"garbage", history.Sample{}, false},
		{"only,one", history.Sample{}, false},
		{",21.5,60.0", history.Sample{}, false},
		{"2024-01-01 10:00:00,hot,60.0", history.Sample{}, false},
		{"2024-01-01 10:00:00,21.5,", history.Sample{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := datalog.ParseRecord(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExport(t *testing.T) {
	t.Run("samples", func(t *testing.T) {
		var buf bytes.Buffer
		err := datalog.Export(&buf, []history.Sample{
			{Timestamp: "2024-01-01 10:00:00", Temperature: 21.54, Humidity: 60},
			{Timestamp: "2024-01-01 10:01:00", Temperature: 21.6, Humidity: 60.1},
		})
		require.NoError(t, err)

		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/export.csv", buf.Bytes(), 0o644))
		l, err := datalog.Open(fs, "/export.csv")
		require.NoError(t, err)
		samples, err := l.ReadAll()
		require.NoError(t, err)
		assert.Equal(t, []history.Sample{
			{Timestamp: "2024-01-01 10:00:00", Temperature: 21.5, Humidity: 60},
			{Timestamp: "2024-01-01 10:01:00", Temperature: 21.6, Humidity: 60.1},
		}, samples)
		assert.Contains(t, buf.String(), datalog.Header)
	})

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, datalog.Export(&buf, nil))
		assert.Equal(t, datalog.Header+"\n", buf.String())
	})
}
