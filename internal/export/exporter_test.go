package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/linemate/internal/analysis"
)

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	args := m.Called(ctx, key, body, contentType)
	return args.Error(0)
}

func sample() []analysis.CorrelationRecord {
	return []analysis.CorrelationRecord{{
		Team: "EDM", PlayerA: "Connor McDavid", PlayerB: "Leon Draisaitl",
		Correlation: 0.41, TotalPointsA: 132, TotalPointsB: 106,
		PairID: "Connor McDavid-Leon Draisaitl",
	}}
}

func TestExporter_WritesToDisk(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(filepath.Join(dir, "out"), nil, nil)
	require.True(t, e.Enabled())

	name, err := e.ExportCorrelations(context.Background(), "20232024", sample())
	require.NoError(t, err)
	assert.Equal(t, "correlations_20232024.csv", name)

	data, err := os.ReadFile(filepath.Join(dir, "out", name))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Team,Player A,Player B,Correlation"))

	joined := analysis.JoinSeasons(sample(), nil)
	name, err = e.ExportJoined(context.Background(), "20232024", "20222023", joined)
	require.NoError(t, err)
	assert.Equal(t, "correlations_20232024_vs_20222023.csv", name)
	assert.FileExists(t, filepath.Join(dir, "out", name))
	assert.NoFileExists(t, filepath.Join(dir, "out", name+".tmp"))
}

func TestExporter_Uploads(t *testing.T) {
	up := &mockUploader{}
	up.On("Upload", mock.Anything, "correlations_20232024.csv", mock.AnythingOfType("[]uint8"), "text/csv").Return(nil).Once()

	e := NewExporter("", up, nil)
	_, err := e.ExportCorrelations(context.Background(), "20232024", sample())
	require.NoError(t, err)
	up.AssertExpectations(t)
}

func TestExporter_UploadError(t *testing.T) {
	up := &mockUploader{}
	up.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("denied"))

	e := NewExporter("", up, nil)
	_, err := e.ExportCorrelations(context.Background(), "20232024", sample())
	assert.ErrorContains(t, err, "denied")
}

func TestExporter_Disabled(t *testing.T) {
	var e *Exporter
	assert.False(t, e.Enabled())
	assert.False(t, NewExporter("", nil, nil).Enabled())
}

func TestS3Uploader_Key(t *testing.T) {
	u := &S3Uploader{prefix: "linemate/"}
	assert.Equal(t, "linemate/correlations_20232024.csv", u.Key("correlations_20232024.csv"))

	u = &S3Uploader{}
	assert.Equal(t, "x.csv", u.Key("x.csv"))
}
