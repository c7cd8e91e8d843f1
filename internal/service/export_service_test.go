package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/church-attendance-api/internal/dto"
	"github.com/noah-isme/church-attendance-api/internal/models"
	appErrors "github.com/noah-isme/church-attendance-api/pkg/errors"
	"github.com/noah-isme/church-attendance-api/pkg/storage"
)

type statisticsProviderStub struct {
	report *models.StatisticsReport
	err    error
}

func (s statisticsProviderStub) Statistics(ctx context.Context, req dto.StatisticsRequest) (*models.StatisticsReport, bool, error) {
	return s.report, false, s.err
}

func sampleReport() *models.StatisticsReport {
	old := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	members := []models.MemberAttendance{
		{Member: testMember("a", old), Facts: []models.AttendanceFact{
			churchFact("a", models.EntityTribe, "t1", sunday(3), models.BoolPtr(true)),
		}},
		{Member: testMember("b", old)},
	}
	report := Aggregate(members, AggregateOptions{
		Window:    models.MonthWindow(2024, time.March),
		Entity:    models.EntityTribe,
		EntityID:  "t1",
		Breakdown: true,
	})
	return &report
}

func newExportServiceForTest(t *testing.T, stats statisticsProvider) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{PublicURL: "https://church.example/", APIPrefix: "/api/v1", ResultTTL: time.Hour}
	return NewExportService(stats, store, signer, nil, cfg, nil), store
}

func exportRequest(format string) dto.ExportStatisticsRequest {
	return dto.ExportStatisticsRequest{
		StatisticsRequest: dto.StatisticsRequest{Entity: models.EntityTribe, EntityID: "t1", Month: "2024-03", Breakdown: true},
		Format:            format,
	}
}

func tokenFromURL(url string) string {
	return url[strings.LastIndex(url, "/")+1:]
}

func TestExportServiceCSVRoundTrip(t *testing.T) {
	svc, _ := newExportServiceForTest(t, statisticsProviderStub{report: sampleReport()})

	resp, err := svc.ExportStatistics(context.Background(), exportRequest("CSV"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.URL, "https://church.example/api/v1/exports/"))
	assert.True(t, strings.HasPrefix(resp.Filename, "tribe_t1_2024-03_church_"))
	assert.True(t, strings.HasSuffix(resp.Filename, ".csv"))

	download, err := svc.ResolveDownload(context.Background(), tokenFromURL(resp.URL))
	require.NoError(t, err)
	defer download.File.Close() //nolint:errcheck
	assert.Equal(t, "text/csv", download.ContentType)
	assert.Equal(t, resp.Filename, download.Filename)

	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	content := string(body)
	assert.Contains(t, content, "New members")
	assert.Contains(t, content, "LITTLE_REGULAR,1,50%")
	assert.Contains(t, content, "a,Member a,1,5,LITTLE_REGULAR,false")
}

func TestExportServicePDF(t *testing.T) {
	svc, _ := newExportServiceForTest(t, statisticsProviderStub{report: sampleReport()})

	resp, err := svc.ExportStatistics(context.Background(), exportRequest("pdf"))
	require.NoError(t, err)
	download, err := svc.ResolveDownload(context.Background(), tokenFromURL(resp.URL))
	require.NoError(t, err)
	defer download.File.Close() //nolint:errcheck
	assert.Equal(t, "application/pdf", download.ContentType)
	head := make([]byte, 4)
	_, err = io.ReadFull(download.File, head)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(head))
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t, statisticsProviderStub{report: sampleReport()})
	_, err := svc.ExportStatistics(context.Background(), exportRequest("xlsx"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestExportServiceValidatesWithSharedValidator(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	validate := validator.New()
	svc := NewExportService(statisticsProviderStub{report: sampleReport()}, store, storage.NewSignedURLSigner("secret", time.Hour), validate, ExportConfig{}, nil)
	assert.Same(t, validate, svc.validator)

	req := exportRequest("csv")
	req.Entity = "CHOIR"
	_, err = svc.ExportStatistics(context.Background(), req)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	req = exportRequest("csv")
	req.Month = "March"
	_, err = svc.ExportStatistics(context.Background(), req)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestExportServicePropagatesStatisticsErrors(t *testing.T) {
	svc, _ := newExportServiceForTest(t, statisticsProviderStub{err: appErrors.Clone(appErrors.ErrValidation, "bad month")})
	_, err := svc.ExportStatistics(context.Background(), exportRequest("csv"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestExportServiceRejectsForgedTokens(t *testing.T) {
	svc, _ := newExportServiceForTest(t, statisticsProviderStub{report: sampleReport()})
	_, err := svc.ResolveDownload(context.Background(), "x.1.eA.deadbeef")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	// Signed correctly but pointing outside the export's own directory.
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("ref-1", "statistics/ref-2/file.csv")
	require.NoError(t, err)
	_, err = svc.ResolveDownload(context.Background(), token)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	token, _, err = signer.Generate("ref-1", "statistics/ref-1/missing.csv")
	require.NoError(t, err)
	_, err = svc.ResolveDownload(context.Background(), token)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
