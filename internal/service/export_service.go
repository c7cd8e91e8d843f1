package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/church-attendance-api/internal/dto"
	"github.com/noah-isme/church-attendance-api/internal/models"
	appErrors "github.com/noah-isme/church-attendance-api/pkg/errors"
	"github.com/noah-isme/church-attendance-api/pkg/export"
	"github.com/noah-isme/church-attendance-api/pkg/storage"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type statisticsProvider interface {
	Statistics(ctx context.Context, req dto.StatisticsRequest) (*models.StatisticsReport, bool, error)
}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type documentRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

type downloadSigner interface {
	Generate(reference, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (storage.Grant, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	PublicURL       string
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportDownload is a resolved download ready to stream.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportService renders statistics reports to files and hands out signed links.
type ExportService struct {
	stats     statisticsProvider
	storage   fileStorage
	renderers map[string]documentRenderer
	signer    downloadSigner
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService with the CSV and PDF renderers.
func NewExportService(stats statisticsProvider, files fileStorage, signer downloadSigner, validate *validator.Validate, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	RegisterAttendanceValidations(validate)
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ExportService{
		stats:   stats,
		storage: files,
		renderers: map[string]documentRenderer{
			ExportFormatCSV: export.NewCSVRenderer(),
			ExportFormatPDF: export.NewPDFRenderer(),
		},
		signer:    signer,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// ExportStatistics renders the requested statistics and returns a signed download link.
func (s *ExportService) ExportStatistics(ctx context.Context, req dto.ExportStatisticsRequest) (*dto.ExportResponse, error) {
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if err := s.validator.Var(format, "required,oneof=csv pdf"); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	req.Format = format
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	report, _, err := s.stats.Statistics(ctx, req.StatisticsRequest)
	if err != nil {
		return nil, err
	}

	payload, err := s.renderers[format].Render(statisticsDocument(report))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	reference := uuid.NewString()
	filename := s.buildFilename(report, format)
	relPath, err := s.storage.Save(path.Join("statistics", reference, filename), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(reference, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}
	s.logger.Info("statistics exported",
		zap.String("entity", string(report.Entity)),
		zap.String("entity_id", report.EntityID),
		zap.String("format", format),
		zap.Int("bytes", len(payload)))

	return &dto.ExportResponse{
		URL:       s.downloadURL(token),
		Filename:  filename,
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

func (s *ExportService) downloadURL(token string) string {
	base := strings.TrimRight(s.cfg.PublicURL, "/") + "/" + strings.Trim(s.cfg.APIPrefix, "/")
	return fmt.Sprintf("%s/exports/%s", base, token)
}

// ResolveDownload validates token and opens the stored export.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	grant, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	if !strings.HasPrefix(grant.Path, path.Join("statistics", grant.Reference)+"/") {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.storage.Open(grant.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	filename := path.Base(grant.Path)
	return &ExportDownload{
		File:        file,
		Filename:    filename,
		ContentType: contentTypeFor(filename),
		ExpiresAt:   grant.ExpiresAt,
	}, nil
}

// Cleanup removes exports older than the result TTL.
func (s *ExportService) Cleanup() ([]string, error) {
	return s.storage.CleanupOlderThan(s.cfg.ResultTTL)
}

// StartCleanup purges expired exports every CleanupInterval until ctx ends.
func (s *ExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.Cleanup()
				if err != nil {
					s.logger.Sugar().Warnw("export cleanup failed", "error", err)
					continue
				}
				if len(deleted) > 0 {
					s.logger.Sugar().Infow("expired exports removed", "count", len(deleted))
				}
			}
		}
	}()
}

func (s *ExportService) buildFilename(report *models.StatisticsReport, format string) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s_%s_%s.%s",
		strings.ToLower(string(report.Entity)),
		sanitizeFilename(report.EntityID),
		report.Window.From.Format(monthLayout),
		strings.ToLower(string(report.Kind)),
		timestamp,
		format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", ".", "-")
	result := replacer.Replace(raw)
	if len(result) > 64 {
		return result[:64]
	}
	return result
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

func statisticsDocument(report *models.StatisticsReport) export.Document {
	doc := export.Document{
		Title:    fmt.Sprintf("Attendance regularity %s %s", report.Entity, report.EntityID),
		Subtitle: fmt.Sprintf("%s, %s attendance, %d members", report.Window.From.Format(monthLayout), report.Kind, report.Overall.Total),
	}
	doc.Tables = append(doc.Tables, bucketTable("Overall", report.Overall))
	if report.New != nil {
		doc.Tables = append(doc.Tables, bucketTable("New members", *report.New))
	}
	if report.Old != nil {
		doc.Tables = append(doc.Tables, bucketTable("Existing members", *report.Old))
	}

	members := export.Table{
		Title:   "Members",
		Columns: []string{"Member ID", "Name", "Attended", "Sundays", "State", "New"},
		Rows:    make([][]string, 0, len(report.Members)),
	}
	for _, m := range report.Members {
		members.Rows = append(members.Rows, []string{
			m.MemberID,
			m.FullName,
			strconv.Itoa(m.Attendance),
			strconv.Itoa(m.Sundays),
			string(m.State),
			strconv.FormatBool(m.IsNew),
		})
	}
	doc.Tables = append(doc.Tables, members)
	return doc
}

func bucketTable(title string, breakdown models.RegularityBreakdown) export.Table {
	table := export.Table{Title: title, Columns: []string{"State", "Count", "Percentage"}}
	for _, b := range breakdown.Buckets {
		table.Rows = append(table.Rows, []string{string(b.State), strconv.Itoa(b.Count), strconv.Itoa(b.Percentage) + "%"})
	}
	return table
}
