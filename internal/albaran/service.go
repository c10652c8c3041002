package albaran

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/albaran-tracker/internal/extraction"
	"github.com/zombor/albaran-tracker/internal/processing"
	"github.com/zombor/albaran-tracker/internal/scanning"
)

// ErrAlreadyProcessing is returned when a document is reprocessed while an attempt is running
var ErrAlreadyProcessing = errors.New("document is already being processed")

// DefaultStaleProcessing is how long a document may sit in processing before a
// reprocess request treats the attempt as abandoned
const DefaultStaleProcessing = 15 * time.Minute

// Processor runs the OCR chain for a document
type Processor interface {
	Process(ctx context.Context, id string, img scanning.Image) processing.Result
}

// IDGenerator generates unique IDs for documents
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles the document lifecycle: upload, processing, retrieval and removal
type Service struct {
	db          DB
	storage     Storage
	processor   Processor
	extractor   *extraction.Extractor
	idGenerator IDGenerator
	timeSource  TimeSource
	staleAfter  time.Duration
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, storage Storage, processor Processor, extractor *extraction.Extractor) *Service {
	return NewServiceWithDeps(db, storage, processor, extractor, uuidGenerator{}, defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, processor Processor, extractor *extraction.Extractor, idGen IDGenerator, timeSrc TimeSource) *Service {
	if extractor == nil {
		extractor = extraction.New(extraction.DefaultConfig())
	}
	return &Service{
		db:          db,
		storage:     storage,
		processor:   processor,
		extractor:   extractor,
		idGenerator: idGen,
		timeSource:  timeSrc,
		staleAfter:  DefaultStaleProcessing,
	}
}

// WithStaleProcessing sets how old a processing attempt must be before Reprocess
// may restart it. Zero or negative keeps the default.
func (s *Service) WithStaleProcessing(d time.Duration) *Service {
	if d > 0 {
		s.staleAfter = d
	}
	return s
}

var (
	reFilenameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	reSpaces         = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips special characters and truncates long phone camera names
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if reFilenameUnsafe.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = reFilenameUnsafe.ReplaceAllString(base, "")
	base = strings.TrimSpace(reSpaces.ReplaceAllString(base, " "))

	const maxLen = 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "albaran"
	}
	return base + ext
}

// Upload stores the image, records a pending document and processes it. A document
// whose processing failed is still returned with the failed result; its status and
// Error say why.
func (s *Service) Upload(ctx context.Context, filename string, data []byte, contentType string) (*Document, processing.Result, error) {
	if len(data) == 0 {
		return nil, processing.Result{}, fmt.Errorf("empty file")
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedName, err := s.storage.Save(ctx, fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, processing.Result{}, fmt.Errorf("saving file: %w", err)
	}

	doc := &Document{
		ID:           id,
		Filename:     savedName,
		OriginalName: filename,
		ContentType:  contentType,
		Status:       processing.StatusPending,
		Currency:     s.extractor.Config().DefaultCurrency,
		Items:        []Item{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.SaveDocument(doc); err != nil {
		if delErr := s.storage.Delete(ctx, savedName); delErr != nil {
			slog.Warn("removing orphaned file", "filename", savedName, "error", delErr)
		}
		return nil, processing.Result{}, fmt.Errorf("saving document: %w", err)
	}

	return s.process(ctx, doc, data)
}

// Reprocess runs a fresh attempt on a stored document. A document left in
// processing longer than the stale threshold, typically by a crash, is marked
// failed and restarted; a younger one is refused with ErrAlreadyProcessing.
func (s *Service) Reprocess(ctx context.Context, id string) (*Document, processing.Result, error) {
	doc, err := s.db.GetDocument(id)
	if err != nil {
		return nil, processing.Result{}, fmt.Errorf("getting document: %w", err)
	}
	if doc.Status == processing.StatusProcessing {
		age := s.timeSource.Now().Sub(doc.UpdatedAt)
		if age < s.staleAfter {
			return nil, processing.Result{}, fmt.Errorf("%w: %s", ErrAlreadyProcessing, id)
		}
		slog.Warn("restarting abandoned processing attempt", "document_id", id, "age", age)
		if err := s.db.UpdateStatus(id, processing.StatusFailed); err != nil {
			return nil, processing.Result{}, fmt.Errorf("abandoning stale attempt: %w", err)
		}
		doc.Status = processing.StatusFailed
	}

	data, err := s.storage.Get(ctx, doc.Filename)
	if err != nil {
		return nil, processing.Result{}, fmt.Errorf("getting document file: %w", err)
	}

	if doc.Status.Terminal() {
		if err := s.db.UpdateStatus(id, processing.StatusPending); err != nil {
			return nil, processing.Result{}, fmt.Errorf("resetting document status: %w", err)
		}
		doc.Status = processing.StatusPending
	}

	return s.process(ctx, doc, data)
}

func (s *Service) process(ctx context.Context, doc *Document, data []byte) (*Document, processing.Result, error) {
	result := s.processor.Process(ctx, doc.ID, scanning.Image{
		ID:          doc.ID,
		Data:        data,
		ContentType: doc.ContentType,
	})

	// The processor wrote intermediate statuses straight to the store
	if current, err := s.db.GetDocument(doc.ID); err == nil {
		doc = current
	}
	if result.NotStarted {
		return doc, result, nil
	}

	doc.applyResult(result, s.timeSource.Now())
	if err := s.db.SaveDocument(doc); err != nil {
		return nil, result, fmt.Errorf("saving processing result: %w", err)
	}

	if !result.Success {
		slog.Warn("document processing failed", "document_id", doc.ID, "filename", doc.OriginalName)
	}
	return doc, result, nil
}

// Get retrieves a document by ID
func (s *Service) Get(id string) (*Document, error) {
	doc, err := s.db.GetDocument(id)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return doc, nil
}

// List returns all documents, newest first
func (s *Service) List() ([]*Document, error) {
	docs, err := s.db.ListDocuments()
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

// Delete removes a document record and then its file. A file that can't be removed
// is logged; the record is gone either way.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.db.GetDocument(id)
	if err != nil {
		return fmt.Errorf("getting document for deletion: %w", err)
	}

	if err := s.db.DeleteDocument(id); err != nil {
		return fmt.Errorf("deleting document from database: %w", err)
	}

	if err := s.storage.Delete(ctx, doc.Filename); err != nil {
		slog.Warn("Failed to delete file", "filename", doc.Filename, "error", err)
	}
	return nil
}

// GetImage retrieves the stored image of a document
func (s *Service) GetImage(ctx context.Context, id string) ([]byte, string, error) {
	doc, err := s.db.GetDocument(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting document: %w", err)
	}

	data, err := s.storage.Get(ctx, doc.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting document file: %w", err)
	}
	return data, doc.ContentType, nil
}

// Stats counts documents by status and by the current month
func (s *Service) Stats() (*Stats, error) {
	docs, err := s.List()
	if err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	stats := &Stats{Total: len(docs)}
	for _, d := range docs {
		created := d.CreatedAt.In(now.Location())
		if created.Year() == now.Year() && created.Month() == now.Month() {
			stats.ThisMonth++
		}
		switch d.Status {
		case processing.StatusPending:
			stats.Pending++
		case processing.StatusProcessing:
			stats.Processing++
		case processing.StatusCompleted:
			stats.Completed++
		case processing.StatusFailed:
			stats.Failed++
		}
	}
	if len(docs) > 0 {
		last := docs[0].CreatedAt
		stats.LastScan = &last
	}
	return stats, nil
}

// Extract runs the field extractor over text without storing anything
func (s *Service) Extract(text string) extraction.Fields {
	return s.extractor.Extract(text)
}
