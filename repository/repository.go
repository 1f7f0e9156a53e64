package repository

import (
	"encoding/json"

	"treegraph/db"
	"treegraph/models"
)

const (
	summaryKeyPrefix = "summary:"
	exportKeyPrefix  = "export:"
)

// It abstracts the storage layer from the analysis logic
type AnalysisRepositoryInterface interface {
	PutAnalysis(s *models.Summary, edges, indices []byte) error
	GetSummary(id string) (*models.Summary, error)
	ListSummaries() ([]*models.Summary, error)
	GetExport(id, kind string) ([]byte, error)
}

// AnalysisRepository implements the AnalysisRepositoryInterface using
// LevelDB as the storage backend
type AnalysisRepository struct {
	db *db.LevelDB
}

// NewAnalysisRepository creates and returns a new AnalysisRepository instance
func NewAnalysisRepository(db *db.LevelDB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// PutAnalysis stores one per-log summary together with its CSV exports in a
// single atomic batch, so a crash mid-write never leaves a summary without
// its exports.
func (r *AnalysisRepository) PutAnalysis(s *models.Summary, edges, indices []byte) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.db.WriteBatch(map[string][]byte{
		summaryKeyPrefix + s.ID:            data,
		string(exportKey(s.ID, "edges")):   edges,
		string(exportKey(s.ID, "indices")): indices,
	})
}

// GetSummary retrieves a summary by its log identifier
func (r *AnalysisRepository) GetSummary(id string) (*models.Summary, error) {
	data, err := r.db.Get([]byte(summaryKeyPrefix + id))
	if err != nil {
		return nil, err
	}
	var s models.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSummaries retrieves all stored summaries
func (r *AnalysisRepository) ListSummaries() ([]*models.Summary, error) {
	iter := r.db.NewPrefixIterator([]byte(summaryKeyPrefix))
	defer iter.Release()

	var summaries []*models.Summary
	for iter.Next() {
		var s models.Summary
		if err := json.Unmarshal(iter.Value(), &s); err != nil {
			return nil, err
		}
		summaries = append(summaries, &s)
	}
	return summaries, iter.Error()
}

// GetExport retrieves a stored CSV export ("edges" or "indices") for a log
func (r *AnalysisRepository) GetExport(id, kind string) ([]byte, error) {
	return r.db.Get(exportKey(id, kind))
}

func exportKey(id, kind string) []byte {
	return []byte(exportKeyPrefix + id + ":" + kind)
}
