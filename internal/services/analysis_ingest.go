package services

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/forecast-service/internal/analytics"
	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/SAP-F-2025/forecast-service/internal/repositories"
)

// DefaultTopicName names the topic created for an unmapped assessment slot.
func DefaultTopicName(testNumber int) string {
	return fmt.Sprintf("FA %d", testNumber)
}

// Ingest stores a wide table as assessment records of a document. Unknown students and
// unmapped assessment slots are created on the way.
func (s *analysisService) Ingest(ctx context.Context, documentID uint, table *analytics.WideTable) (summary *models.IngestSummary, err error) {
	op := s.slog.WithOperation(ctx, "ingest_document", "")
	defer func() { op.LogResult(documentID, err) }()

	doc, err := s.repo.Documents().GetByID(ctx, documentID)
	if err != nil {
		return nil, documentNotFound(documentID, err)
	}
	mappings, err := s.repo.Topics().ListMappings(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load topic mappings: %w", err)
	}

	// Validates scores and history before anything is written.
	ds, err := analytics.NewPreprocessor(s.cfg.Preprocess()).FromWide(doc, table, mappings)
	if err != nil {
		return nil, err
	}

	summary = &models.IngestSummary{DocumentID: doc.ID, TotalRows: len(table.Rows)}
	for _, r := range ds.Rows {
		if r.Imputed {
			summary.ImputedScores++
		}
	}

	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		studentIDs, created, err := ensureStudents(ctx, tx, table.Rows)
		if err != nil {
			return err
		}
		summary.StudentsCreated = created

		mappingIDs, created, err := ensureMappings(ctx, tx, doc.ID, table.Columns, mappings)
		if err != nil {
			return err
		}
		summary.MappingsCreated = created

		records := make([]models.AssessmentRecord, 0, len(ds.Rows))
		for _, r := range ds.Rows {
			r.StudentID = studentIDs[r.StudentCode]
			if id, ok := mappingIDs[r.TestNumber]; ok {
				mid := id
				r.TopicMappingID = &mid
			}
			records = append(records, buildRecords(doc.ID, []analytics.Row{r})...)
		}
		if err := tx.Records().UpsertRecords(ctx, records); err != nil {
			return fmt.Errorf("failed to upsert assessment records: %w", err)
		}
		summary.RecordsUpserted = len(records)

		// Results computed from the previous record set are no longer current.
		if err := tx.DeleteDerived(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to clear derived rows: %w", err)
		}
		return tx.Documents().SetProcessed(ctx, doc.ID, false)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, doc.ID)
	summary.ProcessingTime = op.Elapsed()
	s.logger.Info("Document ingested",
		"document_id", doc.ID,
		"records", summary.RecordsUpserted,
		"students_created", summary.StudentsCreated,
		"imputed", summary.ImputedScores,
		"duration", summary.ProcessingTime)
	return summary, nil
}

func ensureStudents(ctx context.Context, tx repositories.Repository, rows []analytics.WideRow) (map[string]uint, int, error) {
	codes := make([]string, len(rows))
	for i, r := range rows {
		codes[i] = r.StudentCode
	}
	existing, err := tx.Students().GetByCodes(ctx, codes)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to look up students: %w", err)
	}

	ids := make(map[string]uint, len(rows))
	created := 0
	for _, r := range rows {
		if st, ok := existing[r.StudentCode]; ok {
			ids[r.StudentCode] = st.ID
			continue
		}
		st := &models.Student{Code: r.StudentCode, FirstName: r.FirstName, LastName: r.LastName}
		if r.Section != "" {
			section := r.Section
			st.Section = &section
		}
		if err := tx.Students().Create(ctx, st); err != nil {
			return nil, 0, fmt.Errorf("failed to create student %s: %w", r.StudentCode, err)
		}
		ids[r.StudentCode] = st.ID
		created++
	}
	return ids, created, nil
}

func ensureMappings(ctx context.Context, tx repositories.Repository, documentID uint, columns []analytics.WideColumn,
	existing []models.TopicMapping) (map[int]uint, int, error) {

	ids := make(map[int]uint, len(columns))
	for _, m := range existing {
		ids[m.TestNumber] = m.ID
	}
	created := 0
	for _, col := range columns {
		if _, ok := ids[col.TestNumber]; ok {
			continue
		}
		topic, err := tx.Topics().GetOrCreateTopic(ctx, DefaultTopicName(col.TestNumber), col.MaxScore)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to resolve topic for test %d: %w", col.TestNumber, err)
		}
		mapping := &models.TopicMapping{
			DocumentID: documentID,
			TestNumber: col.TestNumber,
			TopicID:    topic.ID,
			MaxScore:   col.MaxScore,
		}
		if err := tx.Topics().UpsertMapping(ctx, mapping); err != nil {
			return nil, 0, fmt.Errorf("failed to map test %d: %w", col.TestNumber, err)
		}
		ids[col.TestNumber] = mapping.ID
		created++
	}
	return ids, created, nil
}
