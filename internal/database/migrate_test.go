package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups[strings.TrimSuffix(n, ".up.sql")] = true
		case strings.HasSuffix(n, ".down.sql"):
			downs[strings.TrimSuffix(n, ".down.sql")] = true
		}
	}
	assert.Equal(t, ups, downs)
}

func TestInitialSchemaDeclaresUpsertKeys(t *testing.T) {
	data, err := migrationFS.ReadFile("migrations/000001_init_schema.up.sql")
	require.NoError(t, err)
	schema := string(data)

	for _, idx := range []string{
		"idx_assessment_record_key ON assessment_records (document_id, student_id, test_number)",
		"idx_forecast_key ON forecasts (document_id, student_id, test_number)",
		"idx_assessment_statistic_key ON assessment_statistics (document_id, test_number)",
		"idx_student_statistic_key ON student_statistics (document_id, student_id)",
		"idx_post_test_key ON actual_post_tests (document_id, student_id)",
		"idx_topic_mapping_doc_test ON topic_mappings (document_id, test_number)",
	} {
		assert.Contains(t, schema, idx)
	}
}
