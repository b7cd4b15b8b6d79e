package ingest_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulus-edge/intelligence/internal/ingest"
	"github.com/nebulus-edge/intelligence/internal/relational"
)

func openTestStore(t *testing.T) *relational.Store {
	t.Helper()
	store, err := relational.Open(filepath.Join(t.TempDir(), "main.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

const carsCSV = `VIN,Make,Year,Sale Price
1HGCM82633A004352,Honda,2020,15000.50
1HGCM82633A004353,Ford,2019,12000
`

func TestIngestCSVInfersSchemaAndReplacesTable(t *testing.T) {
	store := openTestStore(t)
	pipeline := ingest.New(store, nil)
	ctx := context.Background()

	result, err := pipeline.IngestCSV(ctx, []byte(carsCSV), "cars", "dealership", "")
	require.NoError(t, err)

	assert.Equal(t, "cars", result.TableName)
	assert.Equal(t, 2, result.RowsImported)
	assert.Equal(t, "vin", result.PrimaryKey)
	assert.Equal(t, relational.TypeInteger, result.ColumnTypes["year"])
	assert.Equal(t, relational.TypeReal, result.ColumnTypes["sale_price"])
	assert.Contains(t, result.Columns, "sale_price")

	schema, err := store.TableSchema(ctx, "cars")
	require.NoError(t, err)
	assert.Equal(t, int64(2), schema.RowCount)
}

func TestIngestCSVWarnsOnDuplicatePrimaryKey(t *testing.T) {
	store := openTestStore(t)
	pipeline := ingest.New(store, nil)

	dupCSV := "vin,make\nABC,Honda\nABC,Ford\n"
	result, err := pipeline.IngestCSV(context.Background(), []byte(dupCSV), "cars", "dealership", "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warnings)
}

func TestIngestCSVRejectsEmptyFile(t *testing.T) {
	store := openTestStore(t)
	pipeline := ingest.New(store, nil)

	_, err := pipeline.IngestCSV(context.Background(), []byte("vin,make\n"), "cars", "dealership", "")
	assert.Error(t, err)
}

func TestIngestCSVDetectsPII(t *testing.T) {
	store := openTestStore(t)
	pipeline := ingest.New(store, nil)

	csvWithSSN := "id,ssn\n1,123-45-6789\n2,987-65-4321\n"
	result, err := pipeline.IngestCSV(context.Background(), []byte(csvWithSSN), "customers", "generic", "")
	require.NoError(t, err)
	require.NotNil(t, result.PIIReport)
	assert.True(t, result.PIIReport.HasPII())
}
