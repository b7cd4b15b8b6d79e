// Package vector implements semantic search over business data (C6): one
// Qdrant collection per table, with upsert, similarity search, search-by-
// example, and cross-record pattern mining.
//
// Grounded on Tangerg-lynx/ai/providers/vectorstores/qdrant/store.go for
// the qdrant-go-client wiring (collection lifecycle, point upsert, scored
// query), and on original_source/intelligence/core/vector_engine.py for
// the exact operation semantics this package reproduces against a
// different vector backend.
package vector

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/nebulus-edge/intelligence/internal/apierr"
)

// Embedder produces vector embeddings for text, satisfied by *llm.Client.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// SimilarRecord is one hit from a similarity search (distance is cosine
// distance; similarity is 1-distance, matching the reference engine).
type SimilarRecord struct {
	ID         string
	Record     map[string]any
	Distance   float32
	Similarity float32
}

// PatternResult summarizes what a set of records have in common.
type PatternResult struct {
	CommonFields   map[string][]any
	FrequentValues map[string]map[string]int
	NumericRanges  map[string]NumericRange
	SampleCount    int
}

// NumericRange is a field's min/max/avg across a sample.
type NumericRange struct {
	Min, Max, Avg float64
}

// CollectionInfo describes a collection for listing/inspection.
type CollectionInfo struct {
	Name  string
	Count int
}

// Store is the semantic-search engine: one Qdrant collection per table.
type Store struct {
	client   *qdrant.Client
	embedder Embedder
}

// New wraps an existing Qdrant client connection.
func New(client *qdrant.Client, embedder Embedder) *Store {
	return &Store{client: client, embedder: embedder}
}

// Dial opens a Qdrant gRPC connection at host:port.
func Dial(host string, port int) (*qdrant.Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	return client, nil
}

func (s *Store) ensureCollection(ctx context.Context, name string, dimension uint64) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return &apierr.ExternalError{Op: "vector.CollectionExists", Err: err}
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return &apierr.ExternalError{Op: "vector.CreateCollection", Err: err}
	}
	return nil
}

// recordToText renders a record as natural-language text for embedding:
// "Label: value. Label: value." skipping nil fields, title-casing each
// underscore-separated key (§4.6).
func recordToText(record map[string]any) string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		v := record[k]
		if v == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %v", titleCase(k), v))
	}
	return strings.Join(parts, ". ")
}

func titleCase(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	words := strings.Fields(s)
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// EmbedRecords upserts a batch of records into the table's collection,
// using idField's value (stringified) as each point's stable ID. Re-running
// with the same IDs overwrites rather than duplicates, matching the
// reference engine's upsert semantics.
func (s *Store) EmbedRecords(ctx context.Context, table string, records []map[string]any, idField string) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = recordToText(r)
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, &apierr.ExternalError{Op: "vector.EmbedRecords", Err: err}
	}
	if len(vectors) == 0 {
		return 0, nil
	}

	if err := s.ensureCollection(ctx, table, uint64(len(vectors[0]))); err != nil {
		return 0, err
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		id := recordID(r, idField)
		payload, err := qdrant.TryValueMap(stringifyRecord(r))
		if err != nil {
			return 0, &apierr.ExternalError{Op: "vector.TryValueMap", Err: err}
		}
		idValue, err := qdrant.NewValue(id)
		if err != nil {
			return 0, &apierr.ExternalError{Op: "vector.NewValue", Err: err}
		}
		payload["__record_id__"] = idValue
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(pointIDFor(id)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payload,
		}
	}

	wait := true
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: table,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return 0, &apierr.ExternalError{Op: "vector.Upsert", Err: err}
	}
	return len(records), nil
}

func recordID(record map[string]any, idField string) string {
	if v, ok := record[idField]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return fmt.Sprintf("%v", record)
}

// pointIDFor deterministically maps an external record ID to a numeric
// point ID (Qdrant points are addressed by uuid or uint64; this system
// standardizes on uint64 derived via FNV-1a for stable re-upserts).
func pointIDFor(externalID string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(externalID); i++ {
		h ^= uint64(externalID[i])
		h *= 1099511628211
	}
	return h
}

func stringifyRecord(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		switch t := v.(type) {
		case nil:
			out[k] = ""
		case int, int64, float64, string, bool:
			out[k] = t
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out
}

// SearchSimilar finds records semantically similar to a natural-language
// query. Returns an empty slice for an empty collection and
// apierr.ErrNotFound for a missing one.
func (s *Store) SearchSimilar(ctx context.Context, table, query string, limit int) ([]SimilarRecord, error) {
	exists, err := s.client.CollectionExists(ctx, table)
	if err != nil {
		return nil, &apierr.ExternalError{Op: "vector.CollectionExists", Err: err}
	}
	if !exists {
		return nil, apierr.ErrNotFound
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, &apierr.ExternalError{Op: "vector.SearchSimilar", Err: err}
	}

	lim := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: table,
		Query:          qdrant.NewQuery(vectors[0]...),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, &apierr.ExternalError{Op: "vector.Query", Err: err}
	}
	return toSimilarRecords(points, ""), nil
}

// SearchByExample finds records similar to an existing record by ID,
// excluding the example itself.
func (s *Store) SearchByExample(ctx context.Context, table, recordID string, limit int) ([]SimilarRecord, error) {
	pointID := pointIDFor(recordID)
	retrieved, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: table,
		Ids:            []*qdrant.PointId{qdrant.NewIDNum(pointID)},
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil || len(retrieved) == 0 {
		return nil, nil
	}
	dense := retrieved[0].Vectors.GetVector().GetData()
	if len(dense) == 0 {
		return nil, nil
	}

	lim := uint64(limit + 1)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: table,
		Query:          qdrant.NewQuery(dense...),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, &apierr.ExternalError{Op: "vector.SearchByExample", Err: err}
	}

	results := toSimilarRecords(points, recordID)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func toSimilarRecords(points []*qdrant.ScoredPoint, excludeID string) []SimilarRecord {
	out := make([]SimilarRecord, 0, len(points))
	for _, p := range points {
		payload := convertPayload(p.GetPayload())
		recordID, _ := payload["__record_id__"].(string)
		if recordID == excludeID && excludeID != "" {
			continue
		}
		delete(payload, "__record_id__")

		score := p.GetScore()
		distance := 1 - score // cosine query score is similarity; invert for distance
		out = append(out, SimilarRecord{
			ID: recordID, Record: payload, Distance: distance, Similarity: score,
		})
	}
	return out
}

func convertPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = convertValue(v)
	}
	return out
}

func convertValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch k := v.Kind.(type) {
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}

// FindPatterns analyzes what a set of records (by ID) have in common:
// numeric fields become min/max/avg ranges, categorical fields become
// value-frequency counts (§4.6).
func (s *Store) FindPatterns(ctx context.Context, table string, positiveIDs []string) (PatternResult, error) {
	ids := make([]*qdrant.PointId, len(positiveIDs))
	for i, id := range positiveIDs {
		ids[i] = qdrant.NewIDNum(pointIDFor(id))
	}

	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: table,
		Ids:            ids,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil || len(points) == 0 {
		return PatternResult{
			CommonFields: map[string][]any{}, FrequentValues: map[string]map[string]int{},
			NumericRanges: map[string]NumericRange{},
		}, nil
	}

	records := make([]map[string]any, len(points))
	for i, p := range points {
		payload := convertPayload(p.GetPayload())
		delete(payload, "__record_id__")
		records[i] = payload
	}

	fieldSet := map[string]struct{}{}
	for _, r := range records {
		for k := range r {
			fieldSet[k] = struct{}{}
		}
	}

	common := map[string][]any{}
	frequent := map[string]map[string]int{}
	numeric := map[string]NumericRange{}

	for field := range fieldSet {
		var values []any
		for _, r := range records {
			v, ok := r[field]
			if !ok || v == nil || v == "" {
				continue
			}
			values = append(values, v)
		}
		if len(values) == 0 {
			continue
		}
		common[field] = values

		numericValues := make([]float64, 0, len(values))
		allNumeric := true
		for _, v := range values {
			n, ok := asFloat(v)
			if !ok {
				allNumeric = false
				break
			}
			numericValues = append(numericValues, n)
		}

		if allNumeric && len(numericValues) == len(values) {
			min, max, sum := numericValues[0], numericValues[0], 0.0
			for _, n := range numericValues {
				if n < min {
					min = n
				}
				if n > max {
					max = n
				}
				sum += n
			}
			numeric[field] = NumericRange{Min: min, Max: max, Avg: sum / float64(len(numericValues))}
		} else {
			counts := map[string]int{}
			for _, v := range values {
				counts[fmt.Sprint(v)]++
			}
			frequent[field] = counts
		}
	}

	return PatternResult{
		CommonFields: common, FrequentValues: frequent, NumericRanges: numeric, SampleCount: len(records),
	}, nil
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case bool:
		return 0, false
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// DeleteCollection removes a table's collection entirely. Returns false if
// the collection did not exist.
func (s *Store) DeleteCollection(ctx context.Context, table string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, table)
	if err != nil {
		return false, &apierr.ExternalError{Op: "vector.CollectionExists", Err: err}
	}
	if !exists {
		return false, nil
	}
	if err := s.client.DeleteCollection(ctx, table); err != nil {
		return false, &apierr.ExternalError{Op: "vector.DeleteCollection", Err: err}
	}
	return true, nil
}

// ListCollections returns every collection name.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, &apierr.ExternalError{Op: "vector.ListCollections", Err: err}
	}
	return names, nil
}

// CollectionInfo reports a collection's point count, or zero if absent.
func (s *Store) CollectionInfo(ctx context.Context, table string) CollectionInfo {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: table})
	if err != nil {
		return CollectionInfo{Name: table, Count: 0}
	}
	return CollectionInfo{Name: table, Count: int(count)}
}
