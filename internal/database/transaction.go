package database

// Atomic writes
//
// AtomicBatch is the entry point for statements that must succeed together:
//
//	batch := NewAtomicBatch()
//	batch.Add(updateOwnership, vars1)
//	batch.Add(createSale, vars2)
//	batch.Execute(ctx, db)  // all or nothing
//
// Statements are accumulated in memory and sent as one request wrapped in
// BEGIN TRANSACTION / COMMIT TRANSACTION. There is no isolation between Add()
// calls; reads that must be consistent with the writes belong inside the
// statements themselves (e.g. a WHERE guard on the update).

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// TxBuilder builds transaction queries with automatic variable namespacing so
// statements from different sources can reuse names like $id.
type TxBuilder struct {
	statements []string
	vars       map[string]interface{}
	counter    int
}

// NewTxBuilder creates a new transaction builder
func NewTxBuilder() *TxBuilder {
	return &TxBuilder{
		statements: make([]string, 0),
		vars:       make(map[string]interface{}),
	}
}

// Add appends a statement, renaming each $var to $s<n>_var. Names are only
// replaced on identifier boundaries, so $asset does not clobber $asset_id.
// Returns the original-to-namespaced name mapping.
func (tb *TxBuilder) Add(query string, vars map[string]interface{}) map[string]string {
	tb.counter++
	mapping := make(map[string]string, len(vars))

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	newQuery := query
	for _, name := range names {
		renamed := fmt.Sprintf("s%d_%s", tb.counter, name)
		pattern := regexp.MustCompile(`\$` + regexp.QuoteMeta(name) + `\b`)
		newQuery = pattern.ReplaceAllLiteralString(newQuery, "$"+renamed)
		tb.vars[renamed] = vars[name]
		mapping[name] = renamed
	}

	tb.statements = append(tb.statements, newQuery)
	return mapping
}

// Len returns the number of statements added so far
func (tb *TxBuilder) Len() int {
	return len(tb.statements)
}

// Build returns the complete transaction query and merged variables
func (tb *TxBuilder) Build() (string, map[string]interface{}) {
	if len(tb.statements) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("BEGIN TRANSACTION;\n")
	for _, stmt := range tb.statements {
		sb.WriteString(strings.TrimSpace(stmt))
		if !strings.HasSuffix(strings.TrimSpace(stmt), ";") {
			sb.WriteString(";")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("COMMIT TRANSACTION;")

	return sb.String(), tb.vars
}

// ExecuteTransaction executes a transaction built with TxBuilder
func ExecuteTransaction(ctx context.Context, db Database, tb *TxBuilder) ([]interface{}, error) {
	query, vars := tb.Build()
	if query == "" {
		return nil, nil
	}
	return db.Query(ctx, query, vars)
}

// AtomicBatch provides a fluent API for batch operations that must be atomic
type AtomicBatch struct {
	queries []batchQuery
}

type batchQuery struct {
	query string
	vars  map[string]interface{}
}

// NewAtomicBatch creates a new atomic batch
func NewAtomicBatch() *AtomicBatch {
	return &AtomicBatch{
		queries: make([]batchQuery, 0),
	}
}

// Add adds a query to the batch
func (ab *AtomicBatch) Add(query string, vars map[string]interface{}) *AtomicBatch {
	ab.queries = append(ab.queries, batchQuery{query: query, vars: vars})
	return ab
}

// Execute runs all queries as a single transaction
func (ab *AtomicBatch) Execute(ctx context.Context, db Database) error {
	if len(ab.queries) == 0 {
		return nil
	}

	tb := NewTxBuilder()
	for _, q := range ab.queries {
		tb.Add(q.query, q.vars)
	}

	_, err := ExecuteTransaction(ctx, db, tb)
	return err
}

// Len returns the number of queries in the batch
func (ab *AtomicBatch) Len() int {
	return len(ab.queries)
}
