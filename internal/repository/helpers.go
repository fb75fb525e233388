package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forgo/canvas/internal/database"
	"github.com/shopspring/decimal"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

// isUniqueConstraintError checks if an error is a unique index violation
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, database.ErrDuplicate) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "unique") ||
		strings.Contains(errStr, "already contains") ||
		strings.Contains(errStr, "already exists")
}

// recordID qualifies a bare id with its table ("abc" -> "asset:abc")
func recordID(table, id string) string {
	if strings.Contains(id, ":") {
		return id
	}
	return table + ":" + id
}

// surrealDuration renders a duration in SurrealQL duration syntax
func surrealDuration(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// convertSurrealID converts a SurrealDB ID (which may be a complex object) to a string
func convertSurrealID(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case models.RecordID:
		return fmt.Sprintf("%s:%v", v.Table, v.ID)
	case *models.RecordID:
		if v != nil {
			return fmt.Sprintf("%s:%v", v.Table, v.ID)
		}
	case map[string]interface{}:
		// {"tb": "user", "id": {"String": "demo"}} and similar
		tb := ""
		for _, key := range []string{"tb", "TB", "Table"} {
			if t, ok := v[key].(string); ok {
				tb = t
				break
			}
		}
		idPart := ""
		if idVal, ok := v["id"]; ok {
			idPart = extractIDValue(idVal)
		} else if idVal, ok := v["ID"]; ok {
			idPart = extractIDValue(idVal)
		}
		if tb != "" && idPart != "" {
			return tb + ":" + idPart
		}
		if idPart != "" {
			return idPart
		}
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", id)
}

// extractIDValue extracts the ID value which may be nested
func extractIDValue(val interface{}) string {
	if str, ok := val.(string); ok {
		return str
	}
	if m, ok := val.(map[string]interface{}); ok {
		if s, ok := m["String"].(string); ok {
			return s
		}
		if s, ok := m["string"].(string); ok {
			return s
		}
	}
	return fmt.Sprintf("%v", val)
}

// asRecord unwraps a QueryOne/Query result into a single field map
func asRecord(result interface{}) (map[string]interface{}, error) {
	if result == nil {
		return nil, database.ErrNotFound
	}

	if resp, ok := result.(map[string]interface{}); ok {
		if status, ok := resp["status"].(string); ok && status == "OK" {
			if resultData, ok := resp["result"].([]interface{}); ok {
				if len(resultData) == 0 {
					return nil, database.ErrNotFound
				}
				result = resultData[0]
			}
		}
	}

	if arr, ok := result.([]interface{}); ok {
		if len(arr) == 0 {
			return nil, database.ErrNotFound
		}
		result = arr[0]
	}

	data, ok := result.(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected result format")
	}
	return data, nil
}

// extractQueryResults extracts the record list of the first statement
func extractQueryResults(result []interface{}) []map[string]interface{} {
	if len(result) == 0 {
		return nil
	}

	var rows []interface{}
	if first, ok := result[0].(map[string]interface{}); ok {
		if arr, ok := first["result"].([]interface{}); ok {
			rows = arr
		}
	}

	out := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		if m, ok := r.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// getString extracts a string value from a map
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// getStringPtr extracts an optional string value from a map
func getStringPtr(m map[string]interface{}, key string) *string {
	if v, ok := m[key].(string); ok && v != "" {
		return &v
	}
	return nil
}

// getInt64 extracts an integer value from a map
func getInt64(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case uint64:
		return int64(v)
	}
	return 0
}

// getBool extracts a bool value from a map
func getBool(m map[string]interface{}, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

// getDecimal extracts a decimal value; SurrealDB decimals arrive as strings
// over CBOR, numbers arrive as float64 or ints.
func getDecimal(m map[string]interface{}, key string) (decimal.Decimal, bool) {
	switch v := m[key].(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case float64:
		return decimal.NewFromFloat(v), true
	case int64:
		return decimal.NewFromInt(v), true
	case uint64:
		return decimal.NewFromInt(int64(v)), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	}
	return decimal.Zero, false
}

// getDecimalPtr extracts an optional decimal value
func getDecimalPtr(m map[string]interface{}, key string) *decimal.Decimal {
	if d, ok := getDecimal(m, key); ok {
		return &d
	}
	return nil
}

// getTime extracts a time value from a map
func getTime(m map[string]interface{}, key string) *time.Time {
	switch v := m[key].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return &t
		}
	case time.Time:
		return &v
	case models.CustomDateTime:
		t := v.Time
		return &t
	case *models.CustomDateTime:
		if v != nil {
			t := v.Time
			return &t
		}
	}
	return nil
}

// getTimeValue extracts a time value, zero if absent
func getTimeValue(m map[string]interface{}, key string) time.Time {
	if t := getTime(m, key); t != nil {
		return *t
	}
	return time.Time{}
}

// optional converts a nil pointer to a SurrealDB NONE-compatible nil
func optional[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
