package statestore

import (
	"encoding/json"
	"math"
)

// Allowed enum values. Empty complexity/verdict are legal: a session starts
// unscored and unreviewed.
var (
	validStatuses = map[string]bool{
		StatusInProgress:  true,
		StatusComplete:    true,
		StatusFailed:      true,
		StatusInterrupted: true,
		StatusCancelled:   true,
	}
	validComplexities = map[Complexity]bool{
		"":                true,
		ComplexitySimple:  true,
		ComplexityComplex: true,
	}
	validVerdicts = map[Verdict]bool{
		"":                 true,
		VerdictApproved:    true,
		VerdictNeedsRepair: true,
		VerdictRejected:    true,
	}
)

// ValidateBytes checks that raw file contents are a structurally valid
// SessionState document: parseable JSON object, required top-level fields
// present with the right primitive types, enums within their value sets,
// and counters non-negative integers. It enforces structural integrity
// only; cross-field business rules belong to callers.
func ValidateBytes(data []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return &ValidationError{Reason: "not a JSON object: " + err.Error()}
	}

	for _, f := range []string{"session_id", "created_at", "last_updated", "status", "current_task", "complexity", "assigned_agent", "review_verdict"} {
		if err := checkString(doc, f); err != nil {
			return err
		}
	}
	for _, f := range []string{"schema_version", "repair_attempts"} {
		if err := checkNonNegativeInt(doc, f); err != nil {
			return err
		}
	}

	if doc["session_id"] == "" {
		return &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}

	if ad, ok := doc["architectural_design"]; !ok {
		return &ValidationError{Field: "architectural_design", Reason: "missing"}
	} else if _, isObj := ad.(map[string]any); !isObj {
		return &ValidationError{Field: "architectural_design", Reason: "must be an object"}
	}

	status, _ := doc["status"].(string)
	if !validStatuses[status] {
		return &ValidationError{Field: "status", Reason: "unknown value " + status}
	}
	complexity, _ := doc["complexity"].(string)
	if !validComplexities[Complexity(complexity)] {
		return &ValidationError{Field: "complexity", Reason: "unknown value " + complexity}
	}
	verdict, _ := doc["review_verdict"].(string)
	if !validVerdicts[Verdict(verdict)] {
		return &ValidationError{Field: "review_verdict", Reason: "unknown value " + verdict}
	}

	return nil
}

// ValidateState applies the same structural checks to an in-memory document
// before it is persisted, so a caller's malformed mutation never reaches
// disk.
func ValidateState(s *SessionState) error {
	if s == nil {
		return &ValidationError{Reason: "nil document"}
	}
	if s.SessionID == "" {
		return &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	if s.SchemaVersion < 0 {
		return &ValidationError{Field: "schema_version", Reason: "must be non-negative"}
	}
	if s.RepairAttempts < 0 {
		return &ValidationError{Field: "repair_attempts", Reason: "must be non-negative"}
	}
	if !validStatuses[s.Status] {
		return &ValidationError{Field: "status", Reason: "unknown value " + s.Status}
	}
	if !validComplexities[s.Complexity] {
		return &ValidationError{Field: "complexity", Reason: "unknown value " + string(s.Complexity)}
	}
	if !validVerdicts[s.ReviewVerdict] {
		return &ValidationError{Field: "review_verdict", Reason: "unknown value " + string(s.ReviewVerdict)}
	}
	for key, payload := range s.ArchitecturalDesign {
		if !json.Valid(payload) {
			return &ValidationError{Field: "architectural_design." + key, Reason: "payload is not valid JSON"}
		}
	}
	return nil
}

func checkString(doc map[string]any, field string) error {
	v, ok := doc[field]
	if !ok {
		return &ValidationError{Field: field, Reason: "missing"}
	}
	if _, isStr := v.(string); !isStr {
		return &ValidationError{Field: field, Reason: "must be a string"}
	}
	return nil
}

func checkNonNegativeInt(doc map[string]any, field string) error {
	v, ok := doc[field]
	if !ok {
		return &ValidationError{Field: field, Reason: "missing"}
	}
	// encoding/json decodes every number as float64.
	n, isNum := v.(float64)
	if !isNum {
		return &ValidationError{Field: field, Reason: "must be an integer"}
	}
	if n != math.Trunc(n) {
		return &ValidationError{Field: field, Reason: "must be an integer"}
	}
	if n < 0 {
		return &ValidationError{Field: field, Reason: "must be non-negative"}
	}
	return nil
}
