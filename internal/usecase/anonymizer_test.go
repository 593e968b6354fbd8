package usecase

import (
	"errors"
	"testing"
	"time"
)

func TestAnonymizeDataForAnalyticsAppliesRules(t *testing.T) {
	anonymizer, err := NewAnonymizer("pepper", nil)
	if err != nil {
		t.Fatalf("new anonymizer: %v", err)
	}

	submitted := time.Date(2025, time.February, 14, 16, 30, 0, 0, time.UTC)
	input := []map[string]any{{
		"user_id":      "user-1",
		"email":        "jane.doe@example.com",
		"ip_address":   "203.0.113.7",
		"phone":        "+254700123456",
		"age":          37,
		"submitted_at": submitted,
		"score":        82,
	}}

	out, err := anonymizer.AnonymizeDataForAnalytics(input)
	if err != nil {
		t.Fatalf("anonymize: %v", err)
	}
	record := out[0]

	hashed, _ := record["user_id"].(string)
	if len(hashed) != hashedValueLength || hashed == "user-1" {
		t.Fatalf("expected hashed user id, got %v", record["user_id"])
	}
	if record["email"] == "jane.doe@example.com" || record["ip_address"] != "203.0.*.*" {
		t.Fatalf("expected masked contact fields, got %v %v", record["email"], record["ip_address"])
	}
	if _, ok := record["phone"]; ok {
		t.Fatalf("expected phone removed")
	}
	if record["age"] != "30-39" || record["submitted_at"] != "2025-02" {
		t.Fatalf("expected generalized values, got %v %v", record["age"], record["submitted_at"])
	}
	if record["score"] != 82 {
		t.Fatalf("expected score kept, got %v", record["score"])
	}
	if input[0]["email"] != "jane.doe@example.com" {
		t.Fatalf("expected input left untouched")
	}

	again, _ := anonymizer.AnonymizeDataForAnalytics([]map[string]any{{"user_id": "user-1"}})
	if again[0]["user_id"] != hashed {
		t.Fatalf("expected stable hashes for joins")
	}
	other, _ := NewAnonymizer("salt", nil)
	salted, _ := other.AnonymizeDataForAnalytics([]map[string]any{{"user_id": "user-1"}})
	if salted[0]["user_id"] == hashed {
		t.Fatalf("expected salt to change the hash")
	}
}

func TestAnonymizerRejectsUndeclaredFields(t *testing.T) {
	anonymizer, _ := NewAnonymizer("pepper", map[string]AnonymizationRule{"score": RuleKeep})

	_, err := anonymizer.AnonymizeDataForAnalytics([]map[string]any{
		{"score": 1},
		{"score": 2, "national_id": "A1234567"},
	})
	if !errors.Is(err, ErrUndeclaredField) {
		t.Fatalf("expected undeclared field rejected, got %v", err)
	}
}

func TestNewAnonymizerRejectsUnknownRule(t *testing.T) {
	if _, err := NewAnonymizer("pepper", map[string]AnonymizationRule{"email": "scramble"}); err == nil {
		t.Fatalf("expected unknown rule rejected")
	}
}

func TestGeneralizeCoarsensValues(t *testing.T) {
	cases := []struct {
		field string
		value any
		want  any
	}{
		{"age", "24", "20-29"},
		{"postal_code", "00100", "001*"},
		{"created_at", "2024-11-03T10:00:00Z", "2024-11"},
		{"income", 5432.0, 5430},
		{"region", "KE", "KE"},
		{"city", "Zürich", "Zür*"},
		{"district", "東京都港区", "東京都*"},
	}
	for _, tc := range cases {
		if got := generalize(tc.field, tc.value); got != tc.want {
			t.Fatalf("generalize(%s, %v) = %v, want %v", tc.field, tc.value, got, tc.want)
		}
	}
}
