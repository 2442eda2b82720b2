package service

import (
	"errors"
	"testing"

	"github.com/mirella/binsight/internal/domain"
)

func TestPayloadToOutcome(t *testing.T) {
	tests := []struct {
		name     string
		payload  classifierPayload
		wantKind domain.OutcomeKind
		wantErr  bool
		check    func(t *testing.T, o *domain.Outcome)
	}{
		{
			name: "plain classification",
			payload: classifierPayload{
				ItemName:     "Glass jar",
				Category:     "recyclable",
				Confidence:   0.91,
				Instructions: "Rinse and recycle.",
				ItemCount:    2,
			},
			wantKind: domain.OutcomeClassified,
			check: func(t *testing.T, o *domain.Outcome) {
				if o.Category != domain.CategoryRecyclable || o.ItemCount != 2 {
					t.Errorf("outcome = %+v", o)
				}
			},
		},
		{
			name: "rejection wins over everything else",
			payload: classifierPayload{
				IsRejection:        true,
				RejectionReason:    "not a waste item",
				NeedsClarification: true,
				IsCityExcluded:     true,
				Category:           "recyclable",
			},
			wantKind: domain.OutcomeInvalidScan,
		},
		{
			name: "city exclusion wins over clarification",
			payload: classifierPayload{
				IsCityExcluded:     true,
				NeedsClarification: true,
				ItemName:           "Car battery",
				Category:           "hazardous",
				Confidence:         0.8,
			},
			wantKind: domain.OutcomeCityExcluded,
		},
		{
			name: "clarification with best guess",
			payload: classifierPayload{
				NeedsClarification:    true,
				ClarificationQuestion: "Paper or plastic?",
				ItemName:              "Cup",
				Category:              "general",
				BestGuessCategory:     "recyclable",
				Confidence:            0.5,
			},
			wantKind: domain.OutcomeNeedsClarification,
			check: func(t *testing.T, o *domain.Outcome) {
				if o.BestGuessCategory != domain.CategoryRecyclable {
					t.Errorf("best guess = %q", o.BestGuessCategory)
				}
			},
		},
		{
			name: "unknown best guess falls back to category",
			payload: classifierPayload{
				NeedsClarification: true,
				Category:           "organic",
				BestGuessCategory:  "mystery",
			},
			wantKind: domain.OutcomeNeedsClarification,
			check: func(t *testing.T, o *domain.Outcome) {
				if o.BestGuessCategory != domain.CategoryOrganic {
					t.Errorf("best guess = %q", o.BestGuessCategory)
				}
			},
		},
		{
			name: "legacy trash category normalized",
			payload: classifierPayload{
				ItemName: "Chip bag",
				Category: "trash",
			},
			wantKind: domain.OutcomeClassified,
			check: func(t *testing.T, o *domain.Outcome) {
				if o.Category != domain.CategoryGeneral {
					t.Errorf("category = %q, want general", o.Category)
				}
			},
		},
		{
			name: "unknown category is a parse error",
			payload: classifierPayload{
				ItemName: "Thing",
				Category: "miscellaneous",
			},
			wantErr: true,
		},
		{
			name: "confidence clamped and item count floored",
			payload: classifierPayload{
				ItemName:   "Bottle",
				Category:   "recyclable",
				Confidence: 1.7,
				ItemCount:  0,
			},
			wantKind: domain.OutcomeClassified,
			check: func(t *testing.T, o *domain.Outcome) {
				if o.Confidence != 1.0 {
					t.Errorf("confidence = %v, want clamped to 1", o.Confidence)
				}
				if o.ItemCount != 1 {
					t.Errorf("item count = %d, want 1", o.ItemCount)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := payloadToOutcome(&tc.payload)
			if tc.wantErr {
				if !errors.Is(err, domain.ErrProviderParse) {
					t.Fatalf("err = %v, want ErrProviderParse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Kind != tc.wantKind {
				t.Fatalf("kind = %v, want %v", out.Kind, tc.wantKind)
			}
			if tc.check != nil {
				tc.check(t, out)
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare json", in: `{"a":1}`, want: `{"a":1}`},
		{name: "json fence", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "plain fence", in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "surrounding whitespace", in: "  {\"a\":1}\n", want: `{"a":1}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripFences(tc.in); got != tc.want {
				t.Errorf("stripFences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestMimeType(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{format: "jpg", want: "image/jpeg"},
		{format: "jpeg", want: "image/jpeg"},
		{format: "png", want: "image/png"},
		{format: "webp", want: "image/webp"},
		{format: "tiff", want: "image/jpeg"},
	}
	for _, tc := range tests {
		if got := mimeType(tc.format); got != tc.want {
			t.Errorf("mimeType(%q) = %q, want %q", tc.format, got, tc.want)
		}
	}
}
