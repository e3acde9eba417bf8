package handler

import (
	"testing"

	"github.com/makeasinger/jobctl/internal/model"
)

func TestParseRangePath(t *testing.T) {
	tests := []struct {
		raw     string
		want    rangePath
		wantErr bool
	}{
		{"0..10", rangePath{bounds: model.Range{From: 0, To: 10}, order: model.OrderAsc}, false},
		{"0..-1/desc", rangePath{bounds: model.Range{From: 0, To: -1}, order: model.OrderDesc}, false},
		{"failed/5..9", rangePath{state: model.JobStateFailed, bounds: model.Range{From: 5, To: 9}, order: model.OrderAsc}, false},
		{"email/complete/0..3/asc", rangePath{jobType: "email", state: model.JobStateComplete, bounds: model.Range{From: 0, To: 3}, order: model.OrderAsc}, false},
		{"0..x", rangePath{}, true},
		{"a..b/desc", rangePath{}, true},
		{"paused/0..3", rangePath{}, true},
		{"0..3/sideways", rangePath{}, true},
		{"email/inactive/extra/0..3", rangePath{}, true},
		{"0..3/asc/more", rangePath{}, true},
		{"inactive", rangePath{}, true},
	}

	for _, tt := range tests {
		got, err := parseRangePath(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseRangePath(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseRangePath(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}
