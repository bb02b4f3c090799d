package main

import (
	"strings"
	"testing"
	"time"
)

func TestParseBars(t *testing.T) {
	in := `time,open,high,low,close,volume
2024-03-01 00:00,1.10,1.12,1.09,1.11,150
1709254800,1.11,1.13,1.10,1.12,90

2024-03-01T02:00:00Z,1.12,1.14,1.11,1.13
`
	bars, err := parseBars(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 3 {
		t.Fatalf("bars = %d, want 3", len(bars))
	}
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, b := range bars {
		if want := base.Add(time.Duration(i) * time.Hour); !b.TS.Equal(want) {
			t.Errorf("bar %d ts = %v, want %v", i, b.TS, want)
		}
	}
	if bars[0].Close != 1.11 || bars[0].Volume != 150 {
		t.Errorf("bar 0 = %+v", bars[0])
	}
	if bars[2].Volume != 0 {
		t.Errorf("missing volume should be 0, got %v", bars[2].Volume)
	}
}

func TestParseBars_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"bad price", "2024-03-01,1,2,x,1\n2024-03-02,1,2,0,1\n2024-03-03,1,2,x,1\n"},
		{"short row", "2024-03-01,1,2,0,1\n2024-03-02,1,2\n"},
		{"bad time", "2024-03-01,1,2,0,1\nyesterday,1,2,0,1\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseBars(strings.NewReader(tc.in)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
