package report

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"bandalloc/pkg/bands"
	"bandalloc/pkg/store/storetest"

	"github.com/shopspring/decimal"
)

func TestRunReport(t *testing.T) {
	svc := bands.New(storetest.Open(t), decimal.NewFromInt(50))
	ctx := context.Background()
	for _, sub := range []bands.Submission{
		{UserID: "alice", Bands: []int64{2, 1}, Name: "A", Zone: "North", Community: "Hill"},
		{UserID: "alice", Bands: []int64{3}, Name: "A", Zone: "South", Community: "Hill"},
		{UserID: "bob", Bands: []int64{4}, Name: "B", Zone: "North", Community: "Lake"},
	} {
		if _, err := svc.Allocate(ctx, sub); err != nil {
			t.Fatalf("Allocate: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := RunReport(ctx, &buf, svc, "alice", true); err != nil {
		t.Fatalf("RunReport: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Report for user=alice:",
		"zone=North bands=2 total_amount=100.00",
		"zone=South bands=1 total_amount=50.00",
		"bands=3 total_amount=150.00",
		"1|alice|A|North|Hill|50.00|",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "|bob|") {
		t.Errorf("report for alice lists bob's entries:\n%s", out)
	}

	buf.Reset()
	if err := RunReport(ctx, &buf, svc, "", false); err != nil {
		t.Fatalf("RunReport all: %v", err)
	}
	if !strings.Contains(buf.String(), "Report for user=all:") || !strings.Contains(buf.String(), "bands=4 total_amount=200.00") {
		t.Errorf("unexpected report for all:\n%s", buf.String())
	}
}
