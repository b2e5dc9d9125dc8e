package format_test

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"normative/internal/balance"
	"normative/internal/cohort"
	"normative/internal/format"
	"normative/internal/ledger"
	"normative/internal/stats"
)

func TestTable_ASCIIAndMarkdown(t *testing.T) {
	tb := format.NewTable(format.ASCII, "Groups")
	tb.Header("Group", "Count")
	tb.Row("HC", 10)
	tb.Footer("Total", 10)
	out := tb.String()
	for _, want := range []string{"Groups", "HC", "───"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
	if tb.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", tb.Len())
	}

	md := format.NewTable(format.Markdown, "")
	md.Header("A", "B")
	md.Row(1, 2)
	if out := md.String(); !strings.Contains(out, "| A") || !strings.Contains(out, "---") {
		t.Fatalf("expected markdown table:\n%s", out)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]format.Mode{"": format.ASCII, "ASCII": format.ASCII, "md": format.Markdown, "markdown": format.Markdown} {
		got, err := format.ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := format.ParseMode("html"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestHelpers(t *testing.T) {
	cases := []struct{ got, want string }{
		{format.PValue(0.04321, nil), "0.0432"},
		{format.PValue(0.00001234, nil), "1.234e-05"},
		{format.PValue(0, nil), "0.0000"},
		{format.PValue(0.5, errors.New("x")), "n/a"},
		{format.PValue(math.NaN(), nil), "n/a"},
		{format.Float(71.456), "71.46"},
		{format.Float(math.NaN()), "n/a"},
		{format.Duration(75 * time.Second), "1m 15s"},
		{format.Duration(4 * time.Second), "4s"},
	}
	for i, c := range cases {
		if c.got != c.want {
			t.Errorf("case %d: got %q want %q", i, c.got, c.want)
		}
	}
}

func TestBalanceReport(t *testing.T) {
	hc, ad := balance.Group{Name: "HC", Code: 1}, balance.Group{Name: "AD", Code: 17}
	retained, err := cohort.New([]cohort.Subject{{ParticipantID: "sub-1", Diagnosis: 1}})
	if err != nil {
		t.Fatal(err)
	}
	rep := &balance.Report{
		Before: balance.Summary{
			Groups: []balance.GroupSummary{{Group: hc, Count: 2, MeanAge: 70}, {Group: ad, Count: 1, MeanAge: 75}},
			Gender: []balance.PairTest{{A: hc, B: ad, Statistic: 0.75, PValue: 0.3865}},
			Age:    []balance.PairTest{{A: hc, B: ad, Err: stats.ErrTooFewSamples}},
		},
		Steps:    []balance.Step{{Subject: cohort.Subject{ParticipantID: "sub-9", ImageID: "I9", Diagnosis: 17, Age: 55}}},
		After:    balance.Summary{Groups: []balance.GroupSummary{{Group: hc, Count: 2, MeanAge: 70}, {Group: ad, Count: 0, MeanAge: math.NaN()}}},
		ANOVAErr: stats.ErrTooFewSamples,
		Retained: retained,
	}
	var buf bytes.Buffer
	if err := format.BalanceReport(&buf, rep, format.ASCII); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Before balancing", "0.3865", "Removed subjects", "sub-9", "Omnibus tests", "n/a", "1 subjects removed, 1 retained"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in report:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Age t-test after trimming") {
		t.Errorf("empty after-trim table should be omitted:\n%s", out)
	}
}

func TestLedgerListings(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p := 0.42
	var buf bytes.Buffer
	err := format.ReplicaRuns(&buf, []ledger.ReplicaRun{
		{Dataset: "ADNI", Model: "supervised_aae", Replica: 7, Status: ledger.StatusSucceeded, Subjects: 10, LatentDim: 2, MeanError: 0.5, Attempts: 1, StartedAt: start, FinishedAt: start.Add(90 * time.Second)},
		{Dataset: "ADNI", Model: "supervised_aae", Replica: 8, Status: ledger.StatusFailed, Attempts: 2, Error: strings.Repeat("e", 80)},
	}, format.ASCII)
	if err != nil {
		t.Fatalf("replicas: %v", err)
	}
	if err := format.BalanceRuns(&buf, []ledger.BalanceRun{{ID: "abc", Dataset: "ADNI", CreatedAt: start, Input: 5, Retained: 4, ChiSquareP: &p}}, format.Markdown); err != nil {
		t.Fatalf("balances: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"007", "1m 30s", "1 FAILED", "...", "0.4200", "n/a", "2024-05-01 10:00:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}
