package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rawblock/ring-engine/pkg/models"
)

const cycleCSV = "transaction_id,sender_id,receiver_id,amount,timestamp\n" +
	"T1,A,B,500,2024-03-01 09:00:00\n" +
	"T2,B,C,480,2024-03-01 10:00:00\n" +
	"T3,C,A,460,2024-03-01 11:00:00\n"

func TestRunAnalyze_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tx.csv")
	if err := os.WriteFile(path, []byte(cycleCSV), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runAnalyze([]string{path}, nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var report models.DetectionReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("output is not a report: %v", err)
	}
	if len(report.FraudRings) != 1 || report.FraudRings[0].RingID != "RING_001" {
		t.Errorf("Expected one RING_001. Got: %+v", report.FraudRings)
	}
}

func TestRunAnalyze_StdinAndOutputFile(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "report.json")

	if err := runAnalyze([]string{"-o", outPath, "-"}, strings.NewReader(cycleCSV), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"pattern_type": "cycle"`) {
		t.Errorf("Expected a cycle ring in the written report. Got: %s", raw)
	}
}

func TestRunAnalyze_Errors(t *testing.T) {
	if err := runAnalyze(nil, nil, nil); err == nil {
		t.Error("Expected an error without an input file")
	}
	if err := runAnalyze([]string{"-"}, strings.NewReader("transaction_id,amount\n"), &bytes.Buffer{}); err == nil {
		t.Error("Expected a schema error")
	}
}
