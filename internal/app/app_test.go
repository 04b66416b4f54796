package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/vjranagit/histextract/pkg/csvout"
	"github.com/vjranagit/histextract/pkg/storage"
	"github.com/vjranagit/histextract/pkg/types"
)

func writeExport(t *testing.T, path string, req *types.ImportRequest) {
	t.Helper()
	w, err := storage.NewExportWriter(path)
	if err != nil {
		t.Fatalf("Failed to create export: %v", err)
	}
	if err := w.AppendRequest(req); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close export: %v", err)
	}
}

func rimRequest() *types.ImportRequest {
	req := &types.ImportRequest{
		Steps: []string{"Step-1", "Step-2"},
		NodeSets: []types.NodeSetRecord{
			{Instance: "PART-1-1", Name: "LOWER_RIM_REFERENCE_POINT", Nodes: []int{1}},
			{Instance: "PART-1-1", Name: "UPPER_RIM_REFERENCE_POINT", Nodes: []int{2}},
			{Instance: "PART-1-1", Name: "ROAD_REFERENCE_POINT", Nodes: []int{3}},
		},
	}
	req.History = append(req.History,
		types.HistoryRecord{Step: "Step-1", Instance: "PART-1-1", Node: 1, Variable: "RF1", Data: types.Series{{Time: 0, Value: 1}, {Time: 1, Value: 5}}},
		types.HistoryRecord{Step: "Step-1", Instance: "PART-1-1", Node: 2, Variable: "RF1", Data: types.Series{{Time: 0, Value: 1}, {Time: 1, Value: 5}}},
		types.HistoryRecord{Step: "Step-2", Instance: "PART-1-1", Node: 1, Variable: "RF1", Data: types.Series{{Time: 1, Value: 2}, {Time: 2, Value: 2}}},
		types.HistoryRecord{Step: "Step-2", Instance: "PART-1-1", Node: 2, Variable: "RF1", Data: types.Series{{Time: 1, Value: 1}, {Time: 2, Value: 2}}},
		types.HistoryRecord{Step: "Step-1", Instance: "PART-1-1", Node: 3, Variable: "U3", Data: types.Series{{Time: 0, Value: 0}, {Time: 1, Value: -0.5}}},
	)
	return req
}

func TestExtractUsage(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		code int
	}{
		{"no args", nil, 2},
		{"one arg", []string{"result.jsonl"}, 2},
		{"three args", []string{"a", "b", "c"}, 2},
		{"unknown flag", []string{"-nope", "a", "b"}, 2},
		{"nested subdir", []string{"-subdir", "a/b", "r", "w"}, 2},
		{"help", []string{"-h"}, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := Extract(tc.args, &stdout, &stderr); code != tc.code {
				t.Errorf("Expected exit %d, got %d (stderr: %s)", tc.code, code, stderr.String())
			}
			if !strings.Contains(stderr.String(), "Usage: histextract") && tc.name != "nested subdir" {
				t.Errorf("Expected usage on stderr, got %q", stderr.String())
			}
		})
	}
}

func TestExtractVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := Extract([]string{"-version"}, &stdout, &stderr); code != 0 {
		t.Fatalf("Expected exit 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), Version) {
		t.Errorf("Expected version in output, got %q", stdout.String())
	}
}

func TestExtractFromExport(t *testing.T) {
	dir := t.TempDir()
	export := filepath.Join(dir, "run.jsonl.zst")
	writeExport(t, export, rimRequest())

	workdir := filepath.Join(dir, "work")
	var stdout, stderr bytes.Buffer
	if code := Extract([]string{export, workdir}, &stdout, &stderr); code != 0 {
		t.Fatalf("Expected exit 0, got %d (stderr: %s)", code, stderr.String())
	}

	out := filepath.Join(workdir, "temp")
	fx, err := csvout.Read(filepath.Join(out, "FX.csv"))
	if err != nil {
		t.Fatalf("Failed to read FX.csv: %v", err)
	}
	if diff := cmp.Diff(types.Series{{Time: 0, Value: 2}, {Time: 1, Value: 13}, {Time: 2, Value: 4}}, fx); diff != "" {
		t.Errorf("Unexpected FX (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatalf("Failed to read output dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if diff := cmp.Diff([]string{"FX.csv", "U3.csv"}, names); diff != "" {
		t.Errorf("Unexpected outputs (-want +got):\n%s", diff)
	}

	log := stdout.String()
	for _, want := range []string{"Found node set: LOWER_RIM_REFERENCE_POINT", "YES", "Done!", "run_id="} {
		if !strings.Contains(log, want) {
			t.Errorf("Expected %q in log output", want)
		}
	}
}

func TestExtractNoReferencePoints(t *testing.T) {
	dir := t.TempDir()
	export := filepath.Join(dir, "run.jsonl")
	writeExport(t, export, &types.ImportRequest{
		Steps:    []string{"Step-1"},
		NodeSets: []types.NodeSetRecord{{Instance: "PART-1-1", Name: "TREAD", Nodes: []int{7}}},
	})

	var stdout, stderr bytes.Buffer
	if code := Extract([]string{export, dir}, &stdout, &stderr); code != 0 {
		t.Fatalf("Expected exit 0, got %d (stderr: %s)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "None of the required node sets found") {
		t.Errorf("Expected error diagnostic in log, got %q", stdout.String())
	}
	if strings.Contains(stdout.String(), "Done!") {
		t.Error("Run should stop before writing outputs")
	}

	entries, err := os.ReadDir(filepath.Join(dir, "temp"))
	if err != nil {
		t.Fatalf("Failed to read output dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no CSV files, got %d", len(entries))
	}
}

func TestExtractMissingResult(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	if code := Extract([]string{filepath.Join(dir, "missing.odb"), dir}, &stdout, &stderr); code != 1 {
		t.Errorf("Expected exit 1, got %d", code)
	}
}

func TestExtractPlainDirectory(t *testing.T) {
	dir := t.TempDir()
	odb := filepath.Join(dir, "job.odb")
	if err := os.WriteFile(odb, []byte("odb"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if code := Extract([]string{dir, t.TempDir()}, &stdout, &stderr); code != 1 {
		t.Fatalf("Expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "failed to open result") {
		t.Errorf("Unexpected stderr: %q", stderr.String())
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Result directory should be left unchanged, got %d entries", len(entries))
	}
}

func TestStoreImportExportInfo(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	export := filepath.Join(dir, "run.jsonl")
	writeExport(t, export, rimRequest())
	storeDir := filepath.Join(dir, "store")

	var stdout, stderr bytes.Buffer
	if code := Store(ctx, []string{"import", export, storeDir}, &stdout, &stderr); code != 0 {
		t.Fatalf("Import failed with %d: %s", code, stderr.String())
	}

	stdout.Reset()
	if code := Store(ctx, []string{"info", storeDir}, &stdout, &stderr); code != 0 {
		t.Fatalf("Info failed with %d: %s", code, stderr.String())
	}
	info := stdout.String()
	for _, want := range []string{"Regions: 5", "Steps:   2", "PART-1-1.ROAD_REFERENCE_POINT (1 nodes)"} {
		if !strings.Contains(info, want) {
			t.Errorf("Expected %q in info output:\n%s", want, info)
		}
	}

	roundTrip := filepath.Join(dir, "copy.jsonl.zst")
	if code := Store(ctx, []string{"export", storeDir, roundTrip}, &stdout, &stderr); code != 0 {
		t.Fatalf("Export failed with %d: %s", code, stderr.String())
	}

	// the extracted result is the same from the store and from its export
	for _, result := range []string{storeDir, roundTrip} {
		workdir := t.TempDir()
		if code := Extract([]string{result, workdir}, &stdout, &stderr); code != 0 {
			t.Fatalf("Extract from %s failed with %d: %s", result, code, stderr.String())
		}
		fx, err := csvout.Read(filepath.Join(workdir, "temp", "FX.csv"))
		if err != nil {
			t.Fatalf("Failed to read FX.csv: %v", err)
		}
		if diff := cmp.Diff(types.Series{{Time: 0, Value: 2}, {Time: 1, Value: 13}, {Time: 2, Value: 4}}, fx); diff != "" {
			t.Errorf("Unexpected FX from %s (-want +got):\n%s", result, diff)
		}
	}
}

func TestStoreUsage(t *testing.T) {
	dir := t.TempDir()
	testCases := []struct {
		name string
		args []string
		code int
	}{
		{"no args", nil, 2},
		{"unknown", []string{"compact", dir}, 2},
		{"import arity", []string{"import", "a.jsonl"}, 2},
		{"info arity", []string{"info"}, 2},
		{"help", []string{"help"}, 0},
		{"missing store", []string{"info", filepath.Join(dir, "nope")}, 1},
		{"missing export", []string{"import", filepath.Join(dir, "nope.jsonl"), filepath.Join(dir, "s")}, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := Store(context.Background(), tc.args, &stdout, &stderr); code != tc.code {
				t.Errorf("Expected exit %d, got %d (stderr: %s)", tc.code, code, stderr.String())
			}
		})
	}
}
