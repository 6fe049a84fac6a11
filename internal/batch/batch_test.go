package batch

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/freeeve/chesseval/internal/eval"
	"github.com/freeeve/chesseval/internal/uci"
)

type stubSearcher struct {
	results map[string]eval.SearchResult
	errs    map[string]error
	seen    []string
}

func (s *stubSearcher) GetBestMoves(ctx context.Context, fen string, req eval.SearchRequest) (eval.SearchResult, error) {
	s.seen = append(s.seen, fen)
	if err, ok := s.errs[fen]; ok {
		return eval.SearchResult{}, err
	}
	return s.results[fen], nil
}

func ptr[T any](v T) *T { return &v }

func readCSV(t *testing.T, data string) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v\n%s", err, data)
	}
	return rows
}

func TestRunWritesRows(t *testing.T) {
	s := &stubSearcher{
		results: map[string]eval.SearchResult{
			"fen-a": {
				Moves: []eval.BestMove{
					{UCIMove: "e2e4", Algebraic: "e4", Score: ptr(0.33)},
					{UCIMove: "h5f7", Algebraic: "Qxf7#", MateInPlies: ptr(1)},
				},
				Depth: 12, Nodes: 5000, TimeMs: 40,
			},
			"fen-draw": {Moves: []eval.BestMove{}, DrawReason: "stalemate"},
		},
		errs: map[string]error{
			"fen-bad": fmt.Errorf("%w: fen-bad", eval.ErrInvalidPosition),
		},
	}
	in := "# header comment\nfen-a\n\n  fen-draw  \nfen-bad\n"
	var out bytes.Buffer

	stats, err := Run(context.Background(), Config{Logger: zerolog.Nop()}, s, strings.NewReader(in), &out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats != (Stats{Positions: 3, Rows: 4, Failed: 1, Draws: 1}) {
		t.Errorf("stats = %+v", stats)
	}
	if strings.Join(s.seen, ",") != "fen-a,fen-draw,fen-bad" {
		t.Errorf("searched %v", s.seen)
	}

	rows := readCSV(t, out.String())
	want := [][]string{
		Header,
		{"fen-a", "1", "e2e4", "e4", "0.33", "", "", "12", "5000", "40", ""},
		{"fen-a", "2", "h5f7", "Qxf7#", "", "1", "", "12", "5000", "40", ""},
		{"fen-draw", "0", "", "", "0.00", "", "stalemate", "0", "0", "0", ""},
	}
	if len(rows) != len(want)+1 {
		t.Fatalf("got %d rows:\n%s", len(rows), out.String())
	}
	for i, w := range want {
		if strings.Join(rows[i], "|") != strings.Join(w, "|") {
			t.Errorf("row %d = %q, want %q", i, rows[i], w)
		}
	}
	last := rows[len(rows)-1]
	if last[0] != "fen-bad" || !strings.Contains(last[10], "invalid position") {
		t.Errorf("error row = %q", last)
	}
}

func TestRunAbortsWhenEngineNotReady(t *testing.T) {
	s := &stubSearcher{
		results: map[string]eval.SearchResult{"fen-a": {Moves: []eval.BestMove{{UCIMove: "e2e4"}}}},
		errs:    map[string]error{"fen-b": fmt.Errorf("%w (state failed)", uci.ErrNotReady)},
	}
	var out bytes.Buffer
	_, err := Run(context.Background(), Config{Logger: zerolog.Nop()}, s, strings.NewReader("fen-a\nfen-b\nfen-c\n"), &out)
	if !errors.Is(err, eval.ErrNotReady) {
		t.Fatalf("Run err = %v, want ErrNotReady", err)
	}
	for _, fen := range s.seen {
		if fen == "fen-c" {
			t.Error("batch continued after the engine failed")
		}
	}
}

func TestFilesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	const fens = "fen-1\nfen-2\n"

	for _, name := range []string{"plain.txt", "out.csv.zst"} {
		path := filepath.Join(dir, name)
		w, err := CreateOutput(path)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, fens); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}

		r, err := OpenInput(path)
		if err != nil {
			t.Fatal(err)
		}
		got, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != fens {
			t.Errorf("%s: read back %q", name, got)
		}
	}

	// gzip input
	gzPath := filepath.Join(dir, "in.txt.gz")
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = io.WriteString(gz, fens)
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(gzPath, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := OpenInput(gzPath)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil || string(got) != fens {
		t.Errorf("gzip read back %q, %v", got, err)
	}

	if _, err := OpenInput(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("OpenInput on a missing file succeeded")
	}
}

type failingCloser struct {
	bytes.Buffer
	closed bool
}

func (f *failingCloser) Close() error {
	f.closed = true
	return errors.New("flush failed")
}

func TestRunAndCloseReportsCloseFailure(t *testing.T) {
	s := &stubSearcher{results: map[string]eval.SearchResult{
		"fen-a": {Moves: []eval.BestMove{{UCIMove: "e2e4", Score: ptr(0.1)}}},
	}}
	out := &failingCloser{}
	stats, err := RunAndClose(context.Background(), Config{Logger: zerolog.Nop()}, s, strings.NewReader("fen-a\n"), out)
	if !out.closed {
		t.Fatal("output not closed")
	}
	if err == nil || !strings.Contains(err.Error(), "flush failed") {
		t.Fatalf("err = %v, want close failure", err)
	}
	if stats.Positions != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
