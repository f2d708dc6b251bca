package ledger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestWriter_AppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrated.jsonl")

	w, err := OpenWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := []Outcome{
		{WorkOSUserID: "user_01", Auth0UserID: "auth0|aaa", Created: true},
		{WorkOSUserID: "user_02", Auth0UserID: "auth0|bbb", Created: false},
	}
	for _, o := range lines {
		if err := w.Append(o); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var got []Outcome
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var o Outcome
		if err := json.Unmarshal(sc.Bytes(), &o); err != nil {
			t.Fatalf("line not valid JSON: %v", err)
		}
		got = append(got, o)
	}
	if len(got) != len(lines) {
		t.Fatalf("expected %d lines, got %d", len(lines), len(got))
	}
	for i := range lines {
		if got[i] != lines[i] {
			t.Fatalf("line %d: got %+v want %+v", i, got[i], lines[i])
		}
	}
}

func TestWriter_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrated.jsonl")
	for run := 0; run < 2; run++ {
		w, err := OpenWriter(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := w.Append(Outcome{WorkOSUserID: "user_01", Auth0UserID: "auth0|a", Created: run == 0}); err != nil {
			t.Fatal(err)
		}
		w.Close()
	}
	n, err := CountLines(path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 lines across runs, got %d", n)
	}
}

func TestWriter_ConcurrentAppendsStayWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrated.jsonl")
	w, err := OpenWriter(path)
	if err != nil {
		t.Fatal(err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = w.Append(Outcome{WorkOSUserID: "user", Auth0UserID: "auth0|x", Created: true})
		}(i)
	}
	wg.Wait()
	w.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	count := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var o Outcome
		if err := json.Unmarshal(sc.Bytes(), &o); err != nil {
			t.Fatalf("interleaved write produced invalid line: %q", sc.Text())
		}
		count++
	}
	if count != n {
		t.Fatalf("expected %d whole lines, got %d", n, count)
	}
}

func TestCountLines_MissingFile(t *testing.T) {
	n, err := CountLines(filepath.Join(t.TempDir(), "nope.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected 0 for missing file, got %d", n)
	}
}

func TestCountLines_SkipsBlank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "l.jsonl")
	if err := os.WriteFile(path, []byte("{\"a\":1}\n\n{\"b\":2}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	n, err := CountLines(path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
}
