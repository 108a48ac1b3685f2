package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGo(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLinterFindsProblems(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "package q\n\nconst QOk = `--sql 3f1d2c4b-5a6e-4f70-8a9b-0c1d2e3f4a5b\nselect 1`\n\nconst QBare = `select * from generation_jobs`\n\nconst notSQL = \"hello\"\n")
	writeGo(t, dir, "b.go", "package q\n\nconst QDup = `--sql 3f1d2c4b-5a6e-4f70-8a9b-0c1d2e3f4a5b\nupdate generation_jobs set error = null`\n")
	writeGo(t, dir, "b_test.go", "package q\n\nconst QIgnored = `delete from generated_images`\n")

	l := newLinter()
	if err := l.lintTarget(dir); err != nil {
		t.Fatalf("lintTarget: %v", err)
	}
	if l.checked != 3 {
		t.Fatalf("checked = %d, want 3", l.checked)
	}
	if len(l.violations) != 2 {
		t.Fatalf("violations = %+v", l.violations)
	}
	var msgs []string
	for _, v := range l.violations {
		msgs = append(msgs, v.name+": "+v.message)
	}
	joined := strings.Join(msgs, "\n")
	if !strings.Contains(joined, "QBare: missing or invalid") || !strings.Contains(joined, "QDup: marker 3f1d2c4b") {
		t.Fatalf("violations:\n%s", joined)
	}
}

func TestLinterAcceptsRepositoryQueries(t *testing.T) {
	l := newLinter()
	if err := l.lintTarget(filepath.Join("..", "..", "sqlinline")); err != nil {
		t.Fatalf("lintTarget: %v", err)
	}
	if len(l.violations) != 0 {
		t.Fatalf("violations in sqlinline: %+v", l.violations)
	}
	if l.checked == 0 {
		t.Fatal("no statements checked")
	}
}
