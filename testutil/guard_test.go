package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recorder struct{ msg string }

func (r *recorder) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestPredicates(t *testing.T) {
	cases := []struct {
		path        string
		infra, drvr bool
	}{
		{"normative/internal/infra/blob/s3", true, false},
		{"normative/internal/blob", false, false},
		{"github.com/aws/aws-sdk-go-v2/service/s3", false, true},
		{"github.com/aws/aws-sdk-go-v2", false, true},
		{"github.com/aws/aws-sdk-go-v2x", false, false},
		{"github.com/jackc/pgx/v5/stdlib", false, true},
		{"modernc.org/sqlite", false, true},
		{"gonum.org/v1/gonum/stat", false, false},
	}
	both := AnyOf(InfraImport, DriverImport)
	for _, c := range cases {
		if got := InfraImport(c.path); got != c.infra {
			t.Errorf("InfraImport(%q) = %v", c.path, got)
		}
		if got := DriverImport(c.path); got != c.drvr {
			t.Errorf("DriverImport(%q) = %v", c.path, got)
		}
		if got := both(c.path); got != (c.infra || c.drvr) {
			t.Errorf("AnyOf(%q) = %v", c.path, got)
		}
	}
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\nimport _ \"normative/internal/infra/blob/fs\"\n")
	writeFile(t, dir, "b.go", "package tmp\nimport \"fmt\"\nvar _ = fmt.Sprint\n")
	writeFile(t, dir, "a_test.go", "package tmp\nimport _ \"modernc.org/sqlite\"\n")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	viols, err := directImportViolations(dir, AnyOf(InfraImport, DriverImport))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "normative/internal/infra/blob/fs (in a.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}
	AssertNoDirectImports(t, dir, DriverImport, "test files are ignored")

	writeFile(t, dir, "broken.go", "package tmp\nimport (")
	if _, err := directImportViolations(dir, InfraImport); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := directImportViolations(filepath.Join(dir, "missing"), InfraImport); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestTransitiveDependencyViolations(t *testing.T) {
	orig := goListDeps
	t.Cleanup(func() { goListDeps = orig })

	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\nnormative/internal/stats\n\nmodernc.org/sqlite\n"), nil
	}
	viols, _, err := transitiveDependencyViolations(".", DriverImport)
	if err != nil || len(viols) != 1 || viols[0] != "modernc.org/sqlite" {
		t.Fatalf("unexpected %v %v", viols, err)
	}

	goListDeps = func(string) ([]byte, error) { return []byte("boom"), errors.New("exit 1") }
	if _, out, err := transitiveDependencyViolations(".", DriverImport); err == nil || string(out) != "boom" {
		t.Fatalf("expected go list error, got %v %q", err, out)
	}
}

func TestFailIfViolations(t *testing.T) {
	var r recorder
	failIfViolations(&r, "forbidden direct imports", "why", nil)
	if r.msg != "" {
		t.Fatalf("no violations should not fail")
	}
	failIfViolations(&r, "forbidden direct imports", "why", []string{"a", "b"})
	if !strings.Contains(r.msg, "forbidden direct imports detected (why):\na\nb") {
		t.Fatalf("unexpected message %q", r.msg)
	}
}
