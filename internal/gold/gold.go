// Package gold implements golden files.
package gold

import (
	"bytes"
	"flag"
	"os"
	"path"
	"path/filepath"
	"testing"
)

const defaultDir = "_golden"

// Update reports whether golden files update is requested.
//
// Call Init() in TestMain to propagate.
var Update bool

// Init should be called in TestMain.
func Init() {
	flag.BoolVar(&Update, "update", false, "update golden files")
}

// Path returns path to golden file.
func Path(elems ...string) string {
	return filepath.Join(
		append([]string{defaultDir}, elems...)...,
	)
}

// ReadFile reads golden file.
func ReadFile(t testing.TB, elems ...string) []byte {
	t.Helper()

	p := Path(elems...)
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("golden file %s: %+v", path.Join(elems...), err)
	}

	return data
}

func writeFile(t testing.TB, data []byte, elems ...string) {
	t.Helper()

	p := Path(elems...)
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		t.Fatalf("golden dir: %+v", err)
	}
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatalf("golden file %s: %+v", path.Join(elems...), err)
	}
}

// Bytes checks binary golden file, adding ".raw" extension to last element.
func Bytes(t testing.TB, data []byte, name ...string) {
	t.Helper()
	if len(name) == 0 {
		t.Fatal("golden file name is empty")
	}

	elems := append([]string(nil), name...)
	elems[len(elems)-1] += ".raw"
	check(t, data, elems...)
}

// Str checks text golden file.
func Str(t testing.TB, s string, name ...string) {
	t.Helper()

	check(t, []byte(s), name...)
}

func check(t testing.TB, data []byte, elems ...string) {
	t.Helper()

	if Update {
		writeFile(t, data, elems...)
		return
	}
	expected := ReadFile(t, elems...)
	if !bytes.Equal(expected, data) {
		t.Fatalf("golden file %s mismatch:\n%x\n!=\n%x", path.Join(elems...), data, expected)
	}
}
