package megaraid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type countingRunner struct {
	fakeRunner
	runs int
}

func (cr *countingRunner) Run(args ...string) (string, string) {
	cr.runs++
	return cr.fakeRunner.Run(args...)
}

func TestCachingRunner(t *testing.T) {
	assert := assert.New(t)

	inner := &countingRunner{
		fakeRunner: fakeRunner{out: map[string]string{"show ctrlcount": ctrlCountOut}},
	}
	run := NewCachingRunner(inner)

	first, _ := run.Run("show", "ctrlcount")
	second, _ := run.Run("show", "ctrlcount")

	assert.Equal(ctrlCountOut, first)
	assert.Equal(first, second)
	assert.Equal(1, inner.runs)

	run.Run("show")
	assert.Equal(2, inner.runs)
}

func toolError(t *testing.T, err error) *ToolError {
	t.Helper()

	if err == nil {
		t.Fatal("expected an error")
	}

	var terr *ToolError
	if !errors.As(err, &terr) {
		t.Fatalf("expected a ToolError, found %T: %s", err, err)
	}

	return terr
}

func TestCheckToolMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storcli64")

	terr := toolError(t, CheckTool(path, &fakeRunner{}))
	assert.Equal(t, "Could not find the storcli executable", terr.Msg)
	assert.Contains(t, terr.Detail, path)
}

func TestCheckToolNotExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storcli64")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	terr := toolError(t, CheckTool(path, &fakeRunner{}))
	assert.Equal(t, "The storcli executable is not executable", terr.Msg)
}

func writeExecutable(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "storcli64")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestCheckToolVersionError(t *testing.T) {
	path := writeExecutable(t)
	run := &fakeRunner{
		out:  map[string]string{"-v": "storcli version 007.1504.0000.0000\n"},
		errs: map[string]string{"-v": "something went wrong\n"},
	}

	terr := toolError(t, CheckTool(path, run))
	assert.Equal(t, "The storcli version query returned an error", terr.Msg)
}

func TestCheckToolEmptyVersion(t *testing.T) {
	path := writeExecutable(t)

	terr := toolError(t, CheckTool(path, &fakeRunner{}))
	assert.Equal(t, "The storcli version query returned empty data", terr.Msg)
}

func TestCheckToolOK(t *testing.T) {
	path := writeExecutable(t)
	run := &fakeRunner{
		out: map[string]string{"-v": "storcli version 007.1504.0000.0000\n"},
	}

	if err := CheckTool(path, run); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
}
