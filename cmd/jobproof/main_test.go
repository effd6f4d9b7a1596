package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunDispatch(t *testing.T) {
	run := func(args ...string) (int, string, string) {
		var stdout, stderr bytes.Buffer
		code := Run(append([]string{"jobproof"}, args...), &stdout, &stderr)
		return code, stdout.String(), stderr.String()
	}

	t.Run("no arguments prints usage", func(t *testing.T) {
		code, out, _ := run()
		assert.Equal(t, 2, code)
		assert.Contains(t, out, "USAGE")
	})

	t.Run("unknown command", func(t *testing.T) {
		code, _, errOut := run("frobnicate")
		assert.Equal(t, 2, code)
		assert.Contains(t, errOut, "Unknown command: frobnicate")
	})

	t.Run("version", func(t *testing.T) {
		code, out, _ := run("version")
		assert.Equal(t, 0, code)
		assert.Contains(t, out, "jobproof "+Version)
	})

	t.Run("help", func(t *testing.T) {
		code, out, _ := run("help")
		assert.Equal(t, 0, code)
		assert.Contains(t, out, "registry activate")
	})

	t.Run("registry without subcommand", func(t *testing.T) {
		code, _, errOut := run("registry")
		assert.Equal(t, 2, code)
		assert.Contains(t, errOut, "Usage: jobproof registry")
	})

	t.Run("unknown registry subcommand", func(t *testing.T) {
		code, _, errOut := run("registry", "frobnicate")
		assert.Equal(t, 2, code)
		assert.Contains(t, errOut, "Unknown registry command")
	})

	t.Run("process without file", func(t *testing.T) {
		code, _, errOut := run("process")
		assert.Equal(t, 2, code)
		assert.Contains(t, errOut, "--file is required")
	})
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/pdf", contentTypeFor("sheet.PDF"))
	assert.Equal(t, "image/png", contentTypeFor("scan.png"))
	assert.Equal(t, "image/jpeg", contentTypeFor("scan.jpeg"))
	assert.Equal(t, "image/tiff", contentTypeFor("scan.tif"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("scan.bin"))
}
