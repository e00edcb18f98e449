// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunDumpNoHeaderFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "firmware.bin")
	require.NoError(t, os.WriteFile(path, []byte("Hello, world!"), 0o600))

	dumpInput = path
	t.Cleanup(func() { dumpInput = "" })

	err := runDump(nil)
	require.NoError(t, err)
}

func TestHumanSize(t *testing.T) {
	require.Equal(t, "512 B", humanSize(512))
	require.Equal(t, "1.0 KiB", humanSize(1024))
}
