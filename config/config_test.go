// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cosign2.toml")
	contents := "pubkey = \"abcd\"\ntarget = \"atsama5d27-keyos\"\nknown_pubkeys = [\"ab\", \"cd\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "abcd", cfg.Pubkey)
	require.Equal(t, "atsama5d27-keyos", cfg.Target)
	require.Equal(t, []string{"ab", "cd"}, cfg.KnownPubkeys)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestMergeString(t *testing.T) {
	cases := []struct {
		name        string
		cli, config string
		want        string
		wantErr     bool
	}{
		{"neither set", "", "", "", false},
		{"cli only", "cli-val", "", "cli-val", false},
		{"config only", "", "config-val", "config-val", false},
		{"both set conflicts", "cli-val", "config-val", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MergeString("pubkey", tc.cli, tc.config)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestMergeStrings(t *testing.T) {
	_, err := MergeStrings("known_pubkeys", []string{"a"}, []string{"b"})
	require.Error(t, err)

	got, err := MergeStrings("known_pubkeys", nil, []string{"b"})
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, got)
}
