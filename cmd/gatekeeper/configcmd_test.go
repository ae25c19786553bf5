// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestConfigSchema(t *testing.T) {
	isolate(t)

	out, err := execute(t, "", "config", "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Equal(t, config.SchemaID, schema["$id"])
	assert.Contains(t, schema["properties"], "reset")
}

func TestConfigValidate(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
database:
  url: postgres://gatekeeper@localhost/gatekeeper
reset:
  link_base_url: https://app.example.com
`)

	out, err := execute(t, "", "--config", path, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, path)
}

func TestConfigValidate_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing link base url",
			content: "database:\n  url: postgres://localhost/gatekeeper\n",
		},
		{
			name:    "schema violation",
			content: "notify:\n  kind: carrier-pigeon\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			path := writeConfig(t, tt.content)

			_, err := execute(t, "", "--config", path, "config", "validate")
			require.Error(t, err)
			assert.ErrorIs(t, err, auth.ErrConfiguration)
		})
	}
}

func TestConfigPath(t *testing.T) {
	isolate(t)
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")

	out, err := execute(t, "", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xdg-test/gatekeeper/config.yaml\n", out)
}

func TestHashPassword(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "hash:\n  time: 1\n  memory_kib: 64\n  threads: 1\n")

	out, err := execute(t, "correct horse battery\n", "--config", path, "hash-password")
	require.NoError(t, err)

	encoded := strings.TrimSpace(out)
	require.True(t, strings.HasPrefix(encoded, "$argon2id$"), "got %q", encoded)

	hasher, err := auth.NewArgon2idHasher(auth.HashParams{Time: 1, MemoryKiB: 64, Threads: 1, SaltLen: 16, KeyLen: 32})
	require.NoError(t, err)
	ok, err := hasher.Verify("correct horse battery", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHashPassword_TooShort(t *testing.T) {
	isolate(t)

	_, err := execute(t, "short\n", "hash-password")
	assert.ErrorIs(t, err, auth.ErrValidation)
}
