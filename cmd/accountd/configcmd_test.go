// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/holomush/accountd/internal/config"
	"github.com/holomush/accountd/pkg/errutil"
)

const validMemoryConfig = `
store:
  driver: memory
session:
  secret: 0123456789abcdef0123456789abcdef
log:
  format: text
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfigSchemaCommand(t *testing.T) {
	output, err := execute(t, "config", "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &schema))
	assert.Equal(t, config.SchemaID, schema["$id"])
}

func TestConfigValidateCommand(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		extra    []string
		wantCode string
	}{
		{name: "valid file", content: validMemoryConfig},
		{name: "unknown key fails the schema", content: "smtp:\n  host: mail\n", wantCode: config.CodeInvalid},
		{name: "schema ok but secret missing", content: "store:\n  driver: memory\n", wantCode: config.CodeInvalid},
		{
			name:    "flag supplies the missing secret",
			content: "store:\n  driver: memory\n",
			extra:   []string{"--session.secret", "0123456789abcdef0123456789abcdef"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "config.yaml", tt.content)

			args := append([]string{"config", "validate", path}, tt.extra...)
			output, err := execute(t, args...)
			if tt.wantCode != "" {
				errutil.AssertErrorCode(t, err, tt.wantCode)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, output, "schema ok")
			assert.Contains(t, output, "configuration is valid")
		})
	}
}

func TestConfigValidateCommand_UsesConfigFlag(t *testing.T) {
	path := writeFile(t, "accountd.yaml", validMemoryConfig)

	output, err := execute(t, "--config", path, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, output, path+": schema ok")
}

func TestConfigValidateCommand_NoFile(t *testing.T) {
	// Without a file only flags and environment apply.
	output, err := execute(t, "config", "validate",
		"--store.driver", "memory",
		"--session.secret", "0123456789abcdef0123456789abcdef",
	)
	require.NoError(t, err)
	assert.NotContains(t, output, "schema ok")
	assert.Contains(t, output, "configuration is valid")
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	output, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, output, "Wrote "+path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, config.ValidateYAML(data))

	var written struct {
		Session struct {
			Secret string `yaml:"secret"`
		} `yaml:"session"`
	}
	require.NoError(t, yaml.Unmarshal(data, &written))
	assert.Len(t, written.Session.Secret, 64)
}

func TestConfigInitCommand_RefusesToOverwrite(t *testing.T) {
	path := writeFile(t, "config.yaml", validMemoryConfig)

	_, err := execute(t, "--config", path, "config", "init")
	errutil.AssertErrorCode(t, err, "CONFIG_EXISTS")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, validMemoryConfig, string(data), "file untouched")

	_, err = execute(t, "--config", path, "config", "init", "--force")
	require.NoError(t, err)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, validMemoryConfig, string(data))
}

func TestConfigInitCommand_DefaultsToXDGPath(t *testing.T) {
	configFile = ""
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"config", "init"})
	require.NoError(t, cmd.Execute())

	_, err := os.Stat(filepath.Join(dir, "accountd", "config.yaml"))
	require.NoError(t, err)
}
