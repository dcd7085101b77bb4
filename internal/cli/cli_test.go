package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urisubmit/urisubmit/internal/opkey"
	"github.com/urisubmit/urisubmit/internal/store/jsonl"
)

type paths struct {
	config, sqlite, log string
}

func writeConfig(t *testing.T, withSQLite bool) paths {
	t.Helper()
	dir := t.TempDir()
	p := paths{
		config: filepath.Join(dir, "config.yml"),
		sqlite: filepath.Join(dir, "operations.db"),
		log:    filepath.Join(dir, "operations"),
	}
	doc := "storage:\n  log_path: \"" + p.log + "\"\n"
	if withSQLite {
		doc += "  sqlite_path: \"" + p.sqlite + "\"\n"
	} else {
		doc += "  log_only: true\n"
	}
	require.NoError(t, os.WriteFile(p.config, []byte(doc), 0o600))
	return p
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRoot("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func seedLog(t *testing.T, path string, names ...string) {
	t.Helper()
	l, err := jsonl.New(path, 10, 1)
	require.NoError(t, err)
	for _, n := range names {
		require.NoError(t, l.AppendName(context.Background(), n))
	}
	require.NoError(t, l.Close())
}

func TestKeyCommand(t *testing.T) {
	out, err := run(t, "key", "abc")
	require.NoError(t, err)
	assert.Equal(t, opkey.Key("abc")+"\n", out)

	_, err = run(t, "key")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "urisubmit test\n", out)
}

func TestOperationsRecoverThenList(t *testing.T) {
	p := writeConfig(t, true)
	seedLog(t, p.log, "projects/1/operations/a", "projects/1/operations/b", "projects/1/operations/a")

	out, err := run(t, "operations", "recover", "--config", p.config)
	require.NoError(t, err)
	assert.Equal(t, "restored 2 operations\n", out)

	// A second pass finds nothing new.
	out, err = run(t, "operations", "recover", "--config", p.config)
	require.NoError(t, err)
	assert.Equal(t, "restored 0 operations\n", out)

	out, err = run(t, "operations", "list", "--config", p.config)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var first operationLine
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "projects/1/operations/b", first.Name)
	assert.Equal(t, opkey.Key("projects/1/operations/b"), first.Key)
	assert.Empty(t, first.URL)
	assert.NotEmpty(t, first.Created)
}

func TestOperationsListLogOnly(t *testing.T) {
	p := writeConfig(t, false)
	seedLog(t, p.log, "projects/1/operations/a", "projects/1/operations/b")

	out, err := run(t, "operations", "list", "--config", p.config)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "projects/1/operations/b")
	assert.NotContains(t, lines[0], "created")
}

func TestOperationsRecoverNeedsSQLite(t *testing.T) {
	p := writeConfig(t, false)

	_, err := run(t, "operations", "recover", "--config", p.config)
	var ee *ExitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 2, ee.Code())
	assert.Contains(t, ee.Message(), "storage.sqlite_path")
}

func TestOperationsRecoverMissingLog(t *testing.T) {
	p := writeConfig(t, true)

	_, err := run(t, "operations", "recover", "--config", p.config)
	var ee *ExitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 1, ee.Code())
}

func TestExplicitConfigMustExist(t *testing.T) {
	_, err := run(t, "operations", "list", "--config", filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestExitErrorNil(t *testing.T) {
	var ee *ExitError
	assert.Equal(t, 1, ee.Code())
	assert.Empty(t, ee.Error())
	assert.Equal(t, "exit 3", (&ExitError{code: 3}).Error())
}
