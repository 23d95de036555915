package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs a fresh command tree and returns its standard output
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// writeConfig points the catalog and storage at a temp directory
func writeConfig(t *testing.T) (configPath, dataDir string) {
	t.Helper()
	dir := t.TempDir()
	dataDir = filepath.Join(dir, "data")
	configPath = filepath.Join(dir, "partitioner.toml")
	writeFile(t, configPath, fmt.Sprintf(`
[log]
level = "warn"
output = "stderr"

[job]
database = "vaults"

[plan]
daily_quota = 1
vault_size = 1
archive_count = 16

[writer]
format = "csv.gz"
workers = 2

[sort]
run_size = 2
workers = 2
temp_dir = %q

[storage]
driver = "filesystem"
base_path = %q

[database]
driver = "sqlite"
path = %q
`, filepath.Join(dir, "sort"), dataDir, filepath.Join(dir, "catalog.db")))
	return configPath, dataDir
}

func TestPlanCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "plan",
		"--daily-quota", "1",
		"--vault-size", "1",
		"--archive-count", "16",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "estimated days:  1\n")
	assert.Contains(t, out, "partition size:  2\n")
	assert.Contains(t, out, "partitions:      8\n")
}

func TestPlanCommand_InvalidInput(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "plan", "--daily-quota", "0", "--vault-size", "1", "--archive-count", "16")
	assert.Error(t, err)
}

func TestPlanCommand_FlagsOverrideConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	configPath, _ := writeConfig(t)

	out, err := execute(t, "plan", "--config", configPath, "--archive-count", "160")
	require.NoError(t, err)
	assert.Contains(t, out, "archive count:   160\n")
	assert.Contains(t, out, "partition size:  20\n")
}

func TestRunEndToEnd(t *testing.T) {
	t.Chdir(t.TempDir())
	configPath, dataDir := writeConfig(t)

	_, err := execute(t, "catalog", "migrate", "-c", configPath)
	require.NoError(t, err)

	for _, table := range []string{"inventory", "filelist"} {
		out, err := execute(t, "catalog", "register", "-c", configPath,
			"--table", table, "--location", table+"/")
		require.NoError(t, err)
		assert.Contains(t, out, "registered vaults."+table)
	}

	writeFile(t, filepath.Join(dataDir, "inventory", "part-0.csv"), strings.Join([]string{
		"ArchiveId,ArchiveDescription,CreationDate,Size,SHA256TreeHash",
		"c,desc-c,2020-01-02T00:00:00Z,30,hc",
		"a,desc-a,2020-01-01T00:00:00Z,10,ha",
		"b,desc-b,2020-01-01T00:00:00Z,20,hb",
	}, "\n"))
	writeFile(t, filepath.Join(dataDir, "filelist", "overrides.csv"), "ArchiveId,Override\nb,new-b\n")

	out, err := execute(t, "run", "-c", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "3 records in 2 partitions of 2")

	runID := regexp.MustCompile(`run ([0-9a-f-]{36}) committed`).FindStringSubmatch(out)
	require.Len(t, runID, 2)

	entries, err := os.ReadDir(filepath.Join(dataDir, "partitioned", "run="+runID[1]))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	out, err = execute(t, "catalog", "show", "-c", configPath, "--table", "partitioned_inventory")
	require.NoError(t, err)
	assert.Contains(t, out, "vaults.partitioned_inventory")
	assert.Contains(t, out, "run="+runID[1])
	assert.Contains(t, out, "part=0\trows 0..1\t2 records")
	assert.Contains(t, out, "part=1\trows 2..2\t1 records")
}

func TestCatalogShow_UnknownTable(t *testing.T) {
	t.Chdir(t.TempDir())
	configPath, _ := writeConfig(t)

	_, err := execute(t, "catalog", "migrate", "-c", configPath)
	require.NoError(t, err)

	_, err = execute(t, "catalog", "show", "-c", configPath, "--table", "missing")
	assert.Error(t, err)
}

func TestCatalogRegister_RequiresTable(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "catalog", "register", "--location", "inventory/")
	assert.Error(t, err)
}
