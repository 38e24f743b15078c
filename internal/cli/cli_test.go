package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_FILE", filepath.Join(t.TempDir(), "docflow.log"))
	t.Setenv("AUDIT_SINK", "log")
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSectionsTable(t *testing.T) {
	out, err := run(t, "sections")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "bankStatements")
	assert.Contains(t, out, "https://n8n.example.com/webhook/income")
}

func TestSectionsYAML(t *testing.T) {
	out, err := run(t, "sections", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "- id: identification")
	assert.Contains(t, out, "webhookUrl:")

	_, err = run(t, "sections", "-o", "xml")
	assert.Error(t, err)
}

func TestConvertCommand(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("first\nsecond"), 0o644))

	out, err := run(t, "convert", src, "-o", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "notes.pdf (1 pages)")

	data, err := os.ReadFile(filepath.Join(dir, "notes.pdf"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestRasterizeCommand(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("page content"), 0o644))
	_, err := run(t, "convert", src, "-o", dir)
	require.NoError(t, err)

	pages := filepath.Join(dir, "pages")
	out, err := run(t, "rasterize", filepath.Join(dir, "notes.pdf"), "-o", pages)
	require.NoError(t, err)
	assert.Contains(t, out, "notes.png")
	_, err = os.Stat(filepath.Join(pages, "notes.png"))
	assert.NoError(t, err)
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	saved := filepath.Join(dir, "summaries.yaml")
	require.NoError(t, saveSummary(saved, "income", "Net income: $5,000/mo"))
	require.NoError(t, saveSummary(saved, "other", "Nothing else"))

	summaries, err := loadSummaries(saved)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)

	out, err := run(t, "export", "--summaries", saved, "--format", "docx", "-o", dir, "--email", "jo@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "document-summary.docx (2 sections, all complete: false)")
	_, err = os.Stat(filepath.Join(dir, "document-summary.docx"))
	assert.NoError(t, err)
}

func TestExportUnknownSection(t *testing.T) {
	dir := t.TempDir()
	saved := filepath.Join(dir, "summaries.yaml")
	require.NoError(t, os.WriteFile(saved, []byte("mortgage: approved\n"), 0o644))

	_, err := run(t, "export", "--summaries", saved, "-o", dir)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "mortgage"))
}

func TestSummarizeRequiresSection(t *testing.T) {
	_, err := run(t, "summarize", "a.pdf")
	assert.Error(t, err)
}
