package generate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeedFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileSource_JSON(t *testing.T) {
	path := writeSeedFile(t, "seeds.json", `[
		{"business": "Dental practices", "pain": "Manual recall scheduling"},
		{"business": "  ", "pain": "dropped: no business"},
		{"business": "HVAC companies", "pain": "Phone tag with technicians"}
	]`)

	seeds, err := NewFileSource(path).Generate(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, seeds, 2)
	assert.Equal(t, "Dental practices", seeds[0].Business)
	assert.Equal(t, "file:seeds.json", seeds[0].Source)
	assert.Equal(t, "HVAC companies", seeds[1].Business)
}

func TestFileSource_YAMLWithCount(t *testing.T) {
	path := writeSeedFile(t, "seeds.yaml", `
- business: Law firms
  pain: Billing time across cases
- business: Auto body shops
  pain: Tracking insurance approvals
  source: interview
- business: Food trucks
  pain: Permit renewals
`)

	seeds, err := NewFileSource(path).Generate(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, seeds, 2)
	assert.Equal(t, "Law firms", seeds[0].Business)
	assert.Equal(t, "interview", seeds[1].Source)
}

func TestFileSource_Errors(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "missing.json")).Generate(context.Background(), 1)
	assert.Error(t, err)

	path := writeSeedFile(t, "bad.json", `{"business": "not a list"}`)
	_, err = NewFileSource(path).Generate(context.Background(), 1)
	assert.Error(t, err)
}
