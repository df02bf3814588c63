package tabular

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipeerrors "git.home.luguber.info/inful/tilepipe/internal/errors"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flows.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadDelimited(t *testing.T) {
	path := writeCSV(t, "comid,qout,base\n101,5.5,1.0\n102,6.5,1.1\n")
	tbl, err := Read(path, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"comid", "qout", "base"}, tbl.Columns)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, []string{"101", "5.5", "1.0"}, tbl.Rows[0])
}

func TestReadArrayWithoutReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.nc")
	require.NoError(t, os.WriteFile(path, []byte("netcdf"), 0o644))

	_, err := Read(path, nil)
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCategory(err, pipeerrors.CategoryDependency))
}

func TestReadUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("zip"), 0o644))

	_, err := Read(path, nil)
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCategory(err, pipeerrors.CategoryFormat))
}

func TestDedupeBy(t *testing.T) {
	tbl := &Table{
		Columns: []string{"id", "q"},
		Rows: [][]string{
			{"1", "5"},
			{"2", ""},
			{"1", "7"},
			{"3", "9"},
		},
	}
	got := tbl.DedupeBy("id")
	// Duplicate id and row with an empty cell both drop.
	assert.Equal(t, [][]string{{"1", "5"}, {"3", "9"}}, got.Rows)
}

func TestSelect(t *testing.T) {
	tbl := &Table{
		Columns: []string{"id", "q", "base"},
		Rows:    [][]string{{"1", "5", "0.5"}},
	}
	got := tbl.Select([]string{"id", "base"})
	assert.Equal(t, []string{"id", "base"}, got.Columns)
	assert.Equal(t, [][]string{{"1", "0.5"}}, got.Rows)
}

func TestIndexByID(t *testing.T) {
	tbl := &Table{
		Columns: []string{"id", "q"},
		Rows:    [][]string{{"10", "5"}, {"x", "6"}, {"12", "7"}},
	}
	m := tbl.IndexByID("id")
	require.Len(t, m, 2)
	assert.Equal(t, []string{"10", "5"}, m[10])
	assert.Equal(t, []string{"12", "7"}, m[12])
}
