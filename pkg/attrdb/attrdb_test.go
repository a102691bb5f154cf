package attrdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLookup(t *testing.T) {
	db := Default()
	assert.Greater(t, db.Len(), 40)

	tests := []struct {
		id   uint8
		name string
		unit string
	}{
		{5, "Reallocated_Sector_Ct", "sectors"},
		{9, "Power_On_Hours", "hours"},
		{194, "Temperature_Celsius", "celsius"},
		{1, "Raw_Read_Error_Rate", ""},
		{254, UnknownName, ""},
	}
	for _, tt := range tests {
		a := db.Lookup(tt.id)
		assert.Equal(t, tt.id, a.ID)
		assert.Equal(t, tt.name, a.Name)
		assert.Equal(t, tt.unit, a.Unit)
	}
}

func TestOpenOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attrs.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[attribute]]
id = 9
unit = "minutes"

[[attribute]]
id = 254
name = "Free_Fall_Sensor"
unit = "count"
`), 0o600))

	db, err := Open(path)
	require.NoError(t, err)

	poh := db.Lookup(9)
	assert.Equal(t, "Power_On_Hours", poh.Name)
	assert.Equal(t, "minutes", poh.Unit)
	assert.Equal(t, "Free_Fall_Sensor", db.Lookup(254).Name)
	assert.Equal(t, Default().Len()+1, db.Len())

	// The built-in table is untouched.
	assert.Equal(t, "hours", Default().Lookup(9).Unit)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[attribute]\nid = "), 0o600))
	_, err = Open(path)
	assert.Error(t, err)
}
