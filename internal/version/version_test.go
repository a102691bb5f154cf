package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		want    string
	}{
		{
			name:    "all values provided",
			version: "v1.0.0",
			commit:  "abcdef1234567890",
			want:    "v1.0.0-abcdef1",
		},
		{
			name:   "empty version",
			commit: "abcdef1234567890",
			want:   "dev-abcdef1",
		},
		{
			name:    "short commit",
			version: "v1.0.0",
			commit:  "abc",
			want:    "v1.0.0-abc",
		},
		{
			name:    "no commit",
			version: "v1.0.0",
			want:    "v1.0.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetVersion(tt.version, tt.commit, ""))
		})
	}
}

func TestGetDetailedVersion(t *testing.T) {
	result := GetDetailedVersion("v1.0.0", "abcdef1234567890", "2024-01-01T00:00:00Z")

	assert.Contains(t, result, "drivecheck")
	assert.Contains(t, result, "Version:    v1.0.0")
	assert.Contains(t, result, "Commit:     abcdef1234567890")
	assert.Contains(t, result, "Built:      2024-01-01T00:00:00Z")
	assert.Contains(t, result, "Go version:")
	assert.Contains(t, result, "OS/Arch:")

	assert.Contains(t, GetDetailedVersion("", "", ""), "Commit:     unknown")
}
