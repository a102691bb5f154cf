package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/drivecheck/pkg/structure"
)

var (
	pairLayout = structure.MustDefine("pair", 1, structure.Uint("v", 8))

	sampleLayout = structure.MustDefine("sample", 10,
		structure.Uint("signature", 16),
		structure.Bits("flag", 1),
		structure.Bits("mode", 7),
		structure.Bytes("name", 4),
		structure.Uint("tail", 8),
		structure.Array("items", pairLayout, 2),
	)

	sampleData = []byte{0x34, 0x12, 0x03, 'A', 'B', 'C', 'D', 0xFF, 0x07, 0x08}
)

func decodeSample(t *testing.T) *structure.Decoded {
	t.Helper()
	d, err := structure.Decode(sampleLayout, sampleData)
	require.NoError(t, err)
	return d
}

func TestPrettyStructure(t *testing.T) {
	out := prettyStructure(decodeSample(t))

	for _, want := range []string{
		"Offset", "Name", "Value",
		"[000:016]", "signature", "0x1234",
		"[016:017]", "flag",
		"[017:024]", "mode",
		"[024:056]", "name", "41 42 43 44", "ABCD",
		"[056:064]", "tail", "0x0FF",
		"items[0]", "[064:072]", "0x007",
		"items[1]", "[072:080]", "0x008",
	} {
		assert.Contains(t, out, want)
	}
}

func TestWriteStructure(t *testing.T) {
	d := decodeSample(t)

	var raw bytes.Buffer
	require.NoError(t, writeStructure(&raw, d, DisplayRaw))
	assert.Equal(t, sampleData, raw.Bytes())

	var literal bytes.Buffer
	require.NoError(t, writeStructure(&literal, d, DisplayByteArray))
	assert.Equal(t, "[]byte{\n\t0x34, 0x12, 0x03, 0x41, 0x42, 0x43, 0x44, 0xff, 0x07, 0x08,\n}\n", literal.String())

	var pretty bytes.Buffer
	require.NoError(t, writeStructure(&pretty, d, DisplayPretty))
	assert.Contains(t, pretty.String(), "signature")
}

func TestHexDumpWraps(t *testing.T) {
	data := make([]byte, 25)
	for i := range data {
		data[i] = byte('a' + i)
	}

	lines := strings.Split(hexDump(data), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "61 62 63"))
	assert.True(t, strings.HasSuffix(lines[0], "abcdefghijklmnopqrst"))
	assert.True(t, strings.HasSuffix(lines[1], "uvwxy"))

	assert.Contains(t, hexDump([]byte{0x00, 'z'}), ".z")
	assert.Empty(t, hexDump(nil))
}

func TestByteArrayLiteralWidth(t *testing.T) {
	out := byteArrayLiteral(make([]byte, 17))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "[]byte{", lines[0])
	assert.Equal(t, 16, strings.Count(lines[1], "0x00,"))
	assert.Equal(t, "\t0x00,", lines[2])
	assert.Equal(t, "}", lines[3])

	assert.Equal(t, "[]byte{\n}\n", byteArrayLiteral(nil))
}

func TestParseDisplay(t *testing.T) {
	for _, s := range []string{"pretty", "raw", "bytearray"} {
		d, err := parseDisplay(s)
		require.NoError(t, err)
		assert.Equal(t, Display(s), d)
	}

	_, err := parseDisplay("hex")
	assert.ErrorContains(t, err, "unknown display")
}
