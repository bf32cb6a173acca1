package disasm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisassemble(t *testing.T) {
	code := []byte{0x90, 0xc3}

	for syntax, ret := range map[string]string{"go": "RET", "gnu": "ret", "intel": "ret"} {
		var buf bytes.Buffer
		require.NoError(t, Disassemble(&buf, code, 0x401000, 10, syntax, 64))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2, syntax)
		assert.True(t, strings.HasPrefix(lines[0], "0x401000:"), lines[0])
		assert.Contains(t, lines[1], "0x401001:")
		assert.Contains(t, lines[1], ret)
	}

	var buf bytes.Buffer
	require.NoError(t, Disassemble(&buf, code, 0, 1, "gnu", 64))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))

	err := Disassemble(&buf, code, 0, 1, "att", 64)
	assert.ErrorIs(t, err, ErrSyntax)
}
