package pool

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPool_PoolFor(t *testing.T) {
	bp := NewBufferPool()
	tests := []struct {
		name string
		size int64
		want int
	}{
		{name: "unknown", size: -1, want: SmallBufferSize},
		{name: "tiny", size: 10, want: SmallBufferSize},
		{name: "medium", size: 512 * 1024, want: MediumBufferSize},
		{name: "large", size: 64 * 1024 * 1024, want: LargeBufferSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bufPtr, ok := bp.poolFor(tt.size).Get().(*[]byte)
			require.True(t, ok)
			assert.Len(t, *bufPtr, tt.want)
		})
	}
}

func TestCopy(t *testing.T) {
	payload := strings.Repeat("artifact", 10000)

	var dst bytes.Buffer
	n, err := Copy(&dst, strings.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, dst.String())

	dst.Reset()
	n, err = Copy(&dst, strings.NewReader("x"), -1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
