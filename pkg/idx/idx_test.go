package idx_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/atelier/pkg/idx"
)

func TestIssuedOrder(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	a := idx.At(at)
	b := idx.At(at)
	c := idx.At(at.Add(time.Second))

	require.Less(t, a.String(), b.String())
	require.Less(t, b.String(), c.String())
	require.Len(t, a.String(), 26)
	require.True(t, a.Issued().Equal(at))
}

func TestAccept(t *testing.T) {
	sent := idx.New()
	got, ok := idx.Accept(sent.String())
	require.True(t, ok)
	require.Equal(t, sent, got)

	for _, header := range []string{"", "   ", "not-a-ulid", "<script>"} {
		got, ok := idx.Accept(header)
		require.False(t, ok, header)
		require.NotEqual(t, header, got.String())
		require.False(t, got.Issued().IsZero())
	}

	require.True(t, idx.RequestID("junk").Issued().IsZero())
}
