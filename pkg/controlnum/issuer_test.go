package controlnum

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edilane/go-x12/pkg/x12"
)

func TestMemoryIssuer_Monotonic(t *testing.T) {
	issuer := NewMemoryIssuer()
	scope := Scope{Segment: SegmentISA, UsageIndicatorCode: x12.UsageTest, SendingPartnerID: "a", ReceivingPartnerID: "b"}

	for want := int64(1); want <= 5; want++ {
		got, err := issuer.Issue(context.Background(), scope)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestMemoryIssuer_ScopesIndependent(t *testing.T) {
	issuer := NewMemoryIssuer()
	isa := Scope{Segment: SegmentISA, UsageIndicatorCode: x12.UsageTest, SendingPartnerID: "a", ReceivingPartnerID: "b"}
	gs := Scope{Segment: SegmentGS, UsageIndicatorCode: x12.UsageTest, SendingPartnerID: "a", ReceivingPartnerID: "b"}
	production := Scope{Segment: SegmentISA, UsageIndicatorCode: x12.UsageProduction, SendingPartnerID: "a", ReceivingPartnerID: "b"}

	n, err := issuer.Issue(context.Background(), isa)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = issuer.Issue(context.Background(), gs)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = issuer.Issue(context.Background(), production)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryIssuer_ConcurrentUnique(t *testing.T) {
	issuer := NewMemoryIssuer()
	scope := Scope{Segment: SegmentISA, UsageIndicatorCode: x12.UsageProduction, SendingPartnerID: "a", ReceivingPartnerID: "b"}

	const workers = 50
	results := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := issuer.Issue(context.Background(), scope)
			assert.NoError(t, err)
			results[i] = n
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, n := range results {
		assert.False(t, seen[n], "control number %d issued twice", n)
		seen[n] = true
	}
}

func TestScopeKey(t *testing.T) {
	scope := Scope{Segment: SegmentGS, UsageIndicatorCode: x12.UsageTest, SendingPartnerID: "sender", ReceivingPartnerID: "receiver"}
	assert.Equal(t, "GS|T|sender|receiver", scope.Key())
}
