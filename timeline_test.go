package main

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimelineEvictsOldest(t *testing.T) {
	tl := NewTimelineBuffer(20)

	for i := 0; i < 25; i++ {
		tl.Append(fmt.Sprintf("chan%d", i), EventViewerSpike, int64(i))
	}

	assert.Equal(t, 20, tl.Len())

	all := tl.Recent(100)
	require.Len(t, all, 20)
	// newest first; the 5 oldest appends are gone
	assert.Equal(t, "chan24", all[0].Channel)
	assert.Equal(t, "chan5", all[19].Channel)
}

func TestTimelineRecentNewestFirst(t *testing.T) {
	tl := NewTimelineBuffer(20)
	for i := 0; i < 25; i++ {
		tl.Append(fmt.Sprintf("chan%d", i), EventChatSpike, int64(i))
	}

	got := tl.Recent(5)
	require.Len(t, got, 5)
	for i, e := range got {
		assert.Equal(t, fmt.Sprintf("chan%d", 24-i), e.Channel)
	}

	// reads never mutate
	assert.Equal(t, 20, tl.Len())
	again := tl.Recent(5)
	assert.Equal(t, got, again)
}

func TestTimelineSeqMonotonic(t *testing.T) {
	tl := NewTimelineBuffer(3)

	a := tl.Append("a", EventViewerSpike, 1)
	b := tl.Append("b", EventChatSpike, 2)
	assert.Equal(t, a.Seq+1, b.Seq)

	entries := tl.Recent(0)
	require.Len(t, entries, 2)
	assert.Greater(t, entries[0].Seq, entries[1].Seq)
}

func TestTimelineDefaultCapacity(t *testing.T) {
	tl := NewTimelineBuffer(0)
	assert.Equal(t, defaultTimelineCap, tl.Capacity())
}

func TestTimelineConcurrentReaders(t *testing.T) {
	tl := NewTimelineBuffer(20)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			tl.Append("chan", EventViewerSpike, int64(i))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				for _, e := range tl.Recent(10) {
					// an entry is visible fully or not at all
					assert.NotEmpty(t, e.Kind)
					assert.NotZero(t, e.Seq)
				}
			}
		}()
	}
	wg.Wait()
}
