package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeenMarksOnce(t *testing.T) {
	t.Parallel()

	c := New(time.Minute, 10)
	assert.False(t, c.Seen("update-1"))
	assert.True(t, c.Seen("update-1"))
	assert.False(t, c.Seen("update-2"))
	assert.False(t, c.Seen(""), "empty keys are never deduplicated")
	assert.False(t, c.Seen(""))
}

func TestSeenExpires(t *testing.T) {
	t.Parallel()

	now := time.Unix(0, 0)
	c := New(time.Minute, 10)
	c.now = func() time.Time { return now }

	assert.False(t, c.Seen("a"))
	now = now.Add(2 * time.Minute)
	assert.False(t, c.Seen("a"), "expired key counts as new")
	assert.Equal(t, 1, c.Len())
}

func TestSeenEvictsOldest(t *testing.T) {
	t.Parallel()

	c := New(time.Hour, 2)
	c.Seen("a")
	c.Seen("b")
	c.Seen("c")

	assert.Equal(t, 2, c.Len())
	assert.False(t, c.Seen("a"), "oldest key should have been evicted")
}

func TestSeenConcurrent(t *testing.T) {
	t.Parallel()

	c := New(time.Hour, 1000)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if !c.Seen(fmt.Sprint(i % 5)) {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, fresh)
}
