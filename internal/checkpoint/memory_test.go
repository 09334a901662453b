package checkpoint

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeState struct {
	Question string
	Answer   string
}

func TestMemorySaver_PutGet(t *testing.T) {
	saver := NewMemorySaver[fakeState]()

	_, ok := saver.Get("missing")
	assert.False(t, ok)

	saver.Put("t1", fakeState{Question: "q1", Answer: "a1"})
	got, ok := saver.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "a1", got.Answer)

	// Latest write wins.
	saver.Put("t1", fakeState{Question: "q1", Answer: "a2"})
	got, ok = saver.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "a2", got.Answer)
	assert.Equal(t, 1, saver.Len())
}

func TestMemorySaver_ThreadIsolation(t *testing.T) {
	saver := NewMemorySaver[fakeState]()
	saver.Put("alpha", fakeState{Answer: "from alpha"})
	saver.Put("beta", fakeState{Answer: "from beta"})

	a, ok := saver.Get("alpha")
	require.True(t, ok)
	b, ok2 := saver.Get("beta")
	require.True(t, ok2)
	assert.NotEqual(t, a.Answer, b.Answer)

	saver.Delete("alpha")
	_, ok = saver.Get("alpha")
	assert.False(t, ok)
	_, ok = saver.Get("beta")
	assert.True(t, ok)
}

func TestMemorySaver_ConcurrentAccess(t *testing.T) {
	saver := NewMemorySaver[int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("thread-%d", n%10)
			saver.Put(id, n)
			saver.Get(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, saver.Len())
}
