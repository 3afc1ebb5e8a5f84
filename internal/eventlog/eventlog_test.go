package eventlog

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemory_ConcurrentAppend(t *testing.T) {
	m := NewMemory[int]()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			m.Append(v)
		}(i)
	}
	wg.Wait()

	items := m.Items()
	assert.Len(t, items, 100)
	seen := map[int]bool{}
	for _, v := range items {
		assert.False(t, seen[v], "duplicate %d", v)
		seen[v] = true
	}
}

func TestGroupBy_PreservesOrder(t *testing.T) {
	groups := GroupBy([]string{"a1", "b1", "a2"}, func(s string) byte { return s[0] })
	assert.Equal(t, []string{"a1", "a2"}, groups['a'])
	assert.Equal(t, []string{"b1"}, groups['b'])
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSONL(t *testing.T) {
	var buf bytes.Buffer
	j := NewJSONL[map[string]int](&buf)
	j.Append(map[string]int{"a": 1})
	j.Append(map[string]int{"b": 2})
	assert.NoError(t, j.Err())
	assert.Equal(t, 2, len(strings.Split(strings.TrimSpace(buf.String()), "\n")))

	bad := NewJSONL[int](failingWriter{})
	bad.Append(1)
	bad.Append(2)
	assert.EqualError(t, bad.Err(), "disk full")
}
