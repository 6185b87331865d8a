package hasher

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Hash(t *testing.T) {
	p := New(2)
	defer p.Close()

	got := p.Hash([]byte("hello"))
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", got)
}

func TestPool_HashConcurrent(t *testing.T) {
	p := New(4)
	defer p.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := p.Hash([]byte("hello"))
			require.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", got)
		}()
	}
	wg.Wait()
}

func TestPool_DefaultWorkers(t *testing.T) {
	p := New(0)
	defer p.Close()
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", p.Hash([]byte("hello")))
}
