package helpers

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/temoto/alive/v2"
)

func TestAliveSub(t *testing.T) {
	t.Parallel()
	root, leaf := alive.NewAlive(), alive.NewAlive()
	done := make(chan struct{})
	go func() {
		AliveSub(root, leaf)
		close(done)
	}()
	root.Stop()
	<-done
	<-leaf.StopChan()
}

func TestAtomicError(t *testing.T) {
	t.Parallel()
	var a AtomicError
	_, set := a.Load()
	assert.False(t, set)
	first := fmt.Errorf("first")
	prev, set := a.StoreOnce(first)
	assert.NoError(t, prev)
	assert.False(t, set)
	prev, set = a.StoreOnce(fmt.Errorf("second"))
	assert.Equal(t, first, prev)
	assert.True(t, set)
	err, _ := a.Load()
	assert.Equal(t, first, err)
}
