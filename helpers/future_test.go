package helpers

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuture(t *testing.T) {
	t.Parallel()
	f := NewFuture()
	select {
	case <-f.Done():
		t.Fatal("resolved too early")
	default:
	}
	e := fmt.Errorf("connection lost")
	go f.Resolve(e)
	<-f.Done()
	assert.Equal(t, e, f.Err())
	assert.False(t, f.Resolve(nil), "second resolve ignored")
	assert.Equal(t, e, f.Err())

	ok := NewFuture()
	assert.True(t, ok.Resolve(nil))
	assert.NoError(t, ok.Err())
}
