package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignal_BroadcastWakesAllWaiters(t *testing.T) {
	var s Signal
	a := s.Wait()
	b := s.Wait()
	assert.Equal(t, a, b)

	s.Broadcast()
	for _, ch := range []<-chan struct{}{a, b} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("waiter not woken")
		}
	}

	c := s.Wait()
	select {
	case <-c:
		t.Fatal("fresh channel must not be closed")
	default:
	}
}

func TestSignal_BroadcastWithoutWaiters(t *testing.T) {
	var s Signal
	s.Broadcast()
	s.Broadcast()
	select {
	case <-s.Wait():
		t.Fatal("no pending broadcast expected")
	default:
	}
}
