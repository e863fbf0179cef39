package blobgc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"medgas-backend/internal/blob"
)

// mockDeleter records deletions and optionally fails.
type mockDeleter struct {
	DeleteFunc func(ctx context.Context, key string) error
}

func (m *mockDeleter) Delete(ctx context.Context, key string) error {
	return m.DeleteFunc(ctx, key)
}

func TestPool_Dispatch(t *testing.T) {
	p := NewPool(1, &mockDeleter{}, zap.NewNop())

	p.Dispatch("sites/s1/valve/v1/a.pdf")

	select {
	case job := <-p.Jobs():
		assert.Equal(t, "sites/s1/valve/v1/a.pdf", job)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestPool_DispatchDropsWhenFull(t *testing.T) {
	p := NewPool(1, &mockDeleter{}, zap.NewNop())
	for i := 0; i < cap(p.Jobs())+10; i++ {
		p.Dispatch("k")
	}
	assert.Equal(t, cap(p.Jobs()), len(p.Jobs()))
}

func TestPool_WorkerLogic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("deletes from the blob store", func(t *testing.T) {
		store := blob.NewMemory()
		_, err := store.Put(ctx, "sites/s1/fitting/f1/photo.jpg", strings.NewReader("jpg"), blob.PutOptions{})
		require.NoError(t, err)

		p := NewPool(2, store, zap.NewNop())
		p.Start(ctx)
		p.Dispatch("sites/s1/fitting/f1/photo.jpg")

		assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 10*time.Millisecond)
	})

	t.Run("keeps working after a failure", func(t *testing.T) {
		var mu sync.Mutex
		var seen []string
		var wg sync.WaitGroup
		wg.Add(2)
		p := NewPool(1, &mockDeleter{DeleteFunc: func(_ context.Context, key string) error {
			mu.Lock()
			seen = append(seen, key)
			mu.Unlock()
			wg.Done()
			if key == "bad" {
				return errors.New("access denied")
			}
			return nil
		}}, zap.NewNop())
		p.Start(ctx)

		p.Dispatch("bad")
		p.Dispatch("good")
		wg.Wait()

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"bad", "good"}, seen)
	})
}
