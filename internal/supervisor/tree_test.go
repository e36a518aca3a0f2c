package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewTreeBuildsRootForZeroConfig(t *testing.T) {
	tree := NewTree(TreeConfig{})
	if tree.root == nil {
		t.Fatal("root supervisor should not be nil")
	}
}

func TestTreeRunsAddedServicesUntilCanceled(t *testing.T) {
	tree := NewTree(DefaultTreeConfig())

	started := make(chan struct{})
	svc := NewProviderService("acme-bank", time.Second, func(ctx context.Context) error {
		select {
		case <-started:
		default:
			close(started)
		}
		return nil
	})
	tree.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tree.Serve(ctx) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("provider service never ran")
	}

	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("expected nil or context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("tree did not stop in time")
	}
}
