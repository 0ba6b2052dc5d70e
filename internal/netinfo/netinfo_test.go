package netinfo

import (
	"context"
	"testing"
)

func TestClientAddress_FromContext(t *testing.T) {
	p := NewSystemProvider()

	ctx := WithClientAddress(context.Background(), "198.51.100.7")
	if got := p.ClientAddress(ctx); got != "198.51.100.7" {
		t.Errorf("expected client address from context, got %q", got)
	}
}

func TestClientAddress_Placeholder(t *testing.T) {
	p := NewSystemProvider()

	if got := p.ClientAddress(context.Background()); got != Unknown {
		t.Errorf("expected %q for missing client address, got %q", Unknown, got)
	}
}

func TestStaticProvider_Defaults(t *testing.T) {
	p := &StaticProvider{}

	if p.ServerAddress() != Unknown {
		t.Errorf("expected %q server address", Unknown)
	}
	if p.ServerHardwareAddress() != Unknown {
		t.Errorf("expected %q hardware address", Unknown)
	}
}

func TestSystemProvider_ResolveDoesNotFail(t *testing.T) {
	p := NewSystemProvider()

	// Whatever the host looks like, resolution must yield a value.
	if p.ServerAddress() == "" {
		t.Error("server address must never be empty")
	}
	if p.ServerHardwareAddress() == "" {
		t.Error("hardware address must never be empty")
	}
}
