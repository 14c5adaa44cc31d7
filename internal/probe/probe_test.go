package probe

import (
	"context"
	"errors"
	"net"
	"testing"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func TestCheckHubReachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	p := New(ln.Addr().String(), &fakePinger{}, nil)
	c := p.Check(context.Background())

	if !c.HubReachable {
		t.Error("HubReachable = false, want true")
	}
	if !c.APIReachable {
		t.Error("APIReachable = false, want true")
	}
	if c.CheckedAt.IsZero() {
		t.Error("CheckedAt not set")
	}
}

func TestCheckHubUnreachable(t *testing.T) {
	// A closed listener gives a port with nothing behind it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	p := New(addr, &fakePinger{}, nil)
	c := p.Check(context.Background())

	if c.HubReachable {
		t.Error("HubReachable = true, want false")
	}
	if !c.APIReachable {
		t.Error("API check should be independent of the hub check")
	}
}

func TestCheckHubSkippedWhenUnconfigured(t *testing.T) {
	p := New("", &fakePinger{}, nil)
	c := p.Check(context.Background())

	if !c.HubReachable {
		t.Error("skipped hub check must not report a failure")
	}
}

func TestCheckAPIFailure(t *testing.T) {
	p := New("", &fakePinger{err: errors.New("cloud down")}, nil)
	c := p.Check(context.Background())

	if c.APIReachable {
		t.Error("APIReachable = true, want false")
	}
}
