package handshake

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/06eren/Pc-Mobil-Bond/internal/logging"
	"github.com/06eren/Pc-Mobil-Bond/internal/pairing"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
)

type acceptResult struct {
	peer pairing.Device
	err  error
}

func acceptAsync(n *Negotiator, conn net.Conn) <-chan acceptResult {
	ch := make(chan acceptResult, 1)
	go func() {
		peer, err := n.Accept(context.Background(), conn)
		ch <- acceptResult{peer, err}
	}()
	return ch
}

func TestPINRotate(t *testing.T) {
	p := NewPIN()
	if p.Matches("") {
		t.Fatal("empty holder must not match the empty string")
	}
	for i := 0; i < 50; i++ {
		pin, err := p.Rotate()
		if err != nil {
			t.Fatalf("Rotate: %v", err)
		}
		if len(pin) != PINDigits {
			t.Fatalf("pin %q has %d digits", pin, len(pin))
		}
		if pin < "100000" || pin > "999999" {
			t.Fatalf("pin %q out of range", pin)
		}
		if !p.Matches(pin) || p.Current() != pin {
			t.Fatalf("rotated pin %q not active", pin)
		}
	}
	p.Clear()
	if p.Current() != "" {
		t.Fatal("Clear left a pin behind")
	}
}

func TestNegotiatorAccept(t *testing.T) {
	logging.ConfigureTests()

	tests := []struct {
		name       string
		hello      string
		wantReply  string
		wantErr    error
		wantPaired bool
	}{
		{name: "correct pin", hello: "482913;pc-guid-1;MyPC", wantReply: protocol.PinOK, wantPaired: true},
		{name: "wrong pin", hello: "000000;pc-guid-1;MyPC", wantReply: protocol.PinFail, wantErr: protocol.ErrRejected},
		{name: "extra fields tolerated", hello: "482913;pc-guid-1;MyPC;extra", wantReply: protocol.PinOK, wantPaired: true},
		{name: "two fields", hello: "482913;pc-guid-1", wantErr: protocol.ErrMalformedRecord},
		{name: "empty identity", hello: "482913;;MyPC", wantReply: protocol.PinFail, wantErr: protocol.ErrRejected},
		{name: "blank identity", hello: "482913; ;MyPC", wantReply: protocol.PinFail, wantErr: protocol.ErrRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pin := NewPIN()
			pin.Set("482913")
			store := pairing.NewMemoryStore()
			server, client := net.Pipe()
			defer client.Close()

			done := acceptAsync(NewNegotiator(pin, store), server)

			if _, err := client.Write([]byte(tt.hello)); err != nil {
				t.Fatalf("write hello: %v", err)
			}
			client.SetReadDeadline(time.Now().Add(2 * time.Second))
			buf := make([]byte, 64)
			n, err := client.Read(buf)
			if tt.wantReply == "" {
				if !errors.Is(err, io.EOF) {
					t.Fatalf("expected close without reply, got %q err=%v", buf[:n], err)
				}
			} else if got := string(buf[:n]); got != tt.wantReply {
				t.Fatalf("reply = %q (err=%v), want %q", got, err, tt.wantReply)
			}

			res := <-done
			if tt.wantErr != nil {
				if !errors.Is(res.err, tt.wantErr) {
					t.Fatalf("Accept error = %v, want %v", res.err, tt.wantErr)
				}
			} else if res.err != nil {
				t.Fatalf("Accept: %v", res.err)
			}

			_, paired, _ := store.Lookup("pc-guid-1")
			if paired != tt.wantPaired {
				t.Fatalf("paired = %v, want %v", paired, tt.wantPaired)
			}

			if tt.wantReply == protocol.PinFail {
				if _, err := client.Read(buf); !errors.Is(err, io.EOF) {
					t.Fatalf("connection should be closed after PIN_FAIL, got %v", err)
				}
			}
		})
	}
}

func TestNegotiatorPairingIsIdempotent(t *testing.T) {
	logging.ConfigureTests()
	pin := NewPIN()
	pin.Set("111111")
	store := pairing.NewMemoryStore()
	neg := NewNegotiator(pin, store)

	for i := 0; i < 3; i++ {
		server, client := net.Pipe()
		done := acceptAsync(neg, server)
		client.Write([]byte("111111;pc-guid-1;MyPC"))
		buf := make([]byte, 16)
		client.Read(buf)
		if res := <-done; res.err != nil {
			t.Fatalf("round %d: %v", i, res.err)
		}
		client.Close()
		server.Close()
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one paired device, got %d", len(list))
	}
}

func TestNegotiatorTimesOutSilentClient(t *testing.T) {
	logging.ConfigureTests()
	pin := NewPIN()
	pin.Set("111111")
	neg := NewNegotiator(pin, pairing.NewMemoryStore())
	neg.ReadTimeout = 50 * time.Millisecond

	server, client := net.Pipe()
	defer client.Close()
	res := <-acceptAsync(neg, server)
	if !errors.Is(res.err, protocol.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", res.err)
	}
}

func serveOnce(t *testing.T, handle func(net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		handle(conn)
	}()
	return ln.Addr().String()
}

func TestDial(t *testing.T) {
	logging.ConfigureTests()
	self := Identity{ID: "pc-guid-1", DisplayName: "MyPC"}

	t.Run("accepted", func(t *testing.T) {
		pin := NewPIN()
		pin.Set("482913")
		store := pairing.NewMemoryStore()
		neg := NewNegotiator(pin, store)
		addr := serveOnce(t, func(c net.Conn) { neg.Accept(context.Background(), c) })

		conn, err := Dial(context.Background(), addr, "482913", self)
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		conn.Close()
	})

	t.Run("rejected", func(t *testing.T) {
		pin := NewPIN()
		pin.Set("482913")
		neg := NewNegotiator(pin, pairing.NewMemoryStore())
		addr := serveOnce(t, func(c net.Conn) { neg.Accept(context.Background(), c) })

		_, err := Dial(context.Background(), addr, "999999", self)
		if !errors.Is(err, protocol.ErrRejected) {
			t.Fatalf("expected ErrRejected, got %v", err)
		}
		if errors.Is(err, protocol.ErrTimeout) {
			t.Fatal("rejection must not look like a timeout")
		}
	})

	t.Run("silent peer times out", func(t *testing.T) {
		release := make(chan struct{})
		t.Cleanup(func() { close(release) })
		addr := serveOnce(t, func(c net.Conn) {
			<-release
			c.Close()
		})

		client := &Client{ReadTimeout: 50 * time.Millisecond}
		_, err := client.Dial(context.Background(), addr, "482913", self)
		if !errors.Is(err, protocol.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
		if errors.Is(err, protocol.ErrRejected) {
			t.Fatal("timeout must not look like a rejection")
		}
	})

	t.Run("unexpected answer", func(t *testing.T) {
		addr := serveOnce(t, func(c net.Conn) {
			buf := make([]byte, 64)
			c.Read(buf)
			c.Write([]byte("HELLO"))
			c.Close()
		})
		_, err := Dial(context.Background(), addr, "482913", self)
		if !errors.Is(err, protocol.ErrRejected) {
			t.Fatalf("expected ErrRejected, got %v", err)
		}
	})
}
