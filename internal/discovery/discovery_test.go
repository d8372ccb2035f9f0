package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/06eren/Pc-Mobil-Bond/internal/logging"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
)

func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return conn
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func send(t *testing.T, to *net.UDPAddr, payloads ...string) {
	t.Helper()
	conn, err := net.DialUDP("udp4", nil, to)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	for _, p := range payloads {
		if _, err := conn.Write([]byte(p)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

type recorder struct {
	mu         sync.Mutex
	discovered []Device
	requests   []protocol.ConnectRequest
}

func (r *recorder) callbacks() CallbackFuncs {
	return CallbackFuncs{
		Discovered: func(dev Device) {
			r.mu.Lock()
			r.discovered = append(r.discovered, dev)
			r.mu.Unlock()
		},
		Request: func(req protocol.ConnectRequest, _ *net.UDPAddr) {
			r.mu.Lock()
			r.requests = append(r.requests, req)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.discovered), len(r.requests)
}

func TestListenerDeduplicatesByAddress(t *testing.T) {
	logging.ConfigureTests()

	rec := &recorder{}
	l := NewListener(0, "self-id", rec.callbacks())
	conn := listenLoopback(t)
	addr := conn.LocalAddr().(*net.UDPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx, conn) }()

	send(t, addr,
		"DEVICE_ANNOUNCE;Phone A;192.168.1.20;111111;phone-a",
		"DEVICE_ANNOUNCE;Phone A;192.168.1.20;111111;phone-a",
		"DEVICE_ANNOUNCE;Phone A renamed;192.168.1.20;222222;phone-a",
		"DEVICE_ANNOUNCE;Phone B;192.168.1.21;333333;phone-b",
		"DEVICE_ANNOUNCE;broken;192.168.1.22",
		"garbage",
		"DEVICE_ANNOUNCE;Me;192.168.1.9;444444;self-id",
		"DEVICE_ANNOUNCE;Phone C;192.168.1.23;555555;phone-c",
	)

	waitFor(t, 2*time.Second, func() bool { return l.Devices().Len() == 3 })

	dev, ok := l.Devices().Get("192.168.1.20")
	if !ok {
		t.Fatal("missing 192.168.1.20")
	}
	if dev.DisplayName != "Phone A" || dev.PIN != "111111" {
		t.Fatalf("first announcement should win, got %+v", dev.Announcement)
	}
	if _, ok := l.Devices().Get("192.168.1.9"); ok {
		t.Fatal("own announcement should be ignored")
	}
	if found, ok := l.Devices().Find("phone-b"); !ok || found.Address != "192.168.1.21" {
		t.Fatalf("Find by origin id = %+v,%v", found, ok)
	}
	if n, _ := rec.counts(); n != 3 {
		t.Fatalf("expected 3 discovery callbacks, got %d", n)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v, want nil on shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListenerConnectRequestThrottled(t *testing.T) {
	logging.ConfigureTests()

	rec := &recorder{}
	l := NewListener(0, "pc-guid-1", rec.callbacks())
	conn := listenLoopback(t)
	addr := conn.LocalAddr().(*net.UDPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Serve(ctx, conn)

	send(t, addr,
		"CONNECT_REQUEST;phone-1;pc-guid-1",
		"CONNECT_REQUEST;phone-1;pc-guid-1",
		"CONNECT_REQUEST;phone-2;pc-guid-1",
		"CONNECT_REQUEST;pc-guid-1;phone-1",
	)

	waitFor(t, 2*time.Second, func() bool {
		_, n := rec.counts()
		return n == 2
	})
	time.Sleep(50 * time.Millisecond)
	if _, n := rec.counts(); n != 2 {
		t.Fatalf("expected 2 requests after throttling and self-filtering, got %d", n)
	}
}

func TestBroadcasterSendsToSeedPeer(t *testing.T) {
	logging.ConfigureTests()

	sink := listenLoopback(t)
	defer sink.Close()

	b := NewBroadcaster(0, func() (protocol.Announcement, bool) {
		return protocol.Announcement{
			DisplayName: "Pixel;7",
			Address:     "192.168.1.20",
			PIN:         "482913",
			OriginID:    "phone-1",
		}, true
	})
	b.SetBroadcast(false)
	b.SetInterval(20 * time.Millisecond)
	if err := b.AddSeedPeer(sink.LocalAddr().String()); err != nil {
		t.Fatalf("AddSeedPeer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	buf := make([]byte, protocol.MaxDatagramSize)
	for i := 0; i < 2; i++ {
		sink.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, err := sink.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("read announcement %d: %v", i, err)
		}
		dg, err := protocol.ParseDatagram(buf[:n])
		if err != nil {
			t.Fatalf("ParseDatagram: %v", err)
		}
		if dg.Kind != protocol.DatagramAnnounce || dg.Announcement.DisplayName != "Pixel7" || dg.Announcement.PIN != "482913" {
			t.Fatalf("unexpected datagram %+v", dg)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster did not stop")
	}
}

func TestBroadcasterSkipsWhenSourceNotReady(t *testing.T) {
	logging.ConfigureTests()

	sink := listenLoopback(t)
	defer sink.Close()

	b := NewBroadcaster(0, func() (protocol.Announcement, bool) {
		return protocol.Announcement{}, false
	})
	b.SetBroadcast(false)
	b.SetInterval(10 * time.Millisecond)
	b.AddSeedPeer(sink.LocalAddr().String())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	go b.Run(ctx)

	sink.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	buf := make([]byte, 64)
	if _, _, err := sink.ReadFromUDP(buf); err == nil {
		t.Fatal("expected no datagram while source is not ready")
	}
}

func TestDirectedBroadcast(t *testing.T) {
	_, ipNet, _ := net.ParseCIDR("192.168.1.37/24")
	ipNet.IP = net.ParseIP("192.168.1.37")
	got := directedBroadcast(ipNet)
	if got.String() != "192.168.1.255" {
		t.Fatalf("directedBroadcast = %s", got)
	}

	_, v6, _ := net.ParseCIDR("fe80::1/64")
	if directedBroadcast(v6) != nil {
		t.Fatal("IPv6 networks have no broadcast address")
	}
}

func TestDeviceSetExpiry(t *testing.T) {
	left := make(chan string, 1)
	set := NewDeviceSet(4, 30*time.Millisecond, func(addr string) { left <- addr })

	dev := Device{Announcement: protocol.Announcement{Address: "10.0.0.2", PIN: "1"}}
	if !set.Add(dev) {
		t.Fatal("first add should be new")
	}
	dev.PIN = "2"
	if set.Add(dev) {
		t.Fatal("second add for same address should be ignored")
	}

	select {
	case addr := <-left:
		if addr != "10.0.0.2" {
			t.Fatalf("unexpected expired address %s", addr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("entry did not expire")
	}

	if !set.Add(dev) {
		t.Fatal("add after expiry should be new")
	}
	if got, _ := set.Get("10.0.0.2"); got.PIN != "2" {
		t.Fatalf("expected refreshed entry after expiry, got %+v", got)
	}
}

func TestDeviceSetKeepsAnnouncingDeviceAlive(t *testing.T) {
	var mu sync.Mutex
	left := 0
	set := NewDeviceSet(4, 200*time.Millisecond, func(string) {
		mu.Lock()
		left++
		mu.Unlock()
	})

	first := time.Now()
	added := 0
	for i := 0; i < 40; i++ {
		dev := Device{
			Announcement: protocol.Announcement{DisplayName: "desk", Address: "10.0.0.7", PIN: fmt.Sprint(100000 + i)},
			SeenAt:       time.Now(),
		}
		if set.Add(dev) {
			added++
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	gone := left
	mu.Unlock()
	if gone != 0 || added != 1 {
		t.Fatalf("left callbacks = %d, new devices = %d; want 0 and 1", gone, added)
	}

	got, ok := set.Find("desk")
	if !ok {
		t.Fatal("announcing device missing from set")
	}
	if got.PIN != "100000" {
		t.Fatalf("PIN = %q, want the first announcement's", got.PIN)
	}
	if !got.SeenAt.After(first.Add(500 * time.Millisecond)) {
		t.Fatalf("SeenAt %v not refreshed", got.SeenAt)
	}
}
