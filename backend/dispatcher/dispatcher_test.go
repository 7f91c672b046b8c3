package dispatcher

import (
	"context"
	"net"
	"testing"
	"time"

	"mcslp/backend/address"
	"mcslp/backend/control"
	"mcslp/backend/enrich"
	"mcslp/backend/fingerprint"
	"mcslp/backend/prober"
	"mcslp/backend/protocol"
	"mcslp/backend/ratelimit"
	"mcslp/backend/sink"
	"mcslp/backend/stats"
)

func startFakeServer(t *testing.T, body string) (net.Listener, int) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				buf := make([]byte, 4096)
				conn.Read(buf)
				packetID := protocol.PutVarInt(nil, 0x00)
				jsonLen := protocol.PutVarInt(nil, int32(len(body)))
				inner := append(packetID, jsonLen...)
				inner = append(inner, body...)
				length := protocol.PutVarInt(nil, int32(len(inner)))
				conn.Write(append(length, inner...))
			}()
		}
	}()
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestDispatcherRunDiscoversServer(t *testing.T) {
	ln, port := startFakeServer(t, `{"version":{"name":"1.20.4"},"players":{"online":5,"max":20},"description":{"text":"Hi"}}`)
	defer ln.Close()

	// A non-overlapping exclude entry keeps New() from falling back to
	// the default excluded ranges (which would reject loopback).
	gen, err := address.New(address.ModeTargeted, []string{"127.0.0.1/32"}, []string{"0.0.0.0/32"}, nil, nil)
	if err != nil {
		t.Fatalf("generator: %v", err)
	}

	limiter := ratelimit.New(3)
	pr := prober.New(port, time.Second, 1, protocol.FramingUnframed, nil)
	enr := enrich.New(fingerprint.NewEngine(fingerprint.DefaultRuleSet()), nil, false, nil)
	seen := sink.NewSeenSet()
	snk := sink.New(seen, t.TempDir()+"/catalog.txt", "", false, nil)
	st := stats.New(1)
	surf := control.New(st, seen, nil, nil)

	cfg := Config{BatchSize: 5, MaxConcurrent: 2, MinPlayers: 0, MaxPlayers: 1 << 30}
	d := New(cfg, gen, limiter, pr, enr, snk, st, surf, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if st.Snapshot().TotalFound > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	surf.Stop()
	<-done

	snap := st.Snapshot()
	if snap.TotalFound == 0 {
		t.Fatalf("expected at least one discovery, got snapshot %+v", snap)
	}
	if snap.TotalFound > snap.TotalScanned {
		t.Fatalf("I1 violated: found=%d scanned=%d", snap.TotalFound, snap.TotalScanned)
	}
}
