package stats

import (
	"testing"

	"mcslp/backend/address"
	"mcslp/backend/enrich"
)

func TestRecordFoundUpdatesTalliesAndBest(t *testing.T) {
	s := New(1)
	s.IncScanned()
	s.RecordFound(enrich.EnrichedServer{
		Address: address.FromOctets(1, 2, 3, 4), Version: "1.20.4", Country: "United States",
		PlayersOn: 12, Quality: 40,
	})
	s.IncScanned()
	s.RecordFound(enrich.EnrichedServer{
		Address: address.FromOctets(5, 6, 7, 8), Version: "1.20.4", Country: "Germany",
		PlayersOn: 3, Quality: 80,
	})

	snap := s.Snapshot()
	if snap.TotalFound != 2 || snap.TotalScanned != 2 {
		t.Fatalf("unexpected totals: %+v", snap)
	}
	if snap.ServersByVersion["1.20.4"] != 2 {
		t.Fatalf("expected version tally 2, got %d", snap.ServersByVersion["1.20.4"])
	}
	if snap.BestServer == nil || snap.BestServer.Quality != 80 {
		t.Fatalf("expected best server quality 80, got %+v", snap.BestServer)
	}
	if snap.LastFoundServer == nil || snap.LastFoundServer.Country != "Germany" {
		t.Fatalf("expected last found to be the Germany server, got %+v", snap.LastFoundServer)
	}
}

func TestInvariantTotalFoundNeverExceedsScanned(t *testing.T) {
	s := New(1)
	for i := 0; i < 5; i++ {
		s.IncScanned()
	}
	s.RecordFound(enrich.EnrichedServer{Address: address.FromOctets(1, 1, 1, byte(1))})
	snap := s.Snapshot()
	if snap.TotalFound > snap.TotalScanned {
		t.Fatalf("I1 violated: found=%d scanned=%d", snap.TotalFound, snap.TotalScanned)
	}
}

func TestResponseTimeEMA(t *testing.T) {
	s := New(1)
	s.RecordResponseTime(100)
	s.RecordResponseTime(200)
	snap := s.Snapshot()
	// avg = 0.9*100 + 0.1*200 = 110
	if snap.AvgResponseTimeMs != 110 {
		t.Fatalf("expected ema 110, got %v", snap.AvgResponseTimeMs)
	}
}

func TestPopularMOTDsCapsPerEntryAtTen(t *testing.T) {
	s := New(1)
	for i := 0; i < 15; i++ {
		s.RecordFound(enrich.EnrichedServer{Address: address.FromOctets(1, 1, 1, byte(i)), MOTD: "hello"})
	}
	snap := s.Snapshot()
	if snap.PopularMOTDs["hello"] != 10 {
		t.Fatalf("expected motd count capped at 10, got %d", snap.PopularMOTDs["hello"])
	}
}

func TestPopularMOTDsGlobalCap(t *testing.T) {
	s := New(1)
	for i := 0; i < motdCap+20; i++ {
		motd := string(rune('a' + i%26))
		// vary further so each iteration produces a distinct motd string
		motd = motd + string(rune('A'+(i/26)%26))
		s.RecordFound(enrich.EnrichedServer{Address: address.FromOctets(1, 1, byte(i>>8), byte(i)), MOTD: motd})
	}
	snap := s.Snapshot()
	if len(snap.PopularMOTDs) > motdCap {
		t.Fatalf("expected motd map capped at %d entries, got %d", motdCap, len(snap.PopularMOTDs))
	}
}

func TestResetVolatilePreservesFoundTallies(t *testing.T) {
	s := New(1)
	s.IncScanned()
	s.RecordFound(enrich.EnrichedServer{Address: address.FromOctets(1, 1, 1, 1), Version: "1.20.4"})
	s.ResetVolatile()
	snap := s.Snapshot()
	if snap.TotalScanned != 0 {
		t.Fatalf("expected totalScanned reset, got %d", snap.TotalScanned)
	}
	if snap.TotalFound != 1 {
		t.Fatalf("expected totalFound preserved, got %d", snap.TotalFound)
	}
	if snap.ServersByVersion["1.20.4"] != 1 {
		t.Fatalf("expected serversByVersion preserved, got %d", snap.ServersByVersion["1.20.4"])
	}
}

func TestTopNOrdersByCountDescending(t *testing.T) {
	m := map[string]uint64{"a": 3, "b": 10, "c": 7}
	top := TopN(m, 2)
	if len(top) != 2 || top[0].Key != "b" || top[1].Key != "c" {
		t.Fatalf("unexpected order: %+v", top)
	}
}

func TestPlayerBucketing(t *testing.T) {
	cases := []struct {
		online int
		want   PlayerBucket
	}{
		{0, Bucket0}, {3, Bucket1to5}, {15, Bucket6to20},
		{30, Bucket21to50}, {75, Bucket51to100}, {500, Bucket100Plus},
	}
	for _, c := range cases {
		if got := bucketFor(c.online); got != c.want {
			t.Fatalf("bucketFor(%d) = %v, want %v", c.online, got, c.want)
		}
	}
}
