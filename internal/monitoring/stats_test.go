package monitoring

import "testing"

func TestPacketStatsCounters(t *testing.T) {
	ps := NewPacketStats("f1")
	ps.AddPacket(100)
	ps.AddPacket(50)
	ps.AddSample()
	ps.AddDropped()

	packets, bytes, samples, dropped := ps.Snapshot()
	if packets != 2 || bytes != 150 || samples != 1 || dropped != 1 {
		t.Errorf("got packets=%d bytes=%d samples=%d dropped=%d", packets, bytes, samples, dropped)
	}
}

func TestPacketStatsLogResets(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()
	var logged bool
	SetLogger(func(format string, v ...interface{}) { logged = true })

	ps := NewPacketStats("gt7")
	ps.AddPacket(10)
	ps.LogStats()

	if !logged {
		t.Error("LogStats did not log")
	}
	packets, bytes, samples, dropped := ps.Snapshot()
	if packets != 0 || bytes != 0 || samples != 0 || dropped != 0 {
		t.Errorf("counters not reset: %d %d %d %d", packets, bytes, samples, dropped)
	}
}

func TestPacketStatsConcurrent(t *testing.T) {
	ps := NewPacketStats("lmu")
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			for j := 0; j < 1000; j++ {
				ps.AddPacket(1)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	packets, _, _, _ := ps.Snapshot()
	if packets != 4000 {
		t.Errorf("packets = %d, want 4000", packets)
	}
}
