package core

import "testing"

func newTestEngine(cfg EngineConfig) (*Engine, *SimBackend, *SimPort) {
	sim := NewSimBackend()
	port := NewSimPort(sim.Now)
	return NewEngine(cfg, sim, port), sim, port
}

func liveTable(e *Engine) *EventTable {
	var tb EventTable
	e.Live(&tb)
	return &tb
}

func TestReadbackMatchesInput(t *testing.T) {
	e, _, _ := newTestEngine(EngineConfig{TickMultiplier: 4})

	input := []uint32{10, 25, 300, 4000}
	if !e.SetChannel(2, input) {
		t.Fatal("SetChannel(2) rejected")
	}

	if got := e.ChannelTimes(2, nil); !equalUint32(got, input) {
		t.Errorf("Before start: expected %v, got %v", input, got)
	}

	e.SetPeriod(5000)
	e.Start()
	if got := e.ChannelTimes(2, nil); !equalUint32(got, input) {
		t.Errorf("After start: expected %v, got %v", input, got)
	}
}

func TestScenarioTwoChannels(t *testing.T) {
	e, _, _ := newTestEngine(EngineConfig{TickMultiplier: 4})

	e.SetPeriod(65000)
	e.SetChannel(0, []uint32{140, 240, 32460, 32560})
	e.SetChannel(5, []uint32{490, 502})
	e.Start()

	if got, want := e.ChannelTimes(0, nil), []uint32{140, 240, 32460, 32560}; !equalUint32(got, want) {
		t.Errorf("Channel 0: expected %v, got %v", want, got)
	}
	if got, want := e.ChannelTimes(5, nil), []uint32{490, 502}; !equalUint32(got, want) {
		t.Errorf("Channel 5: expected %v, got %v", want, got)
	}

	period, channels := e.Settings()
	if period != 65000 {
		t.Errorf("Expected period 65000, got %d", period)
	}
	if len(channels) != 2 || channels[0].Channel != 0 || channels[1].Channel != 5 {
		t.Errorf("Unexpected settings %+v", channels)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	e, sim, _ := newTestEngine(EngineConfig{TickMultiplier: 4})

	e.SetPeriod(1000)
	e.SetChannel(0, []uint32{100, 200})
	e.SetChannel(1, []uint32{150, 600})

	if !e.Start() {
		t.Fatal("First start should arm")
	}
	first := liveTable(e).Entries(nil)
	firstPeriod := sim.Period()

	if e.Start() {
		t.Error("Second start while running should not re-arm")
	}
	second := liveTable(e).Entries(nil)
	if len(first) != len(second) {
		t.Fatalf("Live table length changed: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Entry %d changed: %+v -> %+v", i, first[i], second[i])
		}
	}
	if sim.Period() != firstPeriod {
		t.Errorf("Period register changed: %d -> %d", firstPeriod, sim.Period())
	}

	// a full stop and restart without new settings keeps the table too
	e.Stop()
	sim.Advance(3 * 4000)
	if e.State() != StateIdle {
		t.Fatalf("Expected IDLE, got %s", e.State())
	}
	e.Start()
	third := liveTable(e).Entries(nil)
	for i := range first {
		if first[i] != third[i] {
			t.Errorf("Entry %d changed after restart: %+v -> %+v", i, first[i], third[i])
		}
	}
	if sim.Period() != firstPeriod || e.LivePeriod() != 1000 {
		t.Errorf("Period changed after restart: %d", sim.Period())
	}
}

func TestPeriodRoundTrip(t *testing.T) {
	e, _, _ := newTestEngine(EngineConfig{})

	for _, p := range []uint32{1, 999, 65000, 4000000} {
		if !e.SetPeriod(p) {
			t.Errorf("SetPeriod(%d) rejected", p)
		}
		if got := e.Period(); got != p {
			t.Errorf("Expected period %d, got %d", p, got)
		}
	}

	if e.SetPeriod(0) {
		t.Error("SetPeriod(0) should be rejected")
	}
	if got := e.Period(); got != 4000000 {
		t.Errorf("SetPeriod(0) changed the period to %d", got)
	}
}

func TestCapacityBoundaryAfterCommit(t *testing.T) {
	e, _, _ := newTestEngine(EngineConfig{TickMultiplier: 4})

	// 65 distinct times spread over four channels
	for ch := 0; ch < 4; ch++ {
		var times []uint32
		for i := 0; i < 20; i++ {
			v := uint32(ch*20 + i + 1)
			if v > TableCapacity+1 {
				break
			}
			times = append(times, v)
		}
		e.SetChannel(ch, times)
	}
	e.SetPeriod(1000)
	e.Start()

	if n := liveTable(e).Len(); n != TableCapacity {
		t.Fatalf("Expected %d live entries, got %d", TableCapacity, n)
	}
	got := e.ChannelTimes(3, nil)
	want := []uint32{61, 62, 63, 64}
	if !equalUint32(got, want) {
		t.Errorf("Expected channel 3 readback %v, got %v", want, got)
	}
}

func TestConfiguredMaxStates(t *testing.T) {
	e, _, _ := newTestEngine(EngineConfig{MaxStates: 50})

	for ch := 0; ch < 3; ch++ {
		times := make([]uint32, 20)
		for i := range times {
			times[i] = uint32(ch*20 + i + 1)
		}
		e.SetChannel(ch, times)
	}
	e.SetPeriod(100)
	e.Start()

	if n := liveTable(e).Len(); n != 50 {
		t.Errorf("Expected 50 live entries, got %d", n)
	}
}

func TestSetChannelOutOfRange(t *testing.T) {
	e, _, _ := newTestEngine(EngineConfig{})

	e.SetChannel(0, []uint32{5, 6})
	before := e.shadow.Len()

	for _, ch := range []int{16, 17, 255, -1} {
		if e.SetChannel(ch, []uint32{7, 8}) {
			t.Errorf("SetChannel(%d) should be rejected", ch)
		}
	}
	if e.shadow.Len() != before {
		t.Errorf("Table changed: %d -> %d entries", before, e.shadow.Len())
	}
	if got := e.ChannelTimes(0, nil); !equalUint32(got, []uint32{5, 6}) {
		t.Errorf("Channel 0 readback changed: %v", got)
	}
}

func TestTogglesPerChannelLimit(t *testing.T) {
	e, _, _ := newTestEngine(EngineConfig{})

	times := make([]uint32, 25)
	for i := range times {
		times[i] = uint32(i + 1)
	}
	e.SetChannel(0, times)
	if got := len(e.ChannelTimes(0, nil)); got != MaxTogglesPerChannel {
		t.Errorf("Expected %d toggles, got %d", MaxTogglesPerChannel, got)
	}
}

func TestPlaybackWaveform(t *testing.T) {
	e, sim, port := newTestEngine(EngineConfig{TickMultiplier: 4})

	e.SetPeriod(1000)
	e.SetChannel(0, []uint32{140, 240})
	e.SetChannel(1, []uint32{240, 500})
	e.Start()

	sim.Advance(2 * 4000)

	want := []Transition{
		{At: 560, Levels: 0x1},
		{At: 960, Levels: 0x2},
		{At: 2000, Levels: 0x0},
		{At: 4560, Levels: 0x1},
		{At: 4960, Levels: 0x2},
		{At: 6000, Levels: 0x0},
	}
	got := port.History()
	if len(got) != len(want) {
		t.Fatalf("Expected %d transitions, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Transition %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
	if sim.GateViolations != 0 {
		t.Errorf("Registers written with the stream enabled %d times", sim.GateViolations)
	}
}

func TestStopWaitsForCycleBoundaries(t *testing.T) {
	e, sim, port := newTestEngine(EngineConfig{TickMultiplier: 4})

	e.SetPeriod(1000)
	e.SetChannel(0, []uint32{140, 240})
	e.Start()

	sim.Advance(1000)
	if !e.Stop() {
		t.Fatal("Stop should be accepted while running")
	}
	if e.State() != StateStopRequested {
		t.Fatalf("Expected STOP_REQUESTED, got %s", e.State())
	}
	if e.Stop() {
		t.Error("Second stop should be a no-op")
	}

	sim.AdvanceTo(3999)
	if e.State() != StateStopRequested {
		t.Fatalf("Expected STOP_REQUESTED before the wrap, got %s", e.State())
	}

	sim.AdvanceTo(4000)
	if e.State() != StateStopping {
		t.Fatalf("Expected STOPPING after the first wrap, got %s", e.State())
	}
	if !sim.OneShot() {
		t.Error("Timer should be in one-shot mode while stopping")
	}

	// the final cycle still plays
	sim.AdvanceTo(4600)
	if !port.Level(0) {
		t.Error("Channel 0 should be high during the final cycle")
	}

	sim.AdvanceTo(8000)
	if e.State() != StateIdle {
		t.Fatalf("Expected IDLE after the second wrap, got %s", e.State())
	}
	if sim.TimerRunning() || sim.StreamEnabled() || sim.OneShot() {
		t.Error("Hardware should be halted and one-shot cleared")
	}
	if port.Levels() != 0 {
		t.Errorf("Outputs should be idle, got %#x", port.Levels())
	}

	n := len(port.History())
	sim.Advance(10000)
	if len(port.History()) != n {
		t.Error("Outputs changed after halt")
	}
}

func TestStopWhenIdle(t *testing.T) {
	e, _, _ := newTestEngine(EngineConfig{})
	if e.Stop() {
		t.Error("Stop on an idle engine should be a no-op")
	}
	if e.State() != StateIdle {
		t.Errorf("Expected IDLE, got %s", e.State())
	}
}

func TestStartDuringStopWaits(t *testing.T) {
	e, sim, _ := newTestEngine(EngineConfig{TickMultiplier: 4})

	e.SetPeriod(1000)
	e.SetChannel(0, []uint32{140, 240})
	e.Start()
	sim.Advance(1000)
	e.Stop()

	if !e.Start() {
		t.Fatal("Start after a completed stop should arm")
	}
	if e.State() != StateRunning {
		t.Fatalf("Expected RUNNING, got %s", e.State())
	}
	if sim.Now() != 8000 {
		t.Errorf("Expected start to wait until tick 8000, now %d", sim.Now())
	}
	if sim.GateViolations != 0 {
		t.Errorf("Registers written with the stream enabled %d times", sim.GateViolations)
	}
}

func TestPendingSettingsWaitForIdle(t *testing.T) {
	e, sim, _ := newTestEngine(EngineConfig{TickMultiplier: 4})

	e.SetPeriod(1000)
	e.SetChannel(0, []uint32{140, 240})
	e.Start()
	sim.Advance(500)

	// a new sequence while running is staged, not committed
	e.SetChannel(3, []uint32{10, 20})
	e.SetPeriod(2000)
	e.Start()

	live := liveTable(e)
	if live.Len() != 2 || e.LivePeriod() != 1000 {
		t.Fatalf("Live table replaced while running: len=%d period=%d", live.Len(), e.LivePeriod())
	}
	if got := e.ChannelTimes(3, nil); !equalUint32(got, []uint32{10, 20}) {
		t.Errorf("Staged readback: expected [10 20], got %v", got)
	}
	if sim.GateViolations != 0 {
		t.Errorf("Registers written with the stream enabled %d times", sim.GateViolations)
	}

	e.Stop()
	sim.Advance(3 * 4000)
	e.Start()

	if e.LivePeriod() != 2000 || sim.Period() != 8000 {
		t.Errorf("Expected new period committed, live=%d register=%d", e.LivePeriod(), sim.Period())
	}
	if got := e.ChannelTimes(3, nil); !equalUint32(got, []uint32{10, 20}) {
		t.Errorf("Committed readback: expected [10 20], got %v", got)
	}
}

func TestFreshSequenceClearsShadow(t *testing.T) {
	e, sim, _ := newTestEngine(EngineConfig{TickMultiplier: 4})

	e.SetPeriod(1000)
	e.SetChannel(0, []uint32{100, 200})
	e.Start()
	e.Stop()
	sim.Advance(3 * 4000)

	e.SetChannel(1, []uint32{300, 400})
	e.Start()

	if got := e.ChannelTimes(0, nil); len(got) != 0 {
		t.Errorf("Channel 0 should be gone, got %v", got)
	}
	if got := e.ChannelTimes(1, nil); !equalUint32(got, []uint32{300, 400}) {
		t.Errorf("Channel 1: expected [300 400], got %v", got)
	}
}

func TestPeriodOnlyChangeKeepsCorrection(t *testing.T) {
	e, sim, _ := newTestEngine(EngineConfig{TickMultiplier: 4})

	e.SetPeriod(1000)
	e.SetChannel(0, []uint32{100, 200})
	e.Start()
	e.Stop()
	sim.Advance(3 * 4000)

	before := liveTable(e).Entries(nil)
	e.SetPeriod(1500)
	e.Start()
	after := liveTable(e).Entries(nil)

	for i := range before {
		if before[i] != after[i] {
			t.Errorf("Entry %d changed on a period-only commit: %+v -> %+v", i, before[i], after[i])
		}
	}
	if sim.Period() != 6000 {
		t.Errorf("Expected period register 6000, got %d", sim.Period())
	}
}

func TestInvertedChannelIdlesHigh(t *testing.T) {
	channels := NewChannelMap([]ChannelSpec{{Pin: 0, Inverted: true}, {Pin: 1}})
	e, sim, port := newTestEngine(EngineConfig{Channels: channels, TickMultiplier: 1})

	if !port.Level(0) || port.Level(1) {
		t.Fatalf("Unexpected idle levels %#x", port.Levels())
	}

	e.SetPeriod(1000)
	e.SetChannel(0, []uint32{100, 200})
	e.Start()

	sim.AdvanceTo(150)
	if port.Level(0) {
		t.Error("Inverted channel should be low after its first toggle")
	}
	sim.AdvanceTo(250)
	if !port.Level(0) {
		t.Error("Inverted channel should be high after its second toggle")
	}
}

func TestEmptyTableArms(t *testing.T) {
	e, sim, port := newTestEngine(EngineConfig{TickMultiplier: 4})

	e.SetPeriod(100)
	if !e.Start() {
		t.Fatal("Start with an empty table should arm")
	}
	if e.State() != StateRunning {
		t.Fatalf("Expected RUNNING, got %s", e.State())
	}
	sim.Advance(10 * 400)
	if len(port.History()) != 0 {
		t.Errorf("Empty table produced transitions: %+v", port.History())
	}

	e.Stop()
	sim.Advance(3 * 400)
	if e.State() != StateIdle {
		t.Errorf("Expected IDLE, got %s", e.State())
	}
}

func TestStopWithoutPeriodHaltsImmediately(t *testing.T) {
	e, sim, _ := newTestEngine(EngineConfig{})

	e.SetChannel(0, []uint32{1, 2})
	e.Start()
	if !e.Stop() {
		t.Fatal("Stop should be accepted")
	}
	if e.State() != StateIdle || sim.TimerRunning() {
		t.Errorf("Expected immediate halt, state=%s", e.State())
	}
}

func TestIndependentEngines(t *testing.T) {
	a, simA, _ := newTestEngine(EngineConfig{TickMultiplier: 4})
	b, _, _ := newTestEngine(EngineConfig{TickMultiplier: 1})

	a.SetPeriod(100)
	a.SetChannel(0, []uint32{10, 20})
	a.Start()

	if b.State() != StateIdle {
		t.Errorf("Engine b affected by engine a: %s", b.State())
	}
	if len(b.ChannelTimes(0, nil)) != 0 {
		t.Error("Engine b sees engine a's channel")
	}
	if simA.Period() != 400 {
		t.Errorf("Expected period register 400, got %d", simA.Period())
	}
}

func TestTraceRecordsStopSequence(t *testing.T) {
	e, sim, _ := newTestEngine(EngineConfig{TickMultiplier: 4})
	e.Trace().SetClock(func() uint32 { return uint32(sim.Now()) })

	e.SetPeriod(100)
	e.SetChannel(0, []uint32{10, 20})
	e.Start()
	e.Stop()
	sim.Advance(3 * 400)

	var kinds []uint8
	for _, evt := range e.Trace().Events(nil) {
		kinds = append(kinds, evt.Kind)
	}
	want := []uint8{EvtCommit, EvtArm, EvtStopRequest, EvtOneShot, EvtHalt}
	if len(kinds) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("Event %d: expected %d, got %d", i, want[i], kinds[i])
		}
	}

	var lines []string
	e.Trace().Dump(func(s string) { lines = append(lines, s) })
	if len(lines) != len(want)+2 {
		t.Errorf("Expected %d dump lines, got %d", len(want)+2, len(lines))
	}
}
