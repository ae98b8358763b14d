package report

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/davidplowman/imx258/internal/fsutil"
	"github.com/davidplowman/imx258/internal/regbus"
	"github.com/davidplowman/imx258/internal/sensor"
	"github.com/davidplowman/imx258/internal/trace"
)

type testFixture struct {
	gen     *Generator
	fs      *fsutil.MemoryFileSystem
	store   *trace.Store
	session string
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	store, err := trace.NewStore(filepath.Join(t.TempDir(), "trace.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	session, err := store.BeginSession("report test")
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}

	fs := fsutil.NewMemoryFileSystem()
	return &testFixture{
		gen:     NewGenerator(store, fs, "reports"),
		fs:      fs,
		store:   store,
		session: session,
	}
}

func (f *testFixture) record(at time.Time, op string, addr uint16, value uint32, ok bool, latency time.Duration) {
	f.store.RecordOp(regbus.TraceOp{
		Time:    at,
		Op:      op,
		Addr:    addr,
		Width:   regbus.W16,
		Value:   value,
		OK:      ok,
		Latency: latency,
	})
}

func (f *testFixture) seedWrites() {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	latencies := []time.Duration{
		100 * time.Microsecond,
		200 * time.Microsecond,
		300 * time.Microsecond,
		400 * time.Microsecond,
		500 * time.Microsecond,
	}
	addrs := []uint16{0x0136, 0x0340, 0x0340, 0x0202, 0x0100}
	for i, lat := range latencies {
		f.record(base.Add(time.Duration(i)*5*time.Millisecond), "write", addrs[i], uint32(i+1), true, lat)
	}
	f.record(base, "read", 0x0016, 0x0258, true, 50*time.Microsecond)
}

func TestRegisterTimeline(t *testing.T) {
	f := newTestFixture(t)
	f.seedWrites()

	path, err := f.gen.RegisterTimeline(f.session)
	if err != nil {
		t.Fatalf("RegisterTimeline: %v", err)
	}
	if path != filepath.Join("reports", "register_timeline.html") {
		t.Errorf("timeline path = %q", path)
	}

	data, err := f.fs.ReadFile(path)
	if err != nil {
		t.Fatalf("read timeline: %v", err)
	}
	html := string(data)
	if !strings.Contains(html, "echarts") {
		t.Error("timeline HTML does not embed echarts")
	}
	if !strings.Contains(html, "Register Write Timeline") {
		t.Error("timeline HTML missing title")
	}
}

func TestRegisterTimelineEmptySession(t *testing.T) {
	f := newTestFixture(t)

	if _, err := f.gen.RegisterTimeline(f.session); err == nil {
		t.Error("RegisterTimeline with no writes did not error")
	}
}

func TestWriteCountsChart(t *testing.T) {
	f := newTestFixture(t)
	f.seedWrites()

	path, err := f.gen.WriteCountsChart(f.session)
	if err != nil {
		t.Fatalf("WriteCountsChart: %v", err)
	}

	data, err := f.fs.ReadFile(path)
	if err != nil {
		t.Fatalf("read counts chart: %v", err)
	}
	html := string(data)
	if !strings.Contains(html, "0x0340") {
		t.Error("counts chart missing the double-written register label")
	}
}

func TestLatencyStatsFor(t *testing.T) {
	f := newTestFixture(t)
	f.seedWrites()

	s, err := f.gen.LatencyStatsFor(f.session, "write")
	if err != nil {
		t.Fatalf("LatencyStatsFor(write): %v", err)
	}
	if s.Count != 5 {
		t.Fatalf("write count = %d, want 5", s.Count)
	}
	if math.Abs(s.Mean-300) > 0.01 {
		t.Errorf("mean = %v, want 300", s.Mean)
	}
	if math.Abs(s.StdDev-158.113883) > 0.001 {
		t.Errorf("stddev = %v, want about 158.11", s.StdDev)
	}
	if s.P50 != 300 || s.P90 != 500 || s.P99 != 500 {
		t.Errorf("quantiles = %v/%v/%v, want 300/500/500", s.P50, s.P90, s.P99)
	}

	r, err := f.gen.LatencyStatsFor(f.session, "read")
	if err != nil {
		t.Fatalf("LatencyStatsFor(read): %v", err)
	}
	if r.Count != 1 || r.Mean != 50 || r.StdDev != 0 {
		t.Errorf("read stats = %+v, want count 1 mean 50 stddev 0", r)
	}
}

func TestLatencyStatsEmpty(t *testing.T) {
	f := newTestFixture(t)

	s, err := f.gen.LatencyStatsFor(f.session, "write")
	if err != nil {
		t.Fatalf("LatencyStatsFor: %v", err)
	}
	if s.Count != 0 || s.Mean != 0 {
		t.Errorf("empty session stats = %+v, want zeros", s)
	}
}

func TestWriteLatencyReport(t *testing.T) {
	f := newTestFixture(t)
	f.seedWrites()

	path, err := f.gen.WriteLatencyReport(f.session)
	if err != nil {
		t.Fatalf("WriteLatencyReport: %v", err)
	}

	data, err := f.fs.ReadFile(path)
	if err != nil {
		t.Fatalf("read latency report: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, f.session) {
		t.Error("latency report missing session id")
	}
	for _, want := range []string{"read", "write", "p99"} {
		if !strings.Contains(text, want) {
			t.Errorf("latency report missing %q", want)
		}
	}
}

func TestExposureEnvelopePNG(t *testing.T) {
	f := newTestFixture(t)

	path, err := f.gen.ExposureEnvelopePNG()
	if err != nil {
		t.Fatalf("ExposureEnvelopePNG: %v", err)
	}

	data, err := f.fs.ReadFile(path)
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Error("envelope output is not a PNG")
	}
}

func TestEnvelopePoints(t *testing.T) {
	modes := sensor.Modes()
	pts := envelopePoints(modes[0])
	if len(pts) == 0 {
		t.Fatal("no envelope points")
	}

	// The curve starts at the mode's VBLANK floor, where the ceiling
	// matches the default exposure maximum.
	if pts[0].X != 1723 || pts[0].Y != 4821 {
		t.Errorf("first point = (%v, %v), want (1723, 4821)", pts[0].X, pts[0].Y)
	}

	// Once the frame length leaves the 16-bit range the shifted offset
	// applies.
	for _, pt := range pts {
		vb := int64(pt.X)
		fl := uint32(vb + 3120)
		shift, _ := sensor.LongExposureShift(fl)
		want := float64(vb + 3120 - int64(sensor.ExposureOffset<<shift))
		if pt.Y != want {
			t.Fatalf("point at vblank %d = %v, want %v (shift %d)", vb, pt.Y, want, shift)
		}
		if shift > 0 {
			return // saw the envelope cross into shift territory
		}
	}
	t.Error("envelope never reached long exposure territory")
}

func TestGenerateAll(t *testing.T) {
	f := newTestFixture(t)
	f.seedWrites()

	paths, err := f.gen.GenerateAll(f.session)
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	if len(paths) != 4 {
		t.Fatalf("got %d report files, want 4", len(paths))
	}

	if !f.fs.Exists("reports") {
		t.Error("output directory was not created")
	}
	for _, path := range paths {
		if !f.fs.Exists(path) {
			t.Errorf("report %s missing from filesystem", path)
		}
	}
}
