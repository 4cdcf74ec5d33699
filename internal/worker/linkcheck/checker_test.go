package linkcheck

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/schemebot/internal/model"
	"github.com/hitoshi/schemebot/internal/security"
	"go.uber.org/goleak"
)

// --- モック定義 ---

type allowAll struct{}

func (allowAll) ValidateURL(string) error { return nil }

type mockRecorder struct {
	mu     sync.Mutex
	ok     int
	broken int
}

func (m *mockRecorder) RecordLinkCheck(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.ok++
	} else {
		m.broken++
	}
}

type staticSource struct {
	links []Link
	err   error
}

func (s *staticSource) Links(ctx context.Context) ([]Link, error) {
	return s.links, s.err
}

type mockCatalog struct {
	records []model.SchemeRecord
}

func (m *mockCatalog) All() []model.SchemeRecord { return m.records }

type mockSchemeLister struct {
	schemes []*model.Scheme
	err     error
}

func (m *mockSchemeLister) List(ctx context.Context) ([]*model.Scheme, error) {
	return m.schemes, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newLinkServer はパスごとに固定ステータスを返すテストサーバーを起動する。
func newLinkServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/error", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/bot-wall", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/get-only", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		io.WriteString(w, "hello")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// --- テスト ---

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Result
	}{
		{200, ResultOK},
		{204, ResultOK},
		{301, ResultOK},
		{401, ResultInconclusive},
		{403, ResultInconclusive},
		{405, ResultInconclusive},
		{429, ResultInconclusive},
		{404, ResultBroken},
		{410, ResultBroken},
		{500, ResultBroken},
		{503, ResultBroken},
	}
	for _, tt := range tests {
		if got := ClassifyHTTPStatus(tt.status); got != tt.want {
			t.Errorf("ClassifyHTTPStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestChecker_Check(t *testing.T) {
	srv := newLinkServer(t)
	c := NewChecker(srv.Client(), allowAll{}, &mockRecorder{}, discardLogger(), 2)

	tests := []struct {
		path       string
		want       Result
		wantStatus int
	}{
		{path: "/ok", want: ResultOK, wantStatus: 200},
		{path: "/gone", want: ResultBroken, wantStatus: 404},
		{path: "/error", want: ResultBroken, wantStatus: 502},
		{path: "/bot-wall", want: ResultInconclusive, wantStatus: 403},
		{path: "/get-only", want: ResultOK, wantStatus: 200},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			f := c.Check(context.Background(), Link{URL: srv.URL + tt.path})
			if f.Result != tt.want || f.StatusCode != tt.wantStatus {
				t.Errorf("Check(%s) = (%v, %d), want (%v, %d)", tt.path, f.Result, f.StatusCode, tt.want, tt.wantStatus)
			}
		})
	}
}

func TestChecker_Check_ConnectionFailureIsBroken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewChecker(&http.Client{Timeout: time.Second}, allowAll{}, &mockRecorder{}, discardLogger(), 1)
	f := c.Check(context.Background(), Link{URL: url})
	if f.Result != ResultBroken || f.Err == nil {
		t.Errorf("Check() = %+v, want broken with error", f)
	}
}

func TestChecker_Check_SSRFGuardBlocksPrivateLinks(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	guard := security.NewSSRFGuard()
	c := NewChecker(srv.Client(), guard, &mockRecorder{}, discardLogger(), 1)

	for _, u := range []string{srv.URL + "/internal", "http://169.254.169.254/latest/meta-data", "file:///etc/passwd"} {
		f := c.Check(context.Background(), Link{URL: u})
		if f.Result != ResultBroken || f.Err == nil {
			t.Errorf("Check(%s) = %+v, want blocked", u, f)
		}
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("server received %d requests, want 0", n)
	}
}

func TestChecker_RunOnce_AggregatesAndDeduplicates(t *testing.T) {
	srv := newLinkServer(t)
	rec := &mockRecorder{}
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))
	c := NewChecker(srv.Client(), allowAll{}, rec, logger, 3)

	catalogSrc := NewCatalogSource(&mockCatalog{records: []model.SchemeRecord{
		{Name: "A", Link: srv.URL + "/ok"},
		{Name: "B", Link: srv.URL + "/gone"},
		{Name: "No link"},
	}})
	portalSrc := NewPortalSource(&mockSchemeLister{schemes: []*model.Scheme{
		{Name: "A duplicate", Link: srv.URL + "/ok"},
		{Name: "C", Link: srv.URL + "/bot-wall"},
		{Name: "D", Link: srv.URL + "/error"},
	}})

	report, err := c.RunOnce(context.Background(), catalogSrc, portalSrc)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if report.Checked != 4 || report.OK != 1 || report.Inconclusive != 1 || len(report.Broken) != 2 {
		t.Errorf("report = %+v, want checked=4 ok=1 inconclusive=1 broken=2", report)
	}
	var brokenNames []string
	for _, f := range report.Broken {
		brokenNames = append(brokenNames, f.Link.Name)
	}
	sort.Strings(brokenNames)
	if len(brokenNames) != 2 || brokenNames[0] != "B" || brokenNames[1] != "D" {
		t.Errorf("broken = %v, want [B D]", brokenNames)
	}
	if rec.ok != 1 || rec.broken != 2 {
		t.Errorf("recorded ok=%d broken=%d, want 1/2", rec.ok, rec.broken)
	}
	if !bytes.Contains(logBuf.Bytes(), []byte(`"msg":"broken scheme link"`)) {
		t.Errorf("expected broken link warning in logs: %s", logBuf.String())
	}
}

func TestChecker_RunOnce_SourceErrorDoesNotStopCycle(t *testing.T) {
	srv := newLinkServer(t)
	rec := &mockRecorder{}
	c := NewChecker(srv.Client(), allowAll{}, rec, discardLogger(), 1)

	report, err := c.RunOnce(context.Background(),
		NewPortalSource(&mockSchemeLister{err: errors.New("db down")}),
		&staticSource{links: []Link{{Name: "ok", URL: srv.URL + "/ok"}}},
	)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if report.Checked != 1 || report.OK != 1 {
		t.Errorf("report = %+v, want one ok link", report)
	}
}

func TestChecker_RunOnce_RespectsConcurrencyLimit(t *testing.T) {
	var current, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
	}))
	defer srv.Close()

	var links []Link
	for i := range 10 {
		links = append(links, Link{Name: "s", URL: srv.URL + "/" + string(rune('a'+i))})
	}

	c := NewChecker(srv.Client(), allowAll{}, &mockRecorder{}, discardLogger(), 2)
	if _, err := c.RunOnce(context.Background(), &staticSource{links: links}); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestChecker_RunOnce_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewChecker(http.DefaultClient, allowAll{}, &mockRecorder{}, discardLogger(), 1)
	_, err := c.RunOnce(ctx, &staticSource{links: []Link{{URL: "https://example.com"}}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RunOnce() error = %v, want context.Canceled", err)
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var calls atomic.Int32
	src := &countingSource{calls: &calls}
	c := NewChecker(http.DefaultClient, allowAll{}, &mockRecorder{}, discardLogger(), 1)
	s := NewScheduler(c, discardLogger(), src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	if calls.Load() < 2 {
		t.Errorf("source called %d times, want at least 2", calls.Load())
	}
}

type countingSource struct {
	calls *atomic.Int32
}

func (s *countingSource) Links(ctx context.Context) ([]Link, error) {
	s.calls.Add(1)
	return nil, nil
}
