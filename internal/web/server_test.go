package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/display-powerd/internal/display"
	"github.com/sweeney/display-powerd/internal/status"
)

type fakeDumper struct {
	text string
	err  error
}

func (f *fakeDumper) DumpStandby(_ context.Context, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, f.text)
	return err
}

func newTestServer(t *testing.T, dumper StandbyDumper) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		NormalTimeout: 30 * time.Second,
		DimTimeout:    5 * time.Second,
		LCDOffTimeout: 10 * time.Second,
		DimEnabled:    true,
		Heartbeat:     15 * time.Minute,
		Broker:        "tcp://192.168.1.200:1883",
		HTTPAddr:      ":80",
	}
	tr := status.NewTracker(start, cfg)
	log, _ := test.NewNullLogger()
	srv := New(":0", tr, dumper, log)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.Update(display.Snapshot{
		Current:       display.StateLCDOff,
		Previous:      display.StateNormal,
		OffReason:     display.OffReasonRequest,
		StandbyActive: true,
		Detection:     "available",
	}, []status.Holder{{PID: 100, Name: "media-player"}})
	tr.RecordTransition(display.Transition{To: display.StateLCDOff})
	tr.SetMQTTConnected(true)

	resp, body := get(t, ts.URL+"/index.json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal([]byte(body), &sj))
	assert.Equal(t, "LCDOFF", sj.Status.State)
	assert.Equal(t, "NORMAL", sj.Status.Previous)
	assert.Equal(t, "request", sj.Status.OffReason)
	assert.True(t, sj.Status.Standby.Active)
	assert.Equal(t, 100, sj.Status.Standby.Holders[0].PID)
	assert.True(t, sj.Status.MQTT.Connected)
	assert.Equal(t, "tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	assert.Equal(t, int64(1), sj.Status.Counts.Transitions["LCDOFF"])
	assert.Equal(t, int64(30000), sj.Status.Config.NormalMs)
}

func TestJSONBeforeStart(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	_, body := get(t, ts.URL+"/index.json")

	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal([]byte(body), &sj))
	assert.Equal(t, "START", sj.Status.State)
	assert.Equal(t, "unknown", sj.Status.Detection)
}

func TestIndexHTML(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.Update(display.Snapshot{Current: display.StateDim, Previous: display.StateNormal, StandbyActive: true},
		[]status.Holder{{PID: 42, Name: "recorder"}})
	tr.RecordTransition(display.Transition{To: display.StateDim})

	for _, path := range []string{"/", "/index.html"} {
		resp, body := get(t, ts.URL+path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
		assert.Contains(t, body, `<td id="state" class="dim">DIM</td>`)
		assert.Contains(t, body, "<th>pid 42</th><td>recorder</td>")
		assert.Contains(t, body, "<th>DIM</th><td>1</td>")
		assert.Contains(t, body, "<td>none</td>", "empty off reason")
		assert.Contains(t, body, "15m0s")
	}
}

func TestIndexHTMLNoTransitions(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	_, body := get(t, ts.URL+"/")
	assert.Contains(t, body, "none yet")
	assert.Contains(t, body, "inactive")
}

func TestNotFound(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp, _ := get(t, ts.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStandbyEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, &fakeDumper{text: "standby mode: inactive\n"})
	resp, body := get(t, ts.URL+"/standby")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "standby mode: inactive\n", body)
}

func TestStandbyEndpointError(t *testing.T) {
	ts, _ := newTestServer(t, &fakeDumper{err: errors.New("loop stopped")})
	resp, _ := get(t, ts.URL+"/standby")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStandbyEndpointWithoutDumper(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp, _ := get(t, ts.URL+"/standby")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeAndShutdown(t *testing.T) {
	log, _ := test.NewNullLogger()
	srv := New(":0", status.NewTracker(time.Now(), status.Config{}), nil, log)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, _ := get(t, "http://"+ln.Addr().String()+"/index.json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.ErrorIs(t, <-done, http.ErrServerClosed)
}

func TestUptimeFormat(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{2*time.Minute + 3*time.Second, "2m 3s"},
		{3*time.Hour + 4*time.Minute, "3h 4m 0s"},
		{50*time.Hour + 1500*time.Millisecond, "2d 2h 0m 1s"},
	}
	epoch := time.Unix(0, 0)
	for _, tc := range cases {
		var sb strings.Builder
		require.NoError(t, renderHTML(&sb, status.Snapshot{StartTime: epoch, Now: epoch.Add(tc.d)}))
		assert.Contains(t, sb.String(), "<td>"+tc.want+"</td>", tc.d.String())
	}
}
