package monitor

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"throttle-quadrant/internal/axis"
	"throttle-quadrant/internal/hid"
	"throttle-quadrant/internal/logger"
	"throttle-quadrant/internal/types"
)

type commandRecorder struct {
	mu   sync.Mutex
	cmds []string
	err  error
}

func (r *commandRecorder) handle(cmd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return r.err
}

func (r *commandRecorder) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *commandRecorder) received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.cmds...)
}

func newTestServer(t *testing.T, cmds CommandFunc) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer("", logger.NewLogger(nil, logger.LogLevelNone), cmds)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.closeClients()
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func TestStateEndpoint(t *testing.T) {
	s, ts := newTestServer(t, nil)

	bounds := []axis.Bounds{{Min: 100, Max: 4000}}
	s.PublishCalibration(bounds)
	bounds[0].Min = 0
	s.PublishSnapshot(types.Snapshot{
		Stage:  types.StageCalibrationLow,
		Report: hid.Report{X: 12},
		Raw:    []uint16{1, 2, 3},
	})

	resp, err := http.Get(ts.URL + "/api/state")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var st State
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Stage != types.StageCalibrationLow {
		t.Errorf("stage = %s", st.Stage)
	}
	if len(st.Bounds) != 1 || st.Bounds[0].Min != 100 {
		t.Errorf("bounds = %v, want copy of published bounds", st.Bounds)
	}
	if st.Snapshot == nil || st.Snapshot.Report.X != 12 {
		t.Errorf("snapshot = %+v", st.Snapshot)
	}
}

func TestStateEndpointRejectsPost(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, err := http.Post(ts.URL+"/api/state", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestCommandEndpoint(t *testing.T) {
	rec := &commandRecorder{}
	_, ts := newTestServer(t, rec.handle)

	resp, err := http.Post(ts.URL+"/api/command", "application/json", strings.NewReader(`{"action":"calibrate"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := rec.received(); len(got) != 1 || got[0] != "calibrate" {
		t.Errorf("commands = %v", got)
	}

	rec.fail(errors.New("unknown command"))
	resp, err = http.Post(ts.URL+"/api/command", "application/json", strings.NewReader(`{"action":"bogus"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("rejected command status = %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/api/command", "application/json", strings.NewReader(`not json`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", resp.StatusCode)
	}
}

func TestCommandEndpointDisabled(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, err := http.Post(ts.URL+"/api/command", "application/json", strings.NewReader(`{"action":"calibrate"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestWebsocketStreamsEvents(t *testing.T) {
	s, ts := newTestServer(t, nil)
	s.PublishStage(types.StageCalibrationHigh)

	conn := dial(t, ts)

	// The initial state event is queued before the client is registered
	initial := readEvent(t, conn)
	if initial.Type != "state" || initial.Stage != types.StageCalibrationHigh {
		t.Fatalf("initial event = %+v", initial)
	}

	s.PublishStage(types.StageNormal)
	ev := readEvent(t, conn)
	if ev.Type != "stage" || ev.Stage != types.StageNormal {
		t.Errorf("stage event = %+v", ev)
	}

	s.PublishCalibration([]axis.Bounds{{Min: 10, Max: 20}})
	ev = readEvent(t, conn)
	if ev.Type != "calibration" || len(ev.Bounds) != 1 || ev.Bounds[0].Max != 20 {
		t.Errorf("calibration event = %+v", ev)
	}

	s.PublishSnapshot(types.Snapshot{Stage: types.StageNormal, Report: hid.Report{Y: 512, Buttons: hid.ButtonReverse}})
	ev = readEvent(t, conn)
	if ev.Type != "snapshot" || ev.Snapshot == nil || ev.Snapshot.Report.Y != 512 {
		t.Errorf("snapshot event = %+v", ev)
	}
}

func TestWebsocketForwardsCommands(t *testing.T) {
	rec := &commandRecorder{}
	_, ts := newTestServer(t, rec.handle)

	conn := dial(t, ts)
	readEvent(t, conn)

	if err := conn.WriteJSON(WSMessage{Action: "reset-calibration"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := rec.received(); len(got) == 1 {
			if got[0] != "reset-calibration" {
				t.Errorf("command = %q", got[0])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("command not forwarded")
}

func TestSlowClientDropsEvents(t *testing.T) {
	s := NewServer("", logger.NewLogger(nil, logger.LogLevelNone), nil)
	c := &client{send: make(chan Event, 1)}
	s.clients[c] = struct{}{}

	s.PublishStage(types.StageCalibrationLow)
	s.PublishStage(types.StageCalibrationHigh)

	if len(c.send) != 1 {
		t.Fatalf("queued = %d, want 1", len(c.send))
	}
	if ev := <-c.send; ev.Stage != types.StageCalibrationLow {
		t.Errorf("kept event = %+v, want first", ev)
	}
	s.closeClients()
	if len(s.clients) != 0 {
		t.Error("clients not cleared")
	}
}
