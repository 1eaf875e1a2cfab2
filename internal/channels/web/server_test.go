package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/roelfdiedericks/gocoach/internal/bus"
	"github.com/roelfdiedericks/gocoach/internal/interview"
)

// fakeInterview answers the interview component's commands.
type fakeInterview struct {
	mu       sync.Mutex
	snap     interview.Snapshot
	payloads map[string][]any
}

func (f *fakeInterview) register(b *bus.Bus) {
	reply := func(bus.Command) bus.CommandResult {
		f.mu.Lock()
		defer f.mu.Unlock()
		return bus.CommandResult{Success: true, Data: f.snap}
	}
	record := func(cmd bus.Command) bus.CommandResult {
		f.mu.Lock()
		f.payloads[cmd.Name] = append(f.payloads[cmd.Name], cmd.Payload)
		f.mu.Unlock()
		return reply(cmd)
	}
	b.RegisterCommand(interview.Component, interview.IntentSnapshot, reply)
	b.RegisterCommand(interview.Component, interview.IntentSetName, record)
	b.RegisterCommand(interview.Component, interview.IntentSetCount, record)
	b.RegisterCommand(interview.Component, interview.IntentStart, func(bus.Command) bus.CommandResult {
		return bus.CommandResult{Success: false, Message: "Please provide your name to start the interview."}
	})
}

func (f *fakeInterview) received(name string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.payloads[name]...)
}

type envelope struct {
	Type     string         `json:"type"`
	Snapshot map[string]any `json:"snapshot"`
	Intent   string         `json:"intent"`
	OK       bool           `json:"ok"`
	Error    string         `json:"error"`
}

type WebSuite struct {
	suite.Suite
	bus  *bus.Bus
	fake *fakeInterview
	srv  *httptest.Server
}

func TestWebSuite(t *testing.T) {
	suite.Run(t, new(WebSuite))
}

func (s *WebSuite) SetupTest() {
	s.bus = bus.New(32)
	s.fake = &fakeInterview{
		snap:     interview.Snapshot{Version: 1, Status: "Listening.", Settings: interview.Settings{CandidateName: "Dana", QuestionCount: 5, Difficulty: "medium"}},
		payloads: make(map[string][]any),
	}
	s.fake.register(s.bus)
	s.srv = httptest.NewServer(NewServer(Config{}, s.bus).Handler())
}

func (s *WebSuite) TearDownTest() {
	s.srv.Close()
}

func (s *WebSuite) dial() *websocket.Conn {
	u := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	s.Require().NoError(err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *WebSuite) read(conn *websocket.Conn) envelope {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(3 * time.Second)))
	var msg envelope
	s.Require().NoError(conn.ReadJSON(&msg))
	return msg
}

func (s *WebSuite) TestInitialSnapshot() {
	conn := s.dial()
	msg := s.read(conn)
	s.Equal("snapshot", msg.Type)
	s.Equal("Dana", msg.Snapshot["candidateName"])
	s.Equal("idle", msg.Snapshot["phase"])
	s.Equal("Listening.", msg.Snapshot["status"])
}

func (s *WebSuite) TestStreamsPublishedSnapshots() {
	conn := s.dial()
	s.read(conn)

	s.bus.Publish(interview.TopicSnapshot, interview.Snapshot{Version: 2, Phase: interview.PhaseQuestionActive, CurrentQuestion: "Hi Dana"}, "interview")

	msg := s.read(conn)
	s.Equal("snapshot", msg.Type)
	s.Equal("question-active", msg.Snapshot["phase"])
	s.Equal("Hi Dana", msg.Snapshot["currentQuestion"])
	s.EqualValues(2, msg.Snapshot["version"])
}

func (s *WebSuite) TestIntentsReachTheBus() {
	conn := s.dial()
	s.read(conn)

	s.Require().NoError(conn.WriteJSON(map[string]any{"id": "1", "intent": "set-name", "value": "Lee"}))
	res := s.read(conn)
	s.Equal("result", res.Type)
	s.Equal("set-name", res.Intent)
	s.True(res.OK)

	s.Require().NoError(conn.WriteJSON(map[string]any{"intent": "set-count", "value": 7}))
	res = s.read(conn)
	s.True(res.OK)

	s.Equal([]any{"Lee"}, s.fake.received(interview.IntentSetName))
	s.Equal([]any{float64(7)}, s.fake.received(interview.IntentSetCount))
}

func (s *WebSuite) TestFailedIntentReportsMessage() {
	conn := s.dial()
	s.read(conn)

	s.Require().NoError(conn.WriteJSON(map[string]any{"intent": "start"}))
	res := s.read(conn)
	s.False(res.OK)
	s.Equal("Please provide your name to start the interview.", res.Error)

	s.Require().NoError(conn.WriteJSON(map[string]any{"intent": "no-such-intent"}))
	res = s.read(conn)
	s.False(res.OK)
	s.Contains(res.Error, "unknown command")

	s.Require().NoError(conn.WriteJSON(map[string]any{"intent": ""}))
	res = s.read(conn)
	s.False(res.OK)
	s.Equal("missing intent", res.Error)
}

func (s *WebSuite) TestHealthz() {
	resp, err := http.Get(s.srv.URL + "/healthz")
	s.Require().NoError(err)
	defer resp.Body.Close()

	var body map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Equal("ok", body["status"])
	s.Equal("idle", body["phase"])
}

func (s *WebSuite) TestMetricsAndIndex() {
	resp, err := http.Get(s.srv.URL + "/metrics.json")
	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("application/json", resp.Header.Get("Content-Type"))
	resp.Body.Close()

	resp, err = http.Get(s.srv.URL + "/")
	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(s.srv.URL + "/missing")
	s.Require().NoError(err)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCrossOriginRejected(t *testing.T) {
	b := bus.New(8)
	srv := httptest.NewServer(NewServer(Config{}, b).Handler())
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(u, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOfferKeepsNewest(t *testing.T) {
	c := &client{snaps: make(chan interview.Snapshot, 1)}
	c.offer(interview.Snapshot{Version: 3})
	c.offer(interview.Snapshot{Version: 4})
	c.offer(interview.Snapshot{Version: 2})

	got := <-c.snaps
	assert.Equal(t, uint64(4), got.Version)
}
