package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/roelfdiedericks/gocoach/internal/capture"
	"github.com/roelfdiedericks/gocoach/internal/gateway"
	"github.com/roelfdiedericks/gocoach/internal/llm"
	"github.com/roelfdiedericks/gocoach/internal/llm/llmtest"
	"github.com/roelfdiedericks/gocoach/internal/narration"
)

const (
	relevanceMatch = "Following is the job description"
	keywordMatch   = "Act as an ATS scanner"
	questionMatch  = "expert technical interviewer"
	feedbackMatch  = "reviewing an interview response"

	goKafkaJob = "Senior backend engineer. You will build Go services on top of Kafka and Postgres."
)

var modelQuestions = []string{
	"Tell me about yourself.",
	"How does Kafka guarantee ordering within a partition?",
	"How would you structure a Go service that consumes Kafka topics?",
	"How do you test concurrent Go code?",
	"Why do you think you're a strong fit for this role?",
}

// spokenSynth finishes every utterance immediately.
type spokenSynth struct {
	mu     sync.Mutex
	spoken []string
}

func (s *spokenSynth) Name() string     { return "instant" }
func (s *spokenSynth) Available() error { return nil }
func (s *spokenSynth) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
	return nil
}

func (s *spokenSynth) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func reply(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}

// echoFeedback answers feedback prompts with the question they were asked about.
func echoFeedback(ctx context.Context, req llm.CompletionRequest) (string, error) {
	q := req.Prompt[strings.Index(req.Prompt, "Question: ")+len("Question: "):]
	q = q[:strings.Index(q, "\n")]
	return reply(map[string]string{"feedback": "Feedback: " + q}), nil
}

type InterviewSuite struct {
	suite.Suite
	host  *llmtest.Host
	gw    *gateway.Gateway
	rec   *capture.TypedRecognizer
	mic   *capture.Adapter
	synth *spokenSynth
	o     *Orchestrator
}

func TestInterviewSuite(t *testing.T) {
	suite.Run(t, new(InterviewSuite))
}

func (s *InterviewSuite) SetupTest() {
	s.host = llmtest.New()
	gw, err := gateway.New(s.host, gateway.Options{RequireUserActivation: true})
	s.Require().NoError(err)
	s.gw = gw
	s.o = s.newOrchestrator(false)
}

func (s *InterviewSuite) TearDownTest() {
	s.o.Close()
}

func (s *InterviewSuite) newOrchestrator(ambient bool) *Orchestrator {
	s.rec = capture.NewTypedRecognizer()
	s.mic = capture.NewAdapter(s.rec, s.rec)
	s.synth = &spokenSynth{}
	o, err := New(Options{
		Capture:   s.mic,
		Narrator:  narration.NewAdapter(s.synth),
		Generator: s.gw,
		Settings:  Settings{QuestionCount: 5, Difficulty: "medium"},
		Ambient:   ambient,
	})
	s.Require().NoError(err)
	return o
}

// defaults scripts the happy path. Routes added before it take precedence.
func (s *InterviewSuite) defaults() {
	s.host.Reply(relevanceMatch, `{"result":true}`).
		Reply(keywordMatch, "```json\n{\"keywords\":[\"Go\",\"Kafka\"]}\n```").
		Reply(questionMatch, reply(map[string][]string{"questions": modelQuestions})).
		On(feedbackMatch, echoFeedback)
}

func (s *InterviewSuite) configure(name, description string) {
	s.Require().NoError(s.o.SetCandidateName(name))
	s.Require().NoError(s.o.SetJobDescription(description))
}

func (s *InterviewSuite) start() Snapshot {
	s.Require().NoError(s.o.StartInterview())
	s.o.Wait()
	return s.o.Snapshot()
}

func (s *InterviewSuite) answer(text string) {
	s.o.StartAnswer()
	s.o.Wait()
	s.Require().True(s.o.Snapshot().IsAnswering)
	if text != "" {
		s.rec.Commit(text)
	}
	s.o.SubmitAnswer()
	s.o.Wait()
}

func (s *InterviewSuite) TestDanaScenario() {
	s.defaults()
	s.configure("Dana", goKafkaJob)

	snap := s.start()
	s.Equal(PhaseQuestionActive, snap.Phase)
	s.Equal(TurnAwaitingAnswer, snap.Turn)
	s.Equal(5, snap.TotalQuestions)
	s.Equal(0, snap.QuestionIndex)
	s.Equal("Hi Dana, could you please walk me through your background?", snap.CurrentQuestion)
	s.Equal("Question 1 of 5", snap.Status)
	s.Equal([]string{"Go", "Kafka"}, snap.Keywords)
	s.Empty(snap.Loaders)
	s.Equal(gateway.AvailabilityReady, snap.Availability)
	s.NotEmpty(snap.RunID)
	s.True(snap.IsInterviewActive)
	s.Equal([]string{snap.CurrentQuestion}, s.synth.Spoken())

	for i := range 5 {
		s.answer(fmt.Sprintf("answer %d", i+1))
	}

	snap = s.o.Snapshot()
	s.Equal(PhaseReviewReady, snap.Phase)
	s.True(snap.InterviewComplete)
	s.True(snap.ReviewReady)
	s.Equal(StatusInterviewComplete, snap.Status)
	s.Require().Len(snap.Answers, 5)
	s.Require().Len(snap.Feedback, 5)
	s.Equal(gateway.FitQuestion, snap.Answers[4].Question)
	for i, fb := range snap.Feedback {
		s.Equal(snap.Answers[i].Question, fb.Question)
		s.Equal(fmt.Sprintf("answer %d", i+1), fb.Answer)
		s.Equal("Feedback: "+fb.Question, fb.Feedback)
	}
	s.Empty(snap.Loaders)
	s.Len(s.synth.Spoken(), 5)
	s.Equal(5, s.host.CallsMatching(feedbackMatch))
}

func (s *InterviewSuite) TestBlankSubmitRecordsEmptyAnswer() {
	s.defaults()
	s.configure("Dana", goKafkaJob)
	first := s.start()

	s.o.SubmitAnswer()
	s.o.Wait()

	snap := s.o.Snapshot()
	s.Equal([]Answer{{Question: first.CurrentQuestion, Answer: ""}}, snap.Answers)
	s.Equal(1, snap.QuestionIndex)
	s.Equal("Question 2 of 5", snap.Status)
	spoken := s.synth.Spoken()
	s.Equal(snap.CurrentQuestion, spoken[len(spoken)-1])
}

func (s *InterviewSuite) TestInterimTranscriptIsSubmitted() {
	s.defaults()
	s.configure("Dana", goKafkaJob)
	s.start()

	s.o.StartAnswer()
	s.o.Wait()
	s.rec.Commit("I build")
	s.rec.Type("Go services")
	s.o.Wait()
	s.Equal("I build Go services", s.o.Snapshot().Transcript)

	s.o.SubmitAnswer()
	s.o.Wait()
	s.Equal("I build Go services", s.o.Snapshot().Answers[0].Answer)
	s.False(s.mic.State().Listening)
}

func (s *InterviewSuite) TestRestartAnswerClearsTranscript() {
	s.defaults()
	s.configure("Dana", goKafkaJob)
	s.start()

	s.o.StartAnswer()
	s.o.Wait()
	s.rec.Commit("umm, let me start over")
	s.o.RestartAnswer()
	s.o.Wait()

	snap := s.o.Snapshot()
	s.Equal(StatusRecordingRestarted, snap.Status)
	s.Empty(snap.Transcript)
	s.True(snap.IsAnswering)
}

func (s *InterviewSuite) TestRecognitionDropWhileAnswering() {
	s.defaults()
	s.configure("Dana", goKafkaJob)
	s.start()

	s.o.StartAnswer()
	s.o.Wait()
	s.rec.Fail(capture.CodeNetwork)
	s.o.Wait()

	snap := s.o.Snapshot()
	s.False(snap.Listening)
	s.True(snap.IsAnswering, "turn stays in recording until restarted")
	s.Equal(KindRecognitionDropped, snap.ErrorKind)
	s.Equal(StatusPaused, snap.Status)

	starts := s.rec.Starts()
	s.o.RestartAnswer()
	s.o.Wait()
	s.Equal(starts+1, s.rec.Starts())
	s.True(s.o.Snapshot().Listening)
	s.Equal(KindNone, s.o.Snapshot().ErrorKind)
}

func (s *InterviewSuite) TestPlayQuestionAfterRecognitionDrop() {
	s.defaults()
	s.configure("Dana", goKafkaJob)
	snap := s.start()

	s.o.StartAnswer()
	s.o.Wait()
	spoken := len(s.synth.Spoken())

	// ignored while the microphone is live
	s.o.PlayQuestion()
	s.o.Wait()
	s.Len(s.synth.Spoken(), spoken)

	s.rec.Fail(capture.CodeNetwork)
	s.o.Wait()
	s.o.PlayQuestion()
	s.o.Wait()
	s.Len(s.synth.Spoken(), spoken+1)
	s.Equal(snap.CurrentQuestion, s.synth.Spoken()[spoken])
	s.Equal(TurnAwaitingAnswer, s.o.Snapshot().Turn)
}

func (s *InterviewSuite) TestEndInterviewResetsAndIsIdempotent() {
	s.defaults()
	s.configure("Dana", goKafkaJob)
	s.start()
	s.answer("first answer")

	s.o.EndInterview()
	s.o.Wait()
	first := s.o.Snapshot()
	s.Equal(PhaseIdle, first.Phase)
	s.Equal(StatusInterviewEnded, first.Status)
	s.Zero(first.TotalQuestions)
	s.Zero(first.QuestionIndex)
	s.Empty(first.Answers)
	s.Empty(first.Feedback)
	s.Empty(first.Loaders)
	s.Empty(first.Transcript)
	s.Empty(first.RunID)
	s.False(first.IsInterviewActive)
	s.Equal("Dana", first.CandidateName)
	s.Equal(goKafkaJob, first.JobDescription)

	s.o.EndInterview()
	s.o.Wait()
	second := s.o.Snapshot()
	second.Version = first.Version
	s.Equal(first, second)
}

func (s *InterviewSuite) TestNameRequired() {
	s.defaults()
	s.configure("   ", goKafkaJob)

	err := s.o.StartInterview()
	s.ErrorIs(err, ErrNameRequired)
	s.o.Wait()

	snap := s.o.Snapshot()
	s.Equal(KindNameRequired, snap.ErrorKind)
	s.Equal(ErrTextNameRequired, snap.Error)
	s.Equal(PhaseIdle, snap.Phase)
	s.Empty(s.host.Calls())
}

func (s *InterviewSuite) TestEmptyDescriptionIsInvalid() {
	s.host.Reply(relevanceMatch, `{"result":false}`)
	s.defaults()
	s.configure("Dana", "")

	snap := s.start()
	s.Equal(KindDescriptionInvalid, snap.ErrorKind)
	s.Equal(ErrTextDescriptionInvalid, snap.Status)
	s.Equal(PhaseIdle, snap.Phase)
	s.Zero(snap.TotalQuestions)
	s.Empty(snap.Loaders)
	s.Zero(s.host.CallsMatching(keywordMatch))
}

func (s *InterviewSuite) TestNoKeywordsFound() {
	s.host.Reply(keywordMatch, `{"keywords":[" "]}`)
	s.defaults()
	s.configure("Dana", "We need someone friendly.")

	snap := s.start()
	s.Equal(KindNoKeywordsFound, snap.ErrorKind)
	s.Equal(ErrTextNoKeywords, snap.Error)
	s.Zero(s.host.CallsMatching(questionMatch))
	s.Empty(snap.Loaders)
}

func (s *InterviewSuite) TestNoQuestionsReturned() {
	s.host.Reply(questionMatch, `{"questions":[]}`)
	s.defaults()
	s.configure("Dana", goKafkaJob)

	snap := s.start()
	s.Equal(KindNoQuestionsReturned, snap.ErrorKind)
	s.Equal(ErrTextNoQuestions, snap.Error)
	s.Equal(PhaseIdle, snap.Phase)
}

func (s *InterviewSuite) TestMalformedQuestionsUseStageMessage() {
	s.host.Reply(questionMatch, "Sure! Here are some questions: 1. Tell me about Go")
	s.defaults()
	s.configure("Dana", goKafkaJob)

	snap := s.start()
	s.Equal(KindMalformedResponse, snap.ErrorKind)
	s.Equal(ErrTextQuestionsUnavailable, snap.Error)
}

func (s *InterviewSuite) TestKeywordHostFailure() {
	s.host.Fail(keywordMatch, errors.New("ollama: server overloaded"))
	s.defaults()
	s.configure("Dana", goKafkaJob)

	snap := s.start()
	s.Equal(KindGenerationUnavailable, snap.ErrorKind)
	s.Equal(ErrTextKeywordsUnavailable, snap.Error)
}

func (s *InterviewSuite) TestSecondStartDiscardsFirst() {
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	s.host.On(relevanceMatch, func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
			// a late verdict that would fail the session if it were applied
			return `{"result":false}`, nil
		}
		return `{"result":true}`, nil
	})
	s.defaults()
	s.configure("Dana", goKafkaJob)

	s.Require().NoError(s.o.StartInterview())
	<-entered
	s.Require().NoError(s.o.StartInterview())
	s.Eventually(func() bool {
		return s.o.Snapshot().Phase == PhaseQuestionActive
	}, 2*time.Second, 5*time.Millisecond)

	close(release)
	s.o.Wait()

	snap := s.o.Snapshot()
	s.Equal(PhaseQuestionActive, snap.Phase)
	s.Equal(KindNone, snap.ErrorKind)
	s.Equal(5, snap.TotalQuestions)
	s.Equal(1, s.host.CallsMatching(keywordMatch))
}

func (s *InterviewSuite) TestEndDuringSetupDiscardsResults() {
	entered := make(chan struct{})
	release := make(chan struct{})
	s.host.On(keywordMatch, func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		close(entered)
		<-release
		return `{"keywords":["Go"]}`, nil
	})
	s.defaults()
	s.configure("Dana", goKafkaJob)

	s.Require().NoError(s.o.StartInterview())
	<-entered
	s.o.EndInterview()
	close(release)
	s.o.Wait()

	snap := s.o.Snapshot()
	s.Equal(PhaseIdle, snap.Phase)
	s.Zero(snap.TotalQuestions)
	s.Empty(snap.Keywords)
	s.Zero(s.host.CallsMatching(questionMatch))
}

func (s *InterviewSuite) TestAnalysisFailureIsRetryable() {
	var fail atomic.Bool
	fail.Store(true)
	var n atomic.Int32
	s.host.On(feedbackMatch, func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		if fail.Load() && n.Add(1) == 2 {
			return "", errors.New("connection reset by peer")
		}
		return echoFeedback(ctx, req)
	})
	s.defaults()
	s.configure("Dana", goKafkaJob)
	s.start()
	for range 5 {
		s.answer("")
	}

	snap := s.o.Snapshot()
	s.Equal(PhaseInterviewComplete, snap.Phase)
	s.True(snap.AnalysisFailed)
	s.Empty(snap.Feedback, "partial results are discarded")
	s.Equal(KindAnswerAnalysisFailed, snap.ErrorKind)
	s.Equal(ErrTextAnalyzeAnswers, snap.Error)
	s.Empty(snap.Loaders)

	fail.Store(false)
	s.o.RunAnswerAnalysis()
	s.o.Wait()

	snap = s.o.Snapshot()
	s.Equal(PhaseReviewReady, snap.Phase)
	s.False(snap.AnalysisFailed)
	s.Len(snap.Feedback, 5)
	s.Equal("", snap.Feedback[0].Answer)
}

func (s *InterviewSuite) TestConfigurationRules() {
	s.defaults()
	s.configure("Dana", goKafkaJob)

	s.ErrorIs(s.o.SetQuestionCount(20), ErrQuestionCountOutOfRange)
	s.ErrorIs(s.o.SetQuestionCount(4), ErrQuestionCountOutOfRange)
	s.Equal(5, s.o.Snapshot().QuestionCount)
	s.ErrorIs(s.o.SetDifficulty("expert"), ErrInvalidDifficulty)
	s.NoError(s.o.SetDifficulty(" Hard "))
	s.NoError(s.o.SetQuestionCount(7))

	snap := s.o.Snapshot()
	s.Equal("hard", snap.Difficulty)
	s.Equal(7, snap.QuestionCount)

	s.start()
	s.ErrorIs(s.o.SetCandidateName("Sam"), ErrConfigurationFrozen)
	s.ErrorIs(s.o.SetJobDescription("other"), ErrConfigurationFrozen)
	s.False(s.o.ApplySettings(Settings{CandidateName: "Sam", QuestionCount: 9}))
	s.Equal("Dana", s.o.Snapshot().CandidateName)
	s.ErrorIs(s.o.StartInterview(), ErrSessionActive)

	s.o.EndInterview()
	s.True(s.o.ApplySettings(Settings{CandidateName: "Sam", QuestionCount: 99, Difficulty: "nope"}))
	snap = s.o.Snapshot()
	s.Equal("Sam", snap.CandidateName)
	s.Equal(15, snap.QuestionCount)
	s.Equal("medium", snap.Difficulty)
	s.Equal(goKafkaJob, snap.JobDescription)
}

func (s *InterviewSuite) TestUnavailableHostAbortsSilently() {
	s.host.SetStatus(llm.Status{}, nil)
	s.defaults()
	s.configure("Dana", goKafkaJob)

	snap := s.start()
	s.Equal(PhaseIdle, snap.Phase)
	s.Equal(KindNone, snap.ErrorKind)
	s.Equal(gateway.AvailabilityUnavailable, snap.Availability)
	s.Equal("AI engine unavailable on this host.", snap.AvailabilityLabel)
	s.Empty(s.host.Calls())
}

func (s *InterviewSuite) TestStartDownloadsModel() {
	s.host.SetStatus(llm.Status{Reachable: true, Pullable: true}, nil).SetPull([]llm.PullProgress{
		{Status: "pulling", Completed: 50, Total: 100},
		{Status: "success", Completed: 100, Total: 100, Done: true},
	}, nil)
	s.defaults()
	s.configure("Dana", goKafkaJob)

	snap := s.start()
	s.Equal(PhaseQuestionActive, snap.Phase)
	s.Equal(gateway.AvailabilityReady, snap.Availability)
	s.Equal(100, snap.DownloadPercent)
	s.Equal(1, s.host.Pulls())
}

func (s *InterviewSuite) TestWarmupWaitsForUserGesture() {
	s.host.SetStatus(llm.Status{Reachable: true, Pullable: true}, nil).SetPull([]llm.PullProgress{
		{Status: "success", Completed: 10, Total: 10, Done: true},
	}, nil)

	s.o.Start()
	s.o.Wait()
	snap := s.o.Snapshot()
	s.True(snap.ActivationPending)
	s.Equal(gateway.AvailabilityNeedsDownload, snap.Availability)
	s.Zero(s.host.Pulls())
	s.True(snap.Permission)

	s.o.ActivateGeneration()
	s.o.Wait()
	snap = s.o.Snapshot()
	s.False(snap.ActivationPending)
	s.Equal(gateway.AvailabilityReady, snap.Availability)
	s.Equal(1, s.host.Pulls())
}

func (s *InterviewSuite) TestCloseWaitsForConcurrentSpawns() {
	var started, finished atomic.Int32
	work := func() {
		started.Add(1)
		time.Sleep(time.Millisecond)
		finished.Add(1)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				s.o.spawn(work)
			}
		}()
	}
	s.o.Close()
	// every goroutine admitted before Close has finished by now
	s.Equal(started.Load(), finished.Load())
	wg.Wait()

	before := started.Load()
	s.o.spawn(work)
	s.o.Wait()
	s.Equal(before, started.Load())
}

func (s *InterviewSuite) TestAmbientLoop() {
	s.o.Close()
	s.o = s.newOrchestrator(true)
	s.defaults()

	s.o.Start()
	s.o.Wait()
	snap := s.o.Snapshot()
	s.Equal(PhaseAwaitingPrerequisites, snap.Phase)
	s.Equal(AmbientPasteDescription, snap.Ambient)
	s.Equal(StatusNameRequired, snap.Status)

	s.Require().NoError(s.o.SetCandidateName("Dana"))
	s.o.Wait()
	s.Equal(StatusDescriptionNeeded, s.o.Snapshot().Status)

	s.Require().NoError(s.o.SetJobDescription(goKafkaJob))
	s.o.Wait()
	snap = s.o.Snapshot()
	s.Equal(PhaseCapturingAmbient, snap.Phase)
	s.Equal(AmbientListening, snap.Ambient)
	s.Equal(StatusListening, snap.Status)
	s.True(snap.Listening)
	s.Equal(1, s.rec.Starts())

	// a natural end restarts the warm loop
	s.rec.End()
	s.o.Wait()
	s.Equal(2, s.rec.Starts())
	s.Equal(AmbientListening, s.o.Snapshot().Ambient)

	// an error pauses it until resumed
	s.rec.Fail(capture.CodeAudioCapture)
	s.o.Wait()
	snap = s.o.Snapshot()
	s.Equal(AmbientPaused, snap.Ambient)
	s.Equal(KindRecognitionDropped, snap.ErrorKind)
	s.False(snap.Listening)
	s.Equal(2, s.rec.Starts())

	s.o.ResumeAmbient()
	s.o.Wait()
	s.Equal(AmbientListening, s.o.Snapshot().Ambient)
	s.Equal(3, s.rec.Starts())

	// never runs during a session
	snap = s.start()
	s.Equal(PhaseQuestionActive, snap.Phase)
	s.Equal(AmbientOff, snap.Ambient)
	s.False(snap.Listening)

	s.o.EndInterview()
	s.o.Wait()
	s.Equal(AmbientListening, s.o.Snapshot().Ambient)

	s.o.SetAmbientEnabled(false)
	s.o.Wait()
	snap = s.o.Snapshot()
	s.Equal(PhaseIdle, snap.Phase)
	s.False(snap.Listening)
}

func (s *InterviewSuite) TestAmbientPermissionDenied() {
	s.o.Close()
	s.o = s.newOrchestrator(true)
	s.rec.DenyPermission(true)
	s.configure("Dana", goKafkaJob)

	s.o.Start()
	s.o.Wait()
	snap := s.o.Snapshot()
	s.Equal(AmbientRequestPermission, snap.Ambient)
	s.Equal(KindPermissionDenied, snap.ErrorKind)
	s.False(snap.Listening)

	s.rec.DenyPermission(false)
	s.o.RequestMicrophone()
	s.o.Wait()
	snap = s.o.Snapshot()
	s.Equal(AmbientListening, snap.Ambient)
	s.Equal(KindNone, snap.ErrorKind)
}

func (s *InterviewSuite) TestSnapshotsArePublishedInOrder() {
	s.defaults()
	var mu sync.Mutex
	var versions []uint64
	unsub := s.o.Subscribe(func(snap Snapshot) {
		mu.Lock()
		versions = append(versions, snap.Version)
		mu.Unlock()
	})
	defer unsub()

	s.configure("Dana", goKafkaJob)
	s.start()

	mu.Lock()
	defer mu.Unlock()
	s.Require().NotEmpty(versions)
	for i := 1; i < len(versions); i++ {
		s.Less(versions[i-1], versions[i])
	}
}

func (s *InterviewSuite) TestFailedCommandsCarryCandidateCopy() {
	s.o.RegisterCommands(s.o.Bus())

	res := s.o.Bus().Send(Component, IntentStart, nil, "test")
	s.False(res.Success)
	s.ErrorIs(res.Error, ErrNameRequired)
	s.Equal(ErrTextNameRequired, res.Message)

	res = s.o.Bus().Send(Component, IntentSetDifficulty, "expert", "test")
	s.False(res.Success)
	s.Equal(ErrTextInvalidDifficulty, res.Message)

	res = s.o.Bus().Send(Component, IntentSetAmbient, "yes", "test")
	s.False(res.Success)
	s.Equal(ErrTextRequestFailed, res.Message)

	for _, r := range []string{res.Message, ErrTextNameRequired, ErrTextInvalidDifficulty} {
		s.NotContains(r, "interview:")
	}
}

func (s *InterviewSuite) TestBusCommands() {
	s.defaults()
	s.o.RegisterCommands(s.o.Bus())

	res := s.o.Bus().Send(Component, IntentSetName, "Dana", "test")
	s.True(res.Success)
	res = s.o.Bus().Send(Component, IntentSetCount, float64(6), "test")
	s.True(res.Success)
	res = s.o.Bus().Send(Component, IntentSetCount, "40", "test")
	s.False(res.Success)
	s.ErrorIs(res.Error, ErrQuestionCountOutOfRange)
	s.Equal("Choose between 5 and 15 questions.", res.Message)
	res = s.o.Bus().Send(Component, IntentSetDescription, goKafkaJob, "test")
	s.True(res.Success)

	res = s.o.Bus().Send(Component, IntentStart, nil, "test")
	s.Require().True(res.Success)
	s.o.Wait()

	res = s.o.Bus().Send(Component, IntentSnapshot, nil, "test")
	snap, ok := res.Data.(Snapshot)
	s.Require().True(ok)
	s.Equal(6, snap.QuestionCount)
	s.Equal(PhaseQuestionActive, snap.Phase)
}

type stubImporter struct {
	text string
	err  error
}

func (i stubImporter) Import(ctx context.Context, rawURL string) (string, error) {
	return i.text, i.err
}

func (s *InterviewSuite) TestImportJobDescription() {
	s.ErrorIs(s.o.ImportJobDescription("https://example.com/job"), ErrNoImporter)

	s.o.importer = stubImporter{text: goKafkaJob}
	s.Require().NoError(s.o.ImportJobDescription("https://example.com/job"))
	s.o.Wait()
	snap := s.o.Snapshot()
	s.Equal(goKafkaJob, snap.JobDescription)
	s.Equal(StatusImported, snap.Status)

	s.o.importer = stubImporter{err: errors.New("404")}
	s.Require().NoError(s.o.ImportJobDescription("https://example.com/gone"))
	s.o.Wait()
	snap = s.o.Snapshot()
	s.Equal(KindImportFailed, snap.ErrorKind)
	s.Equal(goKafkaJob, snap.JobDescription)
}

func TestPhaseTransitions(t *testing.T) {
	cases := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseIdle, PhaseGeneratingSetup, true},
		{PhaseCapturingAmbient, PhaseGeneratingSetup, true},
		{PhaseGeneratingSetup, PhaseGeneratingSetup, true},
		{PhaseGeneratingSetup, PhaseQuestionActive, true},
		{PhaseQuestionActive, PhaseGeneratingSetup, false},
		{PhaseQuestionActive, PhaseInterviewComplete, true},
		{PhaseInterviewComplete, PhaseQuestionActive, false},
		{PhaseInterviewComplete, PhaseAnalyzingAnswers, true},
		{PhaseAnalyzingAnswers, PhaseReviewReady, true},
		{PhaseAnalyzingAnswers, PhaseInterviewComplete, true},
		{PhaseIdle, PhaseReviewReady, false},
		{PhaseReviewReady, PhaseIdle, true},
		{PhaseAnalyzingAnswers, PhaseAwaitingPrerequisites, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{fmt.Errorf("setup: %w", ErrNoKeywordsFound), KindNoKeywordsFound},
		{capture.ErrPermissionDenied, KindPermissionDenied},
		{&capture.RecognitionError{Code: capture.CodeNetwork}, KindRecognitionDropped},
		{narration.ErrUnsupportedEnvironment, KindUnsupportedEnvironment},
		{gateway.ErrActivationRequiresUserGesture, KindActivationRequired},
		{fmt.Errorf("%w: questions", gateway.ErrMalformedResponse), KindMalformedResponse},
		{llm.ErrUnavailable{Host: "ollama", Reason: "connection refused"}, KindGenerationUnavailable},
		{errors.New("model 'llama3' not found"), KindGenerationUnavailable},
		{errors.New("something odd"), KindUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.err), "%v", c.err)
	}
}

func TestSnapshotJSON(t *testing.T) {
	data, err := json.Marshal(Snapshot{Phase: PhaseQuestionActive, Turn: TurnRecording})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"phase":"question-active"`)
	assert.Contains(t, string(data), `"turn":"recording"`)
	assert.Contains(t, string(data), `"availability":"unavailable"`)
}

type gatedImporter struct {
	release chan struct{}
	text    string
}

func (i gatedImporter) Import(ctx context.Context, rawURL string) (string, error) {
	select {
	case <-i.release:
		return i.text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *InterviewSuite) TestImportDoesNotOverwriteTypedDescription() {
	gate := gatedImporter{release: make(chan struct{}), text: "Imported posting for a Rust developer."}
	s.o.importer = gate

	s.Require().NoError(s.o.ImportJobDescription("https://example.com/job"))
	s.Equal(StatusImporting, s.o.Snapshot().Status)
	s.Require().NoError(s.o.SetJobDescription(goKafkaJob))

	close(gate.release)
	s.o.Wait()
	snap := s.o.Snapshot()
	s.Equal(goKafkaJob, snap.JobDescription)
	s.NotEqual(StatusImported, snap.Status)
	s.Equal(KindNone, snap.ErrorKind)

	// a later import with no edits in between still lands
	s.o.importer = stubImporter{text: gate.text}
	s.Require().NoError(s.o.ImportJobDescription("https://example.com/job"))
	s.o.Wait()
	s.Equal(gate.text, s.o.Snapshot().JobDescription)
}

