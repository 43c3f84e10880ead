package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/zhouzirui/speakeasy/internal/audio"
	"github.com/zhouzirui/speakeasy/internal/model/chat"
	"github.com/zhouzirui/speakeasy/internal/model/persona"
	"github.com/zhouzirui/speakeasy/internal/model/speech"
	"github.com/zhouzirui/speakeasy/internal/service/backend"
)

type fakeBackend struct {
	mu          sync.Mutex
	greeting    string
	createErr   error
	createCalls int
	chatFn      func(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error)
	requests    []backend.ChatRequest
}

func (f *fakeBackend) CreateSession(ctx context.Context, target persona.Target) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.greeting, nil
}

func (f *fakeBackend) Chat(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fn := f.chatFn
	f.mu.Unlock()
	if fn == nil {
		return &backend.ChatResponse{Reply: "ok"}, nil
	}
	return fn(ctx, req)
}

func (f *fakeBackend) creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

func (f *fakeBackend) lastRequest() backend.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeSpeech struct {
	mu            sync.Mutex
	transcript    string
	transcribeErr error
	synthesized   []string
	uploads       []speech.TranscribeRequest
}

func (f *fakeSpeech) Synthesize(ctx context.Context, req speech.TTSRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synthesized = append(f.synthesized, req.Text)
	return []byte(req.Text), nil
}

func (f *fakeSpeech) Transcribe(ctx context.Context, req speech.TranscribeRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, req)
	return f.transcript, f.transcribeErr
}

func (f *fakeSpeech) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.synthesized...)
}

type fakeRecorder struct {
	dir     string
	granted bool
}

func (r *fakeRecorder) RequestPermission(ctx context.Context) (bool, error) {
	return r.granted, nil
}

func (r *fakeRecorder) Start(ctx context.Context) (audio.Recording, error) {
	return &fakeRecording{path: filepath.Join(r.dir, "clip.m4a")}, nil
}

type fakeRecording struct {
	path string
}

func (r *fakeRecording) Stop() (string, error) {
	if err := os.WriteFile(r.path, []byte("m4a-bytes"), 0o644); err != nil {
		return "", err
	}
	return "file://" + r.path, nil
}

func (r *fakeRecording) Discard() error { return nil }

type fakePlayer struct {
	mu     sync.Mutex
	played []string
}

func (p *fakePlayer) Load(ctx context.Context, src audio.Source) (audio.Sound, error) {
	name := src.URI
	if name == "" {
		name = string(src.Data)
	}
	return &fakeSound{name: name, player: p, done: make(chan error, 1)}, nil
}

func (p *fakePlayer) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

type fakeSound struct {
	name   string
	player *fakePlayer
	once   sync.Once
	done   chan error
}

func (s *fakeSound) Play() error {
	s.player.mu.Lock()
	defer s.player.mu.Unlock()
	s.player.played = append(s.player.played, s.name)
	return nil
}

func (s *fakeSound) Done() <-chan error { return s.done }

func (s *fakeSound) Stop() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

type snapshotLog struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (l *snapshotLog) SessionChanged(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snaps = append(l.snaps, s)
}

func (l *snapshotLog) all() []Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Snapshot(nil), l.snaps...)
}

var errUnavailable = errors.New("backend unavailable")

type harness struct {
	session  *Session
	backend  *fakeBackend
	speech   *fakeSpeech
	player   *fakePlayer
	snapshot *snapshotLog
}

func newHarness(t *testing.T, target persona.Target, mutate ...func(*Options)) *harness {
	h := &harness{
		backend:  &fakeBackend{greeting: "Welcome!"},
		speech:   &fakeSpeech{transcript: "I like tea"},
		player:   &fakePlayer{},
		snapshot: &snapshotLog{},
	}
	opts := Options{Target: target}
	for _, fn := range mutate {
		fn(&opts)
	}
	h.session = New(Deps{
		Backend:  h.backend,
		Speech:   h.speech,
		Recorder: &fakeRecorder{dir: t.TempDir(), granted: true},
		Player:   h.player,
		Listener: h.snapshot,
	}, opts)
	t.Cleanup(h.session.Close)
	return h
}

func assistant() persona.Target {
	return persona.AssistantTarget(persona.MainAssistant())
}

func countLoading(history []chat.Message) int {
	n := 0
	for _, msg := range history {
		if msg.IsLoading {
			n++
		}
	}
	return n
}
