package audio

import (
	"context"
	"errors"
	"sync"

	"github.com/zhouzirui/speakeasy/internal/model/speech"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeConfigurator struct {
	mu    sync.Mutex
	modes []Mode
	fail  bool
}

func (f *fakeConfigurator) Configure(ctx context.Context, mode Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("audio session unavailable")
	}
	f.modes = append(f.modes, mode)
	return nil
}

func (f *fakeConfigurator) applied() []Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Mode(nil), f.modes...)
}

type fakeRecorder struct {
	granted  bool
	permErr  error
	startErr error
	uri      string

	mu      sync.Mutex
	started int
	last    *fakeRecording
}

func (f *fakeRecorder) RequestPermission(ctx context.Context) (bool, error) {
	return f.granted, f.permErr
}

func (f *fakeRecorder) Start(ctx context.Context) (Recording, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	f.last = &fakeRecording{uri: f.uri}
	return f.last, nil
}

type fakeRecording struct {
	uri       string
	stopped   bool
	discarded bool
}

func (r *fakeRecording) Stop() (string, error) {
	r.stopped = true
	return r.uri, nil
}

func (r *fakeRecording) Discard() error {
	r.discarded = true
	return nil
}

type fakeSound struct {
	name string
	log  *eventLog

	once    sync.Once
	done    chan error
	playErr error
}

func (s *fakeSound) Play() error {
	if s.playErr != nil {
		return s.playErr
	}
	s.log.add("play " + s.name)
	return nil
}

func (s *fakeSound) Done() <-chan error {
	return s.done
}

func (s *fakeSound) Stop() error {
	s.log.add("stop " + s.name)
	s.finish(nil)
	return nil
}

func (s *fakeSound) finish(err error) {
	s.once.Do(func() {
		s.done <- err
		close(s.done)
	})
}

type fakePlayer struct {
	log *eventLog

	mu      sync.Mutex
	loaded  []*fakeSound
	loadErr []error // consumed per Load call
	gate    chan struct{}
}

func (p *fakePlayer) Load(ctx context.Context, src Source) (Sound, error) {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.loadErr) > 0 {
		err := p.loadErr[0]
		p.loadErr = p.loadErr[1:]
		if err != nil {
			return nil, err
		}
	}
	name := src.URI
	if name == "" {
		name = string(src.Data)
	}
	sound := &fakeSound{name: name, log: p.log, done: make(chan error, 1)}
	p.loaded = append(p.loaded, sound)
	return sound, nil
}

func (p *fakePlayer) last() *fakeSound {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.loaded) == 0 {
		return nil
	}
	return p.loaded[len(p.loaded)-1]
}

type fakeTTS struct {
	mu    sync.Mutex
	calls int
	fails int // first n calls fail
}

func (f *fakeTTS) Synthesize(ctx context.Context, req speech.TTSRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return nil, errors.New("tts unavailable")
	}
	return []byte(req.Text), nil
}

func (f *fakeTTS) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (p *fakePlayer) loads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.loaded)
}
