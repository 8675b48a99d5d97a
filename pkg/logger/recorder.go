package logger

import (
	"context"
	"sync"
)

// Entry is a single log call captured by a Recorder.
type Entry struct {
	Level  string
	Name   string
	Msg    string
	Fields map[string]interface{}
}

// Recorder is a Logger that keeps every entry in memory. Components accept it
// through their WithLogger options so tests can assert on emitted decisions.
type Recorder struct {
	name  string
	state *recorderState
}

type recorderState struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{state: &recorderState{}}
}

// Named returns a Recorder sharing the same entry buffer.
func (r *Recorder) Named(name string) Logger {
	if r.name != "" {
		name = r.name + "." + name
	}
	return &Recorder{name: name, state: r.state}
}

func (r *Recorder) Info(_ context.Context, msg string, fields ...Field) {
	r.record("info", msg, fields)
}

func (r *Recorder) Error(_ context.Context, msg string, fields ...Field) {
	r.record("error", msg, fields)
}

func (r *Recorder) Debug(_ context.Context, msg string, fields ...Field) {
	r.record("debug", msg, fields)
}

func (r *Recorder) Warn(_ context.Context, msg string, fields ...Field) {
	r.record("warn", msg, fields)
}

// Fatal records at error level. It does not exit.
func (r *Recorder) Fatal(_ context.Context, msg string, fields ...Field) {
	r.record("error", msg, fields)
}

func (r *Recorder) record(level, msg string, fields []Field) {
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.entries = append(r.state.entries, Entry{Level: level, Name: r.name, Msg: msg, Fields: m})
}

// Entries returns a copy of all captured entries in call order.
func (r *Recorder) Entries() []Entry {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	out := make([]Entry, len(r.state.entries))
	copy(out, r.state.entries)
	return out
}

// Messages returns the entries whose message equals msg.
func (r *Recorder) Messages(msg string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Msg == msg {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops all captured entries.
func (r *Recorder) Reset() {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.entries = nil
}

type nopLogger struct{}

// NewNop returns a Logger that discards everything.
func NewNop() Logger { return nopLogger{} }

func (nopLogger) Info(context.Context, string, ...Field)  {}
func (nopLogger) Error(context.Context, string, ...Field) {}
func (nopLogger) Debug(context.Context, string, ...Field) {}
func (nopLogger) Warn(context.Context, string, ...Field)  {}
func (nopLogger) Fatal(context.Context, string, ...Field) {}
func (n nopLogger) Named(string) Logger                   { return n }
