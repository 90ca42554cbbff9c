package testserver

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session mirrors the service's session record.
type Session struct {
	ID          string    `json:"id"`
	Soul        string    `json:"soul,omitempty"`
	ClientID    string    `json:"client_id,omitempty"`
	Messages    []Message `json:"messages"`
	TotalTokens int64     `json:"total_tokens"`

	promptTokens int64
	outputTokens int64
	skills       []string
}

type Message struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

type HumanInfo struct {
	ID    string            `json:"id,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
	Notes string            `json:"notes,omitempty"`
}

type Skill struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Version     string   `json:"version"`
	Tags        []string `json:"tags"`
}

type Task struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	CronExpression string     `json:"cron_expression"`
	Prompt         string     `json:"prompt"`
	Active         bool       `json:"active"`
	NeededSkills   []string   `json:"needed_skills,omitempty"`
	LastRun        *time.Time `json:"last_run,omitempty"`
	Created        time.Time  `json:"created"`
	Updated        time.Time  `json:"updated"`
	ReportSession  string     `json:"report_session,omitempty"`
	ReportChannels []string   `json:"report_channels,omitempty"`
	Silent         bool       `json:"silent"`
}

// costPerToken is a flat price used for session stats.
const costPerToken = 0.000002

// Store is the in-memory state behind the stub service.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	humans   []HumanInfo
	skills   map[string]Skill
	tasks    map[string]Task
	files    map[string][]byte
	config   json.RawMessage
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		skills:   make(map[string]Skill),
		tasks:    make(map[string]Task),
		files:    make(map[string][]byte),
		config:   json.RawMessage(`{"storage_dir":"/tmp/miri","server":{"addr":":8080"}}`),
	}
}

// Answer is the deterministic reply to prompt.
func Answer(prompt string) string {
	return "echo: " + prompt
}

func countTokens(s string) int64 {
	return int64(len(strings.Fields(s)))
}

// CreateSession opens a session and returns its id.
func (s *Store) CreateSession(clientID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.sessions[id] = &Session{ID: id, ClientID: clientID, Messages: []Message{}}
	return id
}

// PutSession stores sess as is, replacing any session with the same id.
func (s *Store) PutSession(sess Session, skills ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.Messages == nil {
		sess.Messages = []Message{}
	}
	sess.skills = skills
	s.sessions[sess.ID] = &sess
}

// Session returns a copy of the session with id.
func (s *Store) Session(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	out := *sess
	out.Messages = append([]Message(nil), sess.Messages...)
	return out, true
}

// Record appends an exchange to session id, creating the session if needed.
func (s *Store) Record(id, prompt, response string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{ID: id, Messages: []Message{}}
		s.sessions[id] = sess
	}
	sess.Messages = append(sess.Messages, Message{Prompt: prompt, Response: response})
	in, out := countTokens(prompt), countTokens(response)
	sess.promptTokens += in
	sess.outputTokens += out
	sess.TotalTokens += in + out
}

func (s *Store) SessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) sessionStats(id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return map[string]any{
		"session_id":    sess.ID,
		"total_tokens":  sess.TotalTokens,
		"prompt_tokens": sess.promptTokens,
		"output_tokens": sess.outputTokens,
		"total_cost":    float64(sess.TotalTokens) * costPerToken,
	}, true
}

func (s *Store) sessionSkills(id string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return append([]string{}, sess.skills...), true
}

func (s *Store) Humans() []HumanInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]HumanInfo{}, s.humans...)
}

func (s *Store) AddHuman(h HumanInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	s.humans = append(s.humans, h)
}

func (s *Store) PutSkill(sk Skill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skills[sk.Name] = sk
}

func (s *Store) Skills() []Skill {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Skill, 0, len(s.skills))
	for _, sk := range s.skills {
		out = append(out, sk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) Skill(name string) (Skill, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sk, ok := s.skills[name]
	return sk, ok
}

func (s *Store) RemoveSkill(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.skills[name]; !ok {
		return false
	}
	delete(s.skills, name)
	return true
}

func (s *Store) PutTask(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
}

func (s *Store) Tasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Task(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

func (s *Store) PutFile(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[strings.TrimPrefix(path, "/")] = append([]byte(nil), data...)
}

func (s *Store) File(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[strings.TrimPrefix(path, "/")]
	return data, ok
}

func (s *Store) Config() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(json.RawMessage(nil), s.config...)
}

func (s *Store) SetConfig(cfg json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = append(json.RawMessage(nil), cfg...)
}
