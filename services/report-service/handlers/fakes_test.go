package handlers

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"participium/pkg/authz"
	"participium/pkg/lifecycle"
	"participium/pkg/messaging"
)

type memReports struct {
	mu         sync.Mutex
	reports    map[int64]lifecycle.Report
	categories map[int64]lifecycle.Category
	nextID     int64
}

func newMemReports() *memReports {
	return &memReports{
		reports: map[int64]lifecycle.Report{},
		categories: map[int64]lifecycle.Category{
			1: {ID: 1, Name: "Roads", OfficeID: 1},
			2: {ID: 2, Name: "Public Lighting", OfficeID: 1, ExternalOfficeID: ptr(int64(9))},
		},
		nextID: 100,
	}
}

func (m *memReports) put(r lifecycle.Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[r.ID] = r
}

func (m *memReports) get(id int64) lifecycle.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reports[id]
}

func (m *memReports) GetReport(_ context.Context, id int64) (lifecycle.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return lifecycle.Report{}, lifecycle.ErrReportNotFound
	}
	return r, nil
}

func (m *memReports) SaveReport(_ context.Context, r lifecycle.Report, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.reports[r.ID]
	if !ok {
		return lifecycle.ErrReportNotFound
	}
	if cur.Version != expected {
		return lifecycle.ErrStaleReport
	}
	m.reports[r.ID] = r
	return nil
}

func (m *memReports) GetCategory(_ context.Context, id int64) (lifecycle.Category, error) {
	c, ok := m.categories[id]
	if !ok {
		return lifecycle.Category{}, lifecycle.ErrCategoryNotFound
	}
	return c, nil
}

func (m *memReports) CreateReport(_ context.Context, r lifecycle.Report) (lifecycle.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	m.reports[r.ID] = r
	return r, nil
}

func (m *memReports) ListReports(_ context.Context, statuses ...lifecycle.Status) ([]lifecycle.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []lifecycle.Report{}
	for _, r := range m.reports {
		if len(statuses) == 0 || containsStatus(statuses, r.Status) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memReports) OfficeQueue(_ context.Context, internal, external []int64) ([]lifecycle.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []lifecycle.Report{}
	for _, r := range m.reports {
		if r.Status == lifecycle.StatusPending || r.Status == lifecycle.StatusRejected {
			continue
		}
		c := m.categories[r.CategoryID]
		if !r.HandedOff() && containsID(internal, c.OfficeID) {
			out = append(out, r)
		} else if r.HandedOff() && c.ExternalOfficeID != nil && containsID(external, *c.ExternalOfficeID) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memReports) StatusCounts(context.Context) (map[lifecycle.Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[lifecycle.Status]int64{}
	for _, st := range lifecycle.Statuses() {
		out[st] = 0
	}
	for _, r := range m.reports {
		out[r.Status]++
	}
	return out, nil
}

func (m *memReports) Categories(context.Context) ([]lifecycle.Category, error) {
	out := make([]lifecycle.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func containsStatus(list []lifecycle.Status, st lifecycle.Status) bool {
	for _, s := range list {
		if s == st {
			return true
		}
	}
	return false
}

func containsID(list []int64, id int64) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func ptr[T any](v T) *T { return &v }

type directory map[int64][]authz.OfficeRole

func (d directory) RolesFor(_ context.Context, id int64) ([]authz.OfficeRole, error) {
	return d[id], nil
}

type fakePhotos struct {
	mu       sync.Mutex
	uploaded []string
	deleted  []string
	fail     bool
}

func (f *fakePhotos) Upload(_ context.Context, userID int64, fileName, _ string, r io.Reader, _ int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("minio unavailable")
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	key := fmt.Sprintf("reports/%d/%d_%s", userID, len(f.uploaded), fileName)
	f.uploaded = append(f.uploaded, key)
	return key, nil
}

func (f *fakePhotos) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakePhotos) URL(_ context.Context, key string) (string, error) {
	return "http://minio.test/" + key, nil
}

type fakeEvents struct {
	mu          sync.Mutex
	created     []int64
	createdFor  []int64
	transitions []lifecycle.Event
}

func (f *fakeEvents) PublishCreated(_ context.Context, r lifecycle.Report, officeID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, r.ID)
	f.createdFor = append(f.createdFor, officeID)
	return nil
}

func (f *fakeEvents) PublishTransition(_ context.Context, e lifecycle.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, e)
	return nil
}

type memConversations struct {
	mu       sync.Mutex
	convs    map[string]messaging.Conversation
	messages map[string][]messaging.Message
}

func newMemConversations() *memConversations {
	return &memConversations{convs: map[string]messaging.Conversation{}, messages: map[string][]messaging.Message{}}
}

func (m *memConversations) CreateConversation(_ context.Context, c messaging.Conversation) (messaging.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = fmt.Sprintf("conv-%d", c.ReportID)
	if existing, ok := m.convs[c.ID]; ok {
		for _, p := range c.Participants {
			if !existing.HasParticipant(p) {
				existing.Participants = append(existing.Participants, p)
			}
		}
		c = existing
	}
	m.convs[c.ID] = c
	return c, nil
}

func (m *memConversations) GetConversation(_ context.Context, id string) (messaging.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return messaging.Conversation{}, messaging.ErrConversationNotFound
	}
	return c, nil
}

func (m *memConversations) ConversationForReport(ctx context.Context, reportID int64) (messaging.Conversation, error) {
	return m.GetConversation(ctx, fmt.Sprintf("conv-%d", reportID))
}

func (m *memConversations) AddParticipant(_ context.Context, id string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.convs[id]
	c.Participants = append(c.Participants, userID)
	m.convs[id] = c
	return nil
}

func (m *memConversations) ListConversations(_ context.Context, userID int64) ([]messaging.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []messaging.Conversation{}
	for _, c := range m.convs {
		if c.HasParticipant(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memConversations) AppendMessage(_ context.Context, msg messaging.Message) (messaging.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = fmt.Sprintf("msg-%d", len(m.messages[msg.ConversationID])+1)
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	return msg, nil
}

func (m *memConversations) ListMessages(_ context.Context, id string) ([]messaging.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]messaging.Message(nil), m.messages[id]...), nil
}

// fakeHub is both the broadcaster and the subscriber of the tests.
type fakeHub struct {
	mu   sync.Mutex
	subs map[string][]chan messaging.Message
}

func newFakeHub() *fakeHub {
	return &fakeHub{subs: map[string][]chan messaging.Message{}}
}

func (f *fakeHub) Publish(_ context.Context, msg messaging.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs[msg.ConversationID] {
		ch <- msg
	}
	return nil
}

type fakeStream struct {
	ch chan messaging.Message
}

func (s fakeStream) Messages() <-chan messaging.Message { return s.ch }
func (s fakeStream) Close() error                      { return nil }

func (f *fakeHub) Subscribe(_ context.Context, id string) (MessageStream, error) {
	f.mu.Lock()
	ch := make(chan messaging.Message, 8)
	f.subs[id] = append(f.subs[id], ch)
	f.mu.Unlock()
	return fakeStream{ch: ch}, nil
}
