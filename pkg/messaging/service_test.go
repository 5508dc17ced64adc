package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"participium/pkg/apperr"
	"participium/pkg/authz"
	"participium/pkg/lifecycle"
)

type fakeReports struct {
	mu      sync.Mutex
	reports map[int64]lifecycle.Report
	err     error
}

func (f *fakeReports) GetReport(_ context.Context, id int64) (lifecycle.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return lifecycle.Report{}, f.err
	}
	r, ok := f.reports[id]
	if !ok {
		return lifecycle.Report{}, lifecycle.ErrReportNotFound
	}
	return r, nil
}

func (f *fakeReports) SaveReport(_ context.Context, r lifecycle.Report, expected int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reports[r.ID].Version != expected {
		return lifecycle.ErrStaleReport
	}
	f.reports[r.ID] = r
	return nil
}

func (f *fakeReports) GetCategory(context.Context, int64) (lifecycle.Category, error) {
	return lifecycle.Category{}, lifecycle.ErrCategoryNotFound
}

type fakeConversations struct {
	convs    map[string]Conversation
	messages map[string][]Message
	next     int
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{convs: map[string]Conversation{}, messages: map[string][]Message{}}
}

func (f *fakeConversations) CreateConversation(_ context.Context, c Conversation) (Conversation, error) {
	for id, existing := range f.convs {
		if existing.ReportID == c.ReportID {
			for _, p := range c.Participants {
				if !existing.HasParticipant(p) {
					existing.Participants = append(existing.Participants, p)
				}
			}
			f.convs[id] = existing
			return existing, nil
		}
	}
	f.next++
	c.ID = fmt.Sprintf("conv-%d", f.next)
	f.convs[c.ID] = c
	return c, nil
}

func (f *fakeConversations) GetConversation(_ context.Context, id string) (Conversation, error) {
	c, ok := f.convs[id]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return c, nil
}

func (f *fakeConversations) ConversationForReport(_ context.Context, reportID int64) (Conversation, error) {
	for _, c := range f.convs {
		if c.ReportID == reportID {
			return c, nil
		}
	}
	return Conversation{}, ErrConversationNotFound
}

func (f *fakeConversations) AddParticipant(_ context.Context, id string, userID int64) error {
	c := f.convs[id]
	c.Participants = append(c.Participants, userID)
	f.convs[id] = c
	return nil
}

func (f *fakeConversations) ListConversations(_ context.Context, userID int64) ([]Conversation, error) {
	var out []Conversation
	for _, c := range f.convs {
		if c.HasParticipant(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConversations) AppendMessage(_ context.Context, m Message) (Message, error) {
	m.ID = fmt.Sprintf("msg-%d", len(f.messages[m.ConversationID])+1)
	f.messages[m.ConversationID] = append(f.messages[m.ConversationID], m)
	return m, nil
}

func (f *fakeConversations) ListMessages(_ context.Context, id string) ([]Message, error) {
	return f.messages[id], nil
}

type fakeBroadcaster struct {
	published []Message
	err       error
}

func (f *fakeBroadcaster) Publish(_ context.Context, m Message) error {
	f.published = append(f.published, m)
	return f.err
}

type directory map[int64][]authz.OfficeRole

func (d directory) RolesFor(_ context.Context, id int64) ([]authz.OfficeRole, error) {
	return d[id], nil
}

const (
	citizen    int64 = 7
	technician int64 = 100
	stranger   int64 = 55
)

func setup(status lifecycle.Status) (*Service, *fakeReports, *fakeConversations, *fakeBroadcaster, Conversation) {
	reports := &fakeReports{reports: map[int64]lifecycle.Report{
		1: {ID: 1, Title: "Broken streetlight", CategoryID: 1, Status: status},
	}}
	convs := newFakeConversations()
	bc := &fakeBroadcaster{}
	svc := NewService(convs, NewGate(reports), bc, zerolog.Nop())
	conv, _ := svc.OpenForReport(context.Background(), 1, citizen)
	_ = svc.Join(context.Background(), 1, technician)
	conv, _ = convs.GetConversation(context.Background(), conv.ID)
	return svc, reports, convs, bc, conv
}

func TestSendAllowedWhileReportOpen(t *testing.T) {
	for _, st := range []lifecycle.Status{lifecycle.StatusPending, lifecycle.StatusAssigned, lifecycle.StatusInProgress, lifecycle.StatusSuspended} {
		t.Run(string(st), func(t *testing.T) {
			svc, _, convs, bc, conv := setup(st)
			msg, err := svc.Send(context.Background(), conv.ID, citizen, "  still broken  ")
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if msg.Content != "still broken" || msg.SenderID != citizen {
				t.Fatalf("msg = %+v", msg)
			}
			if len(convs.messages[conv.ID]) != 1 || len(bc.published) != 1 {
				t.Fatal("message must be stored and broadcast")
			}
		})
	}
}

func TestSendRejectedOnTerminalReport(t *testing.T) {
	for _, st := range []lifecycle.Status{lifecycle.StatusResolved, lifecycle.StatusRejected} {
		t.Run(string(st), func(t *testing.T) {
			svc, _, convs, _, conv := setup(st)
			_, err := svc.Send(context.Background(), conv.ID, citizen, "hello")
			if apperr.KindOf(err) != apperr.KindInvalidState {
				t.Fatalf("kind = %v, want invalid state", apperr.KindOf(err))
			}
			if len(convs.messages[conv.ID]) != 0 {
				t.Fatal("closed conversation must not store messages")
			}
		})
	}
}

func TestSendChecksParticipantBeforeReport(t *testing.T) {
	svc, reports, _, _, conv := setup(lifecycle.StatusResolved)
	reports.err = errors.New("must not be called")
	_, err := svc.Send(context.Background(), conv.ID, stranger, "hi")
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("kind = %v, want forbidden", apperr.KindOf(err))
	}
}

func TestSendOnConversationOfDeletedReport(t *testing.T) {
	svc, reports, _, _, conv := setup(lifecycle.StatusAssigned)
	delete(reports.reports, 1)
	_, err := svc.Send(context.Background(), conv.ID, citizen, "hi")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("kind = %v, want not found", apperr.KindOf(err))
	}
}

func TestSendValidatesContent(t *testing.T) {
	svc, _, _, _, conv := setup(lifecycle.StatusAssigned)
	if _, err := svc.Send(context.Background(), conv.ID, citizen, "   "); apperr.KindOf(err) != apperr.KindInvalidArgument {
		t.Fatalf("blank content: %v", err)
	}
	if _, err := svc.Send(context.Background(), "missing", citizen, "hi"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("missing conversation: %v", err)
	}
}

func TestBroadcastFailureKeepsMessage(t *testing.T) {
	svc, _, convs, bc, conv := setup(lifecycle.StatusAssigned)
	bc.err = errors.New("redis down")
	if _, err := svc.Send(context.Background(), conv.ID, technician, "on my way"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(convs.messages[conv.ID]) != 1 {
		t.Fatal("message must be stored despite broadcast failure")
	}
}

func TestResolvingReportClosesConversation(t *testing.T) {
	svc, reports, _, _, conv := setup(lifecycle.StatusAssigned)
	ctx := context.Background()
	m := lifecycle.NewMachine(reports, directory{technician: {{OfficeID: 1, RoleName: "Technician"}}})

	if _, err := m.Start(ctx, 1, technician); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Send(ctx, conv.ID, citizen, "thanks"); err != nil {
		t.Fatalf("send before resolution: %v", err)
	}
	if _, err := m.Finish(ctx, 1, technician); err != nil {
		t.Fatalf("finish: %v", err)
	}
	_, err := svc.Send(ctx, conv.ID, citizen, "one more thing")
	if apperr.KindOf(err) != apperr.KindInvalidState {
		t.Fatalf("kind = %v, want invalid state", apperr.KindOf(err))
	}
}

func TestJoinAndVisibility(t *testing.T) {
	svc, _, _, _, conv := setup(lifecycle.StatusAssigned)
	ctx := context.Background()

	if err := svc.Join(ctx, 1, technician); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	got, err := svc.Conversation(ctx, conv.ID, technician)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if len(got.Participants) != 2 {
		t.Fatalf("participants = %v, want citizen and technician once", got.Participants)
	}
	if _, err := svc.Messages(ctx, conv.ID, stranger); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("stranger read: %v", err)
	}

	if err := svc.Join(ctx, 2, technician); err != nil {
		t.Fatalf("join without conversation: %v", err)
	}
	convs, err := svc.Conversations(ctx, technician)
	if err != nil || len(convs) != 2 {
		t.Fatalf("conversations = %v, %v", convs, err)
	}
}

// staleLookup never finds a conversation, as a join that read before a
// concurrent create would.
type staleLookup struct {
	*fakeConversations
}

func (staleLookup) ConversationForReport(context.Context, int64) (Conversation, error) {
	return Conversation{}, ErrConversationNotFound
}

func TestConcurrentJoinsShareConversation(t *testing.T) {
	convs := newFakeConversations()
	svc := NewService(staleLookup{convs}, nil, nil, zerolog.Nop())
	ctx := context.Background()

	for _, id := range []int64{technician, stranger} {
		if err := svc.Join(ctx, 4, id); err != nil {
			t.Fatalf("join %d: %v", id, err)
		}
	}
	if len(convs.convs) != 1 {
		t.Fatalf("conversations = %d, want 1", len(convs.convs))
	}
	for _, c := range convs.convs {
		if !c.HasParticipant(technician) || !c.HasParticipant(stranger) {
			t.Fatalf("participants = %v", c.Participants)
		}
	}
}
