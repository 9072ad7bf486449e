package tourney

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/mock"
)

type testLoggerImpl struct{ t *testing.T }

func (l *testLoggerImpl) Debug(msg string, fields ...interface{})                 { l.t.Logf("DEBUG: "+msg, fields...) }
func (l *testLoggerImpl) Info(msg string, fields ...interface{})                  { l.t.Logf("INFO: "+msg, fields...) }
func (l *testLoggerImpl) Warn(msg string, fields ...interface{})                  { l.t.Logf("WARN: "+msg, fields...) }
func (l *testLoggerImpl) Error(msg string, fields ...interface{})                 { l.t.Logf("ERROR: "+msg, fields...) }
func (l *testLoggerImpl) Fields() map[string]interface{}                          { return map[string]interface{}{} }
func (l *testLoggerImpl) WithField(key string, value interface{}) runtime.Logger  { return l }
func (l *testLoggerImpl) WithFields(fields map[string]interface{}) runtime.Logger { return l }

var testNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func newTestClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(testNow)
}

var errStoreDown = errors.New("store down")

// failingStore wraps a memory store and fails saves while failSaves is set.
type failingStore struct {
	*MemoryDocumentStore
	mu        sync.Mutex
	failSaves bool
	saves     int
}

func newFailingStore() *failingStore {
	return &failingStore{MemoryDocumentStore: NewMemoryDocumentStore()}
}

func (f *failingStore) setFail(fail bool) {
	f.mu.Lock()
	f.failSaves = fail
	f.mu.Unlock()
}

func (f *failingStore) Save(ctx context.Context, name string, doc Document) error {
	f.mu.Lock()
	f.saves++
	fail := f.failSaves
	f.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return f.MemoryDocumentStore.Save(ctx, name, doc)
}

type sentNotification struct {
	PlayerID     string
	Notification Notification
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) Notify(ctx context.Context, playerID string, notification Notification) error {
	r.mu.Lock()
	r.sent = append(r.sent, sentNotification{PlayerID: playerID, Notification: notification})
	r.mu.Unlock()
	return nil
}

func (r *recordingNotifier) byCode(code NotificationCode) []sentNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sentNotification, 0)
	for _, n := range r.sent {
		if n.Notification.Code == code {
			out = append(out, n)
		}
	}
	return out
}

// flakyMembership reports not ready for the first failures calls of each method.
type flakyMembership struct {
	*StaticMembership
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyMembership) fail() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.calls <= f.failures
}

func (f *flakyMembership) ListGroups(ctx context.Context) ([]string, error) {
	if f.fail() {
		return nil, ErrMembershipNotReady
	}
	return f.StaticMembership.ListGroups(ctx)
}

var fastRetry = RetryPolicy{Interval: time.Millisecond, MaxTries: 3}

type MockNakama struct {
	mock.Mock
}

func (m *MockNakama) StorageRead(ctx context.Context, objectIDs []*runtime.StorageRead) ([]*api.StorageObject, error) {
	args := m.Called(ctx, objectIDs)
	return args.Get(0).([]*api.StorageObject), args.Error(1)
}

func (m *MockNakama) StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error) {
	args := m.Called(ctx, writes)
	return args.Get(0).([]*api.StorageObjectAck), args.Error(1)
}

func (m *MockNakama) StorageDelete(ctx context.Context, deletes []*runtime.StorageDelete) error {
	args := m.Called(ctx, deletes)
	return args.Error(0)
}

func (m *MockNakama) GroupsList(ctx context.Context, name, langTag string, members *int, open *bool, limit int, cursor string) ([]*api.Group, string, error) {
	args := m.Called(ctx, name, langTag, members, open, limit, cursor)
	return args.Get(0).([]*api.Group), args.String(1), args.Error(2)
}

func (m *MockNakama) GroupUsersList(ctx context.Context, id string, limit int, state *int, cursor string) ([]*api.GroupUserList_GroupUser, string, error) {
	args := m.Called(ctx, id, limit, state, cursor)
	return args.Get(0).([]*api.GroupUserList_GroupUser), args.String(1), args.Error(2)
}

func (m *MockNakama) UserGroupsList(ctx context.Context, userID string, limit int, state *int, cursor string) ([]*api.UserGroupList_UserGroup, string, error) {
	args := m.Called(ctx, userID, limit, state, cursor)
	return args.Get(0).([]*api.UserGroupList_UserGroup), args.String(1), args.Error(2)
}

func (m *MockNakama) WalletUpdate(ctx context.Context, userID string, changeset map[string]int64, metadata map[string]interface{}, updateLedger bool) (map[string]int64, map[string]int64, error) {
	args := m.Called(ctx, userID, changeset, metadata, updateLedger)
	return args.Get(0).(map[string]int64), args.Get(1).(map[string]int64), args.Error(2)
}

func (m *MockNakama) NotificationSend(ctx context.Context, userID, subject string, content map[string]interface{}, code int, sender string, persistent bool) error {
	args := m.Called(ctx, userID, subject, content, code, sender, persistent)
	return args.Error(0)
}

// testEngine builds an engine on a memory store with a fake clock and static provinces.
func testEngine(t *testing.T, provinces map[string][]string) (*Engine, *MemoryDocumentStore, *clockwork.FakeClock, *recordingNotifier) {
	t.Helper()
	store := NewMemoryDocumentStore()
	clock := newTestClock()
	notifier := &recordingNotifier{}
	engine := NewEngine(&testLoggerImpl{t}, EngineDeps{
		Store:      store,
		Membership: NewStaticMembership(provinces),
		Notifier:   notifier,
		Clock:      clock,
	}, &Config{MembershipRetryIntervalMs: 1, MembershipRetryAttempts: 2})
	return engine, store, clock, notifier
}
