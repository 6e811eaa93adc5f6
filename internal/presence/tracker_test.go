package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/christopherjohns/socialhub/internal/models"
	"github.com/christopherjohns/socialhub/internal/router"
	"github.com/christopherjohns/socialhub/internal/ws"
	"github.com/christopherjohns/socialhub/internal/ws/wstest"
)

type statusCall struct {
	id     int64
	online bool
	at     time.Time
}

type fakeStatus struct {
	mu    sync.Mutex
	calls []statusCall
	fail  error
}

func (f *fakeStatus) SetOnlineStatus(_ context.Context, id int64, online bool, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, statusCall{id: id, online: online, at: at})
	return f.fail
}

type noNotifications struct{}

func (noNotifications) Create(context.Context, int64, *int64, string, string,
	models.NotificationType, map[string]any) (*models.Notification, error) {
	return nil, errors.New("presence must not persist notifications")
}

type fixture struct {
	hub     *ws.Hub
	status  *fakeStatus
	tracker *Tracker
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hub := ws.NewHub(router.ChannelChat, zerolog.Nop(), nil)
	t.Cleanup(hub.Shutdown)
	f := &fixture{
		hub:    hub,
		status: &fakeStatus{},
		now:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	r := router.New([]*ws.Hub{hub}, noNotifications{})
	f.tracker = New(f.status, hub.Registry(), r, zerolog.Nop(), nil)
	f.tracker.now = func() time.Time { return f.now }
	return f
}

// connect registers a session and runs presence the way the chat channel does.
func (f *fixture) connect(t *testing.T, userID int64) (*ws.Session, *wstest.Conn) {
	s, conn, first := wstest.Connect(t, f.hub, userID)
	f.tracker.Connected(context.Background(), s, first)
	return s, conn
}

func (f *fixture) disconnect(s *ws.Session) {
	last := f.hub.Unregister(s)
	f.tracker.Disconnected(context.Background(), s, last)
}

func TestOnlineBroadcastOncePerFirstSession(t *testing.T) {
	f := newFixture(t)
	_, observer := f.connect(t, 2)

	_, own := f.connect(t, 1)
	f.connect(t, 1)

	env := observer.WaitType(t, ws.TypeUserOnline)
	var online Online
	require.NoError(t, env.Decode(&online))
	require.Equal(t, int64(1), online.UserID)

	wstest.Settle()
	require.Equal(t, 1, observer.Count(t, ws.TypeUserOnline))
	require.Zero(t, own.Count(t, ws.TypeUserOnline), "connecting session is excluded")

	f.status.mu.Lock()
	defer f.status.mu.Unlock()
	require.Equal(t, []statusCall{
		{id: 2, online: true, at: f.now},
		{id: 1, online: true, at: f.now},
	}, f.status.calls)
}

func TestOfflineOnlyAfterLastSession(t *testing.T) {
	f := newFixture(t)
	_, observer := f.connect(t, 2)
	s1, _ := f.connect(t, 1)
	s2, _ := f.connect(t, 1)

	f.disconnect(s1)
	wstest.Settle()
	require.Zero(t, observer.Count(t, ws.TypeUserOffline))
	require.Equal(t, 1, f.hub.Registry().Count(1))

	f.now = f.now.Add(time.Minute)
	f.disconnect(s2)

	env := observer.WaitType(t, ws.TypeUserOffline)
	var offline Offline
	require.NoError(t, env.Decode(&offline))
	require.Equal(t, int64(1), offline.UserID)
	require.True(t, offline.LastSeen.Equal(f.now))

	f.status.mu.Lock()
	defer f.status.mu.Unlock()
	last := f.status.calls[len(f.status.calls)-1]
	require.Equal(t, statusCall{id: 1, online: false, at: f.now}, last)
}

func TestBroadcastSurvivesStoreFailure(t *testing.T) {
	f := newFixture(t)
	_, observer := f.connect(t, 2)
	f.status.fail = errors.New("db down")

	s, _ := f.connect(t, 1)
	observer.WaitType(t, ws.TypeUserOnline)

	f.disconnect(s)
	observer.WaitType(t, ws.TypeUserOffline)
}

func TestReconnectProducesFreshTransition(t *testing.T) {
	f := newFixture(t)
	_, observer := f.connect(t, 2)

	s, _ := f.connect(t, 1)
	f.disconnect(s)
	f.connect(t, 1)

	require.Eventually(t, func() bool {
		return observer.Count(t, ws.TypeUserOnline) == 2 && observer.Count(t, ws.TypeUserOffline) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func (f *fixture) userCalls(id int64) []statusCall {
	f.status.mu.Lock()
	defer f.status.mu.Unlock()
	var out []statusCall
	for _, c := range f.status.calls {
		if c.id == id {
			out = append(out, c)
		}
	}
	return out
}

// A page refresh registers the new session before the old session's
// disconnect is handled. The stale last=true must not take the user offline.
func TestRefreshKeepsUserOnline(t *testing.T) {
	f := newFixture(t)
	_, observer := f.connect(t, 2)
	s1, _ := f.connect(t, 1)
	observer.WaitType(t, ws.TypeUserOnline)

	last := f.hub.Unregister(s1)
	require.True(t, last)
	s2, _, first := wstest.Connect(t, f.hub, 1)
	require.True(t, first)
	f.tracker.Connected(context.Background(), s2, first)
	f.tracker.Disconnected(context.Background(), s1, last)

	wstest.Settle()
	require.Equal(t, 1, observer.Count(t, ws.TypeUserOnline))
	require.Zero(t, observer.Count(t, ws.TypeUserOffline))
	require.Equal(t, []statusCall{{id: 1, online: true, at: f.now}}, f.userCalls(1))
}

func TestConcurrentChurnWhileConnected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	keep, _ := f.connect(t, 1)

	var g errgroup.Group
	for range 20 {
		g.Go(func() error {
			s := ws.NewSession(1, f.hub.Name(), &wstest.Conn{})
			_, first, err := f.hub.Register(s)
			if err != nil {
				return err
			}
			f.tracker.Connected(ctx, s, first)
			f.tracker.Disconnected(ctx, s, f.hub.Unregister(s))
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, []statusCall{{id: 1, online: true, at: f.now}}, f.userCalls(1))

	f.disconnect(keep)
	calls := f.userCalls(1)
	require.Len(t, calls, 2)
	require.False(t, calls[1].online)
}
