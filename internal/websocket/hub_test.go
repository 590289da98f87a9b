package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/middleware"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/services"
)

func newHubServer(t *testing.T) (*Hub, *middleware.JWTAuth, *miniredis.Miniredis, *httptest.Server) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	auth := middleware.NewJWTAuth("ws-secret")
	hub := NewHub(rdb, auth, "*", zap.NewNop())
	t.Cleanup(hub.Close)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	return hub, auth, mr, srv
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
}

func TestHubRejectsMissingOrBadToken(t *testing.T) {
	_, _, _, srv := newHubServer(t)

	for _, token := range []string{"", "garbage"} {
		_, resp, err := gorillaws.DefaultDialer.Dial(wsURL(srv, token), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestHubDeliversUserUpdates(t *testing.T) {
	hub, auth, mr, srv := newHubServer(t)
	userID := uuid.New()
	token, err := auth.GenerateAccessToken(userID, time.Minute)
	require.NoError(t, err)

	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)
	defer conn.Close()

	channel := services.UserUpdatesChannel(userID)
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(channel)[channel] == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.Connections(userID))

	// Publish through the same path the reward trigger uses.
	notifier := services.NewRedisNotifier(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, notifier.Notify(context.Background(), &models.Notification{
		ID: uuid.New(), UserID: userID, Category: models.NotificationCategoryRewardEarned, TargetType: models.NotificationTargetPost,
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"notification"`)
	assert.Contains(t, string(data), `"category":"reward_earned"`)
}

func TestHubDropsSubscriptionAfterLastDisconnect(t *testing.T) {
	hub, auth, mr, srv := newHubServer(t)
	userID := uuid.New()
	token, err := auth.GenerateAccessToken(userID, time.Minute)
	require.NoError(t, err)

	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)

	channel := services.UserUpdatesChannel(userID)
	require.Eventually(t, func() bool { return mr.PubSubNumSub(channel)[channel] == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return hub.Connections(userID) == 0 && mr.PubSubNumSub(channel)[channel] == 0
	}, 2*time.Second, 10*time.Millisecond)
}
