package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/clueboard/internal/api"
	"github.com/victornm/clueboard/internal/domain"
	"github.com/victornm/clueboard/internal/realtime"
)

func TestServer(t *testing.T) {
	tests := map[string]struct {
		arrange func(t *testing.T, c *Config) *miniredis.Miniredis
		assert  func(t *testing.T, s *Server, mr *miniredis.Miniredis, code string)
	}{
		"in process": {
			arrange: func(*testing.T, *Config) *miniredis.Miniredis { return nil },
			assert: func(t *testing.T, s *Server, _ *miniredis.Miniredis, _ string) {
				assert.Nil(t, s.relay)
				assert.Nil(t, s.infra.redis.state)
			},
		},

		"shared redis": {
			arrange: func(t *testing.T, c *Config) *miniredis.Miniredis {
				mr := miniredis.RunT(t)
				c.Redis.State.Addrs = []string{mr.Addr()}
				c.Redis.Pubsub.Addrs = []string{mr.Addr()}
				return mr
			},
			assert: func(t *testing.T, s *Server, mr *miniredis.Miniredis, code string) {
				assert.NotNil(t, s.relay)
				assert.True(t, mr.Exists("clueboard:room:"+code), "room should live in redis")
				assert.Equal(t, 6*time.Hour, mr.TTL("clueboard:room:"+code))
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mr := tt.arrange(t, &c)

			s, err := Init(c)
			require.NoError(t, err)
			t.Cleanup(s.Shutdown)

			if s.relay != nil {
				go func() { _ = s.relay.Run(s.ctx) }()
				require.Eventually(t, func() bool { return mr.PubSubNumPat() > 0 }, 2*time.Second, 10*time.Millisecond)
			}

			h := s.http.Handler

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(`{"title":"t"}`)))
			require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

			var created api.CreateRoomResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

			sub := s.hub.Subscribe(realtime.Channel(c.Redis.Pubsub.Prefix, created.RoomCode, domain.RolePlayer))

			w = httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rooms/"+created.RoomCode+"/join", strings.NewReader(`{"name":"Alice"}`)))
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			select {
			case b := <-sub:
				var n api.Notification
				require.NoError(t, json.Unmarshal(b, &n))
				assert.Equal(t, api.EventRoomState, n.Event)
			case <-time.After(2 * time.Second):
				t.Fatal("join was not broadcast to the local hub")
			}

			assert.Eventually(t, func() bool {
				w := httptest.NewRecorder()
				h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
				return w.Code == http.StatusOK && strings.Contains(w.Body.String(), "clueboard_broadcasts_total")
			}, 2*time.Second, 10*time.Millisecond)

			tt.assert(t, s, mr, created.RoomCode)
		})
	}
}
