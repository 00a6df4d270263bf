package actions

import (
	"sync"

	"hokm_server/actions/rooms"
	"hokm_server/internal/lobby"
	"hokm_server/internal/realtime"

	"github.com/gobuffalo/buffalo"
	"github.com/gobuffalo/envy"
	"github.com/gobuffalo/middleware/contenttype"
	"github.com/gobuffalo/middleware/forcessl"
	"github.com/gobuffalo/middleware/paramlogger"
	"github.com/gobuffalo/x/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/unrolled/secure"
)

var ENV = envy.Get("GO_ENV", "development")

var (
	app     *buffalo.App
	appOnce sync.Once
)

// App builds the lobby application once: store selected from the environment,
// websocket endpoint, and the small REST read surface.
func App() *buffalo.App {
	appOnce.Do(func() {
		app = newApp(storeFromEnv())
	})
	return app
}

// newApp wires a buffalo app around the given store. Split from App so tests
// can build isolated instances on a memory store.
func newApp(store lobby.RoomStore) *buffalo.App {
	a := buffalo.New(buffalo.Options{
		Env:          ENV,
		SessionStore: sessions.Null{},
		PreWares: []buffalo.PreWare{
			cors.Default().Handler,
		},
		SessionName: "_hokm_session",
	})

	// Middleware
	a.Use(forceSSL())
	a.Use(paramlogger.ParameterLogger)
	a.Use(contenttype.Set("application/json"))

	a.GET("/", HomeHandler)
	a.GET("/healthz", func(c buffalo.Context) error {
		return c.Render(200, r.JSON(map[string]string{
			"status": "ok",
		}))
	})

	registry := realtime.NewRegistry()
	manager := lobby.NewManager(store, registry)

	a.GET("/ws", LobbyWebSocketHandler(manager, registry))

	rooms.Register(a, rooms.NewRoomsController(store))

	return a
}

// storeFromEnv picks the shared room store implementation. LOBBY_STORE=redis
// selects the networked store for multi-instance deployments; the default is
// the in-process store.
func storeFromEnv() lobby.RoomStore {
	if envy.Get("LOBBY_STORE", "memory") != "redis" {
		log.Info().Msg("Using in-memory room store.")
		return lobby.NewMemoryStore()
	}

	redisAddr := envy.Get("REDIS_ADDR", "localhost:6379")
	redisPassword := envy.Get("REDIS_PASSWORD", "")
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       0,
	})

	log.Info().Str("addr", redisAddr).Msg("Using Redis room store.")
	return lobby.NewRedisStore(redisClient)
}

func forceSSL() buffalo.MiddlewareFunc {
	return forcessl.Middleware(secure.Options{
		SSLRedirect:     false,
		SSLProxyHeaders: map[string]string{"X-Forwarded-Proto": "https"},
	})
}
