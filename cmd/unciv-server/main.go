// Command unciv-server runs the multiplayer game relay: it serves the
// save file and auth endpoints backed by redis, and the chat websocket
// endpoint backed by the process-local connection registry.
package main

import (
	"context"
	"expvar"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	uncivserver "github.com/K4zoku/unciv-server-cf"
	"github.com/K4zoku/unciv-server-cf/auth"
	"github.com/K4zoku/unciv-server-cf/httpapi"
	"github.com/K4zoku/unciv-server-cf/internal/srvhandler"
	"github.com/K4zoku/unciv-server-cf/message"
	"github.com/K4zoku/unciv-server-cf/saves"
	"github.com/K4zoku/unciv-server-cf/store/redisstore"
	"github.com/gomodule/redigo/redis"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/mna/redisc"
	"github.com/rs/zerolog"
)

var (
	configFlag       = flag.String("config", "", "Path of the configuration `file`.")
	helpFlag         = flag.Bool("help", false, "Show help.")
	noLogFlag        = flag.Bool("L", false, "Disable logging.")
	portFlag         = flag.Int("port", 8080, "Server `port`.")
	redisAddrFlag    = flag.String("redis", ":6379", "Redis `address`.")
	redisClusterFlag = flag.Bool("redis-cluster", false, "Use redis cluster.")
	redisMaxIdleFlag = flag.Int("redis-max-idle", 0, "Maximum idle `connections`.")
)

func main() {
	flag.Parse()
	if *helpFlag {
		flag.Usage()
		return
	}

	// a .env file, when present, feeds the environment overrides
	godotenv.Load()

	conf, err := getConfigFromFile(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration file: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}
	applyEnvOverrides(conf)

	logFn := newLogFunc()
	vars := expvar.NewMap("uncivserver")

	pool, err := newRedisPool(conf.Redis)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to redis: %v\n", err)
		os.Exit(2)
	}
	defer pool.Close()
	logFn("redis configured on %s (cluster: %t)", conf.Redis.Addr, conf.Redis.Cluster)

	kv := &redisstore.Store{
		Pool:    pool,
		LogFunc: logFn,
		Vars:    vars,
	}
	gate := &auth.Gate{Creds: kv, Vars: vars}
	saveStore := &saves.Store{KV: kv, Gate: gate, Vars: vars}

	relay := newServer(conf.Server, logFn, vars)
	relay.Handler = newHandler(logFn, vars)

	api := httpapi.Routes(&httpapi.Handler{
		Relay:    relay,
		Gate:     gate,
		Saves:    saveStore,
		Upgrader: newUpgrader(conf.Server),
		LogFunc:  logFn,
	})

	httpSrv := &http.Server{
		Addr:           conf.Server.Addr,
		Handler:        api,
		MaxHeaderBytes: conf.Server.MaxHeaderBytes,
	}

	logFn("listening for connections on %s", conf.Server.Addr)
	if err := httpSrv.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "ListenAndServe failed: %v\n", err)
		os.Exit(2)
	}
}

func newLogFunc() func(string, ...interface{}) {
	if *noLogFlag {
		return uncivserver.DiscardLog
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	return func(f string, args ...interface{}) {
		logger.Info().Msgf(f, args...)
	}
}

func newServer(conf *Server, logFn func(string, ...interface{}), vars *expvar.Map) *uncivserver.Server {
	return &uncivserver.Server{
		ReadLimit:               conf.ReadLimit,
		ReadTimeout:             conf.ReadTimeout,
		WriteLimit:              conf.WriteLimit,
		WriteTimeout:            conf.WriteTimeout,
		AcquireWriteLockTimeout: conf.AcquireWriteLockTimeout,
		ConnState:               srvhandler.LogConn(logFn),
		Registry:                uncivserver.NewRegistry(),
		LogFunc:                 logFn,
		Vars:                    vars,
	}
}

func newHandler(logFn func(string, ...interface{}), vars *expvar.Map) uncivserver.Handler {
	process := uncivserver.HandlerFunc(func(ctx context.Context, c *uncivserver.Conn, m message.Msg) {
		uncivserver.ProcessMsg(c, m)
	})

	chain := []uncivserver.Handler{process}
	if !*noLogFlag {
		chain = append([]uncivserver.Handler{srvhandler.LogMsg(logFn)}, chain...)
	}
	return srvhandler.PanicRecover(srvhandler.Chain(chain...), vars)
}

func newUpgrader(conf *Server) *websocket.Upgrader {
	return &websocket.Upgrader{
		HandshakeTimeout: conf.HandshakeTimeout,
		ReadBufferSize:   conf.ReadBufferSize,
		WriteBufferSize:  conf.WriteBufferSize,
	}
}

func newRedisPool(conf *Redis) (redisstore.Pool, error) {
	createPool := redisPoolCreateFunc(conf)
	if conf.Cluster {
		cluster := &redisc.Cluster{
			StartupNodes: []string{conf.Addr},
			CreatePool:   createPool,
		}
		if err := cluster.Refresh(); err != nil {
			return nil, err
		}
		return cluster, nil
	}
	return createPool(conf.Addr)
}

func redisPoolCreateFunc(conf *Redis) func(string, ...redis.DialOption) (*redis.Pool, error) {
	return func(addr string, opts ...redis.DialOption) (*redis.Pool, error) {
		p := &redis.Pool{
			MaxIdle:     conf.MaxIdle,
			MaxActive:   conf.MaxActive,
			IdleTimeout: conf.IdleTimeout,
			Dial: func() (redis.Conn, error) {
				c, err := redis.Dial("tcp", addr, opts...)
				if err != nil {
					return nil, err
				}
				return c, err
			},
			TestOnBorrow: func(c redis.Conn, t time.Time) error {
				_, err := c.Do("PING")
				return err
			},
		}

		// test the connection so that it fails fast if redis is not available
		c := p.Get()
		defer c.Close()

		if _, err := c.Do("PING"); err != nil {
			return nil, err
		}
		return p, nil
	}
}
