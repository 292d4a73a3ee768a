package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	orchestrator "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/agents/orchestrator"
	"github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/channel/telegram"
	"github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/channel/website"
	"github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/channel/whatsapp"
	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
	"github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/knowledge"
	"github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/llm"
	"github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/resolver"
	"github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/sink"
	statex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/state"
	configx "github.com/tanpawarit/Chative-Bakery-Support-Bot/pkg/config"
	"github.com/tanpawarit/Chative-Bakery-Support-Bot/pkg/dedupe"
	httpserverx "github.com/tanpawarit/Chative-Bakery-Support-Bot/pkg/httpserver"
	_ "github.com/tanpawarit/Chative-Bakery-Support-Bot/pkg/logger/autoload"
	postgresx "github.com/tanpawarit/Chative-Bakery-Support-Bot/pkg/postgres"
	ratelimitx "github.com/tanpawarit/Chative-Bakery-Support-Bot/pkg/ratelimit"
)

type DedupeConfig struct {
	TTL     time.Duration `default:"1h"`
	MaxSize int           `split_words:"true" default:"10000"`
}

func main() {
	appCfg := configx.MustNew[httpserverx.Config]("APP")
	aiCfg := configx.MustNew[llm.Config]("OPENAI")
	resolverCfg := configx.MustNew[resolver.Config]("AI")
	kbCfg := configx.MustNew[knowledge.Config]("BAKERY")
	pgCfg := configx.MustNew[postgresx.Config]("POSTGRES")
	upstashCfg := configx.MustNew[statex.UpstashConfig]("UPSTASH")
	redisCfg := configx.MustNew[ratelimitx.Config]("REDIS")
	sinkCfg := configx.MustNew[sink.Config]("SINK")
	dedupeCfg := configx.MustNew[DedupeConfig]("DEDUPE")
	tgCfg := configx.MustNew[telegram.Config]("TELEGRAM")
	waCfg := configx.MustNew[whatsapp.Config]("WHATSAPP")
	webCfg := configx.MustNew[website.Config]("WEBSITE")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kb, err := knowledge.Load(*kbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load knowledge base")
	}

	var checks []httpserverx.Check

	var db *bun.DB
	if pgCfg.Enabled() {
		db, err = postgresx.Open(ctx, *pgCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("connect to postgres")
		}
		defer db.Close()
		checks = append(checks, httpserverx.Check{Name: "database", Ping: db.PingContext})
	}

	store, err := newConversationStore(ctx, db, *upstashCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init conversation store")
	}

	writer, counter, err := newErrorWriter(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("init error log")
	}
	errSink, err := sink.NewAsync(writer, *sinkCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init error sink")
	}
	defer errSink.Close()

	var completer contractx.Completer
	if aiCfg.Enabled() {
		c, err := llm.NewOpenAICompleter(*aiCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("init ai completer")
		}
		completer = c
		log.Info().Str("model", aiCfg.Model).Msg("ai tier enabled")
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set; ai tier disabled")
	}

	res, err := resolver.New(*resolverCfg, kb, completer, errSink)
	if err != nil {
		log.Fatal().Err(err).Msg("init resolver")
	}
	orch, err := orchestrator.New(store, res, errSink)
	if err != nil {
		log.Fatal().Err(err).Msg("init orchestrator")
	}

	var limiter ratelimitx.Limiter = ratelimitx.Noop{}
	if redisCfg.Enabled() {
		rdb, err := ratelimitx.Open(ctx, *redisCfg)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable; rate limiting disabled")
		} else {
			defer rdb.Close()
			if l, err := ratelimitx.NewRedisLimiter(rdb, *redisCfg); err != nil {
				log.Warn().Err(err).Msg("rate limiter misconfigured; rate limiting disabled")
			} else {
				limiter = l
				checks = append(checks, httpserverx.Check{
					Name: "redis",
					Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
				})
			}
		}
	}

	seen := dedupe.New(dedupeCfg.TTL, dedupeCfg.MaxSize)
	engine := httpserverx.NewEngine(*appCfg)
	httpserverx.NewHealth(appCfg.ServiceName, counter, checks...).Register(engine)

	web, err := website.New(orch, store, limiter, *webCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init website channel")
	}
	web.Register(engine)

	var tgSender telegram.Sender
	if bot, err := telegram.NewBotClient(*tgCfg, nil); err != nil {
		log.Warn().Err(err).Msg("telegram replies disabled")
	} else {
		tgSender = bot
	}
	tg, err := telegram.New(orch, tgSender, errSink, limiter, seen, *tgCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init telegram channel")
	}
	tg.Register(engine)

	var waSender whatsapp.Sender
	if graph, err := whatsapp.NewGraphClient(*waCfg, nil); err != nil {
		log.Warn().Err(err).Msg("whatsapp replies disabled")
	} else {
		waSender = graph
	}
	wa, err := whatsapp.New(orch, waSender, errSink, limiter, seen, *waCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init whatsapp channel")
	}
	wa.Register(engine)

	if err := httpserverx.Run(ctx, *appCfg, engine); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("http server stopped")
	}
}

// newConversationStore prefers postgres, then upstash, then process memory.
func newConversationStore(ctx context.Context, db *bun.DB, upstash statex.UpstashConfig) (contractx.ConversationStore, error) {
	switch {
	case db != nil:
		s, err := statex.NewPostgresStore(db)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		log.Info().Str("backend", "postgres").Msg("conversation store ready")
		return s, nil
	case upstash.Enabled():
		s, err := statex.NewUpstashStore(upstash)
		if err != nil {
			return nil, err
		}
		log.Info().Str("backend", "upstash").Msg("conversation store ready")
		return s, nil
	default:
		log.Warn().Str("backend", "memory").Msg("no durable store configured; conversations are lost on restart")
		return statex.NewMemoryStore(), nil
	}
}

// newErrorWriter always logs records and keeps them in postgres when
// available, otherwise in a bounded in-memory log for the health endpoint.
func newErrorWriter(ctx context.Context, db *bun.DB) (sink.Writer, sink.Counter, error) {
	logged := sink.LogWriter{}
	if db == nil {
		mem := sink.NewMemory(1000)
		return sink.Multi(logged, mem), mem, nil
	}
	pg, err := sink.NewPostgresWriter(db)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		return nil, nil, err
	}
	return sink.Multi(logged, pg), pg, nil
}
