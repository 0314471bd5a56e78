package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/goal-agent/agent/agents/classifier"
	"github.com/tanpawarit/goal-agent/agent/agents/drafter"
	"github.com/tanpawarit/goal-agent/agent/control"
	"github.com/tanpawarit/goal-agent/agent/engine"
	"github.com/tanpawarit/goal-agent/agent/followup"
	"github.com/tanpawarit/goal-agent/agent/httpapi"
	"github.com/tanpawarit/goal-agent/agent/inbox"
	"github.com/tanpawarit/goal-agent/agent/llm"
	"github.com/tanpawarit/goal-agent/agent/outreach"
	"github.com/tanpawarit/goal-agent/agent/prompt"
	"github.com/tanpawarit/goal-agent/agent/registry"
	statex "github.com/tanpawarit/goal-agent/agent/state"
	configx "github.com/tanpawarit/goal-agent/pkg/config"
	_ "github.com/tanpawarit/goal-agent/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/goal-agent/pkg/openrouter"
	postgresx "github.com/tanpawarit/goal-agent/pkg/postgres"
	qstashx "github.com/tanpawarit/goal-agent/pkg/qstash"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("goal agent stopped")
	}
}

func run(ctx context.Context) error {
	httpCfg := configx.MustNew[httpapi.Config]("HTTP")
	llmCfg := configx.MustNew[llm.Config]("LLM")
	if err := llmCfg.Validate(); err != nil {
		return err
	}
	policy := configx.MustNew[followup.Policy]("FOLLOWUP")
	if err := policy.Validate(); err != nil {
		return err
	}
	outreachCfg := configx.MustNew[outreach.Config]("OUTREACH")
	qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
	postgresCfg := configx.MustNew[postgresx.Config]("POSTGRES")
	redisCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")

	prompts := prompt.LoadPromptSet()

	classifierCfg := llmCfg.OpenRouterFor(llm.RoleClassifier)
	openRouterClient := openrouterx.NewClient(classifierCfg)
	if openRouterClient == nil {
		return errors.New("failed to initialize openrouter client")
	}
	replyClassifier, err := classifier.New(openRouterClient, classifierCfg, prompts.Classifier)
	if err != nil {
		return err
	}

	drafterModel, err := llmCfg.OpenRouterFor(llm.RoleDrafter).NewChatModel(ctx)
	if err != nil {
		return err
	}
	nudgeDrafter, err := drafter.New(ctx, drafterModel, prompts.Drafter)
	if err != nil {
		return err
	}

	qstashClient := qstashx.MustNew(*qstashCfg)
	sender, err := outreach.NewSender(qstashClient, *outreachCfg)
	if err != nil {
		return err
	}
	scheduler, err := outreach.NewScheduler(qstashClient, *outreachCfg)
	if err != nil {
		return err
	}

	db := postgresx.MustNew(*postgresCfg)
	defer db.Close()
	replies, err := inbox.NewStore(db)
	if err != nil {
		return err
	}
	if err := replies.EnsureSchema(ctx); err != nil {
		return err
	}

	action, err := followup.NewAction(followup.Deps{
		Replies:    replies,
		Classifier: replyClassifier,
		Meetings:   scheduler,
		Drafter:    nudgeDrafter,
		Sender:     sender,
	}, *policy)
	if err != nil {
		return err
	}

	var factoryOpts []followup.FactoryOption
	if redisCfg.Enabled() {
		snapshots, err := statex.NewUpstashRedisStore(*redisCfg)
		if err != nil {
			return err
		}
		factoryOpts = append(factoryOpts, followup.WithSnapshots(snapshots))
	} else {
		log.Info().Msg("upstash redis not configured, contact snapshots disabled")
	}

	catalog := control.NewCatalog()
	if err := catalog.Register(followup.GoalType, followup.NewFactory(action, factoryOpts...)); err != nil {
		return err
	}

	pool := engine.NewPool()
	service, err := control.New(ctx, registry.New(), catalog, pool)
	if err != nil {
		return err
	}

	server, err := httpapi.NewServer(*httpCfg, service, httpapi.WithInbox(replies, qstashClient))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}

		waitForGoals(pool, httpCfg.ShutdownTimeout)
		return nil
	})

	return g.Wait()
}

// waitForGoals gives running goals until timeout to observe cancellation.
func waitForGoals(pool *engine.Pool, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn().Dur("timeout", timeout).Msg("goals still running at exit")
	}
}
