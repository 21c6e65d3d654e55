package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/finbook/event-pipeline-service/config"
	infrapubsub "github.com/finbook/event-pipeline-service/infra/pubsub"
	"github.com/finbook/event-pipeline-service/internal/adapter/pubsub"
	"github.com/finbook/event-pipeline-service/internal/domain/event"
	"github.com/finbook/event-pipeline-service/internal/producer"
)

// emitCmd publishes a single hand-crafted event, for smoke-testing a broker
// and its consumer groups without a producing service in the loop.
func emitCmd() *cli.Command {
	return &cli.Command{
		Name:  "emit",
		Usage: "Publish one test event to the pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config_file",
				Usage: "Path to the configuration file",
			},
		},
		Subcommands: []*cli.Command{
			emitActivityCmd(),
			emitMutationCmd(),
			emitLinkingCmd(),
		},
	}
}

func emitActivityCmd() *cli.Command {
	return &cli.Command{
		Name:  "activity",
		Usage: "Publish a unified activity event",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "actor", Required: true},
			&cli.Int64Flag{Name: "target", Required: true},
			&cli.StringFlag{Name: "entity", Value: "EXPENSE"},
			&cli.Int64Flag{Name: "entity_id", Required: true},
			&cli.StringFlag{Name: "action", Value: "CREATE"},
			&cli.Float64Flag{Name: "amount"},
		},
		Action: func(c *cli.Context) error {
			return withEmitter(c, func(pp *pubsub.PublisherProvider, logger *slog.Logger) error {
				pub, err := pp.Build(pubsub.ExchangeActivity)
				if err != nil {
					return err
				}
				p, err := producer.NewActivityProducer(pub, event.ServiceInfo{
					Name: ServiceName, Version: version, Environment: "cli",
				}, logger)
				if err != nil {
					return err
				}

				ev := event.NewActivityEvent(
					c.Int64("actor"), c.Int64("target"),
					event.EntityType(c.String("entity")), c.Int64("entity_id"),
					event.ActivityAction(c.String("action")),
				)
				if c.IsSet("amount") {
					amount := c.Float64("amount")
					ev.Amount = &amount
				}

				if err := p.PublishSync(c.Context, ev); err != nil {
					return err
				}
				fmt.Println(ev.EventID)
				return nil
			})
		},
	}
}

func emitMutationCmd() *cli.Command {
	return &cli.Command{
		Name:  "mutation",
		Usage: "Publish a category-expense set mutation",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "user", Required: true},
			&cli.Int64Flag{Name: "category", Required: true},
			&cli.Int64Flag{Name: "expense", Required: true},
			&cli.StringFlag{Name: "action", Value: "ADD"},
		},
		Action: func(c *cli.Context) error {
			return withEmitter(c, func(pp *pubsub.PublisherProvider, logger *slog.Logger) error {
				pub, err := pp.Build(pubsub.ExchangeMutation)
				if err != nil {
					return err
				}
				p, err := producer.NewCategoryExpenseProducer(pub, logger)
				if err != nil {
					return err
				}

				ev := event.NewCategoryExpenseEvent(
					c.Int64("user"), c.Int64("category"), c.Int64("expense"),
					event.MutationAction(c.String("action")),
				)
				if err := p.PublishSync(c.Context, ev); err != nil {
					return err
				}
				fmt.Println(ev.EventID)
				return nil
			})
		},
	}
}

func emitLinkingCmd() *cli.Command {
	return &cli.Command{
		Name:  "linking",
		Usage: "Publish an expense-budget linking event",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Required: true},
			&cli.Int64Flag{Name: "user", Required: true},
			&cli.Int64Flag{Name: "old_expense"},
			&cli.Int64Flag{Name: "new_expense"},
			&cli.Int64Flag{Name: "old_budget"},
			&cli.Int64Flag{Name: "new_budget"},
		},
		Action: func(c *cli.Context) error {
			return withEmitter(c, func(pp *pubsub.PublisherProvider, logger *slog.Logger) error {
				pub, err := pp.Build(pubsub.ExchangeLinking)
				if err != nil {
					return err
				}
				p, err := producer.NewLinkingProducer(pub, logger)
				if err != nil {
					return err
				}

				ev := event.NewLinkingEvent(
					event.LinkingEventType(c.String("type")), c.Int64("user"),
				)
				ev.OldExpenseID = c.Int64("old_expense")
				ev.NewExpenseID = c.Int64("new_expense")
				ev.OldBudgetID = c.Int64("old_budget")
				ev.NewBudgetID = c.Int64("new_budget")

				if err := p.PublishSync(c.Context, ev); err != nil {
					return err
				}
				fmt.Println(ev.EventID)
				return nil
			})
		},
	}
}

func withEmitter(c *cli.Context, fn func(*pubsub.PublisherProvider, *slog.Logger) error) error {
	cfg, err := config.LoadConfig(c.String("config_file"))
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	provider := infrapubsub.NewAMQPProvider(cfg.AMQP.URI, ProvideWatermillLogger(logger))
	return fn(pubsub.NewPublisherProvider(provider), logger)
}
