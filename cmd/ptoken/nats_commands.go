package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/brojonat/ptoken/service/analysis"
	natspkg "github.com/brojonat/ptoken/service/nats"
	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand tails analysis events from JetStream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Subscribe to analysis events",
		Description: `Stream analysis events published to NATS JetStream after every successful
analysis. Events are published to the subject: analyses.{network}

Use --must-jq to only print events for which every filter is truthy.

Example:
  ptoken nats subscribe --network mainnet --json
  ptoken nats subscribe --must-jq '.percentage_savings | tonumber > 95'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "network",
				Aliases: []string{"n"},
				Usage:   "Only receive events for this network (default: all)",
			},
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq filter that must be truthy for an event to be printed (repeatable)",
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "ptoken-cli",
			},
		},
		Action: func(c *cli.Context) error {
			network := c.String("network")
			if network != "" {
				parsed, err := analysis.ParseNetwork(network)
				if err != nil {
					return err
				}
				network = string(parsed)
			}

			filters, err := compileJQ(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			sub, err := natspkg.NewSubscriber(c.String("nats-url"), cliLogger())
			if err != nil {
				return err
			}
			defer sub.Close()

			jsonOutput := c.Bool("json")
			w := c.App.Writer
			if !jsonOutput {
				fmt.Fprintf(w, "📡 Subscribing to: %s\n", natspkg.SubjectForNetwork(network))
				fmt.Fprintf(w, "   NATS: %s\n", c.String("nats-url"))
				fmt.Fprintf(w, "\nWaiting for analyses... (Ctrl-C to exit)\n\n")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			count := 0
			err = sub.Subscribe(ctx, natspkg.SubscribeOptions{
				Network:      network,
				Durable:      c.Bool("durable"),
				ConsumerName: c.String("consumer-name"),
			}, func(event *natspkg.AnalysisEvent) {
				if !eventMatches(filters, event) {
					return
				}
				count++
				if jsonOutput {
					data, _ := json.Marshal(event)
					fmt.Fprintln(w, string(data))
					return
				}
				printEvent(w, count, event)
			})
			if err != nil {
				return err
			}

			if !jsonOutput {
				fmt.Fprintf(w, "\n✅ Received %d analyses\n", count)
			}
			return nil
		},
	}
}

// eventMatches applies --must-jq filters to an event.
func eventMatches(filters []*gojq.Code, event *natspkg.AnalysisEvent) bool {
	if len(filters) == 0 {
		return true
	}
	v, err := toJQValue(event)
	if err != nil {
		return false
	}
	return matchesAll(filters, v)
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the ANALYSES JetStream stream",
		Description: `Show information about the JetStream stream including:
- Message count
- Consumers
- Storage usage
- Stream configuration

Example:
  ptoken nats inspect-stream`,
		Action: func(c *cli.Context) error {
			nc, err := natspkg.Connect(c.String("nats-url"), "ptoken-cli")
			if err != nil {
				return err
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(context.Background(), natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			w := c.App.Writer
			if c.Bool("json") {
				return outputJSON(w, info)
			}

			fmt.Fprintf(w, "Stream: %s\n", info.Config.Name)
			fmt.Fprintln(w, rule)
			fmt.Fprintf(w, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(w, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(w, "Bytes:        %d\n", info.State.Bytes)
			fmt.Fprintf(w, "First Seq:    %d\n", info.State.FirstSeq)
			fmt.Fprintf(w, "Last Seq:     %d\n", info.State.LastSeq)
			fmt.Fprintf(w, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(w, "Max Age:      %s\n", info.Config.MaxAge)
			fmt.Fprintf(w, "Storage:      %s\n", info.Config.Storage)
			return nil
		},
	}
}
