package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"electric-ping/app/src/client"
	"electric-ping/app/src/core"
	"electric-ping/app/src/domain"
	"electric-ping/app/src/infra"
	"electric-ping/app/src/shared/constants"
	"electric-ping/app/src/stream"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	keyAPIURL         = "API_URL"
	keyShapeURL       = "SHAPE_URL"
	keyShapeTable     = "SHAPE_TABLE"
	keyObserveTimeout = "OBSERVE_TIMEOUT"
	keyLogLevel       = "LOG_LEVEL"
)

type cliEnv struct {
	v      *viper.Viper
	in     io.Reader
	out    io.Writer
	logger *infra.Logger
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	env := &cliEnv{v: viper.New(), in: in, out: out}
	env.v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "ping",
		Short:         "Measure write-to-stream latency of the ping table",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			env.logger = infra.NewLoggerWithLevel(errOut, "ping-cli", env.v.GetString(keyLogLevel))
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.String("api-url", "http://localhost:8080", "base URL of the ping recorder")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = env.v.BindPFlag(keyAPIURL, flags.Lookup("api-url"))
	_ = env.v.BindPFlag(keyLogLevel, flags.Lookup("log-level"))

	root.AddCommand(newRunCommand(env), newPendingCommand(env))
	return root
}

func newRunCommand(env *cliEnv) *cobra.Command {
	var arrival string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send one ping, wait for it on the shape stream and record the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return env.runPing(cmd.Context(), arrival)
		},
	}

	flags := cmd.Flags()
	flags.String("shape-url", "", "shape endpoint (defaults to the recorder's shape proxy)")
	flags.String("table", "", "table parameter sent to the shape endpoint")
	flags.Duration("observe-timeout", core.DefaultObserveTimeout, "how long to wait for the change (0 waits forever)")
	flags.StringVar(&arrival, "arrival", "", "time the ping appeared in the UI, local time unless a zone is given; prompted when empty")
	_ = env.v.BindPFlag(keyShapeURL, flags.Lookup("shape-url"))
	_ = env.v.BindPFlag(keyShapeTable, flags.Lookup("table"))
	_ = env.v.BindPFlag(keyObserveTimeout, flags.Lookup("observe-timeout"))

	return cmd
}

func newPendingCommand(env *cliEnv) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pings that never received a result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := client.New(env.v.GetString(keyAPIURL), nil, env.logger)
			if err != nil {
				return err
			}
			records, err := api.IncompletePings(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(env.out, "no incomplete pings")
				return nil
			}
			for _, record := range records {
				fmt.Fprintf(env.out, "%s\t%s\n", record.PingID, constants.FormatTime(record.ClientStartTime))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of pings to list")
	return cmd
}

func (e *cliEnv) runPing(ctx context.Context, arrival string) error {
	api, err := client.New(e.v.GetString(keyAPIURL), nil, e.logger)
	if err != nil {
		return err
	}

	shapeURL := e.v.GetString(keyShapeURL)
	if shapeURL == "" {
		shapeURL = api.ShapeURL()
	}
	feed, err := stream.New(stream.Config{URL: shapeURL, Table: e.v.GetString(keyShapeTable)}, e.logger)
	if err != nil {
		return err
	}

	timeout := e.v.GetDuration(keyObserveTimeout)
	observer := core.NewObserver(feed, core.ObserverConfig{Timeout: timeout}, e.logger)

	observeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	observerDone := make(chan error, 1)
	go func() {
		observerDone <- observer.Run(observeCtx)
	}()

	if err := waitLive(ctx, observer, timeout); err != nil {
		cancel()
		if runErr := <-observerDone; runErr != nil {
			return fmt.Errorf("shape stream: %w", runErr)
		}
		return fmt.Errorf("shape stream not live: %w", err)
	}

	pending, err := core.NewPinger(api, observer, nil, e.logger).Ping(ctx)
	cancel()
	if runErr := <-observerDone; runErr != nil && err == nil {
		e.logger.Warnf(ctx, "shape stream stopped: %v", runErr)
	}
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	e.printPending(pending, timeout)

	if strings.TrimSpace(arrival) == "" {
		arrival, err = e.promptArrival(pending.Frame)
		if err != nil {
			return err
		}
	}

	result, err := core.NewAggregator(api, nil, e.logger).Finalize(ctx, pending, arrival)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}

	fmt.Fprintf(e.out, "Electric arrival:       +%dms\n", result.ElectricArriveOffset)
	fmt.Fprintf(e.out, "Client end:             +%dms\n", result.ClientEndOffset)
	fmt.Fprintf(e.out, "Result recorded for %s\n", result.PingID)
	return nil
}

func (e *cliEnv) printPending(p domain.PendingMeasurements, timeout time.Duration) {
	fmt.Fprintf(e.out, "Ping %s started at %s\n", p.Frame.PingID, constants.FormatTime(p.Frame.Start))
	fmt.Fprintf(e.out, "Request sent:           +%dms\n", p.RequestSentAt)
	fmt.Fprintf(e.out, "Response received:      +%dms\n", p.ResponseReceivedAt)
	fmt.Fprintf(e.out, "DB insert time:         %.2fms\n", p.DBInsertTime)
	fmt.Fprintf(e.out, "PG time:                +%dms\n", p.PgTimeOffset)
	if err := p.Stream.Err(); err != nil {
		fmt.Fprintf(e.out, "Stream update received: %v (%s)\n", err, timeout)
		fmt.Fprintln(e.out, "Round trip:             n/a")
		return
	}
	fmt.Fprintf(e.out, "Stream update received: +%dms\n", p.Stream.OffsetMS)
	fmt.Fprintf(e.out, "Round trip:             %dms\n", p.Stream.OffsetMS-p.RequestSentAt)
}

// waitLive holds the ping back until the shape stream has finished its
// initial sync, bounded by the observe timeout.
func waitLive(ctx context.Context, observer *core.Observer, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return observer.WaitReady(ctx)
}

func (e *cliEnv) promptArrival(frame domain.Frame) (string, error) {
	fmt.Fprintf(e.out, "When did ping %s appear? (ISO-8601, local time when no zone is given, or unix ms): ", frame.PingID)
	line, err := bufio.NewReader(e.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read arrival time: %w", err)
	}
	return strings.TrimSpace(line), nil
}
