// Package cli dispatches the service's subcommands: one flag.FlagSet
// per subcommand, configuration loaded once per invocation, exit code 2
// for flag errors and 1 for any other failure.
package cli

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nxwriter/internal/command"
	"nxwriter/internal/config"
	"nxwriter/internal/flatbuffer"
	"nxwriter/internal/handler"
	"nxwriter/internal/kafka"
	"nxwriter/internal/logger"
	"nxwriter/internal/partition"
	"nxwriter/internal/replay"
	"nxwriter/internal/schema"
	"nxwriter/internal/status"
	"nxwriter/internal/statusweb"
	"nxwriter/internal/streammaster"
	"nxwriter/internal/writermodule"
	"nxwriter/internal/writermodule/f142"
	"nxwriter/internal/writermodule/wave"
)

// Execute dispatches CLI subcommands.
func Execute(args []string) int {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("[nxwriter] ")

	if len(args) == 0 {
		printUsage()
		return 1
	}

	switch args[0] {
	case "run":
		return runService(args[1:])
	case "replay":
		return runReplay(args[1:])
	case "dashboard":
		return runDashboard(args[1:])
	case "help", "-h", "--help":
		printUsage()
		return 0
	case "version", "--version", "-v":
		fmt.Println("nxwriter 0.1.0-dev")
		return 0
	default:
		log.Printf("Unknown subcommand: %s", args[0])
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Println(`nxwriter - streaming NeXus file-writer service

Usage:
  nxwriter run -config <path>        consume the command topic and drive jobs
  nxwriter replay -fixture <path> [-timeout <duration>]
                                      process one Start/Stop fixture with no broker
  nxwriter dashboard -config <path>  serve the status dashboard standalone
  nxwriter version                   print the build version`)
}

// buildRegistries constructs the process-wide FlatbufferReader and
// WriterModule registries and the writer_module-name -> schema_tag
// map every Start command's nexus_structure resolves against. Built
// explicitly per call rather than at package init, so nothing here is
// global mutable state.
func buildRegistries() (*flatbuffer.Registry, *writermodule.Registry, func(string) (flatbuffer.SchemaTag, bool), error) {
	fbRegistry := flatbuffer.NewRegistry()
	if err := fbRegistry.Register(schema.F142Tag, schema.F142Reader{}); err != nil {
		return nil, nil, nil, err
	}
	if err := fbRegistry.Register(schema.WaveTag, schema.WaveReader{}); err != nil {
		return nil, nil, nil, err
	}

	writerRegistry := writermodule.NewRegistry()
	f142Tag, _ := flatbuffer.TagFromString(schema.F142Tag)
	waveTag, _ := flatbuffer.TagFromString(schema.WaveTag)
	if err := writerRegistry.Register(schema.F142Tag, f142.ModuleName, f142.NewFactory(schema.DecodeF142Value)); err != nil {
		return nil, nil, nil, err
	}
	if err := writerRegistry.Register(schema.WaveTag, wave.ModuleName, wave.NewFactory(schema.DecodeWaveSamples)); err != nil {
		return nil, nil, nil, err
	}

	tagOf := func(moduleName string) (flatbuffer.SchemaTag, bool) {
		switch moduleName {
		case f142.ModuleName:
			return f142Tag, true
		case wave.ModuleName:
			return waveTag, true
		default:
			return flatbuffer.SchemaTag{}, false
		}
	}

	return fbRegistry, writerRegistry, tagOf, nil
}

// statusSink adapts status.Sink to streammaster.StatusSink, the
// interface StreamMaster's watch loop actually drives.
type statusSink struct {
	sink status.Sink
	log  handler.Logger
}

func (s statusSink) OnStatusChange(jobID string, st streammaster.Status) {
	s.log.Infof("job %s -> %s", jobID, st)
}

func (s statusSink) OnTerminal(jobID string, reason streammaster.TerminalReason) {
	s.sink.Publish(status.ReportFromTerminal(jobID, "", reason))
}

func runService(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "nxwriter.yaml", "path to the service YAML configuration")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("config: %v", err)
		return 1
	}

	if err := logger.Init(cfg.Log.Dir, logger.ParseLevel(cfg.Log.Level), "nxwriter"); err != nil {
		log.Printf("logger: %v", err)
		return 1
	}
	defer logger.Close()
	logger.Console("starting nxwriter: %s", cfg.Summary())

	fbRegistry, writerRegistry, tagOf, err := buildRegistries()
	if err != nil {
		log.Printf("registries: %v", err)
		return 1
	}

	executor := partition.Executor(partition.NewPoolExecutor(poolSize(cfg.Executor.PoolSize)))

	h := handler.New(context.Background(), handler.Deps{
		ServiceID:          cfg.Command.ServiceID,
		FBRegistry:         fbRegistry,
		WriterRegistry:     writerRegistry,
		WriterModuleTagOf:  tagOf,
		KafkaErrorTimeout:  cfg.Broker.KafkaErrorTimeout,
		TopicWriteDuration: cfg.Broker.TopicWriteDuration,
		PartitionsPerTopic: fixedPartitionCount(1),
		Logger:             loggerAdapter{},
		Sink:               statusSink{sink: status.LoggingSink{}, log: loggerAdapter{}},
		Executor:           executor,
		NewConsumer: func(broker, topic string, partitionID int32) (partition.Consumer, error) {
			return kafka.New(kafka.Config{Brokers: strings.Split(broker, ",")}, topic, partitionID)
		},
	})

	dash, err := statusweb.New(statusweb.Options{ServiceID: cfg.Command.ServiceID, Source: h})
	if err != nil {
		log.Printf("dashboard: %v", err)
		return 1
	}
	ready := make(chan string, 1)
	go func() {
		if err := dash.Start(ready); err != nil {
			logger.Error("dashboard stopped: %v", err)
		}
	}()
	select {
	case addr := <-ready:
		logger.Console("status dashboard at http://%s", addr)
	case <-time.After(2 * time.Second):
	}

	cmdConsumer, err := kafka.New(kafka.Config{Brokers: strings.Split(cfg.Broker.Bootstrap, ",")}, cfg.Command.Topic, 0)
	if err != nil {
		log.Printf("command consumer: %v", err)
		return 1
	}
	if err := cmdConsumer.AddPartitionAtOffset(cfg.Command.Topic, 0, -1); err != nil {
		log.Printf("command consumer: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Console("consuming commands from %s", cfg.Command.Topic)
	for {
		select {
		case <-ctx.Done():
			logger.Console("shutting down")
			h.Handle(command.Command{Kind: command.KindExit, Exit: &command.Exit{}})
			_ = cmdConsumer.Close()
			return 0
		default:
		}

		result := cmdConsumer.Poll(ctx)
		if result.Status != partition.PollMessage {
			continue
		}
		cmd, err := command.Parse(result.Msg.Data)
		if err != nil {
			logger.Warn("command: %v", err)
			continue
		}
		h.Handle(cmd)
	}
}

func runReplay(args []string) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fixturePath := fs.String("fixture", "", "path to a replay fixture JSON file")
	timeout := fs.Duration("timeout", 30*time.Second, "how long to wait for the job to finish")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *fixturePath == "" {
		log.Printf("replay: -fixture is required")
		return 2
	}

	fixture, err := replay.Load(*fixturePath)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	fbRegistry, writerRegistry, tagOf, err := buildRegistries()
	if err != nil {
		log.Printf("registries: %v", err)
		return 1
	}

	h := handler.New(context.Background(), handler.Deps{
		ServiceID:          fixture.Start.ServiceID,
		FBRegistry:         fbRegistry,
		WriterRegistry:     writerRegistry,
		WriterModuleTagOf:  tagOf,
		KafkaErrorTimeout:  10,
		PartitionsPerTopic: fixture.PartitionsPerTopic(),
		Logger:             loggerAdapter{},
		Sink:               statusSink{sink: status.LoggingSink{}, log: loggerAdapter{}},
		Executor:           partition.NewPoolExecutor(32),
		NewConsumer:        fixture.ConsumerFactory(),
	})

	if err := replay.Run(context.Background(), h, fixture, *timeout); err != nil {
		log.Printf("%v", err)
		return 1
	}
	log.Printf("replay complete: job_id=%s", fixture.Start.JobID)
	return 0
}

func runDashboard(args []string) int {
	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	configPath := fs.String("config", "nxwriter.yaml", "path to the service YAML configuration")
	addr := fs.String("addr", ":0", "address to listen on")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("config: %v", err)
		return 1
	}

	srv, err := statusweb.New(statusweb.Options{Addr: *addr, ServiceID: cfg.Command.ServiceID, Source: emptySource{}})
	if err != nil {
		log.Printf("dashboard: %v", err)
		return 1
	}
	if err := srv.Start(nil); err != nil {
		log.Printf("dashboard: %v", err)
		return 1
	}
	return 0
}

type emptySource struct{}

func (emptySource) Snapshots() []streammaster.Snapshot { return nil }

type loggerAdapter struct{}

func (loggerAdapter) Warnf(format string, args ...any)  { logger.Warn(format, args...) }
func (loggerAdapter) Infof(format string, args ...any)  { logger.Info(format, args...) }
func (loggerAdapter) Errorf(format string, args ...any) { logger.Error(format, args...) }

func poolSize(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// fixedPartitionCount returns a handler.Deps.PartitionsPerTopic stub
// assigning every topic exactly n partitions (0..n-1). A production
// deployment would resolve this from the broker's partition metadata
// via sarama's Client.Partitions instead.
func fixedPartitionCount(n int) func(broker, topic string) ([]int32, error) {
	return func(broker, topic string) ([]int32, error) {
		ids := make([]int32, n)
		for i := range ids {
			ids[i] = int32(i)
		}
		return ids, nil
	}
}
