// Command nxsend-command builds and publishes a FileWriter_new or
// FileWriter_stop JSON command, for operators driving the service
// manually without a JSON-authoring client at hand. Grounded on
// original_source/src/send-command.cxx.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"nxwriter/internal/command"
)

func main() {
	kind := flag.String("cmd", "start", "command kind: start|stop|stop-all|exit")
	broker := flag.String("broker", "", "bootstrap brokers, comma-separated")
	topic := flag.String("topic", "nxwriter-commands", "command topic to publish to")
	jobID := flag.String("job-id", "", "job identifier")
	serviceID := flag.String("service-id", "", "service_id to match against a running process")
	fileName := flag.String("file-name", "", "output file name (start only)")
	nexusPath := flag.String("nexus-structure", "", "path to a nexus_structure JSON file (start only)")
	startTime := flag.Duration("start-offset", 0, "start_time as an offset from now (start only)")
	stopTime := flag.Duration("stop-offset", 0, "stop_time as an offset from now (0 omits stop_time: start never stops, stop stops at once)")
	dryRun := flag.Bool("dry-run", false, "print the JSON command instead of publishing it")
	flag.Parse()

	raw, err := build(*kind, *jobID, *serviceID, *fileName, *nexusPath, *startTime, *stopTime)
	if err != nil {
		fmt.Fprintln(os.Stderr, "nxsend-command:", err)
		os.Exit(1)
	}

	if *dryRun || *broker == "" {
		fmt.Println(string(raw))
		return
	}

	if err := publish(*broker, *topic, raw); err != nil {
		fmt.Fprintln(os.Stderr, "nxsend-command:", err)
		os.Exit(1)
	}
}

func build(kind, jobID, serviceID, fileName, nexusPath string, startOffset, stopOffset time.Duration) ([]byte, error) {
	now := time.Now()

	switch kind {
	case "start":
		if jobID == "" || fileName == "" {
			return nil, fmt.Errorf("start requires -job-id and -file-name")
		}
		var nexusStructure []byte
		if nexusPath != "" {
			data, err := os.ReadFile(nexusPath)
			if err != nil {
				return nil, fmt.Errorf("read nexus-structure: %w", err)
			}
			nexusStructure = data
		} else {
			nexusStructure = []byte(`{"type":"group","name":"entry","children":[]}`)
		}
		start := command.Start{
			ServiceID:      serviceID,
			JobID:          jobID,
			FileAttributes: command.FileAttributes{FileName: fileName},
			StartTimeMs:    uint64(now.Add(startOffset).UnixMilli()),
			NexusStructure: nexusStructure,
		}
		if stopOffset > 0 {
			start.StopTimeMs = uint64(now.Add(stopOffset).UnixMilli())
		}
		return marshalWithCmd(command.KindStart, start)

	case "stop":
		if jobID == "" {
			return nil, fmt.Errorf("stop requires -job-id")
		}
		stop := command.Stop{ServiceID: serviceID, JobID: jobID}
		if stopOffset > 0 {
			stop.StopTimeMs = uint64(now.Add(stopOffset).UnixMilli())
		}
		return marshalWithCmd(command.KindStop, stop)

	case "stop-all":
		return marshalWithCmd(command.KindStopAll, command.StopAll{ServiceID: serviceID})

	case "exit":
		return marshalWithCmd(command.KindExit, command.Exit{ServiceID: serviceID})

	default:
		return nil, fmt.Errorf("unknown -cmd %q: want start|stop|stop-all|exit", kind)
	}
}

// marshalWithCmd re-parses the built value through command.Parse after
// stitching in the "cmd" discriminator, so the bytes this tool emits
// are guaranteed to round-trip through the same parser the service uses.
func marshalWithCmd(kind command.Kind, value any) ([]byte, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	// Splice `"cmd":"<kind>"` into the object produced for value.
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return nil, fmt.Errorf("internal: command payload is not a JSON object")
	}
	rest := trimmed[1:]
	if strings.TrimSpace(rest) != "}" {
		rest = "," + rest
	}
	spliced := `{"cmd":"` + string(kind) + `"` + rest
	if _, err := command.Parse([]byte(spliced)); err != nil {
		return nil, fmt.Errorf("built command does not parse: %w", err)
	}
	return []byte(spliced), nil
}

func publish(broker, topic string, payload []byte) error {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(strings.Split(broker, ","), cfg)
	if err != nil {
		return fmt.Errorf("dial brokers: %w", err)
	}
	defer producer.Close()

	_, _, err = producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(payload),
	})
	return err
}
