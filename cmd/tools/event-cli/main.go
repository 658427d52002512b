package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/annel0/voxel-stream/internal/eventbus"
)

const (
	defaultNatsURL = "nats://127.0.0.1:4222"
	defaultStream  = "VOXEL_EVENTS"
	timeFormat     = "2006-01-02T15:04:05Z"
)

func main() {
	var (
		natsURL    = flag.String("url", defaultNatsURL, "NATS server URL")
		stream     = flag.String("stream", defaultStream, "JetStream stream name")
		command    = flag.String("cmd", "tail", "Command: tail, stats")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		sources    = flag.String("sources", "", "Source services filter (comma-separated)")
		since      = flag.String("since", "1h", "Time duration since now (e.g., 1h, 30m) or RFC3339 time")
		limit      = flag.Int("limit", 100, "Maximum number of events")
		follow     = flag.Bool("follow", false, "Follow new events (like tail -f)")
		idle       = flag.Duration("idle", 2*time.Second, "Stop after this long without events (ignored with -follow)")
	)
	flag.Parse()

	nc, err := nats.Connect(*natsURL, nats.Name("voxel-event-cli"))
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		log.Fatalf("❌ JetStream unavailable: %v", err)
	}

	startTime, err := parseSinceTime(*since, time.Now())
	if err != nil {
		log.Fatalf("❌ Invalid since time: %v", err)
	}

	opts := &ReadOptions{
		Stream: *stream,
		Filter: eventbus.Filter{Types: parseStringList(*eventTypes), Sources: parseStringList(*sources)},
		Since:  startTime,
		Limit:  *limit,
		Follow: *follow,
		Idle:   *idle,
	}

	switch *command {
	case "tail":
		if err := tailEvents(js, opts); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "stats":
		opts.Follow = false
		opts.Limit = 0
		if err := showStats(js, opts); err != nil {
			log.Fatalf("❌ Stats failed: %v", err)
		}

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats")
		os.Exit(1)
	}
}

type ReadOptions struct {
	Stream string
	Filter eventbus.Filter
	Since  time.Time
	Limit  int // 0 = без ограничения
	Follow bool
	Idle   time.Duration
}

// readEvents читает события стрима начиная с opts.Since и передает подходящие в fn.
// Без Follow чтение заканчивается после Idle без новых сообщений.
func readEvents(js nats.JetStreamContext, opts *ReadOptions, fn func(env *eventbus.Envelope, ev eventbus.Event)) (int, error) {
	subject := eventbus.SubjectPrefix + ".*"
	if len(opts.Filter.Types) == 1 {
		subject = eventbus.Subject(opts.Filter.Types[0])
	}

	sub, err := js.SubscribeSync(subject, nats.BindStream(opts.Stream), nats.OrderedConsumer(), nats.StartTime(opts.Since))
	if err != nil {
		return 0, fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	count := 0
	for opts.Limit <= 0 || count < opts.Limit {
		wait := opts.Idle
		if opts.Follow {
			wait = time.Hour
		}
		msg, err := sub.NextMsg(wait)
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				if opts.Follow {
					continue
				}
				break
			}
			return count, fmt.Errorf("stream error: %w", err)
		}

		var env eventbus.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			fmt.Printf("⚠️ Skipping malformed message on %s: %v\n", msg.Subject, err)
			continue
		}
		if !matches(&env, opts.Filter) {
			continue
		}
		ev, err := eventbus.DecodeEnvelope(&env)
		if err != nil {
			fmt.Printf("⚠️ Skipping %s: %v\n", env.ID, err)
			continue
		}
		fn(&env, ev)
		count++
	}
	return count, nil
}

// tailEvents выводит события по одному
func tailEvents(js nats.JetStreamContext, opts *ReadOptions) error {
	fmt.Printf("🎬 Tailing events since %s (limit: %d, follow: %v)\n", opts.Since.UTC().Format(timeFormat), opts.Limit, opts.Follow)

	count, err := readEvents(js, opts, printEvent)
	if err != nil {
		return err
	}

	fmt.Printf("\n📊 Total events: %d\n", count)
	return nil
}

// showStats считает события по типам
func showStats(js nats.JetStreamContext, opts *ReadOptions) error {
	fmt.Println("📊 Event statistics")

	byType := make(map[string]int)
	total, err := readEvents(js, opts, func(env *eventbus.Envelope, _ eventbus.Event) {
		byType[env.EventType]++
	})
	if err != nil {
		return err
	}

	fmt.Printf("Since: %s\n", opts.Since.UTC().Format(timeFormat))
	fmt.Printf("Total events: %d\n", total)
	fmt.Println("\nBy event type:")
	for _, line := range formatStats(byType) {
		fmt.Println(line)
	}
	return nil
}

// printEvent выводит событие в читаемом формате
func printEvent(env *eventbus.Envelope, ev eventbus.Event) {
	fmt.Printf("[%s] %s [%s] %s\n",
		env.Timestamp.Format("15:04:05"),
		env.Source,
		env.EventType,
		env.ID)

	if ev.Type.IsFocusEvent() {
		fmt.Printf("  Focus: #%d at (%d,%d,%d)\n", ev.FocusID, ev.Focus.X, ev.Focus.Y, ev.Focus.Z)
	} else {
		fmt.Printf("  Chunk: (%d,%d,%d) Origin: %s\n", ev.Chunk.X, ev.Chunk.Y, ev.Chunk.Z, ev.Origin)
	}
}

// formatStats строки статистики, самые частые типы первыми
func formatStats(byType map[string]int) []string {
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if byType[types[i]] != byType[types[j]] {
			return byType[types[i]] > byType[types[j]]
		}
		return types[i] < types[j]
	})

	lines := make([]string, 0, len(types))
	for _, t := range types {
		lines = append(lines, fmt.Sprintf("  %s: %d events", t, byType[t]))
	}
	return lines
}

// matches фильтрует по типам и источникам, пустой список пропускает всё
func matches(env *eventbus.Envelope, f eventbus.Filter) bool {
	return contains(f.Types, env.EventType) && contains(f.Sources, env.Source)
}

func contains(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseSinceTime парсит относительное время типа "1h", "30m" или абсолютное
func parseSinceTime(since string, from time.Time) (time.Time, error) {
	if since == "" {
		return from, nil
	}

	duration, err := time.ParseDuration(since)
	if err != nil {
		// Пробуем парсить как абсолютное время
		return time.Parse(timeFormat, since)
	}

	return from.Add(-duration), nil
}
