package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/config"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/element"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/replay"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/stream"
)

type ReplayOptions struct {
	*RootOptions
	Realtime bool
}

// ReplayEvent is one element creation or deletion seen during playback.
type ReplayEvent struct {
	Time     float64 `json:"time"`
	Kind     string  `json:"kind"`
	ID       uint32  `json:"id"`
	Name     string  `json:"name"`
	AuthorID uint32  `json:"authorId"`
	Fields   int     `json:"fields"`
}

// ReplayResult summarizes a playback.
type ReplayResult struct {
	Entries  int           `json:"entries"`
	Duration float64       `json:"duration"`
	Ticks    uint64        `json:"ticks"`
	Events   []ReplayEvent `json:"events"`
	Live     int           `json:"live"`
}

func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <file|id>",
		Short: "Play a recording back through a client stream",
		Long: `Play a recording back through a client stream and report the
elements it creates and deletes.

The argument is a recording file or, when no such file exists, the id of a
recording in the configured database.

Examples:
  crabserver replay session.crab
  crabserver replay 01HZX3T1Q9V4N7M2K8J6B5C0D1 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			data, err := readRecording(cmd.Context(), cfg, args[0])
			if err != nil {
				return err
			}
			result, err := playRecording(cmd.Context(), data, cfg.Settings, opts.Realtime)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			writeReplayText(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Realtime, "realtime", false, "pace playback at the configured tick rate")
	return cmd
}

func readRecording(ctx context.Context, cfg config.Config, source string) ([]byte, error) {
	data, err := os.ReadFile(source)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	store, err := replay.OpenStore(cfg.Record.Database)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Load(ctx, source)
}

// playRecording ticks a replay at the configured rate until every entry is
// delivered, then one packet interval more so the last values are processed.
func playRecording(ctx context.Context, data []byte, settings config.Settings, realtime bool) (ReplayResult, error) {
	r, err := replay.New(data, stream.ClientConfig{Settings: settings})
	if err != nil {
		return ReplayResult{}, err
	}
	result := ReplayResult{Entries: r.Len(), Duration: r.Duration(), Events: []ReplayEvent{}}

	step := 1 / float64(settings.TickRate)
	now := 0.0
	record := func(kind string, e *element.Element) {
		result.Events = append(result.Events, ReplayEvent{
			Time:     now,
			Kind:     kind,
			ID:       e.ID(),
			Name:     e.Name(),
			AuthorID: e.AuthorID(),
			Fields:   e.FieldCount(),
		})
	}
	client := r.Client()
	client.OnElementCreated = func(e *element.Element) { record("create", e) }
	client.OnElementDeleted = func(e *element.Element) { record("delete", e) }

	var ticker *time.Ticker
	if realtime {
		ticker = time.NewTicker(time.Duration(step * float64(time.Second)))
		defer ticker.Stop()
	}

	r.Start(now)
	tail := settings.PacketInterval()
	for !r.Done() || tail > 0 {
		if r.Done() {
			tail--
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-ticker.C:
			}
		}
		if err := r.Process(now); err != nil {
			return result, err
		}
		now += step
	}
	result.Ticks = client.Tick()
	result.Live = len(client.Elements())
	return result, nil
}

func writeReplayText(w io.Writer, result ReplayResult) {
	for _, ev := range result.Events {
		fmt.Fprintf(w, "%8.3fs %-6s element %d %q author=%d fields=%d\n", ev.Time, ev.Kind, ev.ID, ev.Name, ev.AuthorID, ev.Fields)
	}
	fmt.Fprintf(w, "%d entries over %.3fs in %d ticks, %d elements live at the end\n", result.Entries, result.Duration, result.Ticks, result.Live)
}
