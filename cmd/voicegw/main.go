package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chriscow/voicegw/internal/client"
	"github.com/chriscow/voicegw/internal/config"
	"github.com/chriscow/voicegw/internal/gateway"
	"github.com/chriscow/voicegw/pkg/audio/wav"
	"github.com/chriscow/voicegw/pkg/metrics"
	"github.com/chriscow/voicegw/pkg/persona"
	"github.com/chriscow/voicegw/pkg/plugin"
	_ "github.com/chriscow/voicegw/pkg/plugin/all" // Register every provider
	"github.com/chriscow/voicegw/pkg/protocol"
	"github.com/chriscow/voicegw/pkg/router"
	"github.com/chriscow/voicegw/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "voicegw",
	Short: "voicegw - a real-time voice assistant gateway",
	Long: `voicegw accepts microphone audio over a WebSocket, transcribes it, and
answers each finished utterance with text and synthesized speech.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionInfo())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Listen = listen
		}

		logger := setupLogger(cfg.Log)
		if err := cfg.Validate(plugin.Default()); err != nil {
			return err
		}
		logger.Info("Starting gateway",
			slog.String("service", "voicegw"),
			slog.String("version", version.Version),
			slog.String("commit", version.GitCommit),
			slog.String("listen", cfg.Listen),
			slog.Any("providers", cfg.Providers))

		// Create context that cancels on interrupt
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		srv := gateway.NewServer(ctx, cfg, metrics.New("voicegw"), logger)
		if err := srv.Run(ctx); err != nil {
			logger.Error("Gateway failed", slog.String("error", err.Error()))
			return err
		}
		logger.Info("Gateway stopped")
		return nil
	},
}

var routeCmd = &cobra.Command{
	Use:   "route <text>",
	Short: "Show how an utterance would be routed",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("persona")
		if !persona.Known(id) {
			return fmt.Errorf("unknown persona %q (known: %s)", id, strings.Join(persona.IDs(), ", "))
		}
		text := strings.Join(args, " ")

		d := router.Route(text, persona.Lookup(id))
		out := map[string]string{"kind": d.Kind.String()}
		if d.Reply != "" {
			out["reply"] = d.Reply
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers [kind]",
	Short: "List registered providers",
	Long: `List all registered providers or providers of a specific kind.
Available kinds: stt, llm, tts, search, news`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := ""
		if len(args) > 0 {
			kind = args[0]
		}

		plugins := plugin.List(kind)
		w := cmd.OutOrStdout()
		if len(plugins) == 0 {
			if kind == "" {
				fmt.Fprintln(w, "No providers registered")
			} else {
				fmt.Fprintf(w, "No providers registered for kind: %s\n", kind)
			}
			return nil
		}

		fmt.Fprintf(w, "%-8s %-12s %-10s %s\n", "KIND", "NAME", "VERSION", "DESCRIPTION")
		fmt.Fprintln(w, "------------------------------------------------------------")
		for _, p := range plugins {
			v := p.Version
			if v == "" {
				v = "N/A"
			}
			description := p.Description
			if description == "" {
				description = "No description"
			}
			fmt.Fprintf(w, "%-8s %-12s %-10s %s\n", p.Kind, p.Name, v, description)
		}
		return nil
	},
}

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Stream a WAV file to a gateway and save the replies",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		file, _ := cmd.Flags().GetString("file")
		outDir, _ := cmd.Flags().GetString("out")
		personaID, _ := cmd.Flags().GetString("persona")
		keyPairs, _ := cmd.Flags().GetStringToString("key")
		linger, _ := cmd.Flags().GetDuration("linger")

		logger := setupLogger(config.LogConfig{
			Level:  os.Getenv("VOICEGW_LOG_LEVEL"),
			Format: "console",
		})

		if personaID != "" && !persona.Known(personaID) {
			logger.Warn("Unknown persona, the gateway will use its default",
				slog.String("persona", personaID),
				slog.Any("known", persona.IDs()))
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return runTalk(ctx, talkOptions{
			URL:     url,
			File:    file,
			OutDir:  outDir,
			Persona: personaID,
			Keys:    keyPairs,
			Linger:  linger,
		}, logger)
	},
}

type talkOptions struct {
	URL     string
	File    string
	OutDir  string
	Persona string
	Keys    map[string]string
	Linger  time.Duration
}

const talkChunk = 100 * time.Millisecond

func runTalk(ctx context.Context, opts talkOptions, logger *slog.Logger) error {
	r, err := wav.Open(opts.File)
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	if h.SampleRate != 16000 || h.NumChannels != 1 || h.BitsPerSample != 16 {
		logger.Warn("Gateway expects 16 kHz mono 16-bit PCM",
			slog.Int("sample_rate", int(h.SampleRate)),
			slog.Int("channels", int(h.NumChannels)),
			slog.Int("bits", int(h.BitsPerSample)))
	}
	chunks, err := r.ReadChunks(talkChunk)
	if err != nil {
		return err
	}
	if opts.OutDir != "" {
		if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	c := client.New(opts.URL, logger)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()

	if err := c.SendConfig(opts.Keys, opts.Persona); err != nil {
		return err
	}

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	readDone := make(chan error, 1)
	go func() { readDone <- printEvents(readCtx, c, opts.OutDir, logger) }()

	logger.Info("Streaming audio", slog.String("file", opts.File), slog.Int("chunks", len(chunks)))
	if err := c.StreamAudio(ctx, chunks, talkChunk); err != nil {
		return err
	}

	// Give the gateway time to answer the last utterance.
	select {
	case <-time.After(opts.Linger):
	case <-ctx.Done():
	case err := <-readDone:
		return err
	}
	stopReading()
	if err := <-readDone; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printEvents(ctx context.Context, c *client.Client, outDir string, logger *slog.Logger) error {
	clips := 0
	for {
		ev, err := c.ReadEvent(ctx)
		if err != nil {
			return err
		}
		switch ev.Type {
		case protocol.TypeFinal:
			fmt.Printf("you:       %s\n", ev.Text)
		case protocol.TypeAssistant:
			fmt.Printf("assistant: %s\n", ev.Text)
		case protocol.TypeLLMError:
			fmt.Printf("error:     %s\n", ev.Text)
		case protocol.TypeAudio:
			clip, err := ev.AudioBytes()
			if err != nil {
				logger.Warn("Bad audio payload", slog.String("error", err.Error()))
				continue
			}
			clips++
			if outDir == "" {
				continue
			}
			name := filepath.Join(outDir, fmt.Sprintf("reply-%03d.wav", clips))
			if err := os.WriteFile(name, clip, 0o644); err != nil {
				return fmt.Errorf("saving clip: %w", err)
			}
			logger.Debug("Saved clip", slog.String("file", name), slog.Int("bytes", len(clip)))
		}
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{}

	// Set log level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	// Choose handler based on format
	if f := strings.ToLower(cfg.Format); f == "console" || f == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		// Default to JSON
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML config file")
	serveCmd.Flags().String("listen", "", "Listen address (overrides config)")

	personas := strings.Join(persona.IDs(), ", ")
	routeCmd.Flags().String("persona", persona.DefaultID, "Persona used for quick replies ("+personas+")")

	talkCmd.Flags().String("url", "ws://localhost:8080/ws", "Gateway WebSocket URL")
	talkCmd.Flags().String("file", "", "Path to a 16 kHz mono WAV file")
	talkCmd.Flags().String("out", "", "Directory to save reply clips in")
	talkCmd.Flags().String("persona", "", "Persona to request ("+personas+")")
	talkCmd.Flags().StringToString("key", nil, "Provider key overrides, e.g. --key gemini=...")
	talkCmd.Flags().Duration("linger", 15*time.Second, "How long to wait for replies after the audio ends")
	talkCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(versionCmd, serveCmd, routeCmd, providersCmd, talkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
