package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cunicopia-dev/local-tts-studio/internal/cli/scheme/colours"
	"github.com/cunicopia-dev/local-tts-studio/internal/config"
	"github.com/cunicopia-dev/local-tts-studio/internal/studio"
	"github.com/cunicopia-dev/local-tts-studio/internal/synth"
)

func main() {
	if err := godotenv.Load(); err == nil {
		logrus.Debug("loaded environment from .env")
	}
	config.SetDefaults()

	// One cancellation signal per run: Ctrl+C cancels the session, the
	// pipeline drains, and partial output is still offered.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := &cobra.Command{
		Use:   "ttsstudio",
		Short: "🎙️ Turn documents into spoken audio",
		Long: `
┌──────────────────────────────────────────┐
│  🎙️ Local TTS Studio                     │
│  Documents in, spoken audio out.         │
│  Streams playback while it synthesizes.  │
└──────────────────────────────────────────┘
`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(
		newConvertCmd(ctx),
		newSpeakCmd(ctx),
		newVoicesCmd(ctx),
		newEnginesCmd(),
		newSettingsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newConvertCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "convert <input> <output>",
		Short:   "🔁 Convert a text file to an audio file",
		Long:    "Synthesize a document chunk by chunk and assemble the result into a WAV or MP3 file.",
		Args:    cobra.ExactArgs(2),
		PreRunE: bindSessionFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			play, _ := cmd.Flags().GetBool("play")
			return runSession(func(s *studio.Studio) (*studio.RunSummary, error) {
				return s.Convert(ctx, args[0], args[1], play)
			})
		},
	}
	cmd.Flags().StringP("voice", "v", "", "WAV file with a voice sample for cloning")
	cmd.Flags().IntP("chunk-size", "c", 0, "Maximum characters per chunk")
	cmd.Flags().Bool("gpu", false, "Ask the synthesis backend for GPU acceleration")
	cmd.Flags().String("engine", "", "Synthesis engine (auto, mock, espeak, exec, googleclassic)")
	cmd.Flags().StringP("format", "f", "", "Output format (wav or mp3)")
	cmd.Flags().Bool("play", false, "Play audio live while converting")
	return cmd
}

func newSpeakCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "speak <input>",
		Short:   "🔊 Read a text file aloud",
		Long:    "Stream a document to the audio device as it is synthesized, with pause and stop controls.",
		Args:    cobra.ExactArgs(1),
		PreRunE: bindSessionFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(func(s *studio.Studio) (*studio.RunSummary, error) {
				return s.Speak(ctx, args[0])
			})
		},
	}
	cmd.Flags().StringP("voice", "v", "", "WAV file with a voice sample for cloning")
	cmd.Flags().IntP("chunk-size", "c", 0, "Maximum characters per chunk")
	cmd.Flags().Bool("gpu", false, "Ask the synthesis backend for GPU acceleration")
	cmd.Flags().String("engine", "", "Synthesis engine (auto, mock, espeak, exec, googleclassic)")
	return cmd
}

func newVoicesCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "voices",
		Short:   "🗣️ List the configured engine's voices",
		Args:    cobra.NoArgs,
		PreRunE: bindSessionFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				colours.Error.Printf("❌ %v\n", err)
				return err
			}
			names, err := studio.New(settings).Voices(ctx)
			if errors.Is(err, synth.ErrNoVoiceListing) {
				colours.Info.Printf("ℹ️  %v\n", err)
				return nil
			}
			if err != nil {
				colours.Error.Printf("❌ %v\n", err)
				return err
			}
			colours.Title.Println("Available voices:")
			for _, n := range names {
				fmt.Printf("  • %s\n", n)
			}
			return nil
		},
	}
	cmd.Flags().String("engine", "", "Synthesis engine (auto, mock, espeak, exec, googleclassic)")
	return cmd
}

func newEnginesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "🧩 List usable synthesis engines",
		Run: func(cmd *cobra.Command, args []string) {
			settings, err := config.Load()
			if err != nil {
				colours.Error.Printf("❌ %v\n", err)
				return
			}
			colours.Title.Println("Available synthesis engines:")
			for _, e := range studio.New(settings).Engines() {
				fmt.Printf("  • %s\n", e)
			}
		},
	}
}

func newSettingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "⚙️ Show the effective configuration",
		Run: func(cmd *cobra.Command, args []string) {
			settings, err := config.Load()
			if err != nil {
				colours.Error.Printf("❌ %v\n", err)
				return
			}
			colours.Title.Println("⚙️ Effective settings")
			fmt.Printf("  engine:        %s\n", settings.Engine)
			fmt.Printf("  chunk size:    %d\n", settings.ChunkSize)
			fmt.Printf("  buffer:        %d segments\n", settings.BufferCapacity)
			fmt.Printf("  format:        %s\n", settings.Format)
			fmt.Printf("  voice sample:  %s\n", orNone(settings.VoicePath))
			fmt.Printf("  cache:         %v (%s)\n", settings.CacheEnabled, settings.CacheDir)
		},
	}
}

// bindSessionFlags routes one command's flags into the viper keys the
// config file uses, so flags win over file values. It runs as PreRunE of
// the executing command: binding at construction time would let a sibling
// command's identically-named flags shadow these, since viper keeps only
// the last flag bound per key.
func bindSessionFlags(cmd *cobra.Command, _ []string) error {
	keys := map[string]string{
		"voice":      "tts.voice_sample",
		"chunk-size": "text.chunk_size",
		"gpu":        "tts.use_gpu",
		"engine":     "tts.engine",
		"format":     "export.format",
	}
	for flag, key := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func runSession(run func(*studio.Studio) (*studio.RunSummary, error)) error {
	settings, err := config.Load()
	if err != nil {
		colours.Error.Printf("❌ %v\n", err)
		return err
	}
	if settings.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	summary, err := run(studio.New(settings))
	if err != nil {
		colours.Error.Println("❌ synthesis aborted")
		colours.Error.Printf("   %v\n", err)
		if summary != nil && summary.Export != nil {
			colours.Warning.Printf("⚠️  partial audio kept at %s (%d segments)\n",
				summary.Export.Path, summary.Export.Segments)
		}
		return err
	}

	if summary.Simulated {
		colours.Info.Println("ℹ️  no audio device found, playback was simulated")
	}
	if summary.Cancelled {
		colours.Warning.Printf("⏹️  cancelled after chunk %d of %d\n", partialCount(summary), summary.Chunks)
	}
	if summary.Warnings > 0 {
		colours.Warning.Printf("⚠️  %d of %d chunks failed, audio may have gaps\n", summary.Warnings, summary.Chunks)
	}
	if summary.Export != nil {
		label := "✅ saved"
		if summary.Export.Partial {
			label = "✅ saved partial result"
		}
		colours.Success.Printf("%s %s (%s, %d segments)\n",
			label, summary.Export.Path, summary.Export.Duration.Round(time.Millisecond), summary.Export.Segments)
	}
	if summary.Warnings == 0 && !summary.Cancelled && summary.Export == nil {
		colours.Success.Println("✅ done")
	}
	return nil
}

func partialCount(summary *studio.RunSummary) int {
	if summary.Export != nil {
		return summary.Export.Segments
	}
	return 0
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// Configuration management with viper
func init() {
	viper.SetConfigName("ttsstudio")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.ttsstudio")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("TTSSTUDIO")
	viper.AutomaticEnv()
	viper.ReadInConfig()
}
