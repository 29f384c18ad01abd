// Package main provides the entry point for the lector CLI application.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/lectorapp/lector/audio"
	"github.com/lectorapp/lector/book"
	"github.com/lectorapp/lector/settings"
	"github.com/lectorapp/lector/speech"
	"github.com/lectorapp/lector/speech/edge"
	"github.com/lectorapp/lector/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile      string
	voice           string
	volume          float64
	exportDeck      string
	noSyncHighlight bool
	noTTS           bool
	listVoices      bool

	rootCmd = &cobra.Command{
		Use:   "lector BOOK.epub",
		Short: "Read narrated books in the terminal",
		Long: "\nOpen an EPUB and read along with its narration: synchronized\n" +
			"sentence highlighting, synthesized speech for silent books, and\n" +
			"one-key export of narration snippets to Anki.",
		SilenceErrors: false,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			if listVoices {
				return nil
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: execute,
	}
)

// envConfig is debugging configuration read from the environment.
type envConfig struct {
	Logfile string `env:"LECTOR_LOGFILE"`
	Debug   bool   `env:"LECTOR_DEBUG"`
}

func execute(cmd *cobra.Command, args []string) error {
	if listVoices {
		return printVoices(cmd)
	}

	store, err := settings.Load(configFile)
	if err != nil {
		return err
	}
	// Flags override the config file for this session only.
	if cmd.Flags().Changed("voice") {
		store.Set("tts.voice", voice)
	}
	if cmd.Flags().Changed("volume") {
		store.Set("volume", volume)
	}
	if cmd.Flags().Changed("export-deck") {
		store.Set("anki.deck", exportDeck)
	}
	if noSyncHighlight {
		store.Set("sync_highlight", false)
	}
	if noTTS {
		store.Set("tts.enabled", false)
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving %s: %w", args[0], err)
	}
	b, err := book.Open(path)
	if err != nil {
		return err
	}
	defer b.Close() //nolint:errcheck

	player, err := audio.NewPlayer(audio.DefaultPlayerConfig())
	if err != nil {
		return fmt.Errorf("opening audio device: %w", err)
	}
	defer player.Close() //nolint:errcheck

	var synth speech.Synthesizer
	if store.TTSEnabled() {
		synth = edge.New()
	}

	return ui.Run(ui.Config{
		Book:   b,
		BookID: path,
		Store:  store,
		Medium: player,
		Synth:  synth,
	})
}

// printVoices lists the synthesizer's voice catalog, one per line.
func printVoices(cmd *cobra.Command) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	voices, err := edge.New().Voices(ctx)
	if err != nil {
		return fmt.Errorf("listing voices: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, v := range voices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.ID, v.Name, v.Language, v.Gender)
	}
	return w.Flush()
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

// setupLog discards logs unless a logfile is requested; the alternate
// screen leaves nowhere for them to go.
func setupLog() (func() error, error) {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if cfg.Logfile == "" {
		log.SetOutput(io.Discard)
		return func() error { return nil }, nil
	}
	f, err := os.OpenFile(cfg.Logfile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	return f.Close, nil
}

func init() {
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is the platform config dir)")
	rootCmd.Flags().StringVar(&voice, "voice", "", "synthesis voice (e.g. en-US-AriaNeural)")
	rootCmd.Flags().Float64Var(&volume, "volume", 1.0, "playback volume (0.0 to 2.0)")
	rootCmd.Flags().StringVar(&exportDeck, "export-deck", "", "Anki deck for captured segments")
	rootCmd.Flags().BoolVar(&noSyncHighlight, "no-sync-highlight", false, "disable synchronized sentence highlighting")
	rootCmd.Flags().BoolVar(&noTTS, "no-tts", false, "disable synthesized speech for silent books")
	rootCmd.Flags().BoolVar(&listVoices, "list-voices", false, "list the available synthesis voices and exit")

	rootCmd.AddCommand(configCmd, manCmd)
}
