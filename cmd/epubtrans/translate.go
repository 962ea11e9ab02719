package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/simp-lee/epubtrans/internal/config"
	"github.com/simp-lee/epubtrans/internal/progress"
	"github.com/simp-lee/epubtrans/internal/transform"
)

var (
	translateSkipCheck bool
	translateModel     string
)

var translateCmd = &cobra.Command{
	Use:   "translate [workdir]",
	Short: "Translate the pending segments of an extraction",
	Long: `Translate sends every segment that has no translation yet to the configured
OpenAI-compatible endpoint. Results are stored as they arrive, so an
interrupted run continues where it stopped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.WorkDir
		if len(args) == 1 {
			dir = args[0]
		}
		return runTranslate(cmd, dir)
	},
}

func init() {
	translateCmd.Flags().BoolVar(&translateSkipCheck, "skip-check", false, "do not check that the endpoint serves the model")
	translateCmd.Flags().StringVar(&translateModel, "model", "", "model override")
}

func runTranslate(cmd *cobra.Command, dir string) error {
	idx, err := loadIndex(dir)
	if err != nil {
		return err
	}

	store, err := progress.Open(filepath.Join(dir, progressDir), log)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.BindRun(idx.RunID); err != nil {
		return fmt.Errorf("%w (re-extract into a fresh directory or remove %s)", err, progressDir)
	}

	tc := cfg.Transform
	if translateModel != "" {
		tc.Model = translateModel
	}
	client := transform.NewOpenAIClient(transform.OpenAIConfig{
		BaseURL:     tc.BaseURL,
		APIKey:      cfg.APIKey(),
		Model:       tc.Model,
		Temperature: tc.Temperature,
		Timeout:     tc.Timeout,
	})
	if !translateSkipCheck {
		if err := client.HealthCheck(cmd.Context()); err != nil {
			return fmt.Errorf("endpoint %s: %w", tc.BaseURL, err)
		}
	}
	if !transform.ValidGenre(tc.Genre) {
		log.WithField("genre", tc.Genre).Warn("unknown genre, using general guidance")
	}

	driver := transform.NewDriver(client, store, log, transform.Options{
		Genre:             tc.Genre,
		TargetLanguage:    tc.TargetLanguage,
		Concurrency:       tc.Concurrency,
		RequestsPerSecond: tc.RequestsPerSecond,
		MaxRetries:        tc.MaxRetries,
		RetryDelay:        tc.RetryDelay,
		AbortOnFailure:    tc.OnFailure == config.OnFailureAbort,
	})
	st, runErr := driver.Run(cmd.Context(), idx)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Segments:    %d\n", st.Total)
	fmt.Fprintf(out, "Translated:  %d\n", st.Done)
	fmt.Fprintf(out, "Skipped:     %d (already translated)\n", st.Skipped)
	fmt.Fprintf(out, "Failed:      %d\n", st.Failed)
	if runErr != nil {
		return runErr
	}
	if st.Failed > 0 {
		fmt.Fprintln(out, "Run translate again to retry failed segments; build keeps their original text.")
	}
	return nil
}
