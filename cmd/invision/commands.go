package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/invision-ai/invision/internal/analysis"
	"github.com/invision-ai/invision/internal/bus"
	"github.com/invision-ai/invision/internal/config"
	"github.com/invision-ai/invision/internal/metadata"
)

var (
	annotationFile string
	jsonOutput     bool
	catalogFile    string
)

var annotateCmd = &cobra.Command{
	Use:   "annotate --camera <id> <video>",
	Short: "Describe the activity in a video clip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			store, err := a.Store(ctx)
			if err != nil {
				return err
			}
			annotator, err := a.Annotator(ctx, store)
			if err != nil {
				return err
			}
			text, err := annotator.Annotate(ctx, cameraID, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		})
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze --camera <id> --user <id> [--file annotation.txt]",
	Short: "Check an existing annotation against the camera's rules",
	Long:  "Reads the annotation from --file, or from stdin when no file is given.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			annotation, err := readAnnotation(cmd.InOrStdin())
			if err != nil {
				return err
			}
			store, err := a.Store(ctx)
			if err != nil {
				return err
			}
			analyzer, err := a.Analyzer(store)
			if err != nil {
				return err
			}
			result, err := analyzer.Analyze(ctx, annotation, cameraID, userID)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run --camera <id> --user <id> <video>",
	Short: "Annotate a clip and report rule breaches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			store, err := a.Store(ctx)
			if err != nil {
				return err
			}
			annotator, err := a.Annotator(ctx, store)
			if err != nil {
				return err
			}
			analyzer, err := a.Analyzer(store)
			if err != nil {
				return err
			}

			annotation, err := annotator.Annotate(ctx, cameraID, args[0])
			if err != nil {
				return err
			}
			if !jsonOutput {
				fmt.Fprintf(cmd.OutOrStdout(), "Annotation:\n%s\n\n", annotation)
			}

			result, err := analyzer.Analyze(ctx, annotation, cameraID, userID)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		})
	},
}

var rulesCmd = &cobra.Command{
	Use:   "rules --camera <id> --user <id>",
	Short: "List the rules that apply to a camera",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			store, err := a.Store(ctx)
			if err != nil {
				return err
			}
			set, err := store.ApplicableRules(ctx, cameraID, userID)
			if err != nil {
				return err
			}
			return printRules(cmd.OutOrStdout(), set)
		})
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed --catalog <file>",
	Short: "Import a YAML catalog into the sqlite or postgres backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			cat, err := metadata.LoadCatalog(catalogFile)
			if err != nil {
				return err
			}
			importer, err := a.Importer(ctx)
			if err != nil {
				return err
			}
			if err := importer.ImportCatalog(ctx, cat); err != nil {
				return err
			}
			a.logger.Info("catalog imported",
				"backend", a.cfg.MetadataBackend(),
				"cameras", len(cat.Cameras),
			)
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print breach events published by a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if a.cfg.NATSURL() == "" {
				return fmt.Errorf("%s is not set", config.EnvNATSURL)
			}
			pub, err := bus.NewNATSPublisher(a.cfg.NATSURL(), a.cfg.NATSSubject())
			if err != nil {
				return err
			}
			defer pub.Close()

			out := cmd.OutOrStdout()
			sub, err := pub.Subscribe(func(evt bus.BreachEvent) {
				fmt.Fprintf(out, "%s camera=%s room=%q rule=%s job=%s: %s\n",
					evt.DetectedAt.Format(time.RFC3339), evt.CameraID, evt.Room,
					evt.RuleID, evt.JobID, evt.Description)
			}, func(err error) {
				a.logger.Warn("skipping breach event", "error", err)
			})
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()

			a.logger.Info("watching breach events", "subject", pub.Subject())
			<-ctx.Done()
			return nil
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	analyzeCmd.Flags().StringVarP(&annotationFile, "file", "f", "", "annotation text file (default stdin)")
	for _, c := range []*cobra.Command{analyzeCmd, runCmd, rulesCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "print JSON instead of text")
	}

	seedCmd.Flags().StringVar(&catalogFile, "catalog", "", "YAML catalog to import")
	_ = seedCmd.MarkFlagRequired("catalog")
}

func readAnnotation(stdin io.Reader) (string, error) {
	if annotationFile != "" {
		data, err := os.ReadFile(annotationFile)
		if err != nil {
			return "", fmt.Errorf("read annotation: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read annotation from stdin: %w", err)
	}
	return string(data), nil
}

func printRules(w io.Writer, set *metadata.RuleSet) error {
	if jsonOutput {
		return writeJSON(w, set)
	}
	_, err := fmt.Fprintf(w, "Room: %s\n%s\n", set.Room, analysis.RenderRules(set.Rules))
	return err
}

func printResult(w io.Writer, result *analysis.Result) error {
	if jsonOutput {
		return writeJSON(w, result)
	}

	fmt.Fprintf(w, "Reasoning:\n%s\n\n", result.Reasoning)
	if result.Diagnostic != nil {
		fmt.Fprintf(w, "Extraction reply could not be parsed: %v\n", result.Diagnostic.Err)
		return nil
	}
	if len(result.Reports) == 0 {
		fmt.Fprintln(w, "No breaches detected.")
		return nil
	}
	for _, r := range result.Reports {
		fmt.Fprintln(w, r.String())
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
