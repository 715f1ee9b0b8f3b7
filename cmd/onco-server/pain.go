package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/onco/onco/internal/domain/pain"
	"github.com/onco/onco/internal/painclient"
	"github.com/onco/onco/internal/platform/debounce"
)

const remoteTimeout = 15 * time.Second

// regimenFile is the YAML layout read by the pain commands:
//
//	patient_id: 5b0c...        # optional, needs --remote
//	patient:
//	  age: 72
//	  sleep_apnea: true
//	medications:
//	  - name: oxycodone
//	    route: oral
//	    dose: 10
//	    per_day: 4
type regimenFile struct {
	PatientID   string                 `yaml:"patient_id"`
	Patient     *pain.PatientContext   `yaml:"patient"`
	Medications []pain.MedicationEntry `yaml:"medications"`
}

func parseRegimen(data []byte) (*regimenFile, error) {
	var reg regimenFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&reg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse regimen: %w", err)
	}
	if len(reg.Medications) > pain.MaxMedications {
		return nil, fmt.Errorf("at most %d medications are allowed, got %d", pain.MaxMedications, len(reg.Medications))
	}
	return &reg, nil
}

func loadRegimen(path string) (*regimenFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseRegimen(data)
}

func (r *regimenFile) safetyCheckBody() (pain.SafetyCheckBody, error) {
	body := pain.SafetyCheckBody{Medications: r.Medications, Patient: r.Patient}
	if r.PatientID != "" {
		id, err := uuid.Parse(r.PatientID)
		if err != nil {
			return body, fmt.Errorf("invalid patient_id: %w", err)
		}
		body.PatientID = &id
	}
	return body, nil
}

type painFlags struct {
	file   string
	remote string
	token  string
	clinic string
	asJSON bool
}

func (f *painFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Regimen YAML file")
	cmd.Flags().StringVar(&f.remote, "remote", "", "Server base URL; checks run in-process when empty")
	cmd.Flags().StringVar(&f.token, "token", os.Getenv("ONCO_TOKEN"), "Bearer token for --remote")
	cmd.Flags().StringVar(&f.clinic, "clinic", "", "Clinic id sent with --remote requests")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print the raw JSON response")
	_ = cmd.MarkFlagRequired("file")
}

func (f *painFlags) client() (*painclient.Client, error) {
	return painclient.New(f.remote, f.token, f.clinic, remoteTimeout)
}

// checker returns the remote client when --remote is set, otherwise an
// in-process service with no patient store.
func (f *painFlags) checker(logger zerolog.Logger) (painclient.Checker, error) {
	if f.remote != "" {
		return f.client()
	}
	svc := pain.NewService(pain.NewMemoryAssessmentRepo(), nil, 0, logger)
	return painclient.LocalChecker{Service: svc}, nil
}

func cliLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func painCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pain",
		Short: "Opioid MME and safety checks from a regimen file",
	}
	cmd.AddCommand(painMMECmd())
	cmd.AddCommand(painCheckCmd())
	cmd.AddCommand(painWatchCmd())
	return cmd
}

func painMMECmd() *cobra.Command {
	var flags painFlags
	cmd := &cobra.Command{
		Use:   "mme",
		Short: "Print the daily morphine milligram equivalents of a regimen",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegimen(flags.file)
			if err != nil {
				return err
			}

			var resp *pain.MMEResponse
			if flags.remote != "" {
				client, err := flags.client()
				if err != nil {
					return err
				}
				resp, err = client.MME(cmd.Context(), pain.MMERequest{Medications: reg.Medications})
				if err != nil {
					return err
				}
			} else {
				resp = &pain.MMEResponse{MMEResult: pain.CalculateMME(reg.Medications)}
			}

			if flags.asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			printMME(cmd.OutOrStdout(), resp.MMEResult)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func painCheckCmd() *cobra.Command {
	var flags painFlags
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the interaction safety check on a regimen",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegimen(flags.file)
			if err != nil {
				return err
			}
			body, err := reg.safetyCheckBody()
			if err != nil {
				return err
			}
			checker, err := flags.checker(cliLogger())
			if err != nil {
				return err
			}
			resp, err := checker.SafetyCheck(cmd.Context(), body)
			if err != nil {
				return err
			}

			if flags.asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			printCheck(cmd.OutOrStdout(), resp.CheckResult)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func painWatchCmd() *cobra.Command {
	var (
		flags painFlags
		delay time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the safety check whenever the regimen file changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cliLogger()
			checker, err := flags.checker(logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w := painclient.NewWatcher(checker, delay, resultPrinter(cmd.OutOrStdout(), flags.asJSON, logger))
			defer w.Close()

			return watchRegimen(ctx, flags.file, w, logger)
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&delay, "delay", debounce.DefaultDelay, "Quiet period before an edited regimen is checked")
	return cmd
}

// resultPrinter writes each watcher result to out. Failed checks and failed
// writes are logged.
func resultPrinter(out io.Writer, asJSON bool, logger zerolog.Logger) func(painclient.Result) {
	return func(r painclient.Result) {
		if r.Err != nil {
			logger.Warn().Err(r.Err).Uint64("seq", r.Seq).Msg("safety check failed")
			return
		}
		if asJSON {
			if err := writeJSON(out, r.Response); err != nil {
				logger.Warn().Err(err).Uint64("seq", r.Seq).Msg("write check result")
			}
			return
		}
		fmt.Fprintf(out, "--- check #%d ---\n", r.Seq)
		printCheck(out, r.Response.CheckResult)
	}
}

// submitter is the part of painclient.Watcher the file loop needs.
type submitter interface {
	Submit(body pain.SafetyCheckBody)
}

// watchRegimen submits the regimen once, then again after every write to
// it, until ctx is done. The parent directory is watched so editors that
// save by rename are picked up.
func watchRegimen(ctx context.Context, path string, w submitter, logger zerolog.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	submit := func() {
		reg, err := loadRegimen(abs)
		if err != nil {
			logger.Warn().Err(err).Str("file", abs).Msg("regimen not readable")
			return
		}
		body, err := reg.safetyCheckBody()
		if err != nil {
			logger.Warn().Err(err).Str("file", abs).Msg("regimen rejected")
			return
		}
		w.Submit(body)
	}

	logger.Info().Str("file", abs).Msg("watching regimen")
	submit()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				submit()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("file watcher error")
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printMME(w io.Writer, res pain.MMEResult) {
	fmt.Fprintf(w, "Total MME/day: %.1f (%s)\n", res.TotalMMEPerDay, res.RiskTier)
	for _, d := range res.PerMedicationBreakdown {
		switch {
		case d.Excluded:
			fmt.Fprintf(w, "  %-24s %-12s excluded\n", d.Name, d.Route)
		case !d.Recognized:
			fmt.Fprintf(w, "  %-24s %-12s not recognized\n", d.Name, d.Route)
		default:
			fmt.Fprintf(w, "  %-24s %-12s %8.1f\n", d.Name, d.Route, d.MMEPerDay)
		}
		if d.Note != "" {
			fmt.Fprintf(w, "      %s\n", d.Note)
		}
	}
}

func printCheck(w io.Writer, res pain.CheckResult) {
	fmt.Fprintf(w, "Total MME/day: %.1f (%s)\n", res.TotalMMEPerDay, res.RiskTier)
	if len(res.Findings) == 0 {
		fmt.Fprintln(w, "No interaction findings.")
		return
	}
	fmt.Fprintf(w, "Findings: %d (highest %s)\n", len(res.Findings), res.HighestSeverity)
	for _, f := range res.Findings {
		fmt.Fprintf(w, "  [%s] %s\n", f.Severity, f.Issue)
		if f.Recommendation != "" {
			fmt.Fprintf(w, "      %s\n", f.Recommendation)
		}
	}
}
