package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/clinica/clinica/internal/config"
	"github.com/clinica/clinica/internal/domain/scheduling"
	"github.com/clinica/clinica/internal/platform/clock"
	"github.com/clinica/clinica/internal/platform/db"
)

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Manage appointment slots",
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate open slots for a doctor from a weekly template file",
		Long: `Generate open slots for a doctor from a YAML weekly template:

  doctor_id: 7d1c8a52-5a3b-4a43-9f0e-1c2b3d4e5f60   # or --doctor
  slot_duration_minutes: 30                         # or --duration
  week:
    monday:    {attends: true, open: "09:00", close: "12:00"}
    wednesday: {attends: true, open: "14:00", close: "18:00"}

With --dry-run and no DATABASE_URL the slots are computed without
checking existing appointments.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tmplPath, _ := cmd.Flags().GetString("template")
			doctor, _ := cmd.Flags().GetString("doctor")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			duration, _ := cmd.Flags().GetInt("duration")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			tmpl, err := loadTemplate(tmplPath)
			if err != nil {
				return err
			}
			req, err := buildRequest(tmpl, doctor, from, to, duration)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runGenerate(cmd.Context(), cmd.OutOrStdout(), cfg, req, dryRun)
		},
	}
	generateCmd.Flags().String("template", "", "YAML weekly template file")
	generateCmd.Flags().String("doctor", "", "Doctor id (overrides doctor_id in the template)")
	generateCmd.Flags().String("from", "", "First date, YYYY-MM-DD")
	generateCmd.Flags().String("to", "", "Last date, YYYY-MM-DD (inclusive)")
	generateCmd.Flags().Int("duration", 0, "Slot length in minutes (overrides the template)")
	generateCmd.Flags().Bool("dry-run", false, "Print the slots without storing them")
	generateCmd.MarkFlagRequired("template")
	generateCmd.MarkFlagRequired("from")
	generateCmd.MarkFlagRequired("to")

	cmd.AddCommand(generateCmd)
	return cmd
}

// loadTemplate reads a weekly template file. Unknown keys are rejected.
func loadTemplate(path string) (scheduling.GenerationRequest, error) {
	var req scheduling.GenerationRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read template: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("parse template %s: %w", path, err)
	}
	return req, nil
}

// buildRequest fills the date range into tmpl and applies flag overrides.
func buildRequest(tmpl scheduling.GenerationRequest, doctor, from, to string, duration int) (scheduling.GenerationRequest, error) {
	req := tmpl
	if doctor != "" {
		id, err := uuid.Parse(doctor)
		if err != nil {
			return req, fmt.Errorf("invalid --doctor: %w", err)
		}
		req.DoctorID = id
	}
	var err error
	if req.DateFrom, err = scheduling.ParseDate(from); err != nil {
		return req, fmt.Errorf("--from: %w", err)
	}
	if req.DateTo, err = scheduling.ParseDate(to); err != nil {
		return req, fmt.Errorf("--to: %w", err)
	}
	if duration != 0 {
		req.SlotDurationMinutes = duration
	}
	return req, nil
}

func runGenerate(ctx context.Context, w io.Writer, cfg *config.Config, req scheduling.GenerationRequest, dryRun bool) error {
	if dryRun && cfg.DatabaseURL == "" {
		if err := cfg.ValidateTimezone(); err != nil {
			return err
		}
		loc, err := clock.LoadLocation(cfg.ClinicTimezone)
		if err != nil {
			return err
		}
		slots, err := scheduling.Generate(req, nil, clock.New(loc).Now())
		return reportGeneration(w, "preview", slots, 0, err)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg)
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc, cleanup, err := newService(ctx, cfg, logger, pool, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	if dryRun {
		slots, err := svc.PreviewSlots(ctx, req)
		return reportGeneration(w, "preview", slots, 0, err)
	}
	res, err := svc.GenerateSlots(ctx, req)
	if err != nil {
		return reportGeneration(w, "created", nil, 0, err)
	}
	return reportGeneration(w, "created", res.Created, res.Dropped, nil)
}

// reportGeneration prints the outcome of a run. Nothing to generate is not
// an error; validation failures are listed one per line.
func reportGeneration(w io.Writer, outcome string, slots []scheduling.Slot, dropped int, err error) error {
	var verrs scheduling.ValidationErrors
	switch {
	case errors.Is(err, scheduling.ErrNothingToGenerate):
		fmt.Fprintln(w, "Nothing to generate:", err)
		return nil
	case errors.As(err, &verrs):
		fmt.Fprintln(w, "Invalid request:")
		for _, v := range verrs {
			fmt.Fprintf(w, "  - %s\n", v.Error())
		}
		return fmt.Errorf("validation failed")
	case err != nil:
		return err
	}

	fmt.Fprintf(w, "%-20s %-20s %s\n", "START", "END", "STATUS")
	for _, s := range slots {
		fmt.Fprintf(w, "%-20s %-20s %s\n",
			s.StartTime.Format("2006-01-02 15:04"), s.EndTime.Format("2006-01-02 15:04"), s.Status)
	}
	if len(slots) == 0 && dropped > 0 {
		fmt.Fprintf(w, "Nothing to generate: %d slot(s) were taken concurrently.\n", dropped)
		return nil
	}
	fmt.Fprintf(w, "%s %d slot(s)", outcome, len(slots))
	if dropped > 0 {
		fmt.Fprintf(w, ", %d dropped", dropped)
	}
	fmt.Fprintln(w, ".")
	return nil
}
