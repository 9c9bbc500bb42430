package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/views"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"github.com/synaptica-ai/hospital-analytics/pkg/importer"
	"github.com/synaptica-ai/hospital-analytics/pkg/intake"
	"github.com/synaptica-ai/hospital-analytics/pkg/store"
	"github.com/synaptica-ai/hospital-analytics/pkg/store/backend"
)

var (
	importFile   string
	importCohort string

	importCmd = &cobra.Command{
		Use:   "import",
		Short: "Load CSV exports into the record store",
	}
	importFeedbackCmd = &cobra.Command{
		Use:   "feedback",
		Short: "Import patient feedback (Patient_Name,Age,Sex,Ethnicity,Category,Subcategory[,timestamp,patient_id])",
		RunE:  runImportFeedback,
	}
	importEventsCmd = &cobra.Command{
		Use:   "events",
		Short: "Import clinical events (event_id,patient_id,event_type,timestamp[,admitted_for])",
		RunE:  runImportEvents,
	}
	importVisitsCmd = &cobra.Command{
		Use:   "visits",
		Short: "Replace a cohort's monthly visit series (Month,Visits_Before,Visits_After)",
		RunE:  runImportVisits,
	}
	importOutcomesCmd = &cobra.Command{
		Use:   "outcomes",
		Short: "Replace the before/after outcome table (Subcategory,Ethnicity,Before,After)",
		RunE:  runImportOutcomes,
	}
	importSentimentsCmd = &cobra.Command{
		Use:   "sentiments",
		Short: "Import scored feedback (sentiment,rating,polarity,timestamp)",
		RunE:  runImportSentiments,
	}
)

func init() {
	importCmd.PersistentFlags().StringVarP(&importFile, "file", "f", "", "CSV file to import")
	_ = importCmd.MarkPersistentFlagRequired("file")
	importVisitsCmd.Flags().StringVar(&importCohort, "cohort", "", "cohort the series belongs to (elderly|pregnant)")
	_ = importVisitsCmd.MarkFlagRequired("cohort")

	importCmd.AddCommand(importFeedbackCmd, importEventsCmd, importVisitsCmd, importOutcomesCmd, importSentimentsCmd)
}

// withImport opens the CSV and the store, runs load and closes both.
func withImport(cmd *cobra.Command, load func(f *os.File, st backend.Store) (int, error)) error {
	f, err := os.Open(filepath.Clean(importFile))
	if err != nil {
		return fmt.Errorf("opening %s: %w", importFile, err)
	}
	defer f.Close()

	st, _, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close(cmd.Context())

	n, err := load(f, st)
	if err != nil {
		return err
	}
	logger.Log.WithFields(map[string]interface{}{
		"file": importFile,
		"rows": n,
		"kind": cmd.Name(),
	}).Info("Import complete")
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s\n", n, cmd.Name())
	return nil
}

func runImportFeedback(cmd *cobra.Command, _ []string) error {
	return withImport(cmd, func(f *os.File, st backend.Store) (int, error) {
		validator := intake.NewValidator(views.NewService(st).Options())
		records, err := importer.ReadFeedback(f, validator, time.Now())
		if err != nil {
			return 0, err
		}
		for i := range records {
			if err := st.InsertFeedback(cmd.Context(), &records[i]); err != nil {
				return i, fmt.Errorf("persisting feedback: %w", err)
			}
		}
		return len(records), nil
	})
}

func runImportEvents(cmd *cobra.Command, _ []string) error {
	return withImport(cmd, func(f *os.File, st backend.Store) (int, error) {
		events, err := importer.ReadEvents(f)
		if err != nil {
			return 0, err
		}
		if err := st.InsertEvents(cmd.Context(), events); err != nil {
			return 0, fmt.Errorf("persisting events: %w", err)
		}
		return len(events), nil
	})
}

func runImportVisits(cmd *cobra.Command, _ []string) error {
	if !store.ValidCohort(importCohort) {
		return fmt.Errorf("unknown cohort %q (want %s or %s)", importCohort, models.CohortElderly, models.CohortPregnant)
	}
	return withImport(cmd, func(f *os.File, st backend.Store) (int, error) {
		points, err := importer.ReadVisits(f, importCohort)
		if err != nil {
			return 0, err
		}
		if err := st.ReplaceVisitSeries(cmd.Context(), importCohort, points); err != nil {
			return 0, fmt.Errorf("persisting visit series: %w", err)
		}
		return len(points), nil
	})
}

func runImportOutcomes(cmd *cobra.Command, _ []string) error {
	return withImport(cmd, func(f *os.File, st backend.Store) (int, error) {
		rows, err := importer.ReadOutcomes(f)
		if err != nil {
			return 0, err
		}
		if err := st.ReplaceOutcomeComparisons(cmd.Context(), rows); err != nil {
			return 0, fmt.Errorf("persisting outcomes: %w", err)
		}
		return len(rows), nil
	})
}

func runImportSentiments(cmd *cobra.Command, _ []string) error {
	return withImport(cmd, func(f *os.File, st backend.Store) (int, error) {
		records, err := importer.ReadSentiments(f)
		if err != nil {
			return 0, err
		}
		if err := st.InsertSentiments(cmd.Context(), records); err != nil {
			return 0, fmt.Errorf("persisting sentiments: %w", err)
		}
		return len(records), nil
	})
}
