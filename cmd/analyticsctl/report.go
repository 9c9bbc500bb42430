package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/derive"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/views"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/config"
)

var (
	reportParams []string

	reportCmd = &cobra.Command{
		Use:   "report <name>",
		Short: "Compute a report and print it as JSON",
		Long:  "Compute a report and print it as JSON. Available reports: " + strings.Join(views.ReportNames(), ", "),
		Args:  cobra.ExactArgs(1),
		RunE:  runReport,
	}

	schemesCmd = &cobra.Command{
		Use:   "schemes",
		Short: "List the age bucket schemes",
		RunE:  runSchemes,
	}
)

func init() {
	reportCmd.Flags().StringArrayVarP(&reportParams, "param", "p", nil, "report parameter as key=value (repeatable)")
}

func parseParams(pairs []string) (views.Params, error) {
	params := views.Params{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("parameter %q is not key=value", pair)
		}
		params[strings.TrimSpace(key)] = value
	}
	return params, nil
}

func loadSchemes(cfg *config.Config) (*derive.Registry, error) {
	schemes, err := derive.LoadSchemes(cfg.BucketSchemeFile)
	if err != nil {
		return nil, fmt.Errorf("loading bucket schemes: %w", err)
	}
	return schemes, nil
}

func runReport(cmd *cobra.Command, args []string) error {
	params, err := parseParams(reportParams)
	if err != nil {
		return err
	}

	st, cfg, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close(cmd.Context())

	schemes, err := loadSchemes(cfg)
	if err != nil {
		return err
	}
	opts := []views.Option{views.WithSchemes(schemes)}
	if ref, err := views.ParseReferenceDate(cfg.DefaultReferenceDate); err == nil {
		opts = append(opts, views.WithDefaultReference(ref))
	}

	report, err := views.NewService(st, opts...).Run(cmd.Context(), args[0], params)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runSchemes(cmd *cobra.Command, _ []string) error {
	schemes, err := loadSchemes(config.Load())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, s := range schemes.All() {
		labels := make([]string, 0, len(s.Buckets))
		for _, b := range s.Buckets {
			label := b.Label
			if len(b.Aliases) > 0 {
				label += " (" + strings.Join(b.Aliases, ", ") + ")"
			}
			labels = append(labels, label)
		}
		fmt.Fprintf(out, "%-12s %s\n", s.Name, strings.Join(labels, " | "))
	}
	return nil
}
