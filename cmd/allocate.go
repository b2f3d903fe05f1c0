package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kilianp07/peakguard/app"
	"github.com/kilianp07/peakguard/core/model"
	"github.com/kilianp07/peakguard/pkg/export"
)

var (
	requestPath  string
	outputFormat string
)

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Allocate power once for a request file and print the plan",
	RunE:  runAllocate,
}

func init() {
	allocateCmd.Flags().StringVarP(&requestPath, "file", "f", "-", "allocation request JSON, - for stdin")
	allocateCmd.Flags().StringVarP(&outputFormat, "output", "o", export.FormatJSON, "output format: json or csv")
	rootCmd.AddCommand(allocateCmd)
}

func runAllocate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var in io.Reader = cmd.InOrStdin()
	if requestPath != "-" {
		f, err := os.Open(requestPath)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		in = f
	}
	var req model.AllocationRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	plan, err := app.NewEngine(cfg).Allocate(context.Background(), req)
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		fields := make([]string, 0, len(verr.Fields))
		for f := range verr.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", f, verr.Fields[f])
		}
		return err
	}
	if err != nil {
		return err
	}
	return export.WritePlan(cmd.OutOrStdout(), outputFormat, plan)
}
