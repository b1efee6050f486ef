package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"billing-trust/core/trust"
	"billing-trust/core/views"
)

var (
	analyzeProvider string
	analyzeService  string
	analyzeRegion   string
	analyzeStart    string
	analyzeEnd      string
	analyzeUploads  []string
	analyzeViews    bool
)

// analyzeCmd runs one full analysis and prints it as JSON.
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a billing scope and print its trust report",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, store, err := openEngine()
		if err != nil {
			return err
		}
		defer store.Close()

		scope := trust.Scope{
			Provider:  analyzeProvider,
			Service:   analyzeService,
			Region:    analyzeRegion,
			StartDate: analyzeStart,
			EndDate:   analyzeEnd,
			UploadIDs: analyzeUploads,
		}

		analysis, err := engine.Analyze(cmd.Context(), scope)
		if err != nil {
			return err
		}

		out := any(analysis)
		if analyzeViews {
			out, err = allViews(cmd, engine, scope)
			if err != nil {
				return err
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// allViews resolves the eight read models concurrently. Each call hits
// the snapshot cache after the first miss, so the fan-out is cheap.
func allViews(cmd *cobra.Command, engine *trust.Engine, scope trust.Scope) (map[string]any, error) {
	adapters := map[string]func(*trust.Analysis) any{
		"banner":         func(a *trust.Analysis) any { return views.Banner(a) },
		"freshness":      func(a *trust.Analysis) any { return views.Freshness(a) },
		"coverage_gates": func(a *trust.Analysis) any { return views.CoverageGates(a) },
		"tag_compliance": func(a *trust.Analysis) any { return views.TagCompliance(a) },
		"ownership":      func(a *trust.Analysis) any { return views.Ownership(a) },
		"cost_basis":     func(a *trust.Analysis) any { return views.CostBasis(a) },
		"denominators":   func(a *trust.Analysis) any { return views.Denominators(a) },
		"violations":     func(a *trust.Analysis) any { return views.Violations(a) },
	}

	var mu sync.Mutex
	out := make(map[string]any, len(adapters))

	g, ctx := errgroup.WithContext(cmd.Context())
	for name, adapt := range adapters {
		g.Go(func() error {
			analysis, err := engine.Analyze(ctx, scope)
			if err != nil {
				return fmt.Errorf("%s view: %w", name, err)
			}
			mu.Lock()
			out[name] = adapt(analysis)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeProvider, "provider", "", "cloud provider filter")
	analyzeCmd.Flags().StringVar(&analyzeService, "service", "", "service name filter")
	analyzeCmd.Flags().StringVar(&analyzeRegion, "region", "", "region name filter")
	analyzeCmd.Flags().StringVar(&analyzeStart, "start", "", "start date (YYYY-MM-DD)")
	analyzeCmd.Flags().StringVar(&analyzeEnd, "end", "", "end date (YYYY-MM-DD)")
	analyzeCmd.Flags().StringSliceVar(&analyzeUploads, "uploads", nil, "upload IDs to scope the analysis to")
	analyzeCmd.Flags().BoolVar(&analyzeViews, "views", false, "print the eight read views instead of the raw analysis")
}
