package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/allocation-engine/core"
	"github.com/signalsfoundry/allocation-engine/internal/config"
	"github.com/signalsfoundry/allocation-engine/internal/engine"
	"github.com/signalsfoundry/allocation-engine/internal/logging"
	"github.com/signalsfoundry/allocation-engine/kb"
)

// errFindings is returned by validate --fail-on-error when any opportunity
// has an error-severity finding.
var errFindings = errors.New("inventory has error findings")

type app struct {
	cfgFile       string
	inventoryPath string
	compact       bool

	eng *engine.Service
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "allocctl",
		Short: "Validate collection opportunity allocations",
		Long: `allocctl loads an inventory of ground sites, satellites and collection
opportunities and reports capacity, conflicts, health and optimization
suggestions as JSON.

Examples:
  allocctl validate --inventory inventory.yaml
  allocctl report opp-001 --inventory inventory.yaml --config allocation.yaml
  allocctl optimize opp-002 --inventory inventory.yaml`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.eng != nil {
				a.eng.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file with thresholds, health weights and optimizer settings")
	root.PersistentFlags().StringVarP(&a.inventoryPath, "inventory", "i", "", "inventory document (YAML or JSON)")
	root.PersistentFlags().BoolVar(&a.compact, "compact", false, "print single-line JSON")

	root.AddCommand(
		a.validateCmd(),
		a.conflictsCmd(),
		a.reportCmd(),
		a.optimizeCmd(),
		a.healthCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.inventoryPath == "" {
		a.inventoryPath = cfg.Inventory.Path
	}
	if a.inventoryPath == "" {
		return fmt.Errorf("--inventory is required")
	}

	f, err := os.Open(a.inventoryPath)
	if err != nil {
		return fmt.Errorf("open inventory: %w", err)
	}
	defer f.Close()

	inv := kb.NewKnowledgeBase()
	if _, err := kb.LoadInventory(inv, f); err != nil {
		return fmt.Errorf("load inventory %s: %w", a.inventoryPath, err)
	}

	logCfg := cfg.LoggerConfig()
	logCfg.Output = cmd.ErrOrStderr()
	eng, err := engine.NewService(inv, cfg.EngineOptions(nil), logging.New(logCfg), nil)
	if err != nil {
		return err
	}
	a.eng = eng
	return nil
}

func (a *app) validateCmd() *cobra.Command {
	var failOnError bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate every opportunity and merge cross-opportunity conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := a.eng.BatchValidate(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.print(cmd, result); err != nil {
				return err
			}
			if failOnError {
				for _, findings := range result {
					if core.HasErrors(findings) {
						return errFindings
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "exit non-zero when any finding is an error")
	return cmd
}

func (a *app) conflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List site overlaps and satellite oversubscription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conflicts, err := a.eng.Conflicts(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(cmd, conflicts)
		},
	}
}

func (a *app) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <opportunity-id>",
		Short: "Print the full report for one opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.eng.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(cmd, report)
		},
	}
}

func (a *app) optimizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "optimize <opportunity-id>",
		Short: "Suggest alternative site sets for one opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.eng.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(cmd, report.Optimizations)
		},
	}
}

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health <opportunity-id>",
		Short: "Score the health of one opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.eng.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(cmd, report.Health)
		},
	}
}

func (a *app) print(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if !a.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
