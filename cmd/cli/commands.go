package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"cellscope/adapters/excel"
	"cellscope/adapters/httpapi"
	"cellscope/adapters/postgres"
	"cellscope/app"
	"cellscope/domain/core"
	"cellscope/domain/cycling"
	"cellscope/internal"
	"cellscope/internal/errors"
	"cellscope/internal/migration"
	"cellscope/internal/outlier"
	"cellscope/ports"

	"github.com/spf13/cobra"
)

func newCellCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "cell [cell-id]",
		Short: "Compute metrics and flags for one cell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := core.ParseCellID(args[0])
			if err != nil {
				return errors.InvalidInput(err.Error())
			}
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := rt.service(nil)
			if err != nil {
				return err
			}
			res, err := svc.AnalyzeCell(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, res)
			}
			printCell(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func newCohortCmd() *cobra.Command {
	var (
		experimentID string
		projectID    string
		statistical  bool
		method       string
		threshold    float64
		exclude      []string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "cohort",
		Short: "Analyse every cell of an experiment or project",
		Long: `Analyse a cohort of comparable cells. Metrics are computed per cell in
parallel, then outliers are filtered and cohort-relative flags are raised.

Example: cellscope cohort --experiment exp-42 --statistical --method zscore --threshold 2.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			var parseErr error
			svc, err := rt.service(func(s *outlier.Settings) {
				if cmd.Flags().Changed("statistical") {
					s.Statistical = statistical
				}
				if cmd.Flags().Changed("method") {
					m, err := outlier.ParseMethod(method)
					if err != nil {
						parseErr = err
						return
					}
					s.Method = m
					s.Threshold = m.DefaultThreshold()
				}
				if cmd.Flags().Changed("threshold") {
					s.Threshold = threshold
				}
				s.ManualExclusions = append(s.ManualExclusions, exclude...)
			})
			if err != nil {
				return err
			}
			if parseErr != nil {
				return errors.InvalidInput(parseErr.Error())
			}

			scope := ports.CohortScope{
				ProjectID:    core.ProjectID(projectID),
				ExperimentID: core.ExperimentID(experimentID),
			}
			res, err := svc.AnalyzeCohort(cmd.Context(), scope)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, res)
			}
			printCohort(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&experimentID, "experiment", "", "Experiment ID to analyse")
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID to analyse")
	cmd.Flags().BoolVar(&statistical, "statistical", false, "Enable the statistical outlier pass")
	cmd.Flags().StringVar(&method, "method", "iqr", "Statistical method: iqr|zscore")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "IQR multiplier or z-score threshold")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Cell IDs or names to exclude manually")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func newAnalyzeFileCmd() *cobra.Command {
	var (
		name            string
		projectType     string
		loading         float64
		activeMaterial  float64
		formationCycles int
		diameter        float64
		asJSON          bool
	)

	cmd := &cobra.Command{
		Use:   "analyze-file [path]",
		Short: "Analyse a single exported cycler file (.csv or .xlsx)",
		Long: `Analyse one cell's cycle data straight from a file, without a repository.
Column headers are matched against the usual cycler export spellings.

Example: cellscope analyze-file A1.csv --loading 12.1 --active-material 92 --project-type anode`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pt, err := cycling.ParseProjectType(projectType)
			if err != nil {
				return errors.InvalidInput(err.Error())
			}

			data, err := excel.NewDataReader(args[0]).ReadData()
			if err != nil {
				return errors.WorkbookError(args[0], err)
			}
			records, err := excel.DefaultWorkbookConfig(args[0]).Columns.Records(data.Table())
			if err != nil {
				return errors.WorkbookError(args[0], err)
			}

			if name == "" {
				base := filepath.Base(args[0])
				name = strings.TrimSuffix(base, filepath.Ext(base))
			}
			meta := cycling.CellMetadata{
				CellID:            core.CellID(name),
				CellName:          name,
				ProjectType:       pt,
				LoadingMg:         loading,
				ActiveMaterialPct: activeMaterial,
			}
			if cmd.Flags().Changed("formation-cycles") {
				meta.FormationCycles = cycling.Int(formationCycles)
			}
			if diameter > 0 {
				meta.DiscDiameterMm = cycling.Float(diameter)
			}

			svcConfig, err := serviceConfig(cfg)
			if err != nil {
				return err
			}
			svc := app.NewAnalysisService(nil, nil, nil, svcConfig)
			res, err := svc.AnalyzeData(cycling.CellData{Metadata: meta, Cycles: records})
			if err != nil {
				return errors.Wrapf(err, "file %s", args[0])
			}
			if asJSON {
				return printJSON(cmd, res)
			}
			printCell(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Cell name (defaults to the file name)")
	cmd.Flags().StringVar(&projectType, "project-type", "Full Cell", "Full Cell|Cathode|Anode")
	cmd.Flags().Float64Var(&loading, "loading", 0, "Electrode loading in mg")
	cmd.Flags().Float64Var(&activeMaterial, "active-material", 0, "Active material percentage")
	cmd.Flags().IntVar(&formationCycles, "formation-cycles", cycling.DefaultFormationCycles, "Formation cycles")
	cmd.Flags().Float64Var(&diameter, "disc-diameter", 0, "Electrode disc diameter in mm")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func newPorosityCmd() *cobra.Command {
	var (
		mass        float64
		diameter    float64
		thickness   float64
		formulation string
	)

	cmd := &cobra.Command{
		Use:   "porosity [cell-id]",
		Short: "Compute electrode porosity for a stored cell or raw measurements",
		Long: `Compute electrode porosity. With a cell ID the stored geometry is used;
otherwise pass the measurements as flags.

Example: cellscope porosity --mass 14.2 --diameter 15 --thickness 62 \
  --formulation '[{"component":"Graphite","dry_mass_fraction_pct":92},{"component":"Super P","dry_mass_fraction_pct":8}]'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				rt, err := openRuntime(cmd.Context())
				if err != nil {
					return err
				}
				defer rt.Close()
				svc, err := rt.service(nil)
				if err != nil {
					return err
				}
				res, err := svc.Porosity(cmd.Context(), core.CellID(args[0]))
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			}

			components, err := cycling.ParseFormulationJSON([]byte(formulation))
			if err != nil {
				return errors.InvalidInput(err.Error())
			}
			return printJSON(cmd, app.EvaluatePorosity(app.PorosityRequest{
				DiscMassMg:         mass,
				DiscDiameterMm:     diameter,
				PressedThicknessUm: thickness,
				Formulation:        components,
			}, nil))
		},
	}

	cmd.Flags().Float64Var(&mass, "mass", 0, "Disc mass in mg")
	cmd.Flags().Float64Var(&diameter, "diameter", 0, "Disc diameter in mm")
	cmd.Flags().Float64Var(&thickness, "thickness", 0, "Pressed thickness in µm")
	cmd.Flags().StringVar(&formulation, "formulation", "", "Formulation as a JSON list")
	return cmd
}

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			svc, err := rt.service(nil)
			if err != nil {
				return err
			}
			if port == "" {
				port = rt.config.Server.Port
			}
			return httpapi.NewServer(svc).Start(ctx, ":"+port)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (defaults to PORT)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := migration.NewRunner()
			if dryRun {
				for _, stmt := range runner.Statements() {
					fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(stmt)+";")
				}
				return nil
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := runner.Run(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %s\n", runner.Version())
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the schema statements without connecting")
	return cmd
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [workbook.xlsx]",
		Short: "Load every cell of a workbook into PostgreSQL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cells, err := excel.NewWorkbookRepository(excel.DefaultWorkbookConfig(args[0])).ListCells(cmd.Context())
			if err != nil {
				return err
			}
			db, err := connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := postgres.NewCellRepository(db)
			for _, c := range cells {
				if err := repo.SaveCell(cmd.Context(), c); err != nil {
					return errors.Wrapf(err, "cell %s", c.Metadata.CellName)
				}
			}
			internal.DefaultLogger.Info("imported %d cells from %s", len(cells), args[0])
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var experimentID, projectID string

	cmd := &cobra.Command{
		Use:   "export [workbook.xlsx]",
		Short: "Write cells from PostgreSQL to a workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := postgres.NewCellRepository(db)
			cells, err := loadScope(cmd.Context(), repo, ports.CohortScope{
				ProjectID:    core.ProjectID(projectID),
				ExperimentID: core.ExperimentID(experimentID),
			})
			if err != nil {
				return err
			}
			if err := excel.WriteWorkbook(args[0], cells); err != nil {
				return err
			}
			internal.DefaultLogger.Info("exported %d cells to %s", len(cells), args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&experimentID, "experiment", "", "Only export this experiment")
	cmd.Flags().StringVar(&projectID, "project", "", "Only export this project")
	return cmd
}

func loadScope(ctx context.Context, repo *postgres.CellRepository, scope ports.CohortScope) ([]cycling.CellData, error) {
	ids, err := repo.CohortCells(ctx, scope)
	if err != nil {
		return nil, err
	}
	cells := make([]cycling.CellData, 0, len(ids))
	for _, id := range ids {
		c, err := repo.LoadCell(ctx, id)
		if err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
