// Command run optimizes tree tensor networks for lattice spin models.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fumin/ttn"
	"github.com/fumin/ttn/backend"
	"github.com/fumin/ttn/backend/cdense"
	"github.com/fumin/ttn/backend/dense"
	"github.com/fumin/ttn/einsum"
	"github.com/fumin/ttn/exactdiag"
	"github.com/fumin/ttn/lattice"
	"github.com/fumin/ttn/model"
	"github.com/fumin/ttn/store"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	fnameSummary = "summary.yaml"
)

// Summary is written next to the stored network after a run.
type Summary struct {
	Config     Config        `yaml:"config"`
	Network    string        `yaml:"network"`
	Energy     float64       `yaml:"energy"`
	Variance   float64       `yaml:"variance"`
	Iterations int           `yaml:"iterations"`
	Stop       string        `yaml:"stop"`
	Elapsed    time.Duration `yaml:"elapsed"`
	Exact      *float64      `yaml:"exact,omitempty"`
}

func main() {
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	v := viper.New()
	var cfgPath string
	var cfg Config
	rootCmd := &cobra.Command{
		Use:           "run",
		Short:         "Tree tensor network ground state search",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = loadConfig(v, cfgPath)
			if err != nil {
				return errors.Wrap(err, "")
			}
			return nil
		},
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgPath, "config", "c", "", "YAML config file")
	flags.StringP("dir", "d", "runs", "run directory")
	flags.String("log-level", "info", "log level")
	flags.Float64("bond-dim", 8, "maximum bond dimension")
	flags.Bool("exact", false, "only update the root")
	for key, flag := range map[string]string{
		"run_dir":          "dir",
		"log_level":        "log-level",
		"network.bond_dim": "bond-dim",
		"optimize.exact":   "exact",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return errors.Wrap(err, key)
		}
	}

	optimizeCmd := &cobra.Command{
		Use:   "optimize",
		Short: "Optimize a network and store it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return optimize(cmd.Context(), cfg)
		},
	}
	exactCmd := &cobra.Command{
		Use:   "exact",
		Short: "Print the exact ground energy of a small lattice",
		RunE: func(cmd *cobra.Command, args []string) error {
			e0, err := exactEnergy(cfg)
			if err != nil {
				return errors.Wrap(err, "")
			}
			fmt.Printf("%d,%d,%s,%f\n", cfg.Lattice.Rows, cfg.Lattice.Cols, cfg.Model.Label(), e0)
			return nil
		},
	}
	rootCmd.AddCommand(optimizeCmd, exactCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func newLogger(level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.StampMicro})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	logger.SetLevel(lvl)
	return logger, nil
}

func newBackend(name string) (backend.Backend, error) {
	switch name {
	case "dense":
		return dense.New(), nil
	case "cdense":
		return cdense.New(), nil
	default:
		return nil, errors.Errorf("unknown backend %q", name)
	}
}

func optimize(ctx context.Context, cfg Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if cfg.Metrics != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.Metrics, mux); err != nil {
				logger.WithError(err).Error("metrics server")
			}
		}()
	}

	dims, err := backend.Dims(cfg.Network.BondDim)
	if err != nil {
		return errors.Wrap(err, "bond_dim")
	}
	b, err := newBackend(cfg.Network.Backend)
	if err != nil {
		return errors.Wrap(err, "")
	}
	grid := lattice.Rect(cfg.Lattice.Rows, cfg.Lattice.Cols)
	modelTerms, err := model.New(cfg.Model)
	if err != nil {
		return errors.Wrap(err, "")
	}

	hamiltonian := cfg.Model.Label()
	ctxLoad, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	planOpt := ttn.NewPlanOptions().Strategy(einsum.Strategy(cfg.Network.Strategy))
	tree, err := store.Load(ctxLoad, cfg.RunDir, hamiltonian, cfg.Network.Name, b, planOpt)
	switch {
	case err == nil:
		logger.WithFields(logrus.Fields{"name": tree.Name, "iteration": tree.CurrentIteration}).Info("resuming")
	case errors.Is(err, store.ErrFileNotFound) || errors.Is(err, store.ErrNetworkNotFound):
		rng := rand.New(rand.NewPCG(cfg.Network.Seed, cfg.Network.Seed))
		opt := ttn.NewBuildOptions().BondDim(dims[0]).SitesPerLeaf(cfg.Lattice.SitesPerLeaf).Cut(cfg.Network.Cut).Rand(rng).Name(cfg.Network.Name)
		if tree, err = ttn.Build(b, grid, opt); err != nil {
			return errors.Wrap(err, "")
		}
		terms, err := ttn.NewTerms(b, modelTerms)
		if err != nil {
			return errors.Wrap(err, "")
		}
		bonds, err := lattice.Bonds(grid, model.Classes(modelTerms)...)
		if err != nil {
			return errors.Wrap(err, "")
		}
		if err := tree.Setup(terms, bonds, planOpt); err != nil {
			return errors.Wrap(err, "")
		}
		logger.WithFields(logrus.Fields{"nodes": len(tree.Nodes), "bonds": len(bonds), "cut": tree.Cut}).Info("built")
	default:
		return errors.Wrap(err, "")
	}

	start := time.Now()
	opt := ttn.NewOptimizeOptions().
		ProbeLength(cfg.Optimize.ProbeLength).
		VarError(cfg.Optimize.VarError).
		MaxIterations(cfg.Optimize.MaxIterations).
		DeltaTol(cfg.Optimize.DeltaTol).
		Exact(cfg.Optimize.Exact).
		Workers(cfg.Optimize.Workers).
		Logger(logger)
	res, err := tree.Optimize(opt)
	if err != nil {
		return errors.Wrap(err, "")
	}

	ctxSave, cancelSave := context.WithTimeout(ctx, time.Minute)
	defer cancelSave()
	dbPath, err := store.Save(ctxSave, cfg.RunDir, hamiltonian, tree)
	if err != nil {
		return errors.Wrap(err, "")
	}

	summary := Summary{
		Config:     cfg,
		Network:    tree.Name,
		Energy:     res.Energy,
		Variance:   res.Variance,
		Iterations: res.Iterations,
		Stop:       res.Stop.String(),
		Elapsed:    time.Since(start),
	}
	if lattice.NumSites(grid) <= exactdiag.MaxSites {
		e0, err := exactEnergy(cfg)
		if err != nil {
			return errors.Wrap(err, "")
		}
		summary.Exact = &e0
	}
	if err := writeSummary(filepath.Join(filepath.Dir(dbPath), tree.Name+"_"+fnameSummary), summary); err != nil {
		return errors.Wrap(err, "")
	}

	fmt.Printf("rows,cols,model,bond_dim,energy,variance,iterations\n")
	fmt.Printf("%d,%d,%s,%d,%f,%g,%d\n", cfg.Lattice.Rows, cfg.Lattice.Cols, hamiltonian, dims[0], res.Energy, res.Variance, res.Iterations)
	return nil
}

func exactEnergy(cfg Config) (float64, error) {
	grid := lattice.Rect(cfg.Lattice.Rows, cfg.Lattice.Cols)
	terms, err := model.New(cfg.Model)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	bonds, err := lattice.Bonds(grid, model.Classes(terms)...)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	e0, err := exactdiag.GroundEnergy(lattice.NumSites(grid), terms, bonds)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return e0, nil
}

func writeSummary(fpath string, s Summary) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.WriteFile(fpath, b, 0644); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
