package ttn

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/fumin/ttn/backend"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// StopReason tells why Optimize returned.
type StopReason int

const (
	// StopVariance means the energy window variance fell to the tolerance.
	StopVariance StopReason = iota
	// StopIterations means the iteration cap was exceeded.
	StopIterations
	// StopDelta means consecutive energies stopped changing.
	StopDelta
)

func (r StopReason) String() string {
	switch r {
	case StopVariance:
		return "variance"
	case StopIterations:
		return "iterations"
	case StopDelta:
		return "delta"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

type OptimizeOptions struct {
	probeLength   int
	varError      float64
	maxIterations int
	exact         bool
	deltaTol      float64
	workers       int
	logger        *logrus.Logger
}

func NewOptimizeOptions() OptimizeOptions {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	opt := OptimizeOptions{
		probeLength:   10,
		varError:      1e-10,
		maxIterations: 100,
		deltaTol:      1e-15,
		workers:       1,
		logger:        logger,
	}
	return opt
}

// ProbeLength sets the number of trailing sweep energies the variance is computed over.
func (opt OptimizeOptions) ProbeLength(n int) OptimizeOptions {
	opt.probeLength = n
	return opt
}

func (opt OptimizeOptions) VarError(v float64) OptimizeOptions {
	opt.varError = v
	return opt
}

// MaxIterations caps the sweeps after the probe window, zero means no cap.
func (opt OptimizeOptions) MaxIterations(n int) OptimizeOptions {
	opt.maxIterations = n
	return opt
}

// Exact restricts every sweep to the root.
func (opt OptimizeOptions) Exact(exact bool) OptimizeOptions {
	opt.exact = exact
	return opt
}

// DeltaTol stops a capped run once consecutive energies differ by less than tol in magnitude.
func (opt OptimizeOptions) DeltaTol(tol float64) OptimizeOptions {
	opt.deltaTol = tol
	return opt
}

// Workers sets how many environments of a node are contracted concurrently.
func (opt OptimizeOptions) Workers(n int) OptimizeOptions {
	opt.workers = n
	return opt
}

func (opt OptimizeOptions) Logger(logger *logrus.Logger) OptimizeOptions {
	opt.logger = logger
	return opt
}

type Result struct {
	Energy     float64
	Variance   float64
	Iterations int
	Stop       StopReason
}

// Converged reports whether the variance criterion was met.
func (r Result) Converged() bool { return r.Stop == StopVariance }

// UpdateNode replaces the tensor of id with the isometry minimizing the linearized energy.
// The environment sum E is reshaped to a matrix with the parent leg as rows,
// and the new tensor is -U V^T where E = U S V^T.
func (t *Tree) UpdateNode(id NodeID, workers int) error {
	start := time.Now()
	n := t.Nodes[id]
	jobs, err := t.jobs(id)
	if err != nil {
		return errors.Wrap(err, "")
	}

	b := t.Backend
	b.Zero(n.cache)
	switch {
	case workers <= 1:
		for i, j := range jobs {
			env, err := t.Run(j.plan, j.term.Operators, ModeEnvironment)
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("%d %v", i, j.plan.Bond))
			}
			b.AddScaled(n.cache, j.coeff, env)
		}
	default:
		envs := make([]backend.Tensor, len(jobs))
		var g errgroup.Group
		g.SetLimit(workers)
		for i, j := range jobs {
			g.Go(func() error {
				env, err := t.Run(j.plan, j.term.Operators, ModeEnvironment)
				if err != nil {
					return errors.Wrap(err, fmt.Sprintf("%d %v", i, j.plan.Bond))
				}
				envs[i] = env
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return errors.Wrap(err, "")
		}
		// Summing in job order keeps the result independent of scheduling.
		for i, j := range jobs {
			b.AddScaled(n.cache, j.coeff, envs[i])
		}
	}

	shape := n.Tensor.Shape()
	m := b.Reshape(n.cache, shape[parentAxis], backend.Size(shape)/shape[parentAxis])
	q, err := backend.Polar(b, m)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("%d", id))
	}
	q = b.Reshape(q, shape...)
	b.Scale(q, -1)
	n.Tensor = q
	b.Release()

	elapsed := time.Since(start)
	t.OptimizeTimes = append(t.OptimizeTimes, elapsed)
	optimizeTensorSeconds.Observe(elapsed.Seconds())
	return nil
}

// Sweep updates every spine node in order and returns the resulting energy.
func (t *Tree) Sweep(exact bool, workers int) (float64, error) {
	spine, err := t.Spine(exact)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	for _, id := range spine {
		if err := t.UpdateNode(id, workers); err != nil {
			return 0, errors.Wrap(err, fmt.Sprintf("%d", id))
		}
	}
	e, err := t.Energy(t.Root)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	sweepsTotal.Inc()
	return e, nil
}

// Optimize sweeps until the population variance of the last ProbeLength energies is at most VarError.
// A run with a positive MaxIterations also stops after MaxIterations+1 sweeps past the probe window,
// or when the magnitudes of the last two energies differ by less than DeltaTol.
func (t *Tree) Optimize(options ...OptimizeOptions) (Result, error) {
	opt := NewOptimizeOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	if opt.probeLength < 2 {
		return Result{}, errors.Errorf("probe length %d", opt.probeLength)
	}
	logger := opt.logger
	resumed := t.CurrentIteration

	window := make([]float64, 0, opt.probeLength)
	for i := range opt.probeLength {
		e, err := t.Sweep(opt.exact, opt.workers)
		if err != nil {
			return Result{}, errors.Wrap(err, fmt.Sprintf("probe %d", i))
		}
		window = append(window, e)
	}
	last := len(window) - 1

	res := Result{Energy: window[last], Variance: math.Inf(1), Stop: StopVariance}
	for res.Variance > opt.varError {
		copy(window, window[1:])
		e, err := t.Sweep(opt.exact, opt.workers)
		if err != nil {
			t.CurrentIteration = resumed + res.Iterations
			return Result{}, errors.Wrap(err, fmt.Sprintf("iteration %d", res.Iterations))
		}
		window[last] = e
		res.Energy = e
		res.Variance = stat.PopVariance(window, nil)
		t.EnergyPerSweep = append(t.EnergyPerSweep, e)
		delta := math.Abs(math.Abs(window[last]) - math.Abs(window[last-1]))
		res.Iterations++

		logger.WithFields(logrus.Fields{"iteration": res.Iterations, "energy": e, "variance": res.Variance, "delta": delta}).Debug("sweep")
		if opt.maxIterations > 0 {
			if res.Iterations > opt.maxIterations {
				res.Stop = StopIterations
				break
			}
			if delta < opt.deltaTol {
				res.Stop = StopDelta
				break
			}
		}
	}
	if res.Variance <= opt.varError {
		res.Stop = StopVariance
	}
	t.CurrentIteration = resumed + res.Iterations

	logger.WithFields(logrus.Fields{"energy": res.Energy, "variance": res.Variance, "iterations": res.Iterations, "stop": res.Stop}).Info("optimized")
	return res, nil
}
