package ttn

import (
	"github.com/fumin/ttn/backend"
	"github.com/fumin/ttn/einsum"
	"github.com/pkg/errors"
)

// Run contracts the current node tensors with operators following the variant of mode.
// The i-th operator acts on the i-th site of the plan's bond.
// In ModeEnvironment the result has the shape of the target tensor, in ModeEnergy it is a scalar.
func (t *Tree) Run(p *Plan, operators []backend.Tensor, mode Mode) (backend.Tensor, error) {
	v := p.Energy
	if mode == ModeEnvironment {
		v = p.Environment
	}
	if len(operators) != len(v.Labels)-len(v.Slots) {
		return nil, errors.Errorf("%d operators for %d sites", len(operators), len(v.Labels)-len(v.Slots))
	}

	out, err := t.contract(v, operators, mode.String())
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return out, nil
}

// RunEnergy returns the expectation value of operators on the plan's bond.
func (t *Tree) RunEnergy(p *Plan, operators []backend.Tensor) (float64, error) {
	out, err := t.Run(p, operators, ModeEnergy)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return backend.Scalar(t.Backend, out), nil
}

func (t *Tree) contract(v Variant, operators []backend.Tensor, mode string) (backend.Tensor, error) {
	tensors := make([]backend.Tensor, 0, len(v.Labels))
	for _, id := range v.Slots {
		tensors = append(tensors, t.Nodes[id].Tensor)
	}
	tensors = append(tensors, operators...)
	out, err := einsum.Contract(t.Backend, tensors, v.Labels, v.Open, v.Path)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	contractionsTotal.WithLabelValues(mode).Inc()
	return out, nil
}
