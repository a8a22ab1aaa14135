package kernel

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/clusters/physics"
)

// Stats aggregates counts and energies over the whole world.
func (k *CPU) Stats() Stats {
	s := Stats{Timestep: k.timestep}
	var internal, linear, rotational []float64

	query := k.clusterFilter.Query()
	for query.Next() {
		_, vel, rot, cells, _ := query.Get()
		s.Clusters++
		s.Cells += cells.Count()
		s.Tokens += cells.NumTokens()

		var angularMass float64
		for i := range cells.Cells {
			angularMass += r2.Norm2(cells.Cells[i].Rel)
		}
		body := physics.Body{
			Mass:        float64(cells.Count()),
			AngularMass: angularMass,
			Vel:         vel.Vec(),
			AngularVel:  rot.AngularVel,
		}
		internal = append(internal, cells.Energy())
		linear = append(linear, body.LinearKineticEnergy())
		rotational = append(rotational, body.RotationalKineticEnergy())
	}

	pquery := k.particleFilter.Query()
	for pquery.Next() {
		_, _, state := pquery.Get()
		s.Particles++
		internal = append(internal, state.Energy)
	}

	s.InternalEnergy = floats.Sum(internal)
	s.LinearKinetic = floats.Sum(linear)
	s.RotationalKinetic = floats.Sum(rotational)
	return s
}
