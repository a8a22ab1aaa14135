// Package converter maps between flat transfer buffers and the structured description model.
package converter

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/clusters/config"
	"github.com/pthm-cable/clusters/description"
	"github.com/pthm-cable/clusters/geometry"
	"github.com/pthm-cable/clusters/transfer"
)

// Converter converts buffers of one world space.
type Converter struct {
	space geometry.Space
}

// New creates a converter for the given world.
func New(space geometry.Space) *Converter {
	return &Converter{space: space}
}

// ToDescription builds a fresh snapshot from buf.
// Cluster centers are wrapped into the world, cell positions are expressed as
// center plus minimal-image offset so that cluster geometry stays contiguous.
func (c *Converter) ToDescription(buf *transfer.Buffer) description.Data {
	var data description.Data
	cells := buf.Cells()

	for ci, cl := range buf.Clusters() {
		center := c.space.Correct(cl.Pos)
		out := description.Cluster{
			ID:         cl.ID,
			Pos:        center,
			Vel:        cl.Vel,
			Angle:      cl.Angle,
			AngularVel: cl.AngularVel,
			Metadata:   description.ClusterMetadata{Name: buf.String(cl.Name)},
			Cells:      make([]description.Cell, 0, cl.NumCells),
		}
		for i := range buf.ClusterCells(ci) {
			idx := cl.CellIndex + i
			cell := cells[idx]
			d := description.Cell{
				ID:             cell.ID,
				Pos:            r2.Add(center, c.space.Displacement(center, cell.Pos)),
				Energy:         cell.Energy,
				MaxConnections: cell.MaxConnections,
				Metadata: description.CellMetadata{
					Name:        buf.String(cell.Name),
					Description: buf.String(cell.Description),
				},
			}
			for k := 0; k < cell.NumConnections; k++ {
				d.Connections = append(d.Connections, cells[cell.Connections[k]].ID)
			}
			if cell.Feature != description.FeatureNone || cell.FeatureData.Len > 0 {
				d.Feature = &description.Feature{Type: cell.Feature, Data: buf.Bytes(cell.FeatureData)}
			}
			for _, tok := range buf.CellTokens(idx) {
				d.Tokens = append(d.Tokens, description.Token{Energy: tok.Energy, Memory: tok.Memory})
			}
			out.Cells = append(out.Cells, d)
		}
		data.Clusters = append(data.Clusters, out)
	}

	for _, p := range buf.Particles() {
		data.Particles = append(data.Particles, description.Particle{
			ID:     p.ID,
			Pos:    c.space.Correct(p.Pos),
			Vel:    p.Vel,
			Energy: p.Energy,
		})
	}
	return data
}

// FromDescription replaces the content of buf with data.
// If data exceeds an entity ceiling, buf is left unchanged.
func (c *Converter) FromDescription(buf *transfer.Buffer, data description.Data) error {
	if err := checkFits(buf, data); err != nil {
		return err
	}
	buf.Reset()
	return c.encode(buf, data)
}

func checkFits(buf *transfer.Buffer, data description.Data) error {
	tokens := 0
	for i := range data.Clusters {
		tokens += data.Clusters[i].NumTokens()
	}
	return buf.Capacity().Check(len(data.Clusters), data.NumCells(), len(data.Particles), tokens)
}

func (c *Converter) encode(buf *transfer.Buffer, data description.Data) error {
	index := make(map[uint64]int, data.NumCells())

	for _, cl := range data.Clusters {
		if len(cl.Cells) == 0 {
			continue
		}
		name, err := buf.AddString(cl.Metadata.Name)
		if err != nil {
			return err
		}
		clusterIndex, err := buf.AddCluster(transfer.ClusterTO{
			ID:         cl.ID,
			Pos:        c.space.Correct(cl.Centroid()),
			Vel:        cl.Vel,
			Angle:      cl.Angle,
			AngularVel: cl.AngularVel,
			NumCells:   len(cl.Cells),
			Name:       name,
		})
		if err != nil {
			return err
		}

		first := -1
		for _, cell := range cl.Cells {
			to := transfer.CellTO{
				ID:             cell.ID,
				Pos:            c.space.Correct(cell.Pos),
				Energy:         cell.Energy,
				MaxConnections: min(cell.MaxConnections, transfer.MaxCellConnections),
				ClusterIndex:   clusterIndex,
			}
			if cell.Feature != nil {
				to.Feature = cell.Feature.Type
				if to.FeatureData, err = buf.AddBytes(cell.Feature.Data); err != nil {
					return err
				}
			}
			if to.Name, err = buf.AddString(cell.Metadata.Name); err != nil {
				return err
			}
			if to.Description, err = buf.AddString(cell.Metadata.Description); err != nil {
				return err
			}
			_, _, _, numTokens := buf.Counts()
			to.TokenIndex = numTokens
			to.NumTokens = len(cell.Tokens)

			cellIndex, err := buf.AddCell(to)
			if err != nil {
				return err
			}
			if first < 0 {
				first = cellIndex
			}
			index[cell.ID] = cellIndex

			for _, tok := range cell.Tokens {
				if _, err := buf.AddToken(transfer.TokenTO{Energy: tok.Energy, Memory: tok.Memory, CellIndex: cellIndex}); err != nil {
					return err
				}
			}
		}
		buf.Clusters()[clusterIndex].CellIndex = first
	}

	// Connections are resolved once every cell has an index. Connecting
	// symmetrically repairs one-sided edits; ids without a cell are dropped.
	for _, cl := range data.Clusters {
		for _, cell := range cl.Cells {
			i := index[cell.ID]
			for _, other := range cell.Connections {
				j, ok := index[other]
				if !ok || j == i {
					continue
				}
				if err := buf.Connect(i, j); err != nil {
					return err
				}
			}
		}
	}

	for _, p := range data.Particles {
		if _, err := buf.AddParticle(transfer.ParticleTO{
			ID:     p.ID,
			Pos:    c.space.Correct(p.Pos),
			Vel:    p.Vel,
			Energy: p.Energy,
		}); err != nil {
			return err
		}
	}
	return nil
}

// ApplyChange applies change to the state held in buf and rewrites buf compactly.
// Modified positions and angles are applied as deltas against the old values, so
// state that kept evolving after the diff was taken is not overwritten.
// Entities added without id get one from rng; cells added without energy or
// connection limit get the defaults from params.
func (c *Converter) ApplyChange(buf *transfer.Buffer, change description.DataChange, rng *rand.Rand, params config.SimulationParameters) error {
	data := c.ToDescription(buf)
	a := applier{space: c.space, rng: rng, params: params}

	clusters := make(map[uint64]int, len(data.Clusters))
	for i, cl := range data.Clusters {
		clusters[cl.ID] = i
	}
	deleted := make(map[int]bool)
	for _, cc := range change.Clusters {
		switch cc.State {
		case description.Added:
			data.Clusters = append(data.Clusters, a.newCluster(cc))
		case description.Modified:
			if i, ok := clusters[cc.ID]; ok {
				a.modifyCluster(&data.Clusters[i], cc)
			}
		case description.Deleted:
			if i, ok := clusters[cc.ID]; ok {
				deleted[i] = true
			}
		default:
			return fmt.Errorf("cluster %d: unknown change state %v", cc.ID, cc.State)
		}
	}
	if len(deleted) > 0 {
		kept := data.Clusters[:0]
		for i, cl := range data.Clusters {
			if !deleted[i] {
				kept = append(kept, cl)
			}
		}
		data.Clusters = kept
	}

	particles := make(map[uint64]int, len(data.Particles))
	for i, p := range data.Particles {
		particles[p.ID] = i
	}
	removed := make(map[int]bool)
	for _, pc := range change.Particles {
		switch pc.State {
		case description.Added:
			data.Particles = append(data.Particles, a.newParticle(pc))
		case description.Modified:
			if i, ok := particles[pc.ID]; ok {
				a.modifyParticle(&data.Particles[i], pc)
			}
		case description.Deleted:
			if i, ok := particles[pc.ID]; ok {
				removed[i] = true
			}
		default:
			return fmt.Errorf("particle %d: unknown change state %v", pc.ID, pc.State)
		}
	}
	if len(removed) > 0 {
		kept := data.Particles[:0]
		for i, p := range data.Particles {
			if !removed[i] {
				kept = append(kept, p)
			}
		}
		data.Particles = kept
	}

	return c.FromDescription(buf, data)
}
