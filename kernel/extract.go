package kernel

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/clusters/components"
	"github.com/pthm-cable/clusters/description"
	"github.com/pthm-cable/clusters/geometry"
	"github.com/pthm-cable/clusters/physics"
	"github.com/pthm-cable/clusters/transfer"
)

// Extract writes the clusters centered in region and the particles inside it into buf.
// Cell positions are absolute and wrapped into the world.
func (k *CPU) Extract(region geometry.Rect, buf *transfer.Buffer) error {
	buf.Reset()

	// Queries are always iterated to the end; the first error stops further writes.
	var err error
	query := k.clusterFilter.Query()
	for query.Next() {
		pos, vel, rot, cells, identity := query.Get()
		if err != nil || !region.Contains(k.space, pos.Vec()) {
			continue
		}
		err = k.extractCluster(buf, pos, vel, rot, cells, identity)
	}

	pquery := k.particleFilter.Query()
	for pquery.Next() {
		pos, vel, state := pquery.Get()
		if err != nil || !region.Contains(k.space, pos.Vec()) {
			continue
		}
		if _, perr := buf.AddParticle(transfer.ParticleTO{
			ID:     state.ID,
			Pos:    pos.Vec(),
			Vel:    vel.Vec(),
			Energy: state.Energy,
		}); perr != nil {
			err = fmt.Errorf("extract particle %d: %w", state.ID, perr)
		}
	}
	return err
}

func (k *CPU) extractCluster(buf *transfer.Buffer, pos *components.Position, vel *components.Velocity,
	rot *components.Rotation, cells *components.CellBuffer, identity *components.Identity) error {
	name, err := buf.AddString(identity.Name)
	if err != nil {
		return fmt.Errorf("extract cluster %d: %w", identity.ID, err)
	}
	_, first, _, _ := buf.Counts()
	clusterIndex, err := buf.AddCluster(transfer.ClusterTO{
		ID:         identity.ID,
		Pos:        pos.Vec(),
		Vel:        vel.Vec(),
		Angle:      rot.Angle,
		AngularVel: rot.AngularVel,
		CellIndex:  first,
		NumCells:   cells.Count(),
		Name:       name,
	})
	if err != nil {
		return fmt.Errorf("extract cluster %d: %w", identity.ID, err)
	}

	for i := range cells.Cells {
		cell := &cells.Cells[i]
		to := transfer.CellTO{
			ID:             cell.ID,
			Pos:            k.space.Correct(r2.Add(pos.Vec(), cells.Offset(i, rot.Angle))),
			Energy:         cell.Energy,
			MaxConnections: cell.MaxConnections,
			NumConnections: min(len(cell.Connections), transfer.MaxCellConnections),
			ClusterIndex:   clusterIndex,
			Feature:        cell.Feature,
		}
		for j := 0; j < to.NumConnections; j++ {
			to.Connections[j] = first + cell.Connections[j]
		}
		if to.FeatureData, err = buf.AddBytes(cell.FeatureData); err != nil {
			return fmt.Errorf("extract cell %d: %w", cell.ID, err)
		}
		if to.Name, err = buf.AddString(cell.Name); err != nil {
			return fmt.Errorf("extract cell %d: %w", cell.ID, err)
		}
		if to.Description, err = buf.AddString(cell.Description); err != nil {
			return fmt.Errorf("extract cell %d: %w", cell.ID, err)
		}
		_, _, _, to.TokenIndex = buf.Counts()
		to.NumTokens = len(cell.Tokens)

		cellIndex, err := buf.AddCell(to)
		if err != nil {
			return fmt.Errorf("extract cell %d: %w", cell.ID, err)
		}
		for _, t := range cell.Tokens {
			if _, err := buf.AddToken(transfer.TokenTO{Energy: t.Energy, Memory: t.Memory, CellIndex: cellIndex}); err != nil {
				return fmt.Errorf("extract cell %d: %w", cell.ID, err)
			}
		}
	}
	return nil
}

// Install replaces the clusters centered in region, the particles inside it and every
// entity whose id occurs in buf with the content of buf. Connections must stay within
// their cluster; otherwise ErrUnknownCell is returned and the world is left unchanged.
func (k *CPU) Install(region geometry.Rect, buf *transfer.Buffer) error {
	if err := validate(buf); err != nil {
		return err
	}

	clusterIDs := make(map[uint64]bool, len(buf.Clusters()))
	for _, c := range buf.Clusters() {
		clusterIDs[c.ID] = true
	}
	particleIDs := make(map[uint64]bool, len(buf.Particles()))
	for _, p := range buf.Particles() {
		particleIDs[p.ID] = true
	}

	var dead []ecs.Entity
	query := k.clusterFilter.Query()
	for query.Next() {
		pos, _, _, _, identity := query.Get()
		if clusterIDs[identity.ID] || region.Contains(k.space, pos.Vec()) {
			dead = append(dead, query.Entity())
		}
	}
	pquery := k.particleFilter.Query()
	for pquery.Next() {
		pos, _, state := pquery.Get()
		if particleIDs[state.ID] || region.Contains(k.space, pos.Vec()) {
			dead = append(dead, pquery.Entity())
		}
	}
	for _, e := range dead {
		k.world.RemoveEntity(e)
	}

	for ci := range buf.Clusters() {
		k.installCluster(buf, ci)
	}
	for _, p := range buf.Particles() {
		pos := components.Position{}
		pos.Set(k.space.Correct(p.Pos))
		vel := components.Velocity{}
		vel.Set(p.Vel)
		state := components.ParticleState{ID: p.ID, Energy: p.Energy}
		k.particleMapper.NewEntity(&pos, &vel, &state)
	}

	k.logger.Debug("installed region",
		"region", region,
		"clusters", len(buf.Clusters()),
		"particles", len(buf.Particles()),
		"replaced", len(dead),
	)
	return nil
}

func validate(buf *transfer.Buffer) error {
	cells := buf.Cells()
	for ci, c := range buf.Clusters() {
		if c.CellIndex < 0 || c.CellIndex+c.NumCells > len(cells) {
			return fmt.Errorf("cluster %d: cells [%d, %d) out of range: %w", c.ID, c.CellIndex, c.CellIndex+c.NumCells, ErrUnknownCell)
		}
		for i := c.CellIndex; i < c.CellIndex+c.NumCells; i++ {
			cell := cells[i]
			if cell.ClusterIndex != ci {
				return fmt.Errorf("cell %d: belongs to cluster index %d, listed in %d: %w", cell.ID, cell.ClusterIndex, ci, ErrUnknownCell)
			}
			for j := 0; j < cell.NumConnections; j++ {
				other := cell.Connections[j]
				if other < c.CellIndex || other >= c.CellIndex+c.NumCells {
					return fmt.Errorf("cell %d: connection to index %d outside cluster %d: %w", cell.ID, other, c.ID, ErrUnknownCell)
				}
			}
		}
	}
	return nil
}

func (k *CPU) installCluster(buf *transfer.Buffer, ci int) {
	c := buf.Clusters()[ci]
	cells := buf.ClusterCells(ci)
	if len(cells) == 0 {
		return
	}

	// Unwrap cell positions around the stored center.
	positions := make([]geometry.Vec, len(cells))
	for i, cell := range cells {
		positions[i] = r2.Add(c.Pos, k.space.Displacement(c.Pos, cell.Pos))
	}
	center := physics.Centroid(positions)

	cb := components.CellBuffer{Cells: make([]components.Cell, len(cells))}
	for i, to := range cells {
		cell := components.Cell{
			ID:             to.ID,
			Rel:            geometry.Rotate(r2.Sub(positions[i], center), -c.Angle),
			Energy:         to.Energy,
			MaxConnections: to.MaxConnections,
			Feature:        to.Feature,
			FeatureData:    buf.Bytes(to.FeatureData),
			Name:           buf.String(to.Name),
			Description:    buf.String(to.Description),
		}
		for j := 0; j < to.NumConnections; j++ {
			cell.Connections = append(cell.Connections, to.Connections[j]-c.CellIndex)
		}
		for _, t := range buf.CellTokens(c.CellIndex + i) {
			cell.Tokens = append(cell.Tokens, description.Token{Energy: t.Energy, Memory: t.Memory})
		}
		cb.Cells[i] = cell
	}

	pos := components.Position{}
	pos.Set(k.space.Correct(center))
	vel := components.Velocity{}
	vel.Set(c.Vel)
	rot := components.Rotation{Angle: c.Angle, AngularVel: c.AngularVel}
	identity := components.Identity{ID: c.ID, Name: buf.String(c.Name)}
	k.clusterMapper.NewEntity(&pos, &vel, &rot, &cb, &identity)
}
