// Package description defines the structured, host-side model of simulation state.
//
// Descriptions are snapshots: they are created fresh for every fetch and never alias
// accelerator-resident state. Mutations travel back only as a DataChange.
package description

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/clusters/geometry"
)

// TokenMemorySize is the number of memory bytes carried by every token.
const TokenMemorySize = 16

// FeatureType selects the optional function of a cell.
type FeatureType uint8

const (
	FeatureNone FeatureType = iota
	FeatureComputer
	FeatureSensor
	FeatureConstructor
	FeatureWeapon
)

var featureNames = [...]string{"none", "computer", "sensor", "constructor", "weapon"}

func (f FeatureType) String() string {
	if int(f) < len(featureNames) {
		return featureNames[f]
	}
	return "unknown"
}

// Feature is the optional function of a cell together with its data (e.g. computer code).
type Feature struct {
	Type FeatureType
	Data []byte
}

// Token is a unit of information and energy travelling over cell connections.
type Token struct {
	Energy float64
	Memory [TokenMemorySize]byte
}

// CellMetadata holds descriptive, non-physical cell attributes.
type CellMetadata struct {
	Name        string
	Description string
}

// ClusterMetadata holds descriptive, non-physical cluster attributes.
type ClusterMetadata struct {
	Name string
}

// Particle is a free energy particle without connections.
type Particle struct {
	ID     uint64
	Pos    geometry.Vec
	Vel    geometry.Vec
	Energy float64
}

// Cell is a member of a cluster.
// Connections are undirected: if A lists B, B lists A.
type Cell struct {
	ID             uint64
	Pos            geometry.Vec
	Energy         float64
	MaxConnections int
	Connections    []uint64
	Feature        *Feature
	Tokens         []Token
	Metadata       CellMetadata
}

// Cluster is a rigid group of connected cells sharing linear and angular velocity.
// Angle and AngularVel are in degrees and degrees per timestep.
type Cluster struct {
	ID         uint64
	Pos        geometry.Vec
	Vel        geometry.Vec
	Angle      float64
	AngularVel float64
	Cells      []Cell
	Metadata   ClusterMetadata
}

// Data is a snapshot of clusters and particles.
type Data struct {
	Clusters  []Cluster
	Particles []Particle
}

// Centroid returns the mean position of the cluster's cells.
func (c *Cluster) Centroid() geometry.Vec {
	if len(c.Cells) == 0 {
		return c.Pos
	}
	var sum geometry.Vec
	for _, cell := range c.Cells {
		sum = r2.Add(sum, cell.Pos)
	}
	return r2.Scale(1/float64(len(c.Cells)), sum)
}

// UpdateCenter sets the cluster position to the centroid of its cells.
func (c *Cluster) UpdateCenter() {
	c.Pos = c.Centroid()
}

// Connect adds a symmetric connection between the cells at index i and j.
func (c *Cluster) Connect(i, j int) {
	a, b := &c.Cells[i], &c.Cells[j]
	if !containsID(a.Connections, b.ID) {
		a.Connections = append(a.Connections, b.ID)
	}
	if !containsID(b.Connections, a.ID) {
		b.Connections = append(b.Connections, a.ID)
	}
}

// NumTokens returns the number of tokens on all cells of the cluster.
func (c *Cluster) NumTokens() int {
	n := 0
	for _, cell := range c.Cells {
		n += len(cell.Tokens)
	}
	return n
}

// Clone returns a deep copy of the cell.
func (c Cell) Clone() Cell {
	c.Connections = append([]uint64(nil), c.Connections...)
	c.Tokens = append([]Token(nil), c.Tokens...)
	if c.Feature != nil {
		f := Feature{Type: c.Feature.Type, Data: append([]byte(nil), c.Feature.Data...)}
		c.Feature = &f
	}
	return c
}

// Clone returns a deep copy of the cluster.
func (c Cluster) Clone() Cluster {
	cells := make([]Cell, len(c.Cells))
	for i, cell := range c.Cells {
		cells[i] = cell.Clone()
	}
	c.Cells = cells
	return c
}

// Clone returns a deep copy of the snapshot.
func (d Data) Clone() Data {
	out := Data{
		Clusters:  make([]Cluster, len(d.Clusters)),
		Particles: append([]Particle(nil), d.Particles...),
	}
	for i, c := range d.Clusters {
		out.Clusters[i] = c.Clone()
	}
	return out
}

// AddCluster appends a cluster.
func (d *Data) AddCluster(c Cluster) {
	d.Clusters = append(d.Clusters, c)
}

// AddParticle appends a particle.
func (d *Data) AddParticle(p Particle) {
	d.Particles = append(d.Particles, p)
}

// NumCells returns the number of cells over all clusters.
func (d Data) NumCells() int {
	n := 0
	for i := range d.Clusters {
		n += len(d.Clusters[i].Cells)
	}
	return n
}

// CellByID indexes all cells by id.
func (d Data) CellByID() map[uint64]Cell {
	out := make(map[uint64]Cell, d.NumCells())
	for _, c := range d.Clusters {
		for _, cell := range c.Cells {
			out[cell.ID] = cell
		}
	}
	return out
}

// ClusterByID indexes all clusters by id.
func (d Data) ClusterByID() map[uint64]Cluster {
	out := make(map[uint64]Cluster, len(d.Clusters))
	for _, c := range d.Clusters {
		out[c.ID] = c
	}
	return out
}

// ClusterByCellID maps every cell id to the cluster containing it.
func (d Data) ClusterByCellID() map[uint64]Cluster {
	out := make(map[uint64]Cluster, d.NumCells())
	for _, c := range d.Clusters {
		for _, cell := range c.Cells {
			out[cell.ID] = c
		}
	}
	return out
}

func containsID(ids []uint64, id uint64) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
