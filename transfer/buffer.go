// Package transfer provides the flat, fixed-capacity buffers that carry simulation state
// across the host/accelerator boundary, and the pool that recycles them.
package transfer

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/clusters/config"
	"github.com/pthm-cable/clusters/description"
	"github.com/pthm-cable/clusters/geometry"
)

const (
	// MaxCellConnections is the number of connection slots per cell.
	MaxCellConnections = 6
	// TokenMemorySize is the number of memory bytes per token.
	TokenMemorySize = description.TokenMemorySize
)

// ErrCapacityExceeded is returned when data does not fit a buffer ceiling.
var ErrCapacityExceeded = errors.New("transfer buffer capacity exceeded")

// Capacity holds the hard ceilings of every buffer.
type Capacity struct {
	MaxClusters   int
	MaxCells      int
	MaxParticles  int
	MaxTokens     int
	MetadataBytes int
}

// CapacityFrom converts the configured ceilings.
func CapacityFrom(c config.CapacityConfig) Capacity {
	return Capacity{
		MaxClusters:   c.MaxClusters,
		MaxCells:      c.MaxCells,
		MaxParticles:  c.MaxParticles,
		MaxTokens:     c.MaxTokens,
		MetadataBytes: c.MetadataBytes,
	}
}

// Check returns ErrCapacityExceeded if any of the counts is above its ceiling.
func (c Capacity) Check(clusters, cells, particles, tokens int) error {
	if err := checkCount("clusters", clusters, c.MaxClusters); err != nil {
		return err
	}
	if err := checkCount("cells", cells, c.MaxCells); err != nil {
		return err
	}
	if err := checkCount("particles", particles, c.MaxParticles); err != nil {
		return err
	}
	return checkCount("tokens", tokens, c.MaxTokens)
}

func checkCount(name string, n, max int) error {
	if n > max {
		return fmt.Errorf("%s: %d > %d: %w", name, n, max, ErrCapacityExceeded)
	}
	return nil
}

// Ref addresses a byte range in the metadata pool. The zero Ref is empty.
type Ref struct {
	Offset, Len int
}

// ClusterTO is the flat form of a cluster. Its cells occupy
// Cells[CellIndex : CellIndex+NumCells].
type ClusterTO struct {
	ID         uint64
	Pos        geometry.Vec
	Vel        geometry.Vec
	Angle      float64
	AngularVel float64
	CellIndex  int
	NumCells   int
	Name       Ref
}

// CellTO is the flat form of a cell. Positions are absolute world coordinates,
// connections are indices into the cell array.
type CellTO struct {
	ID             uint64
	Pos            geometry.Vec
	Energy         float64
	MaxConnections int
	NumConnections int
	Connections    [MaxCellConnections]int
	ClusterIndex   int
	Feature        description.FeatureType
	FeatureData    Ref
	TokenIndex     int
	NumTokens      int
	Name           Ref
	Description    Ref
}

// TokenTO is the flat form of a token.
type TokenTO struct {
	Energy    float64
	Memory    [TokenMemorySize]byte
	CellIndex int
}

// ParticleTO is the flat form of a particle.
type ParticleTO struct {
	ID     uint64
	Pos    geometry.Vec
	Vel    geometry.Vec
	Energy float64
}

// Buffer is a fixed-capacity transfer structure. Arrays are allocated once
// at the capacity ceiling and never resized.
type Buffer struct {
	clusters  []ClusterTO
	cells     []CellTO
	particles []ParticleTO
	tokens    []TokenTO
	bytes     []byte

	numClusters  int
	numCells     int
	numParticles int
	numTokens    int
	numBytes     int

	capacity Capacity
}

// NewBuffer allocates a buffer at the given ceilings.
func NewBuffer(c Capacity) *Buffer {
	return &Buffer{
		clusters:  make([]ClusterTO, c.MaxClusters),
		cells:     make([]CellTO, c.MaxCells),
		particles: make([]ParticleTO, c.MaxParticles),
		tokens:    make([]TokenTO, c.MaxTokens),
		bytes:     make([]byte, c.MetadataBytes),
		capacity:  c,
	}
}

// Capacity returns the ceilings of the buffer.
func (b *Buffer) Capacity() Capacity { return b.capacity }

// Reset empties the buffer without releasing storage.
func (b *Buffer) Reset() {
	b.numClusters, b.numCells, b.numParticles, b.numTokens, b.numBytes = 0, 0, 0, 0, 0
}

// Empty reports whether the buffer holds no entities.
func (b *Buffer) Empty() bool {
	return b.numClusters == 0 && b.numCells == 0 && b.numParticles == 0
}

// Clusters returns the populated clusters. The slice aliases the buffer.
func (b *Buffer) Clusters() []ClusterTO { return b.clusters[:b.numClusters] }

// Cells returns the populated cells. The slice aliases the buffer.
func (b *Buffer) Cells() []CellTO { return b.cells[:b.numCells] }

// Particles returns the populated particles. The slice aliases the buffer.
func (b *Buffer) Particles() []ParticleTO { return b.particles[:b.numParticles] }

// Tokens returns the populated tokens. The slice aliases the buffer.
func (b *Buffer) Tokens() []TokenTO { return b.tokens[:b.numTokens] }

// ClusterCells returns the cells of cluster i. The slice aliases the buffer.
func (b *Buffer) ClusterCells(i int) []CellTO {
	c := b.clusters[i]
	return b.cells[c.CellIndex : c.CellIndex+c.NumCells]
}

// CellTokens returns the tokens of cell i. The slice aliases the buffer.
func (b *Buffer) CellTokens(i int) []TokenTO {
	c := b.cells[i]
	return b.tokens[c.TokenIndex : c.TokenIndex+c.NumTokens]
}

// AddCluster appends a cluster and returns its index.
func (b *Buffer) AddCluster(c ClusterTO) (int, error) {
	if b.numClusters >= len(b.clusters) {
		return 0, fmt.Errorf("clusters: %w (max %d)", ErrCapacityExceeded, len(b.clusters))
	}
	b.clusters[b.numClusters] = c
	b.numClusters++
	return b.numClusters - 1, nil
}

// AddCell appends a cell and returns its index.
func (b *Buffer) AddCell(c CellTO) (int, error) {
	if b.numCells >= len(b.cells) {
		return 0, fmt.Errorf("cells: %w (max %d)", ErrCapacityExceeded, len(b.cells))
	}
	b.cells[b.numCells] = c
	b.numCells++
	return b.numCells - 1, nil
}

// AddParticle appends a particle and returns its index.
func (b *Buffer) AddParticle(p ParticleTO) (int, error) {
	if b.numParticles >= len(b.particles) {
		return 0, fmt.Errorf("particles: %w (max %d)", ErrCapacityExceeded, len(b.particles))
	}
	b.particles[b.numParticles] = p
	b.numParticles++
	return b.numParticles - 1, nil
}

// AddToken appends a token and returns its index.
func (b *Buffer) AddToken(t TokenTO) (int, error) {
	if b.numTokens >= len(b.tokens) {
		return 0, fmt.Errorf("tokens: %w (max %d)", ErrCapacityExceeded, len(b.tokens))
	}
	b.tokens[b.numTokens] = t
	b.numTokens++
	return b.numTokens - 1, nil
}

// AddBytes copies data into the metadata pool.
func (b *Buffer) AddBytes(data []byte) (Ref, error) {
	if len(data) == 0 {
		return Ref{}, nil
	}
	if b.numBytes+len(data) > len(b.bytes) {
		return Ref{}, fmt.Errorf("metadata: %w (max %d bytes)", ErrCapacityExceeded, len(b.bytes))
	}
	ref := Ref{Offset: b.numBytes, Len: len(data)}
	copy(b.bytes[b.numBytes:], data)
	b.numBytes += len(data)
	return ref, nil
}

// AddString copies s into the metadata pool.
func (b *Buffer) AddString(s string) (Ref, error) {
	return b.AddBytes([]byte(s))
}

// Bytes returns a copy of the referenced metadata.
func (b *Buffer) Bytes(r Ref) []byte {
	if r.Len == 0 {
		return nil
	}
	return append([]byte(nil), b.bytes[r.Offset:r.Offset+r.Len]...)
}

// String returns the referenced metadata as a string.
func (b *Buffer) String(r Ref) string {
	if r.Len == 0 {
		return ""
	}
	return string(b.bytes[r.Offset : r.Offset+r.Len])
}

// Connect adds a symmetric connection between cells i and j.
func (b *Buffer) Connect(i, j int) error {
	ci, cj := &b.cells[i], &b.cells[j]
	if hasConnection(ci, j) {
		return nil
	}
	if ci.NumConnections >= MaxCellConnections || cj.NumConnections >= MaxCellConnections {
		return fmt.Errorf("connections of cell %d/%d: %w (max %d)", ci.ID, cj.ID, ErrCapacityExceeded, MaxCellConnections)
	}
	ci.Connections[ci.NumConnections] = j
	ci.NumConnections++
	cj.Connections[cj.NumConnections] = i
	cj.NumConnections++
	return nil
}

func hasConnection(c *CellTO, j int) bool {
	for k := 0; k < c.NumConnections; k++ {
		if c.Connections[k] == j {
			return true
		}
	}
	return false
}

// Counts returns the number of populated clusters, cells, particles and tokens.
func (b *Buffer) Counts() (clusters, cells, particles, tokens int) {
	return b.numClusters, b.numCells, b.numParticles, b.numTokens
}

// release drops the storage of the buffer.
func (b *Buffer) release() {
	b.clusters, b.cells, b.particles, b.tokens, b.bytes = nil, nil, nil, nil, nil
	b.Reset()
}
