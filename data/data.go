package data

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strings"
)

var (
	ErrUnknownFeature = errors.New("unknown feature")
	ErrMalformedLine  = errors.New("malformed line")
	ErrIndexMismatch  = errors.New("index mismatch")
)

// EndOfTime terminates every timestamp sequence
const EndOfTime int64 = math.MaxInt64

// FeatureSpace holds one named feature: its value index and the sparse
// (entity, value) -> weight relation. Entities are users or pieces.
type FeatureSpace struct {
	Name    string
	OnUsers bool
	Values  *Index[string]
	Weights *Relation[float64]
}

// NewFeatureSpace creates an empty feature space
func NewFeatureSpace(name string, onUsers bool) *FeatureSpace {
	return &FeatureSpace{
		Name:    name,
		OnUsers: onUsers,
		Values:  NewIndex[string](),
		Weights: NewRelation[float64](),
	}
}

// Add accumulates weight on (entity, value)
func (f *FeatureSpace) Add(entity int, value string, weight float64) {
	vid := f.Values.Add(value)
	if old, ok := f.Weights.Value(entity, vid); ok {
		f.Weights.Update(entity, vid, old+weight)
		return
	}
	f.Weights.Add(entity, vid, weight)
}

// Data is the immutable input of a simulation
type Data struct {
	Users  *Index[string]
	Pieces *Index[string]
	Graph  *Graph

	creators   []int
	createdTS  []int64
	userPieces [][]int

	features map[string]*FeatureSpace

	realPropagated *Relation[int64] // user -> piece -> timestamp

	timestamps []int64
	createdAt  map[int64]map[int][]int
	realAt     map[int64]map[int][]int
}

func (d *Data) NumUsers() int  { return d.Users.Len() }
func (d *Data) NumPieces() int { return d.Pieces.Len() }

// Creator returns the creator of piece p, or -1
func (d *Data) Creator(p int) int {
	if p < 0 || p >= len(d.creators) {
		return -1
	}
	return d.creators[p]
}

// Timestamp returns the creation timestamp of piece p
func (d *Data) Timestamp(p int) (int64, bool) {
	if p < 0 || p >= len(d.createdTS) {
		return 0, false
	}
	return d.createdTS[p], true
}

// PiecesOf returns the pieces created by user u, sorted
func (d *Data) PiecesOf(u int) []int {
	if u < 0 || u >= len(d.userPieces) {
		return nil
	}
	return d.userPieces[u]
}

// Timestamps returns every distinct timestamp of the data in increasing order.
// The last element is always EndOfTime.
func (d *Data) Timestamps() []int64 {
	return d.timestamps
}

// FirstTimestamp returns the first timestamp of the data
func (d *Data) FirstTimestamp() int64 {
	return d.timestamps[0]
}

// NextTimestamp returns the smallest timestamp strictly greater than ts
func (d *Data) NextTimestamp(ts int64) (int64, bool) {
	i := sort.Search(len(d.timestamps), func(i int) bool { return d.timestamps[i] > ts })
	if i >= len(d.timestamps) {
		return EndOfTime, false
	}
	return d.timestamps[i], true
}

// PiecesCreatedAt returns the pieces user u created at ts
func (d *Data) PiecesCreatedAt(ts int64, u int) []int {
	return d.createdAt[ts][u]
}

// UsersCreatingAt returns the users that created a piece at ts, sorted
func (d *Data) UsersCreatingAt(ts int64) []int {
	return sortedKeys(d.createdAt[ts])
}

// RealPropagatedAt returns the pieces user u really repropagated at ts
func (d *Data) RealPropagatedAt(ts int64, u int) []int {
	return d.realAt[ts][u]
}

// UsersRealPropagatingAt returns the users that really repropagated a piece at ts, sorted
func (d *Data) UsersRealPropagatingAt(ts int64) []int {
	return sortedKeys(d.realAt[ts])
}

// HasRealPropagation reports whether ground truth was loaded
func (d *Data) HasRealPropagation() bool {
	return d.realPropagated.Len() > 0
}

// IsRealPropagated reports whether user u really repropagated piece p
func (d *Data) IsRealPropagated(u, p int) bool {
	return d.realPropagated.Contains(u, p)
}

// RealPropagationTime returns when user u really repropagated piece p
func (d *Data) RealPropagationTime(u, p int) (int64, bool) {
	return d.realPropagated.Value(u, p)
}

// RealPropagated returns the pieces really repropagated by user u with their timestamps
func (d *Data) RealPropagated(u int) []Pair[int64] {
	return d.realPropagated.Seconds(u)
}

// Feature returns the named feature space
func (d *Data) Feature(name string) (*FeatureSpace, error) {
	f, ok := d.features[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownFeature)
	}
	return f, nil
}

// FeatureNames returns the sorted names of the user and piece features
func (d *Data) FeatureNames() (userFeatures, pieceFeatures []string) {
	for name, f := range d.features {
		if f.OnUsers {
			userFeatures = append(userFeatures, name)
		} else {
			pieceFeatures = append(pieceFeatures, name)
		}
	}
	slices.Sort(userFeatures)
	slices.Sort(pieceFeatures)
	return
}

// PieceFeatures returns the feature values attached to piece p in f.
// For a user feature the values of the piece's creator are returned.
func (d *Data) PieceFeatures(f *FeatureSpace, p int) []Pair[float64] {
	if !f.OnUsers {
		return f.Weights.Seconds(p)
	}
	c := d.Creator(p)
	if c < 0 {
		return nil
	}
	return f.Weights.Seconds(c)
}

func (d *Data) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "users: %d, pieces: %d, edges: %d (directed: %v, multigraph: %v)\n",
		d.NumUsers(), d.NumPieces(), d.Graph.NumEdges(), d.Graph.Directed(), d.Graph.Multigraph())
	fmt.Fprintf(&sb, "timestamps: %d, real propagations: %d\n",
		len(d.timestamps)-1, d.realPropagated.Len())
	uf, pf := d.FeatureNames()
	for _, name := range uf {
		f := d.features[name]
		fmt.Fprintf(&sb, "user feature %s: %d values, %d pairs\n", name, f.Values.Len(), f.Weights.Len())
	}
	for _, name := range pf {
		f := d.features[name]
		fmt.Fprintf(&sb, "piece feature %s: %d values, %d pairs\n", name, f.Values.Len(), f.Weights.Len())
	}
	return sb.String()
}

func sortedKeys(m map[int][]int) []int {
	if len(m) == 0 {
		return nil
	}
	ret := make([]int, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	slices.Sort(ret)
	return ret
}

// Builder assembles a Data. Lookup misses are logged and skipped;
// structural problems are returned by Build.
type Builder struct {
	users  *Index[string]
	pieces *Index[string]
	graph  *Graph
	log    *slog.Logger

	creators  []int
	createdTS []int64
	features  map[string]*FeatureSpace
	real      *Relation[int64]
	errs      []error
}

// NewBuilder starts a Data over the given users and social graph
func NewBuilder(users *Index[string], g *Graph) *Builder {
	return &Builder{
		users:    users,
		pieces:   NewIndex[string](),
		graph:    g,
		log:      slog.Default(),
		features: make(map[string]*FeatureSpace),
		real:     NewRelation[int64](),
	}
}

// SetLogger replaces the default logger
func (b *Builder) SetLogger(l *slog.Logger) *Builder {
	b.log = l
	return b
}

// AddPiece registers a piece created by creator at ts.
// It returns false if the creator is unknown.
func (b *Builder) AddPiece(piece, creator string, ts int64) bool {
	c := b.users.ID(creator)
	if c < 0 {
		b.log.Debug("skipping piece with unknown creator", "piece", piece, "creator", creator)
		return false
	}
	if b.pieces.Contains(piece) {
		b.errs = append(b.errs, fmt.Errorf("duplicate piece %q: %w", piece, ErrIndexMismatch))
		return false
	}
	b.pieces.Add(piece)
	b.creators = append(b.creators, c)
	b.createdTS = append(b.createdTS, ts)
	return true
}

func (b *Builder) feature(name string, onUsers bool) *FeatureSpace {
	f, ok := b.features[name]
	if !ok {
		f = NewFeatureSpace(name, onUsers)
		b.features[name] = f
	} else if f.OnUsers != onUsers {
		b.errs = append(b.errs, fmt.Errorf("feature %q used for both users and pieces: %w", name, ErrIndexMismatch))
	}
	return f
}

// DeclareUserFeature makes the feature known even if it stays empty
func (b *Builder) DeclareUserFeature(name string) {
	b.feature(name, true)
}

// DeclarePieceFeature makes the feature known even if it stays empty
func (b *Builder) DeclarePieceFeature(name string) {
	b.feature(name, false)
}

// AddUserFeature accumulates weight on (user, value) of the named feature
func (b *Builder) AddUserFeature(name, user, value string, weight float64) bool {
	f := b.feature(name, true)
	u := b.users.ID(user)
	if u < 0 {
		b.log.Debug("skipping feature of unknown user", "feature", name, "user", user)
		return false
	}
	f.Add(u, value, weight)
	return true
}

// AddPieceFeature accumulates weight on (piece, value) of the named feature.
// Pieces must be added first.
func (b *Builder) AddPieceFeature(name, piece, value string, weight float64) bool {
	f := b.feature(name, false)
	p := b.pieces.ID(piece)
	if p < 0 {
		b.log.Debug("skipping feature of unknown piece", "feature", name, "piece", piece)
		return false
	}
	f.Add(p, value, weight)
	return true
}

// AddRealPropagation records that user really repropagated piece at ts.
// Pieces must be added first. Only the earliest repropagation is kept.
func (b *Builder) AddRealPropagation(user, piece string, ts int64) bool {
	u, p := b.users.ID(user), b.pieces.ID(piece)
	if u < 0 || p < 0 {
		b.log.Debug("skipping real propagation", "user", user, "piece", piece)
		return false
	}
	if b.creators[p] == u {
		return false
	}
	if old, ok := b.real.Value(u, p); ok {
		if ts < old {
			b.real.Update(u, p, ts)
		}
		return true
	}
	b.real.Add(u, p, ts)
	return true
}

// Build validates and freezes the data
func (b *Builder) Build() (*Data, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	if b.graph == nil {
		return nil, fmt.Errorf("no graph: %w", ErrIndexMismatch)
	}
	if b.graph.NumNodes() != b.users.Len() {
		return nil, fmt.Errorf("graph has %d nodes but there are %d users: %w",
			b.graph.NumNodes(), b.users.Len(), ErrIndexMismatch)
	}
	b.graph.Freeze()

	d := &Data{
		Users:          b.users,
		Pieces:         b.pieces,
		Graph:          b.graph,
		creators:       b.creators,
		createdTS:      b.createdTS,
		userPieces:     make([][]int, b.users.Len()),
		features:       b.features,
		realPropagated: b.real,
		createdAt:      make(map[int64]map[int][]int),
		realAt:         make(map[int64]map[int][]int),
	}

	seen := make(map[int64]bool)
	addAt := func(m map[int64]map[int][]int, ts int64, u, p int) {
		byUser, ok := m[ts]
		if !ok {
			byUser = make(map[int][]int)
			m[ts] = byUser
		}
		byUser[u] = append(byUser[u], p)
		seen[ts] = true
	}

	for p, c := range d.creators {
		d.userPieces[c] = append(d.userPieces[c], p)
		addAt(d.createdAt, d.createdTS[p], c, p)
	}
	for u := range b.users.Len() {
		for _, pair := range b.real.Seconds(u) {
			if pair.Value < d.createdTS[pair.ID] {
				return nil, fmt.Errorf("piece %d repropagated by user %d at %d before its creation at %d: %w",
					pair.ID, u, pair.Value, d.createdTS[pair.ID], ErrIndexMismatch)
			}
			addAt(d.realAt, pair.Value, u, pair.ID)
		}
	}

	d.timestamps = make([]int64, 0, len(seen)+1)
	for ts := range seen {
		if ts != EndOfTime {
			d.timestamps = append(d.timestamps, ts)
		}
	}
	slices.Sort(d.timestamps)
	d.timestamps = append(d.timestamps, EndOfTime)
	return d, nil
}
