package data

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// GraphOptions describes the layout of a graph file
type GraphOptions struct {
	Directed   bool `json:"directed"`
	Multigraph bool `json:"multigraph"`
	Weighted   bool `json:"weighted"` // third column holds a weight
	Typed      bool `json:"typed"`    // next column holds an edge type
}

// Recommendation is a (user, candidate) pair produced by an external recommender
type Recommendation struct {
	User      int
	Candidate int
	Score     float64
}

func scanLines(r io.Reader, skipHeader bool, fn func(lineNo int, fields []string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if skipHeader && lineNo == 1 {
			continue
		}
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := fn(lineNo, strings.Split(line, "\t")); err != nil {
			return err
		}
	}
	return sc.Err()
}

func malformed(lineNo int, format string, args ...any) error {
	return fmt.Errorf("line %d: %s: %w", lineNo, fmt.Sprintf(format, args...), ErrMalformedLine)
}

// ReadIndex reads one identifier per line
func ReadIndex(r io.Reader) (*Index[string], error) {
	idx := NewIndex[string]()
	err := scanLines(r, false, func(_ int, fields []string) error {
		idx.Add(strings.TrimSpace(fields[0]))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func parseEdgeType(s string) (EdgeType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "original":
		return Original, true
	case "1", "recommended":
		return Recommended, true
	}
	return Original, false
}

// ReadGraph reads a tab separated edge list: from, to, [weight], [type].
// Edges touching unknown users and self loops are skipped.
func ReadGraph(r io.Reader, users *Index[string], opts GraphOptions, log *slog.Logger) (*Graph, error) {
	if log == nil {
		log = slog.Default()
	}
	g := NewGraph(users.Len(), opts.Directed, opts.Multigraph)
	skipped := 0
	err := scanLines(r, false, func(lineNo int, fields []string) error {
		want := 2
		if opts.Weighted {
			want++
		}
		if opts.Typed {
			want++
		}
		if len(fields) < want {
			return malformed(lineNo, "expected %d columns, got %d", want, len(fields))
		}

		weight := 1.0
		col := 2
		if opts.Weighted {
			w, err := strconv.ParseFloat(strings.TrimSpace(fields[col]), 64)
			if err != nil {
				return malformed(lineNo, "weight %q", fields[col])
			}
			weight = w
			col++
		}
		t := Original
		if opts.Typed {
			var ok bool
			if t, ok = parseEdgeType(fields[col]); !ok {
				return malformed(lineNo, "edge type %q", fields[col])
			}
		}

		u, v := users.ID(strings.TrimSpace(fields[0])), users.ID(strings.TrimSpace(fields[1]))
		if u < 0 || v < 0 || u == v {
			skipped++
			return nil
		}
		return g.AddEdge(u, v, weight, t)
	})
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.Warn("skipped graph edges", "count", skipped)
	}
	return g, nil
}

// ReadPieces reads the information file: a header, then piece, creator, timestamp
func ReadPieces(r io.Reader, b *Builder) error {
	return scanLines(r, true, func(lineNo int, fields []string) error {
		if len(fields) < 3 {
			return malformed(lineNo, "expected 3 columns, got %d", len(fields))
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
		if err != nil {
			return malformed(lineNo, "timestamp %q", fields[2])
		}
		b.AddPiece(strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1]), ts)
		return nil
	})
}

// ReadFeatures reads a feature file whose header names the feature in its second column.
// Rows are entity, value and, if the header has a third column, a weight.
func ReadFeatures(r io.Reader, b *Builder, onUsers bool) (string, error) {
	var name string
	weighted := false
	err := scanLines(r, false, func(lineNo int, fields []string) error {
		if lineNo == 1 {
			if len(fields) < 2 {
				return malformed(lineNo, "feature header needs at least 2 columns")
			}
			name = strings.TrimSpace(fields[1])
			weighted = len(fields) > 2
			if onUsers {
				b.DeclareUserFeature(name)
			} else {
				b.DeclarePieceFeature(name)
			}
			return nil
		}
		if len(fields) < 2 {
			return malformed(lineNo, "expected at least 2 columns, got %d", len(fields))
		}
		weight := 1.0
		if weighted && len(fields) > 2 {
			w, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
			if err != nil {
				return malformed(lineNo, "weight %q", fields[2])
			}
			weight = w
		}
		entity, value := strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])
		if onUsers {
			b.AddUserFeature(name, entity, value, weight)
		} else {
			b.AddPieceFeature(name, entity, value, weight)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", fmt.Errorf("empty feature file: %w", ErrMalformedLine)
	}
	return name, nil
}

// ReadRealPropagation reads user, piece, timestamp rows
func ReadRealPropagation(r io.Reader, b *Builder) error {
	return scanLines(r, false, func(lineNo int, fields []string) error {
		if len(fields) < 3 {
			return malformed(lineNo, "expected 3 columns, got %d", len(fields))
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
		if err != nil {
			return malformed(lineNo, "timestamp %q", fields[2])
		}
		b.AddRealPropagation(strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1]), ts)
		return nil
	})
}

// ReadRecommendations reads user, candidate, [score] rows
func ReadRecommendations(r io.Reader, users *Index[string]) ([]Recommendation, error) {
	recs := make([]Recommendation, 0)
	err := scanLines(r, false, func(lineNo int, fields []string) error {
		if len(fields) < 2 {
			return malformed(lineNo, "expected at least 2 columns, got %d", len(fields))
		}
		score := 1.0
		if len(fields) > 2 {
			s, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
			if err != nil {
				return malformed(lineNo, "score %q", fields[2])
			}
			score = s
		}
		u, v := users.ID(strings.TrimSpace(fields[0])), users.ID(strings.TrimSpace(fields[1]))
		if u < 0 || v < 0 {
			return nil
		}
		recs = append(recs, Recommendation{User: u, Candidate: v, Score: score})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// AddRecommendations adds Recommended lines for the first topN
// recommendations of each user, in the given order. Candidates the user
// already follows and self recommendations are skipped. topN <= 0 keeps all.
func (g *Graph) AddRecommendations(recs []Recommendation, topN int) (int, error) {
	taken := make(map[int]int)
	added := 0
	for _, r := range recs {
		if topN > 0 && taken[r.User] >= topN {
			continue
		}
		if r.User == r.Candidate || g.ContainsEdge(r.User, r.Candidate) {
			continue
		}
		if err := g.AddEdge(r.User, r.Candidate, 1, Recommended); err != nil {
			return added, err
		}
		taken[r.User]++
		added++
	}
	return added, nil
}

// Files lists the inputs of Load. Empty paths are skipped, except Users, Graph and Pieces.
type Files struct {
	Users           string   `json:"users"`
	Graph           string   `json:"graph"`
	Pieces          string   `json:"pieces"`
	UserFeatures    []string `json:"userFeatures"`
	PieceFeatures   []string `json:"pieceFeatures"`
	RealPropagation string   `json:"realPropagation"`
	Recommendations string   `json:"recommendations"`
	TopN            int      `json:"topN"`
}

func withFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Load reads every input file and builds the data
func Load(files Files, opts GraphOptions, log *slog.Logger) (*Data, error) {
	if log == nil {
		log = slog.Default()
	}

	var users *Index[string]
	err := withFile(files.Users, func(r io.Reader) (err error) {
		users, err = ReadIndex(r)
		return
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}

	var g *Graph
	err = withFile(files.Graph, func(r io.Reader) (err error) {
		g, err = ReadGraph(r, users, opts, log)
		return
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read graph: %w", err)
	}

	if files.Recommendations != "" {
		err = withFile(files.Recommendations, func(r io.Reader) error {
			recs, err := ReadRecommendations(r, users)
			if err != nil {
				return err
			}
			n, err := g.AddRecommendations(recs, files.TopN)
			log.Info("added recommended edges", "count", n)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read recommendations: %w", err)
		}
	}

	b := NewBuilder(users, g).SetLogger(log)
	if err := withFile(files.Pieces, func(r io.Reader) error { return ReadPieces(r, b) }); err != nil {
		return nil, fmt.Errorf("failed to read pieces: %w", err)
	}
	for _, path := range files.UserFeatures {
		if err := withFile(path, func(r io.Reader) error {
			_, err := ReadFeatures(r, b, true)
			return err
		}); err != nil {
			return nil, fmt.Errorf("failed to read user features: %w", err)
		}
	}
	for _, path := range files.PieceFeatures {
		if err := withFile(path, func(r io.Reader) error {
			_, err := ReadFeatures(r, b, false)
			return err
		}); err != nil {
			return nil, fmt.Errorf("failed to read piece features: %w", err)
		}
	}
	if files.RealPropagation != "" {
		if err := withFile(files.RealPropagation, func(r io.Reader) error { return ReadRealPropagation(r, b) }); err != nil {
			return nil, fmt.Errorf("failed to read real propagation: %w", err)
		}
	}

	return b.Build()
}
