package neat

import (
	"compress/gzip"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Checkpoint is the persisted state of a Population. Genomes are stored as kind-tagged
// records so that any registered genome variant can be rebuilt.
type Checkpoint struct {
	Name            string
	Generation      int
	N               int
	NumberOfSpecies int
	NextInnovation  int
	NextSpeciesID   int
	InputSize       int
	OutputSize      int
	TopScore        float64
	History         []HistoryRecord
	BestGenome      GenomeRecord
	Species         map[int][]GenomeRecord
}

// CheckpointStore persists checkpoints keyed by run name and generation. Saving a
// generation twice overwrites the first checkpoint.
type CheckpointStore interface {
	Save(ctx context.Context, cp *Checkpoint) error
	// Load returns ErrCheckpointNotFound if nothing was saved under (name, generation).
	Load(ctx context.Context, name string, generation int) (*Checkpoint, error)
}

// GenerationLister is implemented by stores that can enumerate the saved generations of a run.
type GenerationLister interface {
	Generations(ctx context.Context, name string) ([]int, error)
}

// Snapshot captures the population in a Checkpoint.
func (p *Population) Snapshot() (*Checkpoint, error) {
	cp := &Checkpoint{
		Name:            p.Name,
		Generation:      p.Generation,
		N:               p.N,
		NumberOfSpecies: p.NumberOfSpecies,
		NextInnovation:  p.nextInnovation,
		NextSpeciesID:   p.nextSpeciesID,
		InputSize:       p.InputSize,
		OutputSize:      p.OutputSize,
		TopScore:        p.TopScore,
		History:         cloneHistory(p.History),
		Species:         make(map[int][]GenomeRecord, len(p.Species)),
	}
	if p.BestGenome != nil {
		rec, err := p.codecs.Encode(p.BestGenome)
		if err != nil {
			return nil, fmt.Errorf("best genome: %w", err)
		}
		cp.BestGenome = rec
	}
	for sp, genomes := range p.Species {
		records := make([]GenomeRecord, len(genomes))
		for i, g := range genomes {
			rec, err := p.codecs.Encode(g)
			if err != nil {
				return nil, fmt.Errorf("species %d genome %d: %w", sp, i, err)
			}
			records[i] = rec
		}
		cp.Species[sp] = records
	}
	return cp, nil
}

// Restore replaces the population state with cp. Genomes are decoded with the
// population's codecs and owned by p. Nothing changes if an error is returned.
func (p *Population) Restore(cp *Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("%w: nil checkpoint", ErrCheckpointCorrupt)
	}
	if cp.N <= 0 || cp.Generation < 1 || len(cp.Species) == 0 {
		return fmt.Errorf("%w: run %q generation %d has no population", ErrCheckpointCorrupt, cp.Name, cp.Generation)
	}
	if cp.InputSize != p.Config.Neat.NumInputs || cp.OutputSize != p.Config.Neat.NumOutputs {
		return fmt.Errorf("%w: checkpoint is %d->%d, config is %d->%d", ErrConfiguration,
			cp.InputSize, cp.OutputSize, p.Config.Neat.NumInputs, p.Config.Neat.NumOutputs)
	}

	species := make(map[int][]Genome, len(cp.Species))
	total := 0
	for sp, records := range cp.Species {
		genomes := make([]Genome, len(records))
		for i, rec := range records {
			g, err := p.codecs.Decode(rec, p)
			if err != nil {
				return fmt.Errorf("species %d genome %d: %w", sp, i, err)
			}
			genomes[i] = g
		}
		species[sp] = genomes
		total += len(genomes)
	}
	if total != cp.N {
		return fmt.Errorf("%w: %d genomes stored for a population of %d", ErrCheckpointCorrupt, total, cp.N)
	}
	var best Genome
	if cp.BestGenome.Kind != "" {
		g, err := p.codecs.Decode(cp.BestGenome, p)
		if err != nil {
			return fmt.Errorf("best genome: %w", err)
		}
		best = g
	}

	p.Name = cp.Name
	p.Generation = cp.Generation
	p.N = cp.N
	p.NumberOfSpecies = cp.NumberOfSpecies
	p.nextInnovation = cp.NextInnovation
	p.nextSpeciesID = cp.NextSpeciesID
	p.InputSize = cp.InputSize
	p.OutputSize = cp.OutputSize
	p.TopScore = cp.TopScore
	p.History = cloneHistory(cp.History)
	p.BestGenome = best
	p.Species = species
	return nil
}

func (p *Population) saveCheckpoint(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	cp, err := p.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot generation %d: %w", p.Generation, err)
	}
	if err := p.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("failed to save checkpoint of generation %d: %w", p.Generation, err)
	}
	return nil
}

// FileStore keeps one gzip-compressed gob file per checkpoint at <Dir>/<name>/<generation>.cp,
// the generation zero-padded to two digits.
type FileStore struct {
	Dir string
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Path returns the file holding the checkpoint of (name, generation).
func (s *FileStore) Path(name string, generation int) string {
	return filepath.Join(s.Dir, name, fmt.Sprintf("%02d.cp", generation))
}

// Save writes cp to a temporary file and renames it into place.
func (s *FileStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := checkRunName(cp.Name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(s.Dir, cp.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory '%s': %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file in '%s': %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	gzWriter := gzip.NewWriter(tmp)
	if err := gob.NewEncoder(gzWriter).Encode(cp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to compress checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	path := s.Path(cp.Name, cp.Generation)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move checkpoint to '%s': %w", path, err)
	}
	return nil
}

// Load reads the checkpoint of (name, generation).
func (s *FileStore) Load(ctx context.Context, name string, generation int) (*Checkpoint, error) {
	if err := checkRunName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(name, generation)
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file '%s': %w", path, err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCheckpointCorrupt, path, err)
	}
	defer gzReader.Close()

	cp := &Checkpoint{}
	if err := gob.NewDecoder(gzReader).Decode(cp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCheckpointCorrupt, path, err)
	}
	return cp, nil
}

// Generations lists the saved generations of a run in ascending order.
func (s *FileStore) Generations(ctx context.Context, name string) ([]int, error) {
	if err := checkRunName(name); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.Dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var gens []int
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), ".cp")
		if !ok || e.IsDir() {
			continue
		}
		if gen, err := strconv.Atoi(base); err == nil {
			gens = append(gens, gen)
		}
	}
	sort.Ints(gens)
	return gens, nil
}

func checkRunName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: invalid run name %q", ErrConfiguration, name)
	}
	return nil
}
