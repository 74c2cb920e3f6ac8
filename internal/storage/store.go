// Package storage persists runs under a base directory, one directory per
// run: metadata.json describes the setup and outcome, trajectory.csv holds
// the recorded moments, and transport.json the final operating point of
// coupled runs.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alaweimm90/SpinCirc/internal/config"
	"github.com/alaweimm90/SpinCirc/internal/dynamics"
	"github.com/alaweimm90/SpinCirc/internal/spin"
	"github.com/alaweimm90/SpinCirc/internal/transport"
)

const (
	metadataFile   = "metadata.json"
	trajectoryFile = "trajectory.csv"
	transportFile  = "transport.json"
)

// Store reads and writes runs below one base directory.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Init creates the base directory.
func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// Dir returns the directory of one run.
func (s *Store) Dir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

// RunMetadata is the saved summary of one run.
type RunMetadata struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Timestamp   time.Time          `json:"timestamp"`
	Scheme      string             `json:"scheme"`
	Mode        string             `json:"mode"`
	Dt          float64            `json:"dt"`
	Duration    float64            `json:"duration"`
	Bias        float64            `json:"bias"`
	Temperature float64            `json:"temperature,omitempty"`
	Seed        int64              `json:"seed,omitempty"`
	Moments     []string           `json:"moments"`
	Status      string             `json:"status"`
	Steps       int                `json:"steps"`
	Solves      int                `json:"solves,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

// Run bundles everything one save writes. Operating may be nil for runs
// without a transport side.
type Run struct {
	Config    *config.Config
	Moments   []string // one label per integrated moment
	Result    *dynamics.Result
	Operating *transport.Solution
	Solves    int
}

// Save writes the run and returns its generated ID.
func (s *Store) Save(run Run) (string, error) {
	if run.Config == nil || run.Result == nil {
		return "", spin.Invalid("storage.run", "save needs a config and a result")
	}
	id := runID(run.Config.Name)
	dir := s.Dir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:          id,
		Name:        run.Config.Name,
		Timestamp:   time.Now(),
		Scheme:      run.Config.Scheme(),
		Mode:        run.Config.Mode(),
		Dt:          run.Config.Run.Dt,
		Duration:    run.Config.Run.Duration,
		Bias:        run.Config.Transport.Bias,
		Temperature: run.Config.Run.Temperature,
		Seed:        run.Config.Run.Seed,
		Moments:     run.Moments,
		Status:      run.Result.Status.String(),
		Steps:       run.Result.Info.Steps,
		Solves:      run.Solves,
		Metrics:     run.Result.Metrics,
	}
	if err := writeJSON(filepath.Join(dir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeTrajectory(filepath.Join(dir, trajectoryFile), run.Moments, run.Result); err != nil {
		return "", err
	}
	if run.Operating != nil {
		if err := writeJSON(filepath.Join(dir, transportFile), operatingPoint(run.Operating)); err != nil {
			return "", err
		}
	}
	return id, nil
}

// runID derives a filesystem-safe, collision-free ID from the config name.
func runID(name string) string {
	slug := strings.NewReplacer("/", "-", " ", "-").Replace(name)
	if slug == "" {
		slug = "run"
	}
	return slug + "-" + uuid.NewString()[:8]
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeTrajectory stores the recorded samples with full float precision, so
// nanosecond times and radian-scale components round-trip exactly.
func writeTrajectory(path string, labels []string, res *dynamics.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if len(res.States) == 0 {
		w.Flush()
		return w.Error()
	}

	moments := len(res.States[0]) / 3
	if len(labels) != moments {
		labels = defaultLabels(moments)
	}
	withEnergy := len(res.Energies) == len(res.Times) && len(res.Energies) > 0

	header := []string{"time"}
	for _, l := range labels {
		header = append(header, l+"_mx", l+"_my", l+"_mz")
	}
	if withEnergy {
		header = append(header, "energy")
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for i, t := range res.Times {
		row := make([]string, 0, len(header))
		row = append(row, ff(t))
		for _, c := range res.States[i] {
			row = append(row, ff(c))
		}
		if withEnergy {
			row = append(row, ff(res.Energies[i]))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func ff(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func defaultLabels(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "m" + strconv.Itoa(i)
	}
	return out
}

// OperatingPoint is the serialized form of a transport solution. Vectors are
// [x, y, z] triples.
type OperatingPoint struct {
	Potentials    []float64    `json:"potentials"`
	Accumulations [][3]float64 `json:"accumulations"`
	LayerCharge   []float64    `json:"layer_charge_currents"`
	LayerSpin     [][3]float64 `json:"layer_spin_currents"`
	Torques       [][3]float64 `json:"torques"`
	Cond          float64      `json:"cond"`
}

func operatingPoint(sol *transport.Solution) OperatingPoint {
	n := sol.Nodes()
	op := OperatingPoint{Cond: sol.Cond()}
	for i := 0; i < n; i++ {
		op.Potentials = append(op.Potentials, sol.ChargePotential(i))
		op.Accumulations = append(op.Accumulations, triple(sol.SpinAccumulation(i)))
	}
	for l := 0; l < n-1; l++ {
		op.LayerCharge = append(op.LayerCharge, sol.LayerChargeCurrent(l))
		op.LayerSpin = append(op.LayerSpin, triple(sol.LayerSpinCurrent(l)))
	}
	for _, tq := range sol.Torques() {
		op.Torques = append(op.Torques, triple(tq))
	}
	return op
}

func triple(v spin.Vec3) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// List returns the metadata of every readable run, oldest first. Entries
// that fail to parse are skipped rather than failing the listing.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name(), metadataFile))
		if err != nil {
			continue
		}
		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		runs = append(runs, meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

// Load reads one run's metadata.
func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(runID), metadataFile))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Trajectory is one stored moment history.
type Trajectory struct {
	Times    []float64
	States   []spin.State
	Energies []float64 // empty when the run recorded none
	Labels   []string  // one per moment
}

// LoadTrajectory reads a run's samples back. An empty file loads as an empty
// trajectory; malformed cells are errors.
func (s *Store) LoadTrajectory(runID string) (*Trajectory, error) {
	f, err := os.Open(filepath.Join(s.Dir(runID), trajectoryFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Trajectory{}, nil
	}

	header := records[0]
	if len(header) < 4 || header[0] != "time" {
		return nil, spin.Invalid("storage.trajectory", "run %s: malformed header", runID)
	}
	withEnergy := header[len(header)-1] == "energy"
	cols := len(header) - 1
	if withEnergy {
		cols--
	}
	if cols%3 != 0 {
		return nil, spin.Invalid("storage.trajectory", "run %s: %d component columns are not moment triples", runID, cols)
	}
	moments := cols / 3

	traj := &Trajectory{Labels: make([]string, moments)}
	for k := 0; k < moments; k++ {
		traj.Labels[k] = strings.TrimSuffix(header[1+3*k], "_mx")
	}
	for _, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, spin.Invalid("storage.trajectory", "run %s: row has %d fields, header has %d", runID, len(rec), len(header))
		}
		vals := make([]float64, len(rec))
		for j, cell := range rec {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, spin.Invalid("storage.trajectory", "run %s: bad value %q", runID, cell)
			}
			vals[j] = v
		}
		traj.Times = append(traj.Times, vals[0])
		traj.States = append(traj.States, spin.State(vals[1:1+3*moments]))
		if withEnergy {
			traj.Energies = append(traj.Energies, vals[len(vals)-1])
		}
	}
	return traj, nil
}

// LoadOperating reads a run's stored operating point. Runs without a
// transport side return nil without error.
func (s *Store) LoadOperating(runID string) (*OperatingPoint, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(runID), transportFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var op OperatingPoint
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// ExportData is the single-document JSON form of a stored run.
type ExportData struct {
	Metadata  RunMetadata     `json:"metadata"`
	Labels    []string        `json:"labels"`
	Times     []float64       `json:"times"`
	States    [][]float64     `json:"states"`
	Energies  []float64       `json:"energies,omitempty"`
	Operating *OperatingPoint `json:"operating,omitempty"`
}

// ExportJSON writes a stored run as one JSON document.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	traj, err := s.LoadTrajectory(runID)
	if err != nil {
		return err
	}
	op, err := s.LoadOperating(runID)
	if err != nil {
		return err
	}

	data := ExportData{
		Metadata:  *meta,
		Labels:    traj.Labels,
		Times:     traj.Times,
		States:    make([][]float64, len(traj.States)),
		Energies:  traj.Energies,
		Operating: op,
	}
	for i, st := range traj.States {
		data.States[i] = []float64(st)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// ExportCSV streams a stored run's trajectory file.
func (s *Store) ExportCSV(w io.Writer, runID string) error {
	f, err := os.Open(filepath.Join(s.Dir(runID), trajectoryFile))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
