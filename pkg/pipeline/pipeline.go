// Package pipeline drives one extraction run: reference point discovery,
// per-step extraction, cross-step combination and output.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/vjranagit/histextract/pkg/combine"
	"github.com/vjranagit/histextract/pkg/csvout"
	"github.com/vjranagit/histextract/pkg/extract"
	"github.com/vjranagit/histextract/pkg/source"
	"github.com/vjranagit/histextract/pkg/types"
)

// ErrNoReferencePoints is returned when none of the reference point node
// sets exist in the result
var ErrNoReferencePoints = errors.New("none of the required node sets found")

// Options configures a run
type Options struct {
	Instance  string
	LowerSet  string
	UpperSet  string
	RoadSet   string
	OutputDir string
	KeepTemp  bool
}

// SetName returns the node set bound to a role
func (o Options) SetName(role types.Role) string {
	switch role {
	case types.RoleLower:
		return o.LowerSet
	case types.RoleUpper:
		return o.UpperSet
	case types.RoleRoad:
		return o.RoadSet
	}
	return ""
}

// Report summarises a run
type Report struct {
	Steps        int
	Availability combine.Availability
	TempFiles    []string
	Outputs      map[types.Channel]string
	Removed      int
}

// Run extracts, combines and writes every channel of src into
// opts.OutputDir, which must exist. Run owns src and closes it before
// returning.
func Run(src source.Source, opts Options, log *logrus.Entry) (report *Report, err error) {
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close result")
		}
	}()

	ex := extract.New(src, opts.Instance, log)

	log.Info("=== Discovering Node Sets ===")
	found, err := ex.DiscoverNodeSets()
	if err != nil {
		return nil, err
	}

	avail := combine.Availability{
		Lower: found[opts.LowerSet],
		Upper: found[opts.UpperSet],
		Road:  found[opts.RoadSet],
	}
	log.Info("Available sets:")
	for _, role := range []types.Role{types.RoleUpper, types.RoleLower, types.RoleRoad} {
		log.WithField("role", role.String()).Infof("  - %s: %s", opts.SetName(role), yesNo(avail.Has(role)))
	}

	if !avail.Any() {
		log.Error("None of the required node sets found. Exiting.")
		return nil, ErrNoReferencePoints
	}

	steps := src.StepNames()
	log.Infof("Found %d steps: %v", len(steps), steps)

	temp := csvout.NewTempFiles(log)
	acc := combine.NewAccumulator()
	for i, step := range steps {
		data, err := extractStep(ex, i, step, avail, opts, temp, log)
		if err != nil {
			return nil, err
		}
		acc.Add(combine.Derive(data, avail, log))
	}

	report = &Report{
		Steps:        len(steps),
		Availability: avail,
		TempFiles:    temp.Paths(),
	}

	report.Outputs, err = writeCombined(acc, opts.OutputDir, log)
	if err != nil {
		return nil, err
	}

	if !opts.KeepTemp {
		log.Info("Deleting temporary files...")
		report.Removed = temp.Cleanup()
	}

	log.Infof("Done! Combined CSVs from %d steps are in '%s'", len(steps), opts.OutputDir)
	return report, nil
}

// extractStep reads every available role of one step and writes the raw
// per-step CSV files
func extractStep(ex *extract.Extractor, idx int, step string, avail combine.Availability, opts Options, temp *csvout.TempFiles, log *logrus.Entry) (combine.StepData, error) {
	log.Infof("=== Processing Step: %s ===", step)

	data := combine.StepData{
		Name: step,
		Raw:  make(map[types.Role]map[types.Code]types.Series),
	}
	for _, role := range types.Roles {
		if !avail.Has(role) {
			continue
		}
		raw, err := ex.Extract(step, role, opts.SetName(role))
		if err != nil {
			return data, err
		}
		data.Raw[role] = raw
	}

	log.Infof("Saving individual CSVs for %s...", step)
	for _, role := range types.Roles {
		raw := data.Raw[role]
		for _, code := range role.Codes() {
			s, ok := raw[code]
			if !ok {
				continue
			}
			key := types.RawKey{Step: idx, StepName: step, Role: role, Code: code}
			if err := temp.Write(filepath.Join(opts.OutputDir, key.FileName()), s); err != nil {
				return data, err
			}
		}
	}

	return data, nil
}

// writeCombined merges each channel across steps and writes the final files
func writeCombined(acc *combine.Accumulator, dir string, log *logrus.Entry) (map[types.Channel]string, error) {
	merged := acc.Merge()
	outputs := make(map[types.Channel]string)

	groups := []struct {
		kind     string
		channels []types.Channel
	}{
		{"force/moment", types.LoadChannels},
		{"displacement", types.DisplacementChannels},
	}

	for _, g := range groups {
		log.Infof("=== Combining %s data across all steps ===", g.kind)
		for _, ch := range g.channels {
			if acc.Steps(ch) == 0 {
				continue
			}
			series := merged[ch]
			if len(series) == 0 {
				log.WithField("channel", ch.String()).Warnf("No combined %s data for %s", g.kind, ch)
				continue
			}

			path := filepath.Join(dir, ch.FileName())
			if err := csvout.Write(path, series); err != nil {
				return nil, fmt.Errorf("failed to write %s: %w", ch, err)
			}
			csvout.LogSaved(log, path, len(series))
			outputs[ch] = path
		}
	}

	return outputs, nil
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
