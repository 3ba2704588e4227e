package provision

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"videowall/internal/geometry"
	"videowall/internal/registry"
	"videowall/pkg/logging"
)

// GroupSpec is one wall definition in the provisioning file.
type GroupSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	ScreenCount int    `yaml:"screen_count"`
	Orientation string `yaml:"orientation,omitempty"`
	GridRows    int    `yaml:"grid_rows,omitempty"`
	GridCols    int    `yaml:"grid_cols,omitempty"`
	VideoFile   string `yaml:"video_file,omitempty"`
}

// File is the top-level provisioning document.
type File struct {
	Groups []GroupSpec `yaml:"groups"`
}

// Result summarizes one provisioning pass.
type Result struct {
	Created int
	Skipped int
}

// Load reads a provisioning file. A missing file is not an error: the
// feature is optional and walls can always be created over the API.
func Load(path string) (File, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return File{}, nil
	}
	if err != nil {
		return File{}, err
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

// Apply creates every group in the file that does not already exist.
// Duplicates are expected when state was rehydrated from a snapshot, so a
// name collision is a skip, not a failure. Invalid entries are skipped too;
// one bad wall definition should not block the rest of the file.
func Apply(co *registry.Coordinator, f File, logger logging.Logger) Result {
	var res Result
	for _, spec := range f.Groups {
		orientation := geometry.OrientationHorizontal
		if spec.Orientation != "" {
			parsed, err := geometry.ParseOrientation(spec.Orientation)
			if err != nil {
				logger.WithFields(logging.Fields{
					"group": spec.Name,
					"error": err,
				}).Warn("Skipping provisioned group with bad orientation")
				res.Skipped++
				continue
			}
			orientation = parsed
		}

		g, err := co.CreateGroup(registry.CreateGroupInput{
			Name:        spec.Name,
			Description: spec.Description,
			ScreenCount: spec.ScreenCount,
			Orientation: orientation,
			GridRows:    spec.GridRows,
			GridCols:    spec.GridCols,
			VideoFile:   spec.VideoFile,
		})
		if errors.Is(err, registry.ErrDuplicateName) {
			logger.WithField("group", spec.Name).Debug("Provisioned group already exists")
			res.Skipped++
			continue
		}
		if err != nil {
			logger.WithFields(logging.Fields{
				"group": spec.Name,
				"error": err,
			}).Warn("Skipping invalid provisioned group")
			res.Skipped++
			continue
		}

		logger.WithFields(logging.Fields{
			"group_id": g.ID,
			"name":     g.Name,
			"screens":  g.ScreenCount,
		}).Info("Provisioned group created")
		res.Created++
	}
	return res
}
