// Package config describes an append job: which features go where.
// A job can be read from a JSON or YAML file or be assembled from command line flags.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/perimeterx/marshmallow"
	"gopkg.in/yaml.v3"
)

const (
	DriverGeoPackage = "gpkg"
	DriverPostGIS    = "postgis"

	// separates a dataset from a layer in a dataset reference, e.g. roads.gpkg#roads
	layerSeparator = "#"
)

// Dataset references a layer in a GeoPackage file or a PostGIS database
type Dataset struct {
	// Driver is detected from Path when empty
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty" validate:"omitempty,oneof=gpkg postgis"`
	// Path of a GeoPackage or a PostgreSQL connection string
	Path string `json:"path" yaml:"path" validate:"required"`
	// Layer is the table name, "schema.table" for PostGIS.
	// Can be empty for a GeoPackage with a single feature table.
	Layer string `json:"layer,omitempty" yaml:"layer,omitempty"`
}

// Job is the configuration of one append run
type Job struct {
	Source Dataset `json:"source" yaml:"source" validate:"required"`
	Target Dataset `json:"target" yaml:"target" validate:"required"`
	// AvoidIntersections are the layers new polygons should not overlap
	AvoidIntersections []Dataset `json:"avoidIntersections,omitempty" yaml:"avoidIntersections,omitempty" validate:"dive"`
	// SliverArea is the area up to which polygons and holes are removed after avoiding intersections
	SliverArea float64 `json:"sliverArea" yaml:"sliverArea" default:"0" validate:"min=0"`
	// Verbose logs every dropped feature
	Verbose bool `json:"verbose" yaml:"verbose"`
}

// LoadJob reads a job from a JSON file, or a YAML file when the extension is .yaml or .yml
func LoadJob(path string) (Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Job{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseJobYAML(data)
	default:
		return ParseJob(data)
	}
}

// ParseJob parses a JSON job, unknown keys are not allowed
func ParseJob(data []byte) (Job, error) {
	var job Job
	err := defaults.Set(&job)
	if err != nil {
		return job, err
	}

	unknown, err := marshmallow.Unmarshal(data, &job, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return job, err
	}
	if len(unknown) > 0 {
		keys := make([]string, 0, len(unknown))
		for k := range unknown {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return job, fmt.Errorf("unknown keys in job: %s", strings.Join(keys, ", "))
	}
	return job, job.Validate()
}

// ParseJobYAML parses a YAML job, unknown keys are not allowed
func ParseJobYAML(data []byte) (Job, error) {
	var job Job
	err := defaults.Set(&job)
	if err != nil {
		return job, err
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err = decoder.Decode(&job); err != nil {
		return job, fmt.Errorf("error decoding job: %w", err)
	}
	return job, job.Validate()
}

// Validate fills in the missing drivers and validates the job
func (job *Job) Validate() error {
	job.Source.detectDriver()
	job.Target.detectDriver()
	for i := range job.AvoidIntersections {
		job.AvoidIntersections[i].detectDriver()
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(job)
}

func (d *Dataset) detectDriver() {
	if d.Driver == "" {
		d.Driver = DetectDriver(d.Path)
	}
}

// DetectDriver returns postgis for PostgreSQL connection URLs and gpkg for anything else
func DetectDriver(path string) string {
	if strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://") {
		return DriverPostGIS
	}
	return DriverGeoPackage
}

// ParseDataset parses a dataset reference: a path or connection string,
// optionally followed by # and the layer name
func ParseDataset(ref string) Dataset {
	path, layer := ref, ""
	if i := strings.LastIndex(ref, layerSeparator); i >= 0 {
		path, layer = ref[:i], ref[i+1:]
	}
	return Dataset{Driver: DetectDriver(path), Path: path, Layer: layer}
}

// String returns the dataset reference, with the password of a connection URL masked
func (d Dataset) String() string {
	path := d.Path
	if u, err := url.Parse(path); err == nil && u.User != nil {
		path = u.Redacted()
	}
	if d.Layer == "" {
		return path
	}
	return path + layerSeparator + d.Layer
}
