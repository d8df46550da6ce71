package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/carlmjohnson/versioninfo"

	"github.com/pdok/appendfeatures/avoid"
	"github.com/pdok/appendfeatures/config"
	"github.com/pdok/appendfeatures/processing"
	"github.com/pdok/appendfeatures/processing/gpkg"
	"github.com/pdok/appendfeatures/processing/postgis"

	"github.com/iancoleman/strcase"
	"github.com/urfave/cli/v2"
)

const SOURCE string = `source`
const SOURCELAYER string = `sourceLayer`
const TARGET string = `target`
const TARGETLAYER string = `targetLayer`
const AVOIDINTERSECTIONS string = `avoidIntersections`
const SLIVERAREA string = `sliverArea`
const CONFIG string = `config`
const VERBOSE string = `verbose`

//nolint:funlen
func main() {
	app := cli.NewApp()
	app.Name = "appendfeatures"
	app.Usage = "Appends the features of a source layer to a target layer, matching attributes by name and converting geometries to the target type"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    SOURCE,
			Aliases: []string{"s"},
			Usage:   "Source GPKG or PostGIS connection URL (postgres://...)",
			EnvVars: []string{strcase.ToScreamingSnake(SOURCE)},
		},
		&cli.StringFlag{
			Name:    SOURCELAYER,
			Usage:   "Source layer. Optional for a GPKG with a single feature table. schema.table for PostGIS",
			EnvVars: []string{strcase.ToScreamingSnake(SOURCELAYER)},
		},
		&cli.StringFlag{
			Name:    TARGET,
			Aliases: []string{"t"},
			Usage:   "Target GPKG or PostGIS connection URL (postgres://...). The target layer must exist",
			EnvVars: []string{strcase.ToScreamingSnake(TARGET)},
		},
		&cli.StringFlag{
			Name:    TARGETLAYER,
			Usage:   "Target layer. Optional for a GPKG with a single feature table. schema.table for PostGIS",
			EnvVars: []string{strcase.ToScreamingSnake(TARGETLAYER)},
		},
		&cli.StringFlag{
			Name:    AVOIDINTERSECTIONS,
			Aliases: []string{"a"},
			Usage:   `Layers new polygons should not overlap. JSON array of dataset#layer. E.g.: ["parcels.gpkg#parcels"]`,
			EnvVars: []string{strcase.ToScreamingSnake(AVOIDINTERSECTIONS)},
		},
		&cli.Float64Flag{
			Name:    SLIVERAREA,
			Usage:   "Remove polygons and holes up to this area after avoiding intersections",
			Value:   0,
			EnvVars: []string{strcase.ToScreamingSnake(SLIVERAREA)},
		},
		&cli.StringFlag{
			Name:    CONFIG,
			Aliases: []string{"c"},
			Usage:   "JSON or YAML job file, replaces the flags above",
			EnvVars: []string{strcase.ToScreamingSnake(CONFIG)},
		},
		&cli.BoolFlag{
			Name:    VERBOSE,
			Aliases: []string{"v"},
			Usage:   "Log every feature that is dropped",
			EnvVars: []string{strcase.ToScreamingSnake(VERBOSE)},
		},
	}

	app.Action = func(c *cli.Context) error {
		job, err := jobFromContext(c)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		source, closeSource, err := openSource(ctx, job.Source)
		if err != nil {
			return err
		}
		defer closeSource()

		target, closeTarget, err := openTarget(ctx, job.Target)
		if err != nil {
			return err
		}
		defer closeTarget()

		opts := processing.Options{LogDropped: job.Verbose}
		if len(job.AvoidIntersections) > 0 {
			policy, err := loadPolicy(ctx, job.AvoidIntersections, job.SliverArea)
			if err != nil {
				return err
			}
			opts.Avoider = policy
		}

		log.Println("=== start appending ===")
		log.Printf("  appending %s to %s", job.Source, job.Target)
		result, err := processing.AppendFeatures(ctx, source, target, &processing.LogFeedback{}, opts)
		if err != nil {
			return err
		}
		if result.Canceled {
			log.Println("=== cancelled ===")
		} else {
			log.Println("=== done appending ===")
		}
		if !result.Committed {
			return cli.Exit("appending failed", 1)
		}
		return nil
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func jobFromContext(c *cli.Context) (config.Job, error) {
	if c.IsSet(CONFIG) {
		job, err := config.LoadJob(c.String(CONFIG))
		if err != nil {
			return job, fmt.Errorf("error loading job %s: %w", c.String(CONFIG), err)
		}
		job.Verbose = job.Verbose || c.Bool(VERBOSE)
		return job, nil
	}

	job := config.Job{
		Source:     config.Dataset{Path: c.String(SOURCE), Layer: c.String(SOURCELAYER)},
		Target:     config.Dataset{Path: c.String(TARGET), Layer: c.String(TARGETLAYER)},
		SliverArea: c.Float64(SLIVERAREA),
		Verbose:    c.Bool(VERBOSE),
	}
	if c.IsSet(AVOIDINTERSECTIONS) {
		var refs []string
		if err := json.Unmarshal([]byte(c.String(AVOIDINTERSECTIONS)), &refs); err != nil {
			return job, fmt.Errorf("%s should be a JSON array of strings: %w", AVOIDINTERSECTIONS, err)
		}
		for _, ref := range refs {
			job.AvoidIntersections = append(job.AvoidIntersections, config.ParseDataset(ref))
		}
	}
	return job, job.Validate()
}

func openSource(ctx context.Context, dataset config.Dataset) (processing.Source, func(), error) {
	switch dataset.Driver {
	case config.DriverPostGIS:
		source, err := postgis.NewSource(ctx, dataset.Path, dataset.Layer)
		if err != nil {
			return nil, nil, err
		}
		return source, source.Close, nil
	default:
		if _, err := os.Stat(dataset.Path); err != nil {
			return nil, nil, fmt.Errorf("error opening source GeoPackage: %w", err)
		}
		source := &gpkg.SourceGeopackage{}
		if err := source.Init(ctx, dataset.Path, dataset.Layer); err != nil {
			return nil, nil, err
		}
		return source, source.Close, nil
	}
}

func openTarget(ctx context.Context, dataset config.Dataset) (processing.Target, func(), error) {
	switch dataset.Driver {
	case config.DriverPostGIS:
		target, err := postgis.NewTarget(ctx, dataset.Path, dataset.Layer)
		if err != nil {
			return nil, nil, err
		}
		return target, target.Close, nil
	default:
		// the target layer has to exist, don't let gpkg.Open create an empty GeoPackage
		if _, err := os.Stat(dataset.Path); err != nil {
			return nil, nil, fmt.Errorf("error opening target GeoPackage: %w", err)
		}
		target := &gpkg.TargetGeopackage{}
		if err := target.Init(ctx, dataset.Path, dataset.Layer); err != nil {
			return nil, nil, err
		}
		return target, target.Close, nil
	}
}

// loadPolicy reads the geometries of the layers to avoid
func loadPolicy(ctx context.Context, datasets []config.Dataset, sliverArea float64) (*avoid.Policy, error) {
	var sources []processing.Source
	for _, dataset := range datasets {
		source, closeSource, err := openSource(ctx, dataset)
		if err != nil {
			return nil, err
		}
		defer closeSource()
		sources = append(sources, source)
	}
	references, err := avoid.Load(ctx, sources...)
	if err != nil {
		return nil, fmt.Errorf("error reading the layers to avoid: %w", err)
	}
	policy := avoid.NewPolicy(references, sliverArea)
	log.Printf("  avoiding intersections with %d polygons", policy.Len())
	return policy, nil
}
