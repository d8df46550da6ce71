// Package processing takes care of the logistics around appending the features of a Source to a Target.
// Reading and writing itself is done by the Source and Target implementations.
package processing

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/pdok/appendfeatures/convert"
	"github.com/pdok/appendfeatures/geomhelp"
	"github.com/pdok/appendfeatures/mathhelp"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-spatial/geom"
)

const wktLogLength = 120

type Options struct {
	// Avoider, if set, trims every (converted) geometry before it is appended
	Avoider IntersectionAvoider
	// LogDropped logs every feature that is dropped instead of only the count
	LogDropped bool
}

// AppendResult is the outcome of one AppendFeatures run
type AppendResult struct {
	// Total is the feature count reported by the source, < 1 if unknown
	Total     int
	Processed int
	Dropped   int
	Inserted  int
	Committed bool
	Canceled  bool
}

// AppendFeatures copies the features of source into target.
// Attributes are mapped by field name and geometries are converted to the geometry type of the target.
// Features whose geometry cannot be converted are dropped.
// All new features are added in a single edit session, so either all of them are appended or none.
//
// Cancelling ctx stops reading the source, the features collected until then are still appended.
// A failing edit session is reported through feedback and AppendResult.Committed,
// the returned error is reserved for a source or target that could not be used at all.
func AppendFeatures(ctx context.Context, source Source, target Target, feedback Feedback, opts Options) (AppendResult, error) {
	if feedback == nil {
		feedback = noFeedback{}
	}
	// the source and target are not interrupted, cancellation is only checked between features
	storeCtx := context.WithoutCancel(ctx)

	targetFields := target.Fields()
	mapping := BuildFieldMapping(targetFields, source.Fields())
	log.Printf("    mapped fields: %s", strings.Join(mapping.TargetNames(targetFields), ", "))

	total, err := source.FeatureCount(storeCtx)
	if err != nil {
		return AppendResult{}, fmt.Errorf("could not count the source features: %w", err)
	}
	result := AppendResult{Total: total}

	newFeatures, err := collectFeatures(ctx, storeCtx, source, target, mapping, feedback, opts, &result)
	if err != nil {
		return result, err
	}

	session, err := target.Begin(storeCtx)
	if err != nil {
		return result, fmt.Errorf("could not start editing %s: %w", target.Name(), err)
	}
	if err = addFeatures(storeCtx, session, newFeatures); err != nil {
		log.Printf("    appending failed: %s", err)
		feedback.PushInfo(fmt.Sprintf(
			"The %d features from input layer could not be appended to '%s'. This is likely due to NOT NULL constraints that are not met.",
			total, target.Name()))
		logSummary(result)
		return result, nil
	}
	result.Committed = true
	result.Inserted = len(newFeatures)

	feedback.PushInfo(fmt.Sprintf("%d out of %d features from input layer were successfully appended to '%s'!",
		result.Inserted, total, target.Name()))
	logSummary(result)
	return result, nil
}

// collectFeatures reads the source until it is exhausted or ctx is cancelled
// and builds a new target feature for every source feature that survives the geometry conversion
func collectFeatures(ctx, storeCtx context.Context, source Source, target Target, mapping FieldMapping,
	feedback Feedback, opts Options, result *AppendResult) ([]Feature, error) {

	descriptor := target.GeometryDescriptor()
	features, err := source.Features(storeCtx)
	if err != nil {
		return nil, fmt.Errorf("could not read the source features: %w", err)
	}
	defer features.Close()

	var newFeatures []Feature
	for {
		if ctx.Err() != nil {
			result.Canceled = true
			log.Printf("    cancelled after %d features", result.Processed)
			break
		}
		if !features.Next() {
			break
		}
		feature := features.Feature()
		result.Processed++

		g, ok := transformGeometry(feature.Geometry(), descriptor, opts.Avoider)
		if !ok {
			result.Dropped++
			if opts.LogDropped {
				log.Printf("    dropped feature %d, %s cannot be stored as %s: %s", result.Processed,
					convert.Describe(feature.Geometry()), descriptor, geomhelp.WktMustEncode(feature.Geometry(), wktLogLength))
			}
			feedback.SetProgress(mathhelp.Percentage(result.Processed, result.Total))
			continue
		}

		newFeature, err := target.NewFeature(mapping.Attributes(feature.Columns()), g)
		if err != nil {
			result.Dropped++
			if opts.LogDropped {
				log.Printf("    dropped feature %d %s: %s", result.Processed, spew.Sprintf("%v", feature.Columns()), err)
			}
		} else {
			newFeatures = append(newFeatures, newFeature)
		}
		feedback.SetProgress(mathhelp.Percentage(result.Processed, result.Total))
	}
	if err = features.Err(); err != nil {
		return nil, fmt.Errorf("error while reading the source features: %w", err)
	}
	return newFeatures, nil
}

// transformGeometry converts g to the geometry type of the target.
// ok is false when the feature should be dropped.
func transformGeometry(g geom.Geometry, descriptor convert.Descriptor, avoider IntersectionAvoider) (newG geom.Geometry, ok bool) {
	if convert.IsEmpty(g) {
		return nil, true
	}
	g = convert.Deref(g)
	if descriptor.Family != convert.Unknown {
		g = convert.ToType(g, descriptor)
		if g == nil {
			return nil, false
		}
	}
	if avoider != nil {
		g = avoider.Avoid(g, descriptor)
	}
	return g, true
}

// addFeatures adds the features in the session and commits, or rolls back if anything fails
func addFeatures(ctx context.Context, session EditSession, features []Feature) error {
	err := session.AddFeatures(ctx, features)
	if err != nil {
		if rollbackErr := session.Rollback(); rollbackErr != nil {
			log.Printf("    rollback failed: %s", rollbackErr)
		}
		return err
	}
	return session.Commit()
}

func logSummary(result AppendResult) {
	log.Printf("    total features: %d", result.Total)
	log.Printf("         processed: %d", result.Processed)
	log.Printf("           dropped: %d", result.Dropped)
	log.Printf("          appended: %d", result.Inserted)
}
