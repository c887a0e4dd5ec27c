package effects

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/phrase2video/internal/config"
	"github.com/ivlev/phrase2video/internal/timeline"
)

// DimsFunc reports the natural pixel size of a scene image.
type DimsFunc func(image string) (config.Size, error)

// CompileTimeline compiles every scene of tl. Scenes are independent, so
// they are compiled concurrently; params[i] always belongs to tl.Scenes[i].
// Zero-length scenes without effects get Params with only the duration set;
// their effects are still validated. Every failing scene is reported,
// joined, with its index and image.
func CompileTimeline(ctx context.Context, tl *timeline.Timeline, dims DimsFunc, workers int) ([]Params, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	params := make([]Params, len(tl.Scenes))
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, scene := range tl.Scenes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := compileScene(scene, dims)
			if err != nil {
				mu.Lock()
				errs = append(errs, sceneError{index: i, err: attachImage(err, scene.Image)})
				mu.Unlock()
				return nil
			}
			params[i] = p
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		slices.SortFunc(errs, func(a, b error) int {
			return a.(sceneError).index - b.(sceneError).index
		})
		return nil, errors.Join(errs...)
	}
	return params, nil
}

func compileScene(scene timeline.Scene, dims DimsFunc) (Params, error) {
	if scene.Duration <= 0 && scene.Effects.IsEmpty() {
		return Params{Duration: scene.Duration}, nil
	}

	var size config.Size
	if needsDims(scene.Effects) {
		if dims == nil {
			return Params{}, &config.GeometryError{Field: "effects.focus.source", Msg: "image size is unknown"}
		}
		s, err := dims(scene.Image)
		if err != nil {
			return Params{}, fmt.Errorf("probe image size: %w", err)
		}
		size = s
	}
	return Compile(scene.Duration, size, scene.Effects)
}

// needsDims reports whether the focus axis falls back to the natural size.
func needsDims(spec *config.EffectSpec) bool {
	return spec != nil && spec.Focus != nil && spec.Focus.Source == nil
}

func attachImage(err error, image string) error {
	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) && cfgErr.Image == "" {
		cfgErr.Image = image
	}
	var geoErr *config.GeometryError
	if errors.As(err, &geoErr) && geoErr.Image == "" {
		geoErr.Image = image
	}
	return err
}

type sceneError struct {
	index int
	err   error
}

func (e sceneError) Error() string {
	return fmt.Sprintf("scene %d: %v", e.index, e.err)
}

func (e sceneError) Unwrap() error {
	return e.err
}
