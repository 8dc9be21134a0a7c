package loader

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/enginebridge/errors"
)

// Phase is one named step of an engine cold start
type Phase struct {
	Name string
	Run  func(ctx context.Context) error
}

// Step is shorthand for constructing a Phase
func Step(name string, run func(ctx context.Context) error) Phase {
	return Phase{Name: name, Run: run}
}

// Run executes phases in order and stops at the first failure.
//
// Each phase's duration and the total are logged at debug level. The
// returned error is an *errors.Error in the load phase naming the step
// that failed; a panicking step is reported the same way.
func Run(ctx context.Context, log *zap.Logger, engine string, phases ...Phase) error {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("engine", engine))

	start := time.Now()
	log.Debug("cold start begin", zap.Int("phases", len(phases)))

	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return errors.LoadFailure(engine, p.Name, err)
		}

		phaseStart := time.Now()
		err := runPhase(ctx, p)
		took := time.Since(phaseStart)

		if err != nil {
			log.Debug("phase failed",
				zap.String("phase", p.Name),
				zap.Duration("took", took),
				zap.Error(err))
			return errors.LoadFailure(engine, p.Name, err)
		}
		log.Debug("phase done", zap.String("phase", p.Name), zap.Duration("took", took))
	}

	log.Info("engine ready", zap.Duration("total", time.Since(start)))
	return nil
}

func runPhase(ctx context.Context, p Phase) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if p.Run == nil {
		return nil
	}
	return p.Run(ctx)
}
