// Package overlay publishes indicator results to a chart surface as named
// line series and keeps track of what is currently shown.
package overlay

import (
	"context"
	"errors"

	"chartengine/internal/indicator"
	"chartengine/internal/model"
)

// Line is one named line series on a chart pane.
type Line struct {
	Chart string              `json:"chart"`
	Name  string              `json:"name"`
	Pane  indicator.Placement `json:"pane"`
	Data  []model.Point       `json:"data"`
}

// Surface is the external chart. SetLine creates or replaces a line by
// (chart, name); RemoveLine of an unknown line is not an error.
type Surface interface {
	SetLine(ctx context.Context, line Line) error
	RemoveLine(ctx context.Context, chart, name string) error
}

// Fanout delivers every call to all surfaces. Each surface is attempted even
// if an earlier one fails; the failures are joined.
type Fanout []Surface

func (f Fanout) SetLine(ctx context.Context, line Line) error {
	var errs []error
	for _, s := range f {
		if err := s.SetLine(ctx, line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) RemoveLine(ctx context.Context, chart, name string) error {
	var errs []error
	for _, s := range f {
		if err := s.RemoveLine(ctx, chart, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder observes surface calls. metrics.Metrics implements it.
type Recorder interface {
	ObserveSurface(surface, op string, err error)
}

type instrumented struct {
	name string
	next Surface
	rec  Recorder
}

// Instrument reports every call on s to rec under the given surface name.
func Instrument(name string, s Surface, rec Recorder) Surface {
	if rec == nil {
		return s
	}
	return &instrumented{name: name, next: s, rec: rec}
}

func (i *instrumented) SetLine(ctx context.Context, line Line) error {
	err := i.next.SetLine(ctx, line)
	i.rec.ObserveSurface(i.name, "set", err)
	return err
}

func (i *instrumented) RemoveLine(ctx context.Context, chart, name string) error {
	err := i.next.RemoveLine(ctx, chart, name)
	i.rec.ObserveSurface(i.name, "remove", err)
	return err
}
