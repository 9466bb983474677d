// Package tui is a terminal front end for the intake wizard.
//
// Every step is a huh form rendered inside a bubbletea program. Screens only
// see Props: a copy of the state plus callbacks. They never hold the
// controller, so the same screens work against a local session or a remote one.
package tui

import (
	"context"

	"github.com/drfirst/go-intake/internal/domain/catalog"
	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/domain/pricing"
)

// Props is everything a screen may read or call.
type Props struct {
	State   intake.State
	View    intake.View
	Catalog *catalog.Snapshot
	Quote   *pricing.Quote

	Dispatch func(intake.Action) error
	OnNext   func() error
	OnBack   func() error
	OnSkip   func() error
}

// Session is the part of the controller the wizard drives.
type Session interface {
	State() intake.State
	View() intake.View
	Catalog() *catalog.Snapshot
	Dispatch(ctx context.Context, a intake.Action) (intake.State, error)
	Next(ctx context.Context) (intake.State, error)
	Back(ctx context.Context) (intake.State, error)
	SkipToFeedback(ctx context.Context) (intake.State, error)
}

// NewProps snapshots the session and binds the callbacks to ctx.
func NewProps(ctx context.Context, s Session) Props {
	view := s.View()
	return Props{
		State:   s.State(),
		View:    view,
		Catalog: s.Catalog(),
		Quote:   view.Quote,
		Dispatch: func(a intake.Action) error {
			_, err := s.Dispatch(ctx, a)
			return err
		},
		OnNext: func() error {
			_, err := s.Next(ctx)
			return err
		},
		OnBack: func() error {
			_, err := s.Back(ctx)
			return err
		},
		OnSkip: func() error {
			_, err := s.SkipToFeedback(ctx)
			return err
		},
	}
}
