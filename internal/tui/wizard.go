package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/drfirst/go-intake/internal/domain/intake"
)

// submittedMsg carries the result of a checkout that ran in the background.
type submittedMsg struct {
	err error
}

// Wizard is the bubbletea model driving one intake session.
type Wizard struct {
	ctx     context.Context
	session Session

	props      Props
	screen     *screen
	spinner    spinner.Model
	submitting bool
	err        error
	cancelled  bool
	width      int
	height     int
}

// NewWizard creates a wizard for session. ctx bounds every session call,
// including the order submission.
func NewWizard(ctx context.Context, session Session) *Wizard {
	w := &Wizard{
		ctx:     ctx,
		session: session,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("63"))),
		),
	}
	w.refresh()
	return w
}

// Outcome returns the outcome of the session as last seen by the wizard.
func (w *Wizard) Outcome() intake.Outcome { return w.props.State.Outcome }

// Cancelled reports whether the user quit before the intake ended.
func (w *Wizard) Cancelled() bool { return w.cancelled }

func (w *Wizard) refresh() {
	w.props = NewProps(w.ctx, w.session)
	w.screen = newScreen(w.props)
}

func (w *Wizard) initScreen() tea.Cmd {
	if w.screen == nil {
		return nil
	}
	return w.screen.form.Init()
}

// Init implements tea.Model
func (w *Wizard) Init() tea.Cmd {
	return w.initScreen()
}

// Update implements tea.Model
func (w *Wizard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			w.cancelled = !w.props.State.Terminal()
			return w, tea.Quit
		}
		if w.submitting {
			return w, nil
		}
		if w.props.State.Terminal() {
			switch msg.String() {
			case "enter", "q", "esc":
				return w, tea.Quit
			}
			return w, nil
		}
		switch msg.String() {
		case "esc":
			if w.props.View.CanGoBack {
				return w, w.move(w.props.OnBack)
			}
		case "ctrl+f":
			if w.props.View.CanSkip {
				return w, w.move(w.props.OnSkip)
			}
		}
	case tea.WindowSizeMsg:
		w.width = msg.Width
		w.height = msg.Height
	case spinner.TickMsg:
		if !w.submitting {
			return w, nil
		}
		var cmd tea.Cmd
		w.spinner, cmd = w.spinner.Update(msg)
		return w, cmd
	case submittedMsg:
		w.submitting = false
		w.err = msg.err
		w.refresh()
		return w, w.initScreen()
	}

	if w.screen == nil || w.submitting {
		return w, nil
	}

	form, cmd := w.screen.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		w.screen.form = f
	}
	if w.screen.form.State == huh.StateCompleted {
		return w, w.submit(w.screen.actions(), w.screen.again != nil && w.screen.again())
	}
	return w, cmd
}

// move runs a navigation callback and rebuilds the screen.
func (w *Wizard) move(fn func() error) tea.Cmd {
	w.err = fn()
	w.refresh()
	return w.initScreen()
}

// submit dispatches the answers of the finished form. Unless again is set it
// then advances; at checkout the advance runs in the background while the
// wizard shows the submitting indicator.
func (w *Wizard) submit(actions []intake.Action, again bool) tea.Cmd {
	for _, a := range actions {
		if err := w.props.Dispatch(a); err != nil {
			w.err = err
			w.refresh()
			return w.initScreen()
		}
	}
	if again {
		w.err = nil
		w.refresh()
		return w.initScreen()
	}

	if w.props.View.Step == intake.StepCheckout {
		w.submitting = true
		w.err = nil
		next := w.props.OnNext
		return tea.Batch(w.spinner.Tick, func() tea.Msg {
			return submittedMsg{err: next()}
		})
	}
	return w.move(w.props.OnNext)
}

// View implements tea.Model
func (w *Wizard) View() string {
	if w.cancelled {
		return "Intake cancelled.\n"
	}

	st := w.props.State
	switch st.Outcome {
	case intake.OutcomeRejected:
		return rejectionView(st) + "\n"
	case intake.OutcomeCompleted:
		return completionView(w.props) + "\n"
	}

	var b strings.Builder
	v := w.props.View
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Step %d of %d: %s", v.StepIndex+1, v.TotalSteps+1, v.Title)))
	b.WriteString("\n")
	b.WriteString(progressBar(v.Progress, w.barWidth()))
	b.WriteString("\n\n")

	if w.submitting {
		b.WriteString(w.spinner.View())
		b.WriteString(" Submitting your order, please wait...\n")
		return b.String()
	}

	if w.screen != nil {
		b.WriteString(w.screen.form.View())
		b.WriteString("\n")
	}
	if msg := w.errorMessage(); msg != "" {
		b.WriteString(ErrorStyle.Render(msg))
		b.WriteString("\n")
	}
	b.WriteString(hintStyle.Render(hints(v)))
	b.WriteString("\n")
	return b.String()
}

func (w *Wizard) errorMessage() string {
	if w.err != nil {
		return w.err.Error()
	}
	return w.props.State.LastError
}

func (w *Wizard) barWidth() int {
	if w.width > 60 {
		return min(w.width/2, 60)
	}
	return 30
}

func hints(v intake.View) string {
	parts := []string{"enter continue"}
	if v.CanGoBack {
		parts = append(parts, "esc back")
	}
	if v.CanSkip {
		parts = append(parts, "ctrl+f skip to therapy feedback")
	}
	parts = append(parts, "ctrl+c quit")
	return strings.Join(parts, " · ")
}

func progressBar(percent, width int) string {
	percent = max(0, min(percent, 100))
	filled := width * percent / 100
	return progressFullStyle.Render(strings.Repeat("█", filled)) +
		progressEmptyStyle.Render(strings.Repeat("░", width-filled)) +
		SubtitleStyle.Render(fmt.Sprintf(" %d%%", percent))
}

func rejectionView(st intake.State) string {
	body := st.Notice
	if st.Redirect != "" {
		body += "\n\nYou will be returned to " + st.Redirect + "."
	}
	return NoticeStyle.Render(body) + "\n" + hintStyle.Render("press enter to leave")
}

func completionView(p Props) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s\n\n", p.State.OrderID)
	b.WriteString(quoteSummary(p.Quote))

	a := p.State.Answers
	fmt.Fprintf(&b, "\n\nPayment: %s", a.Checkout.PaymentMethod)
	if a.Delivery.Method == intake.DeliveryShipping {
		addr := a.Delivery.Address
		fmt.Fprintf(&b, "\nShipping to %s, %s, %s %s", addr.Name, addr.Street, addr.PostalCode, addr.City)
	} else {
		fmt.Fprintf(&b, "\nPickup at %s", strings.Join(pharmacyNames(p), ", "))
	}

	return SuccessStyle.Render("Thank you, your order was submitted.") + "\n\n" +
		SummaryStyle.Render(b.String()) + "\n" +
		hintStyle.Render("A doctor will review your request. Press enter to leave.")
}

func pharmacyNames(p Props) []string {
	ids := p.State.Selection.Pharmacies()
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if ph, ok := p.Catalog.Pharmacy(id); ok {
			names = append(names, ph.Name)
			continue
		}
		names = append(names, id)
	}
	return names
}
