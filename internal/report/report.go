// Package report renders the PDF intake summary the reviewing doctor receives
// for every submitted order.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/signintech/gopdf"
	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/domain/intake"
)

// ErrNoFont is returned when none of the configured font files can be loaded.
var ErrNoFont = errors.New("no usable TTF font")

// DefaultFontPaths are tried in order when no font is configured.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

const (
	fontFamily = "DejaVu"
	textWidth  = 500
)

// Block is one styled paragraph of the report.
type Block struct {
	Size float64
	Text string
	Gap  float64 // space after the block
}

// Renderer draws intake reports.
type Renderer struct {
	fontPaths []string
	logger    *zap.Logger
}

// NewRenderer creates a renderer. An empty fontPaths uses DefaultFontPaths.
func NewRenderer(fontPaths []string, logger *zap.Logger) *Renderer {
	if len(fontPaths) == 0 {
		fontPaths = DefaultFontPaths
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{fontPaths: fontPaths, logger: logger}
}

// Render returns the PDF for order.
func (r *Renderer) Render(order *intake.Order) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.SetMargins(40, 40, 40, 40)
	pdf.AddPage()

	if err := r.loadFont(&pdf); err != nil {
		return nil, err
	}

	for _, b := range Blocks(order) {
		if err := pdf.SetFont(fontFamily, "", b.Size); err != nil {
			return nil, err
		}
		lines, err := pdf.SplitText(b.Text, textWidth)
		if err != nil {
			lines = []string{b.Text}
		}
		for _, l := range lines {
			if pdf.GetY() > gopdf.PageSizeA4.H-60 {
				pdf.AddPage()
			}
			pdf.Cell(nil, l)
			pdf.Br(b.Size + 3)
		}
		pdf.Br(b.Gap)
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) loadFont(pdf *gopdf.GoPdf) error {
	var lastErr error
	for _, path := range r.fontPaths {
		err := pdf.AddTTFFont(fontFamily, path)
		if err == nil {
			r.logger.Debug("report font loaded", zap.String("path", path))
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("%w: last error: %v", ErrNoFont, lastErr)
}

// Blocks lays out the report content for order.
func Blocks(order *intake.Order) []Block {
	const (
		title   = 20
		heading = 14
		body    = 11
	)
	a := order.Answers
	blocks := []Block{
		{Size: title, Text: "Cannabis therapy intake", Gap: 12},
		{Size: body, Text: "Order: " + order.ID},
		{Size: body, Text: "Session: " + order.SessionID},
		{Size: body, Text: "Submitted: " + order.SubmittedAt.UTC().Format(time.RFC1123)},
		{Size: body, Text: "Treatment: " + treatmentLabel(order.Treatment), Gap: 12},
	}

	blocks = append(blocks, Block{Size: heading, Text: "Items", Gap: 2})
	for _, l := range order.Quote.Lines {
		text := fmt.Sprintf("- %s (%s): %d %s x %s = %s",
			l.Name, l.PharmacyID, l.Quantity, l.Unit, l.UnitPrice.Display(), l.Total.Display())
		if l.Fallback {
			text += " [list price pending]"
		}
		blocks = append(blocks, Block{Size: body, Text: text})
	}
	q := order.Quote
	blocks = append(blocks,
		Block{Size: body, Text: "Subtotal: " + q.Subtotal.Display()},
		Block{Size: body, Text: "Prescription fee: " + q.PrescriptionFee.Display()},
		Block{Size: body, Text: "Shipping: " + q.ShippingFee.Display()},
		Block{Size: body, Text: "Total: " + q.GrandTotal.Display(), Gap: 12},
	)

	blocks = append(blocks, Block{Size: heading, Text: "Screening", Gap: 2},
		Block{Size: body, Text: "Over 21: " + a.Exclusion.IsOver21.String()},
		Block{Size: body, Text: "Pregnant or nursing: " + a.Exclusion.PregnantOrNursing.String()},
		Block{Size: body, Text: "Psychotic disorder: " + a.Exclusion.PsychoticDisorder.String()},
		Block{Size: body, Text: "Severe heart disease: " + a.Exclusion.SevereHeartDisease.String(), Gap: 12},
	)

	if len(order.Flags) > 0 {
		blocks = append(blocks, Block{Size: heading, Text: "Flags for review", Gap: 2})
		for _, f := range order.Flags {
			blocks = append(blocks, Block{Size: body, Text: "! " + f})
		}
		blocks[len(blocks)-1].Gap = 12
	}

	if order.SkipQuestionnaire {
		fb := a.Feedback
		blocks = append(blocks, Block{Size: heading, Text: "Follow-up feedback", Gap: 2},
			Block{Size: body, Text: fmt.Sprintf("Satisfaction: %d/5", fb.Satisfaction)},
			Block{Size: body, Text: "Symptoms improved: " + fb.SymptomsImprove.String()},
			Block{Size: body, Text: "Side effects: " + fb.SideEffects.String()},
			Block{Size: body, Text: "Wants dose change: " + fb.WantsDoseChange.String()},
		)
		if fb.Comments != "" {
			blocks = append(blocks, Block{Size: body, Text: "Comments: " + fb.Comments})
		}
		return blocks
	}

	sy := a.Symptoms
	blocks = append(blocks, Block{Size: heading, Text: "Symptoms", Gap: 2},
		Block{Size: body, Text: "Complaints: " + symptomList(sy)},
		Block{Size: body, Text: fmt.Sprintf("Intensity: %d/10, for %d months", sy.Intensity, sy.DurationMonths)},
	)
	if sy.Description != "" {
		blocks = append(blocks, Block{Size: body, Text: sy.Description})
	}
	blocks = append(blocks,
		Block{Size: heading, Text: "Prior therapies", Gap: 2},
		Block{Size: body, Text: therapyList(a.Therapies), Gap: 12},
		Block{Size: heading, Text: "Medication", Gap: 2},
		Block{Size: body, Text: "Takes medication: " + a.Conditions.TakesMedication.String()},
	)
	if a.Conditions.Medications != "" {
		blocks = append(blocks, Block{Size: body, Text: "Medications: " + a.Conditions.Medications})
	}
	if a.Conditions.Allergies != "" {
		blocks = append(blocks, Block{Size: body, Text: "Allergies: " + a.Conditions.Allergies})
	}
	blocks = append(blocks,
		Block{Size: heading, Text: "Cannabis experience", Gap: 2},
		Block{Size: body, Text: "Used before: " + a.Experience.HasUsedCannabis.String()},
	)
	if a.Experience.Frequency != "" {
		blocks = append(blocks, Block{Size: body, Text: "Frequency: " + a.Experience.Frequency})
	}
	return blocks
}

func treatmentLabel(t intake.TreatmentType) string {
	if t == intake.TreatmentFollowUp {
		return "follow-up prescription"
	}
	return "initial prescription"
}

func symptomList(s intake.Symptoms) string {
	g := s.Groups
	var out []string
	for _, c := range []struct {
		on   bool
		name string
	}{
		{g.ChronicPain, "chronic pain"},
		{g.Migraine, "migraine"},
		{g.SleepDisorder, "sleep disorder"},
		{g.Anxiety, "anxiety"},
		{g.ADHD, "ADHD"},
		{g.AppetiteLoss, "appetite loss"},
		{g.Spasticity, "spasticity"},
	} {
		if c.on {
			out = append(out, c.name)
		}
	}
	if g.Other {
		out = append(out, "other: "+s.OtherText)
	}
	if len(out) == 0 {
		return "none"
	}
	return strings.Join(out, ", ")
}

func therapyList(t intake.Therapies) string {
	var out []string
	for _, c := range []struct {
		on   bool
		name string
	}{
		{t.Painkillers, "painkillers"},
		{t.Antidepressants, "antidepressants"},
		{t.Physiotherapy, "physiotherapy"},
		{t.Psychotherapy, "psychotherapy"},
		{t.SleepMedication, "sleep medication"},
	} {
		if c.on {
			out = append(out, c.name)
		}
	}
	if len(out) == 0 {
		return "none"
	}
	return strings.Join(out, ", ")
}

// Sink receives rendered reports.
type Sink interface {
	Store(ctx context.Context, name string, pdf []byte) error
}

// DirSink writes reports into a directory.
type DirSink struct {
	Dir string
}

// Store writes the report atomically via a temporary file.
func (d DirSink) Store(_ context.Context, name string, pdf []byte) error {
	if err := os.MkdirAll(d.Dir, 0o750); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	tmp, err := os.CreateTemp(d.Dir, ".report-*")
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(pdf); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(d.Dir, filepath.Base(name)))
}

// FileName is the report name for an order.
func FileName(order *intake.Order) string {
	return fmt.Sprintf("intake_%s.pdf", order.ID)
}
