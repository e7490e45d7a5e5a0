// Package report renders revenue and occupancy PDFs.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

const (
	pageMargin = 15.0
	dateLayout = "02/01/2006"
)

func newDocument(title, lotName, period string) (*fpdf.Fpdf, func(string) string) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(title+" - "+lotName), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, tr(lotName), "", 1, "L", false, 0, "")
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 6, tr(period), "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)
	return pdf, tr
}

type bar struct {
	label string
	value float64
}

// barChart draws vertical bars scaled to the largest value.
func barChart(pdf *fpdf.Fpdf, tr func(string) string, title string, bars []bar, height float64, valueFmt func(float64) string) {
	pageW, _ := pdf.GetPageSize()
	width := pageW - 2*pageMargin
	x0 := pageMargin
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, tr(title), "", 1, "L", false, 0, "")
	y0 := pdf.GetY() + 4

	maxV := 0.0
	for _, b := range bars {
		if b.value > maxV {
			maxV = b.value
		}
	}
	pdf.SetDrawColor(160, 160, 160)
	pdf.Line(x0, y0+height, x0+width, y0+height)
	if len(bars) == 0 || maxV == 0 {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.Text(x0, y0+height/2, tr("Sin datos para el período"))
		pdf.SetY(y0 + height + 8)
		return
	}

	slot := width / float64(len(bars))
	barW := slot * 0.7
	pdf.SetFillColor(46, 125, 200)
	pdf.SetFont("Helvetica", "", 6)
	for i, b := range bars {
		h := height * b.value / maxV
		x := x0 + float64(i)*slot + (slot-barW)/2
		pdf.Rect(x, y0+height-h, barW, h, "F")
		if valueFmt != nil && b.value > 0 {
			pdf.SetXY(x-2, y0+height-h-4)
			pdf.CellFormat(barW+4, 3, valueFmt(b.value), "", 0, "C", false, 0, "")
		}
		pdf.SetXY(x-2, y0+height+1)
		pdf.CellFormat(barW+4, 3, tr(b.label), "", 0, "C", false, 0, "")
	}
	pdf.SetY(y0 + height + 8)
}

func money(d decimal.Decimal) string {
	return "$ " + d.StringFixed(2)
}

// RevenuePDF writes the revenue report for d.
func RevenuePDF(w io.Writer, d RevenueData) error {
	period := fmt.Sprintf("Período %s al %s", d.From.Format(dateLayout), d.To.Format(dateLayout))
	pdf, tr := newDocument("Reporte de recaudación", d.LotName, period)

	cols := append([]string{"Día", "Operaciones"}, d.Methods...)
	cols = append(cols, "Total")
	pageW, _ := pdf.GetPageSize()
	colW := (pageW - 2*pageMargin) / float64(len(cols))

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, c := range cols {
		pdf.CellFormat(colW, 7, tr(strings.ToUpper(c[:1])+c[1:]), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	bars := make([]bar, 0, len(d.Days))
	for _, day := range d.Days {
		pdf.CellFormat(colW, 6, day.Day, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colW, 6, fmt.Sprint(day.Count), "1", 0, "R", false, 0, "")
		for _, m := range d.Methods {
			pdf.CellFormat(colW, 6, money(day.ByMethod[m]), "1", 0, "R", false, 0, "")
		}
		pdf.CellFormat(colW, 6, money(day.Total), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)

		label := day.Day
		if len(label) == len("2006-01-02") {
			label = label[8:10] + "/" + label[5:7]
		}
		bars = append(bars, bar{label: label, value: day.Total.InexactFloat64()})
	}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(colW, 7, "Total", "1", 0, "L", true, 0, "")
	pdf.CellFormat(colW, 7, fmt.Sprint(d.Count), "1", 0, "R", true, 0, "")
	for _, m := range d.Methods {
		sum := decimal.Zero
		for _, day := range d.Days {
			sum = sum.Add(day.ByMethod[m])
		}
		pdf.CellFormat(colW, 7, money(sum), "1", 0, "R", true, 0, "")
	}
	pdf.CellFormat(colW, 7, money(d.Total), "1", 0, "R", true, 0, "")
	pdf.Ln(12)

	barChart(pdf, tr, "Recaudación diaria", bars, 60, func(v float64) string { return fmt.Sprintf("%.0f", v) })
	return pdf.Output(w)
}

// OccupancyPDF writes the occupancy report for d.
func OccupancyPDF(w io.Writer, d OccupancyData) error {
	period := fmt.Sprintf("Período %s al %s", d.From.Format(dateLayout), d.To.Format(dateLayout))
	pdf, tr := newDocument("Reporte de ocupación", d.LotName, period)

	pdf.SetFont("Helvetica", "", 10)
	lines := []string{
		fmt.Sprintf("Plazas: %d", d.Capacity),
		fmt.Sprintf("Ingresos: %d", d.Entries),
		fmt.Sprintf("Estadía promedio: %s", formatDuration(d.AvgStay)),
	}
	peak, peakHour := 0.0, 0
	for h, v := range d.HourlyAvg {
		if v > peak {
			peak, peakHour = v, h
		}
	}
	if peak > 0 {
		lines = append(lines, fmt.Sprintf("Hora pico: %02d:00 (%.1f vehículos en promedio)", peakHour, peak))
	}
	for _, l := range lines {
		pdf.CellFormat(0, 6, tr(l), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	bars := make([]bar, 24)
	for h, v := range d.HourlyAvg {
		bars[h] = bar{label: fmt.Sprintf("%02d", h), value: v}
	}
	barChart(pdf, tr, "Vehículos promedio por hora del día", bars, 70, func(v float64) string { return fmt.Sprintf("%.1f", v) })
	return pdf.Output(w)
}

func formatDuration(d time.Duration) string {
	m := int(d.Minutes())
	if m <= 0 {
		return "-"
	}
	return fmt.Sprintf("%dh %02dm", m/60, m%60)
}
