package report

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/ad2cpgate/internal/common"
)

// SavePDF renders rep into a PDF document. A QR code of the input's sha256 is
// placed next to the summary when the hash is known.
func SavePDF(rep *Report, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Decode Report", false)
	pdf.SetAuthor("ad2cpctl", false)
	pdf.SetCreator("ad2cpctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "Decode Report")
	if err := addFingerprint(pdf, rep.Sha256); err != nil {
		common.Logf("report: skip fingerprint: %v", err)
	}
	addSummarySection(pdf, rep)
	for _, h := range rep.Heads {
		addHeadSection(pdf, h)
	}
	addUnknownSection(pdf, rep.UnknownIDs)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addFingerprint(pdf *gofpdf.Fpdf, sum string) error {
	if sum == "" {
		return nil
	}
	png, err := FingerprintQR(sum, 256)
	if err != nil {
		return err
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("fingerprint", opts, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	_, _, right, _ := pdf.GetMargins()
	pdf.ImageOptions("fingerprint", pageW-right-30, 20, 30, 30, false, opts, 0, "")
	return nil
}

func addSummarySection(pdf *gofpdf.Fpdf, rep *Report) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "Input", value: emptyFallback(rep.Input, "-")},
		{label: "Size", value: common.FormatBytes(rep.Bytes)},
		{label: "Byte order", value: rep.ByteOrder},
		{label: "Boundary", value: rep.Boundary},
		{label: "Records", value: strconv.Itoa(rep.Records)},
		{label: "Ensembles", value: fmt.Sprintf("%d of %d", rep.Ensembles, rep.Slots)},
		{label: "Index cache", value: yesNo(rep.CacheHit, "hit", "miss")},
		{label: "Truncated", value: yesNo(rep.Truncated, "yes", "no")},
		{label: "Short payloads", value: strconv.Itoa(rep.ShortPayloads)},
		{label: "Checksum failures", value: strconv.Itoa(rep.ChecksumFailures)},
		{label: "Duplicates", value: strconv.Itoa(rep.Duplicates)},
		{label: "Heads reduced", value: reducedLabel(rep)},
		{label: "Generated", value: rep.GeneratedAt.Format(time.RFC3339)},
	}
	for _, item := range items {
		pdf.CellFormat(45, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	if rep.Sha256 != "" {
		pdf.SetFont("Courier", "", 8)
		pdf.CellFormat(0, 5, "sha256 "+rep.Sha256, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addHeadSection(pdf *gofpdf.Fpdf, h HeadSummary) {
	title := "Head " + h.ID
	if h.Tag != "" {
		title += " (" + h.Tag + ")"
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(8)

	c := h.Config
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, fmt.Sprintf("%d ensembles, %d beams x %d cells, %s, cell %.2f m, blanking %.2f m, serial %d",
		h.Filled, c.NBeams, c.NCells, emptyFallback(c.CoordSys, "-"), c.CellSize, c.Blanking, c.SerialNumber), "", "L", false)
	if names := c.BurstConfig.Names(); len(names) > 0 {
		pdf.MultiCell(0, 5, "Blocks: "+strings.Join(names, ", "), "", "L", false)
	}
	pdf.Ln(2)

	headers := []string{"Channel", "Units", "Count", "Min", "Mean", "Max"}
	widths := []float64{36, 24, 20, 34, 34, 34}
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, hd := range headers {
		pdf.CellFormat(widths[i], 7, hd, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, ch := range h.Channels {
		values := []string{ch.Name, emptyFallback(ch.Units, "-"), strconv.Itoa(ch.Count), "-", "-", "-"}
		if ch.Count > 0 {
			values[3] = formatValue(ch.Min)
			values[4] = formatValue(ch.Mean)
			values[5] = formatValue(ch.Max)
		}
		renderTableRow(pdf, widths, values, 5)
	}
	pdf.Ln(4)
}

func addUnknownSection(pdf *gofpdf.Fpdf, unknown map[string]int) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Unknown records")
	pdf.Ln(9)

	pdf.SetFont("Helvetica", "", 11)
	if len(unknown) == 0 {
		pdf.MultiCell(0, 6, "None.", "", "L", false)
		return
	}
	ids := make([]string, 0, len(unknown))
	for id := range unknown {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		pdf.CellFormat(45, 6, id, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, strconv.Itoa(unknown[id]), "", 1, "L", false, 0, "")
	}
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func reducedLabel(rep *Report) string {
	switch {
	case rep.ReduceError != "":
		return "no: " + rep.ReduceError
	case rep.Reduced:
		return "yes"
	default:
		return "no"
	}
}

func yesNo(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
