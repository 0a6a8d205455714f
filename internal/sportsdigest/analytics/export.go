package analytics

import (
	"fmt"
	"io"
	"os"

	"github.com/tealeg/xlsx/v3"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
)

var exportHeaders = []string{
	"Newsletter", "Title", "Total", "Delivered", "Opened", "Clicked", "Failed", "Bounced",
	"Delivery %", "Open %", "Click %", "Bounce %", "Updated",
}

// WriteXLSX writes rows as a single "Analytics" sheet.
func WriteXLSX(w io.Writer, rows []model.NewsletterAnalytics) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Analytics")
	if err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range exportHeaders {
		header.AddCell().Value = h
	}

	for _, a := range rows {
		row := sheet.AddRow()
		row.AddCell().Value = a.NewsletterID
		row.AddCell().Value = a.Title
		for _, n := range []int{a.TotalSent, a.Delivered, a.Opened, a.Clicked, a.Failed, a.Bounced} {
			row.AddCell().SetInt(n)
		}
		for _, r := range []float64{a.DeliveryRate, a.OpenRate, a.ClickRate, a.BounceRate} {
			row.AddCell().SetFloatWithFormat(r, "0.00")
		}
		if a.UpdatedAt.IsZero() {
			row.AddCell()
		} else {
			row.AddCell().SetDate(a.UpdatedAt)
		}
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// ExportXLSX writes rows to the file at path.
func ExportXLSX(path string, rows []model.NewsletterAnalytics) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteXLSX(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
