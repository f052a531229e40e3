// Package export writes catalog data to XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/boscod/trackwatch/internal/models"
	"github.com/xuri/excelize/v2"
)

// Sheet names in a catalog workbook.
const (
	SheetApplications = "Applications"
	SheetWebsites     = "Websites"
	SheetDevices      = "Devices"
)

// Catalog is the data written by WriteCatalog. Nil slices produce sheets
// with only a header row.
type Catalog struct {
	Applications []models.Application
	Websites     []models.Website
	Devices      []models.Device
}

var (
	applicationHeader = []any{"ID", "Process", "Name", "Category", "Productivity", "Sessions", "Usage (s)", "First seen", "Last seen"}
	websiteHeader     = []any{"ID", "Domain", "Title", "Category", "Visits", "Duration (s)", "First seen", "Last seen"}
	deviceHeader      = []any{"ID", "Machine", "Name", "Type", "Vendor", "Product", "Serial", "Permission", "First seen", "Last seen"}
)

// WriteCatalog renders c as a workbook with one sheet per catalog and
// writes it to w.
func WriteCatalog(w io.Writer, c Catalog) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetApplications); err != nil {
		return err
	}
	for _, name := range []string{SheetWebsites, SheetDevices} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E5E7EB"}},
	})
	if err != nil {
		return err
	}

	apps := make([][]any, 0, len(c.Applications))
	for _, a := range c.Applications {
		category := ""
		if a.Category != nil {
			category = a.Category.Name
		}
		apps = append(apps, []any{
			a.ID, a.ProcessName, str(a.Name), category, string(a.Productivity),
			a.TotalSessions, a.TotalUsageSeconds, stamp(a.FirstSeen), stamp(a.LastSeen),
		})
	}
	if err := writeSheet(f, SheetApplications, header, applicationHeader, apps); err != nil {
		return err
	}

	sites := make([][]any, 0, len(c.Websites))
	for _, s := range c.Websites {
		category := ""
		if s.Category != nil {
			category = s.Category.Name
		}
		sites = append(sites, []any{
			s.ID, s.Domain, str(s.Title), category,
			s.TotalVisits, s.TotalDurationSeconds, stamp(s.FirstSeen), stamp(s.LastSeen),
		})
	}
	if err := writeSheet(f, SheetWebsites, header, websiteHeader, sites); err != nil {
		return err
	}

	devices := make([][]any, 0, len(c.Devices))
	for _, d := range c.Devices {
		machine := ""
		if d.Machine != nil {
			machine = d.Machine.ExternalID
		}
		devices = append(devices, []any{
			d.ID, machine, d.Name, d.DeviceType, str(d.VendorID), str(d.ProductID), str(d.SerialNumber),
			string(d.Permission), stamp(d.FirstSeen), stamp(d.LastSeen),
		})
	}
	if err := writeSheet(f, SheetDevices, header, deviceHeader, devices); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, header []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
