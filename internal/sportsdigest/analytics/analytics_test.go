package analytics

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v3"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name  string
		stats model.DeliveryStats
		want  [4]float64 // delivery, open, click, bounce
	}{
		{"empty", model.DeliveryStats{}, [4]float64{0, 0, 0, 0}},
		{"typical", model.DeliveryStats{Total: 4, Sent: 3, Failed: 1, Opened: 2, Clicked: 1}, [4]float64{75, 66.67, 33.33, 0}},
		{"bounced", model.DeliveryStats{Total: 10, Sent: 8, Bounced: 2, Opened: 8}, [4]float64{80, 100, 0, 20}},
		{"nothing delivered", model.DeliveryStats{Total: 2, Failed: 2}, [4]float64{0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Calculate("n1", tt.stats)
			assert.Equal(t, "n1", a.NewsletterID)
			assert.Equal(t, tt.stats.Total, a.TotalSent)
			assert.Equal(t, tt.stats.Sent, a.Delivered)
			assert.Equal(t, tt.want, [4]float64{a.DeliveryRate, a.OpenRate, a.ClickRate, a.BounceRate})
		})
	}
}

type fakeStore struct {
	sent  []*model.Newsletter
	stats map[string]*model.DeliveryStats
	saved []model.NewsletterAnalytics
	since time.Time
}

func (f *fakeStore) SentNewslettersSince(_ context.Context, since time.Time) ([]*model.Newsletter, error) {
	f.since = since
	return f.sent, nil
}

func (f *fakeStore) DeliveryStats(_ context.Context, id string) (*model.DeliveryStats, error) {
	s, ok := f.stats[id]
	if !ok {
		return nil, errors.New("no stats")
	}
	return s, nil
}

func (f *fakeStore) SaveAnalytics(_ context.Context, a *model.NewsletterAnalytics) error {
	f.saved = append(f.saved, *a)
	return nil
}

func TestRecompute(t *testing.T) {
	now := time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC)
	st := &fakeStore{
		sent: []*model.Newsletter{{ID: "a", Title: "Week 9"}, {ID: "broken"}, {ID: "b", Title: "Week 10"}},
		stats: map[string]*model.DeliveryStats{
			"a": {Total: 2, Sent: 2, Opened: 1},
			"b": {Total: 1, Sent: 1, Opened: 1, Clicked: 1},
		},
	}
	c := NewCalculator(st)
	c.now = func() time.Time { return now }

	out, err := c.Recompute(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -7), st.since)
	require.Len(t, out, 2)
	assert.Equal(t, "Week 9", out[0].Title)
	assert.Equal(t, 50.0, out[0].OpenRate)
	assert.Equal(t, 100.0, out[1].ClickRate)
	assert.Len(t, st.saved, 2)
}

func TestWriteXLSX(t *testing.T) {
	rows := []model.NewsletterAnalytics{
		{NewsletterID: "n1", Title: "Week 1, 2024", TotalSent: 4, Delivered: 3, DeliveryRate: 75, OpenRate: 66.67,
			UpdatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{NewsletterID: "n2", Title: "Week 2, 2024"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, rows))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	sheet, ok := f.Sheet["Analytics"]
	require.True(t, ok)
	assert.Equal(t, 3, sheet.MaxRow)

	head, err := sheet.Cell(0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Newsletter", head.Value)
	title, err := sheet.Cell(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "Week 1, 2024", title.Value)
	total, err := sheet.Cell(1, 2)
	require.NoError(t, err)
	n, err := total.Int()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestExportXLSXFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analytics.xlsx")
	require.NoError(t, ExportXLSX(path, nil))
	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Sheets, 1)

	assert.Error(t, ExportXLSX(filepath.Join(t.TempDir(), "missing", "x.xlsx"), nil))
}
