package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gocarina/gocsv"
)

// SampleRow is a gocsv-tagged struct used to synthesize realistic sample
// spreadsheets for tests and benchmarks.
type SampleRow struct {
	Region string `csv:"region"`
	Unit   string `csv:"unit"`
	Date   string `csv:"date"`
	Units  string `csv:"units"`
	Valor  string `csv:"valor"`
}

// GenerateSampleCSV synthesizes n rows of realistic tabular data and encodes
// them back to CSV bytes via gocsv's struct-tag marshaling, for use as test
// fixtures or benchmarks.
func GenerateSampleCSV(seed int64, n int) ([]byte, error) {
	faker := gofakeit.New(seed)
	regions := []string{"N", "NE", "S", "SE", "CO"}

	rows := make([]*SampleRow, n)
	for i := 0; i < n; i++ {
		amount := faker.Price(10, 5000)
		units := faker.Number(1, 100)
		d := faker.DateRange(time.Now().AddDate(-1, 0, 0), time.Now())
		rows[i] = &SampleRow{
			Region: regions[faker.Number(0, len(regions)-1)],
			Unit:   faker.Word(),
			Date:   d.Format("2006-01-02"),
			Units:  fmt.Sprintf("%d", units),
			Valor:  fmt.Sprintf("%.2f", amount),
		}
	}

	out, err := gocsv.MarshalBytes(rows)
	if err != nil {
		return nil, err
	}
	return normalizeCSVDelimiter(out)
}

// normalizeCSVDelimiter is a no-op pass that re-encodes gocsv's default
// comma-delimited output through the stdlib writer, keeping fixture
// generation independent of gocsv's internal quoting choices.
func normalizeCSVDelimiter(in []byte) ([]byte, error) {
	r := csv.NewReader(bytes.NewReader(in))
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
