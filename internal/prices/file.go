package prices

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wonny/notes/backend/internal/contracts"
)

// recordFile is the on-disk form of price records. JSON files decode too,
// since JSON is a subset of YAML.
type recordFile struct {
	Records []recordDocument `yaml:"records"`
}

type recordDocument struct {
	FullTicker   string          `yaml:"fullTicker"`
	CurrentPrice float64         `yaml:"currentPrice"`
	PriceDate    string          `yaml:"priceDate"`
	History      []pointDocument `yaml:"history"`
}

type pointDocument struct {
	Date          string  `yaml:"date"`
	Close         float64 `yaml:"close"`
	AdjustedClose float64 `yaml:"adjustedClose"`
}

// LoadFile reads price records from a YAML or JSON file
func LoadFile(path string) ([]contracts.PriceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price file: %w", err)
	}
	return DecodeRecords(bytes.NewReader(data))
}

// DecodeRecords parses price records; history is normalized on read
func DecodeRecords(r io.Reader) ([]contracts.PriceRecord, error) {
	var file recordFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode price records: %w", err)
	}

	out := make([]contracts.PriceRecord, 0, len(file.Records))
	for _, doc := range file.Records {
		ticker := strings.ToUpper(strings.TrimSpace(doc.FullTicker))
		if ticker == "" {
			return nil, fmt.Errorf("price record without fullTicker")
		}
		record := contracts.PriceRecord{FullTicker: ticker, CurrentPrice: doc.CurrentPrice}

		if doc.PriceDate != "" {
			d, err := contracts.ParseDate(doc.PriceDate)
			if err != nil {
				return nil, fmt.Errorf("%s priceDate: %w", ticker, err)
			}
			record.PriceDate = d
		}
		for _, p := range doc.History {
			d, err := contracts.ParseDate(p.Date)
			if err != nil {
				return nil, fmt.Errorf("%s history date: %w", ticker, err)
			}
			record.History = append(record.History, contracts.PricePoint{Date: d, Close: p.Close, AdjustedClose: p.AdjustedClose})
		}
		record.History = contracts.NewPriceHistory(ticker, record.History).Points
		out = append(out, record)
	}
	return out, nil
}
