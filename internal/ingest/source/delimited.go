package source

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/smallbiznis/catalogsync/internal/config"
)

var ErrEmptyArchive = errors.New("empty_archive")

// DelimitedAdapter reads flat files where every row is one product. Rows may
// pack all fields into the first column behind an inner separator.
type DelimitedAdapter struct {
	cfg   config.DelimitedConfig
	comma rune
}

func NewDelimitedAdapter(cfg config.DelimitedConfig) *DelimitedAdapter {
	return &DelimitedAdapter{cfg: cfg, comma: separator(cfg.Comma, '\t')}
}

func (a *DelimitedAdapter) Parse(payload []byte) (ParseResult, error) {
	data := payload
	if a.cfg.Zip {
		extracted, err := FirstZipEntry(payload)
		if err != nil {
			return ParseResult{}, err
		}
		data = extracted
	}

	reader, err := decodeReader(a.cfg.Encoding, bytes.NewReader(data))
	if err != nil {
		return ParseResult{}, err
	}

	cr := csv.NewReader(reader)
	cr.Comma = a.comma
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	minFields := a.cfg.MinFields
	if minFields <= 0 {
		minFields = len(a.cfg.Columns)
	}

	res := ParseResult{}
	headerPending := a.cfg.Header
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("read delimited: %w", err)
		}
		if headerPending {
			headerPending = false
			continue
		}

		fields := row
		if a.cfg.Inner != "" && len(row) > 0 {
			fields = strings.Split(row[0], a.cfg.Inner)
		}
		if len(fields) < minFields {
			res.Skipped++
			continue
		}

		record := make(RawRecord, len(a.cfg.Columns))
		for i, column := range a.cfg.Columns {
			if i < len(fields) {
				record[column] = strings.TrimSpace(fields[i])
			}
		}
		res.Records = append(res.Records, record)
	}
	return res, nil
}

// FirstZipEntry returns the contents of the first regular file in a ZIP archive.
func FirstZipEntry(payload []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip entry %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read zip entry %s: %w", f.Name, err)
		}
		return data, nil
	}
	return nil, ErrEmptyArchive
}

// separator accepts a literal character or the escaped forms YAML users tend to write.
func separator(value string, def rune) rune {
	switch value {
	case "":
		return def
	case `\t`, "tab":
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(value)
	if r == utf8.RuneError {
		return def
	}
	return r
}
