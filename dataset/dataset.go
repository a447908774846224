// Package dataset reads question/answer datasets and synonym mappings.
package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/kgchat/graph"
)

// ErrUnsupportedFormat is returned for file extensions no reader handles.
var ErrUnsupportedFormat = errors.New("unsupported dataset format")

// LoadQA reads an ordered list of question/answer pairs from a .json, .yaml,
// .yml or .xlsx file. Records with an empty question or answer are dropped.
func LoadQA(path string) ([]graph.QA, error) {
	var (
		records []graph.QA
		err     error
	)
	switch ext(path) {
	case "json":
		err = decodeFile(path, func(b []byte) error { return json.Unmarshal(b, &records) })
	case "yaml", "yml":
		err = decodeFile(path, func(b []byte) error { return yaml.Unmarshal(b, &records) })
	case "xlsx":
		records, err = loadQASheet(path)
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%s", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading QA dataset %s", path)
	}

	out := records[:0]
	for _, r := range records {
		r.Question = strings.TrimSpace(r.Question)
		r.Answer = strings.TrimSpace(r.Answer)
		if r.Question == "" || r.Answer == "" {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// loadQASheet reads the first sheet. The header row names the Question and
// Answer columns, matched case-insensitively.
func loadQASheet(path string) ([]graph.QA, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening XLSX")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "reading sheet %s", sheets[0])
	}
	if len(rows) == 0 {
		return nil, nil
	}

	qCol, aCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "question":
			qCol = i
		case "answer":
			aCol = i
		}
	}
	if qCol < 0 || aCol < 0 {
		return nil, errors.Newf("sheet %s needs Question and Answer header columns", sheets[0])
	}

	var out []graph.QA
	for _, row := range rows[1:] {
		out = append(out, graph.QA{Question: cell(row, qCol), Answer: cell(row, aCol)})
	}
	return out, nil
}

// cell guards against short rows; excelize trims trailing empty cells.
func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// LoadSynonyms reads a canonical term to synonyms mapping from .json, .yaml
// or .yml.
func LoadSynonyms(path string) (map[string][]string, error) {
	var m map[string][]string
	var err error
	switch ext(path) {
	case "json":
		err = decodeFile(path, func(b []byte) error { return json.Unmarshal(b, &m) })
	case "yaml", "yml":
		err = decodeFile(path, func(b []byte) error { return yaml.Unmarshal(b, &m) })
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%s", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading synonyms %s", path)
	}
	if m == nil {
		m = map[string][]string{}
	}
	return m, nil
}

// SortedKeys returns the canonical terms of a synonym mapping in order.
func SortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func decodeFile(path string, decode func([]byte) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return decode(data)
}

func ext(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
