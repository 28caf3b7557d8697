package leads

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"

	"campaign-console/internal/campaigns"
)

var (
	ErrUnsupportedFormat = errors.New("leads: unsupported file format")
	ErrNoContactColumn   = errors.New("leads: no phone number column found")
	ErrEmptySheet        = errors.New("leads: sheet has no rows")
)

// RowError explains why one sheet row was skipped. Row is 1-based and counts the header.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type Result struct {
	Leads   []campaigns.Lead
	Skipped []RowError
}

type Options struct {
	// DefaultCountryCode is prefixed to 10-digit numbers without one. Default "1".
	DefaultCountryCode string
}

type Parser struct {
	opts     Options
	validate *validator.Validate
}

func NewParser(opts Options) *Parser {
	if opts.DefaultCountryCode == "" {
		opts.DefaultCountryCode = "1"
	}
	return &Parser{opts: opts, validate: validator.New()}
}

// Parse reads a .csv or .xlsx lead sheet.
func (p *Parser) Parse(filename string, r io.Reader) (Result, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return p.ParseCSV(r)
	case ".xlsx", ".xlsm":
		return p.ParseXLSX(r)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

func (p *Parser) ParseCSV(r io.Reader) (Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return Result{}, fmt.Errorf("leads: read csv: %w", err)
	}
	return p.fromRows(rows)
}

// ParseXLSX reads the first sheet of a workbook.
func (p *Parser) ParseXLSX(r io.Reader) (Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Result{}, fmt.Errorf("leads: open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return Result{}, ErrEmptySheet
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return Result{}, fmt.Errorf("leads: read sheet %q: %w", sheet, err)
	}
	return p.fromRows(rows)
}

type columns struct {
	first, last, full, contact int
}

var headerAliases = map[string]string{
	"firstname":     "first",
	"first":         "first",
	"givenname":     "first",
	"lastname":      "last",
	"last":          "last",
	"surname":       "last",
	"familyname":    "last",
	"name":          "full",
	"fullname":      "full",
	"contactno":     "contact",
	"contact":       "contact",
	"contactnumber": "contact",
	"phone":         "contact",
	"phonenumber":   "contact",
	"mobile":        "contact",
	"number":        "contact",
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer(" ", "", "_", "", "-", "", ".", "").Replace(h)
}

func findColumns(header []string) (columns, error) {
	c := columns{first: -1, last: -1, full: -1, contact: -1}
	for i, h := range header {
		switch headerAliases[normalizeHeader(h)] {
		case "first":
			c.first = i
		case "last":
			c.last = i
		case "full":
			c.full = i
		case "contact":
			c.contact = i
		}
	}
	if c.contact < 0 {
		return c, ErrNoContactColumn
	}
	return c, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (p *Parser) fromRows(rows [][]string) (Result, error) {
	if len(rows) == 0 {
		return Result{}, ErrEmptySheet
	}
	cols, err := findColumns(rows[0])
	if err != nil {
		return Result{}, err
	}

	var out Result
	seen := map[string]int{}
	for i, row := range rows[1:] {
		rowNo := i + 2
		if isBlank(row) {
			continue
		}
		lead := campaigns.Lead{
			FirstName: cell(row, cols.first),
			LastName:  cell(row, cols.last),
			ContactNo: p.NormalizePhone(cell(row, cols.contact)),
		}
		if lead.FirstName == "" && cols.full >= 0 {
			lead.FirstName, lead.LastName = splitName(cell(row, cols.full))
		}
		if err := p.validate.Struct(lead); err != nil {
			out.Skipped = append(out.Skipped, RowError{Row: rowNo, Message: describe(err)})
			continue
		}
		if prev, dup := seen[lead.ContactNo]; dup {
			out.Skipped = append(out.Skipped, RowError{Row: rowNo, Message: fmt.Sprintf("duplicate of row %d", prev)})
			continue
		}
		seen[lead.ContactNo] = rowNo
		out.Leads = append(out.Leads, lead)
	}
	return out, nil
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func splitName(full string) (string, string) {
	first, last, _ := strings.Cut(strings.Join(strings.Fields(full), " "), " ")
	return first, last
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Field() {
	case "ContactNo":
		return "invalid phone number"
	case "FirstName":
		if fe.Tag() == "required" {
			return "missing name"
		}
		return "name too long"
	default:
		return strings.ToLower(fe.Field()) + " is invalid"
	}
}

// NormalizePhone strips formatting and returns an E.164 candidate.
func (p *Parser) NormalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	s := b.String()
	switch {
	case s == "":
		return ""
	case strings.HasPrefix(s, "+"):
		return s
	case strings.HasPrefix(s, "00"):
		return "+" + s[2:]
	case len(s) == 10:
		return "+" + p.opts.DefaultCountryCode + s
	default:
		return "+" + s
	}
}

// ToCSV encodes leads in the column layout the upload endpoint expects.
func ToCSV(leads []campaigns.Lead) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"firstName", "lastName", "contactNo"}); err != nil {
		return nil, err
	}
	for _, l := range leads {
		if err := w.Write([]string{l.FirstName, l.LastName, l.ContactNo}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
