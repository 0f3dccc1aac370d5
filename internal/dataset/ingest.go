package dataset

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Column order of the measurement files.
const (
	colCylinders = iota
	colRatio
	colThrottle
	colTorque
	colFuel
)

// maxLineBytes caps a single input line.
const maxLineBytes = 1 << 20

// Report summarises one ingestion pass.
type Report struct {
	Points     []DataPoint `json:"-"`
	Delimiter  string      `json:"delimiter"`
	Parsed     int         `json:"parsed"`
	Duplicates int         `json:"duplicates"`
	Skipped    int         `json:"skipped"`
	Rejected   int         `json:"rejected"`
}

// Accepted returns the number of points kept after deduplication.
func (r Report) Accepted() int { return len(r.Points) }

// String formats the report the way it is shown in the run log.
func (r Report) String() string {
	return fmt.Sprintf("Loaded: %d rows (%d duplicates removed)", len(r.Points), r.Duplicates)
}

// DetectDelimiter picks tab when the header line has more tabs than commas,
// comma otherwise.
func DetectDelimiter(header string) string {
	if strings.Count(header, "\t") > strings.Count(header, ",") {
		return "\t"
	}
	return ","
}

// Parse reads a delimited measurement file. The first line is a header and
// is used only to detect the delimiter. Columns are cylinders, ratio,
// throttle, torque, fuel.
//
// Rows missing a numeric cylinders, ratio, throttle or fuel value are
// skipped. Rows the model cannot evaluate (non-positive ratio, infinities)
// are rejected. Remaining rows are deduplicated by (cylinders, ratio,
// throttle); the first occurrence wins.
func Parse(r io.Reader) (Report, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var rep Report
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return rep, fmt.Errorf("read header: %w", err)
		}
		rep.Delimiter = ","
		return rep, nil
	}
	rep.Delimiter = DetectDelimiter(scanner.Text())

	seen := make(map[Key]struct{})
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		d, ok := parseRow(line, rep.Delimiter)
		if !ok {
			rep.Skipped++
			continue
		}
		rep.Parsed++
		if err := d.Validate(); err != nil {
			rep.Rejected++
			continue
		}
		if _, dup := seen[d.Key()]; dup {
			rep.Duplicates++
			continue
		}
		seen[d.Key()] = struct{}{}
		rep.Points = append(rep.Points, d)
	}
	if err := scanner.Err(); err != nil {
		return rep, fmt.Errorf("read rows: %w", err)
	}
	return rep, nil
}

func parseRow(line, delim string) (DataPoint, bool) {
	fields := strings.Split(line, delim)
	values := make([]float64, colFuel+1)
	valid := make([]bool, colFuel+1)
	for i := range values {
		if i >= len(fields) {
			break
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		if err != nil {
			continue
		}
		values[i] = v
		valid[i] = true
	}
	for _, col := range []int{colCylinders, colRatio, colThrottle, colFuel} {
		if !valid[col] {
			return DataPoint{}, false
		}
	}
	return DataPoint{
		Cylinders: values[colCylinders],
		Ratio:     values[colRatio],
		Throttle:  values[colThrottle],
		Torque:    values[colTorque],
		Fuel:      values[colFuel],
	}, true
}
