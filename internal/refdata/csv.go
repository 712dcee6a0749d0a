package refdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/nyctaxi/taxietl/internal/errs"
	"github.com/nyctaxi/taxietl/pkg/models"
)

// LoadZoneLookupCSV reads the 4-column taxi zone lookup CSV (header:
// LocationID,Borough,Zone,service_zone), dropping any row missing one
// of the four fields. The TLC zone lookup has exactly 263 surviving rows
// for the current TLC vintage; callers decide what to do if the count
// differs (the reference loader logs it, it is not itself a failure).
func LoadZoneLookupCSV(path string) ([]models.ZoneLookup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.Reference, fmt.Errorf("open zone lookup csv: %w", err))
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, errs.New(errs.Reference, fmt.Errorf("read zone lookup header: %w", err))
	}
	col := columnIndex(header)

	var rows []models.ZoneLookup
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.New(errs.Reference, fmt.Errorf("read zone lookup row: %w", err))
		}

		locationIDRaw := field(rec, col, "locationid")
		borough := field(rec, col, "borough")
		zone := field(rec, col, "zone")
		serviceZone := field(rec, col, "service_zone")

		if locationIDRaw == "" || borough == "" || zone == "" || serviceZone == "" {
			continue
		}
		locationID, err := strconv.Atoi(locationIDRaw)
		if err != nil {
			continue
		}

		rows = append(rows, models.ZoneLookup{
			LocationID:  int32(locationID),
			Borough:     borough,
			Zone:        zone,
			ServiceZone: serviceZone,
		})
	}
	return rows, nil
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return idx
}

func field(rec []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
