package refdata

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"github.com/nyctaxi/taxietl/internal/errs"
	"github.com/nyctaxi/taxietl/pkg/models"
)

// ExtractZoneArchive unzips the shapefile archive (.shp/.shx/.dbf and
// friends) into destDir once, returning the path to the .shp
// component. A no-op if the .shp file is already present.
func ExtractZoneArchive(archivePath, destDir string) (string, error) {
	var shpPath string
	if entries, err := os.ReadDir(destDir); err == nil {
		for _, e := range entries {
			if strings.EqualFold(filepath.Ext(e.Name()), ".shp") {
				shpPath = filepath.Join(destDir, e.Name())
				break
			}
		}
	}
	if shpPath != "" {
		return shpPath, nil
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", errs.New(errs.Reference, fmt.Errorf("open zone archive: %w", err))
	}
	defer zr.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", errs.New(errs.Reference, fmt.Errorf("create zone extract dir: %w", err))
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := extractOne(f, destDir); err != nil {
			return "", errs.New(errs.Reference, fmt.Errorf("extract %s: %w", f.Name, err))
		}
		if strings.EqualFold(filepath.Ext(f.Name), ".shp") {
			shpPath = filepath.Join(destDir, filepath.Base(f.Name))
		}
	}
	if shpPath == "" {
		return "", errs.New(errs.Reference, fmt.Errorf("no .shp member found in %s", archivePath))
	}
	return shpPath, nil
}

func extractOne(f *zip.File, destDir string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(filepath.Join(destDir, filepath.Base(f.Name)))
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// LoadZoneShapes reads every polygon record from shpPath, reprojects
// its rings from EPSG:4326 to EPSG:2263 (NY State Plane Long Island,
// US feet), and returns one ZoneShape per record.
func LoadZoneShapes(shpPath string) ([]models.ZoneShape, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, errs.New(errs.Reference, fmt.Errorf("open shapefile: %w", err))
	}
	defer reader.Close()

	fields := reader.Fields()

	var shapes []models.ZoneShape
	for reader.Next() {
		n, shape := reader.Shape()

		poly, ok := shape.(*shp.PolyGon)
		if !ok {
			continue
		}

		attrs := make(map[string]string, len(fields))
		for i, field := range fields {
			attrs[strings.ToLower(strings.TrimSpace(field.String()))] = strings.TrimSpace(reader.ReadAttribute(n, i))
		}

		mp := polygonToMultiPolygon(poly)
		reprojected := ReprojectToEPSG2263(mp)

		shapes = append(shapes, models.ZoneShape{
			ObjectID:    atoiOrZero(attrs["objectid"]),
			LocationID:  atoiOrZero(attrs["locationid"]),
			Zone:        attrs["zone"],
			Borough:     attrs["borough"],
			ShapeLength: atofOrZero(attrs["shape_leng"]),
			ShapeArea:   atofOrZero(attrs["shape_area"]),
			Geometry:    reprojected,
		})
	}
	if err := reader.Err(); err != nil {
		return nil, errs.New(errs.Reference, fmt.Errorf("read shapefile records: %w", err))
	}
	return shapes, nil
}

// polygonToMultiPolygon groups a shp.PolyGon's parts into rings and
// wraps every ring as its own polygon. The shapefile polygon
// exterior/hole distinction is not disambiguated here (every zone in
// the TLC shapefile is a simple, possibly multi-part, polygon with no
// interior holes), matching the source data's actual shape.
func polygonToMultiPolygon(poly *shp.PolyGon) orb.MultiPolygon {
	var mp orb.MultiPolygon
	parts := poly.Parts
	points := poly.Points

	for i := range parts {
		start := parts[i]
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}

		ring := make(orb.Ring, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		mp = append(mp, orb.Polygon{ring})
	}
	return mp
}

func atoiOrZero(s string) int32 {
	var v int32
	_, _ = fmt.Sscanf(s, "%d", &v)
	return v
}

func atofOrZero(s string) float64 {
	var v float64
	_, _ = fmt.Sscanf(s, "%g", &v)
	return v
}
