package loader

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"commodity-prices/models"
	"commodity-prices/utils"
)

// CommodityFolder is the conventional location of commodity files below a
// dataset root.
var CommodityFolder = filepath.Join("Harga Bahan Pangan", "train")

// ErrNoDataDirectory is returned when no commodity directory can be located.
var ErrNoDataDirectory = errors.New("no commodity data directory found")

// Format is the on-disk format of a commodity file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var extensions = map[string]Format{
	".csv":  FormatCSV,
	".xlsx": FormatXLSX,
}

// CommodityFile is one loadable source. Name is the file stem and becomes the
// commodity label.
type CommodityFile struct {
	Name   string
	Path   string
	Format Format
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// FindDataDirectory locates the commodity directory starting at base. It
// checks base/CommodityFolder, base itself when it is a "train" folder, the
// same folder under the two parent directories, and finally any "train"
// directory below base that holds commodity files.
func FindDataDirectory(base string) (string, bool) {
	if base == "" {
		return "", false
	}
	if p := filepath.Join(base, CommodityFolder); isDir(p) {
		return p, true
	}
	if filepath.Base(base) == "train" && isDir(base) {
		return base, true
	}
	parent := filepath.Dir(base)
	for _, dir := range []string{parent, filepath.Dir(parent)} {
		if p := filepath.Join(dir, CommodityFolder); isDir(p) {
			return p, true
		}
	}

	var found string
	_ = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || found != "" {
			return nil
		}
		if d.Name() == "train" && len(ListCommodityFiles(path)) > 0 {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	return found, found != ""
}

// ListCommodityFiles returns the commodity files directly inside dir, CSV
// files first, each group sorted by name.
func ListCommodityFiles(dir string) []CommodityFile {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var files []CommodityFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		format, ok := extensions[ext]
		if !ok {
			continue
		}
		files = append(files, CommodityFile{
			Name:   strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Path:   filepath.Join(dir, e.Name()),
			Format: format,
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Format != files[j].Format {
			return files[i].Format == FormatCSV
		}
		return files[i].Name < files[j].Name
	})
	return files
}

// DataInfo summarizes the commodity files available in dir.
func DataInfo(dir string) models.DataInfo {
	info := models.DataInfo{
		Source:      "Local Files",
		Path:        "Not found",
		Commodities: []string{},
	}
	if dir == "" || !isDir(dir) {
		return info
	}
	info.Path = dir
	seen := utils.NewNameSet()
	files := ListCommodityFiles(dir)
	for _, f := range files {
		if seen.Add(f.Name) {
			info.Commodities = append(info.Commodities, f.Name)
		}
	}
	info.FileCount = len(files)
	return info
}
