package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"commodity-prices/models"
	"commodity-prices/utils"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func writeWorkbook(t *testing.T, path string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

func newTestLoader() *Loader {
	return New(utils.NewNopLogger(), Options{MaxConcurrency: 2})
}

func TestReadCSVWithBOMAndNA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beras.csv")
	writeFile(t, path, []byte("\uFEFFTanggal,Jakarta,Bandung\n2024-01-01,12.500,NA\n\n2024-01-02,12.600,12.000\n"))

	tbl, err := ReadCSV(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tanggal", "Jakarta", "Bandung"}, tbl.Columns)
	require.Len(t, tbl.Rows, 2)
	assert.Nil(t, tbl.Rows[0][2])
	// plain decimals are inferred as numbers
	assert.Equal(t, 12.5, tbl.Rows[0][1])
	assert.Equal(t, "2024-01-02", tbl.Rows[1][0])
}

func TestReadCSVKeepsSeparatedPricesAsText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gula.csv")
	writeFile(t, path, []byte("Date,Harga\n2024-01-01,\"12,5\"\n2024-01-02,Rp 13.000\n"))

	tbl, err := ReadCSV(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "12,5", tbl.Rows[0][1])
	assert.Equal(t, "Rp 13.000", tbl.Rows[1][1])
}

func TestReadCSVLatin1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garam.csv")
	// "Région" encoded as ISO-8859-1
	writeFile(t, path, []byte("Date,R\xe9gion,Price\n2024-01-01,Bali,9000\n"))

	tbl, err := ReadCSV(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "Région", tbl.Columns[1])
	assert.Equal(t, 9000.0, tbl.Rows[0][2])
}

func TestReadCSVUndecodable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	writeFile(t, path, []byte("a,b\n\xff,1\n"))

	_, err := ReadCSV(path, []string{"utf-8"})
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cabai.xlsx")
	writeWorkbook(t, path, [][]any{
		{"Tanggal", "Provinsi", "Harga"},
		{"2024-01-01", "Aceh", "Rp 45.000"},
		{"2024-01-02", "Aceh", 46000},
	})

	tbl, err := ReadXLSX(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tanggal", "Provinsi", "Harga"}, tbl.Columns)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "Rp 45.000", tbl.Rows[0][2])
	assert.Equal(t, "46000", tbl.Rows[1][2])
}

func TestListCommodityFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"gula.csv", "beras.xlsx", "beras.csv", "notes.txt", "Cabai.CSV"} {
		writeFile(t, filepath.Join(dir, name), []byte("x"))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0755))

	files := ListCommodityFiles(dir)
	var names []string
	for _, f := range files {
		names = append(names, f.Name+"."+string(f.Format))
	}
	assert.Equal(t, []string{"Cabai.csv", "beras.csv", "gula.csv", "beras.xlsx"}, names)

	assert.Nil(t, ListCommodityFiles(filepath.Join(dir, "missing")))
}

func TestFindDataDirectory(t *testing.T) {
	root := t.TempDir()
	train := filepath.Join(root, "Harga Bahan Pangan", "train")
	require.NoError(t, os.MkdirAll(train, 0755))

	got, ok := FindDataDirectory(root)
	require.True(t, ok)
	assert.Equal(t, train, got)

	got, ok = FindDataDirectory(train)
	require.True(t, ok)
	assert.Equal(t, train, got)

	sibling := filepath.Join(root, "other")
	require.NoError(t, os.MkdirAll(sibling, 0755))
	got, ok = FindDataDirectory(sibling)
	require.True(t, ok)
	assert.Equal(t, train, got)

	nested := t.TempDir()
	deep := filepath.Join(nested, "dataset", "v2", "train")
	writeFile(t, filepath.Join(deep, "beras.csv"), []byte("Date,Price\n"))
	got, ok = FindDataDirectory(nested)
	require.True(t, ok)
	assert.Equal(t, deep, got)

	_, ok = FindDataDirectory(t.TempDir())
	assert.False(t, ok)
}

func TestDataInfo(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "beras.csv"), []byte("x"))
	writeFile(t, filepath.Join(dir, "gula.csv"), []byte("x"))

	info := DataInfo(dir)
	assert.Equal(t, models.DataInfo{
		Source:      "Local Files",
		Path:        dir,
		Commodities: []string{"beras", "gula"},
		FileCount:   2,
	}, info)

	missing := DataInfo("")
	assert.Equal(t, "Not found", missing.Path)
	assert.Empty(t, missing.Commodities)
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "beras.csv"), []byte("Date,Jakarta,Bandung,Surabaya\n2024-01-01,12500,12000,11800\n"))
	writeFile(t, filepath.Join(dir, "kosong.csv"), []byte(""))
	writeWorkbook(t, filepath.Join(dir, "beras.xlsx"), [][]any{{"Date", "Price"}, {"2024-01-01", 1}})
	writeWorkbook(t, filepath.Join(dir, "cabai.xlsx"), [][]any{{"Date", "Price"}, {"2024-01-01", 45000}})

	raws, err := newTestLoader().LoadAll(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, []string{"Date", "Jakarta", "Bandung", "Surabaya"}, raws["beras"].Columns)
	assert.Equal(t, "beras", raws["beras"].Name)
	assert.Equal(t, "cabai", raws["cabai"].Name)
}

func TestLoadAllCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "beras.csv"), []byte("Date,Price\n2024-01-01,1\n"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestLoader().LoadAll(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeSource struct {
	tables map[string]*models.RawTable
}

func (f *fakeSource) ListTables(context.Context) ([]string, error) {
	return []string{"beras", "gula", "missing"}, nil
}

func (f *fakeSource) FetchTable(_ context.Context, name string) (*models.RawTable, error) {
	t, ok := f.tables[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return t, nil
}

func (f *fakeSource) Close() error { return nil }

func TestLoadSQL(t *testing.T) {
	src := &fakeSource{tables: map[string]*models.RawTable{
		"beras": {Name: "beras", Columns: []string{"Date", "Price"}, Rows: [][]any{{"2024-01-01", 1.0}}},
		"gula":  {Name: "gula", Columns: []string{"Date", "Price"}},
	}}

	raws, err := newTestLoader().LoadSQL(context.Background(), src, nil)
	require.NoError(t, err)
	assert.Len(t, raws, 1)
	assert.Contains(t, raws, "beras")

	raws, err = newTestLoader().LoadSQL(context.Background(), src, []string{"gula"})
	require.NoError(t, err)
	assert.Empty(t, raws)
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beras.csv")
	writeFile(t, path, []byte("Date,Price\n"))

	a := Fingerprint(dir)
	assert.Equal(t, a, Fingerprint(dir))

	writeFile(t, path, []byte("Date,Price\n2024-01-01,1\n"))
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now().Add(time.Hour)))
	assert.NotEqual(t, a, Fingerprint(dir))
}
