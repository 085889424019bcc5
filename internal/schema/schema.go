// Package schema enumerates the cadastral target tables, their columns, and
// the fixed dependency order writes must follow.
//
// The table set is closed: every component that takes a table identifier
// rejects names outside this enum at its boundary, so a typo can never grow
// the schema or bypass the dependency ordering.
package schema

// Table identifies one of the four cadastral tables.
type Table string

const (
	// TableCaNhan holds individual persons. Referenced by thuadat (voID,
	// chongID), so it must be written first.
	TableCaNhan Table = "canhan"
	// TableGiayChungNhan holds land-use certificates. Referenced by hoso.
	TableGiayChungNhan Table = "giaychungnhan"
	// TableThuaDat holds land parcels; references canhan.
	TableThuaDat Table = "thuadat"
	// TableHoSo holds registration document components; references
	// giaychungnhan.
	TableHoSo Table = "hoso"
)

func (t Table) String() string { return string(t) }

// DependencyOrder returns the tables in the total order writes must follow:
// a table referencing another appears strictly after the table it references.
func DependencyOrder() []Table {
	return []Table{TableCaNhan, TableGiayChungNhan, TableThuaDat, TableHoSo}
}

// Known reports whether t is part of the closed table set.
func Known(t Table) bool {
	switch t {
	case TableCaNhan, TableGiayChungNhan, TableThuaDat, TableHoSo:
		return true
	}
	return false
}

// Key returns the primary key column of t. Duplicate values on this column
// are treated as benign skips by the writer.
func Key(t Table) string {
	switch t {
	case TableCaNhan:
		return "caNhanID"
	case TableGiayChungNhan:
		return "giayChungNhanID"
	case TableThuaDat:
		return "thuaDatID"
	case TableHoSo:
		return "thanhPhanHoSoID"
	}
	return ""
}

// Columns returns the insert column list of t, primary key first. The order
// is fixed; batch writers align row values to it.
func Columns(t Table) []string {
	switch t {
	case TableCaNhan:
		return []string{
			"caNhanID", "hoTen", "namSinh", "diaChiID",
			"giayToTuyThanID", "tenLoaiGiayToTuyThan", "ngayCap",
			"noiCap", "maDinhDanhCaNhan", "hieuLuc",
			"gioiTinh", "soGiayTo", "loaiGiayToTuyThan", "phienBan",
		}
	case TableGiayChungNhan:
		return []string{
			"giayChungNhanID", "soVaoSo", "soPhatHanh",
			"MaGiayChungNhan", "ngayCap",
			"maVach", "nguoiKy", "soVaoSoCu",
		}
	case TableThuaDat:
		return []string{
			"thuaDatID", "maDVHCXa", "soHieuToBanDo", "soThuTuThua",
			"dienTich", "dienTichPhapLy", "diaChiID",
			"voChongID", "voID", "chongID",
			"phanLoaiDuLieu", "trangThaiDangKy", "hieuLuc", "phienBan",
		}
	case TableHoSo:
		return []string{
			"thanhPhanHoSoID", "hoSoDangKySoID", "giayChungNhanID",
			"loaiGiayTo", "tepTin", "url",
			"maHoSoLuuTru", "maDVHCXa",
		}
	}
	return nil
}
