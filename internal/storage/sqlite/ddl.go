package sqlite

import (
	"context"
	"fmt"

	"github.com/KhanhD1nh/export-data/internal/storage"
)

// Schema creates the cadastral tables and indexes. SQLite only enforces
// foreign keys declared at table creation and per-connection pragma, and the
// exports routinely contain dangling references, so the constraints are
// deliberately omitted here; dedupe and ordering still hold through the
// primary keys and the writer.
type Schema struct{}

// EnsureTables implements storage.SchemaSetup.
func (Schema) EnsureTables(ctx context.Context, conn storage.Conn) error {
	sc, ok := conn.(*Conn)
	if !ok {
		return fmt.Errorf("sqlite: schema setup needs a sqlite connection, got %T", conn)
	}
	for _, stmt := range ddlStatements {
		if _, err := sc.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: ensure tables: %w", err)
		}
	}
	return nil
}

var ddlStatements = []string{
	`CREATE TABLE IF NOT EXISTS canhan (
		"caNhanID"             TEXT PRIMARY KEY,
		"hoTen"                TEXT,
		"namSinh"              TEXT,
		"diaChiID"             TEXT,
		"giayToTuyThanID"      TEXT,
		"tenLoaiGiayToTuyThan" TEXT,
		"ngayCap"              TEXT,
		"noiCap"               TEXT,
		"maDinhDanhCaNhan"     TEXT,
		"hieuLuc"              INTEGER,
		"gioiTinh"             INTEGER,
		"soGiayTo"             TEXT,
		"loaiGiayToTuyThan"    INTEGER,
		"phienBan"             INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS giaychungnhan (
		"giayChungNhanID" TEXT PRIMARY KEY,
		"soVaoSo"         TEXT,
		"soPhatHanh"      TEXT,
		"MaGiayChungNhan" TEXT,
		"ngayCap"         TEXT,
		"maVach"          TEXT,
		"nguoiKy"         TEXT,
		"soVaoSoCu"       TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS thuadat (
		"thuaDatID"       TEXT PRIMARY KEY,
		"maDVHCXa"        TEXT,
		"soHieuToBanDo"   TEXT,
		"soThuTuThua"     TEXT,
		"dienTich"        REAL,
		"dienTichPhapLy"  REAL,
		"diaChiID"        TEXT,
		"voChongID"       TEXT,
		"voID"            TEXT,
		"chongID"         TEXT,
		"phanLoaiDuLieu"  INTEGER,
		"trangThaiDangKy" INTEGER,
		"hieuLuc"         INTEGER,
		"phienBan"        INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS hoso (
		"thanhPhanHoSoID" TEXT PRIMARY KEY,
		"hoSoDangKySoID"  TEXT,
		"giayChungNhanID" TEXT,
		"loaiGiayTo"      TEXT,
		"tepTin"          TEXT,
		"url"             TEXT,
		"maHoSoLuuTru"    TEXT,
		"maDVHCXa"        TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_canhan_hoten ON canhan ("hoTen")`,
	`CREATE INDEX IF NOT EXISTS idx_giaychungnhan_sovaoso ON giaychungnhan ("soVaoSo")`,
	`CREATE INDEX IF NOT EXISTS idx_thuadat_madvhcxa ON thuadat ("maDVHCXa")`,
	`CREATE INDEX IF NOT EXISTS idx_hoso_giaychungnhan ON hoso ("giayChungNhanID")`,
}
