package postgres

import (
	"context"
	"fmt"

	"github.com/KhanhD1nh/export-data/internal/storage"
)

// Schema creates the cadastral tables, foreign keys, and indexes. Every
// statement is idempotent, so running it against an existing database is a
// no-op.
type Schema struct{}

// EnsureTables implements storage.SchemaSetup. It requires a postgres
// connection from this package's dialer.
func (Schema) EnsureTables(ctx context.Context, conn storage.Conn) error {
	pc, ok := conn.(*Conn)
	if !ok {
		return fmt.Errorf("postgres: schema setup needs a postgres connection, got %T", conn)
	}
	for _, stmt := range ddlStatements {
		if _, err := pc.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure tables: %w", describe(err))
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
		"ngayCap"              DATE,
		"noiCap"               TEXT,
		"maDinhDanhCaNhan"     TEXT,
		"hieuLuc"              BOOLEAN,
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
		"ngayCap"         TIMESTAMP,
		"maVach"          TEXT,
		"nguoiKy"         TEXT,
		"soVaoSoCu"       TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS thuadat (
		"thuaDatID"       TEXT PRIMARY KEY,
		"maDVHCXa"        TEXT,
		"soHieuToBanDo"   TEXT,
		"soThuTuThua"     TEXT,
		"dienTich"        DOUBLE PRECISION,
		"dienTichPhapLy"  DOUBLE PRECISION,
		"diaChiID"        TEXT,
		"voChongID"       TEXT,
		"voID"            TEXT,
		"chongID"         TEXT,
		"phanLoaiDuLieu"  INTEGER,
		"trangThaiDangKy" INTEGER,
		"hieuLuc"         BOOLEAN,
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
	// ADD CONSTRAINT has no IF NOT EXISTS form, hence the DO blocks.
	`DO $$ BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_thuadat_vo') THEN
			ALTER TABLE thuadat ADD CONSTRAINT fk_thuadat_vo
				FOREIGN KEY ("voID") REFERENCES canhan ("caNhanID");
		END IF;
	END $$`,
	`DO $$ BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_thuadat_chong') THEN
			ALTER TABLE thuadat ADD CONSTRAINT fk_thuadat_chong
				FOREIGN KEY ("chongID") REFERENCES canhan ("caNhanID");
		END IF;
	END $$`,
	`DO $$ BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_hoso_giaychungnhan') THEN
			ALTER TABLE hoso ADD CONSTRAINT fk_hoso_giaychungnhan
				FOREIGN KEY ("giayChungNhanID") REFERENCES giaychungnhan ("giayChungNhanID");
		END IF;
	END $$`,
	`CREATE INDEX IF NOT EXISTS idx_canhan_hoten ON canhan ("hoTen")`,
	`CREATE INDEX IF NOT EXISTS idx_canhan_sogiayto ON canhan ("soGiayTo")`,
	`CREATE INDEX IF NOT EXISTS idx_canhan_madinhdanh ON canhan ("maDinhDanhCaNhan")`,
	`CREATE INDEX IF NOT EXISTS idx_giaychungnhan_sovaoso ON giaychungnhan ("soVaoSo")`,
	`CREATE INDEX IF NOT EXISTS idx_giaychungnhan_sophathanh ON giaychungnhan ("soPhatHanh")`,
	`CREATE INDEX IF NOT EXISTS idx_giaychungnhan_mavach ON giaychungnhan ("maVach")`,
	`CREATE INDEX IF NOT EXISTS idx_thuadat_madvhcxa ON thuadat ("maDVHCXa")`,
	`CREATE INDEX IF NOT EXISTS idx_thuadat_tobando ON thuadat ("soHieuToBanDo", "soThuTuThua")`,
	`CREATE INDEX IF NOT EXISTS idx_thuadat_vo ON thuadat ("voID")`,
	`CREATE INDEX IF NOT EXISTS idx_thuadat_chong ON thuadat ("chongID")`,
	`CREATE INDEX IF NOT EXISTS idx_hoso_dangkyso ON hoso ("hoSoDangKySoID")`,
	`CREATE INDEX IF NOT EXISTS idx_hoso_giaychungnhan ON hoso ("giayChungNhanID")`,
	`CREATE INDEX IF NOT EXISTS idx_hoso_madvhcxa ON hoso ("maDVHCXa")`,
}
