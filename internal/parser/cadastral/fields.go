package cadastral

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// XML shapes of the collection entries. Only the elements the target schema
// needs are mapped; everything else in the exports is skipped by the decoder.

type voChong struct {
	VoChongID string `xml:"voChongID"`
	VoID      string `xml:"voID"`
	ChongID   string `xml:"chongID"`
}

type quyenSuDungDat struct {
	ThuaDatID  string `xml:"thuaDatID"`
	DoiTuongID string `xml:"doiTuongID"`
}

type dcThuaDat struct {
	ThuaDatID       string `xml:"thuaDatID"`
	MaDVHCXa        string `xml:"maDVHCXa"`
	SoHieuToBanDo   string `xml:"soHieuToBanDo"`
	SoThuTuThua     string `xml:"soThuTuThua"`
	DienTich        string `xml:"dienTich"`
	DienTichPhapLy  string `xml:"dienTichPhapLy"`
	DiaChiID        string `xml:"diaChiID"`
	PhanLoaiDuLieu  string `xml:"phanLoaiDuLieu"`
	TrangThaiDangKy string `xml:"trangThaiDangKy"`
	HieuLuc         string `xml:"hieuLuc"`
	PhienBan        string `xml:"phienBan"`
}

type giayToTuyThan struct {
	GiayToTuyThanID      string `xml:"giayToTuyThanID"`
	TenLoaiGiayToTuyThan string `xml:"tenLoaiGiayToTuyThan"`
	NgayCap              string `xml:"ngayCap"`
	NoiCap               string `xml:"noiCap"`
	MaDinhDanhCaNhan     string `xml:"maDinhDanhCaNhan"`
	HieuLuc              string `xml:"hieuLuc"`
	SoGiayTo             string `xml:"soGiayTo"`
	LoaiGiayToTuyThan    string `xml:"loaiGiayToTuyThan"`
}

type caNhan struct {
	CaNhanID string          `xml:"caNhanID"`
	HoTen    string          `xml:"hoTen"`
	NamSinh  string          `xml:"namSinh"`
	DiaChiID string          `xml:"diaChiID"`
	GioiTinh string          `xml:"gioiTinh"`
	PhienBan string          `xml:"phienBan"`
	GiayTo   []giayToTuyThan `xml:"GiayToTuyThanCollection>GiayToTuyThan"`
}

type giayChungNhan struct {
	GiayChungNhanID string `xml:"giayChungNhanID"`
	SoVaoSo         string `xml:"soVaoSo"`
	SoPhatHanh      string `xml:"soPhatHanh"`
	MaGiayChungNhan string `xml:"MaGiayChungNhan"`
	NgayCap         string `xml:"ngayCap"`
	MaVach          string `xml:"maVach"`
	NguoiKy         string `xml:"nguoiKy"`
	SoVaoSoCu       string `xml:"soVaoSoCu"`
}

type thanhPhanHoSo struct {
	ThanhPhanHoSoID string `xml:"thanhPhanHoSoID"`
	LoaiGiayTo      string `xml:"loaiGiayTo"`
	TepTin          string `xml:"tepTin"`
	URL             string `xml:"url"`
}

type hoSoDangKyDatDai struct {
	HoSoDangKySoID  string          `xml:"hoSoDangKySoID"`
	GiayChungNhanID string          `xml:"giayChungNhanID"`
	MaHoSoLuuTru    string          `xml:"maHoSoLuuTru"`
	MaDVHCXa        string          `xml:"maDVHCXa"`
	ThanhPhan       []thanhPhanHoSo `xml:"ThanhPhanHoSoDangKyDatDaiCollection>ThanhPhanHoSoDangKyDatDai"`
}

// Accepted layouts. Dates normalize to a bare day; timestamps keep the time
// of day when present.
var (
	dateLayouts      = []string{"2006-01-02", "2006-01-02 15:04:05", "02/01/2006"}
	timestampLayouts = []string{"2006-01-02 15:04:05", "2006-01-02"}
)

// cleanText trims surrounding whitespace and applies Unicode NFC so that
// visually identical Vietnamese strings compare (and key) equal regardless of
// which composition the exporting tool emitted.
func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// textOrNil returns the cleaned string, or nil when empty.
func textOrNil(s string) any {
	t := cleanText(s)
	if t == "" {
		return nil
	}
	return t
}

func intOrNil(s string) any {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	n, err := strconv.ParseInt(t, 10, 64)
	if err != nil {
		return nil
	}
	return n
}

func floatOrNil(s string) any {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return nil
	}
	return f
}

func dateOrNil(s string) any {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, t); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return nil
}

func timestampOrNil(s string) any {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if d, err := time.Parse(layout, t); err == nil {
			return d.Format("2006-01-02 15:04:05")
		}
	}
	return nil
}

func boolOrNil(s string) any {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return nil
	}
	return t == "true" || t == "1" || t == "yes"
}

func parseBoolDefault(s string, def bool) bool {
	v := boolOrNil(s)
	if v == nil {
		return def
	}
	return v.(bool)
}
