// Package cadastral parses one cadastral XML export file into the row sets
// for the four target tables.
//
// The exports nest their collections at varying depths depending on the
// producing software, so the parser walks the token stream and decodes any
// element whose name matches a known collection entry, wherever it appears.
// Parsing is stateless and side-effect free; one Parser value can be shared
// by any number of workers.
package cadastral

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"github.com/KhanhD1nh/export-data/internal/schema"
	"github.com/KhanhD1nh/export-data/pkg/records"
)

// Parser extracts records.Sets from cadastral XML files.
type Parser struct{}

// Parse reads the XML file at path and returns the extracted rows grouped by
// table. Rows missing their primary key element are dropped silently, as the
// exports routinely contain empty placeholder entries.
func (Parser) Parse(path string) (records.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cadastral: open %s: %w", path, err)
	}
	defer f.Close()
	return parse(f, path)
}

func parse(r io.Reader, name string) (records.Set, error) {
	var doc document
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cadastral: parse %s: %w", name, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if err := doc.decodeElement(dec, start); err != nil {
			return nil, fmt.Errorf("cadastral: parse %s: %w", name, err)
		}
	}

	set := records.Set{}
	if rows := doc.canhanRows(); len(rows) > 0 {
		set[schema.TableCaNhan.String()] = rows
	}
	if rows := doc.giayChungNhanRows(); len(rows) > 0 {
		set[schema.TableGiayChungNhan.String()] = rows
	}
	if rows := doc.thuaDatRows(); len(rows) > 0 {
		set[schema.TableThuaDat.String()] = rows
	}
	if rows := doc.hoSoRows(); len(rows) > 0 {
		set[schema.TableHoSo.String()] = rows
	}
	return set, nil
}

// document accumulates the decoded collection entries of one file.
type document struct {
	voChong   []voChong
	quyen     []quyenSuDungDat
	thuaDat   []dcThuaDat
	caNhan    []caNhan
	chungNhan []giayChungNhan
	hoSo      []hoSoDangKyDatDai
}

// decodeElement decodes start if it is a known collection entry, otherwise
// leaves the decoder positioned to continue walking into the element.
func (d *document) decodeElement(dec *xml.Decoder, start xml.StartElement) error {
	switch start.Name.Local {
	case "VoChong":
		var v voChong
		if err := dec.DecodeElement(&v, &start); err != nil {
			return err
		}
		d.voChong = append(d.voChong, v)
	case "QuyenSuDungDat":
		var v quyenSuDungDat
		if err := dec.DecodeElement(&v, &start); err != nil {
			return err
		}
		d.quyen = append(d.quyen, v)
	case "DC_ThuaDat":
		var v dcThuaDat
		if err := dec.DecodeElement(&v, &start); err != nil {
			return err
		}
		d.thuaDat = append(d.thuaDat, v)
	case "CaNhan":
		var v caNhan
		if err := dec.DecodeElement(&v, &start); err != nil {
			return err
		}
		d.caNhan = append(d.caNhan, v)
	case "GiayChungNhan":
		var v giayChungNhan
		if err := dec.DecodeElement(&v, &start); err != nil {
			return err
		}
		d.chungNhan = append(d.chungNhan, v)
	case "HoSoDangKyDatDai":
		var v hoSoDangKyDatDai
		if err := dec.DecodeElement(&v, &start); err != nil {
			return err
		}
		d.hoSo = append(d.hoSo, v)
	}
	return nil
}

// thuaDatRows builds parcel rows, joining each parcel to its spouse pair: a
// QuyenSuDungDat entry links the parcel to a doiTuongID, which may identify a
// VoChong record carrying the vo/chong person references.
func (d *document) thuaDatRows() []records.Record {
	spouseByID := make(map[string]voChong, len(d.voChong))
	for _, vc := range d.voChong {
		if id := cleanText(vc.VoChongID); id != "" {
			spouseByID[id] = vc
		}
	}
	spouseByParcel := make(map[string]voChong)
	for _, q := range d.quyen {
		parcelID := cleanText(q.ThuaDatID)
		if parcelID == "" {
			continue
		}
		if _, done := spouseByParcel[parcelID]; done {
			continue
		}
		if vc, ok := spouseByID[cleanText(q.DoiTuongID)]; ok {
			spouseByParcel[parcelID] = vc
		}
	}

	var rows []records.Record
	for _, td := range d.thuaDat {
		id := cleanText(td.ThuaDatID)
		if id == "" {
			continue
		}
		vc := spouseByParcel[id]
		rows = append(rows, records.Record{
			"thuaDatID":       id,
			"maDVHCXa":        textOrNil(td.MaDVHCXa),
			"soHieuToBanDo":   textOrNil(td.SoHieuToBanDo),
			"soThuTuThua":     textOrNil(td.SoThuTuThua),
			"dienTich":        floatOrNil(td.DienTich),
			"dienTichPhapLy":  floatOrNil(td.DienTichPhapLy),
			"diaChiID":        textOrNil(td.DiaChiID),
			"voChongID":       textOrNil(vc.VoChongID),
			"voID":            textOrNil(vc.VoID),
			"chongID":         textOrNil(vc.ChongID),
			"phanLoaiDuLieu":  intOrNil(td.PhanLoaiDuLieu),
			"trangThaiDangKy": intOrNil(td.TrangThaiDangKy),
			"hieuLuc":         parseBoolDefault(td.HieuLuc, true),
			"phienBan":        intOrNil(td.PhienBan),
		})
	}
	return rows
}

// canhanRows builds person rows. Only the first identity paper of each
// person is kept, matching the target schema's flattened columns.
func (d *document) canhanRows() []records.Record {
	var rows []records.Record
	for _, cn := range d.caNhan {
		id := cleanText(cn.CaNhanID)
		if id == "" {
			continue
		}
		var gt giayToTuyThan
		if len(cn.GiayTo) > 0 {
			gt = cn.GiayTo[0]
		}
		rows = append(rows, records.Record{
			"caNhanID":             id,
			"hoTen":                textOrNil(cn.HoTen),
			"namSinh":              textOrNil(cn.NamSinh),
			"diaChiID":             textOrNil(cn.DiaChiID),
			"giayToTuyThanID":      textOrNil(gt.GiayToTuyThanID),
			"tenLoaiGiayToTuyThan": textOrNil(gt.TenLoaiGiayToTuyThan),
			"ngayCap":              dateOrNil(gt.NgayCap),
			"noiCap":               textOrNil(gt.NoiCap),
			"maDinhDanhCaNhan":     textOrNil(gt.MaDinhDanhCaNhan),
			"hieuLuc":              boolOrNil(gt.HieuLuc),
			"gioiTinh":             intOrNil(cn.GioiTinh),
			"soGiayTo":             textOrNil(gt.SoGiayTo),
			"loaiGiayToTuyThan":    intOrNil(gt.LoaiGiayToTuyThan),
			"phienBan":             intOrNil(cn.PhienBan),
		})
	}
	return rows
}

func (d *document) giayChungNhanRows() []records.Record {
	var rows []records.Record
	for _, gcn := range d.chungNhan {
		id := cleanText(gcn.GiayChungNhanID)
		if id == "" {
			continue
		}
		rows = append(rows, records.Record{
			"giayChungNhanID": id,
			"soVaoSo":         textOrNil(gcn.SoVaoSo),
			"soPhatHanh":      textOrNil(gcn.SoPhatHanh),
			"MaGiayChungNhan": textOrNil(gcn.MaGiayChungNhan),
			"ngayCap":         timestampOrNil(gcn.NgayCap),
			"maVach":          textOrNil(gcn.MaVach),
			"nguoiKy":         textOrNil(gcn.NguoiKy),
			"soVaoSoCu":       textOrNil(gcn.SoVaoSoCu),
		})
	}
	return rows
}

// hoSoRows expands each registration dossier into one row per document
// component, carrying the dossier-level fields onto every component.
func (d *document) hoSoRows() []records.Record {
	var rows []records.Record
	for _, hs := range d.hoSo {
		for _, tp := range hs.ThanhPhan {
			id := cleanText(tp.ThanhPhanHoSoID)
			if id == "" {
				continue
			}
			rows = append(rows, records.Record{
				"thanhPhanHoSoID": id,
				"hoSoDangKySoID":  textOrNil(hs.HoSoDangKySoID),
				"giayChungNhanID": textOrNil(hs.GiayChungNhanID),
				"loaiGiayTo":      textOrNil(tp.LoaiGiayTo),
				"tepTin":          textOrNil(tp.TepTin),
				"url":             textOrNil(tp.URL),
				"maHoSoLuuTru":    textOrNil(hs.MaHoSoLuuTru),
				"maDVHCXa":        textOrNil(hs.MaDVHCXa),
			})
		}
	}
	return rows
}
