package documents

import (
	"fmt"

	"cdv-engine/internal/application/ledger"
	"cdv-engine/internal/domain"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

var quotaHeaders = []string{
	"Cota",
	"Código",
	"Investidor",
	"Status",
	"Maturação",
	"Data de maturação",
	"Bloco",
	"Resíduos (kg)",
	"Educação (min)",
	"Produtos",
	"Progresso (%)",
	"Certificado",
}

// QuotaWorkbook renders a project summary sheet plus one row per quota.
// investors maps investor id to legal name; certificates maps certificate id to number.
func QuotaWorkbook(p domain.Project, quotas []ledger.QuotaView, investors, certificates map[uuid.UUID]string) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	summary := "Projeto"
	file.SetSheetName("Sheet1", summary)
	set := func(sheet, cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	var assigned, ready, issued int
	for _, q := range quotas {
		if q.InvestorID != nil {
			assigned++
		}
		switch q.Status {
		case domain.QuotaReady:
			ready++
		case domain.QuotaCertificateIssued:
			issued++
		}
	}
	set(summary, "A1", "Projeto")
	set(summary, "B1", p.Title)
	set(summary, "A2", "Valor total")
	set(summary, "B2", p.TotalValue)
	set(summary, "A3", "Valor da cota")
	set(summary, "B3", p.UnitPrice)
	set(summary, "A4", "Início")
	set(summary, "B4", formatDate(p.StartDate))
	set(summary, "A5", "Prazo (meses)")
	set(summary, "B5", p.MaturationMonths)
	set(summary, "A6", "Cotas")
	set(summary, "B6", len(quotas))
	set(summary, "A7", "Cotas atribuídas")
	set(summary, "B7", assigned)
	set(summary, "A8", "Cotas prontas")
	set(summary, "B8", ready)
	set(summary, "A9", "Certificados emitidos")
	set(summary, "B9", issued)
	_ = file.SetColWidth(summary, "A", "A", 24)
	_ = file.SetColWidth(summary, "B", "B", 40)

	sheet := "Cotas"
	if _, err := file.NewSheet(sheet); err != nil {
		return nil, err
	}
	for i, h := range quotaHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		set(sheet, cell, h)
	}
	for i, q := range quotas {
		row := i + 2
		investor := ""
		if q.InvestorID != nil {
			investor = investors[*q.InvestorID]
		}
		cert := ""
		if q.CertificateID != nil {
			cert = certificates[*q.CertificateID]
		}
		values := []interface{}{
			q.Number,
			q.Code,
			investor,
			string(q.Status),
			string(q.DerivedMaturationStatus),
			formatDate(q.MaturationDate),
			q.Block,
			q.ReconciledWasteKg,
			q.ReconciledEducationMin,
			q.ReconciledProducts,
			q.Progress,
			cert,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			set(sheet, cell, v)
		}
	}
	_ = file.SetColWidth(sheet, "B", "C", 28)
	if err := file.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
