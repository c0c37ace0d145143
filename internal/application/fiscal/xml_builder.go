package fiscal

import (
	"encoding/xml"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
	"unicode/utf8"

	domain "github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
	"github.com/hugohenrick/erp-veterinaria/pkg/nfe"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

const (
	nfeNamespace = "http://www.portalfiscal.inf.br/nfe"
	nfeVersion   = "4.00"

	// StagingRecipientName substitui o nome do destinatário em homologação
	StagingRecipientName = "NF-E EMITIDA EM AMBIENTE DE HOMOLOGACAO - SEM VALOR FISCAL"

	maxProductDescription = 120
	maxName               = 60
	maxNotes              = 5000

	defaultNCM  = "00000000"
	defaultCFOP = "5102"
	defaultUnit = "UN"
	withoutGTIN = "SEM GTIN"
)

// Location é o fuso usado em dhEmi e no AAMM da chave de acesso
var Location = loadLocation()

func loadLocation() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
}

var paymentCodes = map[string]string{
	"cash":        "01",
	"dinheiro":    "01",
	"check":       "02",
	"cheque":      "02",
	"credit_card": "03",
	"credito":     "03",
	"debit_card":  "04",
	"debito":      "04",
	"boleto":      "15",
	"pix":         "17",
}

// PaymentCode converte a forma de pagamento da fatura no código tPag
func PaymentCode(method string) string {
	if code, ok := paymentCodes[strings.ToLower(strings.TrimSpace(method))]; ok {
		return code
	}
	return "99"
}

// XMLBuilder monta o XML da NFe 4.00 a partir da fatura
type XMLBuilder struct{}

// NewXMLBuilder cria um novo construtor de XML
func NewXMLBuilder() *XMLBuilder {
	return &XMLBuilder{}
}

// Build gera o XML não assinado da NFe
func (b *XMLBuilder) Build(inv *domain.Invoice, cfg *domain.Config, doc *domain.Document) ([]byte, error) {
	if inv == nil || cfg == nil || doc == nil {
		return nil, errors.New("fatura, configuração e documento são obrigatórios")
	}
	if len(inv.Items) == 0 {
		return nil, domain.ErrInvoiceWithoutItems
	}
	if len(doc.AccessKey) != nfe.AccessKeyLength {
		return nil, fmt.Errorf("%w: %q", nfe.ErrInvalidAccessKey, doc.AccessKey)
	}

	lines, err := apportion(inv)
	if err != nil {
		return nil, err
	}
	rate := cfg.ServiceTaxRate.Div(decimal.NewFromInt(100))

	var (
		totalProducts = decimal.Zero
		totalDiscount = decimal.Zero
		totalTaxes    = decimal.Zero
	)

	dets := make([]det, 0, len(inv.Items))
	for i, item := range inv.Items {
		line := lines[i]
		taxes := line.gross.Sub(line.discount).Mul(rate).Round(2)

		totalProducts = totalProducts.Add(line.gross)
		totalDiscount = totalDiscount.Add(line.discount)
		totalTaxes = totalTaxes.Add(taxes)

		dets = append(dets, det{
			NItem:   i + 1,
			Prod:    buildProd(item, line),
			Imposto: buildImposto(cfg.TaxRegime, taxes),
		})
	}

	total := totalProducts.Sub(totalDiscount)
	uf := nfe.StateCode(cfg.Address.State)

	payload := nfeXML{
		Xmlns: nfeNamespace,
		InfNFe: infNFe{
			Versao: nfeVersion,
			ID:     "NFe" + doc.AccessKey,
			Ide: ide{
				CUF:      uf,
				CNF:      doc.ControlCode,
				NatOp:    "PRESTACAO DE SERVICOS E VENDA DE MERCADORIAS",
				Mod:      nfe.ModelNFe,
				Serie:    strconv.Itoa(doc.Series),
				NNF:      strconv.FormatInt(doc.Sequence, 10),
				DhEmi:    doc.IssuedAt.In(Location).Format("2006-01-02T15:04:05-07:00"),
				TpNF:     "1",
				IdDest:   destination(cfg, inv),
				CMunFG:   cfg.Address.MunicipalityCode,
				TpImp:    "1",
				TpEmis:   nfe.EmissionNormal,
				CDV:      doc.AccessKey[nfe.AccessKeyLength-1:],
				TpAmb:    strconv.Itoa(doc.Environment.Code()),
				FinNFe:   "1",
				IndFinal: "1",
				IndPres:  "1",
				ProcEmi:  "0",
				VerProc:  "erp-veterinaria-1.0",
			},
			Emit: emit{
				CNPJ:  cfg.CNPJ,
				XNome: clean(cfg.LegalName, maxName),
				XFant: clean(cfg.TradeName, maxName),
				EnderEmit: ender{
					XLgr:    clean(cfg.Address.Street, maxName),
					Nro:     clean(cfg.Address.Number, maxName),
					XBairro: clean(cfg.Address.District, maxName),
					CMun:    cfg.Address.MunicipalityCode,
					XMun:    clean(cfg.Address.MunicipalityName, maxName),
					UF:      cfg.Address.State,
					CEP:     cfg.Address.PostalCode,
					CPais:   "1058",
					XPais:   "BRASIL",
				},
				IE:  cfg.StateRegistration,
				CRT: strconv.Itoa(cfg.TaxRegime),
			},
			Dest: buildDest(inv.Client, doc.Environment),
			Det:  dets,
			Total: totalXML{ICMSTot: icmsTot{
				VBC:        zero,
				VICMS:      zero,
				VICMSDeson: zero,
				VFCP:       zero,
				VBCST:      zero,
				VST:        zero,
				VFCPST:     zero,
				VFCPSTRet:  zero,
				VProd:      money(totalProducts),
				VFrete:     zero,
				VSeg:       zero,
				VDesc:      money(totalDiscount),
				VII:        zero,
				VIPI:       zero,
				VIPIDevol:  zero,
				VPIS:       zero,
				VCOFINS:    zero,
				VOutro:     zero,
				VNF:        money(total),
				VTotTrib:   money(totalTaxes),
			}},
			Transp:  transp{ModFrete: "9"},
			Pag:     buildPag(inv.PaymentMethod, total),
			InfAdic: buildInfAdic(inv.Notes, totalTaxes, cfg.ServiceTaxRate),
		},
	}

	out, err := xml.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("falha ao serializar XML da NFe: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

type itemLine struct {
	gross    decimal.Decimal
	discount decimal.Decimal
}

// apportion calcula o valor bruto de cada item e distribui o desconto da fatura
// proporcionalmente ao saldo de cada item, pelo método dos maiores restos em centavos.
// Cada parcela fica entre zero e o saldo do item.
func apportion(inv *domain.Invoice) ([]itemLine, error) {
	lines := make([]itemLine, len(inv.Items))
	capacity := make([]int64, len(inv.Items))
	var totalCapacity int64
	for i, item := range inv.Items {
		lines[i].gross = item.Gross().Round(2)
		lines[i].discount = item.Discount.Round(2)
		if c := cents(lines[i].gross.Sub(lines[i].discount)); c > 0 {
			capacity[i] = c
			totalCapacity += c
		}
	}

	discount := cents(inv.Discount.Round(2))
	if discount <= 0 {
		return lines, nil
	}
	if discount > totalCapacity {
		return nil, fmt.Errorf("%w: desconto da fatura (%s) maior que o valor dos itens", domain.ErrInvalidState, money(inv.Discount))
	}

	shares := make([]int64, len(lines))
	remainders := make([]int64, len(lines))
	var assigned int64
	for i := range lines {
		shares[i] = discount * capacity[i] / totalCapacity
		remainders[i] = discount * capacity[i] % totalCapacity
		assigned += shares[i]
	}

	// Centavos restantes vão para os maiores restos; no empate, o item mais ao fim
	order := make([]int, len(lines))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if remainders[order[a]] != remainders[order[b]] {
			return remainders[order[a]] > remainders[order[b]]
		}
		return order[a] > order[b]
	})
	for _, i := range order {
		if assigned == discount {
			break
		}
		if remainders[i] == 0 {
			continue
		}
		shares[i]++
		assigned++
	}

	for i := range lines {
		lines[i].discount = lines[i].discount.Add(decimal.New(shares[i], -2))
	}
	return lines, nil
}

func cents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func buildProd(item domain.InvoiceItem, line itemLine) prod {
	ncm := nfe.OnlyDigits(item.NCM)
	if ncm == "" {
		ncm = defaultNCM
	}
	cfop := nfe.OnlyDigits(item.CFOP)
	if cfop == "" {
		cfop = defaultCFOP
	}
	unit := strings.TrimSpace(item.Unit)
	if unit == "" {
		unit = defaultUnit
	}

	p := prod{
		CProd:    clean(item.Code, maxName),
		CEAN:     withoutGTIN,
		XProd:    clean(item.Description, maxProductDescription),
		NCM:      ncm,
		CFOP:     cfop,
		UCom:     unit,
		QCom:     item.Quantity.StringFixed(4),
		VUnCom:   item.UnitPrice.StringFixed(10),
		VProd:    money(line.gross),
		CEANTrib: withoutGTIN,
		UTrib:    unit,
		QTrib:    item.Quantity.StringFixed(4),
		VUnTrib:  item.UnitPrice.StringFixed(10),
		IndTot:   "1",
	}
	if line.discount.IsPositive() {
		p.VDesc = money(line.discount)
	}
	return p
}

func buildImposto(regime int, taxes decimal.Decimal) imposto {
	i := imposto{
		VTotTrib: money(taxes),
		PIS:      pis{PISNT: cstOnly{CST: "07"}},
		COFINS:   cofins{COFINSNT: cstOnly{CST: "07"}},
	}
	if regime == domain.RegimeSimplesNacional || regime == domain.RegimeSimplesExcessoReceita {
		i.ICMS.ICMSSN102 = &icmsSN102{Orig: "0", CSOSN: "102"}
	} else {
		i.ICMS.ICMS40 = &icms40{Orig: "0", CST: "41"}
	}
	return i
}

func buildDest(client domain.Client, env domain.Environment) dest {
	d := dest{
		XNome:     clean(client.Name, maxName),
		IndIEDest: "9",
		Email:     strings.TrimSpace(client.Email),
	}
	if env == domain.Staging {
		d.XNome = StagingRecipientName
	}

	switch digits := nfe.OnlyDigits(client.Document); len(digits) {
	case 11:
		d.CPF = digits
	case 14:
		d.CNPJ = digits
	}

	if client.Street != "" && client.CityCode != "" && client.State != "" {
		d.EnderDest = &ender{
			XLgr:    clean(client.Street, maxName),
			Nro:     clean(orDefault(client.Number, "S/N"), maxName),
			XBairro: clean(client.District, maxName),
			CMun:    nfe.OnlyDigits(client.CityCode),
			XMun:    clean(client.City, maxName),
			UF:      strings.ToUpper(client.State),
			CEP:     nfe.OnlyDigits(client.ZipCode),
			CPais:   "1058",
			XPais:   "BRASIL",
		}
	}
	return d
}

func buildPag(method string, total decimal.Decimal) pag {
	dp := detPag{TPag: PaymentCode(method), VPag: money(total)}
	if dp.TPag == "99" {
		dp.XPag = "Outros"
	}
	return pag{DetPag: []detPag{dp}}
}

func buildInfAdic(notes string, taxes, rate decimal.Decimal) *infAdic {
	var parts []string
	if n := strings.TrimSpace(notes); n != "" {
		parts = append(parts, n)
	}
	if taxes.IsPositive() {
		parts = append(parts, fmt.Sprintf("Valor aproximado dos tributos: R$ %s (%s%%)", money(taxes), rate.StringFixed(2)))
	}
	if len(parts) == 0 {
		return nil
	}
	return &infAdic{InfCpl: clean(strings.Join(parts, " | "), maxNotes)}
}

func destination(cfg *domain.Config, inv *domain.Invoice) string {
	if inv.Client.State != "" && !strings.EqualFold(inv.Client.State, cfg.Address.State) {
		return "2"
	}
	return "1"
}

// clean normaliza para NFC e trunca pelo número de caracteres, nunca no meio de uma runa
func clean(s string, max int) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:max]))
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

const zero = "0.00"

type nfeXML struct {
	XMLName xml.Name `xml:"NFe"`
	Xmlns   string   `xml:"xmlns,attr"`
	InfNFe  infNFe   `xml:"infNFe"`
}

type infNFe struct {
	Versao  string   `xml:"versao,attr"`
	ID      string   `xml:"Id,attr"`
	Ide     ide      `xml:"ide"`
	Emit    emit     `xml:"emit"`
	Dest    dest     `xml:"dest"`
	Det     []det    `xml:"det"`
	Total   totalXML `xml:"total"`
	Transp  transp   `xml:"transp"`
	Pag     pag      `xml:"pag"`
	InfAdic *infAdic `xml:"infAdic,omitempty"`
}

type ide struct {
	CUF      string `xml:"cUF"`
	CNF      string `xml:"cNF"`
	NatOp    string `xml:"natOp"`
	Mod      string `xml:"mod"`
	Serie    string `xml:"serie"`
	NNF      string `xml:"nNF"`
	DhEmi    string `xml:"dhEmi"`
	TpNF     string `xml:"tpNF"`
	IdDest   string `xml:"idDest"`
	CMunFG   string `xml:"cMunFG"`
	TpImp    string `xml:"tpImp"`
	TpEmis   string `xml:"tpEmis"`
	CDV      string `xml:"cDV"`
	TpAmb    string `xml:"tpAmb"`
	FinNFe   string `xml:"finNFe"`
	IndFinal string `xml:"indFinal"`
	IndPres  string `xml:"indPres"`
	ProcEmi  string `xml:"procEmi"`
	VerProc  string `xml:"verProc"`
}

type emit struct {
	CNPJ      string `xml:"CNPJ"`
	XNome     string `xml:"xNome"`
	XFant     string `xml:"xFant,omitempty"`
	EnderEmit ender  `xml:"enderEmit"`
	IE        string `xml:"IE"`
	CRT       string `xml:"CRT"`
}

type ender struct {
	XLgr    string `xml:"xLgr"`
	Nro     string `xml:"nro"`
	XBairro string `xml:"xBairro"`
	CMun    string `xml:"cMun"`
	XMun    string `xml:"xMun"`
	UF      string `xml:"UF"`
	CEP     string `xml:"CEP,omitempty"`
	CPais   string `xml:"cPais"`
	XPais   string `xml:"xPais"`
}

type dest struct {
	CNPJ      string `xml:"CNPJ,omitempty"`
	CPF       string `xml:"CPF,omitempty"`
	XNome     string `xml:"xNome"`
	EnderDest *ender `xml:"enderDest,omitempty"`
	IndIEDest string `xml:"indIEDest"`
	Email     string `xml:"email,omitempty"`
}

type det struct {
	NItem   int     `xml:"nItem,attr"`
	Prod    prod    `xml:"prod"`
	Imposto imposto `xml:"imposto"`
}

type prod struct {
	CProd    string `xml:"cProd"`
	CEAN     string `xml:"cEAN"`
	XProd    string `xml:"xProd"`
	NCM      string `xml:"NCM"`
	CFOP     string `xml:"CFOP"`
	UCom     string `xml:"uCom"`
	QCom     string `xml:"qCom"`
	VUnCom   string `xml:"vUnCom"`
	VProd    string `xml:"vProd"`
	CEANTrib string `xml:"cEANTrib"`
	UTrib    string `xml:"uTrib"`
	QTrib    string `xml:"qTrib"`
	VUnTrib  string `xml:"vUnTrib"`
	VDesc    string `xml:"vDesc,omitempty"`
	IndTot   string `xml:"indTot"`
}

type imposto struct {
	VTotTrib string `xml:"vTotTrib"`
	ICMS     icms   `xml:"ICMS"`
	PIS      pis    `xml:"PIS"`
	COFINS   cofins `xml:"COFINS"`
}

type icms struct {
	ICMSSN102 *icmsSN102 `xml:"ICMSSN102,omitempty"`
	ICMS40    *icms40    `xml:"ICMS40,omitempty"`
}

type icmsSN102 struct {
	Orig  string `xml:"orig"`
	CSOSN string `xml:"CSOSN"`
}

type icms40 struct {
	Orig string `xml:"orig"`
	CST  string `xml:"CST"`
}

type cstOnly struct {
	CST string `xml:"CST"`
}

type pis struct {
	PISNT cstOnly `xml:"PISNT"`
}

type cofins struct {
	COFINSNT cstOnly `xml:"COFINSNT"`
}

type totalXML struct {
	ICMSTot icmsTot `xml:"ICMSTot"`
}

type icmsTot struct {
	VBC        string `xml:"vBC"`
	VICMS      string `xml:"vICMS"`
	VICMSDeson string `xml:"vICMSDeson"`
	VFCP       string `xml:"vFCP"`
	VBCST      string `xml:"vBCST"`
	VST        string `xml:"vST"`
	VFCPST     string `xml:"vFCPST"`
	VFCPSTRet  string `xml:"vFCPSTRet"`
	VProd      string `xml:"vProd"`
	VFrete     string `xml:"vFrete"`
	VSeg       string `xml:"vSeg"`
	VDesc      string `xml:"vDesc"`
	VII        string `xml:"vII"`
	VIPI       string `xml:"vIPI"`
	VIPIDevol  string `xml:"vIPIDevol"`
	VPIS       string `xml:"vPIS"`
	VCOFINS    string `xml:"vCOFINS"`
	VOutro     string `xml:"vOutro"`
	VNF        string `xml:"vNF"`
	VTotTrib   string `xml:"vTotTrib"`
}

type transp struct {
	ModFrete string `xml:"modFrete"`
}

type pag struct {
	DetPag []detPag `xml:"detPag"`
}

type detPag struct {
	TPag string `xml:"tPag"`
	XPag string `xml:"xPag,omitempty"`
	VPag string `xml:"vPag"`
}

type infAdic struct {
	InfCpl string `xml:"infCpl"`
}
