package nfe

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	// AccessKeyLength é o tamanho da chave de acesso da NFe
	AccessKeyLength = 44

	// ModelNFe é o modelo fiscal da NFe
	ModelNFe = "55"

	// EmissionNormal é o tipo de emissão normal (tpEmis = 1)
	EmissionNormal = "1"

	// DefaultStateCode é o código IBGE usado quando a UF é desconhecida (São Paulo)
	DefaultStateCode = "35"

	maxSeries = 999
	maxNumber = 999999999
)

// Erros de geração e leitura de chave de acesso
var (
	ErrInvalidCNPJ        = errors.New("CNPJ inválido para a chave de acesso")
	ErrInvalidSeries      = errors.New("série deve estar entre 0 e 999")
	ErrInvalidNumber      = errors.New("número da NFe deve estar entre 1 e 999999999")
	ErrInvalidControlCode = errors.New("código numérico deve conter 8 dígitos")
	ErrInvalidAccessKey   = errors.New("chave de acesso inválida")
)

// stateCodes mapeia a sigla da UF para o código IBGE
var stateCodes = map[string]string{
	"RO": "11", "AC": "12", "AM": "13", "RR": "14", "PA": "15", "AP": "16", "TO": "17",
	"MA": "21", "PI": "22", "CE": "23", "RN": "24", "PB": "25", "PE": "26", "AL": "27",
	"SE": "28", "BA": "29",
	"MG": "31", "ES": "32", "RJ": "33", "SP": "35",
	"PR": "41", "SC": "42", "RS": "43",
	"MS": "50", "MT": "51", "GO": "52", "DF": "53",
}

// StateCode retorna o código IBGE de dois dígitos para a UF informada.
// Aceita a sigla (ex: "SP") ou o próprio código (ex: "35").
func StateCode(uf string) string {
	uf = strings.ToUpper(strings.TrimSpace(uf))
	if code, ok := stateCodes[uf]; ok {
		return code
	}
	for _, code := range stateCodes {
		if code == uf {
			return code
		}
	}
	return DefaultStateCode
}

// IsValidState verifica se a sigla da UF existe na tabela IBGE
func IsValidState(uf string) bool {
	_, ok := stateCodes[strings.ToUpper(strings.TrimSpace(uf))]
	return ok
}

// AccessKeyParams contém os campos que compõem a chave de acesso
type AccessKeyParams struct {
	State        string
	IssuedAt     time.Time
	CNPJ         string
	Model        string
	Series       int
	Number       int64
	EmissionType string
	ControlCode  string
}

// AccessKey representa uma chave de acesso decomposta em seus campos
type AccessKey struct {
	StateCode    string
	YearMonth    string
	CNPJ         string
	Model        string
	Series       string
	Number       string
	EmissionType string
	ControlCode  string
	CheckDigit   string
}

// String monta a chave de 44 dígitos
func (k AccessKey) String() string {
	return k.prefix() + k.CheckDigit
}

func (k AccessKey) prefix() string {
	return k.StateCode + k.YearMonth + k.CNPJ + k.Model + k.Series + k.Number + k.EmissionType + k.ControlCode
}

// SequenceNumber retorna o número da NFe embutido na chave
func (k AccessKey) SequenceNumber() int64 {
	n, _ := strconv.ParseInt(k.Number, 10, 64)
	return n
}

// NewAccessKey monta a chave de acesso a partir dos parâmetros, calculando o dígito verificador
func NewAccessKey(p AccessKeyParams) (AccessKey, error) {
	cnpj := OnlyDigits(p.CNPJ)
	if cnpj == "" || len(cnpj) > 14 {
		return AccessKey{}, ErrInvalidCNPJ
	}
	if p.Series < 0 || p.Series > maxSeries {
		return AccessKey{}, ErrInvalidSeries
	}
	if p.Number < 1 || p.Number > maxNumber {
		return AccessKey{}, ErrInvalidNumber
	}
	if len(p.ControlCode) != 8 || OnlyDigits(p.ControlCode) != p.ControlCode {
		return AccessKey{}, ErrInvalidControlCode
	}

	model := p.Model
	if model == "" {
		model = ModelNFe
	}
	emission := p.EmissionType
	if emission == "" {
		emission = EmissionNormal
	}

	key := AccessKey{
		StateCode:    StateCode(p.State),
		YearMonth:    p.IssuedAt.Format("0601"),
		CNPJ:         fmt.Sprintf("%014s", cnpj),
		Model:        model,
		Series:       fmt.Sprintf("%03d", p.Series),
		Number:       fmt.Sprintf("%09d", p.Number),
		EmissionType: emission,
		ControlCode:  p.ControlCode,
	}

	digit, err := CheckDigit(key.prefix())
	if err != nil {
		return AccessKey{}, err
	}
	key.CheckDigit = strconv.Itoa(digit)

	return key, nil
}

// GenerateAccessKey retorna a chave de acesso de 44 dígitos
func GenerateAccessKey(p AccessKeyParams) (string, error) {
	key, err := NewAccessKey(p)
	if err != nil {
		return "", err
	}
	return key.String(), nil
}

// CheckDigit calcula o dígito verificador módulo 11 sobre os 43 dígitos da chave.
// Os pesos 2..9 são aplicados da direita para a esquerda, reiniciando em 2.
func CheckDigit(prefix string) (int, error) {
	if len(prefix) != AccessKeyLength-1 {
		return 0, fmt.Errorf("%w: esperado %d dígitos, recebido %d", ErrInvalidAccessKey, AccessKeyLength-1, len(prefix))
	}

	sum := 0
	weight := 2
	for i := len(prefix) - 1; i >= 0; i-- {
		c := prefix[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: caractere não numérico na posição %d", ErrInvalidAccessKey, i)
		}
		sum += int(c-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}

	r := sum % 11
	if r < 2 {
		return 0, nil
	}
	return 11 - r, nil
}

// ParseAccessKey decompõe uma chave de 44 dígitos e confere o dígito verificador
func ParseAccessKey(key string) (AccessKey, error) {
	if len(key) != AccessKeyLength || OnlyDigits(key) != key {
		return AccessKey{}, fmt.Errorf("%w: deve conter %d dígitos", ErrInvalidAccessKey, AccessKeyLength)
	}

	parsed := AccessKey{
		StateCode:    key[0:2],
		YearMonth:    key[2:6],
		CNPJ:         key[6:20],
		Model:        key[20:22],
		Series:       key[22:25],
		Number:       key[25:34],
		EmissionType: key[34:35],
		ControlCode:  key[35:43],
		CheckDigit:   key[43:44],
	}

	digit, err := CheckDigit(key[:43])
	if err != nil {
		return AccessKey{}, err
	}
	if strconv.Itoa(digit) != parsed.CheckDigit {
		return AccessKey{}, fmt.Errorf("%w: dígito verificador não confere", ErrInvalidAccessKey)
	}

	return parsed, nil
}

// NewControlCode gera o código numérico aleatório (cNF) de 8 dígitos.
// O manual de orientação proíbe que o cNF seja igual ao número da NFe.
func NewControlCode(r io.Reader, number int64) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	limit := big.NewInt(100000000)
	for {
		n, err := rand.Int(r, limit)
		if err != nil {
			return "", fmt.Errorf("falha ao gerar código numérico: %w", err)
		}
		if n.Int64() == number%100000000 {
			continue
		}
		return fmt.Sprintf("%08d", n.Int64()), nil
	}
}

// OnlyDigits remove todos os caracteres não numéricos
func OnlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}
