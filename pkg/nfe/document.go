package nfe

// ValidCNPJ verifica o tamanho e os dígitos verificadores de um CNPJ
func ValidCNPJ(cnpj string) bool {
	digits := OnlyDigits(cnpj)
	if len(digits) != 14 || allEqual(digits) {
		return false
	}

	first := documentDigit(digits[:12], []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2})
	second := documentDigit(digits[:13], []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2})

	return int(digits[12]-'0') == first && int(digits[13]-'0') == second
}

// ValidCPF verifica o tamanho e os dígitos verificadores de um CPF
func ValidCPF(cpf string) bool {
	digits := OnlyDigits(cpf)
	if len(digits) != 11 || allEqual(digits) {
		return false
	}

	first := documentDigit(digits[:9], []int{10, 9, 8, 7, 6, 5, 4, 3, 2})
	second := documentDigit(digits[:10], []int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2})

	return int(digits[9]-'0') == first && int(digits[10]-'0') == second
}

func documentDigit(digits string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

func allEqual(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
