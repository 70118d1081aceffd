package payment

// UnknownErrorMessage is reported for any code missing from a driver's table.
const UnknownErrorMessage = "خطای ناشناخته ای رخ داده است."

// Translator maps one provider's status codes to readable reasons.
type Translator struct {
	table map[string]string
}

func NewTranslator(table map[string]string) Translator {
	return Translator{table: table}
}

func (t Translator) Translate(code string) (string, bool) {
	msg, ok := t.table[code]
	return msg, ok
}

func (t Translator) Message(code string) string {
	if msg, ok := t.Translate(code); ok {
		return msg
	}
	return UnknownErrorMessage
}

func (t Translator) Failure(driver, code string) *Failure {
	return &Failure{
		Kind:    KindInvalidPayment,
		Driver:  driver,
		Code:    code,
		Message: t.Message(code),
	}
}

func (t Translator) Codes() []string {
	codes := make([]string, 0, len(t.table))
	for c := range t.table {
		codes = append(codes, c)
	}
	return codes
}
