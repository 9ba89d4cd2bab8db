package question

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Letters are the five alternative slots every question carries.
var Letters = []string{"A", "B", "C", "D", "E"}

// Fixed fallback strings used whenever the model omitted or malformed a
// field. They keep the payload shape contract total.
const (
	FallbackTexto       = "Texto não gerado."
	FallbackAlternativa = "Alternativa não gerada."
	FallbackAvaliacao   = "Avaliação não gerada."
	FallbackComando     = "Assinale a alternativa correta."
)

// Question is the guaranteed-shape payload returned to callers: all five
// alternative and evaluation slots populated, gabarito always one of A-E.
// It is constructed fresh per request and never mutated afterwards.
type Question struct {
	Enunciado             string            `json:"enunciado"`
	Suporte               string            `json:"suporte"`
	Comando               string            `json:"comando"`
	Alternativas          map[string]string `json:"alternativas"`
	Gabarito              string            `json:"gabarito"`
	AvaliacaoAlternativas map[string]string `json:"avaliacaoAlternativas"`
}

var codeBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// extractJSON pulls a JSON object out of raw LLM text. A fenced code block
// (optionally tagged json) is tried first, then the trimmed text itself.
func extractJSON(text string) (map[string]interface{}, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}

	candidates := []string{trimmed}
	if match := codeBlockPattern.FindStringSubmatch(trimmed); match != nil {
		candidates = []string{strings.TrimSpace(match[1]), trimmed}
	}

	for _, candidate := range candidates {
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			return parsed, true
		}
	}

	return nil, false
}

// normalize turns an arbitrary parsed object into a well-formed Question.
// Each field degrades independently, so a partially valid payload keeps
// whatever did parse correctly. Normalization is total: any input,
// including an empty object, yields a complete Question.
func normalize(parsed map[string]interface{}) *Question {
	return &Question{
		Enunciado:             stringOrFallback(parsed["enunciado"], FallbackTexto),
		Suporte:               stringOrFallback(parsed["suporte"], FallbackTexto),
		Comando:               stringOrFallback(parsed["comando"], FallbackTexto),
		Alternativas:          normalizeLetterMap(parsed["alternativas"], FallbackAlternativa),
		Gabarito:              normalizeGabarito(parsed["gabarito"]),
		AvaliacaoAlternativas: normalizeLetterMap(avaliacaoField(parsed), FallbackAvaliacao),
	}
}

// avaliacaoField accepts the evaluation map under the key spellings seen
// in upstream output.
func avaliacaoField(parsed map[string]interface{}) interface{} {
	for _, key := range []string{"avaliacaoAlternativas", "avaliacao_alternativas", "avaliacaoalternativas", "avaliacao"} {
		if v, ok := parsed[key]; ok {
			return v
		}
	}
	return nil
}

// normalizeLetterMap builds all five letters from an untyped value,
// accepting either-case keys and ignoring extra ones.
func normalizeLetterMap(value interface{}, fallback string) map[string]string {
	src, _ := value.(map[string]interface{})

	out := make(map[string]string, len(Letters))
	for _, letter := range Letters {
		v, ok := src[letter]
		if !ok {
			v = src[strings.ToLower(letter)]
		}
		out[letter] = stringOrFallback(v, fallback)
	}
	return out
}

// normalizeGabarito reduces any value to a single letter in A-E,
// defaulting to "A".
func normalizeGabarito(value interface{}) string {
	if value == nil {
		return "A"
	}

	s := strings.TrimSpace(fmt.Sprintf("%v", value))
	if s == "" {
		return "A"
	}

	letter := strings.ToUpper(s[:1])
	for _, l := range Letters {
		if letter == l {
			return l
		}
	}
	return "A"
}

// stringOrFallback returns the trimmed string when the value is a
// non-blank string, else the fallback.
func stringOrFallback(value interface{}, fallback string) string {
	if s, ok := value.(string); ok {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

// fallbackQuestion is the deterministic payload used whenever generation
// cannot be trusted: gateway failure, empty text, or unparseable output.
func fallbackQuestion(p Params) *Question {
	alternativas := make(map[string]string, len(Letters))
	avaliacoes := make(map[string]string, len(Letters))
	for _, letter := range Letters {
		alternativas[letter] = FallbackAlternativa
		avaliacoes[letter] = FallbackAvaliacao
	}

	return &Question{
		Enunciado: fmt.Sprintf(
			"Questão sobre %s (%s) para a turma %s. Não foi possível gerar o enunciado.",
			p.Materia, p.Descritor, p.Turma),
		Suporte:               FallbackTexto,
		Comando:               FallbackComando,
		Alternativas:          alternativas,
		Gabarito:              "A",
		AvaliacaoAlternativas: avaliacoes,
	}
}
